// Package notify carries user-facing notifications out of the report
// pipeline.
package notify

import (
	"sync"

	"go.uber.org/zap"
)

// Type is the severity of a notification.
type Type string

const (
	Success Type = "success"
	Info    Type = "info"
	Warning Type = "warning"
	Error   Type = "error"
)

// Notification is a single user-facing message.
type Notification struct {
	Type        Type
	Title       string // Optional
	Description string
}

// Notifier receives notifications.
type Notifier interface {
	Notify(n Notification)
}

// Log writes notifications to a zap logger at a level matching their type.
type Log struct {
	log *zap.Logger
}

// NewLog creates a Notifier backed by log.
func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log}
}

func (l *Log) Notify(n Notification) {
	fields := []zap.Field{zap.String("type", string(n.Type))}
	if n.Title != "" {
		fields = append(fields, zap.String("title", n.Title))
	}

	switch n.Type {
	case Error:
		l.log.Error(n.Description, fields...)
	case Warning:
		l.log.Warn(n.Description, fields...)
	default:
		l.log.Info(n.Description, fields...)
	}
}

// Recorder keeps every notification it receives. Safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// Last returns the most recent notification, if any.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return Notification{}, false
	}
	return r.sent[len(r.sent)-1], true
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(n Notification) {
	for _, target := range m {
		if target != nil {
			target.Notify(n)
		}
	}
}
