// Package cache keeps decompressed report content keyed by the parameters
// that produced it.
package cache

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DocumentName is the name of the single document holding all entries.
	DocumentName = "cached-reports"

	// DefaultTTL is the freshness window of an entry.
	DefaultTTL = 24 * time.Hour
)

// Entry is one cached report.
type Entry struct {
	FileContent string `json:"fileContent"`
	Timestamp   int64  `json:"timestamp"` // epoch milliseconds
	Params      string `json:"params"`
}

// Time returns the write time of the entry.
func (e Entry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Store persists entries by key.
type Store interface {
	Load(ctx context.Context, key string) (Entry, bool, error)
	Save(ctx context.Context, key string, e Entry) error
}

// Key builds the cache key for a report. It is the only place keys are
// constructed; query must be the canonical filter serialization.
func Key(agency, kind, query string) string {
	return strings.Join([]string{agency, kind, query}, "|")
}

// Cache applies the freshness window on top of a Store.
type Cache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
	log   *zap.Logger
}

// Option customizes a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Cache) { c.log = log }
}

// New creates a cache over store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store: store,
		ttl:   DefaultTTL,
		now:   time.Now,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the entry for the report if it is fresh.
// Stale entries are ignored, not evicted. Store errors count as a miss.
func (c *Cache) Get(ctx context.Context, agency, kind, query string) (Entry, bool) {
	key := Key(agency, kind, query)

	e, ok, err := c.store.Load(ctx, key)
	if err != nil {
		c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}
	if !c.Fresh(e) {
		c.log.Debug("cache entry stale", zap.String("key", key), zap.Time("written", e.Time()))
		return Entry{}, false
	}
	return e, true
}

// Put stores content for the report with the current timestamp.
func (c *Cache) Put(ctx context.Context, agency, kind, query, content string) error {
	e := Entry{
		FileContent: content,
		Timestamp:   c.now().UnixMilli(),
		Params:      query,
	}
	return c.store.Save(ctx, Key(agency, kind, query), e)
}

// Fresh reports whether e is younger than the TTL.
func (c *Cache) Fresh(e Entry) bool {
	return c.now().Sub(e.Time()) < c.ttl
}
