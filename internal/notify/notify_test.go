package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLog_LevelFollowsType(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	n := NewLog(zap.New(core))

	n.Notify(Notification{Type: Error, Title: "Report failed", Description: "could not fetch report"})
	n.Notify(Notification{Type: Warning, Description: "mark downloaded failed"})
	n.Notify(Notification{Type: Success, Description: "report ready"})

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "could not fetch report", entries[0].Message)
	assert.Equal(t, "Report failed", entries[0].ContextMap()["title"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[2].Level)
	assert.NotContains(t, entries[2].ContextMap(), "title")
}

func TestRecorderAndMulti(t *testing.T) {
	var a, b Recorder
	m := Multi{&a, nil, &b}

	_, ok := a.Last()
	assert.False(t, ok)

	m.Notify(Notification{Type: Info, Description: "one"})
	m.Notify(Notification{Type: Error, Description: "two"})

	assert.Len(t, a.All(), 2)
	assert.Len(t, b.All(), 2)

	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, "two", last.Description)
}
