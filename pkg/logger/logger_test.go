package logger

import (
	"bytes"
	"log"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStandardLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewStandardLogger(log.New(&buf, "", 0), Debug, "[test]")

	t.Run("Info", func(t *testing.T) {
		buf.Reset()
		l.Info("info message", "key1", "value1", "key2", 123)
		output := buf.String()
		assert.Contains(t, output, "[test] [INFO] info message")
		assert.Contains(t, output, "key1=value1")
		assert.Contains(t, output, "key2=123")
	})

	t.Run("OddArgs", func(t *testing.T) {
		buf.Reset()
		l.Warn("warn message", "dangling")
		assert.Contains(t, buf.String(), "dangling=(no value)")
	})

	t.Run("Debug", func(t *testing.T) {
		buf.Reset()
		l.Debug("debug message")
		assert.Contains(t, buf.String(), "[DEBUG] debug message")
	})
}

func TestStandardLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	warnLogger := NewStandardLogger(log.New(&buf, "", 0), Warn, "[test]")

	warnLogger.Info("info message")
	assert.Zero(t, buf.Len(), "info should not be logged at warn level")

	warnLogger.Warn("warn message")
	assert.Contains(t, buf.String(), "[WARN] warn message")

	buf.Reset()
	warnLogger.LogMode(Debug).Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	l := NewSlog(slog.New(handler), Info)

	l.Debug("hidden")
	assert.Empty(t, buf.String())

	l.Info("rendered", "template", "hello.txt")
	assert.Contains(t, buf.String(), "template=hello.txt")
}

func TestTintLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewTint(&buf, Warn)
	l.Info("skip")
	l.Warn("careful", "engine", "pongo2")
	out := buf.String()
	assert.NotContains(t, out, "skip")
	assert.True(t, strings.Contains(out, "careful"))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   Debug,
		"WARNING": Warn,
		"error":   Error,
		"off":     Silent,
		"":        Info,
		"bogus":   Info,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestOrDiscard(t *testing.T) {
	assert.Equal(t, Discard, OrDiscard(nil))
	l := New()
	assert.Equal(t, l, OrDiscard(l))
}
