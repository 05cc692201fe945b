// Package logger provides the structured logging interface used across tmplhub.
// Components accept a Logger and fall back to Discard when none is given.
// Adapters exist for the standard log package and for log/slog (optionally
// colorized through tint).
package logger

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	// Silent suppresses all log output.
	Silent LogLevel = iota + 1
	// Error only logs error messages.
	Error
	// Warn logs warnings and errors.
	Warn
	// Info logs informational messages, warnings, and errors.
	Info
	// Debug logs all messages including debug information.
	Debug
)

// String returns the lowercase name of the level.
func (l LogLevel) String() string {
	switch l {
	case Silent:
		return "silent"
	case Error:
		return "error"
	case Warn:
		return "warn"
	case Info:
		return "info"
	case Debug:
		return "debug"
	default:
		return "unknown"
	}
}

// ParseLevel converts a textual log level into a LogLevel. Unknown values map to Info.
func ParseLevel(value string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "silent", "off", "none":
		return Silent
	case "error":
		return Error
	case "warn", "warning":
		return Warn
	case "debug":
		return Debug
	default:
		return Info
	}
}

// Logger is the interface that wraps the basic logging methods.
// Arguments after the message are alternating key/value pairs.
type Logger interface {
	// LogMode sets the log level and returns a new logger instance.
	LogMode(level LogLevel) Logger
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// StandardLogger writes through the standard log package.
type StandardLogger struct {
	logger *log.Logger
	level  LogLevel
	prefix string
}

// NewStandardLogger creates a new logger with the given writer and configuration.
func NewStandardLogger(writer *log.Logger, level LogLevel, prefix string) Logger {
	return &StandardLogger{
		logger: writer,
		level:  level,
		prefix: prefix,
	}
}

// LogMode sets the log level and returns a new logger instance.
func (l *StandardLogger) LogMode(level LogLevel) Logger {
	newLogger := *l
	newLogger.level = level
	return &newLogger
}

// Info logs an informational message.
func (l *StandardLogger) Info(msg string, args ...any) {
	if l.level >= Info {
		l.logger.Print(l.formatLog("INFO", msg, args...))
	}
}

// Warn logs a warning message.
func (l *StandardLogger) Warn(msg string, args ...any) {
	if l.level >= Warn {
		l.logger.Print(l.formatLog("WARN", msg, args...))
	}
}

// Error logs an error message.
func (l *StandardLogger) Error(msg string, args ...any) {
	if l.level >= Error {
		l.logger.Print(l.formatLog("ERROR", msg, args...))
	}
}

// Debug logs a debug message.
func (l *StandardLogger) Debug(msg string, args ...any) {
	if l.level >= Debug {
		l.logger.Print(l.formatLog("DEBUG", msg, args...))
	}
}

func (l *StandardLogger) formatLog(level, msg string, args ...any) string {
	var b strings.Builder
	if l.prefix != "" {
		b.WriteString(l.prefix)
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	for i := 0; i < len(args); i += 2 {
		var val any = "(no value)"
		if i+1 < len(args) {
			val = args[i+1]
		}
		fmt.Fprintf(&b, " %v=%v", args[i], val)
	}
	return b.String()
}

// SlogLogger adapts a *slog.Logger to the Logger interface.
type SlogLogger struct {
	logger *slog.Logger
	level  LogLevel
}

// NewSlog wraps an existing slog logger. Level filtering happens both here and
// in the slog handler; the stricter one wins.
func NewSlog(l *slog.Logger, level LogLevel) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{logger: l, level: level}
}

// NewTint builds a colorized slog logger writing to w.
func NewTint(w io.Writer, level LogLevel) Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := tint.NewHandler(w, &tint.Options{
		Level: slogLevel(level),
	})
	return NewSlog(slog.New(handler), level)
}

// LogMode returns a copy filtering at level.
func (l *SlogLogger) LogMode(level LogLevel) Logger {
	return &SlogLogger{logger: l.logger, level: level}
}

func (l *SlogLogger) Info(msg string, args ...any) {
	if l.level >= Info {
		l.logger.Info(msg, args...)
	}
}

func (l *SlogLogger) Warn(msg string, args ...any) {
	if l.level >= Warn {
		l.logger.Warn(msg, args...)
	}
}

func (l *SlogLogger) Error(msg string, args ...any) {
	if l.level >= Error {
		l.logger.Error(msg, args...)
	}
}

func (l *SlogLogger) Debug(msg string, args ...any) {
	if l.level >= Debug {
		l.logger.Debug(msg, args...)
	}
}

func slogLevel(level LogLevel) slog.Level {
	switch level {
	case Debug:
		return slog.LevelDebug
	case Warn:
		return slog.LevelWarn
	case Error, Silent:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// discardLogger is a logger that discards all output.
type discardLogger struct{}

func (d *discardLogger) LogMode(LogLevel) Logger { return d }
func (d *discardLogger) Info(string, ...any)     {}
func (d *discardLogger) Warn(string, ...any)     {}
func (d *discardLogger) Error(string, ...any)    {}
func (d *discardLogger) Debug(string, ...any)    {}

// Discard is a logger that discards all output.
var Discard Logger = &discardLogger{}

// OrDiscard returns l, or Discard when l is nil.
func OrDiscard(l Logger) Logger {
	if l == nil {
		return Discard
	}
	return l
}

// New returns a default logger that writes to stdout.
func New() Logger {
	return NewStandardLogger(log.New(os.Stdout, "", log.LstdFlags), Warn, "[tmplhub]")
}
