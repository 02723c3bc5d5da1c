package log

import (
	"fmt"
	"strings"
)

// Logger is the structured logger used across the client packages.
type Logger interface {
	// Debug logs low-level details such as individual frames and retries.
	Debug(msg string, keysAndValues ...any)
	// Info logs routine progress: connects, disconnects, completed flows.
	Info(msg string, keysAndValues ...any)
	// Warn logs unexpected but recoverable situations.
	Warn(msg string, keysAndValues ...any)
	// Error logs failures that abort the current operation.
	Error(msg string, keysAndValues ...any)
	// Fatal logs an unrecoverable failure. Implementations may exit.
	Fatal(msg string, keysAndValues ...any)
	// WithKV returns a logger that attaches the pair to every entry.
	WithKV(key string, value any) Logger
	// GetAllKV returns the pairs attached through WithKV.
	GetAllKV() []any
	// WithName returns a logger scoped to a component name.
	WithName(name string) Logger
	// Name returns the component name.
	Name() string
	// AddCallerSkip returns a logger that skips extra frames when reporting the caller.
	AddCallerSkip(skip int) Logger
}

// Level is the severity of a log entry.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// ParseLevel converts a case-insensitive level name.
func ParseLevel(s string) (Level, error) {
	switch lvl := Level(strings.ToLower(strings.TrimSpace(s))); lvl {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal:
		return lvl, nil
	case "warning":
		return LevelWarn, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

// SpanEventRecorder mirrors log entries onto a tracing span.
type SpanEventRecorder interface {
	TraceID() string
	SpanID() string

	// RecordEvent adds an event with the given key-value attributes.
	RecordEvent(name string, keysAndValues ...any)
	// RecordError adds an event and marks the span as failed.
	RecordError(name string, keysAndValues ...any)
}
