package logging

import (
	"context"
	"log/slog"
	"time"
)

type Attr = slog.Attr

func Any(key string, value any) Attr { return slog.Any(key, value) }

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

func Time(key string, value time.Time) Attr { return slog.Time(key, value) }

// Alert flags a log line as operator-visible; value names the alert type.
func Alert(value string) Attr { return slog.String(FieldAlert, value) }

func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

func Args(attrs ...Attr) []any {
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return args
}

func NewNop() *slog.Logger {
	return slog.New(NoopHandler{})
}

// NewComponentLogger creates a logger with a standardized component attribute.
// If logger is nil, a no-op logger is used as the base.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// withDefaults appends event_type and error_hint unless the caller set them.
func withDefaults(attrs []Attr, eventType string) []any {
	var hasEvent, hasHint bool
	for _, a := range attrs {
		switch a.Key {
		case FieldEventType:
			hasEvent = true
		case FieldErrorHint:
			hasHint = true
		}
	}
	if !hasEvent {
		attrs = append(attrs, String(FieldEventType, eventType))
	}
	if !hasHint {
		attrs = append(attrs, String(FieldErrorHint, "check logs for details"))
	}
	return Args(attrs...)
}

// WarnWithContext logs a warning that always carries event_type and error_hint.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger != nil {
		logger.Warn(msg, withDefaults(attrs, eventType)...)
	}
}

// ErrorWithContext logs an error that always carries event_type and error_hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger != nil {
		logger.Error(msg, withDefaults(attrs, eventType)...)
	}
}

// NoopHandler discards all log output.
type NoopHandler struct{}

func (NoopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (NoopHandler) Handle(context.Context, slog.Record) error { return nil }

func (NoopHandler) WithAttrs([]slog.Attr) slog.Handler { return NoopHandler{} }

func (NoopHandler) WithGroup(string) slog.Handler { return NoopHandler{} }
