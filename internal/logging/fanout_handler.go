package logging

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler writes each record to every handler that accepts its level.
// The console and log-file handlers share one LevelVar, so in practice both
// accept or both reject.
type teeHandler []slog.Handler

// TeeHandler combines handlers, dropping nils.
func TeeHandler(handlers ...slog.Handler) slog.Handler {
	var tee teeHandler
	for _, h := range handlers {
		if h != nil {
			tee = append(tee, h)
		}
	}
	switch len(tee) {
	case 0:
		return NoopHandler{}
	case 1:
		return tee[0]
	default:
		return tee
	}
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, record.Level) {
			errs = append(errs, h.Handle(ctx, record.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t teeHandler) each(fn func(slog.Handler) slog.Handler) teeHandler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = fn(h)
	}
	return out
}
