// Package logger provides a context-carried structured logger for pgsample.
//
// Unlike a global logger singleton, every component that needs to emit
// diagnostics receives its logger through a context.Context value set up
// once at process start. This keeps components testable: a test can inject
// a capturing handler and assert on emitted records without touching global
// state.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey struct{}

var key contextKey

// New builds the production logger: structured text to stderr, optionally
// also tee'd to a log file, at the requested level.
func New(level slog.Level, file io.Writer) *slog.Logger {
	var w io.Writer = os.Stderr
	if file != nil {
		w = io.MultiWriter(os.Stderr, file)
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// NewCapturing builds a logger backed by an in-memory handler, for tests
// that want to assert on emitted records instead of parsing stderr.
func NewCapturing(w io.Writer) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler)
}

// WithContext returns a child context carrying logger as the active logger.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, key, logger)
}

// FromContext returns the logger stashed in ctx, or a discard logger if
// none was set — components must never nil-check this, just call it.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(key).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
