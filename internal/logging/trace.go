package logging

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type traceKey struct{}

// WithTrace returns a context carrying the given trace id. Every
// indexing or search request gets one at the adapter boundary so that
// all events it causes can be correlated.
func WithTrace(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// NewTrace returns a context carrying a fresh trace id.
func NewTrace(ctx context.Context) context.Context {
	return WithTrace(ctx, uuid.NewString())
}

// Trace extracts the trace id from the context, or "" if none was set.
func Trace(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}

// Event emits one structured observability event. The event name is the
// record message ("index.file.start", "cache.hit", "lock.denied", ...)
// and the trace id is attached when present.
func Event(ctx context.Context, name string, args ...any) {
	if id := Trace(ctx); id != "" {
		args = append(args, slog.String("trace_id", id))
	}
	slog.Default().Log(ctx, slog.LevelInfo, name, args...)
}

// EventDebug is Event at debug level, for high-volume events such as
// per-read cache hits and misses.
func EventDebug(ctx context.Context, name string, args ...any) {
	if id := Trace(ctx); id != "" {
		args = append(args, slog.String("trace_id", id))
	}
	slog.Default().Log(ctx, slog.LevelDebug, name, args...)
}
