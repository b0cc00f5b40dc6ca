package infrastructure

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	// TraceIDContextKey carries the request or run trace ID
	TraceIDContextKey contextKey = "trace_id"
	// RunIDContextKey carries the pipeline run a log line belongs to
	RunIDContextKey contextKey = "run_id"
)

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDContextKey, traceID)
}

// GetTraceID returns the context's trace ID, or ""
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(TraceIDContextKey).(string)
	return id
}

// EnsureTraceID keeps an existing trace ID and otherwise assigns a fresh UUID
func EnsureTraceID(ctx context.Context) context.Context {
	if GetTraceID(ctx) != "" {
		return ctx
	}
	return WithTraceID(ctx, uuid.New().String())
}

// WithRunID tags the context with a pipeline run ID
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDContextKey, runID)
}

// GetRunID returns the context's run ID, or ""
func GetRunID(ctx context.Context) string {
	id, _ := ctx.Value(RunIDContextKey).(string)
	return id
}
