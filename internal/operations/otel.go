package operations

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"annadata/internal/infrastructure"
)

// RunTracer wraps runs and steps in spans and keeps the run gauges current.
type RunTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.TrainingMetrics
}

// NewRunTracer returns a tracer; a nil tracer records nothing
func NewRunTracer(tracer trace.Tracer, metrics *infrastructure.TrainingMetrics) *RunTracer {
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer(infrastructure.MeterName)
	}
	return &RunTracer{tracer: tracer, metrics: metrics}
}

// TraceRun opens the span of a whole run
func (rt *RunTracer) TraceRun(ctx context.Context, runID, dataset, policy string) (context.Context, trace.Span) {
	ctx, span := rt.tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.dataset", dataset),
			attribute.String("run.leakage_policy", policy),
		),
	)
	if rt.metrics != nil {
		rt.metrics.ActiveRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("dataset", dataset)))
	}
	return ctx, span
}

// RecordRunCompletion closes the run span and records the run metrics
func (rt *RunTracer) RecordRunCompletion(ctx context.Context, span trace.Span, dataset string, duration time.Duration, err error) {
	defer span.End()

	if rt.metrics != nil {
		rt.metrics.ActiveRuns.Add(ctx, -1, metric.WithAttributes(attribute.String("dataset", dataset)))
	}
	infrastructure.RecordRun(ctx, rt.metrics, dataset, duration, err)

	span.SetAttributes(attribute.Float64("run.duration_seconds", duration.Seconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "run completed")
}

// TraceStep opens the span of one step
func (rt *RunTracer) TraceStep(ctx context.Context, runID, stepID string) (context.Context, trace.Span) {
	return rt.tracer.Start(ctx, "pipeline.step."+stepID,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("step.id", stepID),
		),
	)
}

// RecordStepCompletion closes a step span and records the step metrics
func (rt *RunTracer) RecordStepCompletion(ctx context.Context, span trace.Span, dataset, stepID string, duration time.Duration, err error) {
	defer span.End()

	infrastructure.RecordStep(ctx, rt.metrics, dataset, stepID, duration, err)
	span.SetAttributes(attribute.Float64("step.duration_seconds", duration.Seconds()))
	if err != nil {
		span.RecordError(err, trace.WithAttributes(attribute.String("step.id", stepID)))
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "step completed")
}

// RecordRows counts records fed into the feature engine
func (rt *RunTracer) RecordRows(ctx context.Context, dataset string, rows int) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RowsProcessed.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("dataset", dataset)))
}
