package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"annadata/internal/config"
)

// MeterName is the instrumentation scope of every tracer and meter in annadata
const MeterName = "annadata"

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	TraceExporter  string // "stdout", "none"
	MetricExporter string // "prometheus", "none"
	SampleRatio    float64
	// TraceWriter receives stdout spans; nil means os.Stdout
	TraceWriter io.Writer
}

// OTelConfigFrom adapts the telemetry section of the application config.
func OTelConfigFrom(cfg config.TelemetryConfig) *OTelConfig {
	oc := &OTelConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: config.AppVersion,
		Environment:    cfg.Environment,
		TraceExporter:  cfg.TraceExporter,
		MetricExporter: cfg.MetricExporter,
		SampleRatio:    cfg.SampleRatio,
	}
	if !cfg.Enabled {
		oc.TraceExporter = "none"
		oc.MetricExporter = "none"
	}
	return oc
}

// OTelProviders holds the OpenTelemetry providers. Tracer and Meter are
// always usable; they are no-ops when the matching exporter is "none".
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// InitializeOTel builds tracer and meter providers. Nothing is installed globally.
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = &OTelConfig{ServiceName: MeterName, TraceExporter: "none", MetricExporter: "none"}
	}

	ctx := context.Background()
	providers := &OTelProviders{
		Tracer: tracenoop.NewTracerProvider().Tracer(MeterName),
		Meter:  metricnoop.NewMeterProvider().Meter(MeterName),
		Logger: logger,
	}

	res, err := createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := initializeTracing(ctx, cfg, res, providers); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if err := initializeMetrics(ctx, cfg, res, providers); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	logger.InfoContext(ctx, "OpenTelemetry initialization complete",
		slog.String("service", cfg.ServiceName),
		slog.String("trace_exporter", cfg.TraceExporter),
		slog.String("metric_exporter", cfg.MetricExporter))

	return providers, nil
}

// createResource creates the OpenTelemetry resource
func createResource(cfg *OTelConfig) (*resource.Resource, error) {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		attribute.String("service.instance.id", generateInstanceID()),
	), nil
}

// initializeTracing sets up OpenTelemetry tracing
func initializeTracing(ctx context.Context, cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.TraceExporter {
	case "stdout":
		w := cfg.TraceWriter
		if w == nil {
			w = os.Stdout
		}
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w))
	case "none", "":
		return nil
	default:
		return fmt.Errorf("unsupported trace exporter: %s", cfg.TraceExporter)
	}

	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
	)

	providers.TracerProvider = tp
	providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(cfg.ServiceVersion))

	providers.Logger.DebugContext(ctx, "Tracing initialized",
		slog.String("exporter", cfg.TraceExporter),
		slog.Float64("sample_ratio", cfg.SampleRatio))

	return nil
}

// initializeMetrics sets up OpenTelemetry metrics on a private Prometheus registry
func initializeMetrics(ctx context.Context, cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	switch cfg.MetricExporter {
	case "prometheus":
		registry := promclient.NewRegistry()
		exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
		if err != nil {
			return fmt.Errorf("failed to create prometheus exporter: %w", err)
		}

		providers.PrometheusHTTP = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)

		providers.MeterProvider = mp
		providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
	case "none", "":
		return nil
	default:
		return fmt.Errorf("unsupported metric exporter: %s", cfg.MetricExporter)
	}

	providers.Logger.DebugContext(ctx, "Metrics initialized",
		slog.String("exporter", cfg.MetricExporter))

	return nil
}

// TrainingMetrics holds the pipeline and serving instruments
type TrainingMetrics struct {
	// Pipeline
	RunsTotal     metric.Int64Counter
	RunDuration   metric.Float64Histogram
	ActiveRuns    metric.Int64UpDownCounter
	StepDuration  metric.Float64Histogram
	RowsProcessed metric.Int64Counter
	StepErrors    metric.Int64Counter

	// Estimators
	FitDuration    metric.Float64Histogram
	FitFailures    metric.Int64Counter
	TestMSE        metric.Float64Gauge
	TestR2         metric.Float64Gauge
	ObjectiveEvals metric.Int64Counter

	// Registry
	RegistryWrites metric.Int64Counter

	// Serving
	PredictionsTotal    metric.Int64Counter
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
}

// CreateTrainingMetrics registers the application instruments on meter
func CreateTrainingMetrics(meter metric.Meter) (*TrainingMetrics, error) {
	m := &TrainingMetrics{}
	var err error

	if m.RunsTotal, err = meter.Int64Counter("pipeline_runs_total",
		metric.WithDescription("Total number of pipeline runs")); err != nil {
		return nil, err
	}
	if m.RunDuration, err = meter.Float64Histogram("pipeline_run_duration_seconds",
		metric.WithDescription("Pipeline run duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.ActiveRuns, err = meter.Int64UpDownCounter("pipeline_active_runs",
		metric.WithDescription("Number of pipeline runs in progress")); err != nil {
		return nil, err
	}
	if m.StepDuration, err = meter.Float64Histogram("pipeline_step_duration_seconds",
		metric.WithDescription("Pipeline step duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.RowsProcessed, err = meter.Int64Counter("pipeline_rows_processed_total",
		metric.WithDescription("Rows loaded into the feature engine")); err != nil {
		return nil, err
	}
	if m.StepErrors, err = meter.Int64Counter("pipeline_step_errors_total",
		metric.WithDescription("Total number of failed pipeline steps")); err != nil {
		return nil, err
	}
	if m.FitDuration, err = meter.Float64Histogram("estimator_fit_duration_seconds",
		metric.WithDescription("Estimator fit duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.FitFailures, err = meter.Int64Counter("estimator_fit_failures_total",
		metric.WithDescription("Total number of estimators that failed to train")); err != nil {
		return nil, err
	}
	if m.TestMSE, err = meter.Float64Gauge("estimator_test_mse",
		metric.WithDescription("Held-out mean squared error of the latest fit")); err != nil {
		return nil, err
	}
	if m.TestR2, err = meter.Float64Gauge("estimator_test_r2",
		metric.WithDescription("Held-out coefficient of determination of the latest fit")); err != nil {
		return nil, err
	}
	if m.ObjectiveEvals, err = meter.Int64Counter("alternate_objective_evaluations_total",
		metric.WithDescription("Objective evaluations spent by the iterative optimiser")); err != nil {
		return nil, err
	}
	if m.RegistryWrites, err = meter.Int64Counter("registry_writes_total",
		metric.WithDescription("Registry document writes")); err != nil {
		return nil, err
	}
	if m.PredictionsTotal, err = meter.Int64Counter("predictions_total",
		metric.WithDescription("Total number of rows predicted")); err != nil {
		return nil, err
	}
	if m.HTTPRequestsTotal, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total number of HTTP requests")); err != nil {
		return nil, err
	}
	if m.HTTPRequestDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}

	return m, nil
}

// Shutdown gracefully shuts down OpenTelemetry providers
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error

	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}

	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("opentelemetry shutdown errors: %v", errs)
	}

	p.Logger.DebugContext(ctx, "OpenTelemetry shutdown complete")
	return nil
}

// generateInstanceID generates a unique instance identifier
func generateInstanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}

// TraceIDFromContext extracts trace ID from context for logging correlation
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}

// RecordError records an error on the current span
func RecordError(ctx context.Context, err error, options ...trace.EventOption) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.RecordError(err, options...)
	span.SetStatus(codes.Error, err.Error())
}

// RecordRun records the outcome of a whole pipeline run
func RecordRun(ctx context.Context, m *TrainingMetrics, dataset string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("dataset", dataset),
		attribute.String("status", status),
	)
	m.RunsTotal.Add(ctx, 1, attrs)
	m.RunDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordStep records the duration and outcome of one pipeline step
func RecordStep(ctx context.Context, m *TrainingMetrics, dataset, stepID string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("dataset", dataset),
		attribute.String("step.id", stepID),
	}
	m.StepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if err != nil {
		m.StepErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordFit records a single estimator fit and its held-out scores
func RecordFit(ctx context.Context, m *TrainingMetrics, dataset, estimator string, duration time.Duration, testMSE, testR2 float64, err error) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("dataset", dataset),
		attribute.String("estimator", estimator),
	)
	m.FitDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.FitFailures.Add(ctx, 1, attrs)
		return
	}
	m.TestMSE.Record(ctx, testMSE, attrs)
	m.TestR2.Record(ctx, testR2, attrs)
}

// RecordPredictions counts rows served by a model
func RecordPredictions(ctx context.Context, m *TrainingMetrics, dataset, model string, rows int) {
	if m == nil {
		return
	}
	m.PredictionsTotal.Add(ctx, int64(rows), metric.WithAttributes(
		attribute.String("dataset", dataset),
		attribute.String("model", model),
	))
}

// RecordRegistryWrite counts one registry document write
func RecordRegistryWrite(ctx context.Context, m *TrainingMetrics, op string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.RegistryWrites.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", status),
	))
}

// RecordObjectiveEvals counts optimiser objective evaluations for one fit
func RecordObjectiveEvals(ctx context.Context, m *TrainingMetrics, dataset string, evals int) {
	if m == nil {
		return
	}
	m.ObjectiveEvals.Add(ctx, int64(evals), metric.WithAttributes(attribute.String("dataset", dataset)))
}
