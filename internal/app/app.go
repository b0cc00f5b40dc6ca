package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"annadata/internal/config"
	apperrors "annadata/internal/errors"
	"annadata/internal/estimators"
	"annadata/internal/exporter"
	"annadata/internal/infrastructure"
	customMiddleware "annadata/internal/middleware"
	"annadata/internal/operations"
	"annadata/internal/registry"
	"annadata/internal/services"
	handlers "annadata/internal/transport/http"
	"annadata/internal/variational"
	ws "annadata/internal/websocket"
)

// BuildTime is set at link time with -ldflags "-X annadata/internal/app.BuildTime=..."
var BuildTime = "unknown"

// Application represents the annadata server and everything it owns
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	Paths         *config.Paths
	Registry      *registry.Registry
	Codec         *estimators.Codec
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.TrainingMetrics
	WebSocketHub  *ws.Hub
	Services      *ServiceContainer

	errorHandler *apperrors.ErrorHandler
	validator    *customMiddleware.ValidationMiddleware
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	Health  *services.HealthService
	Models  *services.ModelService
	Predict *services.PredictService
	Runs    *services.RunService
}

// NewApplication wires the server from cfg. The caller owns logger.
func NewApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("application starting",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.String("build_time", BuildTime))

	paths, err := config.NewPaths(cfg.Paths)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(logger); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	metrics, err := infrastructure.CreateTrainingMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	reg, err := registry.Open(paths.RegistryFile, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to open model registry: %w", err)
	}

	codec := estimators.NewCodec()
	variational.RegisterCodec(codec)

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		Paths:         paths,
		Registry:      reg,
		Codec:         codec,
		OTelProviders: otelProviders,
		Metrics:       metrics,
		errorHandler:  apperrors.NewErrorHandler(logger, false),
	}
	app.validator = customMiddleware.NewValidationMiddleware(logger, app.errorHandler)

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.Router = app.setupRouter()
	app.Server = app.createServer()

	return app, nil
}

// initializeServices builds the progress hub, the pipeline manager and the
// services the handlers depend on
func (app *Application) initializeServices() error {
	streamMetrics, err := ws.NewStreamMetrics(app.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create stream metrics: %w", err)
	}
	app.WebSocketHub = ws.NewHub(app.Logger, streamMetrics)
	app.WebSocketHub.Start()

	manager := operations.NewManager(operations.Deps{
		Config:   app.Config,
		Paths:    app.Paths,
		Registry: app.Registry,
		Codec:    app.Codec,
		Exporter: exporter.New(app.Paths, app.Logger),
		Sink:     ws.NewProgressAdapter(app.WebSocketHub, app.Logger),
		Logger:   app.Logger,
		Metrics:  app.Metrics,
		Tracer:   app.OTelProviders.Tracer,
	})

	runs := services.NewRunService(manager, app.Logger)
	app.Services = &ServiceContainer{
		Runs:    runs,
		Models:  services.NewModelService(app.Registry, app.Logger),
		Predict: services.NewPredictService(app.Config.Features, app.Paths, app.Registry, app.Codec, app.Metrics, app.Logger),
		Health:  services.NewHealthService(config.AppVersion, BuildTime, app.Paths, app.Registry, runs, app.WebSocketHub, app.Logger),
	}

	app.Logger.Info("services initialized",
		slog.String("registry", app.Paths.RegistryFile),
		slog.String("artifacts", app.Paths.ArtifactsDir))
	return nil
}

// setupRouter configures the Chi router with all routes and middleware
func (app *Application) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	// The progress stream needs the raw ResponseWriter for the upgrade, so it
	// stays outside the timeout and tracing chain.
	r.Handle("/ws", ws.NewHandler(app.WebSocketHub, app.Config.Server.AllowedOrigins, app.Logger))

	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.NewOTelMiddleware(app.OTelProviders.Tracer, app.Metrics, app.Logger).Handler)
		r.Use(customMiddleware.StructuredLogger(app.Logger))
		r.Use(customMiddleware.Recoverer(app.Logger))
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.AuditLog(app.Logger))
		if app.Config.Server.RateLimitRPS > 0 {
			r.Use(customMiddleware.NewRateLimiter(app.Config.Server.RateLimitRPS, app.Config.Server.RateLimitBurst, app.Logger).Handler)
		}

		r.Route("/api", app.setupAPIRoutes)
		r.Handle("/metrics", handlers.NewMetricsHandler(app.OTelProviders.PrometheusHTTP, app.errorHandler))
	})

	r.NotFound(app.errorHandler.NotFound)
	r.MethodNotAllowed(app.errorHandler.MethodNotAllowed)

	return r
}

// setupAPIRoutes mounts the JSON API under /api
func (app *Application) setupAPIRoutes(r chi.Router) {
	r.Use(customMiddleware.Timeout(app.Config.Server.RequestTimeout, app.Logger))
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Use(customMiddleware.ContentTypeValidator(app.errorHandler, "application/json"))

	health := handlers.NewHealthHandler(app.Services.Health, app.Logger)
	r.Mount("/health", health.Routes())
	r.Get("/version", health.Version)

	r.Mount("/models", handlers.NewModelsHandler(app.Services.Models, app.Logger, app.errorHandler).Routes())
	r.Mount("/predict", handlers.NewPredictHandler(app.Services.Predict, app.validator, app.OTelProviders.Tracer, app.Logger, app.errorHandler).Routes())
	r.Mount("/runs", handlers.NewRunsHandler(app.Services.Runs, app.validator, app.Logger, app.errorHandler).Routes())
}

// createServer creates the HTTP server
func (app *Application) createServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", app.Config.Server.Port),
		Handler:      app.Router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}
}

// Start begins serving in the background. A listener failure cancels ctx
// through cancel.
func (app *Application) Start(ctx context.Context, cancel context.CancelFunc) {
	go func() {
		app.Logger.InfoContext(ctx, "HTTP server listening", slog.String("addr", app.Server.Addr))
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.ErrorContext(ctx, "HTTP server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()
}

// Stop drains requests, waits for an in-flight run, then stops the hub and
// flushes telemetry. Every stage runs even when an earlier one fails.
func (app *Application) Stop(ctx context.Context) error {
	timeout := app.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var errs []error
	if app.Server != nil {
		if err := app.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}
	if app.Services != nil && app.Services.Runs != nil {
		if err := app.Services.Runs.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("run service: %w", err))
		}
	}
	if app.WebSocketHub != nil {
		app.WebSocketHub.Stop()
	}
	if app.OTelProviders != nil {
		if err := app.OTelProviders.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}

	app.Logger.Info("application stopped")
	return errors.Join(errs...)
}

// Run serves until SIGINT or SIGTERM, then shuts down
func (app *Application) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app.Start(ctx, cancel)
	<-ctx.Done()

	app.Logger.Info("shutdown signal received")
	return app.Stop(context.Background())
}
