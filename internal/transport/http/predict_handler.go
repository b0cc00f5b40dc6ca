package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	apperrors "annadata/internal/errors"
	"annadata/internal/infrastructure"
	"annadata/internal/middleware"
	"annadata/internal/services"
)

// PredictHandler serves point estimates for raw records
type PredictHandler struct {
	service      PredictService
	validator    *middleware.ValidationMiddleware
	tracer       trace.Tracer
	logger       *slog.Logger
	errorHandler *apperrors.ErrorHandler
}

// NewPredictHandler creates a predict handler. A nil tracer traces nothing.
func NewPredictHandler(service PredictService, validator *middleware.ValidationMiddleware, tracer trace.Tracer, logger *slog.Logger, errorHandler *apperrors.ErrorHandler) *PredictHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer(infrastructure.MeterName)
	}
	return &PredictHandler{
		service:      service,
		validator:    validator,
		tracer:       tracer,
		logger:       logger.With(slog.String("handler", "predict")),
		errorHandler: errorHandler,
	}
}

// Routes returns the prediction routes, mounted at /api/predict
func (h *PredictHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Use(h.validator.ValidateRequest)
	r.Post("/{dataset}", h.Predict)
	return r
}

// Predict handles POST /api/predict/{dataset}
func (h *PredictHandler) Predict(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")

	var req services.PredictRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "predict",
		trace.WithAttributes(
			attribute.String("dataset", dataset),
			attribute.String("model", req.Model),
			attribute.Int("records", len(req.Records)),
		))
	defer span.End()

	resp, err := h.service.Predict(ctx, dataset, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.errorHandler.HandleError(w, r, err)
		return
	}
	span.SetAttributes(attribute.String("resolved_model", resp.Model))

	h.logger.DebugContext(ctx, "prediction served",
		slog.String("dataset", dataset),
		slog.String("model", resp.Model),
		slog.Int("records", len(resp.Predictions)))
	render.JSON(w, r, resp)
}
