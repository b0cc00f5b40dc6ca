package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "annadata/internal/errors"
	"annadata/internal/middleware"
	"annadata/internal/operations"
)

// RunsHandler starts pipeline runs and reports on them
type RunsHandler struct {
	service      RunService
	validator    *middleware.ValidationMiddleware
	logger       *slog.Logger
	errorHandler *apperrors.ErrorHandler
}

// NewRunsHandler creates a runs handler
func NewRunsHandler(service RunService, validator *middleware.ValidationMiddleware, logger *slog.Logger, errorHandler *apperrors.ErrorHandler) *RunsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunsHandler{
		service:      service,
		validator:    validator,
		logger:       logger.With(slog.String("handler", "runs")),
		errorHandler: errorHandler,
	}
}

// Routes returns the run routes, mounted at /api/runs
func (h *RunsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.With(h.validator.ValidateRequest).Post("/", h.Start)
	r.Get("/last", h.Last)
	return r
}

// Start handles POST /api/runs. The body is optional; omitted fields fall
// back to the pipeline configuration.
func (h *RunsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req operations.RunRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		h.errorHandler.HandleError(w, r, apperrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	started, err := h.service.Start(r.Context(), req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "pipeline run accepted",
		slog.String("run_id", started.RunID),
		slog.String("dataset", req.Dataset),
		slog.String("request_id", middleware.GetReqID(r.Context())))

	w.Header().Set("Location", "/api/runs/last")
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, started)
}

// Last handles GET /api/runs/last
func (h *RunsHandler) Last(w http.ResponseWriter, r *http.Request) {
	manifest, err := h.service.Last(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, manifest)
}
