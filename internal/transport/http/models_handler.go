package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "annadata/internal/errors"
	"annadata/internal/middleware"
	"annadata/internal/registry"
)

// ModelsHandler exposes the model registry
type ModelsHandler struct {
	service      ModelService
	query        *middleware.QueryParamValidator
	logger       *slog.Logger
	errorHandler *apperrors.ErrorHandler
}

// NewModelsHandler creates a models handler
func NewModelsHandler(service ModelService, logger *slog.Logger, errorHandler *apperrors.ErrorHandler) *ModelsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelsHandler{
		service:      service,
		query:        middleware.NewQueryParamValidator(errorHandler),
		logger:       logger.With(slog.String("handler", "models")),
		errorHandler: errorHandler,
	}
}

// Routes returns the registry routes, mounted at /api/models
func (h *ModelsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/", h.List)
	r.Get("/summary", h.Summary)
	r.Get("/best", h.Best)
	r.Route("/{name}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/deprecate", h.Deprecate)
	})
	return r
}

// ModelListResponse wraps a registry listing
type ModelListResponse struct {
	Models []registry.Entry `json:"models"`
	Count  int              `json:"count"`
}

// List handles GET /api/models?dataset=&status=
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	dataset, ok := h.query.ValidateEnum(w, r, "dataset", []string{"weather", "crop"}, "")
	if !ok {
		return
	}
	status, ok := h.query.ValidateEnum(w, r, "status",
		[]string{registry.StatusActive, registry.StatusDeprecated}, registry.StatusActive)
	if !ok {
		return
	}

	entries, err := h.service.List(r.Context(), dataset, status)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if entries == nil {
		entries = []registry.Entry{}
	}
	render.JSON(w, r, ModelListResponse{Models: entries, Count: len(entries)})
}

// Summary handles GET /api/models/summary
func (h *ModelsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Summary(r.Context()))
}

// Best handles GET /api/models/best?dataset=&metric=
func (h *ModelsHandler) Best(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entry, err := h.service.Best(r.Context(), q.Get("dataset"), q.Get("metric"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, entry)
}

// Get handles GET /api/models/{name}
func (h *ModelsHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, entry)
}

// Deprecate handles POST /api/models/{name}/deprecate
func (h *ModelsHandler) Deprecate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	entry, err := h.service.Deprecate(r.Context(), name)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "model deprecated",
		slog.String("model", name),
		slog.String("dataset", entry.Dataset),
		slog.String("request_id", middleware.GetReqID(r.Context())))
	render.JSON(w, r, entry)
}
