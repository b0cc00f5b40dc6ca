package http

import (
	"net/http"

	apperrors "annadata/internal/errors"
)

// MetricsHandler serves the Prometheus exposition of the OTel meter provider
type MetricsHandler struct {
	exposition   http.Handler
	errorHandler *apperrors.ErrorHandler
}

// NewMetricsHandler wraps exposition, which is nil when the metric exporter
// is disabled
func NewMetricsHandler(exposition http.Handler, errorHandler *apperrors.ErrorHandler) *MetricsHandler {
	return &MetricsHandler{exposition: exposition, errorHandler: errorHandler}
}

// ServeHTTP handles GET /metrics
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.exposition == nil {
		h.errorHandler.NotFound(w, r)
		return
	}
	h.exposition.ServeHTTP(w, r)
}
