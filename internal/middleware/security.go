package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// AuditLog records every state-changing request (anything but GET, HEAD and
// OPTIONS) together with its outcome. Model deprecation and run starts go
// through here.
func AuditLog(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.InfoContext(r.Context(), "audit log",
				"event_type", "api_mutation",
				"request_id", GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", GetRealIP(r),
				"status", ww.Status(),
				"duration", time.Since(start).String(),
			)
		})
	}
}
