package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "annadata/internal/errors"
	"annadata/internal/infrastructure"
	"annadata/internal/shared/testutil"
)

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetReqID(r.Context())
		assert.Equal(t, seen, infrastructure.GetTraceID(r.Context()))
	}))

	t.Run("reuses caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set(RequestIDHeader, "req-42")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "req-42", seen)
		assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
	})

	t.Run("generates id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})
}

func TestRecovererWritesProblem(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	h := RequestID(Recoverer(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("estimator exploded")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/runs", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeProblem(t, rec)
	assert.Equal(t, apperrors.TypeInternal, body["type"])
	assert.NotEmpty(t, body["trace_id"])
	testutil.AssertLogContains(t, logs, slog.LevelError, "panic recovered")
}

func TestRecovererRepanicsAbort(t *testing.T) {
	h := Recoverer(infrastructure.DiscardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(0, 1, infrastructure.DiscardLogger())
	h := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/models", nil))
	assert.Equal(t, http.StatusNoContent, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/models", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
	assert.Equal(t, apperrors.TypeRateLimit, decodeProblem(t, second)["type"])
}

func TestTimeout(t *testing.T) {
	t.Run("slow handler gets 504", func(t *testing.T) {
		h := Timeout(20*time.Millisecond, infrastructure.DiscardLogger())(
			http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				<-r.Context().Done()
			}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/predict/weather", nil))

		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
		assert.Equal(t, apperrors.TypeTimeout, decodeProblem(t, rec)["type"])
	})

	t.Run("written response is kept", func(t *testing.T) {
		h := Timeout(20*time.Millisecond, infrastructure.DiscardLogger())(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusAccepted)
				<-r.Context().Done()
			}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/runs", nil))
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestGetRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:5123"
	assert.Equal(t, "10.0.0.5", GetRealIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", GetRealIP(req))
}

func TestAuditLogSkipsReads(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	h := RequestID(AuditLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/models", nil))
	assert.False(t, logs.ContainsMessage("audit log"))

	req := httptest.NewRequest(http.MethodPost, "/api/models/lr_crop_v1/deprecate", nil)
	req.Header.Set(RequestIDHeader, "audit-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	testutil.AssertLogContains(t, logs, slog.LevelInfo, "audit log")
	testutil.AssertLogAttr(t, logs, "event_type", "api_mutation")
	testutil.AssertLogAttr(t, logs, "request_id", "audit-1")
}

func TestStructuredLogger(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	h := StructuredLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req = req.WithContext(infrastructure.WithTraceID(req.Context(), "trace-9"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	testutil.AssertLogContains(t, logs, slog.LevelInfo, "request completed")
	testutil.AssertLogAttr(t, logs, "trace_id", "trace-9")
}

func TestOTelMiddlewareRecordsRequests(t *testing.T) {
	providers, err := infrastructure.InitializeOTel(&infrastructure.OTelConfig{
		ServiceName:    "annadata-test",
		MetricExporter: "prometheus",
	}, infrastructure.DiscardLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := infrastructure.CreateTrainingMetrics(providers.Meter)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(NewOTelMiddleware(providers.Tracer, metrics, infrastructure.DiscardLogger()).Handler)
	r.Get("/api/models/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/models/lr_weather_v1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	scrape := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()
	assert.Contains(t, body, "http_requests_total")
	assert.True(t, strings.Contains(body, `route="/api/models/{name}"`), "route label uses the chi pattern")
}

func TestOTelMiddlewareWithoutProviders(t *testing.T) {
	h := NewOTelMiddleware(nil, nil, nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

type predictBody struct {
	Dataset string `json:"dataset" validate:"required,dataset"`
	Model   string `json:"model" validate:"omitempty,modelname"`
	Rows    int    `json:"rows" validate:"min=1,max=10"`
}

func TestValidateStruct(t *testing.T) {
	v := NewValidationMiddleware(infrastructure.DiscardLogger(), apperrors.NewErrorHandler(nil, false))

	assert.NoError(t, v.ValidateStruct(predictBody{Dataset: "crop", Model: "lr_crop_v1", Rows: 3}))

	err := v.ValidateStruct(predictBody{Dataset: "rice", Model: "../etc/passwd", Rows: 0})
	require.Error(t, err)
	apiErr, ok := err.(*apperrors.APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	fields := map[string]string{}
	for _, fe := range apiErr.Details.([]apperrors.ValidationError) {
		fields[fe.Field] = fe.Message
	}
	assert.Equal(t, "dataset must be weather or crop", fields["dataset"])
	assert.Equal(t, "model must be a valid model name", fields["model"])
	assert.Equal(t, "rows must be at least 1", fields["rows"])
}

func TestValidateRequest(t *testing.T) {
	v := NewValidationMiddleware(infrastructure.DiscardLogger(), apperrors.NewErrorHandler(infrastructure.DiscardLogger(), false))
	var got string
	h := v.ValidateRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got, _ = body["model"].(string)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/predict/crop", strings.NewReader(`{"model":"lr_crop_v1"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "lr_crop_v1", got)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/predict/crop", strings.NewReader(`{"model":`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", decodeProblem(t, rec)["error_code"])
}

func TestContentTypeValidator(t *testing.T) {
	h := ContentTypeValidator(apperrors.NewErrorHandler(infrastructure.DiscardLogger(), false), "application/json")(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader("dataset=crop"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestValidateEnum(t *testing.T) {
	q := NewQueryParamValidator(apperrors.NewErrorHandler(infrastructure.DiscardLogger(), false))
	allowed := []string{"active", "deprecated"}

	rec := httptest.NewRecorder()
	value, ok := q.ValidateEnum(rec, httptest.NewRequest(http.MethodGet, "/api/models", nil), "status", allowed, "active")
	assert.True(t, ok)
	assert.Equal(t, "active", value)

	rec = httptest.NewRecorder()
	_, ok = q.ValidateEnum(rec, httptest.NewRequest(http.MethodGet, "/api/models?status=retired", nil), "status", allowed, "active")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
