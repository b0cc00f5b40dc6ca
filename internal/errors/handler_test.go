package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annadata/internal/infrastructure"
)

func TestErrorHandler_ErrorToProblem(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantCode   string
	}{
		{"unknown model", NewNotFoundError("model rf_v9"), http.StatusNotFound, TypeNotFound, "NOT_FOUND"},
		{"artifact missing", NewArtifactMissingError("rf_v1", "/tmp/rf.gob"), http.StatusNotFound, TypeArtifactMissing, "ARTIFACT_MISSING"},
		{"wrapped feature error", fmt.Errorf("build features: %w", NewFeatureError("Year")), http.StatusBadRequest, TypeFeature, "FEATURE"},
		{"state error", NewStateError("scaler"), http.StatusConflict, TypeModelNotFitted, "STATE"},
		{"run in progress", ErrRunInProgress, http.StatusConflict, TypeConflict, "RUN_IN_PROGRESS"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, TypeTimeout, ""},
		{"plain error", fmt.Errorf("boom"), http.StatusInternalServerError, TypeInternal, ""},
	}

	h := NewErrorHandler(nil, false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/models/rf_v1", nil)
			problem := h.ErrorToProblem(tt.err, r)
			assert.Equal(t, tt.wantStatus, problem.Status)
			assert.Equal(t, tt.wantType, problem.Type)
			assert.Equal(t, "/api/models/rf_v1", problem.Instance)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, problem.Extensions["error_code"])
			} else {
				assert.NotContains(t, problem.Extensions, "error_code")
			}
		})
	}
}

func TestProblemDetails_MarshalJSON(t *testing.T) {
	problem := NewProblemDetails(http.StatusBadRequest, TypeData, "Bad Request", "", "/api/predict/crop").
		WithExtension("error_code", "DATA").
		WithExtension("status", "shadowed")

	data, err := json.Marshal(problem)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "DATA", body["error_code"])
	assert.Equal(t, float64(http.StatusBadRequest), body["status"])
	assert.NotContains(t, body, "detail")
}

func TestErrorHandler_NotFoundCarriesTraceID(t *testing.T) {
	h := NewErrorHandler(nil, false)
	r := httptest.NewRequest(http.MethodGet, "/api/nothing", nil)
	r = r.WithContext(infrastructure.WithTraceID(r.Context(), "trace-123"))
	rec := httptest.NewRecorder()

	h.NotFound(rec, r)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "trace-123", body["trace_id"])
	assert.Equal(t, TypeNotFound, body["type"])
}
