package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"annadata/internal/config"
	apperrors "annadata/internal/errors"
	"annadata/internal/infrastructure"
	"annadata/internal/middleware"
	"annadata/internal/operations"
	"annadata/internal/registry"
	"annadata/internal/services"
)

// MockModelService is a mock implementation of ModelService
type MockModelService struct {
	mock.Mock
}

func (m *MockModelService) List(ctx context.Context, dataset, status string) ([]registry.Entry, error) {
	args := m.Called(dataset, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]registry.Entry), args.Error(1)
}

func (m *MockModelService) Summary(ctx context.Context) registry.Summary {
	return m.Called().Get(0).(registry.Summary)
}

func (m *MockModelService) Best(ctx context.Context, dataset, metric string) (registry.Entry, error) {
	args := m.Called(dataset, metric)
	return args.Get(0).(registry.Entry), args.Error(1)
}

func (m *MockModelService) Get(ctx context.Context, name string) (registry.Entry, error) {
	args := m.Called(name)
	return args.Get(0).(registry.Entry), args.Error(1)
}

func (m *MockModelService) Deprecate(ctx context.Context, name string) (registry.Entry, error) {
	args := m.Called(name)
	return args.Get(0).(registry.Entry), args.Error(1)
}

// MockPredictService is a mock implementation of PredictService
type MockPredictService struct {
	mock.Mock
}

func (m *MockPredictService) Predict(ctx context.Context, dataset string, req services.PredictRequest) (*services.PredictResponse, error) {
	args := m.Called(dataset, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.PredictResponse), args.Error(1)
}

// MockRunService is a mock implementation of RunService
type MockRunService struct {
	mock.Mock
}

func (m *MockRunService) Start(ctx context.Context, req operations.RunRequest) (services.RunStarted, error) {
	args := m.Called(req)
	return args.Get(0).(services.RunStarted), args.Error(1)
}

func (m *MockRunService) Last(ctx context.Context) (*operations.RunManifest, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*operations.RunManifest), args.Error(1)
}

func newErrorHandler() *apperrors.ErrorHandler {
	return apperrors.NewErrorHandler(infrastructure.DiscardLogger(), false)
}

func newValidator() *middleware.ValidationMiddleware {
	return middleware.NewValidationMiddleware(infrastructure.DiscardLogger(), newErrorHandler())
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func modelsRouter(svc ModelService) http.Handler {
	r := chi.NewRouter()
	r.Mount("/api/models", NewModelsHandler(svc, infrastructure.DiscardLogger(), newErrorHandler()).Routes())
	return r
}

var lrWeather = registry.Entry{
	Name:    "linear_regression_weather_v1",
	Type:    "linear_regression",
	Dataset: config.DatasetWeather,
	Path:    "artifacts/weather/models/linear_regression_weather_v1.gob",
	Metrics: map[string]float64{registry.DefaultMetric: 4.2},
	Status:  registry.StatusActive,
}

func TestModelsHandlerList(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		setupMock      func(*MockModelService)
		expectedStatus int
		expectedCount  float64
	}{
		{
			name:  "defaults to active models",
			query: "",
			setupMock: func(m *MockModelService) {
				m.On("List", "", registry.StatusActive).Return([]registry.Entry{lrWeather}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedCount:  1,
		},
		{
			name:  "filters by dataset and status",
			query: "?dataset=crop&status=deprecated",
			setupMock: func(m *MockModelService) {
				m.On("List", config.DatasetCrop, registry.StatusDeprecated).Return(nil, nil)
			},
			expectedStatus: http.StatusOK,
			expectedCount:  0,
		},
		{
			name:           "rejects unknown status",
			query:          "?status=retired",
			setupMock:      func(*MockModelService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "rejects unknown dataset",
			query:          "?dataset=rice",
			setupMock:      func(*MockModelService) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockModelService)
			tt.setupMock(svc)

			rec := serve(modelsRouter(svc), http.MethodGet, "/api/models"+tt.query, "")
			assert.Equal(t, tt.expectedStatus, rec.Code)

			body := decode(t, rec)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, tt.expectedCount, body["count"])
				assert.NotNil(t, body["models"])
			} else {
				assert.Equal(t, apperrors.TypeValidation, body["type"])
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestModelsHandlerBest(t *testing.T) {
	svc := new(MockModelService)
	svc.On("Best", config.DatasetWeather, "").Return(lrWeather, nil)
	svc.On("Best", config.DatasetCrop, "test_r2").
		Return(registry.Entry{}, apperrors.NewNotFoundError("active model for crop"))

	rec := serve(modelsRouter(svc), http.MethodGet, "/api/models/best?dataset=weather", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, lrWeather.Name, decode(t, rec)["name"])

	rec = serve(modelsRouter(svc), http.MethodGet, "/api/models/best?dataset=crop&metric=test_r2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.TypeNotFound, decode(t, rec)["type"])
	svc.AssertExpectations(t)
}

func TestModelsHandlerGetAndDeprecate(t *testing.T) {
	deprecated := lrWeather
	deprecated.Status = registry.StatusDeprecated

	svc := new(MockModelService)
	svc.On("Get", lrWeather.Name).Return(lrWeather, nil)
	svc.On("Deprecate", lrWeather.Name).Return(deprecated, nil)
	svc.On("Get", "missing").Return(registry.Entry{}, apperrors.NewNotFoundError("model missing"))

	router := modelsRouter(svc)

	rec := serve(router, http.MethodGet, "/api/models/"+lrWeather.Name, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, registry.StatusActive, decode(t, rec)["status"])

	rec = serve(router, http.MethodPost, "/api/models/"+lrWeather.Name+"/deprecate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, registry.StatusDeprecated, decode(t, rec)["status"])

	rec = serve(router, http.MethodGet, "/api/models/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	svc.AssertExpectations(t)
}

func TestModelsHandlerSummary(t *testing.T) {
	svc := new(MockModelService)
	svc.On("Summary").Return(registry.Summary{
		TotalModels: 3,
		Active:      2,
		Datasets:    map[string]int{"weather": 2, "crop": 1},
		ModelTypes:  map[string]int{"linear_regression": 3},
	})

	rec := serve(modelsRouter(svc), http.MethodGet, "/api/models/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(3), body["total_models"])
	assert.Equal(t, float64(2), body["active"])
}

func predictRouter(svc PredictService) http.Handler {
	r := chi.NewRouter()
	h := NewPredictHandler(svc, newValidator(), nil, infrastructure.DiscardLogger(), newErrorHandler())
	r.Mount("/api/predict", h.Routes())
	return r
}

func TestPredictHandler(t *testing.T) {
	twoRecords := mock.MatchedBy(func(req services.PredictRequest) bool {
		return len(req.Records) == 2 && req.Model == ""
	})

	tests := []struct {
		name           string
		dataset        string
		body           string
		setupMock      func(*MockPredictService)
		expectedStatus int
		expectedType   string
	}{
		{
			name:    "scores records",
			dataset: "weather",
			body:    `{"records":[{"region":"Punjab"},{"region":"Karnataka"}]}`,
			setupMock: func(m *MockPredictService) {
				m.On("Predict", "weather", twoRecords).Return(&services.PredictResponse{
					Dataset:     "weather",
					Model:       lrWeather.Name,
					ModelType:   lrWeather.Type,
					Predictions: []float64{31.5, 27.25},
				}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "invalid json",
			dataset:        "weather",
			body:           `{"records":[`,
			setupMock:      func(*MockPredictService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "empty records",
			dataset:        "weather",
			body:           `{"records":[]}`,
			setupMock:      func(*MockPredictService) {},
			expectedStatus: http.StatusBadRequest,
			expectedType:   apperrors.TypeValidation,
		},
		{
			name:    "missing artifact",
			dataset: "weather",
			body:    `{"records":[{"region":"Punjab"},{"region":"Karnataka"}]}`,
			setupMock: func(m *MockPredictService) {
				m.On("Predict", "weather", twoRecords).
					Return(nil, apperrors.NewArtifactMissingError("scaler", "/tmp/scaler.json"))
			},
			expectedStatus: http.StatusNotFound,
			expectedType:   apperrors.TypeArtifactMissing,
		},
		{
			name:    "missing feature column",
			dataset: "crop",
			body:    `{"records":[{"crop":"Rice"},{"crop":"Wheat"}]}`,
			setupMock: func(m *MockPredictService) {
				m.On("Predict", "crop", twoRecords).
					Return(nil, apperrors.NewFeatureError("rainfall"))
			},
			expectedStatus: http.StatusBadRequest,
			expectedType:   apperrors.TypeFeature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockPredictService)
			tt.setupMock(svc)

			rec := serve(predictRouter(svc), http.MethodPost, "/api/predict/"+tt.dataset, tt.body)
			assert.Equal(t, tt.expectedStatus, rec.Code)

			body := decode(t, rec)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, []interface{}{31.5, 27.25}, body["predictions"])
			}
			if tt.expectedType != "" {
				assert.Equal(t, tt.expectedType, body["type"])
			}
			svc.AssertExpectations(t)
		})
	}
}

func runsRouter(svc RunService) http.Handler {
	r := chi.NewRouter()
	r.Mount("/api/runs", NewRunsHandler(svc, newValidator(), infrastructure.DiscardLogger(), newErrorHandler()).Routes())
	return r
}

func TestRunsHandlerStart(t *testing.T) {
	t.Run("accepts empty body", func(t *testing.T) {
		svc := new(MockRunService)
		svc.On("Start", operations.RunRequest{}).
			Return(services.RunStarted{RunID: "run-1", Status: operations.RunStatusPending}, nil)

		rec := serve(runsRouter(svc), http.MethodPost, "/api/runs", "")
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "/api/runs/last", rec.Header().Get("Location"))
		assert.Equal(t, "run-1", decode(t, rec)["run_id"])
		svc.AssertExpectations(t)
	})

	t.Run("passes overrides", func(t *testing.T) {
		svc := new(MockRunService)
		svc.On("Start", operations.RunRequest{Dataset: "crop", LeakagePolicy: "train_only"}).
			Return(services.RunStarted{RunID: "run-2", Status: operations.RunStatusPending}, nil)

		rec := serve(runsRouter(svc), http.MethodPost, "/api/runs", `{"dataset":"crop","leakage_policy":"train_only"}`)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("rejects unknown dataset", func(t *testing.T) {
		svc := new(MockRunService)
		rec := serve(runsRouter(svc), http.MethodPost, "/api/runs", `{"dataset":"rice"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, apperrors.TypeValidation, decode(t, rec)["type"])
		svc.AssertNotCalled(t, "Start", mock.Anything)
	})

	t.Run("conflict while a run is active", func(t *testing.T) {
		svc := new(MockRunService)
		svc.On("Start", operations.RunRequest{}).Return(services.RunStarted{}, apperrors.ErrRunInProgress)

		rec := serve(runsRouter(svc), http.MethodPost, "/api/runs", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, apperrors.TypeConflict, decode(t, rec)["type"])
	})
}

func TestRunsHandlerLast(t *testing.T) {
	svc := new(MockRunService)
	svc.On("Last").Return(nil, apperrors.NewNotFoundError("pipeline run")).Once()
	rec := serve(runsRouter(svc), http.MethodGet, "/api/runs/last", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	manifest := operations.NewRunManifest("run-9", config.DatasetCrop, "train_only", "v1")
	svc.On("Last").Return(manifest, nil).Once()
	rec = serve(runsRouter(svc), http.MethodGet, "/api/runs/last", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-9", decode(t, rec)["id"])
	svc.AssertExpectations(t)
}

func TestMetricsHandler(t *testing.T) {
	rec := serve(NewMetricsHandler(nil, newErrorHandler()), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	exposition := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("predictions_total 3\n"))
	})
	rec = serve(NewMetricsHandler(exposition, newErrorHandler()), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "predictions_total")
}

func TestHealthHandler(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.BaseDir = t.TempDir()
	paths, err := config.NewPaths(cfg.Paths)
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirectories(nil))
	reg, err := registry.Open(paths.RegistryFile, infrastructure.DiscardLogger(), nil)
	require.NoError(t, err)

	svc := services.NewHealthService("1.2.3", "today", paths, reg, nil, nil, infrastructure.DiscardLogger())
	h := NewHealthHandler(svc, infrastructure.DiscardLogger())

	rec := serve(http.HandlerFunc(h.HealthCheck), http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = serve(http.HandlerFunc(h.ReadinessCheck), http.MethodGet, "/api/health/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode(t, rec)["status"])

	rec = serve(http.HandlerFunc(h.Version), http.MethodGet, "/api/version", "")
	assert.Equal(t, "1.2.3", decode(t, rec)["version"])

	require.NoError(t, os.RemoveAll(paths.ArtifactsDir))
	rec = serve(http.HandlerFunc(h.ReadinessCheck), http.MethodGet, "/api/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", decode(t, rec)["status"])
}
