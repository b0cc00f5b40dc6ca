package http

import (
	"context"

	"annadata/internal/operations"
	"annadata/internal/registry"
	"annadata/internal/services"
)

// HealthService reports process and dependency health
type HealthService interface {
	HealthCheck(ctx context.Context) services.HealthStatus
	ReadinessCheck(ctx context.Context) services.HealthStatus
	LivenessCheck(ctx context.Context) services.HealthStatus
	Version() map[string]interface{}
}

// ModelService is the registry surface used by ModelsHandler
type ModelService interface {
	List(ctx context.Context, dataset, status string) ([]registry.Entry, error)
	Summary(ctx context.Context) registry.Summary
	Best(ctx context.Context, dataset, metric string) (registry.Entry, error)
	Get(ctx context.Context, name string) (registry.Entry, error)
	Deprecate(ctx context.Context, name string) (registry.Entry, error)
}

// PredictService scores raw records
type PredictService interface {
	Predict(ctx context.Context, dataset string, req services.PredictRequest) (*services.PredictResponse, error)
}

// RunService starts pipeline runs and reports the latest one
type RunService interface {
	Start(ctx context.Context, req operations.RunRequest) (services.RunStarted, error)
	Last(ctx context.Context) (*operations.RunManifest, error)
}
