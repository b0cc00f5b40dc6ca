package services

import (
	"context"
	"fmt"
	"log/slog"

	"annadata/internal/config"
	apperrors "annadata/internal/errors"
	"annadata/internal/registry"
)

// ModelService exposes the model registry to the API
type ModelService struct {
	registry *registry.Registry
	logger   *slog.Logger
}

// NewModelService creates a model service over reg
func NewModelService(reg *registry.Registry, logger *slog.Logger) *ModelService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelService{
		registry: reg,
		logger:   logger.With(slog.String("component", "model_service")),
	}
}

// List returns models filtered by dataset and status; both may be empty.
func (s *ModelService) List(ctx context.Context, dataset, status string) ([]registry.Entry, error) {
	if dataset != "" {
		if err := checkDataset(dataset); err != nil {
			return nil, err
		}
	}
	switch status {
	case "", registry.StatusActive, registry.StatusDeprecated:
	default:
		return nil, apperrors.NewAppValidationError(fmt.Sprintf("unknown model status %q", status))
	}

	entries := s.registry.List(dataset, status)
	s.logger.DebugContext(ctx, "models listed",
		slog.String("dataset", dataset),
		slog.String("status", status),
		slog.Int("count", len(entries)))
	return entries, nil
}

// Summary counts registered models
func (s *ModelService) Summary(ctx context.Context) registry.Summary {
	return s.registry.Summary()
}

// Best returns the active model of dataset with the lowest metric value.
// An empty metric ranks by registry.DefaultMetric.
func (s *ModelService) Best(ctx context.Context, dataset, metric string) (registry.Entry, error) {
	if err := checkDataset(dataset); err != nil {
		return registry.Entry{}, err
	}
	return s.registry.GetBest(dataset, metric)
}

// Get returns one model by name
func (s *ModelService) Get(ctx context.Context, name string) (registry.Entry, error) {
	return s.registry.Get(name)
}

// Deprecate retires a model and returns its updated entry
func (s *ModelService) Deprecate(ctx context.Context, name string) (registry.Entry, error) {
	if err := s.registry.Deprecate(ctx, name); err != nil {
		return registry.Entry{}, err
	}
	return s.registry.Get(name)
}

func checkDataset(ds string) error {
	switch ds {
	case config.DatasetWeather, config.DatasetCrop:
		return nil
	case "":
		return apperrors.NewAppValidationError("dataset is required")
	}
	return apperrors.NewAppValidationError(fmt.Sprintf("unknown dataset %q", ds))
}
