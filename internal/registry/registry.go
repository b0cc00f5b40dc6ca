// Package registry keeps the JSON index of trained models: where each
// artifact lives, which dataset it was trained on and how it scored.
//
// The whole document is rewritten on every change through
// files.WriteAtomic. Entries are never removed; Deprecate only changes
// their status.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "annadata/internal/errors"
	"annadata/internal/estimators"
	"annadata/internal/files"
	"annadata/internal/infrastructure"
)

// Entry statuses
const (
	StatusActive     = "active"
	StatusDeprecated = "deprecated"
)

// DefaultMetric ranks entries in GetBest when no metric is named.
const DefaultMetric = "test_mse"

// Entry describes one registered model.
type Entry struct {
	Name        string             `json:"name" validate:"required"`
	Type        string             `json:"type" validate:"required"`
	Dataset     string             `json:"dataset" validate:"required"`
	Path        string             `json:"path" validate:"required"`
	Metrics     map[string]float64 `json:"metrics"`
	CreatedAt   string             `json:"created_at"`
	Description string             `json:"description"`
	Status      string             `json:"status" validate:"omitempty,oneof=active deprecated"`
}

// Summary counts registered models.
type Summary struct {
	TotalModels int            `json:"total_models"`
	Active      int            `json:"active"`
	Datasets    map[string]int `json:"datasets"`
	ModelTypes  map[string]int `json:"model_types"`
}

// Registry is the in-memory view of the registry document. It assumes a
// single writer process.
type Registry struct {
	mu       sync.RWMutex
	path     string
	entries  map[string]Entry
	validate *validator.Validate
	logger   *slog.Logger
	metrics  *infrastructure.TrainingMetrics
	now      func() time.Time
}

// Open loads the document at path, starting empty if it does not exist.
func Open(path string, logger *slog.Logger, metrics *infrastructure.TrainingMetrics) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		path:     path,
		entries:  make(map[string]Entry),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With(slog.String("component", "registry")),
		metrics:  metrics,
		now:      time.Now,
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		r.logger.Debug("registry document absent, starting empty", slog.String("path", path))
		return r, nil
	case err != nil:
		return nil, apperrors.NewStorageError("read registry", err)
	}
	if err := json.Unmarshal(data, &r.entries); err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("parse registry %s", path), err)
	}
	if r.entries == nil {
		r.entries = make(map[string]Entry)
	}
	r.logger.Info("registry loaded", slog.String("path", path), slog.Int("models", len(r.entries)))
	return r, nil
}

// Path returns the document location
func (r *Registry) Path() string { return r.path }

// Register inserts e, replacing any entry with the same name, and persists
// the document. CreatedAt defaults to now and Status to active.
func (r *Registry) Register(ctx context.Context, e Entry) error {
	if e.Status == "" {
		e.Status = StatusActive
	}
	if err := r.validate.Struct(e); err != nil {
		return apperrors.NewAppValidationError(fmt.Sprintf("registry entry %q: %v", e.Name, err))
	}
	if e.CreatedAt == "" {
		e.CreatedAt = r.now().UTC().Format(time.RFC3339)
	}
	e.Metrics = copyMetrics(e.Metrics)

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.entries[e.Name]
	r.entries[e.Name] = e
	if err := r.persist(ctx, "register"); err != nil {
		if existed {
			r.entries[e.Name] = prev
		} else {
			delete(r.entries, e.Name)
		}
		return err
	}

	r.logger.InfoContext(ctx, "model registered",
		slog.String("name", e.Name),
		slog.String("dataset", e.Dataset),
		slog.String("type", e.Type),
		slog.Bool("replaced", existed))
	return nil
}

// Get returns the named entry.
func (r *Registry) Get(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, apperrors.NewNotFoundError(fmt.Sprintf("model %s", name))
	}
	e.Metrics = copyMetrics(e.Metrics)
	return e, nil
}

// List returns entries matching dataset (empty for all) and status (empty
// for active), sorted by name.
func (r *Registry) List(dataset, status string) []Entry {
	if status == "" {
		status = StatusActive
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Status != status || (dataset != "" && e.Dataset != dataset) {
			continue
		}
		e.Metrics = copyMetrics(e.Metrics)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetBest returns the active entry for dataset with the smallest value of
// metric. Entries that lack the metric are skipped; ties go to the first
// name in sort order.
func (r *Registry) GetBest(dataset, metric string) (Entry, error) {
	if metric == "" {
		metric = DefaultMetric
	}
	var (
		best  Entry
		found bool
		score = math.Inf(1)
	)
	for _, e := range r.List(dataset, StatusActive) {
		v, ok := e.Metrics[metric]
		if !ok || math.IsNaN(v) {
			continue
		}
		if !found || v < score {
			best, score, found = e, v, true
		}
	}
	if !found {
		r.logger.Warn("no model for dataset", slog.String("dataset", dataset), slog.String("metric", metric))
		return Entry{}, apperrors.NewNotFoundError(fmt.Sprintf("active %s model ranked by %s", dataset, metric))
	}
	r.logger.Debug("best model selected",
		slog.String("name", best.Name),
		slog.String("metric", metric),
		slog.Float64("value", score))
	return best, nil
}

// LoadArtifact decodes the artifact registered under name.
func (r *Registry) LoadArtifact(name string, codec *estimators.Codec) (estimators.Estimator, error) {
	e, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(e.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NewArtifactMissingError(name, e.Path)
		}
		return nil, apperrors.NewStorageError(fmt.Sprintf("stat artifact %s", e.Path), err)
	}
	est, err := codec.Load(e.Path)
	if err != nil {
		return nil, err
	}
	r.logger.Info("model loaded", slog.String("name", name), slog.String("path", e.Path))
	return est, nil
}

// Deprecate marks name as deprecated. The entry stays in the document.
func (r *Registry) Deprecate(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("model %s", name))
	}
	if e.Status == StatusDeprecated {
		return nil
	}
	prev := e
	e.Status = StatusDeprecated
	r.entries[name] = e
	if err := r.persist(ctx, "deprecate"); err != nil {
		r.entries[name] = prev
		return err
	}
	r.logger.InfoContext(ctx, "model deprecated", slog.String("name", name))
	return nil
}

// Summary counts every entry regardless of status.
func (r *Registry) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Summary{
		TotalModels: len(r.entries),
		Datasets:    make(map[string]int),
		ModelTypes:  make(map[string]int),
	}
	for _, e := range r.entries {
		s.Datasets[e.Dataset]++
		s.ModelTypes[e.Type]++
		if e.Status == StatusActive {
			s.Active++
		}
	}
	return s
}

// persist writes the document; callers hold r.mu.
func (r *Registry) persist(ctx context.Context, op string) error {
	data, err := json.MarshalIndent(r.entries, "", "  ")
	if err == nil {
		err = files.WriteAtomic(r.path, data, 0644)
	}
	infrastructure.RecordRegistryWrite(ctx, r.metrics, op, err)
	if err != nil {
		return apperrors.NewStorageError("write registry", err)
	}
	return nil
}

// copyMetrics drops non-finite values, which JSON cannot carry.
func copyMetrics(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[k] = v
	}
	return out
}
