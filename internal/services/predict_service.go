package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"annadata/internal/categorical"
	"annadata/internal/config"
	"annadata/internal/dataset"
	apperrors "annadata/internal/errors"
	"annadata/internal/estimators"
	"annadata/internal/features"
	"annadata/internal/infrastructure"
	"annadata/internal/normalize"
	"annadata/internal/operations"
	"annadata/internal/registry"
)

// MaxPredictRecords bounds one prediction request
const MaxPredictRecords = 10000

// PredictRequest carries raw records keyed by the dataset's column names.
// Model names a registry entry; empty selects the best active model.
type PredictRequest struct {
	Model   string                   `json:"model,omitempty" validate:"omitempty,max=128"`
	Records []map[string]interface{} `json:"records" validate:"required,min=1,max=10000"`
}

// PredictResponse holds one point estimate per request record, in request order
type PredictResponse struct {
	Dataset     string    `json:"dataset"`
	Model       string    `json:"model"`
	ModelType   string    `json:"model_type"`
	Predictions []float64 `json:"predictions"`
}

type cachedModel struct {
	modTime time.Time
	model   estimators.Estimator
}

// PredictService turns raw records into point estimates with the persisted
// transformers of a dataset and a registered model.
type PredictService struct {
	features config.FeaturesConfig
	paths    *config.Paths
	registry *registry.Registry
	codec    *estimators.Codec
	metrics  *infrastructure.TrainingMetrics
	validate *validator.Validate
	logger   *slog.Logger

	mu     sync.Mutex
	models map[string]cachedModel
}

// NewPredictService creates a prediction service. metrics may be nil.
func NewPredictService(fc config.FeaturesConfig, paths *config.Paths, reg *registry.Registry, codec *estimators.Codec, metrics *infrastructure.TrainingMetrics, logger *slog.Logger) *PredictService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PredictService{
		features: fc,
		paths:    paths,
		registry: reg,
		codec:    codec,
		metrics:  metrics,
		validate: validator.New(),
		logger:   logger.With(slog.String("component", "predict_service")),
		models:   make(map[string]cachedModel),
	}
}

// Predict scores req.Records for ds
func (s *PredictService) Predict(ctx context.Context, ds string, req PredictRequest) (*PredictResponse, error) {
	if err := checkDataset(ds); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.NewAppValidationError(fmt.Sprintf("invalid prediction request: %v", err))
	}

	entry, err := s.resolve(ds, req.Model)
	if err != nil {
		return nil, err
	}
	dp := s.paths.Dataset(ds)
	st, enc, scaler, err := s.loadTransformers(ds, dp)
	if err != nil {
		return nil, err
	}
	model, err := s.loadModel(entry)
	if err != nil {
		return nil, err
	}

	spec, err := operations.FeatureSpec(ds, s.features)
	if err != nil {
		return nil, err
	}
	if err := checkRecords(spec, req.Records); err != nil {
		return nil, err
	}

	f, err := dataset.ParseRows(recordRows(ds, req.Records), ds)
	if err != nil {
		return nil, err
	}
	if f.Len() != len(req.Records) {
		return nil, apperrors.NewDataError("records must not be empty", nil)
	}
	// temporal features need each region in time order; order maps back
	order := identity(f.Len())
	if f.HasTimes() {
		order = f.GroupTimeOrder()
		f = f.Take(order)
	}

	engineered, err := features.NewEngine(spec, s.logger).Transform(ctx, st, f)
	if err != nil {
		return nil, fmt.Errorf("engineer features: %w", err)
	}
	X, _, err := operations.Design(engineered, st, enc)
	if err != nil {
		return nil, err
	}
	Xs, err := scaler.Transform(X)
	if err != nil {
		return nil, fmt.Errorf("scale design matrix: %w", err)
	}
	preds, err := model.Predict(Xs)
	if err != nil {
		return nil, fmt.Errorf("predict with %s: %w", entry.Name, err)
	}

	out := make([]float64, len(preds))
	for i, p := range preds {
		out[order[i]] = p
	}

	infrastructure.RecordPredictions(ctx, s.metrics, ds, entry.Name, len(out))
	s.logger.InfoContext(ctx, "records scored",
		slog.String("dataset", ds),
		slog.String("model", entry.Name),
		slog.Int("records", len(out)))

	return &PredictResponse{
		Dataset:     ds,
		Model:       entry.Name,
		ModelType:   entry.Type,
		Predictions: out,
	}, nil
}

func (s *PredictService) resolve(ds, name string) (registry.Entry, error) {
	if name == "" {
		return s.registry.GetBest(ds, registry.DefaultMetric)
	}
	entry, err := s.registry.Get(name)
	if err != nil {
		return registry.Entry{}, err
	}
	if entry.Dataset != ds {
		return registry.Entry{}, apperrors.NewAppValidationError(
			fmt.Sprintf("model %s was trained on %s, not %s", name, entry.Dataset, ds))
	}
	if entry.Status == registry.StatusDeprecated {
		s.logger.Warn("serving deprecated model", slog.String("model", name))
	}
	return entry, nil
}

func (s *PredictService) loadTransformers(ds string, dp config.DatasetPaths) (*features.State, *categorical.Set, *normalize.StandardScaler, error) {
	for role, path := range map[string]string{
		"feature_state": dp.FeatureState,
		"encoder":       dp.Encoder,
		"scaler":        dp.Scaler,
	} {
		if !config.FileExists(path) {
			return nil, nil, nil, apperrors.NewArtifactMissingError(ds+" "+role, path)
		}
	}
	st, err := features.LoadState(dp.FeatureState)
	if err != nil {
		return nil, nil, nil, err
	}
	enc, err := categorical.Load(dp.Encoder)
	if err != nil {
		return nil, nil, nil, err
	}
	scaler, err := normalize.LoadScaler(dp.Scaler)
	if err != nil {
		return nil, nil, nil, err
	}
	return st, enc, scaler, nil
}

// loadModel decodes an artifact once per file version
func (s *PredictService) loadModel(entry registry.Entry) (estimators.Estimator, error) {
	info, err := os.Stat(entry.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewArtifactMissingError(entry.Name, entry.Path)
		}
		return nil, apperrors.NewStorageError(fmt.Sprintf("stat artifact %s", entry.Path), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.models[entry.Path]; ok && c.modTime.Equal(info.ModTime()) {
		return c.model, nil
	}
	model, err := s.registry.LoadArtifact(entry.Name, s.codec)
	if err != nil {
		return nil, err
	}
	s.models[entry.Path] = cachedModel{modTime: info.ModTime(), model: model}
	return model, nil
}

// checkRecords rejects a record lacking a field the feature engine needs.
// Absent, null and blank values all count as missing; left in, they would
// parse as NaN and be imputed.
func checkRecords(spec features.Spec, records []map[string]interface{}) error {
	required := append([]string(nil), spec.Required...)
	if spec.GroupColumn != "" {
		required = append(required, spec.GroupColumn)
	}
	if spec.Calendar {
		required = append(required, dataset.ColTimestamp)
	}
	for i, rec := range records {
		for _, col := range required {
			if present(rec[col]) {
				continue
			}
			return apperrors.NewDataError(fmt.Sprintf("record %d is missing %s", i, col), nil).
				WithContext("column", col).
				WithContext("record", i)
		}
	}
	return nil
}

func present(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	}
	return true
}

// recordRows lays records out as a header row and one row per record.
// Absent or null values become empty cells.
func recordRows(ds string, records []map[string]interface{}) [][]string {
	header := dataset.Columns(ds)
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, header)
	for _, rec := range records {
		row := make([]string, len(header))
		for j, col := range header {
			row[j] = cellString(rec[col])
		}
		rows = append(rows, row)
	}
	return rows
}

func cellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func identity(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
