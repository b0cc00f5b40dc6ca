package training

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"annadata/internal/estimators"
	apperrors "annadata/internal/errors"
	"annadata/internal/infrastructure"
)

// EvaluationResult is the score card of one estimator on one split.
type EvaluationResult struct {
	Estimator      string             `json:"estimator"`
	Kind           estimators.Kind    `json:"kind"`
	Train          Metrics            `json:"train"`
	Test           Metrics            `json:"test"`
	CrossValidated bool               `json:"cross_validated"`
	CVMSE          float64            `json:"cv_mse"`
	CVStd          float64            `json:"cv_std"`
	Folds          int                `json:"folds"`
	Duration       time.Duration      `json:"duration"`
	Params         map[string]float64 `json:"params"`
	ArtifactPath   string             `json:"artifact_path,omitempty"`

	// TestPredictions are kept for plots, in test-partition order.
	TestPredictions []float64 `json:"-"`
}

// MetricMap flattens the scores into the registry's metric keys.
func (r EvaluationResult) MetricMap() map[string]float64 {
	m := map[string]float64{
		"train_mse":  r.Train.MSE,
		"train_rmse": r.Train.RMSE,
		"train_mae":  r.Train.MAE,
		"train_r2":   r.Train.R2,
		"test_mse":   r.Test.MSE,
		"test_rmse":  r.Test.RMSE,
		"test_mae":   r.Test.MAE,
		"test_r2":    r.Test.R2,
	}
	if r.CrossValidated {
		m["cv_mse"] = r.CVMSE
		m["cv_std"] = r.CVStd
	}
	return m
}

// Failure records an estimator that could not be trained or scored.
type Failure struct {
	Estimator string
	Err       error
}

// Report collects the outcome of one harness run.
type Report struct {
	Results  []EvaluationResult
	Failures []Failure
}

// Best returns the result with the lowest test MSE.
func (r *Report) Best() (EvaluationResult, bool) {
	if len(r.Results) == 0 {
		return EvaluationResult{}, false
	}
	best := r.Results[0]
	for _, res := range r.Results[1:] {
		if res.Test.MSE < best.Test.MSE {
			best = res
		}
	}
	return best, true
}

// Harness trains a roster of estimators on one dataset.
type Harness struct {
	dataset string
	folds   int
	logger  *slog.Logger
	metrics *infrastructure.TrainingMetrics
}

// NewHarness returns a harness scoring with k-fold cross-validation. metrics
// may be nil.
func NewHarness(dataset string, folds int, logger *slog.Logger, metrics *infrastructure.TrainingMetrics) *Harness {
	if logger == nil {
		logger = slog.Default()
	}
	return &Harness{
		dataset: dataset,
		folds:   folds,
		logger:  logger.With(slog.String("component", "training_harness"), slog.String("dataset", dataset)),
		metrics: metrics,
	}
}

// Run fits and scores every estimator. A failing estimator is recorded as
// an ESTIMATOR_TRAINING error and the rest still run; only an invalid split
// or cancellation fails the whole run.
func (h *Harness) Run(ctx context.Context, data *Data, roster []estimators.Estimator) (*Report, error) {
	if err := validate(data); err != nil {
		return nil, err
	}

	report := &Report{}
	for _, est := range roster {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := h.Evaluate(ctx, est, data, true)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			failure := apperrors.NewEstimatorTrainingError(est.Name(), err)
			report.Failures = append(report.Failures, Failure{Estimator: est.Name(), Err: failure})
			h.logger.ErrorContext(ctx, "estimator failed",
				slog.String("estimator", est.Name()),
				slog.String("error", err.Error()))
			continue
		}
		report.Results = append(report.Results, res)
	}

	h.logger.InfoContext(ctx, "training complete",
		slog.Int("trained", len(report.Results)),
		slog.Int("failed", len(report.Failures)))
	return report, nil
}

// Evaluate fits est on the training partition and scores both partitions,
// optionally with k-fold cross-validation on the training rows.
func (h *Harness) Evaluate(ctx context.Context, est estimators.Estimator, data *Data, crossValidate bool) (res EvaluationResult, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("estimator panicked: %v", r)
		}
		infrastructure.RecordFit(ctx, h.metrics, h.dataset, est.Name(), time.Since(start), res.Test.MSE, res.Test.R2, err)
	}()

	if err := validate(data); err != nil {
		return res, err
	}
	h.logger.InfoContext(ctx, "fitting estimator",
		slog.String("estimator", est.Name()),
		slog.Int("train_rows", len(data.YTrain)))

	if err := est.Fit(ctx, data.XTrain, data.YTrain); err != nil {
		return res, fmt.Errorf("fit: %w", err)
	}
	trainPred, err := predict(est, data.XTrain)
	if err != nil {
		return res, err
	}
	testPred, err := predict(est, data.XTest)
	if err != nil {
		return res, err
	}

	res = EvaluationResult{
		Estimator:       est.Name(),
		Kind:            est.Kind(),
		Params:          est.Params(),
		TestPredictions: testPred,
	}
	if res.Train, err = Score(data.YTrain, trainPred); err != nil {
		return res, err
	}
	if res.Test, err = Score(data.YTest, testPred); err != nil {
		return res, err
	}

	if crossValidate {
		if res.CVMSE, res.CVStd, err = h.crossValidate(ctx, est, data); err != nil {
			return res, fmt.Errorf("cross-validate: %w", err)
		}
		res.CrossValidated = true
		res.Folds = h.folds
	}
	res.Duration = time.Since(start)

	h.logger.InfoContext(ctx, "estimator scored",
		slog.String("estimator", res.Estimator),
		slog.Float64("test_mse", res.Test.MSE),
		slog.Float64("test_r2", res.Test.R2),
		slog.Float64("cv_mse", res.CVMSE),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// crossValidate returns the mean and population standard deviation of the
// fold MSEs, fitting a fresh clone per fold.
func (h *Harness) crossValidate(ctx context.Context, est estimators.Estimator, data *Data) (float64, float64, error) {
	folds, err := KFold(len(data.YTrain), h.folds)
	if err != nil {
		return 0, 0, err
	}
	scores := make([]float64, len(folds))
	for i, fold := range folds {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		model := est.Clone()
		if err := model.Fit(ctx, Rows(data.XTrain, fold.Train), Pick(data.YTrain, fold.Train)); err != nil {
			return 0, 0, fmt.Errorf("fold %d: %w", i, err)
		}
		pred, err := predict(model, Rows(data.XTrain, fold.Test))
		if err != nil {
			return 0, 0, fmt.Errorf("fold %d: %w", i, err)
		}
		m, err := Score(Pick(data.YTrain, fold.Test), pred)
		if err != nil {
			return 0, 0, err
		}
		scores[i] = m.MSE
	}
	mean, std := stat.PopMeanStdDev(scores, nil)
	return mean, std, nil
}

func predict(est estimators.Estimator, X mat.Matrix) ([]float64, error) {
	pred, err := est.Predict(X)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	for i, v := range pred {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, apperrors.NewDataError(fmt.Sprintf("%s predicted a non-finite value at row %d", est.Name(), i), nil)
		}
	}
	return pred, nil
}

func validate(data *Data) error {
	if data == nil || data.XTrain == nil || data.XTest == nil || len(data.YTrain) == 0 || len(data.YTest) == 0 {
		return apperrors.NewDataError("empty train or test partition", nil)
	}
	return nil
}
