package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/mat"

	"annadata/internal/categorical"
	"annadata/internal/config"
	"annadata/internal/dataset"
	"annadata/internal/estimators"
	apperrors "annadata/internal/errors"
	"annadata/internal/exporter"
	"annadata/internal/features"
	"annadata/internal/infrastructure"
	"annadata/internal/normalize"
	"annadata/internal/reduction"
	"annadata/internal/registry"
	"annadata/internal/training"
	"annadata/internal/variational"
)

// Deps are the collaborators a pipeline run needs. Metrics, Tracer and Sink
// may be nil; Exporter nil disables the export step.
type Deps struct {
	Config   *config.Config
	Paths    *config.Paths
	Registry *registry.Registry
	Codec    *estimators.Codec
	Exporter *exporter.Exporter
	Sink     ProgressSink
	Logger   *slog.Logger
	Metrics  *infrastructure.TrainingMetrics
	Tracer   trace.Tracer
}

// ModelName is the registry name of an estimator trained by a run
func ModelName(estimator, ds, version string) string {
	return fmt.Sprintf("%s_%s_%s", estimator, ds, version)
}

// NewPipeline registers the steps of a training run
func NewPipeline(deps *Deps) (*Registry, error) {
	r := NewRegistry()
	steps := []Step{
		&loadStep{NewBaseStep(StepIDLoad, StepNameLoad), deps},
		&featuresStep{NewBaseStep(StepIDFeatures, StepNameFeatures, StepIDLoad), deps},
		&encodeStep{NewBaseStep(StepIDEncode, StepNameEncode, StepIDFeatures), deps},
		&scaleStep{NewBaseStep(StepIDScale, StepNameScale, StepIDEncode), deps},
		&trainStep{NewBaseStep(StepIDTrain, StepNameTrain, StepIDScale), deps},
		&alternateStep{NewBaseStep(StepIDAlternate, StepNameAlternate, StepIDTrain), deps},
		&persistStep{NewBaseStep(StepIDPersist, StepNamePersist, StepIDTrain, StepIDAlternate), deps},
		&registerStep{NewBaseStep(StepIDRegister, StepNameRegister, StepIDPersist), deps},
		&exportStep{NewBaseStep(StepIDExport, StepNameExport, StepIDAlternate, StepIDRegister), deps},
	}
	for _, s := range steps {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

type loadStep struct {
	BaseStep
	deps *Deps
}

func (s *loadStep) Execute(ctx context.Context, state *RunState) error {
	src, err := dataset.NewSource(state.Pipeline, s.deps.Paths.DataDir, s.deps.Logger)
	if err != nil {
		return err
	}
	f, err := src.Load(ctx)
	if err != nil {
		return err
	}
	if f.Len() == 0 {
		return apperrors.NewDataError(fmt.Sprintf("%s has no records", src.Name()), nil)
	}
	if f.HasTimes() {
		f = f.SortByGroupTime()
	}

	state.Source = src.Name()
	state.Raw = f
	state.Manifest.SetSource(src.Name())

	state.Note("source", src.Name())
	state.Note("rows", f.Len())
	state.Note("columns", len(f.Columns()))
	return nil
}

type featuresStep struct {
	BaseStep
	deps *Deps
}

func (s *featuresStep) Validate(state *RunState) error {
	if state.Raw == nil {
		return errors.New("no records loaded")
	}
	return nil
}

func (s *featuresStep) Execute(ctx context.Context, state *RunState) error {
	spec, err := FeatureSpec(state.Pipeline.Dataset, s.deps.Config.Features)
	if err != nil {
		return err
	}
	engine := features.NewEngine(spec, s.deps.Logger)

	// the label comes from the raw records so capping never alters it
	y, err := engine.Target(state.Raw)
	if err != nil {
		return err
	}
	var valid []int
	for i, v := range y {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			valid = append(valid, i)
		}
	}
	p, err := training.Split(len(valid), state.Pipeline.TestFraction, state.Pipeline.Seed)
	if err != nil {
		return err
	}

	var fitRows []int
	if state.Pipeline.LeakagePolicy == config.LeakageFitBeforeSplit {
		s.deps.Logger.WarnContext(ctx, "fitted statistics include held-out rows",
			slog.String("leakage_policy", state.Pipeline.LeakagePolicy),
			slog.String("dataset", state.Pipeline.Dataset))
	} else {
		fitRows = make([]int, len(p.Train))
		for i, pos := range p.Train {
			fitRows[i] = valid[pos]
		}
	}

	st, engineered, err := engine.Fit(ctx, state.Raw, fitRows)
	if err != nil {
		return err
	}

	state.Engine = engine
	state.Target = y
	state.Valid = valid
	state.Partition = p
	state.FitRows = fitRows
	state.Features = st
	state.Engineered = engineered

	state.Note("labelled_rows", len(valid))
	state.Note("train_rows", len(p.Train))
	state.Note("test_rows", len(p.Test))
	state.Note("features", len(st.Schema.Columns))
	return nil
}

type encodeStep struct {
	BaseStep
	deps *Deps
}

func (s *encodeStep) Validate(state *RunState) error {
	if state.Engineered == nil {
		return errors.New("features not engineered")
	}
	return nil
}

func (s *encodeStep) Execute(_ context.Context, state *RunState) error {
	enc := EncoderSet(state.Pipeline.Dataset, s.deps.Config.Features)
	if err := enc.Fit(state.Engineered, state.FitRows); err != nil {
		return err
	}
	state.Encoders = enc
	state.Note("fields", enc.Fields())
	state.Note("indicator_columns", len(enc.Columns()))
	return nil
}

type scaleStep struct {
	BaseStep
	deps *Deps
}

func (s *scaleStep) Validate(state *RunState) error {
	if state.Encoders == nil || state.Features == nil {
		return errors.New("encoders not fitted")
	}
	return nil
}

func (s *scaleStep) Execute(_ context.Context, state *RunState) error {
	X, columns, err := Design(state.Engineered, state.Features, state.Encoders)
	if err != nil {
		return err
	}
	X = training.Rows(X, state.Valid)
	y := training.Pick(state.Target, state.Valid)

	scaler := normalize.NewStandardScaler(columns)
	reference := mat.Matrix(X)
	if state.Pipeline.LeakagePolicy != config.LeakageFitBeforeSplit {
		reference = training.Rows(X, state.Partition.Train)
	}
	if err := scaler.Fit(reference); err != nil {
		return err
	}
	scaled, err := scaler.Transform(X)
	if err != nil {
		return err
	}
	data, err := training.NewData(scaled, y, state.Partition)
	if err != nil {
		return err
	}

	state.Columns = columns
	state.X = scaled
	state.Y = y
	state.Scaler = scaler
	state.Data = data
	state.Note("design_columns", len(columns))
	return nil
}

type trainStep struct {
	BaseStep
	deps *Deps
}

func (s *trainStep) Validate(state *RunState) error {
	if state.Data == nil {
		return errors.New("design matrix not built")
	}
	return nil
}

func (s *trainStep) Execute(ctx context.Context, state *RunState) error {
	roster, err := estimators.Roster(s.deps.Config.Estimators, state.Pipeline.Seed)
	if err != nil {
		return err
	}
	h := training.NewHarness(state.Pipeline.Dataset, state.Pipeline.CVFolds, s.deps.Logger, s.deps.Metrics)
	report, err := h.Run(ctx, state.Data, roster)
	if err != nil {
		return err
	}
	if len(report.Results) == 0 {
		return apperrors.NewEstimatorTrainingError("roster", fmt.Errorf("all %d estimators failed", len(roster)))
	}

	state.Roster = roster
	state.Report = report
	if best, ok := report.Best(); ok {
		state.Note("best", best.Estimator)
		state.Note("best_test_mse", best.Test.MSE)
	}
	state.Note("trained", len(report.Results))
	state.Note("failed", len(report.Failures))
	return nil
}

type alternateStep struct {
	BaseStep
	deps *Deps
}

func (s *alternateStep) Validate(state *RunState) error {
	if !state.Pipeline.RunAlternate {
		return ErrNotApplicable
	}
	if state.Report == nil {
		return errors.New("classical roster not trained")
	}
	return nil
}

// Execute fits the alternate estimator on capped partitions. A bad
// configuration fails the run; any other failure joins the report's
// failures like a roster estimator's.
func (s *alternateStep) Execute(ctx context.Context, state *RunState) error {
	cfg := s.deps.Config.Alternate
	alt := variational.NewRegressor(cfg, state.Pipeline.Seed, s.deps.Logger)
	capped := &training.Data{
		XTrain: head(state.Data.XTrain, cfg.MaxTrainSamples),
		YTrain: headOf(state.Data.YTrain, cfg.MaxTrainSamples),
		XTest:  head(state.Data.XTest, cfg.MaxTestSamples),
		YTest:  headOf(state.Data.YTest, cfg.MaxTestSamples),
	}

	h := training.NewHarness(state.Pipeline.Dataset, state.Pipeline.CVFolds, s.deps.Logger, s.deps.Metrics)
	res, err := h.Evaluate(ctx, alt, capped, false)
	infrastructure.RecordObjectiveEvals(ctx, s.deps.Metrics, state.Pipeline.Dataset, alt.Evaluations)
	state.Note("evaluations", alt.Evaluations)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if apperrors.IsType(err, apperrors.ErrTypeConfig) {
			return err
		}
		state.Report.Failures = append(state.Report.Failures, training.Failure{
			Estimator: alt.Name(),
			Err:       apperrors.NewEstimatorTrainingError(alt.Name(), err),
		})
		s.deps.Logger.ErrorContext(ctx, "estimator failed",
			slog.String("estimator", alt.Name()),
			slog.String("error", err.Error()))
		state.Note("failed", true)
		return nil
	}

	state.Report.Results = append(state.Report.Results, res)
	state.Alternate = alt

	improvement := variational.ImprovementOver(cfg.BaselineMSE, res.Test.MSE)
	s.deps.Logger.InfoContext(ctx, "alternate estimator compared with baseline",
		slog.Float64("baseline_mse", cfg.BaselineMSE),
		slog.Float64("test_mse", res.Test.MSE),
		slog.Float64("improvement_pct", improvement),
		slog.Float64("retained_variance", alt.Compressor.RetainedVariance))
	state.Note("test_mse", res.Test.MSE)
	state.Note("improvement_pct", improvement)
	state.Note("retained_variance", alt.Compressor.RetainedVariance)
	return nil
}

func head(X *mat.Dense, n int) *mat.Dense {
	r, c := X.Dims()
	if n >= r {
		return X
	}
	return mat.DenseCopyOf(X.Slice(0, n, 0, c))
}

func headOf(v []float64, n int) []float64 {
	if n >= len(v) {
		return v
	}
	return v[:n]
}

type persistStep struct {
	BaseStep
	deps *Deps
}

func (s *persistStep) Validate(state *RunState) error {
	if state.Report == nil || state.Scaler == nil {
		return errors.New("nothing trained")
	}
	return nil
}

func (s *persistStep) Execute(ctx context.Context, state *RunState) error {
	dp := state.Paths
	m := state.Manifest

	if err := features.SaveState(dp.FeatureState, state.Features); err != nil {
		return err
	}
	m.AddArtifact("feature_state", dp.FeatureState)
	if err := categorical.Save(dp.Encoder, state.Encoders); err != nil {
		return err
	}
	m.AddArtifact("encoder", dp.Encoder)
	if err := normalize.SaveScaler(dp.Scaler, state.Scaler); err != nil {
		return err
	}
	m.AddArtifact("scaler", dp.Scaler)
	if state.Alternate != nil {
		if err := reduction.Save(dp.Compressor, state.Alternate.Compressor); err != nil {
			return err
		}
		m.AddArtifact("compressor", dp.Compressor)
	}

	saved := 0
	for i, res := range state.Report.Results {
		if err := ctx.Err(); err != nil {
			return err
		}
		est, ok := state.Fitted(res.Estimator)
		if !ok {
			return apperrors.NewStateError("estimator " + res.Estimator)
		}
		name := ModelName(res.Estimator, state.Pipeline.Dataset, state.Pipeline.ModelVersion)
		path := dp.ModelPath(name)
		if err := s.deps.Codec.Save(path, est); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
		state.Report.Results[i].ArtifactPath = path
		m.AddArtifact("model:"+name, path)
		saved++
	}
	state.Note("models", saved)
	return nil
}

type registerStep struct {
	BaseStep
	deps *Deps
}

func (s *registerStep) Validate(state *RunState) error {
	if s.deps.Registry == nil {
		return ErrNotApplicable
	}
	return nil
}

func (s *registerStep) Execute(ctx context.Context, state *RunState) error {
	ds := state.Pipeline.Dataset
	for _, res := range state.Report.Results {
		if res.ArtifactPath == "" {
			continue
		}
		name := ModelName(res.Estimator, ds, state.Pipeline.ModelVersion)
		entry := registry.Entry{
			Name:    name,
			Type:    string(res.Kind),
			Dataset: ds,
			Path:    res.ArtifactPath,
			Metrics: res.MetricMap(),
			Description: fmt.Sprintf("%s trained on %d %s rows (%s, run %s)",
				res.Estimator, len(state.Data.YTrain), ds, state.Pipeline.LeakagePolicy, state.ID),
		}
		if err := s.deps.Registry.Register(ctx, entry); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
		state.Registered = append(state.Registered, name)
		state.Manifest.AddModel(name)
	}
	state.Note("registered", state.Registered)
	return nil
}

type exportStep struct {
	BaseStep
	deps *Deps
}

func (s *exportStep) Validate(state *RunState) error {
	if s.deps.Exporter == nil {
		return ErrNotApplicable
	}
	if state.Report == nil {
		return errors.New("nothing trained")
	}
	return nil
}

func (s *exportStep) Execute(ctx context.Context, state *RunState) error {
	out, err := s.deps.Exporter.Export(ctx, state.Pipeline.Dataset, state.Report, state.Data.YTest)
	if err != nil {
		return err
	}
	state.Outputs = out
	state.Manifest.AddArtifact("results_csv", out.CSV)
	state.Manifest.AddArtifact("results_xlsx", out.XLSX)
	state.Note("plots", len(out.Plots))
	return nil
}
