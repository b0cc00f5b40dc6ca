package variational

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"annadata/internal/config"
	apperrors "annadata/internal/errors"
	"annadata/internal/estimators"
	"annadata/internal/normalize"
	"annadata/internal/reduction"
)

// Name is the roster name of the alternate estimator.
const Name = "variational_regressor"

// Regressor standardises its input, compresses it with PCA, embeds each row
// as rotation angles and reads a parity expectation out of a trainable
// circuit. The circuit is fitted against the standardised target by
// Nelder–Mead with parameters held in [−π, π].
type Regressor struct {
	Components      int
	EmbeddingWidth  int
	FeatureMapReps  int
	AnsatzReps      int
	MaxIterations   int
	MaxTrainSamples int
	Seed            int64

	Scaler      *normalize.StandardScaler
	Compressor  *reduction.PCA
	Target      normalize.TargetScaler
	Theta       []float64
	InitialLoss float64
	Loss        float64
	Evaluations int
	Status      string
	Fitted      bool

	logger *slog.Logger
}

// NewRegressor returns an unfitted regressor configured from cfg.
func NewRegressor(cfg config.AlternateConfig, seed int64, logger *slog.Logger) *Regressor {
	return &Regressor{
		Components:      cfg.Components,
		EmbeddingWidth:  cfg.EmbeddingWidth,
		FeatureMapReps:  cfg.FeatureMapReps,
		AnsatzReps:      cfg.AnsatzReps,
		MaxIterations:   cfg.MaxIterations,
		MaxTrainSamples: cfg.MaxTrainSamples,
		Seed:            seed,
		logger:          logger,
	}
}

// RegisterCodec teaches c to rebuild regressor artifacts.
func RegisterCodec(c *estimators.Codec) {
	c.Register(estimators.KindAlternate, func() estimators.Estimator { return &Regressor{} })
}

func (r *Regressor) Name() string          { return Name }
func (r *Regressor) Kind() estimators.Kind { return estimators.KindAlternate }

func (r *Regressor) Params() map[string]float64 {
	p := map[string]float64{
		"components":       float64(r.Components),
		"embedding_width":  float64(r.EmbeddingWidth),
		"feature_map_reps": float64(r.FeatureMapReps),
		"ansatz_reps":      float64(r.AnsatzReps),
		"max_iterations":   float64(r.MaxIterations),
	}
	if r.Fitted {
		p["retained_variance"] = r.Compressor.RetainedVariance
		p["final_loss"] = r.Loss
		p["evaluations"] = float64(r.Evaluations)
	}
	return p
}

func (r *Regressor) Clone() estimators.Estimator {
	return &Regressor{
		Components:      r.Components,
		EmbeddingWidth:  r.EmbeddingWidth,
		FeatureMapReps:  r.FeatureMapReps,
		AnsatzReps:      r.AnsatzReps,
		MaxIterations:   r.MaxIterations,
		MaxTrainSamples: r.MaxTrainSamples,
		Seed:            r.Seed,
		logger:          r.logger,
	}
}

func (r *Regressor) circuit() circuit {
	return circuit{width: r.EmbeddingWidth, featureMapReps: r.FeatureMapReps, ansatzReps: r.AnsatzReps}
}

func (r *Regressor) log() *slog.Logger {
	if r.logger == nil {
		return slog.Default()
	}
	return r.logger
}

// Fit trains on at most MaxTrainSamples leading rows of X.
func (r *Regressor) Fit(ctx context.Context, X mat.Matrix, y []float64) error {
	if r.EmbeddingWidth != r.Components {
		return apperrors.NewConfigError(fmt.Sprintf(
			"embedding width %d must equal compressor components %d", r.EmbeddingWidth, r.Components), nil)
	}
	if r.FeatureMapReps < 1 || r.AnsatzReps < 1 || r.MaxIterations < 1 {
		return apperrors.NewConfigError("repetitions and iteration cap must be positive", nil)
	}
	n, d := X.Dims()
	if n == 0 || d == 0 {
		return apperrors.NewDataError("cannot fit on an empty matrix", nil)
	}
	if n != len(y) {
		return apperrors.NewDataError(fmt.Sprintf("matrix has %d rows, target has %d values", n, len(y)), nil)
	}
	if r.MaxTrainSamples > 0 && n > r.MaxTrainSamples {
		n = r.MaxTrainSamples
	}
	Xs := mat.DenseCopyOf(X).Slice(0, n, 0, d)
	ys := y[:n]

	scaler := normalize.NewStandardScaler(nil)
	scaled, err := scaler.FitTransform(Xs)
	if err != nil {
		return err
	}
	pca := reduction.NewPCA(r.Components)
	Z, err := pca.FitTransform(scaled)
	if err != nil {
		return err
	}
	var target normalize.TargetScaler
	if err := target.Fit(ys); err != nil {
		return err
	}
	yt, err := target.Transform(ys)
	if err != nil {
		return err
	}

	c := r.circuit()
	state := make([]complex128, 1<<c.width)
	clamped := make([]float64, c.numParams())
	evals := 0
	loss := func(theta []float64) float64 {
		evals++
		clampInto(clamped, theta)
		var sum float64
		for i := 0; i < n; i++ {
			diff := c.expectation(Z.RawRowView(i), clamped, state) - yt[i]
			sum += diff * diff
		}
		return sum / float64(n)
	}

	rng := rand.New(rand.NewSource(r.Seed))
	start := make([]float64, c.numParams())
	for i := range start {
		start[i] = (2*rng.Float64() - 1) * math.Pi
	}
	r.InitialLoss = loss(start)

	problem := optimize.Problem{
		Func: loss,
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{MajorIterations: r.MaxIterations}
	result, err := optimize.Minimize(problem, start, settings, &optimize.NelderMead{SimplexSize: 0.5})
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if result == nil {
		return fmt.Errorf("optimise circuit: %w", err)
	}

	r.Theta = make([]float64, c.numParams())
	clampInto(r.Theta, result.X)
	r.Loss = result.F
	r.Evaluations = evals
	r.Status = result.Status.String()
	r.Scaler, r.Compressor, r.Target = scaler, pca, target
	r.Fitted = true

	r.log().InfoContext(ctx, "alternate estimator fitted",
		slog.Int("rows", n),
		slog.Int("components", r.Components),
		slog.Float64("retained_variance", pca.RetainedVariance),
		slog.Float64("initial_loss", r.InitialLoss),
		slog.Float64("final_loss", r.Loss),
		slog.Int("evaluations", evals),
		slog.String("status", r.Status))
	return nil
}

// Predict runs the fitted scaler, compressor and circuit, and returns values
// in target units.
func (r *Regressor) Predict(X mat.Matrix) ([]float64, error) {
	if !r.Fitted {
		return nil, apperrors.NewStateError(Name)
	}
	scaled, err := r.Scaler.Transform(X)
	if err != nil {
		return nil, err
	}
	Z, err := r.Compressor.Transform(scaled)
	if err != nil {
		return nil, err
	}
	c := r.circuit()
	state := make([]complex128, 1<<c.width)
	n, _ := Z.Dims()
	out := make([]float64, n)
	for i := range out {
		out[i] = c.expectation(Z.RawRowView(i), r.Theta, state)
	}
	return r.Target.InverseTransform(out)
}

type regressorGob Regressor

func (r *Regressor) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode((*regressorGob)(r))
	return buf.Bytes(), err
}

func (r *Regressor) UnmarshalBinary(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode((*regressorGob)(r))
}

// ImprovementOver returns how much lower mse is than baseline, in percent.
// A zero baseline yields 0.
func ImprovementOver(baseline, mse float64) float64 {
	if baseline <= 0 {
		return 0
	}
	return (baseline - mse) / baseline * 100
}

func clampInto(dst, src []float64) {
	for i, v := range src {
		dst[i] = math.Max(-math.Pi, math.Min(math.Pi, v))
	}
}
