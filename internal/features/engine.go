package features

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	apperrors "annadata/internal/errors"
	"annadata/internal/frame"
	"annadata/internal/normalize"
)

// Engine derives features for one Spec.
type Engine struct {
	spec   Spec
	logger *slog.Logger
}

// NewEngine returns an engine for spec.
func NewEngine(spec Spec, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		spec:   spec,
		logger: logger.With(slog.String("component", "feature_engine"), slog.String("dataset", spec.Dataset)),
	}
}

// Spec returns the engine's spec
func (e *Engine) Spec() Spec { return e.spec }

// Fit learns capping bounds, scalars and imputation means from the given
// rows of f (nil means every row) and returns the state together with the
// transformed frame. Lags and rolling windows always see every row.
func (e *Engine) Fit(ctx context.Context, f *frame.Frame, rows []int) (*State, *frame.Frame, error) {
	st := newState(e.spec.Dataset)
	st.FittedRows = f.Len()
	if rows != nil {
		st.FittedRows = len(rows)
	}
	if st.FittedRows == 0 {
		return nil, nil, apperrors.NewDataError("cannot fit features on zero rows", nil)
	}

	out, err := e.run(ctx, st, f, rows, true)
	if err != nil {
		return nil, nil, err
	}
	e.logger.InfoContext(ctx, "features fitted",
		slog.Int("rows", f.Len()),
		slog.Int("fit_rows", st.FittedRows),
		slog.Int("features", len(st.Schema.Columns)),
		slog.Int("capped_columns", len(st.CapColumns)))
	return st, out, nil
}

// Transform replays the sequence with a fitted state.
func (e *Engine) Transform(ctx context.Context, st *State, f *frame.Frame) (*frame.Frame, error) {
	if st == nil || st.Bounds == nil {
		return nil, apperrors.NewStateError("feature engine")
	}
	if st.Dataset != e.spec.Dataset {
		return nil, apperrors.NewDataError(fmt.Sprintf("state fitted for %s, engine is %s", st.Dataset, e.spec.Dataset), nil)
	}
	return e.run(ctx, st, f, nil, false)
}

// Target returns the label for every row of an engineered frame. With a
// lead, rows without a successor in their group get NaN.
func (e *Engine) Target(f *frame.Frame) ([]float64, error) {
	src, err := f.MustFloat(e.spec.Target)
	if err != nil {
		return nil, err
	}
	y := make([]float64, len(src))
	if e.spec.TargetLead == 0 {
		copy(y, src)
		return y, nil
	}
	for i := range y {
		y[i] = math.NaN()
	}
	_, groups := f.Groups()
	for _, rows := range groups {
		for i := 0; i+e.spec.TargetLead < len(rows); i++ {
			y[rows[i]] = src[rows[i+e.spec.TargetLead]]
		}
	}
	return y, nil
}

type stage struct {
	name string
	fn   func(st *State, f *frame.Frame, rows []int, fitting bool) error
}

func (e *Engine) stages() []stage {
	return []stage{
		{"log", e.logCompress},
		{"cap", e.capOutliers},
		{"derive", e.deriveDomain},
		{"temporal", e.temporal},
		{"lag", e.lagFeatures},
		{"rolling", e.rollingFeatures},
		{"interactions", e.interactions},
		{"impute", e.impute},
	}
}

// run never returns a partially built frame: any stage error aborts.
func (e *Engine) run(ctx context.Context, st *State, in *frame.Frame, rows []int, fitting bool) (*frame.Frame, error) {
	if err := e.checkRequired(in); err != nil {
		return nil, err
	}

	f := in.Clone()
	if e.spec.GroupColumn != "" {
		if err := f.SetGroupColumn(e.spec.GroupColumn); err != nil {
			return nil, err
		}
	}
	if !f.IsOrdered() {
		return nil, apperrors.NewDataError("records are not in timestamp order within each group", nil)
	}

	for _, s := range e.stages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		if err := s.fn(st, f, rows, fitting); err != nil {
			e.logger.ErrorContext(ctx, "feature stage failed",
				slog.String("stage", s.name),
				slog.String("error", err.Error()))
			return nil, fmt.Errorf("feature stage %s: %w", s.name, err)
		}
		e.logger.DebugContext(ctx, "feature stage complete",
			slog.String("stage", s.name),
			slog.Duration("duration", time.Since(start)))
	}
	return f, nil
}

func (e *Engine) checkRequired(f *frame.Frame) error {
	required := append([]string(nil), e.spec.Required...)
	if e.spec.GroupColumn != "" {
		required = append(required, e.spec.GroupColumn)
	}
	for _, col := range required {
		if !f.Has(col) {
			return apperrors.NewFeatureError(col)
		}
	}
	if e.spec.Calendar && !f.HasTimes() {
		return apperrors.NewFeatureError("timestamp")
	}
	return nil
}

func (e *Engine) logCompress(_ *State, f *frame.Frame, _ []int, _ bool) error {
	for _, col := range e.spec.LogColumns {
		values, err := f.MustFloat(col)
		if err != nil {
			return err
		}
		out := make([]float64, len(values))
		for i, v := range values {
			if v < 0 {
				return apperrors.NewDataError(fmt.Sprintf("log1p on %s", col),
					fmt.Errorf("negative value %g at row %d", v, i)).WithContext("column", col)
			}
			out[i] = math.Log1p(v)
		}
		if err := f.AddFloat(col+"_log", out); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) capOutliers(st *State, f *frame.Frame, rows []int, fitting bool) error {
	if fitting {
		skip := e.spec.excluded()
		for _, c := range e.spec.CapExclude {
			skip[c] = true
		}
		var cols []string
		for _, c := range f.FloatColumns() {
			if !skip[c] {
				cols = append(cols, c)
			}
		}
		bounds, err := normalize.FitBounds(f, cols, rows)
		if err != nil {
			return err
		}
		st.Bounds = bounds
		st.CapColumns = cols
	}

	for _, col := range st.CapColumns {
		values, err := f.MustFloat(col)
		if err != nil {
			return err
		}
		capped, err := st.Bounds.Clip(col, values)
		if err != nil {
			return err
		}
		if err := f.AddFloat(col+"_capped", capped); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) deriveDomain(st *State, f *frame.Frame, rows []int, fitting bool) error {
	if fitting {
		for _, sc := range e.spec.Scalars {
			values, err := f.MustFloat(sc.Column)
			if err != nil {
				return err
			}
			var v float64
			var ok bool
			switch sc.Stat {
			case StatMin:
				v, ok = normalize.FiniteMin(values, rows)
			default:
				v, ok = normalize.FiniteMean(values, rows)
			}
			if !ok {
				return apperrors.NewDataError(fmt.Sprintf("no finite %s values to fit %s", sc.Column, sc.Name), nil)
			}
			st.Scalars[sc.Name] = v
		}
	}
	if e.spec.Derive == nil {
		return nil
	}
	return e.spec.Derive(f, st.Scalars)
}

func (e *Engine) temporal(_ *State, f *frame.Frame, _ []int, _ bool) error {
	if e.spec.Calendar {
		if err := addCalendar(f); err != nil {
			return err
		}
	}
	for _, c := range e.spec.Cycles {
		if err := addCycle(f, c); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) lagFeatures(st *State, f *frame.Frame, rows []int, fitting bool) error {
	if len(e.spec.LagColumns) == 0 {
		return nil
	}
	_, groups := f.Groups()
	for _, col := range e.spec.LagColumns {
		values, err := f.MustFloat(col)
		if err != nil {
			return err
		}
		if fitting {
			mean, ok := normalize.FiniteMean(values, rows)
			if !ok {
				return apperrors.NewDataError(fmt.Sprintf("no finite %s values for lag imputation", col), nil)
			}
			st.BaseMeans[col] = mean
		}
		fill, ok := st.BaseMeans[col]
		if !ok {
			return apperrors.NewStateError("lag imputation for " + col)
		}
		for _, k := range e.spec.Lags {
			if err := f.AddFloat(LagName(col, k), lag(values, groups, k, fill)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) rollingFeatures(_ *State, f *frame.Frame, _ []int, _ bool) error {
	if len(e.spec.RollingColumns) == 0 {
		return nil
	}
	_, groups := f.Groups()
	for _, col := range e.spec.RollingColumns {
		values, err := f.MustFloat(col)
		if err != nil {
			return err
		}
		for _, w := range e.spec.Windows {
			mean, std := rolling(values, groups, w)
			if err := f.AddFloat(RollingMeanName(col, w), mean); err != nil {
				return err
			}
			if err := f.AddFloat(RollingStdName(col, w), std); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) interactions(_ *State, f *frame.Frame, _ []int, _ bool) error {
	for _, in := range e.spec.Interactions {
		left, err := f.MustFloat(in.Left)
		if err != nil {
			return err
		}
		right, err := f.MustFloat(in.Right)
		if err != nil {
			return err
		}
		out := make([]float64, len(left))
		for i := range out {
			out[i] = in.apply(left[i], right[i])
		}
		if err := f.AddFloat(in.Name, out); err != nil {
			return err
		}
	}
	return nil
}

// impute fixes the schema on fit, checks it on transform, then replaces
// every non-finite feature value with the fitted column mean.
func (e *Engine) impute(st *State, f *frame.Frame, rows []int, fitting bool) error {
	skip := e.spec.excluded()
	var cols []string
	for _, c := range f.FloatColumns() {
		if !skip[c] {
			cols = append(cols, c)
		}
	}

	if fitting {
		st.Schema = Schema{Columns: cols}
		for _, c := range cols {
			values, _ := f.Float(c)
			mean, ok := normalize.FiniteMean(values, rows)
			if !ok {
				e.logger.Warn("feature has no finite fit values, imputing zero", slog.String("feature", c))
			}
			st.Means[c] = mean
		}
	} else if err := st.Schema.Check(cols); err != nil {
		return err
	}

	for _, c := range cols {
		values, _ := f.Float(c)
		fill := st.Means[c]
		var patched []float64
		for i, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				if patched == nil {
					patched = append([]float64(nil), values...)
				}
				patched[i] = fill
			}
		}
		if patched != nil {
			if err := f.AddFloat(c, patched); err != nil {
				return err
			}
		}
	}
	return nil
}
