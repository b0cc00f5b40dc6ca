package estimators

import (
	"bytes"
	"context"
	"encoding/gob"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	apperrors "annadata/internal/errors"
)

// singularTolerance drops singular values below tol·σmax, the same cut a
// least-squares pseudo-inverse uses.
const singularTolerance = 1e-10

// LinearRegression is ordinary least squares with an intercept. The
// minimum-norm solution comes from the SVD of the centred design matrix, so
// collinear and constant columns are tolerated.
type LinearRegression struct {
	Coef      []float64
	Intercept float64
	Fitted    bool
}

// NewLinearRegression returns an unfitted model
func NewLinearRegression() *LinearRegression { return &LinearRegression{} }

func (l *LinearRegression) Name() string { return NameLinear }
func (l *LinearRegression) Kind() Kind   { return KindLinear }

func (l *LinearRegression) Params() map[string]float64 {
	return map[string]float64{"fit_intercept": 1}
}

func (l *LinearRegression) Clone() Estimator { return NewLinearRegression() }

// Fit solves min ||Xc·w − yc||.
func (l *LinearRegression) Fit(ctx context.Context, X mat.Matrix, y []float64) error {
	dense, err := checkXY(X, y)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r, c := dense.Dims()

	colMeans := make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, dense)
		colMeans[j] = stat.Mean(col, nil)
	}
	yMean := stat.Mean(y, nil)

	centered := mat.NewDense(r, c, nil)
	centered.Apply(func(_, j int, v float64) float64 { return v - colMeans[j] }, dense)
	yc := make([]float64, r)
	for i, v := range y {
		yc[i] = v - yMean
	}

	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return apperrors.NewDataError("singular value decomposition did not converge", nil)
	}
	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// w = V · diag(1/σ) · Uᵀ · yc
	uty := mat.NewVecDense(len(values), nil)
	uty.MulVec(u.T(), mat.NewVecDense(r, yc))
	cut := 0.0
	if len(values) > 0 {
		cut = values[0] * singularTolerance
	}
	for k, s := range values {
		if s > cut {
			uty.SetVec(k, uty.AtVec(k)/s)
		} else {
			uty.SetVec(k, 0)
		}
	}
	w := mat.NewVecDense(c, nil)
	w.MulVec(&v, uty)

	l.Coef = make([]float64, c)
	for j := range l.Coef {
		l.Coef[j] = w.AtVec(j)
	}
	l.Intercept = yMean - floats.Dot(colMeans, l.Coef)
	l.Fitted = true
	return nil
}

// Predict returns X·w + b.
func (l *LinearRegression) Predict(X mat.Matrix) ([]float64, error) {
	dense, err := checkPredict(X, l.Fitted, len(l.Coef), NameLinear)
	if err != nil {
		return nil, err
	}
	r, _ := dense.Dims()
	out := make([]float64, r)
	for i := range out {
		out[i] = floats.Dot(dense.RawRowView(i), l.Coef) + l.Intercept
	}
	return out, nil
}

type linearGob LinearRegression

func (l *LinearRegression) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode((*linearGob)(l))
	return buf.Bytes(), err
}

func (l *LinearRegression) UnmarshalBinary(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode((*linearGob)(l))
}
