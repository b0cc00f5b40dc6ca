package estimators

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	apperrors "annadata/internal/errors"
)

// KernelRidge is RBF kernel ridge regression. Alpha is 1/C. A zero Gamma
// selects the "scale" heuristic 1/(d·Var(X)) at fit time. The Gram matrix
// is quadratic in the sample count, so at most MaxSamples evenly spaced
// training rows are used.
type KernelRidge struct {
	C          float64
	Gamma      float64
	MaxSamples int

	FittedGamma float64
	Support     []float64
	Rows        int
	Cols        int
	Dual        []float64
	YMean       float64
	Fitted      bool
}

// NewKernelRidge returns an unfitted model.
func NewKernelRidge(c, gamma float64, maxSamples int) *KernelRidge {
	return &KernelRidge{C: c, Gamma: gamma, MaxSamples: maxSamples}
}

func (k *KernelRidge) Name() string { return NameKernel }
func (k *KernelRidge) Kind() Kind   { return KindKernel }

func (k *KernelRidge) Params() map[string]float64 {
	return map[string]float64{
		"C":           k.C,
		"alpha":       1 / k.C,
		"gamma":       k.Gamma,
		"max_samples": float64(k.MaxSamples),
	}
}

func (k *KernelRidge) Clone() Estimator { return NewKernelRidge(k.C, k.Gamma, k.MaxSamples) }

// Fit solves (K + αI)·a = y − ȳ by Cholesky factorisation.
func (k *KernelRidge) Fit(ctx context.Context, X mat.Matrix, y []float64) error {
	dense, err := checkXY(X, y)
	if err != nil {
		return err
	}
	if k.C <= 0 {
		return apperrors.NewConfigError(fmt.Sprintf("kernel ridge needs C > 0, got %g", k.C), nil)
	}
	n, d := dense.Dims()

	rows := evenlySpaced(n, k.MaxSamples)
	m := len(rows)
	support := make([]float64, 0, m*d)
	target := make([]float64, m)
	for i, r := range rows {
		support = append(support, dense.RawRowView(r)...)
		target[i] = y[r]
	}

	gamma := k.Gamma
	if gamma == 0 {
		_, variance := stat.PopMeanVariance(support, nil)
		if variance == 0 {
			variance = 1
		}
		gamma = 1 / (float64(d) * variance)
	}

	yMean := stat.Mean(target, nil)
	for i := range target {
		target[i] -= yMean
	}

	gram := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		xi := support[i*d : (i+1)*d]
		for j := i; j < m; j++ {
			v := rbf(xi, support[j*d:(j+1)*d], gamma)
			if i == j {
				v += 1 / k.C
			}
			gram.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(gram); !ok {
		return apperrors.NewDataError("kernel matrix is not positive definite", nil)
	}
	var dual mat.VecDense
	if err := chol.SolveVecTo(&dual, mat.NewVecDense(m, target)); err != nil {
		return apperrors.NewDataError("solve kernel system", err)
	}

	k.FittedGamma = gamma
	k.Support = support
	k.Rows, k.Cols = m, d
	k.Dual = mat.Col(nil, 0, &dual)
	k.YMean = yMean
	k.Fitted = true
	return nil
}

// Predict evaluates Σ aᵢ·k(x, sᵢ) + ȳ.
func (k *KernelRidge) Predict(X mat.Matrix) ([]float64, error) {
	dense, err := checkPredict(X, k.Fitted, k.Cols, NameKernel)
	if err != nil {
		return nil, err
	}
	r, _ := dense.Dims()
	out := make([]float64, r)
	for i := range out {
		x := dense.RawRowView(i)
		sum := k.YMean
		for s := 0; s < k.Rows; s++ {
			sum += k.Dual[s] * rbf(x, k.Support[s*k.Cols:(s+1)*k.Cols], k.FittedGamma)
		}
		out[i] = sum
	}
	return out, nil
}

type kernelGob KernelRidge

func (k *KernelRidge) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode((*kernelGob)(k))
	return buf.Bytes(), err
}

func (k *KernelRidge) UnmarshalBinary(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode((*kernelGob)(k))
}

func rbf(a, b []float64, gamma float64) float64 {
	d := floats.Distance(a, b, 2)
	return math.Exp(-gamma * d * d)
}

// evenlySpaced picks at most limit row indices spread across n rows.
func evenlySpaced(n, limit int) []int {
	if limit <= 0 || n <= limit {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	idx := make([]int, limit)
	for i := range idx {
		idx[i] = i * n / limit
	}
	return idx
}
