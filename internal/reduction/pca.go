// Package reduction compresses a feature matrix onto its leading principal
// components.
package reduction

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	apperrors "annadata/internal/errors"
	"annadata/internal/files"
)

// PCA projects centred rows onto the first Components principal axes. The
// projection is fitted once; Transform never refits.
type PCA struct {
	Components int
	Features   int
	Mean       []float64
	// Loadings is Features×Components, row-major.
	Loadings         []float64
	Variances        []float64
	RetainedVariance float64
	Fitted           bool
}

// NewPCA returns an unfitted projection onto k components
func NewPCA(k int) *PCA { return &PCA{Components: k} }

// Fit computes the principal axes of X.
func (p *PCA) Fit(X mat.Matrix) error {
	n, d := X.Dims()
	if p.Components < 1 || p.Components > min(n, d) {
		return apperrors.NewConfigError(fmt.Sprintf("cannot keep %d components of a %d×%d matrix", p.Components, n, d), nil)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(X, nil); !ok {
		return apperrors.NewDataError("principal component decomposition failed", nil)
	}
	vars := pc.VarsTo(nil)
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	p.Mean = make([]float64, d)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, X)
		p.Mean[j] = stat.Mean(col, nil)
	}

	p.Loadings = make([]float64, d*p.Components)
	for i := 0; i < d; i++ {
		for j := 0; j < p.Components; j++ {
			p.Loadings[i*p.Components+j] = vecs.At(i, j)
		}
	}

	p.Variances = append([]float64(nil), vars[:p.Components]...)
	if total := floats.Sum(vars); total > 0 {
		p.RetainedVariance = floats.Sum(p.Variances) / total
	} else {
		p.RetainedVariance = 1
	}
	p.Features = d
	p.Fitted = true
	return nil
}

// Transform returns (X − mean)·W.
func (p *PCA) Transform(X mat.Matrix) (*mat.Dense, error) {
	if !p.Fitted {
		return nil, apperrors.NewStateError("pca")
	}
	n, d := X.Dims()
	if d != p.Features {
		return nil, apperrors.NewDataError(fmt.Sprintf("pca fitted on %d features, got %d", p.Features, d), nil)
	}
	centered := mat.NewDense(n, d, nil)
	centered.Apply(func(_, j int, v float64) float64 { return v - p.Mean[j] }, X)

	out := mat.NewDense(n, p.Components, nil)
	out.Mul(centered, mat.NewDense(d, p.Components, p.Loadings))
	return out, nil
}

// FitTransform fits on X and projects it.
func (p *PCA) FitTransform(X mat.Matrix) (*mat.Dense, error) {
	if err := p.Fit(X); err != nil {
		return nil, err
	}
	return p.Transform(X)
}

// Save persists a fitted projection.
func Save(path string, p *PCA) error {
	if p == nil || !p.Fitted {
		return apperrors.NewStateError("pca")
	}
	if err := files.SaveGob(path, p); err != nil {
		return apperrors.NewStorageError("save compressor", err)
	}
	return nil
}

// Load reads a projection written by Save.
func Load(path string) (*PCA, error) {
	var p PCA
	if err := files.LoadGob(path, &p); err != nil {
		return nil, apperrors.NewStorageError("load compressor", err)
	}
	return &p, nil
}
