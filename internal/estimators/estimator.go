// Package estimators holds the regression estimators the training harness
// compares and the codec that persists them.
package estimators

import (
	"context"
	"encoding"
	"fmt"

	"gonum.org/v1/gonum/mat"

	apperrors "annadata/internal/errors"
)

// Kind is the estimator family recorded in the registry.
type Kind string

const (
	KindLinear       Kind = "linear"
	KindEnsembleTree Kind = "ensemble_tree"
	KindKernel       Kind = "kernel"
	KindAlternate    Kind = "alternate"
)

// Roster names of the classical estimators.
const (
	NameLinear = "linear_regression"
	NameForest = "random_forest"
	NameKernel = "kernel_ridge"
)

// Estimator is the capability set every model exposes. Clone returns an
// unfitted copy with the same hyperparameters, used for cross-validation.
type Estimator interface {
	Name() string
	Kind() Kind
	Fit(ctx context.Context, X mat.Matrix, y []float64) error
	Predict(X mat.Matrix) ([]float64, error)
	Params() map[string]float64
	Clone() Estimator
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

func checkXY(X mat.Matrix, y []float64) (*mat.Dense, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return nil, apperrors.NewDataError("cannot fit on an empty matrix", nil)
	}
	if r != len(y) {
		return nil, apperrors.NewDataError(fmt.Sprintf("matrix has %d rows, target has %d values", r, len(y)), nil)
	}
	return mat.DenseCopyOf(X), nil
}

func checkPredict(X mat.Matrix, fitted bool, want int, name string) (*mat.Dense, error) {
	if !fitted {
		return nil, apperrors.NewStateError(name)
	}
	if _, c := X.Dims(); c != want {
		return nil, apperrors.NewDataError(fmt.Sprintf("%s fitted on %d features, got %d", name, want, c), nil)
	}
	return mat.DenseCopyOf(X), nil
}
