package normalize

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	apperrors "annadata/internal/errors"
	"annadata/internal/files"
)

// StandardScaler standardises each column to zero mean and unit variance
// using the population standard deviation. A constant column keeps scale 1.
type StandardScaler struct {
	Columns []string
	Mean    []float64
	Scale   []float64
	Fitted  bool
}

// NewStandardScaler returns an unfitted scaler for the named columns. The
// names are informational; only the column count is enforced.
func NewStandardScaler(columns []string) *StandardScaler {
	return &StandardScaler{Columns: append([]string(nil), columns...)}
}

// Fit computes per-column mean and scale from X.
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return apperrors.NewDataError("cannot fit scaler on an empty matrix", nil)
	}
	if len(s.Columns) > 0 && len(s.Columns) != c {
		return apperrors.NewDataError(fmt.Sprintf("scaler declared %d columns, matrix has %d", len(s.Columns), c), nil)
	}

	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		mean, std := stat.PopMeanStdDev(col, nil)
		s.Mean[j] = mean
		if std == 0 {
			std = 1
		}
		s.Scale[j] = std
	}
	s.Fitted = true
	return nil
}

// Transform returns (X - mean) / scale.
func (s *StandardScaler) Transform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.check(X); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, X)
	return out, nil
}

// InverseTransform maps standardised values back to the original units.
func (s *StandardScaler) InverseTransform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.check(X); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, v float64) float64 {
		return v*s.Scale[j] + s.Mean[j]
	}, X)
	return out, nil
}

// FitTransform fits on X and returns the transformed copy.
func (s *StandardScaler) FitTransform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

func (s *StandardScaler) check(X mat.Matrix) error {
	if s == nil || !s.Fitted {
		return apperrors.NewStateError("standard scaler")
	}
	if _, c := X.Dims(); c != len(s.Mean) {
		return apperrors.NewDataError(fmt.Sprintf("scaler fitted on %d columns, got %d", len(s.Mean), c), nil)
	}
	return nil
}

// TargetScaler standardises a single target vector.
type TargetScaler struct {
	Mean   float64
	Scale  float64
	Fitted bool
}

// Fit computes the population mean and standard deviation of y.
func (t *TargetScaler) Fit(y []float64) error {
	if len(y) == 0 {
		return apperrors.NewDataError("cannot fit target scaler on an empty vector", nil)
	}
	mean, std := stat.PopMeanStdDev(y, nil)
	if std == 0 {
		std = 1
	}
	t.Mean, t.Scale, t.Fitted = mean, std, true
	return nil
}

// Transform standardises y into a new slice.
func (t *TargetScaler) Transform(y []float64) ([]float64, error) {
	if t == nil || !t.Fitted {
		return nil, apperrors.NewStateError("target scaler")
	}
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = (v - t.Mean) / t.Scale
	}
	return out, nil
}

// InverseTransform restores original target units.
func (t *TargetScaler) InverseTransform(y []float64) ([]float64, error) {
	if t == nil || !t.Fitted {
		return nil, apperrors.NewStateError("target scaler")
	}
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = v*t.Scale + t.Mean
	}
	return out, nil
}

// SaveScaler persists a fitted scaler. Saving an unfitted scaler is a STATE error.
func SaveScaler(path string, s *StandardScaler) error {
	if s == nil || !s.Fitted {
		return apperrors.NewStateError("standard scaler")
	}
	if err := files.SaveGob(path, s); err != nil {
		return apperrors.NewStorageError("save scaler", err)
	}
	return nil
}

// LoadScaler reads a scaler written by SaveScaler.
func LoadScaler(path string) (*StandardScaler, error) {
	var s StandardScaler
	if err := files.LoadGob(path, &s); err != nil {
		return nil, apperrors.NewStorageError("load scaler", err)
	}
	return &s, nil
}

// SaveBounds persists fitted outlier bounds.
func SaveBounds(path string, ob *OutlierBounds) error {
	if ob == nil || ob.Bounds == nil {
		return apperrors.NewStateError("outlier bounds")
	}
	if err := files.SaveGob(path, ob); err != nil {
		return apperrors.NewStorageError("save outlier bounds", err)
	}
	return nil
}

// LoadBounds reads bounds written by SaveBounds.
func LoadBounds(path string) (*OutlierBounds, error) {
	var ob OutlierBounds
	if err := files.LoadGob(path, &ob); err != nil {
		return nil, apperrors.NewStorageError("load outlier bounds", err)
	}
	return &ob, nil
}
