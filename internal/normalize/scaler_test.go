package normalize

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	apperrors "annadata/internal/errors"
)

func TestStandardScaler(t *testing.T) {
	X := mat.NewDense(4, 3, []float64{
		1, 10, 5,
		2, 20, 5,
		3, 30, 5,
		4, 40, 5,
	})

	s := NewStandardScaler([]string{"a", "b", "constant"})
	Z, err := s.FitTransform(X)
	require.NoError(t, err)

	assert.Equal(t, []float64{2.5, 25, 5}, s.Mean)
	assert.InDelta(t, math.Sqrt(1.25), s.Scale[0], 1e-12)
	assert.Equal(t, 1.0, s.Scale[2], "zero variance keeps unit scale")

	col := mat.Col(nil, 1, Z)
	var sum, sq float64
	for _, v := range col {
		sum += v
		sq += v * v
	}
	assert.InDelta(t, 0, sum/4, 1e-12)
	assert.InDelta(t, 1, sq/4, 1e-12)
	assert.Equal(t, 0.0, Z.At(0, 2))
}

func TestScalerRoundTrip(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1.5, -2, 3.25, 8, 1e6, 0.001})
	s := NewStandardScaler(nil)
	require.NoError(t, s.Fit(X))

	Z, err := s.Transform(X)
	require.NoError(t, err)
	back, err := s.InverseTransform(Z)
	require.NoError(t, err)
	again, err := s.Transform(back)
	require.NoError(t, err)

	assert.True(t, mat.EqualApprox(Z, again, 1e-9))
	assert.True(t, mat.EqualApprox(X, back, 1e-6))
}

func TestScalerErrors(t *testing.T) {
	s := NewStandardScaler([]string{"a", "b"})

	_, err := s.Transform(mat.NewDense(1, 2, nil))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeState))
	_, err = s.InverseTransform(mat.NewDense(1, 2, nil))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeState))

	err = s.Fit(mat.NewDense(2, 3, nil))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeData))

	require.NoError(t, s.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})))
	_, err = s.Transform(mat.NewDense(1, 3, nil))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeData))
}

func TestTargetScaler(t *testing.T) {
	var ts TargetScaler
	_, err := ts.Transform([]float64{1})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeState))

	y := []float64{10, 20, 30}
	require.NoError(t, ts.Fit(y))
	z, err := ts.Transform(y)
	require.NoError(t, err)
	assert.InDelta(t, 0, z[1], 1e-12)

	back, err := ts.InverseTransform(z)
	require.NoError(t, err)
	assert.InDeltaSlice(t, y, back, 1e-9)

	assert.Error(t, ts.Fit(nil))
}

func TestScalerPersistence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scaler.gob")

	assert.True(t, apperrors.IsType(SaveScaler(path, NewStandardScaler(nil)), apperrors.ErrTypeState))

	X := mat.NewDense(3, 2, []float64{0.1, 7, 0.2, 9, 0.7, 13})
	s := NewStandardScaler([]string{"x", "y"})
	require.NoError(t, s.Fit(X))
	require.NoError(t, SaveScaler(path, s))

	loaded, err := LoadScaler(path)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)

	want, _ := s.Transform(X)
	got, err := loaded.Transform(X)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-9))

	_, err = LoadScaler(filepath.Join(dir, "missing.gob"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))
}

func TestBoundsPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bounds.gob")
	ob := &OutlierBounds{Columns: []string{"Area"}, Bounds: map[string]Bound{"Area": {Lower: -1, Upper: 7}}}
	require.NoError(t, SaveBounds(path, ob))

	loaded, err := LoadBounds(path)
	require.NoError(t, err)
	assert.Equal(t, ob, loaded)
}
