package reduction

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	apperrors "annadata/internal/errors"
)

// lowRank returns rows spread along (1, 2, 0) with small noise elsewhere.
func lowRank(n int) *mat.Dense {
	rng := rand.New(rand.NewSource(3))
	X := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		t := rng.NormFloat64() * 10
		X.Set(i, 0, t+rng.NormFloat64()*0.01)
		X.Set(i, 1, 2*t+rng.NormFloat64()*0.01)
		X.Set(i, 2, 5+rng.NormFloat64()*0.01)
	}
	return X
}

func TestPCARetainsDominantAxis(t *testing.T) {
	X := lowRank(200)
	p := NewPCA(1)
	Z, err := p.FitTransform(X)
	require.NoError(t, err)

	assert.Greater(t, p.RetainedVariance, 0.999)
	r, c := Z.Dims()
	assert.Equal(t, 200, r)
	assert.Equal(t, 1, c)

	// the loading is ±(1,2,0)/√5
	w0, w1 := p.Loadings[0], p.Loadings[1]
	assert.InDelta(t, 2, w1/w0, 1e-3)
	assert.InDelta(t, 1/math.Sqrt(5), math.Abs(w0), 1e-3)
}

func TestPCATransformReusesProjection(t *testing.T) {
	X := lowRank(50)
	p := NewPCA(2)
	require.NoError(t, p.Fit(X))
	mean := append([]float64(nil), p.Mean...)

	shifted := mat.NewDense(2, 3, []float64{100, 200, 5, -100, -200, 5})
	_, err := p.Transform(shifted)
	require.NoError(t, err)
	assert.Equal(t, mean, p.Mean, "transform never refits")
}

func TestPCAErrors(t *testing.T) {
	X := lowRank(10)

	_, err := NewPCA(2).Transform(X)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeState))

	assert.True(t, apperrors.IsType(NewPCA(4).Fit(X), apperrors.ErrTypeConfig))
	assert.True(t, apperrors.IsType(NewPCA(0).Fit(X), apperrors.ErrTypeConfig))

	p := NewPCA(2)
	require.NoError(t, p.Fit(X))
	_, err = p.Transform(mat.NewDense(1, 2, nil))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeData))
}

func TestPCAPersistence(t *testing.T) {
	X := lowRank(30)
	p := NewPCA(2)
	want, err := p.FitTransform(X)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "compressor.gob")
	require.NoError(t, Save(path, p))
	loaded, err := Load(path)
	require.NoError(t, err)

	got, err := loaded.Transform(X)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))

	assert.True(t, apperrors.IsType(Save(path, NewPCA(1)), apperrors.ErrTypeState))
}
