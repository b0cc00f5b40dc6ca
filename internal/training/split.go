package training

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	apperrors "annadata/internal/errors"
)

// Partition holds row indices of a train/test split.
type Partition struct {
	Train []int
	Test  []int
}

// Split shuffles n rows with seed and holds out ceil(n·testFraction) of
// them. The same seed always gives the same partition.
func Split(n int, testFraction float64, seed int64) (Partition, error) {
	if testFraction <= 0 || testFraction >= 1 {
		return Partition{}, apperrors.NewDataError(fmt.Sprintf("test fraction %g outside (0, 1)", testFraction), nil)
	}
	nTest := int(math.Ceil(float64(n) * testFraction))
	if n-nTest < 1 || nTest < 1 {
		return Partition{}, apperrors.NewDataError(fmt.Sprintf("%d rows cannot fill both partitions", n), nil)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return Partition{Train: perm[nTest:], Test: perm[:nTest]}, nil
}

// KFold returns k contiguous folds over n rows; the first n mod k folds hold
// one extra row.
func KFold(n, k int) ([]Partition, error) {
	if k < 2 || k > n {
		return nil, apperrors.NewDataError(fmt.Sprintf("cannot make %d folds from %d rows", k, n), nil)
	}
	folds := make([]Partition, k)
	start := 0
	for f := 0; f < k; f++ {
		size := n / k
		if f < n%k {
			size++
		}
		p := Partition{}
		for i := 0; i < n; i++ {
			if i >= start && i < start+size {
				p.Test = append(p.Test, i)
			} else {
				p.Train = append(p.Train, i)
			}
		}
		folds[f] = p
		start += size
	}
	return folds, nil
}

// Data is a materialised split.
type Data struct {
	XTrain *mat.Dense
	XTest  *mat.Dense
	YTrain []float64
	YTest  []float64
}

// NewData copies the partition's rows out of X and y.
func NewData(X mat.Matrix, y []float64, p Partition) (*Data, error) {
	r, _ := X.Dims()
	if r != len(y) {
		return nil, apperrors.NewDataError(fmt.Sprintf("matrix has %d rows, target has %d values", r, len(y)), nil)
	}
	if len(p.Train) == 0 || len(p.Test) == 0 {
		return nil, apperrors.NewDataError("empty train or test partition", nil)
	}
	return &Data{
		XTrain: Rows(X, p.Train),
		XTest:  Rows(X, p.Test),
		YTrain: Pick(y, p.Train),
		YTest:  Pick(y, p.Test),
	}, nil
}

// Rows copies the given rows of X into a new matrix.
func Rows(X mat.Matrix, idx []int) *mat.Dense {
	_, c := X.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, r := range idx {
		for j := 0; j < c; j++ {
			out.Set(i, j, X.At(r, j))
		}
	}
	return out
}

// Pick copies the given elements of v.
func Pick(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, r := range idx {
		out[i] = v[r]
	}
	return out
}
