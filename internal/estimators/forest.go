package estimators

import (
	"bytes"
	"context"
	"encoding/gob"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// TreeNode is one node of a flattened regression tree. Leaves carry Value;
// inner nodes send x[Feature] <= Threshold to Left.
type TreeNode struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	Leaf      bool
}

// RegressionTree is a CART tree stored as a node slice rooted at 0.
type RegressionTree struct {
	Nodes []TreeNode
}

func (t *RegressionTree) predict(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// RandomForest averages bootstrap-trained regression trees. Tree t is grown
// from seed Seed+t, so the fitted forest does not depend on scheduling.
type RandomForest struct {
	NTrees          int
	MaxDepth        int
	MinSamplesSplit int
	Seed            int64
	Features        int
	Trees           []RegressionTree
	Fitted          bool
}

// NewRandomForest returns an unfitted forest.
func NewRandomForest(trees, maxDepth, minSamplesSplit int, seed int64) *RandomForest {
	return &RandomForest{NTrees: trees, MaxDepth: maxDepth, MinSamplesSplit: minSamplesSplit, Seed: seed}
}

func (f *RandomForest) Name() string { return NameForest }
func (f *RandomForest) Kind() Kind   { return KindEnsembleTree }

func (f *RandomForest) Params() map[string]float64 {
	return map[string]float64{
		"n_estimators":      float64(f.NTrees),
		"max_depth":         float64(f.MaxDepth),
		"min_samples_split": float64(f.MinSamplesSplit),
		"random_state":      float64(f.Seed),
	}
}

func (f *RandomForest) Clone() Estimator {
	return NewRandomForest(f.NTrees, f.MaxDepth, f.MinSamplesSplit, f.Seed)
}

// Fit grows the trees concurrently, at most GOMAXPROCS at a time.
func (f *RandomForest) Fit(ctx context.Context, X mat.Matrix, y []float64) error {
	dense, err := checkXY(X, y)
	if err != nil {
		return err
	}
	n, d := dense.Dims()
	trees := make([]RegressionTree, f.NTrees)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for t := 0; t < f.NTrees; t++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(f.Seed + int64(t)))
			sample := make([]int, n)
			for i := range sample {
				sample[i] = rng.Intn(n)
			}
			b := &treeBuilder{X: dense, y: y, maxDepth: f.MaxDepth, minSplit: f.MinSamplesSplit, features: d}
			b.build(sample, 0)
			trees[t] = RegressionTree{Nodes: b.nodes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.Trees = trees
	f.Features = d
	f.Fitted = true
	return nil
}

// Predict averages the tree outputs.
func (f *RandomForest) Predict(X mat.Matrix) ([]float64, error) {
	dense, err := checkPredict(X, f.Fitted, f.Features, NameForest)
	if err != nil {
		return nil, err
	}
	r, _ := dense.Dims()
	out := make([]float64, r)
	for i := range out {
		row := dense.RawRowView(i)
		var sum float64
		for t := range f.Trees {
			sum += f.Trees[t].predict(row)
		}
		out[i] = sum / float64(len(f.Trees))
	}
	return out, nil
}

type forestGob RandomForest

func (f *RandomForest) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode((*forestGob)(f))
	return buf.Bytes(), err
}

func (f *RandomForest) UnmarshalBinary(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode((*forestGob)(f))
}

type treeBuilder struct {
	X        *mat.Dense
	y        []float64
	maxDepth int
	minSplit int
	features int
	nodes    []TreeNode
}

// build appends the subtree for idx and returns its root index. Splits
// maximise the reduction in squared error.
func (b *treeBuilder) build(idx []int, depth int) int {
	var sum float64
	for _, i := range idx {
		sum += b.y[i]
	}
	self := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{Leaf: true, Value: sum / float64(len(idx))})

	if depth >= b.maxDepth || len(idx) < b.minSplit {
		return self
	}

	feature, threshold, ok := b.bestSplit(idx, sum)
	if !ok {
		return self
	}
	var left, right []int
	for _, i := range idx {
		if b.X.At(i, feature) <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return self
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[self] = TreeNode{Feature: feature, Threshold: threshold, Left: l, Right: r, Value: b.nodes[self].Value}
	return self
}

func (b *treeBuilder) bestSplit(idx []int, total float64) (int, float64, bool) {
	n := float64(len(idx))
	baseline := total * total / n
	bestGain := baseline
	bestFeature, bestThreshold, found := 0, 0.0, false

	sorted := make([]int, len(idx))
	for j := 0; j < b.features; j++ {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return b.X.At(sorted[a], j) < b.X.At(sorted[c], j) })

		var left float64
		for p := 0; p < len(sorted)-1; p++ {
			left += b.y[sorted[p]]
			x, next := b.X.At(sorted[p], j), b.X.At(sorted[p+1], j)
			if x == next {
				continue
			}
			nl := float64(p + 1)
			right := total - left
			gain := left*left/nl + right*right/(n-nl)
			if gain > bestGain+1e-12 {
				threshold := x + (next-x)/2
				if threshold >= next {
					threshold = x
				}
				bestGain, bestFeature, bestThreshold, found = gain, j, threshold, true
			}
		}
	}
	return bestFeature, bestThreshold, found
}
