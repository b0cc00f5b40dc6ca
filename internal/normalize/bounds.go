package normalize

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	apperrors "annadata/internal/errors"
	"annadata/internal/frame"
)

// IQRMultiplier widens the inter-quartile range into capping bounds.
const IQRMultiplier = 1.5

// Bound is a closed clipping interval
type Bound struct {
	Lower float64
	Upper float64
}

// Contains reports whether v lies inside the bound
func (b Bound) Contains(v float64) bool {
	return v >= b.Lower && v <= b.Upper
}

// OutlierBounds maps a column to the bound fitted on the reference data.
type OutlierBounds struct {
	Columns []string
	Bounds  map[string]Bound
}

// QuartileBounds returns [Q1 - 1.5*IQR, Q3 + 1.5*IQR] over the finite values.
// Quartiles are the empirical-CDF inverse, so for [1,2,2,3,3,3,4,4,5,100]
// Q1 is 2 and Q3 is 4.
func QuartileBounds(values []float64) (Bound, error) {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return Bound{}, apperrors.NewDataError("no finite values to fit outlier bounds", nil)
	}
	sort.Float64s(sorted)

	q1 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
	q3 := stat.Quantile(0.75, stat.Empirical, sorted, nil)
	iqr := q3 - q1
	return Bound{Lower: q1 - IQRMultiplier*iqr, Upper: q3 + IQRMultiplier*iqr}, nil
}

// FitBounds fits a bound for each column using only the given rows of f.
// A nil rows slice means every row.
func FitBounds(f *frame.Frame, columns []string, rows []int) (*OutlierBounds, error) {
	ob := &OutlierBounds{
		Columns: append([]string(nil), columns...),
		Bounds:  make(map[string]Bound, len(columns)),
	}
	for _, col := range columns {
		values, err := f.MustFloat(col)
		if err != nil {
			return nil, err
		}
		b, err := QuartileBounds(subset(values, rows))
		if err != nil {
			return nil, fmt.Errorf("fit bounds for %s: %w", col, err)
		}
		ob.Bounds[col] = b
	}
	return ob, nil
}

// Clip returns a capped copy of values. NaN passes through unchanged.
func (ob *OutlierBounds) Clip(column string, values []float64) ([]float64, error) {
	if ob == nil || ob.Bounds == nil {
		return nil, apperrors.NewStateError("outlier bounds")
	}
	b, ok := ob.Bounds[column]
	if !ok {
		return nil, apperrors.NewFeatureError(column)
	}
	out := make([]float64, len(values))
	for i, v := range values {
		switch {
		case v < b.Lower:
			out[i] = b.Lower
		case v > b.Upper:
			out[i] = b.Upper
		default:
			out[i] = v
		}
	}
	return out, nil
}

// subset picks rows from values; nil rows returns values itself.
func subset(values []float64, rows []int) []float64 {
	if rows == nil {
		return values
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = values[r]
	}
	return out
}

// FiniteMean averages the finite values among the given rows, reporting
// false when there are none.
func FiniteMean(values []float64, rows []int) (float64, bool) {
	var sum float64
	var n int
	for _, v := range subset(values, rows) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// FiniteMin is the smallest finite value among the given rows.
func FiniteMin(values []float64, rows []int) (float64, bool) {
	lowest := math.Inf(1)
	for _, v := range subset(values, rows) {
		if !math.IsNaN(v) && v < lowest {
			lowest = v
		}
	}
	if math.IsInf(lowest, 1) {
		return 0, false
	}
	return lowest, true
}
