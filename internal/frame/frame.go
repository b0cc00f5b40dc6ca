// Package frame is the columnar table the feature pipeline passes between
// stages: an optional time axis, an optional grouping column, and named float
// and string columns kept in insertion order.
package frame

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	apperrors "annadata/internal/errors"
)

// Kind distinguishes numeric from categorical columns
type Kind int

const (
	Float Kind = iota
	String
)

// Frame is a column store with a fixed row count.
type Frame struct {
	rows   int
	times  []time.Time
	names  []string
	kinds  map[string]Kind
	floats map[string][]float64
	strs   map[string][]string
	group  string
}

// New returns an empty frame with the given number of rows.
func New(rows int) *Frame {
	return &Frame{
		rows:   rows,
		kinds:  make(map[string]Kind),
		floats: make(map[string][]float64),
		strs:   make(map[string][]string),
	}
}

// Len returns the row count
func (f *Frame) Len() int { return f.rows }

// SetTimes attaches the time axis.
func (f *Frame) SetTimes(ts []time.Time) error {
	if len(ts) != f.rows {
		return apperrors.NewDataError(fmt.Sprintf("time axis has %d values, frame has %d rows", len(ts), f.rows), nil)
	}
	f.times = ts
	return nil
}

// Times returns the time axis, nil when the frame has none
func (f *Frame) Times() []time.Time { return f.times }

// HasTimes reports whether a time axis is attached
func (f *Frame) HasTimes() bool { return f.times != nil }

// SetGroupColumn declares which string column partitions the rows.
func (f *Frame) SetGroupColumn(name string) error {
	if k, ok := f.kinds[name]; !ok || k != String {
		return apperrors.NewFeatureError(name)
	}
	f.group = name
	return nil
}

// GroupColumn returns the grouping column, "" when ungrouped
func (f *Frame) GroupColumn() string { return f.group }

// AddFloat appends a numeric column, or replaces it in place if the name exists.
func (f *Frame) AddFloat(name string, values []float64) error {
	if len(values) != f.rows {
		return apperrors.NewDataError(fmt.Sprintf("column %q has %d values, frame has %d rows", name, len(values), f.rows), nil)
	}
	f.register(name, Float)
	f.floats[name] = values
	return nil
}

// AddString appends a categorical column, or replaces it in place.
func (f *Frame) AddString(name string, values []string) error {
	if len(values) != f.rows {
		return apperrors.NewDataError(fmt.Sprintf("column %q has %d values, frame has %d rows", name, len(values), f.rows), nil)
	}
	f.register(name, String)
	f.strs[name] = values
	return nil
}

func (f *Frame) register(name string, kind Kind) {
	if old, ok := f.kinds[name]; ok {
		if old != kind {
			delete(f.floats, name)
			delete(f.strs, name)
		}
		f.kinds[name] = kind
		return
	}
	f.names = append(f.names, name)
	f.kinds[name] = kind
}

// Float returns a numeric column. The slice is shared, not copied.
func (f *Frame) Float(name string) ([]float64, bool) {
	v, ok := f.floats[name]
	return v, ok
}

// Strings returns a categorical column. The slice is shared, not copied.
func (f *Frame) Strings(name string) ([]string, bool) {
	v, ok := f.strs[name]
	return v, ok
}

// MustFloat returns the column or a FeatureError naming it.
func (f *Frame) MustFloat(name string) ([]float64, error) {
	v, ok := f.floats[name]
	if !ok {
		return nil, apperrors.NewFeatureError(name)
	}
	return v, nil
}

// Has reports whether a column of any kind exists
func (f *Frame) Has(name string) bool {
	_, ok := f.kinds[name]
	return ok
}

// KindOf returns the kind of a column
func (f *Frame) KindOf(name string) (Kind, bool) {
	k, ok := f.kinds[name]
	return k, ok
}

// Columns returns all column names in insertion order.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.names...)
}

// FloatColumns returns numeric column names in insertion order.
func (f *Frame) FloatColumns() []string {
	return f.columnsOf(Float)
}

// StringColumns returns categorical column names in insertion order.
func (f *Frame) StringColumns() []string {
	return f.columnsOf(String)
}

func (f *Frame) columnsOf(kind Kind) []string {
	var out []string
	for _, n := range f.names {
		if f.kinds[n] == kind {
			out = append(out, n)
		}
	}
	return out
}

// Drop removes columns; unknown names are ignored.
func (f *Frame) Drop(names ...string) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
		delete(f.kinds, n)
		delete(f.floats, n)
		delete(f.strs, n)
		if f.group == n {
			f.group = ""
		}
	}
	kept := f.names[:0]
	for _, n := range f.names {
		if !drop[n] {
			kept = append(kept, n)
		}
	}
	f.names = kept
}

// Clone deep-copies the frame.
func (f *Frame) Clone() *Frame {
	idx := make([]int, f.rows)
	for i := range idx {
		idx[i] = i
	}
	return f.Take(idx)
}

// Take returns a new frame holding the given rows in the given order.
func (f *Frame) Take(idx []int) *Frame {
	out := New(len(idx))
	if f.times != nil {
		ts := make([]time.Time, len(idx))
		for i, j := range idx {
			ts[i] = f.times[j]
		}
		out.times = ts
	}
	for _, n := range f.names {
		switch f.kinds[n] {
		case Float:
			src := f.floats[n]
			dst := make([]float64, len(idx))
			for i, j := range idx {
				dst[i] = src[j]
			}
			out.register(n, Float)
			out.floats[n] = dst
		case String:
			src := f.strs[n]
			dst := make([]string, len(idx))
			for i, j := range idx {
				dst[i] = src[j]
			}
			out.register(n, String)
			out.strs[n] = dst
		}
	}
	out.group = f.group
	return out
}

// Groups partitions row indices by the group column. Keys appear in order of
// first occurrence and indices keep frame order. An ungrouped frame is one
// group named "".
func (f *Frame) Groups() ([]string, map[string][]int) {
	members := make(map[string][]int)
	if f.group == "" {
		all := make([]int, f.rows)
		for i := range all {
			all[i] = i
		}
		members[""] = all
		return []string{""}, members
	}

	var keys []string
	for i, g := range f.strs[f.group] {
		if _, seen := members[g]; !seen {
			keys = append(keys, g)
		}
		members[g] = append(members[g], i)
	}
	return keys, members
}

// SortByGroupTime returns a copy ordered by group (first occurrence) and then
// by time within each group. The sort is stable, so equal timestamps keep
// their input order.
func (f *Frame) SortByGroupTime() *Frame {
	return f.Take(f.GroupTimeOrder())
}

// GroupTimeOrder returns the row permutation SortByGroupTime applies:
// position i of the sorted frame holds input row order[i].
func (f *Frame) GroupTimeOrder() []int {
	keys, members := f.Groups()
	idx := make([]int, 0, f.rows)
	for _, k := range keys {
		rows := append([]int(nil), members[k]...)
		if f.times != nil {
			sort.SliceStable(rows, func(a, b int) bool {
				return f.times[rows[a]].Before(f.times[rows[b]])
			})
		}
		idx = append(idx, rows...)
	}
	return idx
}

// IsOrdered reports whether timestamps are non-decreasing within every group.
func (f *Frame) IsOrdered() bool {
	if f.times == nil {
		return true
	}
	_, members := f.Groups()
	for _, rows := range members {
		for i := 1; i < len(rows); i++ {
			if f.times[rows[i]].Before(f.times[rows[i-1]]) {
				return false
			}
		}
	}
	return true
}

// Matrix copies the named numeric columns into a row-major dense matrix.
// A missing or categorical column is a FeatureError; NaN or Inf is a DataError.
func (f *Frame) Matrix(cols []string) (*mat.Dense, error) {
	if f.rows == 0 || len(cols) == 0 {
		return nil, apperrors.NewDataError("cannot build a matrix from an empty frame", nil)
	}
	data := make([]float64, f.rows*len(cols))
	for j, name := range cols {
		col, ok := f.floats[name]
		if !ok {
			return nil, apperrors.NewFeatureError(name)
		}
		for i, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, apperrors.NewDataError(fmt.Sprintf("column %q row %d is not finite", name, i), nil)
			}
			data[i*len(cols)+j] = v
		}
	}
	return mat.NewDense(f.rows, len(cols), data), nil
}

// Vector copies one numeric column, rejecting non-finite values.
func (f *Frame) Vector(name string) ([]float64, error) {
	col, ok := f.floats[name]
	if !ok {
		return nil, apperrors.NewFeatureError(name)
	}
	out := make([]float64, len(col))
	for i, v := range col {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, apperrors.NewDataError(fmt.Sprintf("column %q row %d is not finite", name, i), nil)
		}
		out[i] = v
	}
	return out, nil
}
