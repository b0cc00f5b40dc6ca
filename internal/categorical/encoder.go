// Package categorical collapses rare categories into an overflow bucket and
// one-hot expands the rest.
package categorical

import (
	"fmt"
	"sort"

	"annadata/internal/config"
	apperrors "annadata/internal/errors"
)

// DefaultOverflow is the bucket every category outside the top N falls into.
const DefaultOverflow = config.OtherCategory

// TopN keeps the N most frequent categories of one field.
type TopN struct {
	Field      string
	N          int
	Overflow   string
	Categories []string
	Fitted     bool
}

// NewTopN returns an unfitted encoder for field.
func NewTopN(field string, n int) *TopN {
	return &TopN{Field: field, N: n, Overflow: DefaultOverflow}
}

// Fit freezes the category set: the N most frequent values, ties broken by
// name, plus the overflow bucket, sorted.
func (e *TopN) Fit(values []string) error {
	if len(values) == 0 {
		return apperrors.NewDataError(fmt.Sprintf("cannot fit encoder for %s on no values", e.Field), nil)
	}
	if e.N < 1 {
		return apperrors.NewConfigError(fmt.Sprintf("encoder for %s needs N >= 1, got %d", e.Field, e.N), nil)
	}

	counts := make(map[string]int)
	for _, v := range values {
		counts[v]++
	}
	ranked := make([]string, 0, len(counts))
	for v := range counts {
		ranked = append(ranked, v)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	if len(ranked) > e.N {
		ranked = ranked[:e.N]
	}

	keep := make(map[string]bool, len(ranked)+1)
	for _, v := range ranked {
		keep[v] = true
	}
	keep[e.Overflow] = true

	e.Categories = e.Categories[:0]
	for v := range keep {
		e.Categories = append(e.Categories, v)
	}
	sort.Strings(e.Categories)
	e.Fitted = true
	return nil
}

// Collapse maps each value onto the frozen set.
func (e *TopN) Collapse(values []string) ([]string, error) {
	if e == nil || !e.Fitted {
		return nil, apperrors.NewStateError("categorical encoder")
	}
	known := make(map[string]bool, len(e.Categories))
	for _, c := range e.Categories {
		known[c] = true
	}
	out := make([]string, len(values))
	for i, v := range values {
		if known[v] {
			out[i] = v
		} else {
			out[i] = e.Overflow
		}
	}
	return out, nil
}

// ColumnNames lists the indicator columns Transform emits. The first sorted
// category is dropped.
func (e *TopN) ColumnNames() []string {
	if len(e.Categories) < 2 {
		return nil
	}
	names := make([]string, 0, len(e.Categories)-1)
	for _, c := range e.Categories[1:] {
		names = append(names, e.Field+"_"+c)
	}
	return names
}

// Transform one-hot expands values into K-1 indicator columns aligned with
// ColumnNames.
func (e *TopN) Transform(values []string) ([][]float64, error) {
	collapsed, err := e.Collapse(values)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(e.Categories))
	for i, c := range e.Categories {
		index[c] = i - 1
	}
	cols := make([][]float64, len(e.Categories)-1)
	for j := range cols {
		cols[j] = make([]float64, len(values))
	}
	for i, v := range collapsed {
		if j := index[v]; j >= 0 {
			cols[j][i] = 1
		}
	}
	return cols, nil
}
