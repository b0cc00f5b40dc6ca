package features

import (
	"fmt"

	apperrors "annadata/internal/errors"
	"annadata/internal/files"
	"annadata/internal/normalize"
)

// Schema is the ordered feature column list fixed at fit time.
type Schema struct {
	Columns []string
}

// Check returns a DataError describing the first difference from columns.
func (s Schema) Check(columns []string) error {
	if len(columns) != len(s.Columns) {
		return apperrors.NewDataError(fmt.Sprintf("feature schema mismatch: fitted %d columns, got %d",
			len(s.Columns), len(columns)), nil)
	}
	for i, c := range columns {
		if c != s.Columns[i] {
			return apperrors.NewDataError(fmt.Sprintf("feature schema mismatch at %d: fitted %q, got %q",
				i, s.Columns[i], c), nil)
		}
	}
	return nil
}

// State holds everything Fit learned from the reference rows.
type State struct {
	Dataset    string
	Bounds     *normalize.OutlierBounds
	CapColumns []string
	Scalars    map[string]float64
	// BaseMeans imputes the leading rows of each group's lag columns.
	BaseMeans map[string]float64
	// Means imputes any remaining non-finite output value.
	Means      map[string]float64
	Schema     Schema
	FittedRows int
}

func newState(dataset string) *State {
	return &State{
		Dataset:   dataset,
		Scalars:   make(map[string]float64),
		BaseMeans: make(map[string]float64),
		Means:     make(map[string]float64),
	}
}

// SaveState writes a fitted state as a gob blob.
func SaveState(path string, st *State) error {
	if st == nil || st.Bounds == nil {
		return apperrors.NewStateError("feature engine")
	}
	if err := files.SaveGob(path, st); err != nil {
		return apperrors.NewStorageError("save feature state", err)
	}
	return nil
}

// LoadState reads a state written by SaveState.
func LoadState(path string) (*State, error) {
	var st State
	if err := files.LoadGob(path, &st); err != nil {
		return nil, apperrors.NewStorageError("load feature state", err)
	}
	return &st, nil
}
