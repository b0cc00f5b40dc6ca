package categorical

import (
	"fmt"

	apperrors "annadata/internal/errors"
	"annadata/internal/files"
	"annadata/internal/frame"
)

// Set holds one encoder per categorical field of a dataset.
type Set struct {
	Encoders []*TopN
}

// NewSet builds unfitted encoders from a field → N map, in the given field order.
func NewSet(fields []string, limits map[string]int) *Set {
	s := &Set{}
	for _, field := range fields {
		s.Encoders = append(s.Encoders, NewTopN(field, limits[field]))
	}
	return s
}

// Fit fits every encoder on the given rows of f; nil rows means all rows.
func (s *Set) Fit(f *frame.Frame, rows []int) error {
	for _, enc := range s.Encoders {
		values, ok := f.Strings(enc.Field)
		if !ok {
			return apperrors.NewFeatureError(enc.Field)
		}
		if rows != nil {
			picked := make([]string, len(rows))
			for i, r := range rows {
				picked[i] = values[r]
			}
			values = picked
		}
		if err := enc.Fit(values); err != nil {
			return fmt.Errorf("fit %s encoder: %w", enc.Field, err)
		}
	}
	return nil
}

// Transform adds the indicator columns of every field to f and returns
// their names in order.
func (s *Set) Transform(f *frame.Frame) ([]string, error) {
	var added []string
	for _, enc := range s.Encoders {
		values, ok := f.Strings(enc.Field)
		if !ok {
			return nil, apperrors.NewFeatureError(enc.Field)
		}
		cols, err := enc.Transform(values)
		if err != nil {
			return nil, err
		}
		for j, name := range enc.ColumnNames() {
			if err := f.AddFloat(name, cols[j]); err != nil {
				return nil, err
			}
			added = append(added, name)
		}
	}
	return added, nil
}

// Columns lists every indicator column the set produces.
func (s *Set) Columns() []string {
	var names []string
	for _, enc := range s.Encoders {
		names = append(names, enc.ColumnNames()...)
	}
	return names
}

// Fields lists the encoded fields.
func (s *Set) Fields() []string {
	fields := make([]string, len(s.Encoders))
	for i, enc := range s.Encoders {
		fields[i] = enc.Field
	}
	return fields
}

// Save writes a fitted set as one gob blob.
func Save(path string, s *Set) error {
	for _, enc := range s.Encoders {
		if !enc.Fitted {
			return apperrors.NewStateError("categorical encoder " + enc.Field)
		}
	}
	if err := files.SaveGob(path, s); err != nil {
		return apperrors.NewStorageError("save encoders", err)
	}
	return nil
}

// Load reads a set written by Save.
func Load(path string) (*Set, error) {
	var s Set
	if err := files.LoadGob(path, &s); err != nil {
		return nil, apperrors.NewStorageError("load encoders", err)
	}
	return &s, nil
}
