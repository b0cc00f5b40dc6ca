package operations

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"annadata/internal/categorical"
	"annadata/internal/config"
	"annadata/internal/dataset"
	apperrors "annadata/internal/errors"
	"annadata/internal/features"
	"annadata/internal/frame"
)

// FeatureSpec returns the feature engine spec of a dataset
func FeatureSpec(ds string, cfg config.FeaturesConfig) (features.Spec, error) {
	switch ds {
	case config.DatasetWeather:
		return features.WeatherSpec(cfg), nil
	case config.DatasetCrop:
		return features.CropSpec(cfg), nil
	}
	return features.Spec{}, apperrors.NewConfigError(fmt.Sprintf("unknown dataset %q", ds), nil)
}

// EncoderSet returns the unfitted categorical encoders of a dataset. Weather
// records carry no encoded categories.
func EncoderSet(ds string, cfg config.FeaturesConfig) *categorical.Set {
	if ds != config.DatasetCrop {
		return categorical.NewSet(nil, nil)
	}
	return categorical.NewSet(
		[]string{dataset.ColCrop, dataset.ColState},
		map[string]int{dataset.ColCrop: cfg.CropTopN, dataset.ColState: cfg.StateTopN},
	)
}

// Design assembles the unscaled design matrix of an engineered frame: the
// fitted feature schema followed by the encoder indicator columns. The
// frame itself is left untouched.
func Design(engineered *frame.Frame, st *features.State, enc *categorical.Set) (*mat.Dense, []string, error) {
	if st == nil {
		return nil, nil, apperrors.NewStateError("feature engine")
	}
	f := engineered.Clone()
	encoded, err := enc.Transform(f)
	if err != nil {
		return nil, nil, fmt.Errorf("encode categories: %w", err)
	}
	columns := append(append([]string(nil), st.Schema.Columns...), encoded...)
	X, err := f.Matrix(columns)
	if err != nil {
		return nil, nil, err
	}
	return X, columns, nil
}
