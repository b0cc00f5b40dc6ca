package features

import (
	"fmt"
	"math"

	"annadata/internal/config"
	"annadata/internal/dataset"
	apperrors "annadata/internal/errors"
	"annadata/internal/frame"
)

const (
	cropYearMean = "crop_year_mean"
	cropYearMin  = "crop_year_min"
)

// SeasonCodes maps a trimmed season name to its ordinal.
var SeasonCodes = map[string]float64{
	"Whole Year": 0,
	"Kharif":     1,
	"Rabi":       2,
	"Summer":     3,
	"Autumn":     4,
	"Winter":     5,
}

// CropSpec derives yield features from crop production records. Yield is
// the label and never a feature.
func CropSpec(cfg config.FeaturesConfig) Spec {
	eps := config.CropRatioEpsilon
	return Spec{
		Dataset: config.DatasetCrop,
		Required: []string{
			dataset.ColCrop, dataset.ColCropYear, dataset.ColSeason, dataset.ColState,
			dataset.ColArea, dataset.ColProduction, dataset.ColAnnualRainfall,
			dataset.ColFertilizer, dataset.ColPesticide,
		},
		LogColumns: []string{dataset.ColArea, dataset.ColProduction, dataset.ColFertilizer, dataset.ColPesticide},
		CapExclude: []string{dataset.ColCropYear},
		Scalars: []Scalar{
			{Name: cropYearMean, Column: dataset.ColCropYear, Stat: StatMean},
			{Name: cropYearMin, Column: dataset.ColCropYear, Stat: StatMin},
		},
		Derive: deriveCrop,
		Cycles: []Cycle{
			{SinName: "Year_Sin", CosName: "Year_Cos", Column: "Years_Since_Start", Period: config.YearCyclePeriod},
			{SinName: "Season_Sin", CosName: "Season_Cos", Column: "Season_Encoded", Period: config.SeasonCyclePeriod},
		},
		Interactions: []Interaction{
			{Name: "Production_per_Area", Left: dataset.ColProduction, Right: dataset.ColArea, Op: Ratio, Epsilon: eps},
			{Name: "Fertilizer_per_Area", Left: dataset.ColFertilizer, Right: dataset.ColArea, Op: Ratio, Epsilon: eps},
			{Name: "Pesticide_per_Area", Left: dataset.ColPesticide, Right: dataset.ColArea, Op: Ratio, Epsilon: eps},
			{Name: "Fertilizer_Pesticide_Ratio", Left: dataset.ColFertilizer, Right: dataset.ColPesticide, Op: Ratio, Epsilon: eps},
			{Name: "Total_Chemical", Left: dataset.ColFertilizer, Right: dataset.ColPesticide, Op: Sum},
			{Name: "Chemical_per_Area", Left: "Total_Chemical", Right: dataset.ColArea, Op: Ratio, Epsilon: eps},
			{Name: "Rainfall_Area_Product", Left: dataset.ColAnnualRainfall, Right: dataset.ColArea, Op: Product},
			{Name: "Rainfall_Fertilizer_Product", Left: dataset.ColAnnualRainfall, Right: dataset.ColFertilizer + "_log", Op: Product},
		},
		Target:  config.CropTarget,
		Exclude: []string{config.CropTarget},
	}
}

func deriveCrop(f *frame.Frame, scalars map[string]float64) error {
	year, _ := f.Float(dataset.ColCropYear)
	seasons, _ := f.Strings(dataset.ColSeason)

	encoded := make([]float64, len(seasons))
	for i, s := range seasons {
		code, ok := SeasonCodes[s]
		if !ok {
			return apperrors.NewDataError(fmt.Sprintf("unknown season %q at row %d", s, i), nil).
				WithContext("column", dataset.ColSeason)
		}
		encoded[i] = code
	}
	if err := f.AddFloat("Season_Encoded", encoded); err != nil {
		return err
	}

	mean, start := scalars[cropYearMean], scalars[cropYearMin]
	return addDerived(f, f.Len(), []derived{
		{"Year_Centered", func(i int) float64 { return year[i] - mean }},
		{"Year_Squared", func(i int) float64 { return math.Pow(year[i], 2) }},
		{"Years_Since_Start", func(i int) float64 { return year[i] - start }},
	})
}
