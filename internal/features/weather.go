package features

import (
	"math"

	"annadata/internal/config"
	"annadata/internal/dataset"
	"annadata/internal/frame"
)

const weatherTempMean = "temperature_current_mean"

// WeatherSpec derives daily weather features per region. The label is the
// next day's temperature.
func WeatherSpec(cfg config.FeaturesConfig) Spec {
	eps := config.WeatherRatioEpsilon
	return Spec{
		Dataset:     config.DatasetWeather,
		GroupColumn: dataset.ColRegion,
		Required: []string{
			dataset.ColTempCurrent, dataset.ColTempMin, dataset.ColTempMax, dataset.ColGDD,
			dataset.ColHumidity, dataset.ColPressure, dataset.ColRain1h, dataset.ColRain3h,
			dataset.ColWindSpeed, dataset.ColWindGust, dataset.ColCloudCover, dataset.ColIsRainy,
		},
		CapExclude: dataset.WeatherFlagColumns(),
		Scalars: []Scalar{
			{Name: weatherTempMean, Column: dataset.ColTempCurrent, Stat: StatMean},
		},
		Derive:   deriveWeather,
		Calendar: true,
		Cycles: []Cycle{
			{SinName: "month_sin", CosName: "month_cos", Column: ColMonth, Period: 12},
		},
		LagColumns:     []string{dataset.ColTempCurrent, dataset.ColRain1h, dataset.ColHumidity},
		Lags:           cfg.Lags,
		RollingColumns: []string{dataset.ColTempCurrent, dataset.ColRain1h, dataset.ColWindSpeed},
		Windows:        cfg.RollingWindows,
		Interactions: []Interaction{
			{Name: "rain_intensity_ratio", Left: dataset.ColRain3h, Right: dataset.ColRain1h, Op: Ratio, Epsilon: eps},
			{Name: "wind_stress_index", Left: dataset.ColWindSpeed, Right: dataset.ColWindGust, Op: Product, Scale: 0.1},
			{Name: "wind_pressure_index", Left: dataset.ColWindSpeed, Right: dataset.ColPressure, Op: Product, Scale: 0.001},
		},
		Target:     config.WeatherTarget,
		TargetLead: 1,
	}
}

func deriveWeather(f *frame.Frame, scalars map[string]float64) error {
	t, _ := f.Float(dataset.ColTempCurrent)
	tmin, _ := f.Float(dataset.ColTempMin)
	tmax, _ := f.Float(dataset.ColTempMax)
	gdd, _ := f.Float(dataset.ColGDD)
	hum, _ := f.Float(dataset.ColHumidity)
	rain1, _ := f.Float(dataset.ColRain1h)
	rain3, _ := f.Float(dataset.ColRain3h)
	speed, _ := f.Float(dataset.ColWindSpeed)
	gust, _ := f.Float(dataset.ColWindGust)
	cloud, _ := f.Float(dataset.ColCloudCover)
	rainy, _ := f.Float(dataset.ColIsRainy)
	tMean := scalars[weatherTempMean]

	return addDerived(f, f.Len(), []derived{
		// temperature
		{"temp_range", func(i int) float64 { return tmax[i] - tmin[i] }},
		{"temp_deviation", func(i int) float64 { return math.Abs(t[i] - tMean) }},
		{"temp_above_20", func(i int) float64 { return indicator(t[i], t[i] > 20) }},
		{"temp_below_15", func(i int) float64 { return indicator(t[i], t[i] < 15) }},
		{"temp_optimal_growth", func(i int) float64 { return indicator(t[i], t[i] > 15 && t[i] < 35) }},
		{"gdd_normalized", func(i int) float64 { return gdd[i] / 50 }},
		{"temperature_stress_index", func(i int) float64 { return tmax[i] - tmin[i] }},
		{"feels_like_index", func(i int) float64 { return t[i] * 0.9 }},
		// precipitation
		{"has_light_rain", func(i int) float64 { return indicator(rain1[i], rain1[i] > 0 && rain1[i] <= 2.5) }},
		{"has_moderate_rain", func(i int) float64 { return indicator(rain1[i], rain1[i] > 2.5 && rain1[i] <= 10) }},
		{"has_heavy_rain", func(i int) float64 { return indicator(rain1[i], rain1[i] > 10) }},
		{"cumulative_rain_3h", func(i int) float64 { return rain1[i] + rain3[i] }},
		{"rain_period", func(i int) float64 { return rainy[i] }},
		// humidity and temperature
		{"heat_humidity_stress", func(i int) float64 { return t[i] * hum[i] / 1000 }},
		{"dew_point_proxy", func(i int) float64 { return t[i] - (100-hum[i])/5 }},
		{"moisture_stress", func(i int) float64 { return (100 - hum[i]) * t[i] / 100 }},
		{"comfort_index", func(i int) float64 { return 0.5*t[i] + 0.1*hum[i] }},
		{"humidity_temp_product", func(i int) float64 { return hum[i] * t[i] / 100 }},
		// wind
		{"wind_turbulence", func(i int) float64 { return gust[i] - speed[i] }},
		{"high_wind", func(i int) float64 { return indicator(speed[i], speed[i] > 5) }},
		{"extreme_wind", func(i int) float64 { return indicator(speed[i], speed[i] > 10) }},
		// cloud and radiation
		{"cloud_intensity", func(i int) float64 { return cloud[i] / 100 }},
		{"clear_sky_index", func(i int) float64 { return 1 - cloud[i]/100 }},
		{"photosynthesis_potential", func(i int) float64 { return (1 - cloud[i]/100) * (t[i] / 30) }},
	})
}

type derived struct {
	name string
	fn   func(i int) float64
}

func addDerived(f *frame.Frame, n int, cols []derived) error {
	for _, c := range cols {
		values := make([]float64, n)
		for i := range values {
			values[i] = c.fn(i)
		}
		if err := f.AddFloat(c.name, values); err != nil {
			return err
		}
	}
	return nil
}

// indicator is 1 when cond holds, NaN when v is missing.
func indicator(v float64, cond bool) float64 {
	switch {
	case math.IsNaN(v):
		return math.NaN()
	case cond:
		return 1
	}
	return 0
}
