// Package dataset supplies raw weather and crop observations to the
// pipeline as ordered frames. Records come from CSV or XLSX files, from a
// seeded synthetic weather generator, or from memory (prediction requests).
package dataset

import (
	"math"
	"time"

	"annadata/internal/config"
	"annadata/internal/frame"
)

// Column names shared by the record files, the frames and the feature engine.
const (
	ColTimestamp          = "timestamp"
	ColRegion             = "region_name"
	ColTempCurrent        = "temperature_current"
	ColTempMin            = "temperature_min"
	ColTempMax            = "temperature_max"
	ColGDD                = "temperature_growing_degree_days"
	ColHumidity           = "humidity_relative_humidity"
	ColPressure           = "humidity_pressure"
	ColRain1h             = "precipitation_rain_1h"
	ColRain3h             = "precipitation_rain_3h"
	ColWindSpeed          = "wind_speed"
	ColWindGust           = "wind_gust"
	ColWindDegree         = "wind_degree"
	ColCloudCover         = "cloud_cover"
	ColWeatherMain        = "weather_main"
	ColWeatherDescription = "weather_description"
	ColIsRainy            = "extreme_weather_is_rainy"
	ColIsThunderstorm     = "extreme_weather_is_thunderstorm"
	ColIsClear            = "extreme_weather_is_clear"
	ColIsCloudy           = "extreme_weather_is_cloudy"

	ColCrop           = "Crop"
	ColCropYear       = "Crop_Year"
	ColSeason         = "Season"
	ColState          = "State"
	ColArea           = "Area"
	ColProduction     = "Production"
	ColAnnualRainfall = "Annual_Rainfall"
	ColFertilizer     = "Fertilizer"
	ColPesticide      = "Pesticide"
	ColYield          = "Yield"
)

// WeatherObservation is one daily weather reading for a region.
type WeatherObservation struct {
	Timestamp          time.Time `json:"timestamp" validate:"required"`
	RegionName         string    `json:"region_name" validate:"required"`
	TemperatureCurrent float64   `json:"temperature_current"`
	TemperatureMin     float64   `json:"temperature_min"`
	TemperatureMax     float64   `json:"temperature_max"`
	GrowingDegreeDays  float64   `json:"temperature_growing_degree_days"`
	RelativeHumidity   float64   `json:"humidity_relative_humidity"`
	Pressure           float64   `json:"humidity_pressure"`
	Rain1h             float64   `json:"precipitation_rain_1h"`
	Rain3h             float64   `json:"precipitation_rain_3h"`
	WindSpeed          float64   `json:"wind_speed"`
	WindGust           float64   `json:"wind_gust"`
	WindDegree         float64   `json:"wind_degree"`
	CloudCover         float64   `json:"cloud_cover"`
	WeatherMain        string    `json:"weather_main"`
	WeatherDescription string    `json:"weather_description"`
	IsRainy            bool      `json:"extreme_weather_is_rainy"`
	IsThunderstorm     bool      `json:"extreme_weather_is_thunderstorm"`
	IsClear            bool      `json:"extreme_weather_is_clear"`
	IsCloudy           bool      `json:"extreme_weather_is_cloudy"`
}

// CropObservation is one crop/state/season/year production record.
type CropObservation struct {
	Crop           string  `json:"Crop" validate:"required"`
	CropYear       int     `json:"Crop_Year" validate:"required"`
	Season         string  `json:"Season" validate:"required"`
	State          string  `json:"State" validate:"required"`
	Area           float64 `json:"Area"`
	Production     float64 `json:"Production"`
	AnnualRainfall float64 `json:"Annual_Rainfall"`
	Fertilizer     float64 `json:"Fertilizer"`
	Pesticide      float64 `json:"Pesticide"`
	Yield          float64 `json:"Yield"`
}

// WeatherFrame converts observations into a frame grouped by region with
// the timestamp as time axis. Row order is preserved.
func WeatherFrame(obs []WeatherObservation) (*frame.Frame, error) {
	n := len(obs)
	times := make([]time.Time, n)
	regions := make([]string, n)
	mains := make([]string, n)
	descs := make([]string, n)
	floats := make(map[string][]float64)
	for _, name := range weatherFloatColumns {
		floats[name] = make([]float64, n)
	}

	for i, o := range obs {
		times[i] = o.Timestamp
		regions[i] = o.RegionName
		mains[i] = o.WeatherMain
		descs[i] = o.WeatherDescription
		floats[ColTempCurrent][i] = o.TemperatureCurrent
		floats[ColTempMin][i] = o.TemperatureMin
		floats[ColTempMax][i] = o.TemperatureMax
		floats[ColGDD][i] = o.GrowingDegreeDays
		floats[ColHumidity][i] = o.RelativeHumidity
		floats[ColPressure][i] = o.Pressure
		floats[ColRain1h][i] = o.Rain1h
		floats[ColRain3h][i] = o.Rain3h
		floats[ColWindSpeed][i] = o.WindSpeed
		floats[ColWindGust][i] = o.WindGust
		floats[ColWindDegree][i] = o.WindDegree
		floats[ColCloudCover][i] = o.CloudCover
		floats[ColIsRainy][i] = flag(o.IsRainy)
		floats[ColIsThunderstorm][i] = flag(o.IsThunderstorm)
		floats[ColIsClear][i] = flag(o.IsClear)
		floats[ColIsCloudy][i] = flag(o.IsCloudy)
	}

	f := frame.New(n)
	if err := f.SetTimes(times); err != nil {
		return nil, err
	}
	if err := f.AddString(ColRegion, regions); err != nil {
		return nil, err
	}
	for _, name := range weatherFloatColumns {
		if err := f.AddFloat(name, floats[name]); err != nil {
			return nil, err
		}
	}
	if err := f.AddString(ColWeatherMain, mains); err != nil {
		return nil, err
	}
	if err := f.AddString(ColWeatherDescription, descs); err != nil {
		return nil, err
	}
	if err := f.SetGroupColumn(ColRegion); err != nil {
		return nil, err
	}
	return f, nil
}

// CropFrame converts crop records into an ungrouped frame without a time
// axis; Crop_Year is a float column.
func CropFrame(obs []CropObservation) (*frame.Frame, error) {
	n := len(obs)
	strs := map[string][]string{
		ColCrop:   make([]string, n),
		ColSeason: make([]string, n),
		ColState:  make([]string, n),
	}
	floats := make(map[string][]float64)
	for _, name := range cropFloatColumns {
		floats[name] = make([]float64, n)
	}

	for i, o := range obs {
		strs[ColCrop][i] = o.Crop
		strs[ColSeason][i] = o.Season
		strs[ColState][i] = o.State
		floats[ColCropYear][i] = float64(o.CropYear)
		floats[ColArea][i] = o.Area
		floats[ColProduction][i] = o.Production
		floats[ColAnnualRainfall][i] = o.AnnualRainfall
		floats[ColFertilizer][i] = o.Fertilizer
		floats[ColPesticide][i] = o.Pesticide
		floats[ColYield][i] = o.Yield
	}

	f := frame.New(n)
	for _, name := range []string{ColCrop, ColSeason, ColState} {
		if err := f.AddString(name, strs[name]); err != nil {
			return nil, err
		}
	}
	for _, name := range cropFloatColumns {
		if err := f.AddFloat(name, floats[name]); err != nil {
			return nil, err
		}
	}
	return f, nil
}

var weatherFloatColumns = []string{
	ColTempCurrent, ColTempMin, ColTempMax, ColGDD,
	ColHumidity, ColPressure,
	ColRain1h, ColRain3h,
	ColWindSpeed, ColWindGust, ColWindDegree,
	ColCloudCover,
	ColIsRainy, ColIsThunderstorm, ColIsClear, ColIsCloudy,
}

var cropFloatColumns = []string{
	ColCropYear, ColArea, ColProduction, ColAnnualRainfall, ColFertilizer, ColPesticide, ColYield,
}

// WeatherFlagColumns are the 0/1 extreme-weather indicators.
func WeatherFlagColumns() []string {
	return []string{ColIsRainy, ColIsThunderstorm, ColIsClear, ColIsCloudy}
}

// Columns returns the record header for a dataset.
func Columns(dataset string) []string {
	switch dataset {
	case config.DatasetWeather:
		cols := []string{ColTimestamp, ColRegion}
		cols = append(cols, weatherFloatColumns[:12]...)
		cols = append(cols, ColWeatherMain, ColWeatherDescription)
		return append(cols, WeatherFlagColumns()...)
	case config.DatasetCrop:
		return []string{ColCrop, ColCropYear, ColSeason, ColState, ColArea, ColProduction,
			ColAnnualRainfall, ColFertilizer, ColPesticide, ColYield}
	}
	return nil
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// nan marks an empty numeric cell; the feature engine imputes it later.
var nan = math.NaN()
