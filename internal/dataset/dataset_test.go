package dataset

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"annadata/internal/config"
	apperrors "annadata/internal/errors"
)

const cropCSV = `Crop,Crop_Year,Season,State,Area,Production,Annual_Rainfall,Fertilizer,Pesticide,Yield
Arecanut,1997,Whole Year ,Assam,73814,56708,2051.4,7024878.38,22882.34,0.796
Rice,1998,Kharif     ,Punjab,1200,,650.5,114000,380,2.5

`

func weatherCSV(rows ...string) string {
	header := strings.Join(Columns(config.DatasetWeather), ",")
	return header + "\n" + strings.Join(rows, "\n") + "\n"
}

func TestParseCropCSV(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader(cropCSV))
	require.NoError(t, err)

	f, err := ParseRows(rows, config.DatasetCrop)
	require.NoError(t, err)
	require.Equal(t, 2, f.Len())
	assert.False(t, f.HasTimes())

	seasons, _ := f.Strings(ColSeason)
	assert.Equal(t, []string{"Whole Year", "Kharif"}, seasons)

	years, _ := f.Float(ColCropYear)
	assert.Equal(t, []float64{1997, 1998}, years)

	production, _ := f.Float(ColProduction)
	assert.True(t, math.IsNaN(production[1]), "empty cell becomes NaN")
}

func TestParseWeatherCSV(t *testing.T) {
	data := weatherCSV(
		"2024-01-02 00:00:00,Punjab,12,8,18,2,70,1012,0,0.5,3,4.5,180,20,Clear,clear sky,False,False,True,False",
		"2024-01-01T00:00:00Z,Punjab,10,7,15,0,80,1010,1.2,2,2,3,90,60,Rain,light rain,True,0,0,1",
	)
	rows, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)

	f, err := ParseRows(rows, config.DatasetWeather)
	require.NoError(t, err)
	require.Equal(t, 2, f.Len())
	assert.Equal(t, ColRegion, f.GroupColumn())
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), f.Times()[0])
	assert.False(t, f.IsOrdered())

	rainy, _ := f.Float(ColIsRainy)
	assert.Equal(t, []float64{0, 1}, rainy)
	cloudy, _ := f.Float(ColIsCloudy)
	assert.Equal(t, []float64{0, 1}, cloudy)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		dataset string
		data    string
	}{
		{"missing column", config.DatasetCrop, "Crop,Crop_Year\nRice,1999\n"},
		{"bad number", config.DatasetCrop, strings.Replace(cropCSV, "73814", "lots", 1)},
		{"bad year", config.DatasetCrop, strings.Replace(cropCSV, "1997", "", 1)},
		{"bad timestamp", config.DatasetWeather, weatherCSV(
			"yesterday,Punjab,12,8,18,2,70,1012,0,0.5,3,4.5,180,20,Clear,clear sky,False,False,True,False")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := ReadCSV(strings.NewReader(tt.data))
			require.NoError(t, err)
			_, err = ParseRows(rows, tt.dataset)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeData), "got %v", err)
		})
	}

	_, err := ParseRows([][]string{{"a"}}, "soil")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func TestReadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crop_yield.xlsx")
	rows, err := ReadCSV(strings.NewReader(cropCSV))
	require.NoError(t, err)

	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		require.NoError(t, wb.SetSheetRow(sheet, cell, &values))
	}
	require.NoError(t, wb.SaveAs(path))
	require.NoError(t, wb.Close())

	f, err := ReadFile(path, config.DatasetCrop)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())
	crops, _ := f.Strings(ColCrop)
	assert.Equal(t, []string{"Arecanut", "Rice"}, crops)
}

func TestSyntheticWeatherDeterministic(t *testing.T) {
	gen := &SyntheticWeather{Regions: []string{"Punjab", "Haryana"}, Days: 30, Seed: 42}
	a := gen.Observations()
	b := gen.Observations()
	require.Len(t, a, 60)
	assert.Equal(t, a, b)

	for _, o := range a {
		assert.GreaterOrEqual(t, o.RelativeHumidity, 0.0)
		assert.LessOrEqual(t, o.RelativeHumidity, 100.0)
		assert.GreaterOrEqual(t, o.GrowingDegreeDays, 0.0)
		assert.GreaterOrEqual(t, o.WindSpeed, 0.0)
	}
	assert.Equal(t, SyntheticStart.AddDate(0, 0, 29), a[29].Timestamp)
	assert.Equal(t, "Haryana", a[30].RegionName)

	f, err := gen.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, f.IsOrdered())
	keys, _ := f.Groups()
	assert.Equal(t, []string{"Punjab", "Haryana"}, keys)
}

func TestNewSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crop_yield.csv"), []byte(cropCSV), 0o644))

	cfg := config.Default().Pipeline
	cfg.Dataset = config.DatasetWeather
	src, err := NewSource(cfg, dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "synthetic", src.Name())

	cfg.Dataset = config.DatasetCrop
	_, err = NewSource(cfg, dir, nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))

	cfg.Input = "."
	src, err = NewSource(cfg, dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "crop_yield.csv", src.Name())

	f, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())
}

func TestMemorySourceReturnsCopy(t *testing.T) {
	f, err := CropFrame([]CropObservation{{Crop: "Rice", CropYear: 2000, Season: "Kharif", State: "Punjab", Area: 10}})
	require.NoError(t, err)

	src := &MemorySource{Label: "request", Frame: f}
	got, err := src.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, got.AddFloat("extra", []float64{1}))
	assert.False(t, f.Has("extra"))

	_, err = (&MemorySource{}).Load(context.Background())
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeData))
}
