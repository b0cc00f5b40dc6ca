package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"annadata/internal/config"
	apperrors "annadata/internal/errors"
	"annadata/internal/frame"
)

// timestampLayouts are tried in order for the weather timestamp column.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ReadFile loads a CSV or XLSX record file for dataset into a frame.
func ReadFile(path, dataset string) (*frame.Frame, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	return ParseRows(rows, dataset)
}

// ParseRows parses a header row followed by records.
func ParseRows(rows [][]string, dataset string) (*frame.Frame, error) {
	t, err := newTable(rows)
	if err != nil {
		return nil, err
	}
	switch dataset {
	case config.DatasetWeather:
		obs, err := parseWeather(t)
		if err != nil {
			return nil, err
		}
		return WeatherFrame(obs)
	case config.DatasetCrop:
		obs, err := parseCrop(t)
		if err != nil {
			return nil, err
		}
		return CropFrame(obs)
	}
	return nil, apperrors.NewConfigError(fmt.Sprintf("unknown dataset %q", dataset), nil)
}

func readRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		file, err := os.Open(path)
		if err != nil {
			return nil, apperrors.NewStorageError("open record file", err)
		}
		defer file.Close()
		return ReadCSV(file)
	case ".xlsx":
		return readXLSX(path)
	}
	return nil, apperrors.NewDataError(fmt.Sprintf("unsupported record file %s", filepath.Base(path)), nil)
}

// ReadCSV reads every row of a CSV stream.
func ReadCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.NewDataError("malformed CSV", err)
	}
	return rows, nil
}

// readXLSX returns the rows of the first sheet that has a header and data.
func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.NewStorageError("open workbook", err)
	}
	defer f.Close()

	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			continue
		}
		if len(rows) > 1 {
			return rows, nil
		}
	}
	return nil, apperrors.NewDataError(fmt.Sprintf("workbook %s has no data sheet", filepath.Base(path)), nil)
}

type table struct {
	index map[string]int
	rows  [][]string
}

func newTable(rows [][]string) (*table, error) {
	if len(rows) == 0 {
		return nil, apperrors.NewDataError("record file is empty", nil)
	}
	t := &table{index: make(map[string]int, len(rows[0])), rows: rows[1:]}
	for i, h := range rows[0] {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		t.index[h] = i
	}
	return t, nil
}

func (t *table) require(cols []string) error {
	for _, c := range cols {
		if _, ok := t.index[c]; !ok {
			return apperrors.NewDataError(fmt.Sprintf("record file lacks column %q", c), nil).
				WithContext("column", c)
		}
	}
	return nil
}

func (t *table) cell(row []string, col string) string {
	i := t.index[col]
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// float parses a numeric cell; an empty cell is NaN.
func (t *table) float(row []string, col string, line int) (float64, error) {
	s := t.cell(row, col)
	if s == "" {
		return nan, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, cellError(col, line, err)
	}
	return v, nil
}

func (t *table) bool(row []string, col string, line int) (bool, error) {
	s := t.cell(row, col)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		if v, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			return v != 0, nil
		}
		return false, cellError(col, line, err)
	}
	return b, nil
}

func cellError(col string, line int, cause error) error {
	return apperrors.NewDataError(fmt.Sprintf("row %d column %q", line, col), cause).
		WithContext("column", col).
		WithContext("row", line)
}

// ParseTimestamp accepts RFC 3339 and the pandas-style layouts.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func parseWeather(t *table) ([]WeatherObservation, error) {
	if err := t.require(Columns(config.DatasetWeather)); err != nil {
		return nil, err
	}

	obs := make([]WeatherObservation, 0, len(t.rows))
	for i, row := range t.rows {
		line := i + 2
		if blank(row) {
			continue
		}
		ts, err := ParseTimestamp(t.cell(row, ColTimestamp))
		if err != nil {
			return nil, cellError(ColTimestamp, line, err)
		}
		o := WeatherObservation{
			Timestamp:          ts,
			RegionName:         t.cell(row, ColRegion),
			WeatherMain:        t.cell(row, ColWeatherMain),
			WeatherDescription: t.cell(row, ColWeatherDescription),
		}
		nums := []struct {
			col string
			dst *float64
		}{
			{ColTempCurrent, &o.TemperatureCurrent},
			{ColTempMin, &o.TemperatureMin},
			{ColTempMax, &o.TemperatureMax},
			{ColGDD, &o.GrowingDegreeDays},
			{ColHumidity, &o.RelativeHumidity},
			{ColPressure, &o.Pressure},
			{ColRain1h, &o.Rain1h},
			{ColRain3h, &o.Rain3h},
			{ColWindSpeed, &o.WindSpeed},
			{ColWindGust, &o.WindGust},
			{ColWindDegree, &o.WindDegree},
			{ColCloudCover, &o.CloudCover},
		}
		for _, n := range nums {
			if *n.dst, err = t.float(row, n.col, line); err != nil {
				return nil, err
			}
		}
		flags := []struct {
			col string
			dst *bool
		}{
			{ColIsRainy, &o.IsRainy},
			{ColIsThunderstorm, &o.IsThunderstorm},
			{ColIsClear, &o.IsClear},
			{ColIsCloudy, &o.IsCloudy},
		}
		for _, fl := range flags {
			if *fl.dst, err = t.bool(row, fl.col, line); err != nil {
				return nil, err
			}
		}
		obs = append(obs, o)
	}
	return obs, nil
}

func parseCrop(t *table) ([]CropObservation, error) {
	if err := t.require(Columns(config.DatasetCrop)); err != nil {
		return nil, err
	}

	obs := make([]CropObservation, 0, len(t.rows))
	for i, row := range t.rows {
		line := i + 2
		if blank(row) {
			continue
		}
		year, err := strconv.Atoi(t.cell(row, ColCropYear))
		if err != nil {
			return nil, cellError(ColCropYear, line, err)
		}
		o := CropObservation{
			Crop:     t.cell(row, ColCrop),
			CropYear: year,
			Season:   t.cell(row, ColSeason),
			State:    t.cell(row, ColState),
		}
		nums := []struct {
			col string
			dst *float64
		}{
			{ColArea, &o.Area},
			{ColProduction, &o.Production},
			{ColAnnualRainfall, &o.AnnualRainfall},
			{ColFertilizer, &o.Fertilizer},
			{ColPesticide, &o.Pesticide},
			{ColYield, &o.Yield},
		}
		for _, n := range nums {
			if *n.dst, err = t.float(row, n.col, line); err != nil {
				return nil, err
			}
		}
		obs = append(obs, o)
	}
	return obs, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
