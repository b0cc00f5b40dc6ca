package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"annadata/internal/frame"
)

// Calendar column names.
const (
	ColMonth           = "month"
	ColQuarter         = "quarter"
	ColDayOfYear       = "day_of_year"
	ColWeekOfYear      = "week_of_year"
	ColGrowingSeason   = "is_growing_season"
	growingSeasonStart = 4
	growingSeasonEnd   = 9
)

// LagName is the column holding col shifted by k records
func LagName(col string, k int) string { return fmt.Sprintf("%s_lag%d", col, k) }

// RollingMeanName is the trailing w-record mean of col
func RollingMeanName(col string, w int) string { return fmt.Sprintf("%s_rolling_%dd_mean", col, w) }

// RollingStdName is the trailing w-record standard deviation of col
func RollingStdName(col string, w int) string { return fmt.Sprintf("%s_rolling_%dd_std", col, w) }

func addCalendar(f *frame.Frame) error {
	times := f.Times()
	n := len(times)
	month := make([]float64, n)
	quarter := make([]float64, n)
	doy := make([]float64, n)
	week := make([]float64, n)
	growing := make([]float64, n)
	for i, ts := range times {
		m := int(ts.Month())
		_, w := ts.ISOWeek()
		month[i] = float64(m)
		quarter[i] = float64((m-1)/3 + 1)
		doy[i] = float64(ts.YearDay())
		week[i] = float64(w)
		if m >= growingSeasonStart && m <= growingSeasonEnd {
			growing[i] = 1
		}
	}
	for _, c := range []struct {
		name   string
		values []float64
	}{
		{ColMonth, month},
		{ColQuarter, quarter},
		{ColDayOfYear, doy},
		{ColWeekOfYear, week},
		{ColGrowingSeason, growing},
	} {
		if err := f.AddFloat(c.name, c.values); err != nil {
			return err
		}
	}
	return nil
}

func addCycle(f *frame.Frame, c Cycle) error {
	values, err := f.MustFloat(c.Column)
	if err != nil {
		return err
	}
	sin := make([]float64, len(values))
	cos := make([]float64, len(values))
	for i, v := range values {
		angle := 2 * math.Pi * v / c.Period
		sin[i] = math.Sin(angle)
		cos[i] = math.Cos(angle)
	}
	if err := f.AddFloat(c.SinName, sin); err != nil {
		return err
	}
	return f.AddFloat(c.CosName, cos)
}

// lag shifts values by k within each group. The first k records of a
// group take fill.
func lag(values []float64, groups map[string][]int, k int, fill float64) []float64 {
	out := make([]float64, len(values))
	for _, rows := range groups {
		for i, r := range rows {
			if i < k {
				out[r] = fill
				continue
			}
			out[r] = values[rows[i-k]]
		}
	}
	return out
}

// rolling computes the trailing mean and sample standard deviation over at
// most w finite values per group. A window holding one value has std 0; a
// window with no finite value yields NaN for both.
func rolling(values []float64, groups map[string][]int, w int) (mean, std []float64) {
	mean = make([]float64, len(values))
	std = make([]float64, len(values))
	window := make([]float64, 0, w)
	for _, rows := range groups {
		for i, r := range rows {
			window = window[:0]
			for j := max(0, i-w+1); j <= i; j++ {
				v := values[rows[j]]
				if !math.IsNaN(v) && !math.IsInf(v, 0) {
					window = append(window, v)
				}
			}
			switch len(window) {
			case 0:
				mean[r], std[r] = math.NaN(), math.NaN()
			case 1:
				mean[r], std[r] = window[0], 0
			default:
				mean[r], std[r] = stat.MeanStdDev(window, nil)
			}
		}
	}
	return mean, std
}
