package exporter

import (
	"encoding/csv"
	"io"
	"log/slog"
	"strconv"

	"annadata/internal/config"
	apperrors "annadata/internal/errors"
	"annadata/internal/files"
	"annadata/internal/training"
)

// ResultsHeader is the column order of the results table.
var ResultsHeader = []string{
	"estimator", "kind",
	"train_mse", "test_mse",
	"train_rmse", "test_rmse",
	"train_mae", "test_mae",
	"train_r2", "test_r2",
	"cv_mse", "cv_std",
	"duration_s",
}

// Exporter writes run outputs where paths places them.
type Exporter struct {
	paths  *config.Paths
	logger *slog.Logger
}

// New returns an exporter writing under paths.ReportsDir.
func New(paths *config.Paths, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{paths: paths, logger: logger.With(slog.String("component", "exporter"))}
}

// Outputs lists the files written by Export.
type Outputs struct {
	CSV   string   `json:"csv"`
	XLSX  string   `json:"xlsx"`
	Plots []string `json:"plots"`
}

// resultValues returns the numeric cells of one row; nil marks a blank cell.
func resultValues(r training.EvaluationResult) []*float64 {
	ptr := func(v float64) *float64 { return &v }
	vals := []*float64{
		ptr(r.Train.MSE), ptr(r.Test.MSE),
		ptr(r.Train.RMSE), ptr(r.Test.RMSE),
		ptr(r.Train.MAE), ptr(r.Test.MAE),
		ptr(r.Train.R2), ptr(r.Test.R2),
		nil, nil,
		ptr(r.Duration.Seconds()),
	}
	if r.CrossValidated {
		vals[8], vals[9] = ptr(r.CVMSE), ptr(r.CVStd)
	}
	return vals
}

// ResultRows renders results as CSV records in ResultsHeader order.
func ResultRows(results []training.EvaluationResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		row := []string{r.Estimator, string(r.Kind)}
		for _, v := range resultValues(r) {
			if v == nil {
				row = append(row, "")
				continue
			}
			row = append(row, formatFloat(*v))
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteResultsCSV writes the results table to path.
func (e *Exporter) WriteResultsCSV(path string, results []training.EvaluationResult) error {
	err := files.WriteAtomicFunc(path, 0644, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(ResultsHeader); err != nil {
			return err
		}
		if err := cw.WriteAll(ResultRows(results)); err != nil {
			return err
		}
		return cw.Error()
	})
	if err != nil {
		return apperrors.NewStorageError("write results csv", err)
	}
	e.logger.Info("results table written",
		slog.String("path", path),
		slog.Int("estimators", len(results)))
	return nil
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', 6, 64) }
