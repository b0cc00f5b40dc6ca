package exporter

import (
	"io"
	"log/slog"

	"github.com/xuri/excelize/v2"

	apperrors "annadata/internal/errors"
	"annadata/internal/files"
	"annadata/internal/training"
)

// Sheet names in the results workbook
const (
	SheetResults  = "results"
	SheetFailures = "failures"
)

// WriteResultsWorkbook writes the results table, with numeric cells, and a
// failures sheet when any estimator failed.
func (e *Exporter) WriteResultsWorkbook(path string, report *training.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetResults); err != nil {
		return apperrors.NewStorageError("name results sheet", err)
	}
	if err := setRow(f, SheetResults, 1, toCells(ResultsHeader)); err != nil {
		return err
	}
	for i, r := range report.Results {
		cells := []interface{}{r.Estimator, string(r.Kind)}
		for _, v := range resultValues(r) {
			if v == nil {
				cells = append(cells, nil)
				continue
			}
			cells = append(cells, *v)
		}
		if err := setRow(f, SheetResults, i+2, cells); err != nil {
			return err
		}
	}

	if len(report.Failures) > 0 {
		if _, err := f.NewSheet(SheetFailures); err != nil {
			return apperrors.NewStorageError("add failures sheet", err)
		}
		if err := setRow(f, SheetFailures, 1, []interface{}{"estimator", "error"}); err != nil {
			return err
		}
		for i, fl := range report.Failures {
			if err := setRow(f, SheetFailures, i+2, []interface{}{fl.Estimator, fl.Err.Error()}); err != nil {
				return err
			}
		}
	}

	err := files.WriteAtomicFunc(path, 0644, func(w io.Writer) error { return f.Write(w) })
	if err != nil {
		return apperrors.NewStorageError("write results workbook", err)
	}
	e.logger.Info("results workbook written",
		slog.String("path", path),
		slog.Int("failures", len(report.Failures)))
	return nil
}

func setRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return apperrors.NewStorageError("resolve cell", err)
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return apperrors.NewStorageError("write row", err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
