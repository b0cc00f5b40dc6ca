package exporter

import (
	"context"
	"fmt"
	"log/slog"

	"annadata/internal/training"
	"annadata/internal/validation"
)

// Export writes the results CSV, the workbook and a parity plot for every
// result whose test predictions line up with actual. A plot that cannot be
// drawn is logged and skipped.
func (e *Exporter) Export(ctx context.Context, dataset string, report *training.Report, actual []float64) (*Outputs, error) {
	if err := validation.NewFileValidator(e.logger).ValidateOutputDirectory(e.paths.PlotsDir); err != nil {
		return nil, err
	}
	out := &Outputs{
		CSV:  e.paths.ResultsCSV(dataset),
		XLSX: e.paths.ResultsXLSX(dataset),
	}
	if err := e.WriteResultsCSV(out.CSV, report.Results); err != nil {
		return nil, err
	}
	if err := e.WriteResultsWorkbook(out.XLSX, report); err != nil {
		return nil, err
	}

	for _, r := range report.Results {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		pred := r.TestPredictions
		if len(pred) == 0 {
			continue
		}
		// the alternate estimator scores a capped prefix of the test rows
		act := actual
		if len(pred) < len(act) {
			act = act[:len(pred)]
		}
		path := e.paths.PlotPath(dataset, r.Estimator)
		title := fmt.Sprintf("%s: %s (test R² %.3f)", dataset, r.Estimator, r.Test.R2)
		if err := e.WriteParityPlot(path, title, act, pred); err != nil {
			e.logger.WarnContext(ctx, "parity plot skipped",
				slog.String("estimator", r.Estimator),
				slog.String("error", err.Error()))
			continue
		}
		out.Plots = append(out.Plots, path)
	}
	return out, nil
}
