// Package exporter writes the outputs of a training run for people to read:
// the results table as CSV and as an XLSX workbook, and one
// predicted-versus-actual scatter plot per estimator.
//
// Every file is written atomically through files.WriteAtomicFunc.
//
//	ex := exporter.New(paths, logger)
//	out, err := ex.Export(ctx, "weather", report, yTest)
package exporter
