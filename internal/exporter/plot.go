package exporter

import (
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	apperrors "annadata/internal/errors"
	"annadata/internal/files"
)

// WriteParityPlot draws predicted against actual values with the y = x
// reference line and saves it as PNG.
func (e *Exporter) WriteParityPlot(path, title string, actual, predicted []float64) error {
	if len(actual) != len(predicted) {
		return apperrors.NewDataError(fmt.Sprintf("%d actual values, %d predictions", len(actual), len(predicted)), nil)
	}
	if len(actual) == 0 {
		return apperrors.NewDataError("nothing to plot", nil)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Actual"
	p.Y.Label.Text = "Predicted"

	pts := make(plotter.XYs, len(actual))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range actual {
		pts[i].X, pts[i].Y = actual[i], predicted[i]
		lo = math.Min(lo, math.Min(actual[i], predicted[i]))
		hi = math.Max(hi, math.Max(actual[i], predicted[i]))
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return apperrors.NewDataError("build scatter", err)
	}
	s.GlyphStyle.Color = color.RGBA{R: 50, G: 50, B: 255, A: 255}
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	s.GlyphStyle.Radius = vg.Points(2)
	p.Add(s)

	ref, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return apperrors.NewDataError("build reference line", err)
	}
	ref.Color = color.RGBA{R: 255, A: 255}
	ref.LineStyle.Width = vg.Points(1.5)
	ref.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(ref)

	wt, err := p.WriterTo(5*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return apperrors.NewStorageError("render parity plot", err)
	}
	err = files.WriteAtomicFunc(path, 0644, func(w io.Writer) error {
		_, err := wt.WriteTo(w)
		return err
	})
	if err != nil {
		return apperrors.NewStorageError("write parity plot", err)
	}
	e.logger.Debug("parity plot written", slog.String("path", path), slog.Int("points", len(actual)))
	return nil
}
