package bench

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// histogramBins is the number of latency buckets plotted
const histogramBins = 30

// Histogram plots the latency distribution to an image file.  The format
// follows the extension of path, such as .png or .svg.
func Histogram(latenciesMs []float64, targetMs float64, path string) error {

	if len(latenciesMs) == 0 {
		return fmt.Errorf("no latencies to plot")
	}

	p := plot.New()
	p.Title.Text = "Inference latency"
	p.X.Label.Text = "latency (ms)"
	p.Y.Label.Text = "frames"

	h, err := plotter.NewHist(plotter.Values(latenciesMs), histogramBins)

	if err != nil {
		return fmt.Errorf("error building histogram: %w", err)
	}

	p.Add(h)

	if targetMs > 0 {
		// vertical marker at the latency target
		line, err := plotter.NewLine(plotter.XYs{
			{X: targetMs, Y: 0},
			{X: targetMs, Y: float64(len(latenciesMs))},
		})

		if err != nil {
			return fmt.Errorf("error building target line: %w", err)
		}

		line.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("target %.0fms", targetMs), line)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("error saving histogram: %w", err)
	}

	return nil
}
