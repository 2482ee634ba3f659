package datalog

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/itohio/goanneal/pkg/cycle"
	"github.com/itohio/goanneal/pkg/trace"
)

// SaveChart renders the current curve of one pass with its peak marked.
func SaveChart(path string, r cycle.Recommendation, samples []trace.Sample) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Pass %d - recommended %.2f s", r.Cycle, r.Recommended)
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Current (A)"

	pts := make(plotter.XYs, 0, len(samples))
	for _, s := range samples {
		pts = append(pts, plotter.XY{X: s.Elapsed.Seconds(), Y: float64(s.Amps)})
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to plot pass %d: %w", r.Cycle, err)
	}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("amps", line)

	peak, err := plotter.NewScatter(plotter.XYs{{X: r.Peak.Elapsed.Seconds(), Y: float64(r.Peak.Amps)}})
	if err != nil {
		return fmt.Errorf("failed to plot pass %d peak: %w", r.Cycle, err)
	}
	peak.GlyphStyle.Radius = vg.Points(3)
	p.Add(peak)
	p.Legend.Add("peak", peak)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save chart: %w", err)
	}
	return nil
}
