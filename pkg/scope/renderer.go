package scope

import (
	"fmt"
	"image/color"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"

	"github.com/itohio/goanneal/pkg/cycle"
	"github.com/itohio/goanneal/pkg/trace"
)

var (
	gridColor  = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	ampsColor  = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	slopeColor = color.RGBA{R: 100, G: 200, B: 255, A: 255}
	peakColor  = color.RGBA{R: 0, G: 100, B: 200, A: 255}
)

// renderer renders the scope widget.
type renderer struct {
	scope *Scope

	bg      *canvas.Rectangle
	objects []fyne.CanvasObject

	lastSize fyne.Size
}

// MinSize returns the minimum size of the widget.
func (r *renderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 250)
}

// Layout arranges the widget components.
func (r *renderer) Layout(size fyne.Size) {
	r.bg.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh rebuilds every canvas object from the current data.
func (r *renderer) Refresh() {
	r.scope.mu.RLock()
	samples := r.scope.display
	slopes := r.scope.slopes
	rec := r.scope.rec
	a := r.scope.axes
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	r.objects = []fyne.CanvasObject{r.bg}
	if size.Width == 0 || size.Height == 0 {
		return
	}

	const (
		marginLeft   = float32(60)
		marginRight  = float32(20)
		marginTop    = float32(20)
		marginBottom = float32(40)
	)
	p := plotArea{
		x: marginLeft,
		y: marginTop,
		w: size.Width - marginLeft - marginRight,
		h: size.Height - marginTop - marginBottom,
		a: a,
	}

	r.drawGrid(p)
	r.drawAmps(p, samples)
	r.drawSlopes(p, samples, slopes)
	if rec != nil {
		r.drawPeak(p, *rec)
	}
}

type plotArea struct {
	x, y, w, h float32
	a          axes
}

func (p plotArea) pos(t time.Duration, v float64) fyne.Position {
	return fyne.NewPos(p.x+p.a.x(t, p.w), p.y+p.a.y(v, p.h))
}

func (r *renderer) line(c color.Color, width float32, from, to fyne.Position) {
	l := canvas.NewLine(c)
	l.Position1 = from
	l.Position2 = to
	l.StrokeWidth = width
	r.objects = append(r.objects, l)
}

func (r *renderer) text(s string, c color.Color, size float32, align fyne.TextAlign, at fyne.Position) {
	t := canvas.NewText(s, c)
	t.TextSize = size
	t.Alignment = align
	t.Move(at)
	r.objects = append(r.objects, t)
}

// drawGrid draws the grid with amps on the y axis and seconds on the x axis.
func (r *renderer) drawGrid(p plotArea) {
	const rows, cols = 8, 10

	for i := range rows + 1 {
		y := p.y + float32(i)*p.h/rows
		r.line(gridColor, 1, fyne.NewPos(p.x, y), fyne.NewPos(p.x+p.w, y))

		v := p.a.yMax - float64(i)*(p.a.yMax-p.a.yMin)/rows
		r.text(fmt.Sprintf("%.1fA", v), labelColor, 10, fyne.TextAlignTrailing, fyne.NewPos(p.x-5, y-6))
	}

	for i := range cols + 1 {
		x := p.x + float32(i)*p.w/cols
		r.line(gridColor, 1, fyne.NewPos(x, p.y), fyne.NewPos(x, p.y+p.h))

		t := time.Duration(float64(p.a.xMax) * float64(i) / cols)
		r.text(fmt.Sprintf("%.1fs", t.Seconds()), labelColor, 10, fyne.TextAlignCenter, fyne.NewPos(x-20, p.y+p.h+5))
	}
}

// drawAmps draws the current curve (orange).
func (r *renderer) drawAmps(p plotArea, samples []trace.Sample) {
	for i := 1; i < len(samples); i++ {
		r.line(ampsColor, 1.5,
			p.pos(samples[i-1].Elapsed, float64(samples[i-1].Amps)),
			p.pos(samples[i].Elapsed, float64(samples[i].Amps)))
	}
}

// drawSlopes draws the current slope in A/s (light blue) at the midpoint of
// each sample pair.
func (r *renderer) drawSlopes(p plotArea, samples []trace.Sample, slopes []float64) {
	var prev fyne.Position
	for i, d := range slopes {
		if i+1 >= len(samples) {
			break
		}
		mid := samples[i].Elapsed + (samples[i+1].Elapsed-samples[i].Elapsed)/2
		pos := p.pos(mid, d)
		if i > 0 {
			r.line(slopeColor, 2.5, prev, pos)
		}
		prev = pos
	}
}

// drawPeak marks the peak (dark blue) and labels the recommendation.
func (r *renderer) drawPeak(p plotArea, rec cycle.Recommendation) {
	x := p.x + p.a.x(rec.Peak.Elapsed, p.w)
	r.line(peakColor, 1, fyne.NewPos(x, p.y), fyne.NewPos(x, p.y+p.h))

	label := fmt.Sprintf("#%d %.2fA @ %.2fs -> %.2fs (avg %.2fs)",
		rec.Cycle, rec.Peak.Amps, rec.Peak.Elapsed.Seconds(), rec.Recommended, rec.Average)
	r.text(label, ampsColor, 12, fyne.TextAlignLeading, fyne.NewPos(p.x+10, p.y+10))
}

// Objects returns all canvas objects for rendering.
func (r *renderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *renderer) Destroy() {}
