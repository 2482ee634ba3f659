// Package scope provides a fyne widget plotting the coil current of a
// calibration pass, its slope and the detected peak.
package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/goanneal/pkg/cycle"
	"github.com/itohio/goanneal/pkg/trace"
)

// DefaultWindow is the shortest time span the x axis shows.
const DefaultWindow = 15 * time.Second

// Scope is a custom Fyne widget that displays the current trace of a pass.
type Scope struct {
	widget.BaseWidget

	window time.Duration

	// Data (protected by mu)
	mu      sync.RWMutex
	samples []trace.Sample
	slopes  []float64
	rec     *cycle.Recommendation

	// Display buffer (reused for downsampling)
	display []trace.Sample

	axes axes

	maxDisplayPoints int
}

// New creates a scope showing at least window of time (DefaultWindow when
// zero).
func New(window time.Duration) *Scope {
	if window <= 0 {
		window = DefaultWindow
	}
	s := &Scope{
		window:           window,
		display:          make([]trace.Sample, 0, 1000),
		maxDisplayPoints: 1000,
	}
	s.axes = autoScale(nil, nil, window)
	s.ExtendBaseWidget(s)
	return s
}

// Update replaces the plotted samples. Call it on the fyne goroutine
// (fyne.Do) with a copy the caller no longer mutates.
func (s *Scope) Update(samples []trace.Sample) {
	s.mu.Lock()
	s.samples = samples
	s.display = trace.Downsample(s.display, samples, s.maxDisplayPoints)
	s.slopes = trace.Slopes(s.display)
	if len(samples) < 2 {
		// A new pass started
		s.rec = nil
	}
	s.axes = autoScale(s.display, s.slopes, s.window)
	s.mu.Unlock()

	s.Refresh()
}

// Mark shows the outcome of the pass: the peak and the recommendation.
func (s *Scope) Mark(r cycle.Recommendation) {
	s.mu.Lock()
	s.rec = &r
	s.mu.Unlock()

	s.Refresh()
}

// Clear removes every curve.
func (s *Scope) Clear() {
	s.mu.Lock()
	s.samples = nil
	s.display = s.display[:0]
	s.slopes = nil
	s.rec = nil
	s.axes = autoScale(nil, nil, s.window)
	s.mu.Unlock()

	s.Refresh()
}

// Len returns the number of samples shown.
func (s *Scope) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// CreateRenderer creates the widget renderer.
func (s *Scope) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &renderer{
		scope:   s,
		bg:      bg,
		objects: []fyne.CanvasObject{bg},
	}
}

// axes is the data range mapped onto the plot area.
type axes struct {
	yMin, yMax float64
	xMax       time.Duration
}

// autoScale fits amps and slopes with a 10% margin. Amps never go below
// zero, so the y axis starts at zero unless a slope does.
func autoScale(samples []trace.Sample, slopes []float64, window time.Duration) axes {
	a := axes{yMin: 0, yMax: 1, xMax: window}
	if len(samples) == 0 {
		return a
	}

	for _, s := range samples {
		a.yMax = max(a.yMax, float64(s.Amps))
	}
	for _, d := range slopes {
		a.yMin = min(a.yMin, d)
		a.yMax = max(a.yMax, d)
	}

	margin := (a.yMax - a.yMin) * 0.1
	if a.yMin < 0 {
		a.yMin -= margin
	}
	a.yMax += margin

	a.xMax = max(samples[len(samples)-1].Elapsed, window)
	return a
}

// x maps elapsed time to a horizontal offset in a plot of width w.
func (a axes) x(t time.Duration, w float32) float32 {
	return float32(t.Seconds()/a.xMax.Seconds()) * w
}

// y maps a value to a vertical offset from the top in a plot of height h.
func (a axes) y(v float64, h float32) float32 {
	return h - float32((v-a.yMin)/(a.yMax-a.yMin))*h
}
