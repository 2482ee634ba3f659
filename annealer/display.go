package main

import (
	"fmt"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/goanneal/pkg/cycle"
	"github.com/itohio/goanneal/pkg/scope"
	"github.com/itohio/goanneal/pkg/sensor"
	"github.com/itohio/goanneal/pkg/trace"
)

// console is the bench display. Its cycle.Display methods are called on the
// controller goroutine and only schedule widget updates with fyne.Do.
type console struct {
	window fyne.Window

	mode   *widget.Label
	state  *widget.Label
	anneal *widget.Label
	delay  *widget.Label
	drop   *widget.Label
	sensor *widget.Label
	timer  *widget.Label
	amps   *widget.Label
	volts  *widget.Label
	temp   *widget.Label
	rec    *widget.Label
	status *widget.Label

	scope *scope.Scope

	// Coalesces trace updates so at most one scope redraw is queued
	feedMu      sync.Mutex
	feed        []trace.Sample
	feedPending bool

	onMode func(cycle.Mode)
}

var _ cycle.Display = (*console)(nil)

func newConsole(window fyne.Window) *console {
	return &console{
		window: window,
		mode:   widget.NewLabel("-"),
		state:  widget.NewLabel("-"),
		anneal: widget.NewLabel("-"),
		delay:  widget.NewLabel("-"),
		drop:   widget.NewLabel("-"),
		sensor: widget.NewLabel("-"),
		timer:  widget.NewLabel("0.00 s"),
		amps:   widget.NewLabel("-"),
		volts:  widget.NewLabel("-"),
		temp:   widget.NewLabel("-"),
		rec:    widget.NewLabel("-"),
		status: widget.NewLabel(""),
		scope:  scope.New(scope.DefaultWindow),
	}
}

// panel lays out the readouts.
func (c *console) panel() fyne.CanvasObject {
	form := widget.NewForm(
		widget.NewFormItem("Mode", c.mode),
		widget.NewFormItem("State", c.state),
		widget.NewFormItem("Anneal", c.anneal),
		widget.NewFormItem("Delay", c.delay),
		widget.NewFormItem("Case drop", c.drop),
		widget.NewFormItem("Start on sensor", c.sensor),
		widget.NewFormItem("Timer", c.timer),
		widget.NewFormItem("Current", c.amps),
		widget.NewFormItem("Supply", c.volts),
		widget.NewFormItem("Temperature", c.temp),
		widget.NewFormItem("Calibration", c.rec),
	)
	return container.NewVScroll(form)
}

func (c *console) statusBar() fyne.CanvasObject {
	return c.status
}

func (c *console) Mode(m cycle.Mode) {
	fyne.Do(func() {
		c.mode.SetText(m.String())
		if m != cycle.Calibration {
			c.scope.Clear()
		}
		if c.onMode != nil {
			c.onMode(m)
		}
	})
}

func (c *console) State(s fmt.Stringer) {
	text := s.String()
	fyne.Do(func() { c.state.SetText(text) })
}

func (c *console) Refresh(s cycle.Snapshot) {
	fyne.Do(func() {
		c.anneal.SetText(fmt.Sprintf("%.2f s", s.Anneal))
		c.delay.SetText(fmt.Sprintf("%.2f s", s.Delay))
		c.drop.SetText(fmt.Sprintf("%.2f s", s.CaseDrop))
		c.sensor.SetText(onOff(s.StartOnSensor))
		c.showPower(s.Reading)
	})
}

func (c *console) Timer(elapsed time.Duration) {
	fyne.Do(func() { c.timer.SetText(fmt.Sprintf("%.2f s", elapsed.Seconds())) })
}

func (c *console) Power(r sensor.Reading) {
	fyne.Do(func() { c.showPower(r) })
}

func (c *console) showPower(r sensor.Reading) {
	c.amps.SetText(fmt.Sprintf("%.2f A", r.Amps))
	c.volts.SetText(fmt.Sprintf("%.1f V", r.Volts))
}

func (c *console) Temps(r sensor.Reading) {
	fyne.Do(func() { c.temp.SetText(fmt.Sprintf("%.1f F (high %.1f F)", r.TempF, r.TempHighF)) })
}

func (c *console) Recommendation(r cycle.Recommendation) {
	fyne.Do(func() {
		c.rec.SetText(fmt.Sprintf("#%d peak %.2f s, use %.2f s (avg %.2f s)",
			r.Cycle, r.Peak.Elapsed.Seconds(), r.Recommended, r.Average))
		c.scope.Mark(r)
	})
}

func (c *console) Status(msg string) {
	stamped := time.Now().Format("15:04:05") + "  " + msg
	fyne.Do(func() { c.status.SetText(stamped) })
}

// traceUpdated receives the calibration trace from the controller goroutine.
func (c *console) traceUpdated(samples []trace.Sample) {
	c.feedMu.Lock()
	c.feed = samples
	if c.feedPending {
		c.feedMu.Unlock()
		return
	}
	c.feedPending = true
	c.feedMu.Unlock()

	fyne.Do(func() {
		c.feedMu.Lock()
		latest := c.feed
		c.feedPending = false
		c.feedMu.Unlock()

		c.scope.Update(latest)
	})
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
