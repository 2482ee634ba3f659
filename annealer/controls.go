package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/goanneal/pkg/appliance"
	"github.com/itohio/goanneal/pkg/chrono"
	"github.com/itohio/goanneal/pkg/config"
	"github.com/itohio/goanneal/pkg/controller"
	"github.com/itohio/goanneal/pkg/cycle"
)

// appState holds the application state.
type appState struct {
	cfg        *config.Config
	configPath string
	window     fyne.Window
	device     appliance.Device
	ctrl       *controller.Controller
	in         appliance.Inputs
	clock      chrono.Clock
	ui         *console

	// The on-screen knob is only offered with the simulated annealer; with
	// the bridge the serial reader is the encoder's only writer.
	knob bool

	annealBtn    *widget.Button
	calibrateBtn *widget.Button
	menuBtn      *widget.Button
	lamps        [3]*widget.Button // coil, trapdoor, indicator
}

// onLoop runs fn on the controller goroutine and hands its result to then on
// the fyne goroutine.
func onLoop[T any](c *controller.Controller, fn func(*controller.Controller) T, then func(T)) {
	c.Do(func(c *controller.Controller) {
		v := fn(c)
		fyne.Do(func() { then(v) })
	})
}

// createToolbar creates the mode, operator and settings controls plus the
// actuator lamps.
func createToolbar(state *appState) fyne.CanvasObject {
	state.annealBtn = widget.NewButton("Anneal", func() { switchMode(state, cycle.Anneal) })
	state.calibrateBtn = widget.NewButton("Calibrate", func() { switchMode(state, cycle.Calibration) })
	state.menuBtn = widget.NewButtonWithIcon("", theme.HomeIcon(), func() { switchMode(state, cycle.Idle) })

	startBtn := widget.NewButtonWithIcon("Start", theme.MediaPlayIcon(), func() { state.in.Start.Set() })
	stopBtn := widget.NewButtonWithIcon("Stop", theme.MediaStopIcon(), func() { state.in.Stop.Set() })
	stopBtn.Importance = widget.DangerImportance

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	left := container.NewHBox(state.menuBtn, state.annealBtn, state.calibrateBtn, widget.NewSeparator(), startBtn, stopBtn)
	if state.knob {
		left.Add(widget.NewSeparator())
		left.Add(widget.NewButtonWithIcon("", theme.MoveDownIcon(), func() { turnKnob(state, -10) }))
		left.Add(widget.NewButtonWithIcon("", theme.MoveUpIcon(), func() { turnKnob(state, 10) }))
		left.Add(widget.NewButton("Knob", func() { clickKnob(state) }))
	}
	left.Add(settingsBtn)

	for i, name := range []string{"Coil", "Trapdoor", "Indicator"} {
		state.lamps[i] = widget.NewButton(name, nil)
		state.lamps[i].Disable()
	}

	state.ui.onMode = func(m cycle.Mode) { updateModeButtons(state, m) }
	updateModeButtons(state, cycle.Idle)

	return container.NewBorder(
		nil,
		nil,
		left,
		container.NewHBox(state.lamps[0], state.lamps[1], state.lamps[2]),
		nil,
	)
}

// switchMode asks the controller for a mode change and reports a refusal.
func switchMode(state *appState, m cycle.Mode) {
	onLoop(state.ctrl, func(c *controller.Controller) error {
		return c.SetMode(m)
	}, func(err error) {
		showRefusal(state, fmt.Sprintf("switch to %s", m), err)
	})
}

// showRefusal reports a failed operator action. A running cycle gets a hint
// instead of an error.
func showRefusal(state *appState, action string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, controller.ErrBusy):
		dialog.ShowInformation("Busy", "Stop the running cycle first.", state.window)
	default:
		dialog.ShowError(fmt.Errorf("failed to %s: %w", action, err), state.window)
	}
}

func updateModeButtons(state *appState, m cycle.Mode) {
	highlight := func(btn *widget.Button, on bool) {
		if on {
			btn.Importance = widget.HighImportance
		} else {
			btn.Importance = widget.MediumImportance
		}
		btn.Refresh()
	}
	highlight(state.menuBtn, m == cycle.Idle)
	highlight(state.annealBtn, m == cycle.Anneal)
	highlight(state.calibrateBtn, m == cycle.Calibration)
}

// turnKnob feeds quadrature edges for n detents.
func turnKnob(state *appState, n int) {
	cw := [][2]bool{{false, true}, {false, false}, {true, false}, {true, true}}
	ccw := [][2]bool{{true, false}, {false, false}, {false, true}, {true, true}}
	seq := cw
	if n < 0 {
		seq, n = ccw, -n
	}
	for range n {
		for _, s := range seq {
			state.in.Encoder.Quadrature(s[0], s[1])
		}
	}
}

// clickKnob presses the knob button and releases it after the debounce
// interval.
func clickKnob(state *appState) {
	state.in.Encoder.Button(false, state.clock.Now())
	go func() {
		time.Sleep(2 * state.cfg.Encoder.Debounce)
		fyne.Do(func() { state.in.Encoder.Button(true, state.clock.Now()) })
	}()
}

// watchOutputs mirrors the actuator states onto the lamps, touching the UI
// only when a state changes.
func watchOutputs(ctx context.Context, state *appState) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var last [3]bool
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			coil, solenoid, indicator := state.device.Outputs()
			now := [3]bool{coil, solenoid, indicator}
			if now == last && !first {
				continue
			}
			last, first = now, false
			fyne.Do(func() {
				for i, on := range now {
					if on {
						state.lamps[i].Importance = widget.WarningImportance
					} else {
						state.lamps[i].Importance = widget.MediumImportance
					}
					state.lamps[i].Refresh()
				}
			})
		}
	}
}
