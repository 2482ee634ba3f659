package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/goanneal/pkg/appliance"
	"github.com/itohio/goanneal/pkg/config"
	"github.com/itohio/goanneal/pkg/controller"
	"github.com/itohio/goanneal/pkg/cycle"
	"github.com/itohio/goanneal/pkg/setpoint"
)

// settings is what the dialog shows, read on the controller goroutine.
type settings struct {
	snap    cycle.Snapshot
	presets []setpoint.Preset
	cfg     config.Config
}

// showSettingsDialog displays a settings dialog with tabs for the setpoints,
// the case presets and the configuration.
func showSettingsDialog(state *appState) {
	onLoop(state.ctrl, func(c *controller.Controller) settings {
		env := c.Env()
		return settings{
			snap:    env.Snapshot(),
			presets: env.Setpoints.Presets(),
			cfg:     *env.Config,
		}
	}, func(s settings) {
		tabs := container.NewAppTabs(
			createSetpointsTab(state, s),
			createPresetsTab(state, s),
			createCalibrationTab(state, s),
			createLogTab(state, s),
			createSerialTab(state, s),
			createMockTab(state, s),
		)

		d := dialog.NewCustom("Settings", "Close", tabs, state.window)
		d.Resize(fyne.NewSize(600, 500))
		d.Show()
	})
}

// saveConfig applies edit to the live config on the controller goroutine and
// writes the result to the config file.
func saveConfig(state *appState, edit func(cfg *config.Config)) {
	onLoop(state.ctrl, func(c *controller.Controller) error {
		cfg := c.Env().Config
		edit(cfg)
		return cfg.Save(state.configPath)
	}, func(err error) {
		if err != nil {
			dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
		}
	})
}

func parseSeconds(s string) (float32, error) {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number of seconds", s)
	}
	return float32(v), nil
}

func secondsEntry(v float32) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(fmt.Sprintf("%.2f", v))
	return e
}

func rangeHint(r setpoint.Range) string {
	return fmt.Sprintf("%.1f to %.1f s", r.Min, r.Max)
}

// createSetpointsTab edits the three cycle durations and start-on-sensor.
func createSetpointsTab(state *appState, s settings) *container.TabItem {
	annealEntry := secondsEntry(s.snap.Anneal)
	delayEntry := secondsEntry(s.snap.Delay)
	dropEntry := secondsEntry(s.snap.CaseDrop)
	sensorCheck := widget.NewCheck("", nil)
	sensorCheck.SetChecked(s.snap.StartOnSensor)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Anneal time", Widget: annealEntry, HintText: rangeHint(setpoint.Ranges[setpoint.Anneal])},
			{Text: "Delay", Widget: delayEntry, HintText: rangeHint(setpoint.Ranges[setpoint.Delay])},
			{Text: "Case drop", Widget: dropEntry, HintText: rangeHint(setpoint.Ranges[setpoint.CaseDrop])},
			{Text: "Start on case sensor", Widget: sensorCheck},
		},
		OnSubmit: func() {
			values := map[setpoint.Kind]*widget.Entry{
				setpoint.Anneal:   annealEntry,
				setpoint.Delay:    delayEntry,
				setpoint.CaseDrop: dropEntry,
			}
			parsed := make(map[setpoint.Kind]float32, len(values))
			for k, e := range values {
				v, err := parseSeconds(e.Text)
				if err != nil {
					dialog.ShowError(fmt.Errorf("%s: %w", k, err), state.window)
					return
				}
				parsed[k] = v
			}
			startOnSensor := sensorCheck.Checked

			onLoop(state.ctrl, func(c *controller.Controller) error {
				return c.EditSetpoints(func(sp *setpoint.Store) error {
					for k, v := range parsed {
						sp.Set(k, v)
					}
					sp.SyncAll()
					sp.SetStartOnSensor(startOnSensor)
					return nil
				})
			}, func(err error) {
				showRefusal(state, "update setpoints", err)
			})
		},
	}

	return container.NewTabItem("Setpoints", form)
}

// createPresetsTab offers the case preset operations: use a slot, save its
// edits, or store the live anneal time into it.
func createPresetsTab(state *appState, s settings) *container.TabItem {
	presets := s.presets
	options := make([]string, len(presets))
	for i := range presets {
		options[i] = strconv.Itoa(i + 1)
	}

	nameEntry := widget.NewEntry()
	nameEntry.Validator = func(text string) error {
		if len(text) > setpoint.NameLen {
			return fmt.Errorf("at most %d characters", setpoint.NameLen)
		}
		if setpoint.CleanName(text) != text {
			return fmt.Errorf("letters, digits, '.' and space only")
		}
		return nil
	}
	timeEntry := widget.NewEntry()

	slot := 0
	show := func(i int) {
		slot = i
		nameEntry.SetText(presets[i].Name)
		timeEntry.SetText(fmt.Sprintf("%.2f", presets[i].Time))
	}

	slotSelect := widget.NewSelect(options, func(sel string) {
		if i, err := strconv.Atoi(sel); err == nil {
			show(i - 1)
		}
	})

	edited := func() (setpoint.Preset, bool) {
		t, err := parseSeconds(timeEntry.Text)
		if err != nil {
			dialog.ShowError(err, state.window)
			return setpoint.Preset{}, false
		}
		if err := nameEntry.Validate(); err != nil {
			dialog.ShowError(err, state.window)
			return setpoint.Preset{}, false
		}
		return setpoint.Preset{Name: nameEntry.Text, Time: t}, true
	}

	apply := func(op func(sp *setpoint.Store, i int) error) {
		i := slot
		onLoop(state.ctrl, func(c *controller.Controller) presetResult {
			var r presetResult
			r.err = c.EditSetpoints(func(sp *setpoint.Store) error {
				err := op(sp, i)
				r.preset, _ = sp.Preset(i)
				return err
			})
			return r
		}, func(r presetResult) {
			if r.err != nil {
				showRefusal(state, fmt.Sprintf("update preset %d", i+1), r.err)
				return
			}
			presets[i] = r.preset
			if slot == i {
				show(i)
			}
		})
	}

	useBtn := widget.NewButton("Use", func() {
		if p, ok := edited(); ok {
			apply(func(sp *setpoint.Store, i int) error { return sp.UsePreset(i, p) })
		}
	})
	saveBtn := widget.NewButton("Save", func() {
		if p, ok := edited(); ok {
			apply(func(sp *setpoint.Store, i int) error { return sp.SavePreset(i, p) })
		}
	})
	storeBtn := widget.NewButton("Store Current", func() {
		apply(func(sp *setpoint.Store, i int) error { return sp.StoreCurrent(i) })
	})

	if len(options) > 0 {
		slotSelect.SetSelected(options[0])
	}

	form := widget.NewForm(
		widget.NewFormItem("Slot", slotSelect),
		widget.NewFormItem("Name", nameEntry),
		&widget.FormItem{Text: "Anneal time", Widget: timeEntry, HintText: rangeHint(setpoint.PresetRange)},
	)

	return container.NewTabItem("Presets", container.NewVBox(form, container.NewHBox(useBtn, saveBtn, storeBtn)))
}

type presetResult struct {
	preset setpoint.Preset
	err    error
}

// createCalibrationTab edits the calibration constants.
func createCalibrationTab(state *appState, s settings) *container.TabItem {
	cal := s.cfg.Calibration

	fEntry := widget.NewEntry()
	fEntry.SetText(fmt.Sprintf("%.4f", cal.F))
	kEntry := widget.NewEntry()
	kEntry.SetText(fmt.Sprintf("%.4f", cal.K))
	intervalEntry := widget.NewEntry()
	intervalEntry.SetText(cal.SampleInterval.String())
	maxHeatEntry := widget.NewEntry()
	maxHeatEntry.SetText(cal.MaxHeat.String())
	bufferEntry := widget.NewEntry()
	bufferEntry.SetText(strconv.Itoa(cal.BufferLength))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Factor F", Widget: fEntry},
			{Text: "Slope K", Widget: kEntry},
			{Text: "Sample interval", Widget: intervalEntry},
			{Text: "Max heat", Widget: maxHeatEntry, HintText: "cap on one pass, must be positive"},
			{Text: "Turnover window", Widget: bufferEntry, HintText: "samples, applies after restart"},
		},
		OnSubmit: func() {
			f, ferr := strconv.ParseFloat(fEntry.Text, 32)
			k, kerr := strconv.ParseFloat(kEntry.Text, 32)
			interval, ierr := time.ParseDuration(intervalEntry.Text)
			maxHeat, merr := time.ParseDuration(maxHeatEntry.Text)
			buffer, berr := strconv.Atoi(bufferEntry.Text)

			saveConfig(state, func(cfg *config.Config) {
				if ferr == nil {
					cfg.Calibration.F = float32(f)
				}
				if kerr == nil {
					cfg.Calibration.K = float32(k)
				}
				if ierr == nil && interval > 0 {
					cfg.Calibration.SampleInterval = interval
				}
				if merr == nil && maxHeat > 0 {
					cfg.Calibration.MaxHeat = maxHeat
				}
				if berr == nil && buffer >= 2 {
					cfg.Calibration.BufferLength = buffer
				}
			})
		},
	}

	return container.NewTabItem("Calibration", form)
}

// createLogTab edits session logging.
func createLogTab(state *appState, s settings) *container.TabItem {
	enabledCheck := widget.NewCheck("", nil)
	enabledCheck.SetChecked(s.cfg.Log.Enabled)
	dirEntry := widget.NewEntry()
	dirEntry.SetText(s.cfg.Log.Dir)
	chartsCheck := widget.NewCheck("", nil)
	chartsCheck.SetChecked(s.cfg.Log.Charts)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Log calibration sessions", Widget: enabledCheck, HintText: "applies after restart"},
			{Text: "Directory", Widget: dirEntry},
			{Text: "Chart every pass", Widget: chartsCheck},
		},
		OnSubmit: func() {
			enabled, dir, charts := enabledCheck.Checked, dirEntry.Text, chartsCheck.Checked
			saveConfig(state, func(cfg *config.Config) {
				cfg.Log.Enabled = enabled
				if dir != "" {
					cfg.Log.Dir = dir
				}
				cfg.Log.Charts = charts
			})
		},
	}

	return container.NewTabItem("Logging", form)
}

// createSerialTab selects the bridge port.
func createSerialTab(state *appState, s settings) *container.TabItem {
	ports, err := appliance.Ports()
	portOptions := []string{}
	if err == nil {
		for _, port := range ports {
			portOptions = append(portOptions, port.Name)
		}
	}

	current := s.cfg.Serial.Port
	found := false
	for _, opt := range portOptions {
		if opt == current {
			found = true
			break
		}
	}
	if !found && current != "" {
		portOptions = append(portOptions, current)
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if current != "" {
		portSelect.SetSelected(current)
	}
	mockCheck := widget.NewCheck("", nil)
	mockCheck.SetChecked(s.cfg.Serial.Mock)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Simulated annealer", Widget: mockCheck},
		},
		OnSubmit: func() {
			port, mock := portSelect.Selected, mockCheck.Checked
			saveConfig(state, func(cfg *config.Config) {
				if port != "" {
					cfg.Serial.Port = port
				}
				cfg.Serial.Mock = mock
			})
			dialog.ShowInformation("Serial", "The new port is used after a restart.", state.window)
		},
	}

	return container.NewTabItem("Serial", form)
}

// createMockTab edits the simulated annealer.
func createMockTab(state *appState, s settings) *container.TabItem {
	m := s.cfg.Mock

	peakEntry := widget.NewEntry()
	peakEntry.SetText(fmt.Sprintf("%.1f", m.PeakAmps))
	rampEntry := widget.NewEntry()
	rampEntry.SetText(m.RampTime.String())
	noiseEntry := widget.NewEntry()
	noiseEntry.SetText(fmt.Sprintf("%.3f", m.NoiseLevel))
	caseEntry := widget.NewEntry()
	caseEntry.SetText(m.CaseInterval.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Peak current (A)", Widget: peakEntry},
			{Text: "Ramp time", Widget: rampEntry},
			{Text: "Noise (A)", Widget: noiseEntry},
			{Text: "Case feed interval", Widget: caseEntry},
		},
		OnSubmit: func() {
			peak, perr := strconv.ParseFloat(peakEntry.Text, 32)
			ramp, rerr := time.ParseDuration(rampEntry.Text)
			noise, nerr := strconv.ParseFloat(noiseEntry.Text, 32)
			feed, cerr := time.ParseDuration(caseEntry.Text)

			saveConfig(state, func(cfg *config.Config) {
				if perr == nil && peak > 0 {
					cfg.Mock.PeakAmps = float32(peak)
				}
				if rerr == nil && ramp > 0 {
					cfg.Mock.RampTime = ramp
				}
				if nerr == nil && noise >= 0 {
					cfg.Mock.NoiseLevel = float32(noise)
				}
				if cerr == nil && feed >= 0 {
					cfg.Mock.CaseInterval = feed
				}
			})
		},
	}

	return container.NewTabItem("Mock", form)
}
