// Package cycletest provides an in-memory bench for driving the control
// machines from tests: a manual clock, recorded actuator lines, settable
// analog inputs and recording collaborators.
package cycletest

import (
	"fmt"
	"sync"
	"time"

	"github.com/itohio/goanneal/pkg/chrono"
	"github.com/itohio/goanneal/pkg/config"
	"github.com/itohio/goanneal/pkg/cycle"
	"github.com/itohio/goanneal/pkg/eeprom"
	"github.com/itohio/goanneal/pkg/encoder"
	"github.com/itohio/goanneal/pkg/sensor"
	"github.com/itohio/goanneal/pkg/setpoint"
	"github.com/itohio/goanneal/pkg/trace"
)

// Config returns the default configuration with a linear current channel
// (one count is 10 mA) and no smoothing, so tests control amps exactly.
func Config() *config.Config {
	cfg := config.Default()
	cfg.ADC.Resolution = 1024
	cfg.ADC.VRef = 1024
	cfg.CurrentSensor.OffsetVolts = 0
	cfg.CurrentSensor.VoltsPerAmp = 100
	cfg.Smoothing.Monitor = 1
	cfg.Smoothing.Heating = 1
	cfg.Smoothing.Calibration = 1
	return cfg
}

// Board is a fake appliance: actuator lines, analog channels and the case
// sensor.
type Board struct {
	Coil, Solenoid, Indicator bool

	Raw struct {
		Current, Voltage, Thermistor uint16
	}
	Case bool
}

var (
	_ cycle.Outputs    = (*Board)(nil)
	_ cycle.CaseSensor = (*Board)(nil)
	_ sensor.Source    = (*Board)(nil)
)

func (b *Board) SetCoil(on bool)      { b.Coil = on }
func (b *Board) SetSolenoid(on bool)  { b.Solenoid = on }
func (b *Board) SetIndicator(on bool) { b.Indicator = on }
func (b *Board) CasePresent() bool    { return b.Case }
func (b *Board) Current() uint16      { return b.Raw.Current }
func (b *Board) Voltage() uint16      { return b.Raw.Voltage }
func (b *Board) Thermistor() uint16   { return b.Raw.Thermistor }

// SetAmps sets the current channel for the Config() calibration.
func (b *Board) SetAmps(a float32) {
	b.Raw.Current = uint16(a*100 + 0.5)
}

// AnyOn reports whether any actuator line is energized.
func (b *Board) AnyOn() bool {
	return b.Coil || b.Solenoid || b.Indicator
}

// Display records display updates.
type Display struct {
	mu          sync.Mutex
	Modes       []cycle.Mode
	States      []string
	Recs        []cycle.Recommendation
	Statuses    []string
	Refreshes   int
	Timers      int
	Powers      int
	TempUpdates int
}

var _ cycle.Display = (*Display)(nil)

func (d *Display) Mode(m cycle.Mode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Modes = append(d.Modes, m)
}

func (d *Display) State(s fmt.Stringer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.States = append(d.States, s.String())
}

func (d *Display) Refresh(cycle.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Refreshes++
}

func (d *Display) Timer(time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Timers++
}

func (d *Display) Power(sensor.Reading) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Powers++
}

func (d *Display) Temps(sensor.Reading) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.TempUpdates++
}

func (d *Display) Recommendation(r cycle.Recommendation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Recs = append(d.Recs, r)
}

func (d *Display) Status(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Statuses = append(d.Statuses, msg)
}

// Logger records session logging calls. Set BeginErr to simulate a missing
// log device.
type Logger struct {
	Begun, Ended int
	Passes       []cycle.Recommendation
	Samples      [][]trace.Sample
	BeginErr     error
}

var _ cycle.Logger = (*Logger)(nil)

func (l *Logger) Begin() error {
	if l.BeginErr != nil {
		return l.BeginErr
	}
	l.Begun++
	return nil
}

func (l *Logger) Write(r cycle.Recommendation, samples []trace.Sample) error {
	l.Passes = append(l.Passes, r)
	l.Samples = append(l.Samples, samples)
	return nil
}

func (l *Logger) End() error {
	l.Ended++
	return nil
}

// Bench bundles an Env with the fakes behind it.
type Bench struct {
	Env     *cycle.Env
	Clock   *chrono.Manual
	Board   *Board
	Display *Display
	Logger  *Logger
	EE      *eeprom.Memory

	button time.Duration // knob button edge timestamps, spaced beyond any debounce
}

// New creates a bench around cfg (Config() when nil).
func New(cfg *config.Config) *Bench {
	if cfg == nil {
		cfg = Config()
	}
	b := &Bench{
		Clock:   &chrono.Manual{},
		Board:   &Board{},
		Display: &Display{},
		Logger:  &Logger{},
		EE:      eeprom.NewMemory(),
	}
	b.Board.Raw.Thermistor = 512
	b.Board.Raw.Voltage = 1000

	b.Env = &cycle.Env{
		Config:    cfg,
		Clock:     b.Clock,
		Outputs:   b.Board,
		Case:      b.Board,
		Sensors:   sensor.NewFilter(b.Board, cfg),
		Setpoints: setpoint.Open(b.EE, cfg.Setpoints, cfg.Anneal.StartOnSensor),
		Encoder:   encoder.New(cfg.Encoder.Debounce, cfg.Encoder.DoubleClick),
		Start:     &encoder.Latch{},
		Stop:      &encoder.Latch{},
		Trace:     trace.New(),
		Display:   b.Display,
		Logger:    b.Logger,
	}
	return b
}

// Press pushes the knob button down.
func (b *Bench) Press() {
	b.button += time.Second
	b.Env.Encoder.Button(false, b.button)
}

// Release lets the knob button up.
func (b *Bench) Release() {
	b.button += time.Second
	b.Env.Encoder.Button(true, b.button)
}

// Click presses and releases the knob button.
func (b *Bench) Click() {
	b.Press()
	b.Release()
}

// Turn rotates the knob by n detents (negative is counter-clockwise).
func (b *Bench) Turn(n int) {
	cw := [][2]bool{{false, true}, {false, false}, {true, false}, {true, true}}
	ccw := [][2]bool{{true, false}, {false, false}, {false, true}, {true, true}}
	seq := cw
	if n < 0 {
		seq, n = ccw, -n
	}
	for range n {
		for _, s := range seq {
			b.Env.Encoder.Quadrature(s[0], s[1])
		}
	}
}
