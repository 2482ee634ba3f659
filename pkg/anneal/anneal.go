// Package anneal implements the anneal cycle: wait for start, wait for a
// case, heat it for the anneal setpoint, open the trapdoor, cool down, repeat.
package anneal

import (
	"log"

	"github.com/itohio/goanneal/pkg/chrono"
	"github.com/itohio/goanneal/pkg/cycle"
	"github.com/itohio/goanneal/pkg/sensor"
	"github.com/itohio/goanneal/pkg/setpoint"
)

// State is a state of the anneal cycle.
type State int

const (
	WaitButton State = iota
	WaitCase
	StartAnneal
	AnnealTimer
	DropCase
	DropCaseTimer
	Delay
)

var stateNames = [...]string{
	WaitButton:    "Wait Button",
	WaitCase:      "Wait Case",
	StartAnneal:   "Start Anneal",
	AnnealTimer:   "Annealing",
	DropCase:      "Drop Case",
	DropCaseTimer: "Trapdoor Open",
	Delay:         "Delay",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// Machine is the anneal cycle state machine. Its state survives while the
// controller runs another mode.
type Machine struct {
	state State

	cycle        *chrono.Timer // current phase
	power        *chrono.Timer // power sampling during the dwell
	timerDisplay *chrono.Timer
	display      *chrono.Timer

	// A knob press already stopped the cycle; its release is not a click.
	ignoreClick bool
}

// New creates a machine in WaitButton.
func New(clock chrono.Clock) *Machine {
	return &Machine{
		state:        WaitButton,
		cycle:        chrono.NewTimer(clock),
		power:        chrono.NewTimer(clock),
		timerDisplay: chrono.NewTimer(clock),
		display:      chrono.NewTimer(clock),
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Idle reports whether the machine is waiting for the start button with all
// actuators off.
func (m *Machine) Idle() bool {
	return m.state == WaitButton
}

// Sampling reports whether the machine samples power itself this tick.
func (m *Machine) Sampling() bool {
	return m.state == StartAnneal || m.state == AnnealTimer
}

// Enter is called when the controller switches into anneal mode.
func (m *Machine) Enter(env *cycle.Env) {
	m.ignoreClick = false
	m.display.Restart()
	env.Display.State(m.state)
	env.Display.Refresh(env.Snapshot())
}

// Tick runs one loop iteration: operator input first, then the state's
// work. It reports true when the operator leaves anneal mode.
func (m *Machine) Tick(env *cycle.Env) (exit bool) {
	enc := env.Encoder
	// Start only counts in WaitButton; elsewhere it is drained
	start := env.Start.Take() && m.state == WaitButton
	stop := env.Stop.Take()

	if enc.Clicked() {
		enc.DoubleClicked()
		switch {
		case m.ignoreClick:
			m.ignoreClick = false
		case m.state == WaitButton:
			env.ClearInputs()
			log.Printf("anneal: leaving anneal mode")
			return true
		default:
			stop = true
			enc.Pressed()
		}
	}
	if enc.Pressed() && m.state != WaitButton {
		stop = true
		m.ignoreClick = true
	}

	if stop && m.state != WaitButton {
		env.AllOff()
		log.Printf("anneal: stopped in %s, cycle aborted", m.state)
		m.enter(env, WaitButton)
	}

	if enc.Moved() {
		d := enc.Delta(true)
		if m.state == WaitButton {
			env.Setpoints.Adjust(setpoint.Anneal, float32(d)/100)
			env.Display.Refresh(env.Snapshot())
		}
	}

	sp := env.Setpoints
	cfg := &env.Config.Anneal

	switch m.state {
	case WaitButton:
		m.refresh(env)
		if start {
			m.enter(env, WaitCase)
		}

	case WaitCase:
		m.refresh(env)
		sp.Sync(setpoint.Anneal)
		if !sp.StartOnSensor() || env.Case.CasePresent() {
			m.enter(env, StartAnneal)
		}

	case StartAnneal:
		env.Outputs.SetCoil(true)
		env.Outputs.SetIndicator(true)
		m.cycle.Restart()
		m.power.Restart()
		m.timerDisplay.Restart()
		m.enter(env, AnnealTimer)

	case AnnealTimer:
		dwell := cycle.RoundMillis(sp.Anneal())
		if m.cycle.HasPassed(dwell) {
			env.Outputs.SetCoil(false)
			env.Outputs.SetIndicator(false)
			m.cycle.Restart()
			m.display.Restart()
			m.enter(env, DropCase)
			break
		}

		if m.power.Every(cfg.PowerInterval) {
			env.Sensors.Power(false, sensor.Heating)
			env.Display.Power(env.Sensors.Reading())
		}

		// No timer redraw near the end of the dwell, so drawing cannot delay
		// switching the coil off.
		if elapsed := m.cycle.Elapsed(); elapsed < dwell-cfg.TimerDisplayGuard && m.timerDisplay.Every(cfg.TimerDisplayInterval) {
			env.Display.Timer(elapsed)
		}

	case DropCase:
		env.Outputs.SetSolenoid(true)
		m.enter(env, DropCaseTimer)
		env.Display.Timer(m.cycle.Elapsed())

	case DropCaseTimer:
		m.refresh(env)
		if m.cycle.HasPassed(cycle.Millis(sp.CaseDrop())) {
			env.Outputs.SetSolenoid(false)
			m.cycle.Restart()
			m.enter(env, Delay)
		}

	case Delay:
		m.refresh(env)
		if m.cycle.HasPassed(cycle.Millis(sp.Delay())) {
			m.enter(env, WaitCase)
		}
	}

	return false
}

func (m *Machine) enter(env *cycle.Env, s State) {
	m.state = s
	env.Display.State(s)
}

func (m *Machine) refresh(env *cycle.Env) {
	if m.display.Every(env.Config.Anneal.DisplayInterval) {
		env.Display.Refresh(env.Snapshot())
	}
}
