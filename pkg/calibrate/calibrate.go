// Package calibrate implements the calibration cycle. It heats a case while
// sampling coil current, stops once the current has turned over, and derives
// a recommended anneal time from when the current peaked. The operator paces
// the session case by case.
package calibrate

import (
	"fmt"
	"log"
	"time"

	"github.com/itohio/goanneal/pkg/chrono"
	"github.com/itohio/goanneal/pkg/cycle"
	"github.com/itohio/goanneal/pkg/sensor"
	"github.com/itohio/goanneal/pkg/trace"
)

// State is a state of the calibration cycle.
type State int

const (
	WaitButton State = iota
	Start
	RunTimer
	Calculate
	SaveData
	WaitDropCase
	DropCaseTimer
	PauseWait
	Aborted
)

var stateNames = [...]string{
	WaitButton:    "Wait Button",
	Start:         "Start",
	RunTimer:      "Measuring",
	Calculate:     "Calculate",
	SaveData:      "Saving",
	WaitDropCase:  "Wait Drop",
	DropCaseTimer: "Trapdoor Open",
	PauseWait:     "Paused",
	Aborted:       "Aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// passive states wait for the operator with every actuator off.
func (s State) passive() bool {
	switch s {
	case WaitButton, PauseWait, WaitDropCase, Aborted:
		return true
	}
	return false
}

// Recommend converts the time of peak current to a recommended anneal time
// in seconds: t*(f + k*(t-90)*0.1)/10 with t in tenths of a second.
func Recommend(peak time.Duration, f, k float32) float32 {
	t := float32(peak.Milliseconds()) / 100
	return t * (f + k*(t-90)*0.1) / 10
}

// Machine is the calibration cycle state machine. Its state, including the
// session accumulators, survives while the controller runs another mode.
type Machine struct {
	state State

	timer  *chrono.Timer
	window *trace.Window
	loops  int // samples taken this pass

	cycles  int // passes that reached Calculate
	last    float32
	average float32

	session     bool // a pass was started since the session began
	logging     bool // session log is open
	ignoreClick bool
}

// New creates a machine in WaitButton. windowLen is the length of the
// turnover detector window.
func New(clock chrono.Clock, windowLen int) *Machine {
	return &Machine{
		state:  WaitButton,
		timer:  chrono.NewTimer(clock),
		window: trace.NewWindow(windowLen),
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Idle reports whether the machine is waiting for the operator to start a
// pass or leave, with all actuators off.
func (m *Machine) Idle() bool {
	return m.state == WaitButton
}

// Sampling reports whether the machine samples power itself this tick.
func (m *Machine) Sampling() bool {
	return m.state == Start || m.state == RunTimer
}

// Cycles returns the number of completed passes in the current session.
// Passes aborted before their peak was calculated do not count.
func (m *Machine) Cycles() int { return m.cycles }

// Last returns the recommendation of the most recent pass.
func (m *Machine) Last() float32 { return m.last }

// Average returns the running average recommendation of the session.
func (m *Machine) Average() float32 { return m.average }

// Enter is called when the controller switches into calibration mode.
func (m *Machine) Enter(env *cycle.Env) {
	m.ignoreClick = false
	env.Display.State(m.state)
	env.Display.Refresh(env.Snapshot())
}

// Tick runs one loop iteration. It reports true when the operator leaves
// calibration mode.
func (m *Machine) Tick(env *cycle.Env) (exit bool) {
	enc := env.Encoder
	start := env.Start.Take()
	stop := env.Stop.Take()

	if enc.Clicked() {
		enc.DoubleClicked()
		enc.Pressed()
		if m.ignoreClick {
			m.ignoreClick = false
		} else {
			stop = true
		}
	}
	if enc.Pressed() && !m.state.passive() {
		stop = true
		m.ignoreClick = true
	}
	if enc.Moved() {
		enc.Delta(true)
	}

	switch {
	case stop && m.state.passive():
		// Stop wins over start; the state decides what it means
		start = false
	case stop:
		env.AllOff()
		log.Printf("calibrate: stopped in %s, pass aborted", m.state)
		m.enter(env, Aborted)
		start, stop = false, false
	case !m.state.passive():
		start = false
	}

	switch m.state {
	case WaitButton:
		if stop {
			env.ClearInputs()
			log.Printf("calibrate: leaving calibration mode")
			return true
		}
		if start {
			m.enter(env, Start)
		}

	case Start:
		m.startPass(env)

	case RunTimer:
		m.sample(env)

	case Calculate:
		m.calculate(env)

	case SaveData:
		m.save(env)
		m.enter(env, WaitDropCase)

	case WaitDropCase:
		if start || stop {
			env.Outputs.SetSolenoid(true)
			m.timer.Restart()
			m.enter(env, DropCaseTimer)
		}

	case DropCaseTimer:
		if m.timer.HasPassed(cycle.Millis(env.Setpoints.CaseDrop())) {
			env.Outputs.SetSolenoid(false)
			m.enter(env, PauseWait)
		}

	case PauseWait, Aborted:
		if stop {
			m.endSession(env)
			m.enter(env, WaitButton)
		} else if start {
			m.enter(env, WaitButton)
		}
	}

	return false
}

func (m *Machine) startPass(env *cycle.Env) {
	m.window.Reset()
	env.Trace.Reset()

	env.Sensors.Power(true, sensor.Calibration)
	r := env.Sensors.Reading()
	m.window.Push(r.Amps)
	env.Trace.Add(trace.Sample{Elapsed: 0, Amps: r.Amps, Volts: r.Volts})

	m.loops = 1
	if !m.session {
		m.session = true
		m.beginSession(env)
	}

	m.timer.Restart()
	env.Outputs.SetCoil(true)
	env.Outputs.SetIndicator(true)
	m.enter(env, RunTimer)
}

func (m *Machine) sample(env *cycle.Env) {
	cfg := &env.Config.Calibration
	elapsed := m.timer.Elapsed()

	if elapsed >= time.Duration(m.loops)*cfg.SampleInterval {
		m.loops++
		env.Sensors.Power(false, sensor.Calibration)
		r := env.Sensors.Reading()
		m.window.Push(r.Amps)
		env.Trace.Add(trace.Sample{Elapsed: elapsed, Amps: r.Amps, Volts: r.Volts})
		env.Display.Power(r)

		if m.window.Falling() {
			m.coilOff(env)
			return
		}
	}

	if elapsed >= cfg.MaxHeat {
		log.Printf("calibrate: current never turned over within %v", cfg.MaxHeat)
		env.Display.Status(fmt.Sprintf("No peak within %v", cfg.MaxHeat))
		m.coilOff(env)
	}
}

func (m *Machine) coilOff(env *cycle.Env) {
	env.Outputs.SetCoil(false)
	env.Outputs.SetIndicator(false)
	m.enter(env, Calculate)
}

func (m *Machine) calculate(env *cycle.Env) {
	cfg := &env.Config.Calibration

	peak, _ := env.Trace.Peak()
	m.last = Recommend(peak.Elapsed, cfg.F, cfg.K)
	m.cycles++
	m.average = (m.average*float32(m.cycles-1) + m.last) / float32(m.cycles)

	log.Printf("calibrate: pass %d peaked at %.2f A after %v, recommending %.2f s (average %.2f s)",
		m.cycles, peak.Amps, peak.Elapsed, m.last, m.average)
	env.Display.Recommendation(m.recommendation(peak))
	m.enter(env, SaveData)
}

func (m *Machine) recommendation(peak trace.Sample) cycle.Recommendation {
	return cycle.Recommendation{
		Cycle:       m.cycles,
		Peak:        peak,
		Recommended: m.last,
		Average:     m.average,
	}
}

func (m *Machine) save(env *cycle.Env) {
	if !m.logging {
		return
	}
	peak, _ := env.Trace.Peak()
	if err := env.Logger.Write(m.recommendation(peak), env.Trace.Samples()); err != nil {
		m.disableLogging(env, err)
	}
}

func (m *Machine) beginSession(env *cycle.Env) {
	if env.Logger == nil {
		return
	}
	if err := env.Logger.Begin(); err != nil {
		m.disableLogging(env, err)
		return
	}
	m.logging = true
}

func (m *Machine) disableLogging(env *cycle.Env, err error) {
	m.logging = false
	log.Printf("calibrate: logging disabled for this session: %v", err)
	env.Display.Status("Logging disabled")
}

// CloseLog closes the session log if one is open. The session accumulators
// are kept; a later pass in the same session is not logged.
func (m *Machine) CloseLog(env *cycle.Env) {
	if !m.logging {
		return
	}
	if err := env.Logger.End(); err != nil {
		log.Printf("calibrate: failed to close session log: %v", err)
	}
	m.logging = false
}

// endSession clears the accumulators and closes the session log.
func (m *Machine) endSession(env *cycle.Env) {
	m.CloseLog(env)
	m.session = false
	m.cycles = 0
	m.last = 0
	m.average = 0
	m.loops = 0
	m.window.Reset()
	env.Trace.Reset()
}

func (m *Machine) enter(env *cycle.Env, s State) {
	m.state = s
	env.Display.State(s)
}
