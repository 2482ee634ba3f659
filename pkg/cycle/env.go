// Package cycle holds what the anneal and calibration machines share: the
// per-tick environment they are handed by reference and the collaborators
// they drive.
package cycle

import (
	"fmt"
	"time"

	"github.com/itohio/goanneal/pkg/chrono"
	"github.com/itohio/goanneal/pkg/config"
	"github.com/itohio/goanneal/pkg/encoder"
	"github.com/itohio/goanneal/pkg/sensor"
	"github.com/itohio/goanneal/pkg/setpoint"
	"github.com/itohio/goanneal/pkg/trace"
)

// Mode is the active control mode.
type Mode int

const (
	Idle Mode = iota
	Anneal
	Calibration
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Anneal:
		return "anneal"
	case Calibration:
		return "calibration"
	default:
		return "unknown"
	}
}

// Outputs drives the three actuator lines.
type Outputs interface {
	SetCoil(on bool)
	SetSolenoid(on bool)
	SetIndicator(on bool)
}

// CaseSensor reports whether a case is waiting under the coil.
type CaseSensor interface {
	CasePresent() bool
}

// Snapshot is what a general display refresh shows.
type Snapshot struct {
	Anneal        float32 // seconds
	Delay         float32
	CaseDrop      float32
	StartOnSensor bool
	Reading       sensor.Reading
}

// Recommendation is the outcome of one calibration pass.
type Recommendation struct {
	Cycle       int          // 1-based pass number in the session
	Peak        trace.Sample // highest current of the pass
	Recommended float32      // dwell recommended by this pass, seconds
	Average     float32      // running average over the session
}

// Display receives presentation updates. Implementations make no control
// decisions and must not block.
type Display interface {
	Mode(m Mode)
	State(s fmt.Stringer)
	Refresh(s Snapshot)
	Timer(elapsed time.Duration)
	Power(r sensor.Reading)
	Temps(r sensor.Reading)
	Recommendation(r Recommendation)
	Status(msg string)
}

// Logger records calibration sessions. Begin opens a session, Write appends
// one pass, End closes the session.
type Logger interface {
	Begin() error
	Write(r Recommendation, samples []trace.Sample) error
	End() error
}

// Env is everything a machine may touch during a tick.
type Env struct {
	Config    *config.Config
	Clock     chrono.Clock
	Outputs   Outputs
	Case      CaseSensor
	Sensors   *sensor.Filter
	Setpoints *setpoint.Store
	Encoder   *encoder.Decoder
	Start     *encoder.Latch
	Stop      *encoder.Latch
	Trace     *trace.Trace
	Display   Display
	Logger    Logger // nil disables session logging
}

// AllOff de-energizes every actuator.
func (e *Env) AllOff() {
	e.Outputs.SetCoil(false)
	e.Outputs.SetIndicator(false)
	e.Outputs.SetSolenoid(false)
}

// ClearInputs drops every latched operator event.
func (e *Env) ClearInputs() {
	e.Encoder.ClearAll()
	e.Encoder.Delta(true)
	e.Start.Clear()
	e.Stop.Clear()
}

// Snapshot collects the values shown on a general refresh.
func (e *Env) Snapshot() Snapshot {
	return Snapshot{
		Anneal:        e.Setpoints.Anneal(),
		Delay:         e.Setpoints.Delay(),
		CaseDrop:      e.Setpoints.CaseDrop(),
		StartOnSensor: e.Setpoints.StartOnSensor(),
		Reading:       e.Sensors.Reading(),
	}
}

// Millis converts seconds to a duration, truncating to whole milliseconds.
func Millis(seconds float32) time.Duration {
	return time.Duration(seconds*1000) * time.Millisecond
}

// RoundMillis converts seconds to a duration, rounding to the nearest
// millisecond.
func RoundMillis(seconds float32) time.Duration {
	return time.Duration(seconds*1000+0.5) * time.Millisecond
}
