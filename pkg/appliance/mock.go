package appliance

import (
	"fmt"
	"sync"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/goanneal/pkg/chrono"
	"github.com/itohio/goanneal/pkg/config"
	"github.com/itohio/goanneal/pkg/sensor"
)

// Mock simulates an annealer. With the coil on, current ramps linearly to
// the curie point peak, tapers sharply, then falls off slowly. A dropped case
// is replaced CaseInterval after the trapdoor closes.
type Mock struct {
	cfg   *config.Config
	clock chrono.Clock

	mu        sync.RWMutex
	connected bool

	coil      bool
	solenoid  bool
	indicator bool

	// Simulation state
	coilOn   time.Duration // when the coil last switched on
	heated   time.Duration // total coil-on time, warms the enclosure
	casePres bool
	caseAt   time.Duration // arrival time of the next case, 0 if none pending
}

// NewMock creates a simulated annealer with a case already loaded.
func NewMock(cfg *config.Config, clock chrono.Clock) *Mock {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Mock{
		cfg:      cfg,
		clock:    clock,
		casePres: true,
	}
}

// Connect simulates connecting to the device.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}
	m.connected = true
	return nil
}

// Close switches every output off and disconnects.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}
	now := m.clock.Now()
	m.setCoil(false, now)
	m.setSolenoid(false, now)
	m.indicator = false
	m.connected = false
	return nil
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Outputs are ignored while disconnected, as with a real bridge.

func (m *Mock) SetCoil(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected {
		m.setCoil(on, m.clock.Now())
	}
}

func (m *Mock) SetSolenoid(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected {
		m.setSolenoid(on, m.clock.Now())
	}
}

func (m *Mock) SetIndicator(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected {
		m.indicator = on
	}
}

// Outputs returns the actuator states.
func (m *Mock) Outputs() (coil, solenoid, indicator bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.coil, m.solenoid, m.indicator
}

func (m *Mock) setCoil(on bool, now time.Duration) {
	if on == m.coil {
		return
	}
	if on {
		m.coilOn = now
	} else {
		m.heated += now - m.coilOn
	}
	m.coil = on
}

func (m *Mock) setSolenoid(on bool, now time.Duration) {
	if on == m.solenoid {
		return
	}
	if on {
		m.casePres = false
		m.caseAt = 0
	} else {
		m.caseAt = now + m.cfg.Mock.CaseInterval
	}
	m.solenoid = on
}

// CasePresent reports whether a case sits under the coil.
func (m *Mock) CasePresent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.casePres && m.caseAt > 0 && m.clock.Now() >= m.caseAt {
		m.casePres = true
		m.caseAt = 0
	}
	return m.casePres
}

// Amps returns the simulated coil current.
func (m *Mock) Amps() float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.coil {
		return 0
	}
	t := m.step(m.clock.Now() - m.coilOn)
	return math32.Max(Curve(t, m.cfg.Mock.PeakAmps, m.cfg.Mock.RampTime)+m.noise(t), 0)
}

// step quantizes t to the simulation step.
func (m *Mock) step(t time.Duration) time.Duration {
	if m.cfg.Mock.SampleRate <= 0 {
		return t
	}
	return t.Truncate(m.cfg.Mock.SampleRate)
}

func (m *Mock) noise(t time.Duration) float32 {
	s := float32(t.Seconds())
	return (math32.Sin(s*37) + math32.Cos(s*53)) * m.cfg.Mock.NoiseLevel * 0.5
}

// Curve is the noiseless current t after the coil switched on: a linear
// ramp to peak over ramp, then a taper at 1.5 times the ramp slope for a
// twentieth of ramp, then a slow fall at 0.375 times the slope.
func Curve(t time.Duration, peak float32, ramp time.Duration) float32 {
	if ramp <= 0 || t < 0 {
		return 0
	}
	slope := peak / float32(ramp.Seconds())
	s := float32(t.Seconds())
	r := float32(ramp.Seconds())

	switch {
	case s < r:
		return slope * s
	case s < r*1.05:
		return peak - 1.5*slope*(s-r)
	default:
		knee := peak - 1.5*slope*r*0.05
		return math32.Max(knee-0.375*slope*(s-r*1.05), 0)
	}
}

func (m *Mock) Current() uint16 {
	return sensor.RawAmps(m.Amps(), m.cfg.ADC, m.cfg.CurrentSensor)
}

func (m *Mock) Voltage() uint16 {
	m.mu.RLock()
	volts := m.cfg.Mock.IdleVolts
	if m.coil {
		volts = m.cfg.Mock.Volts
	}
	m.mu.RUnlock()
	return sensor.RawVolts(volts, m.cfg.ADC, m.cfg.VoltageSensor)
}

func (m *Mock) Thermistor() uint16 {
	m.mu.RLock()
	heated := m.heated
	if m.coil {
		heated += m.clock.Now() - m.coilOn
	}
	m.mu.RUnlock()

	f := m.cfg.Mock.AmbientF + 0.2*float32(heated.Seconds())
	return sensor.RawFahrenheit(f, m.cfg.ADC, m.cfg.Thermistor)
}
