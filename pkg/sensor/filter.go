// Package sensor converts raw analog readings to amps, volts and degrees
// Fahrenheit and keeps exponentially smoothed copies of them.
package sensor

import (
	"github.com/itohio/goanneal/pkg/config"
)

// Source provides single-sample, non-blocking reads of the analog channels.
type Source interface {
	Current() uint16
	Voltage() uint16
	Thermistor() uint16
}

// Context selects the smoothing ratio of a power update.
type Context int

const (
	Monitor Context = iota
	Heating
	Calibration
)

func (c Context) String() string {
	switch c {
	case Monitor:
		return "monitor"
	case Heating:
		return "heating"
	case Calibration:
		return "calibration"
	default:
		return "unknown"
	}
}

// Reading is a snapshot of the smoothed sensor values.
type Reading struct {
	Amps      float32
	Volts     float32
	TempF     float32
	TempHighF float32 // Highest TempF since the last temperature reset
}

// Filter owns the smoothed readings. It is not safe for concurrent use; the
// control loop is its only caller.
type Filter struct {
	src Source
	cfg *config.Config

	thermCounts float32 // smoothed raw thermistor count
	reading     Reading
}

// NewFilter creates a filter reading from src.
func NewFilter(src Source, cfg *config.Config) *Filter {
	return &Filter{src: src, cfg: cfg}
}

// Power samples current and voltage once. With reset the smoothed values are
// replaced by the sample; otherwise the sample is blended in with the ratio
// configured for ctx.
func (f *Filter) Power(reset bool, ctx Context) {
	amps := Amps(f.src.Current(), f.cfg.ADC, f.cfg.CurrentSensor)
	volts := Volts(f.src.Voltage(), f.cfg.ADC, f.cfg.VoltageSensor)

	if reset {
		f.reading.Amps = amps
		f.reading.Volts = volts
		return
	}

	r := f.ratio(ctx)
	f.reading.Amps = blend(f.reading.Amps, amps, r)
	f.reading.Volts = blend(f.reading.Volts, volts, r)
}

// Temperature samples the thermistor. With reset three samples are averaged
// and both the temperature and its high-water mark are set from the average;
// otherwise one sample is blended in and the high-water mark raised if needed.
func (f *Filter) Temperature(reset bool) {
	th := f.cfg.Thermistor

	if reset {
		var sum float32
		for range 3 {
			sum += float32(f.src.Thermistor())
		}
		f.thermCounts = sum / 3
		f.reading.TempF = Fahrenheit(f.thermCounts, f.cfg.ADC, th)
		f.reading.TempHighF = f.reading.TempF
		return
	}

	f.thermCounts = blend(f.thermCounts, float32(f.src.Thermistor()), f.cfg.Smoothing.Temperature)
	f.reading.TempF = Fahrenheit(f.thermCounts, f.cfg.ADC, th)
	if f.reading.TempF > f.reading.TempHighF {
		f.reading.TempHighF = f.reading.TempF
	}
}

// Reading returns the current smoothed values.
func (f *Filter) Reading() Reading {
	return f.reading
}

func (f *Filter) ratio(ctx Context) float32 {
	s := f.cfg.Smoothing
	switch ctx {
	case Heating:
		return s.Heating
	case Calibration:
		return s.Calibration
	default:
		return s.Monitor
	}
}

// blend returns the exponential moving average step (1-r)*prev + r*sample.
func blend(prev, sample, r float32) float32 {
	return (1-r)*prev + r*sample
}
