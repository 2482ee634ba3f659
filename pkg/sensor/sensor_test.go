package sensor

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"

	"github.com/itohio/goanneal/pkg/config"
)

type fakeSource struct {
	current, voltage uint16
	therm            []uint16
	reads            int
}

func (s *fakeSource) Current() uint16 { return s.current }
func (s *fakeSource) Voltage() uint16 { return s.voltage }
func (s *fakeSource) Thermistor() uint16 {
	v := s.therm[s.reads%len(s.therm)]
	s.reads++
	return v
}

func TestAmps(t *testing.T) {
	cfg := config.Default()

	tests := []struct {
		name string
		raw  uint16
		want float32
	}{
		{name: "zero reading clamps to zero", raw: 0, want: 0},
		{name: "below sensor offset clamps to zero", raw: 100, want: 0},
		{name: "mid scale", raw: 512, want: 15},
		{name: "full scale", raw: 1024, want: 40},
		{name: "beyond full scale clamps", raw: 4000, want: 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Amps(tt.raw, cfg.ADC, cfg.CurrentSensor)
			assert.InDelta(t, tt.want, got, 1e-4)
			assert.GreaterOrEqual(t, got, float32(0))
		})
	}
}

func TestVolts(t *testing.T) {
	cfg := config.Default()
	assert.InDelta(t, 24.0, Volts(512, cfg.ADC, cfg.VoltageSensor), 1e-4)
	assert.InDelta(t, 0.046875, Volts(1, cfg.ADC, cfg.VoltageSensor), 1e-6)
	assert.InDelta(t, 48.0, Volts(1024, cfg.ADC, cfg.VoltageSensor), 1e-4)
}

func TestFahrenheit(t *testing.T) {
	cfg := config.Default()

	// Mid scale: thermistor equals the series resistor, i.e. nominal temperature
	assert.InDelta(t, 77.0, Fahrenheit(512, cfg.ADC, cfg.Thermistor), 0.01)

	// Higher count means higher thermistor resistance, i.e. colder
	assert.Less(t, Fahrenheit(700, cfg.ADC, cfg.Thermistor), Fahrenheit(512, cfg.ADC, cfg.Thermistor))

	t.Run("out of range counts are clamped", func(t *testing.T) {
		for _, c := range []float32{-5, 0, 1024, 2000} {
			f := Fahrenheit(c, cfg.ADC, cfg.Thermistor)
			assert.False(t, math32.IsNaN(f), "NaN for count %v", c)
			assert.False(t, math32.IsInf(f, 0), "Inf for count %v", c)
		}
		assert.Equal(t, Fahrenheit(1, cfg.ADC, cfg.Thermistor), Fahrenheit(0, cfg.ADC, cfg.Thermistor))
		assert.Equal(t, Fahrenheit(1023, cfg.ADC, cfg.Thermistor), Fahrenheit(1024, cfg.ADC, cfg.Thermistor))
	})
}

func TestRawInverses(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, uint16(512), RawAmps(15, cfg.ADC, cfg.CurrentSensor))
	assert.Equal(t, uint16(1024), RawAmps(100, cfg.ADC, cfg.CurrentSensor), "clamps at full scale")
	assert.Equal(t, uint16(512), RawVolts(24, cfg.ADC, cfg.VoltageSensor))
	assert.Equal(t, uint16(0), RawVolts(-3, cfg.ADC, cfg.VoltageSensor))

	assert.InDelta(t, 512, int(RawFahrenheit(77, cfg.ADC, cfg.Thermistor)), 1)
	for _, f := range []float32{40, 72, 120} {
		raw := RawFahrenheit(f, cfg.ADC, cfg.Thermistor)
		assert.InDelta(t, f, Fahrenheit(float32(raw), cfg.ADC, cfg.Thermistor), 0.5, "%v F", f)
	}
}

func TestFilter_Power(t *testing.T) {
	cfg := config.Default()
	cfg.Smoothing.Monitor = 0.5
	cfg.Smoothing.Calibration = 0.2
	src := &fakeSource{current: 512, voltage: 512, therm: []uint16{512}}
	f := NewFilter(src, cfg)

	f.Power(true, Monitor)
	assert.InDelta(t, 15.0, f.Reading().Amps, 1e-4)
	assert.InDelta(t, 24.0, f.Reading().Volts, 1e-4)

	// Current drops to zero: one soft update moves halfway
	src.current = 0
	f.Power(false, Monitor)
	assert.InDelta(t, 7.5, f.Reading().Amps, 1e-4)

	// Calibration context uses its own ratio
	f.Power(false, Calibration)
	assert.InDelta(t, 6.0, f.Reading().Amps, 1e-4)

	// Hard reset snaps to the instantaneous value
	f.Power(true, Calibration)
	assert.InDelta(t, 0.0, f.Reading().Amps, 1e-6)
}

func TestFilter_Temperature(t *testing.T) {
	cfg := config.Default()
	src := &fakeSource{therm: []uint16{500, 512, 524}}
	f := NewFilter(src, cfg)

	f.Temperature(true)
	r := f.Reading()
	assert.Equal(t, 3, src.reads, "reset averages three samples")
	assert.InDelta(t, 77.0, r.TempF, 0.01)
	assert.Equal(t, r.TempF, r.TempHighF)

	// Hotter sample raises the high-water mark
	src.therm = []uint16{300}
	f.Temperature(false)
	hot := f.Reading()
	assert.Greater(t, hot.TempF, r.TempF)
	assert.Equal(t, hot.TempF, hot.TempHighF)

	// Cooler sample lowers the temperature but keeps the mark
	src.therm = []uint16{700}
	f.Temperature(false)
	cool := f.Reading()
	assert.Less(t, cool.TempF, hot.TempF)
	assert.Equal(t, hot.TempHighF, cool.TempHighF)

	// Reset starts the mark over
	f.Temperature(true)
	assert.Equal(t, f.Reading().TempF, f.Reading().TempHighF)
}

func TestContext_String(t *testing.T) {
	assert.Equal(t, "heating", Heating.String())
	assert.Equal(t, "unknown", Context(9).String())
}
