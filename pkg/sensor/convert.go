package sensor

import (
	"github.com/chewxy/math32"

	"github.com/itohio/goanneal/pkg/config"
)

const kelvin = 273.15

// Amps converts a raw current-sense count to amps. The sensor outputs
// OffsetVolts at zero current; readings below the offset clamp to zero.
func Amps(raw uint16, adc config.ADCConfig, cs config.CurrentSensorConfig) float32 {
	counts := clamp(float32(raw), 0, float32(adc.Resolution))
	amps := (counts/float32(adc.Resolution)*adc.VRef - cs.OffsetVolts) / cs.VoltsPerAmp
	return math32.Max(amps, 0)
}

// Volts converts a raw voltage-sense count to supply volts.
func Volts(raw uint16, adc config.ADCConfig, vs config.VoltageSensorConfig) float32 {
	counts := clamp(float32(raw), 0, float32(adc.Resolution))
	return counts * vs.FullScaleVolts / float32(adc.Resolution)
}

// Fahrenheit converts a thermistor divider count (possibly averaged) to
// degrees Fahrenheit using the Beta model. Counts are clamped to
// [1, resolution-1] so the divider model stays finite.
func Fahrenheit(counts float32, adc config.ADCConfig, th config.ThermistorConfig) float32 {
	res := float32(adc.Resolution)
	counts = clamp(counts, 1, res-1)

	r := th.SeriesResistor / (res/counts - 1)
	inv := math32.Log(r/th.Nominal)/th.Beta + 1/(th.NominalTempC+kelvin)
	c := 1/inv - kelvin
	return c*1.8 + 32
}

func clamp(v, lo, hi float32) float32 {
	return math32.Min(math32.Max(v, lo), hi)
}

// RawAmps is the inverse of Amps: the count the current channel reads at amps.
func RawAmps(amps float32, adc config.ADCConfig, cs config.CurrentSensorConfig) uint16 {
	counts := (amps*cs.VoltsPerAmp + cs.OffsetVolts) / adc.VRef * float32(adc.Resolution)
	return toCount(counts, adc)
}

// RawVolts is the inverse of Volts.
func RawVolts(volts float32, adc config.ADCConfig, vs config.VoltageSensorConfig) uint16 {
	return toCount(volts/vs.FullScaleVolts*float32(adc.Resolution), adc)
}

// RawFahrenheit is the inverse of Fahrenheit.
func RawFahrenheit(f float32, adc config.ADCConfig, th config.ThermistorConfig) uint16 {
	t := (f-32)/1.8 + kelvin
	r := th.Nominal * math32.Exp(th.Beta*(1/t-1/(th.NominalTempC+kelvin)))
	return toCount(float32(adc.Resolution)/(th.SeriesResistor/r+1), adc)
}

func toCount(counts float32, adc config.ADCConfig) uint16 {
	return uint16(clamp(math32.Round(counts), 0, float32(adc.Resolution)))
}
