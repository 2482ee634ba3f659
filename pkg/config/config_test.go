package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, "COM3", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.False(t, cfg.Serial.Mock)
	assert.Equal(t, 1024, cfg.ADC.Resolution)
	assert.Equal(t, float32(5.0), cfg.ADC.VRef)
	assert.Equal(t, float32(3950), cfg.Thermistor.Beta)
	assert.Equal(t, float32(0.35), cfg.Smoothing.Temperature)
	assert.Equal(t, 5, cfg.Calibration.BufferLength)
	assert.Equal(t, 50*time.Millisecond, cfg.Calibration.SampleInterval)
	assert.Equal(t, float32(0.48), cfg.Calibration.F)
	assert.Equal(t, float32(-0.016), cfg.Calibration.K)
	assert.Equal(t, int16(10), cfg.Setpoints.AnnealDefault)
	assert.Equal(t, int16(50), cfg.Setpoints.DelayDefault)
	assert.Equal(t, int16(50), cfg.Setpoints.CaseDropDefault)
	assert.Equal(t, 50*time.Millisecond, cfg.Encoder.Debounce)
	assert.Equal(t, 500*time.Millisecond, cfg.Encoder.DoubleClick)
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "COM3", cfg.Serial.Port)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  port: "/dev/ttyACM0"

adc:
  resolution: 16384
  vref: 2.0

smoothing:
  monitor: 0.4
  heating: 0.6
  calibration: 0.3
  temperature: 0.25

anneal:
  analog_interval: 2s
  power_interval: 50ms
  start_on_sensor: true

calibration:
  buffer_length: 8
  sample_interval: 25ms
  max_heat: 20s

setpoints:
  anneal_default: 550
  delay_default: 100
  case_drop_default: 75

storage:
  path: ""
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 16384, cfg.ADC.Resolution)
	assert.Equal(t, float32(2.0), cfg.ADC.VRef)
	assert.Equal(t, float32(0.6), cfg.Smoothing.Heating)
	assert.Equal(t, float32(0.3), cfg.Smoothing.Calibration)
	assert.Equal(t, 2*time.Second, cfg.Anneal.AnalogInterval)
	assert.Equal(t, 50*time.Millisecond, cfg.Anneal.PowerInterval)
	assert.True(t, cfg.Anneal.StartOnSensor)
	assert.Equal(t, 8, cfg.Calibration.BufferLength)
	assert.Equal(t, 25*time.Millisecond, cfg.Calibration.SampleInterval)
	assert.Equal(t, 20*time.Second, cfg.Calibration.MaxHeat)
	assert.Equal(t, int16(550), cfg.Setpoints.AnnealDefault)
	assert.Equal(t, int16(75), cfg.Setpoints.CaseDropDefault)
	assert.Empty(t, cfg.Storage.Path, "empty storage path keeps setpoints in memory")
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("invalid: yaml: content: [")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_PartialYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  port: "/dev/ttyACM0"
calibration:
  buffer_length: 1
  max_heat: 0
smoothing:
  heating: 0
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// Should use defaults for missing or unusable fields
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 1024, cfg.ADC.Resolution)
	assert.Equal(t, 5, cfg.Calibration.BufferLength)
	assert.Equal(t, 30*time.Second, cfg.Calibration.MaxHeat, "the heating cap cannot be switched off")
	assert.Equal(t, float32(0.5), cfg.Smoothing.Heating)
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB0"
	cfg.Calibration.BufferLength = 7

	tmpfile, err := os.CreateTemp("", "test_save_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	err = cfg.Save(tmpfile.Name())
	require.NoError(t, err)

	// Load it back and verify
	loaded, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", loaded.Serial.Port)
	assert.Equal(t, 7, loaded.Calibration.BufferLength)
	assert.Equal(t, cfg.Calibration.SampleInterval, loaded.Calibration.SampleInterval)
}
