package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial        SerialConfig        `yaml:"serial"`
	ADC           ADCConfig           `yaml:"adc"`
	CurrentSensor CurrentSensorConfig `yaml:"current_sensor"`
	VoltageSensor VoltageSensorConfig `yaml:"voltage_sensor"`
	Thermistor    ThermistorConfig    `yaml:"thermistor"`
	Smoothing     SmoothingConfig     `yaml:"smoothing"`
	Anneal        AnnealConfig        `yaml:"anneal"`
	Calibration   CalibrationConfig   `yaml:"calibration"`
	Setpoints     SetpointsConfig     `yaml:"setpoints"`
	Encoder       EncoderConfig       `yaml:"encoder"`
	Storage       StorageConfig       `yaml:"storage"`
	Log           LogConfig           `yaml:"log"`
	Mock          MockConfig          `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
	Mock     bool   `yaml:"mock"` // Use the simulated appliance instead of a port
}

// ADCConfig describes the analog front end shared by all channels.
type ADCConfig struct {
	Resolution int     `yaml:"resolution"` // Full scale count (1024 for 10-bit)
	VRef       float32 `yaml:"vref"`       // Reference voltage (V)
}

// CurrentSensorConfig describes the hall-effect current sense output.
type CurrentSensorConfig struct {
	OffsetVolts float32 `yaml:"offset_volts"`  // Output voltage at zero current
	VoltsPerAmp float32 `yaml:"volts_per_amp"` // Sensitivity
}

// VoltageSensorConfig describes the supply voltage divider.
type VoltageSensorConfig struct {
	FullScaleVolts float32 `yaml:"full_scale_volts"` // Supply voltage that reads as ADC full scale
}

// ThermistorConfig contains Beta-model thermistor parameters.
type ThermistorConfig struct {
	Nominal        float32 `yaml:"nominal"`         // Resistance at nominal temperature (ohm)
	NominalTempC   float32 `yaml:"nominal_temp_c"`  // Nominal temperature (degC)
	Beta           float32 `yaml:"beta"`            // Beta coefficient
	SeriesResistor float32 `yaml:"series_resistor"` // Divider resistor in series with thermistor (ohm)
}

// SmoothingConfig holds exponential smoothing ratios (weight of the newest reading).
type SmoothingConfig struct {
	Monitor     float32 `yaml:"monitor"`     // Amps/volts while idle
	Heating     float32 `yaml:"heating"`     // Amps/volts during an anneal dwell
	Calibration float32 `yaml:"calibration"` // Amps/volts during a calibration pass
	Temperature float32 `yaml:"temperature"` // Thermistor
}

// AnnealConfig contains the cadence of the anneal cycle.
type AnnealConfig struct {
	AnalogInterval       time.Duration `yaml:"analog_interval"`        // Slow sensor housekeeping
	PowerInterval        time.Duration `yaml:"power_interval"`         // Power sampling during the dwell
	DisplayInterval      time.Duration `yaml:"display_interval"`       // General display refresh
	TimerDisplayInterval time.Duration `yaml:"timer_display_interval"` // Timer refresh during the dwell
	TimerDisplayGuard    time.Duration `yaml:"timer_display_guard"`    // No timer refresh this close to the end of the dwell
	StartOnSensor        bool          `yaml:"start_on_sensor"`        // Initial value when storage is reset
}

// CalibrationConfig contains calibration cycle tuning constants.
type CalibrationConfig struct {
	BufferLength   int           `yaml:"buffer_length"`   // Amps window used by the peak detector
	SampleInterval time.Duration `yaml:"sample_interval"` // Spacing of samples in a pass
	MaxHeat        time.Duration `yaml:"max_heat"`        // Safety cap on a single pass, always enforced; zero selects the default
	F              float32       `yaml:"f"`               // Empirical recommendation constant
	K              float32       `yaml:"k"`               // Empirical recommendation slope
}

// SetpointsConfig contains compiled-in defaults, in hundredths of a second.
type SetpointsConfig struct {
	AnnealDefault   int16 `yaml:"anneal_default"`
	DelayDefault    int16 `yaml:"delay_default"`
	CaseDropDefault int16 `yaml:"case_drop_default"`
}

// EncoderConfig contains knob and button timing.
type EncoderConfig struct {
	Debounce    time.Duration `yaml:"debounce"`
	DoubleClick time.Duration `yaml:"double_click"`
}

// StorageConfig selects where setpoints persist on the host.
type StorageConfig struct {
	Path string `yaml:"path"` // sqlite file; empty keeps setpoints in memory
}

// LogConfig contains calibration session logging.
type LogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	Charts  bool   `yaml:"charts"` // Write a PNG of every pass next to the CSV
}

// MockConfig contains simulated appliance configuration.
type MockConfig struct {
	PeakAmps     float32       `yaml:"peak_amps"`     // Coil current at the curie point
	RampTime     time.Duration `yaml:"ramp_time"`     // Time from coil on to the current peak
	Volts        float32       `yaml:"volts"`         // Supply voltage under load
	IdleVolts    float32       `yaml:"idle_volts"`    // Supply voltage with coil off
	AmbientF     float32       `yaml:"ambient_f"`     // Enclosure temperature
	NoiseLevel   float32       `yaml:"noise_level"`   // Amps noise amplitude
	CaseInterval time.Duration `yaml:"case_interval"` // Time for a new case to arrive after a drop
	SampleRate   time.Duration `yaml:"sample_rate"`   // Simulation step
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "COM3", // Default for Windows, should be "/dev/ttyACM0" on Linux/Mac
			BaudRate: 115200,
		},
		ADC: ADCConfig{
			Resolution: 1024,
			VRef:       5.0,
		},
		CurrentSensor: CurrentSensorConfig{
			OffsetVolts: 1.0,
			VoltsPerAmp: 0.1,
		},
		VoltageSensor: VoltageSensorConfig{
			FullScaleVolts: 48.0,
		},
		Thermistor: ThermistorConfig{
			Nominal:        10000,
			NominalTempC:   25,
			Beta:           3950,
			SeriesResistor: 10000,
		},
		Smoothing: SmoothingConfig{
			Monitor:     0.50,
			Heating:     0.50,
			Calibration: 0.20,
			Temperature: 0.35,
		},
		Anneal: AnnealConfig{
			AnalogInterval:       1000 * time.Millisecond,
			PowerInterval:        100 * time.Millisecond,
			DisplayInterval:      500 * time.Millisecond,
			TimerDisplayInterval: 250 * time.Millisecond,
			TimerDisplayGuard:    200 * time.Millisecond,
			StartOnSensor:        false,
		},
		Calibration: CalibrationConfig{
			BufferLength:   5,
			SampleInterval: 50 * time.Millisecond,
			MaxHeat:        30 * time.Second,
			F:              0.48,
			K:              -0.016,
		},
		Setpoints: SetpointsConfig{
			AnnealDefault:   10,
			DelayDefault:    50,
			CaseDropDefault: 50,
		},
		Encoder: EncoderConfig{
			Debounce:    50 * time.Millisecond,
			DoubleClick: 500 * time.Millisecond,
		},
		Storage: StorageConfig{
			Path: "annealer.db",
		},
		Log: LogConfig{
			Enabled: true,
			Dir:     "logs",
			Charts:  true,
		},
		Mock: MockConfig{
			PeakAmps:     16.0,
			RampTime:     10 * time.Second,
			Volts:        45.2,
			IdleVolts:    48.0,
			AmbientF:     72.0,
			NoiseLevel:   0.02,
			CaseInterval: 500 * time.Millisecond,
			SampleRate:   10 * time.Millisecond,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate <= 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.ADC.Resolution <= 0 {
		c.ADC.Resolution = def.ADC.Resolution
	}
	if c.ADC.VRef == 0 {
		c.ADC.VRef = def.ADC.VRef
	}

	if c.CurrentSensor.VoltsPerAmp == 0 {
		c.CurrentSensor.VoltsPerAmp = def.CurrentSensor.VoltsPerAmp
	}
	if c.VoltageSensor.FullScaleVolts == 0 {
		c.VoltageSensor.FullScaleVolts = def.VoltageSensor.FullScaleVolts
	}

	if c.Thermistor.Nominal == 0 {
		c.Thermistor.Nominal = def.Thermistor.Nominal
	}
	if c.Thermistor.Beta == 0 {
		c.Thermistor.Beta = def.Thermistor.Beta
	}
	if c.Thermistor.SeriesResistor == 0 {
		c.Thermistor.SeriesResistor = def.Thermistor.SeriesResistor
	}

	// A zero ratio would freeze the reading, treat it as unset
	if c.Smoothing.Monitor == 0 {
		c.Smoothing.Monitor = def.Smoothing.Monitor
	}
	if c.Smoothing.Heating == 0 {
		c.Smoothing.Heating = def.Smoothing.Heating
	}
	if c.Smoothing.Calibration == 0 {
		c.Smoothing.Calibration = def.Smoothing.Calibration
	}
	if c.Smoothing.Temperature == 0 {
		c.Smoothing.Temperature = def.Smoothing.Temperature
	}

	if c.Anneal.AnalogInterval == 0 {
		c.Anneal.AnalogInterval = def.Anneal.AnalogInterval
	}
	if c.Anneal.PowerInterval == 0 {
		c.Anneal.PowerInterval = def.Anneal.PowerInterval
	}
	if c.Anneal.DisplayInterval == 0 {
		c.Anneal.DisplayInterval = def.Anneal.DisplayInterval
	}
	if c.Anneal.TimerDisplayInterval == 0 {
		c.Anneal.TimerDisplayInterval = def.Anneal.TimerDisplayInterval
	}

	if c.Calibration.BufferLength <= 1 {
		c.Calibration.BufferLength = def.Calibration.BufferLength
	}
	if c.Calibration.SampleInterval == 0 {
		c.Calibration.SampleInterval = def.Calibration.SampleInterval
	}
	if c.Calibration.MaxHeat <= 0 {
		c.Calibration.MaxHeat = def.Calibration.MaxHeat
	}
	if c.Calibration.F == 0 {
		c.Calibration.F = def.Calibration.F
	}
	if c.Calibration.K == 0 {
		c.Calibration.K = def.Calibration.K
	}

	if c.Setpoints.AnnealDefault == 0 {
		c.Setpoints.AnnealDefault = def.Setpoints.AnnealDefault
	}
	if c.Setpoints.DelayDefault == 0 {
		c.Setpoints.DelayDefault = def.Setpoints.DelayDefault
	}
	if c.Setpoints.CaseDropDefault == 0 {
		c.Setpoints.CaseDropDefault = def.Setpoints.CaseDropDefault
	}

	if c.Encoder.Debounce == 0 {
		c.Encoder.Debounce = def.Encoder.Debounce
	}
	if c.Encoder.DoubleClick == 0 {
		c.Encoder.DoubleClick = def.Encoder.DoubleClick
	}

	if c.Log.Dir == "" {
		c.Log.Dir = def.Log.Dir
	}

	if c.Mock.SampleRate == 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}
	if c.Mock.RampTime == 0 {
		c.Mock.RampTime = def.Mock.RampTime
	}
	if c.Mock.PeakAmps == 0 {
		c.Mock.PeakAmps = def.Mock.PeakAmps
	}
	if c.Mock.CaseInterval == 0 {
		c.Mock.CaseInterval = def.Mock.CaseInterval
	}
}
