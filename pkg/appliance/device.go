// Package appliance gives the host access to the annealer hardware: the
// coil, trapdoor solenoid and indicator outputs, the analog channels and the
// case sensor. Serial talks to the bench MCU; Mock simulates the coil and
// case feed.
package appliance

import (
	"errors"
	"fmt"

	"go.bug.st/serial"

	"github.com/itohio/goanneal/pkg/cycle"
	"github.com/itohio/goanneal/pkg/encoder"
	"github.com/itohio/goanneal/pkg/sensor"
)

// ErrNotConnected is returned by operations that need an open device.
var ErrNotConnected = errors.New("appliance: not connected")

// Device is an annealer, real or simulated.
type Device interface {
	cycle.Outputs
	cycle.CaseSensor
	sensor.Source

	Connect() error
	Close() error
	IsConnected() bool

	// Outputs returns the last commanded actuator states.
	Outputs() (coil, solenoid, indicator bool)
}

var (
	_ Device = (*Serial)(nil)
	_ Device = (*Mock)(nil)
)

// Inputs are the operator controls a device forwards edges to.
type Inputs struct {
	Encoder *encoder.Decoder
	Start   *encoder.Latch
	Stop    *encoder.Latch
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}
