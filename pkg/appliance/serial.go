package appliance

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/itohio/goanneal/pkg/config"
)

// DefaultBaudRate is the line rate of the bench MCU bridge.
const DefaultBaudRate = 115200

// Serial is an annealer behind the bench MCU bridge. Analog channels and
// the case input are cached from the MCU reports; encoder and button edges
// are forwarded to Inputs as they arrive.
type Serial struct {
	port     string
	baudRate int
	in       Inputs

	conn      serial.Port
	mu        sync.RWMutex
	cancel    context.CancelFunc
	connected bool

	analog    Event
	coil      bool
	solenoid  bool
	indicator bool
}

// NewSerial creates a device for the port in cfg. Nothing is opened until
// Connect.
func NewSerial(cfg config.SerialConfig, in Inputs) *Serial {
	baudRate := cfg.BaudRate
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return &Serial{
		port:     cfg.Port,
		baudRate: baudRate,
		in:       in,
	}
}

// Connect opens the port, switches every output off and starts reading.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.conn = port
	d.cancel = cancel
	d.connected = true
	d.coil, d.solenoid, d.indicator = false, false, false
	if err := d.sendLocked(); err != nil {
		log.Printf("appliance: %v", err)
	}

	go d.readLines(ctx, port)

	return nil
}

// Close switches the outputs off and closes the port.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.coil, d.solenoid, d.indicator = false, false, false
	if err := d.sendLocked(); err != nil {
		log.Printf("appliance: %v", err)
	}

	d.cancel()
	if err := d.conn.Close(); err != nil {
		log.Printf("appliance: error closing serial port: %v", err)
	}
	d.conn = nil
	d.connected = false

	return nil
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

func (d *Serial) SetCoil(on bool)      { d.set(&d.coil, on) }
func (d *Serial) SetSolenoid(on bool)  { d.set(&d.solenoid, on) }
func (d *Serial) SetIndicator(on bool) { d.set(&d.indicator, on) }

// Outputs returns the last commanded actuator states.
func (d *Serial) Outputs() (coil, solenoid, indicator bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.coil, d.solenoid, d.indicator
}

// set records one output and sends the full output word when it changed.
func (d *Serial) set(line *bool, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if *line == on {
		return
	}
	*line = on
	if err := d.sendLocked(); err != nil && !errors.Is(err, ErrNotConnected) {
		log.Printf("appliance: %v", err)
	}
}

func (d *Serial) sendLocked() error {
	if !d.connected {
		return ErrNotConnected
	}
	if _, err := d.conn.Write(command(d.coil, d.solenoid, d.indicator)); err != nil {
		return fmt.Errorf("failed to send output command: %w", err)
	}
	return nil
}

func (d *Serial) Current() uint16 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.analog.Current
}

func (d *Serial) Voltage() uint16 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.analog.Voltage
}

func (d *Serial) Thermistor() uint16 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.analog.Thermistor
}

func (d *Serial) CasePresent() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.analog.Case
}

// readLines reads MCU lines until ctx is cancelled or the port fails.
func (d *Serial) readLines(ctx context.Context, r io.Reader) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("appliance: panic in readLines: %v", r)
		}
	}()

	scanner := bufio.NewScanner(r)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil && err != io.EOF {
					log.Printf("appliance: error reading from serial port: %v", err)
				}
				return
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			ev, err := parseLine(line)
			if err != nil {
				log.Printf("appliance: failed to parse line '%s': %v", line, err)
				continue
			}
			d.handle(ev)
		}
	}
}

// handle applies one MCU event.
func (d *Serial) handle(ev Event) {
	switch ev.Kind {
	case Analog:
		d.mu.Lock()
		d.analog = ev
		d.mu.Unlock()
	case Quadrature:
		if d.in.Encoder != nil {
			d.in.Encoder.Quadrature(ev.A, ev.B)
		}
	case Button:
		if d.in.Encoder != nil {
			d.in.Encoder.Button(ev.Level, ev.Timestamp)
		}
	case StartKey:
		if d.in.Start != nil {
			d.in.Start.Set()
		}
	case StopKey:
		if d.in.Stop != nil {
			d.in.Stop.Set()
		}
	}
}
