package appliance

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventKind identifies a line sent by the bench MCU.
type EventKind byte

const (
	Analog     EventKind = 'A' // A,<us>,<current>,<voltage>,<thermistor>,<case>
	Quadrature EventKind = 'Q' // Q,<us>,<ab>
	Button     EventKind = 'B' // B,<us>,<level>
	StartKey   EventKind = 'S' // S,<us>
	StopKey    EventKind = 'X' // X,<us>
)

// maxCount is the largest value a 12-bit ADC can report. Boards with a
// smaller converter simply never reach it.
const maxCount = 4095

// Event is one parsed MCU line. Timestamp is the MCU's own microsecond clock.
type Event struct {
	Kind      EventKind
	Timestamp time.Duration

	Current    uint16
	Voltage    uint16
	Thermistor uint16
	Case       bool

	A, B  bool // quadrature channel levels
	Level bool // knob button level, true is released
}

// parseLine parses a line from the MCU into an Event.
// Example: A,1234567,512,940,498,1
func parseLine(line string) (Event, error) {
	parts := strings.Split(line, ",")
	if len(parts[0]) != 1 {
		return Event{}, fmt.Errorf("invalid event kind %q", parts[0])
	}
	ev := Event{Kind: EventKind(parts[0][0])}

	want := map[EventKind]int{Analog: 6, Quadrature: 3, Button: 3, StartKey: 2, StopKey: 2}[ev.Kind]
	if want == 0 {
		return Event{}, fmt.Errorf("unknown event kind %q", parts[0])
	}
	if len(parts) != want {
		return Event{}, fmt.Errorf("invalid %c line: expected %d comma-separated values, got %d", ev.Kind, want, len(parts))
	}

	micros, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Event{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	if micros < 0 {
		return Event{}, fmt.Errorf("negative timestamp: %d", micros)
	}
	ev.Timestamp = time.Duration(micros) * time.Microsecond

	switch ev.Kind {
	case Analog:
		if ev.Current, err = parseCount("current", parts[2]); err != nil {
			return Event{}, err
		}
		if ev.Voltage, err = parseCount("voltage", parts[3]); err != nil {
			return Event{}, err
		}
		if ev.Thermistor, err = parseCount("thermistor", parts[4]); err != nil {
			return Event{}, err
		}
		if ev.Case, err = parseBit("case", parts[5]); err != nil {
			return Event{}, err
		}

	case Quadrature:
		ab := parts[2]
		if len(ab) != 2 {
			return Event{}, fmt.Errorf("invalid quadrature state: expected 2 digits, got %d", len(ab))
		}
		if ev.A, err = parseBit("channel a", ab[:1]); err != nil {
			return Event{}, err
		}
		if ev.B, err = parseBit("channel b", ab[1:]); err != nil {
			return Event{}, err
		}

	case Button:
		if ev.Level, err = parseBit("button", parts[2]); err != nil {
			return Event{}, err
		}
	}

	return ev, nil
}

func parseCount(name, s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v > maxCount {
		return 0, fmt.Errorf("%s out of range: %d (max %d)", name, v, maxCount)
	}
	return uint16(v), nil
}

func parseBit(name, s string) (bool, error) {
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("invalid %s state %q", name, s)
	}
}

// command builds the actuator line: one digit each for coil, solenoid and
// indicator, e.g. "101\n".
func command(coil, solenoid, indicator bool) []byte {
	cmd := make([]byte, 0, 4)
	for _, on := range []bool{coil, solenoid, indicator} {
		if on {
			cmd = append(cmd, '1')
		} else {
			cmd = append(cmd, '0')
		}
	}
	return append(cmd, '\n')
}
