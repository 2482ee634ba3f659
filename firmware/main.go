//go:build tinygo

//go:generate tinygo flash -target=pico

// Bench bridge for the case annealer. It reports averaged analog readings,
// knob and key edges as text lines and drives the coil, trapdoor solenoid and
// indicator from three-digit commands sent by the host.
package main

import (
	"machine"
	"sync/atomic"
	"time"
)

// edge is one input transition captured in an interrupt handler.
type edge struct {
	kind   byte // 'Q', 'B', 'S' or 'X'
	a, b   bool
	micros int64
}

var (
	adcCurrent    machine.ADC
	adcVoltage    machine.ADC
	adcThermistor machine.ADC
	serial        = machine.Serial

	// Output states: coil, solenoid, indicator
	outputStates [3]bool
	outputPins   = [3]machine.Pin{PIN_COIL, PIN_SOLENOID, PIN_INDICATOR}

	// ADC averaging
	currentSum    uint32
	voltageSum    uint32
	thermistorSum uint32
	sampleCount   int

	// Timing
	started     time.Time
	lastADCRead time.Time

	// Written by interrupt handlers, which must never block
	edges = make(chan edge, EDGE_QUEUE_LEN)
	drops uint32

	// Serial buffer for reading lines
	serialBuffer [3]byte
	serialPos    int
)

func main() {
	for _, pin := range outputPins {
		pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
		pin.Low()
	}

	machine.InitADC()
	adcConfig := machine.ADCConfig{}
	adcCurrent = machine.ADC{Pin: PIN_CURRENT}
	adcVoltage = machine.ADC{Pin: PIN_VOLTAGE}
	adcThermistor = machine.ADC{Pin: PIN_THERMISTOR}
	adcCurrent.Configure(adcConfig)
	adcVoltage.Configure(adcConfig)
	adcThermistor.Configure(adcConfig)

	PIN_CASE.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	serial.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	started = time.Now()
	lastADCRead = started
	configureInputs()

	var reportedDrops uint32
	for {
		now := time.Now()

		processSerial()
		flushEdges()

		if d := atomic.LoadUint32(&drops); d != reportedDrops {
			println("edge queue overflow, dropped", d-reportedDrops)
			reportedDrops = d
		}

		if now.Sub(lastADCRead) >= SAMPLE_INTERVAL_MS*time.Millisecond {
			readADCs()
			lastADCRead = now
		}

		if sampleCount >= NUM_SAMPLES {
			outputAveragedValues()
			currentSum, voltageSum, thermistorSum, sampleCount = 0, 0, 0, 0
		}

		time.Sleep(100 * time.Microsecond)
	}
}

func micros() int64 {
	return time.Since(started).Microseconds()
}

// configureInputs attaches the edge interrupts. Each handler samples the pins
// and queues the edge without blocking.
func configureInputs() {
	for _, pin := range []machine.Pin{PIN_ENCODER_A, PIN_ENCODER_B, PIN_KNOB, PIN_START, PIN_STOP} {
		pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	}

	quadrature := func(machine.Pin) {
		queue(edge{kind: 'Q', a: PIN_ENCODER_A.Get(), b: PIN_ENCODER_B.Get()})
	}
	PIN_ENCODER_A.SetInterrupt(machine.PinToggle, quadrature)
	PIN_ENCODER_B.SetInterrupt(machine.PinToggle, quadrature)

	PIN_KNOB.SetInterrupt(machine.PinToggle, func(p machine.Pin) {
		queue(edge{kind: 'B', a: p.Get()})
	})
	PIN_START.SetInterrupt(machine.PinFalling, func(machine.Pin) {
		queue(edge{kind: 'S'})
	})
	PIN_STOP.SetInterrupt(machine.PinFalling, func(machine.Pin) {
		queue(edge{kind: 'X'})
	})
}

func queue(e edge) {
	e.micros = micros()
	select {
	case edges <- e:
	default:
		atomic.AddUint32(&drops, 1)
	}
}

// flushEdges writes every queued edge. Key and button debouncing is left to
// the host, which sees the raw timestamps.
func flushEdges() {
	for {
		select {
		case e := <-edges:
			print(string(e.kind), ",", e.micros)
			switch e.kind {
			case 'Q':
				print(",", bit(e.a), bit(e.b))
			case 'B':
				print(",", bit(e.a))
			}
			print("\n")
		default:
			return
		}
	}
}

func bit(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

func readADCs() {
	currentSum += uint32(adcCurrent.Get() >> ADC_SHIFT)
	voltageSum += uint32(adcVoltage.Get() >> ADC_SHIFT)
	thermistorSum += uint32(adcThermistor.Get() >> ADC_SHIFT)
	sampleCount++
}

// outputAveragedValues writes one analog line.
// Format: "A,micros,current,voltage,thermistor,case\n"
// Example: "A,1234567,512,940,498,1\n"
func outputAveragedValues() {
	n := uint32(sampleCount)
	if n == 0 {
		n = 1
	}

	// The case sensor pulls low when a case sits on the trapdoor
	print("A,", micros(), ",",
		currentSum/n, ",",
		voltageSum/n, ",",
		thermistorSum/n, ",",
		bit(!PIN_CASE.Get()), "\n")
}

func processSerial() {
	for serial.Buffered() > 0 {
		data, err := serial.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if serialPos == 3 {
				updateOutputs()
			}
			serialPos = 0
			continue
		}

		if data == ' ' || data == '\t' {
			continue
		}

		// Only '0' or '1', extra digits are ignored until newline
		if data == '0' || data == '1' {
			if serialPos < 3 {
				serialBuffer[serialPos] = data
				serialPos++
			}
		} else {
			serialPos = 0
		}
	}
}

// updateOutputs applies a complete "csi" command: coil, solenoid, indicator.
func updateOutputs() {
	for i := range outputStates {
		outputStates[i] = serialBuffer[i] == '1'
		outputPins[i].Set(outputStates[i])
	}
}
