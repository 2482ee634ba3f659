//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_MS = 1  // ADC read interval in milliseconds
	NUM_SAMPLES        = 10 // Samples averaged into one A line
	ADC_SHIFT          = 6  // machine.ADC.Get is 16-bit; the host expects 10-bit counts

	// Edge queue between the pin interrupts and the main loop
	EDGE_QUEUE_LEN = 64

	// Actuator pins
	PIN_COIL      = machine.GP15
	PIN_SOLENOID  = machine.GP14
	PIN_INDICATOR = machine.GP13

	// Analog inputs
	PIN_CURRENT    = machine.ADC0
	PIN_VOLTAGE    = machine.ADC1
	PIN_THERMISTOR = machine.ADC2

	// Digital inputs, all pulled up and active low
	PIN_CASE      = machine.GP2
	PIN_ENCODER_A = machine.GP3
	PIN_ENCODER_B = machine.GP4
	PIN_KNOB      = machine.GP5
	PIN_START     = machine.GP6
	PIN_STOP      = machine.GP7

	// Serial configuration
	// An A line one day into uptime: "A,86400000000,1023,1023,1023,1\n" is 31 bytes.
	// 100 A lines/sec * 31 bytes = 3,100 bytes/sec, under a quarter of what
	// 115200 baud carries, leaving room for encoder bursts.
	UART_BAUD_RATE = 115200
)
