// Package encoder decodes the rotary knob and its push button.
//
// Quadrature and Button are edge handlers. They run in interrupt context on
// the appliance and in the serial reader goroutine on the host, so they never
// block or allocate. Everything else is called from the control loop.
// Latched events are read-clears: each event is observed by exactly one read.
package encoder

import (
	"sync/atomic"
	"time"
)

// Complete detents as four 2-bit AB samples, oldest sample in the high bits.
// Both start from and end in the 11 rest position.
const (
	patternCW  = 0b01_00_10_11
	patternCCW = 0b10_00_01_11
)

const (
	flagMoved uint32 = 1 << iota
	flagPressed
	flagClicked
	flagDoubleClicked
)

// Default timing of the push button.
const (
	DefaultDebounce    = 50 * time.Millisecond
	DefaultDoubleClick = 500 * time.Millisecond
)

// Decoder holds the state shared between the edge handlers and the loop.
type Decoder struct {
	debounce    time.Duration
	doubleClick time.Duration

	// Owned by Quadrature.
	history uint8

	// Owned by Button.
	level       bool
	lastAccept  time.Duration
	lastRelease time.Duration
	released    bool

	count  atomic.Int32
	delta  atomic.Int32
	status atomic.Uint32
}

// New creates a decoder. Zero durations select the defaults.
func New(debounce, doubleClick time.Duration) *Decoder {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if doubleClick <= 0 {
		doubleClick = DefaultDoubleClick
	}
	return &Decoder{
		debounce:    debounce,
		doubleClick: doubleClick,
		history:     0b11,
		level:       true,
		lastAccept:  -debounce,
	}
}

// Quadrature handles an edge on either knob line. a and b are the line
// levels sampled in the handler.
func (d *Decoder) Quadrature(a, b bool) {
	var ab uint8
	if a {
		ab |= 0b10
	}
	if b {
		ab |= 0b01
	}
	d.history = d.history<<2 | ab

	switch d.history {
	case patternCW:
		d.count.Add(1)
		d.delta.Add(1)
		d.status.Or(flagMoved)
	case patternCCW:
		d.count.Add(-1)
		d.delta.Add(-1)
		d.status.Or(flagMoved)
	}
}

// Button handles an edge on the push button line. level is the line level
// (pull-up, so false means pressed) and now the handler timestamp.
// Edges closer than the debounce interval to the last accepted edge are
// dropped entirely.
func (d *Decoder) Button(level bool, now time.Duration) {
	if now-d.lastAccept < d.debounce {
		return
	}
	d.lastAccept = now

	switch {
	case !d.level && level:
		d.level = true
		flags := flagClicked
		if d.released && now-d.lastRelease <= d.doubleClick {
			flags |= flagDoubleClicked
		}
		d.status.Or(flags)
		d.lastRelease = now
		d.released = true
	case d.level && !level:
		d.level = false
		d.status.Or(flagPressed)
	}
}

// Count returns the lifetime detent count.
func (d *Decoder) Count() int32 {
	return d.count.Load()
}

// Delta returns the detents since the last clearing read.
func (d *Decoder) Delta(clear bool) int32 {
	if clear {
		return d.delta.Swap(0)
	}
	return d.delta.Load()
}

func (d *Decoder) take(flag uint32) bool {
	return d.status.And(^flag)&flag != 0
}

// Moved reports and clears the knob-moved latch.
func (d *Decoder) Moved() bool { return d.take(flagMoved) }

// Pressed reports and clears the button-down latch.
func (d *Decoder) Pressed() bool { return d.take(flagPressed) }

// Clicked reports and clears the click latch.
func (d *Decoder) Clicked() bool { return d.take(flagClicked) }

// DoubleClicked reports and clears the double-click latch.
func (d *Decoder) DoubleClicked() bool { return d.take(flagDoubleClicked) }

// ClearAll drops every latched event. Counts are kept.
func (d *Decoder) ClearAll() {
	d.status.Store(0)
}

// Latch is a read-clears flag for a dedicated button.
type Latch struct {
	v atomic.Bool
}

// Set latches the event.
func (l *Latch) Set() { l.v.Store(true) }

// Take reports and clears the latch.
func (l *Latch) Take() bool { return l.v.Swap(false) }

// Clear drops a latched event.
func (l *Latch) Clear() { l.v.Store(false) }
