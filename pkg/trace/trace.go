// Package trace records the current curve of a calibration pass.
package trace

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Sample is one point of a calibration pass.
type Sample struct {
	Elapsed time.Duration // since coil on
	Amps    float32
	Volts   float32
}

// Trace is the growing sample log of the current pass.
// Written by the control loop; safe to read from other goroutines.
type Trace struct {
	mu      sync.RWMutex
	samples []Sample

	callbacks []func(samples []Sample)
	cbMu      sync.RWMutex
}

// New creates an empty trace.
func New() *Trace {
	return &Trace{samples: make([]Sample, 0, 256)}
}

// Reset drops every sample and notifies listeners.
func (t *Trace) Reset() {
	t.mu.Lock()
	t.samples = t.samples[:0]
	t.mu.Unlock()

	t.notifyCallbacks()
}

// Add appends a sample and notifies listeners.
func (t *Trace) Add(s Sample) {
	t.mu.Lock()
	t.samples = append(t.samples, s)
	t.mu.Unlock()

	t.notifyCallbacks()
}

// Len returns the number of samples.
func (t *Trace) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}

// Samples returns a copy of the log, oldest first.
func (t *Trace) Samples() []Sample {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]Sample, len(t.samples))
	copy(result, t.samples)
	return result
}

// Peak returns the sample with the highest current. Ties go to the earliest
// sample. ok is false for an empty trace.
func (t *Trace) Peak() (s Sample, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Peak(t.samples)
}

// Peak returns the sample with the highest current in samples.
func Peak(samples []Sample) (Sample, bool) {
	if len(samples) == 0 {
		return Sample{}, false
	}
	amps := make([]float64, len(samples))
	for i, s := range samples {
		amps[i] = float64(s.Amps)
	}
	return samples[floats.MaxIdx(amps)], true
}

// Slopes returns the rate of change of current between consecutive samples
// in amps per second; n samples give n-1 slopes.
func Slopes(samples []Sample) []float64 {
	if len(samples) < 2 {
		return nil
	}
	out := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		dt := (samples[i].Elapsed - samples[i-1].Elapsed).Seconds()
		if dt <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, float64(samples[i].Amps-samples[i-1].Amps)/dt)
	}
	return out
}

// OnUpdate registers a callback invoked with a copy of the log after every
// change. Callbacks run on the control loop and must return quickly.
func (t *Trace) OnUpdate(callback func(samples []Sample)) {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	t.callbacks = append(t.callbacks, callback)
}

func (t *Trace) notifyCallbacks() {
	t.cbMu.RLock()
	callbacks := make([]func(samples []Sample), len(t.callbacks))
	copy(callbacks, t.callbacks)
	t.cbMu.RUnlock()

	if len(callbacks) == 0 {
		return
	}

	samples := t.Samples()
	for _, cb := range callbacks {
		if cb != nil {
			cb(samples)
		}
	}
}
