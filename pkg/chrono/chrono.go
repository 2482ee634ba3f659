// Package chrono provides the monotonic clock and restartable elapsed timers
// the control loop uses for every wait. Nothing here sleeps: callers compare
// elapsed time against a threshold and return to the loop if it is not met.
package chrono

import (
	"sync/atomic"
	"time"
)

// Clock reports monotonic time since an arbitrary origin.
type Clock interface {
	Now() time.Duration
}

// System is a Clock backed by the process monotonic clock.
type System struct {
	origin time.Time
}

// NewSystem creates a Clock whose origin is the moment of the call.
func NewSystem() *System {
	return &System{origin: time.Now()}
}

// Now returns the time elapsed since the clock was created.
func (s *System) Now() time.Duration {
	return time.Since(s.origin)
}

// Manual is a Clock that only moves when told to. Safe for concurrent use.
type Manual struct {
	now atomic.Int64
}

// Now returns the current manual time.
func (m *Manual) Now() time.Duration {
	return time.Duration(m.now.Load())
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.now.Add(int64(d))
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Duration) {
	m.now.Store(int64(t))
}

var (
	_ Clock = (*System)(nil)
	_ Clock = (*Manual)(nil)
)

// Timer measures time since its last restart.
type Timer struct {
	clock Clock
	start time.Duration
}

// NewTimer creates a timer started now.
func NewTimer(c Clock) *Timer {
	return &Timer{clock: c, start: c.Now()}
}

// Restart resets the elapsed time to zero.
func (t *Timer) Restart() {
	t.start = t.clock.Now()
}

// Elapsed returns the time since the last restart.
func (t *Timer) Elapsed() time.Duration {
	return t.clock.Now() - t.start
}

// HasPassed reports whether at least d has elapsed.
func (t *Timer) HasPassed(d time.Duration) bool {
	return t.Elapsed() >= d
}

// Every reports whether d has elapsed and, if so, restarts the timer.
func (t *Timer) Every(d time.Duration) bool {
	if !t.HasPassed(d) {
		return false
	}
	t.Restart()
	return true
}
