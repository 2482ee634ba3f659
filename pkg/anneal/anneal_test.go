package anneal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/goanneal/pkg/cycle/cycletest"
	"github.com/itohio/goanneal/pkg/setpoint"
)

const tick = time.Millisecond

func newBench(t *testing.T) (*cycletest.Bench, *Machine) {
	t.Helper()
	b := cycletest.New(nil)
	sp := b.Env.Setpoints
	sp.Set(setpoint.Anneal, 1.5)
	sp.Set(setpoint.CaseDrop, 0.5)
	sp.Set(setpoint.Delay, 0.5)
	sp.SetStartOnSensor(false)

	m := New(b.Clock)
	m.Enter(b.Env)
	return b, m
}

func step(b *cycletest.Bench, m *Machine) bool {
	b.Clock.Advance(tick)
	return m.Tick(b.Env)
}

// runUntil ticks until the machine reaches s, failing after limit.
func runUntil(t *testing.T, b *cycletest.Bench, m *Machine, s State, limit time.Duration) {
	t.Helper()
	for deadline := b.Clock.Now() + limit; m.State() != s; {
		require.Less(t, b.Clock.Now(), deadline, "never reached %s, stuck in %s", s, m.State())
		step(b, m)
	}
}

func TestCycle_Timing(t *testing.T) {
	b, m := newBench(t)
	assert.Equal(t, WaitButton, m.State())

	b.Env.Start.Set()

	var coilOn, dropTimer time.Duration
	for b.Clock.Now() < 5*time.Second && dropTimer == 0 {
		step(b, m)
		if b.Board.Coil && coilOn == 0 {
			coilOn = b.Clock.Now()
			assert.True(t, b.Board.Indicator)
		}
		if m.State() == DropCase || m.State() == DropCaseTimer {
			assert.False(t, b.Board.Coil, "coil must be off once the case drops")
			assert.False(t, b.Board.Indicator)
		}
		if m.State() == DropCaseTimer {
			dropTimer = b.Clock.Now()
		}
	}

	require.NotZero(t, coilOn)
	require.NotZero(t, dropTimer)
	assert.InDelta(t, float64(1500*time.Millisecond), float64(dropTimer-coilOn), float64(tick))
	assert.True(t, b.Board.Solenoid)

	// Trapdoor stays open for the case drop setpoint
	opened := b.Clock.Now()
	runUntil(t, b, m, Delay, time.Second)
	assert.False(t, b.Board.Solenoid)
	assert.InDelta(t, float64(500*time.Millisecond), float64(b.Clock.Now()-opened), float64(tick))

	// Then cools down and goes around again without another start
	cooled := b.Clock.Now()
	runUntil(t, b, m, WaitCase, time.Second)
	assert.InDelta(t, float64(500*time.Millisecond), float64(b.Clock.Now()-cooled), float64(tick))
	runUntil(t, b, m, AnnealTimer, 10*tick)
	assert.True(t, b.Board.Coil)
}

func TestStop_DuringDwell(t *testing.T) {
	for _, at := range []time.Duration{0, 10 * time.Millisecond, 700 * time.Millisecond, 1499 * time.Millisecond} {
		t.Run(at.String(), func(t *testing.T) {
			b, m := newBench(t)
			b.Env.Start.Set()
			runUntil(t, b, m, AnnealTimer, 10*tick)
			require.True(t, b.Board.Coil)

			b.Clock.Advance(at)
			b.Env.Stop.Set()
			step(b, m)

			assert.Equal(t, WaitButton, m.State())
			assert.False(t, b.Board.AnyOn())
		})
	}
}

func TestStop_DuringEveryActiveState(t *testing.T) {
	for _, s := range []State{WaitCase, AnnealTimer, DropCaseTimer, Delay} {
		t.Run(s.String(), func(t *testing.T) {
			b, m := newBench(t)
			b.Env.Setpoints.SetStartOnSensor(true)
			b.Env.Start.Set()
			if s != WaitCase {
				b.Board.Case = true
			}
			runUntil(t, b, m, s, 3*time.Second)
			b.Board.Case = false

			b.Env.Stop.Set()
			step(b, m)

			assert.Equal(t, WaitButton, m.State())
			assert.False(t, b.Board.AnyOn())
		})
	}
}

func TestStop_InWaitButtonIsIgnored(t *testing.T) {
	b, m := newBench(t)
	b.Env.Stop.Set()
	assert.False(t, step(b, m))
	assert.Equal(t, WaitButton, m.State())
}

func TestStart_IgnoredWhileActive(t *testing.T) {
	b, m := newBench(t)
	b.Env.Start.Set()
	runUntil(t, b, m, AnnealTimer, 10*tick)

	b.Env.Start.Set()
	step(b, m)
	assert.Equal(t, AnnealTimer, m.State())

	// A start drained during the cycle does not restart it after a stop
	b.Env.Stop.Set()
	step(b, m)
	step(b, m)
	assert.Equal(t, WaitButton, m.State())
}

func TestStopAndStartSameTick(t *testing.T) {
	b, m := newBench(t)
	b.Env.Start.Set()
	runUntil(t, b, m, AnnealTimer, 10*tick)

	b.Env.Start.Set()
	b.Env.Stop.Set()
	step(b, m)
	step(b, m)
	assert.Equal(t, WaitButton, m.State())
	assert.False(t, b.Board.AnyOn())
}

func TestKnob(t *testing.T) {
	b, m := newBench(t)

	b.Turn(25)
	step(b, m)
	assert.InDelta(t, 1.75, b.Env.Setpoints.Anneal(), 1e-5)

	b.Turn(-50)
	step(b, m)
	assert.InDelta(t, 1.25, b.Env.Setpoints.Anneal(), 1e-5)

	// Rotation during a cycle is drained and discarded
	b.Env.Start.Set()
	runUntil(t, b, m, AnnealTimer, 10*tick)
	b.Turn(30)
	step(b, m)
	assert.InDelta(t, 1.25, b.Env.Setpoints.Anneal(), 1e-5)

	b.Env.Stop.Set()
	step(b, m)
	step(b, m)
	assert.InDelta(t, 1.25, b.Env.Setpoints.Anneal(), 1e-5, "no stale delta after the cycle")
	assert.Equal(t, int32(0), b.Env.Encoder.Delta(false))
}

func TestClick(t *testing.T) {
	t.Run("leaves anneal mode from wait button", func(t *testing.T) {
		b, m := newBench(t)
		b.Click()
		assert.True(t, step(b, m))
	})

	t.Run("stops an active cycle", func(t *testing.T) {
		b, m := newBench(t)
		b.Env.Start.Set()
		runUntil(t, b, m, AnnealTimer, 10*tick)

		b.Click()
		assert.False(t, step(b, m))
		assert.Equal(t, WaitButton, m.State())
		assert.False(t, b.Board.AnyOn())

		// Next click leaves the mode
		b.Click()
		assert.True(t, step(b, m))
	})

	t.Run("press stops and its release does not leave", func(t *testing.T) {
		b, m := newBench(t)
		b.Env.Start.Set()
		runUntil(t, b, m, AnnealTimer, 10*tick)

		b.Press()
		assert.False(t, step(b, m))
		assert.Equal(t, WaitButton, m.State())
		assert.False(t, b.Board.AnyOn())

		b.Release()
		assert.False(t, step(b, m))
		assert.Equal(t, WaitButton, m.State())

		b.Click()
		assert.True(t, step(b, m))
	})
}

func TestStartOnSensor(t *testing.T) {
	b, m := newBench(t)
	b.Env.Setpoints.SetStartOnSensor(true)
	b.Env.Start.Set()

	for range 100 {
		step(b, m)
	}
	assert.Equal(t, WaitCase, m.State())
	assert.False(t, b.Board.Coil)

	b.Board.Case = true
	runUntil(t, b, m, AnnealTimer, 10*tick)
	assert.True(t, b.Board.Coil)
}

func TestWaitCase_SyncsAnnealSetpoint(t *testing.T) {
	b, m := newBench(t)
	b.Env.Setpoints.Sync(setpoint.Anneal)
	writes := b.EE.Writes()

	b.Turn(10)
	step(b, m)
	assert.Equal(t, writes, b.EE.Writes(), "knob changes are not written until used")

	b.Env.Start.Set()
	runUntil(t, b, m, AnnealTimer, 10*tick)
	assert.Equal(t, writes+1, b.EE.Writes())

	v, err := b.EE.Get("anneal")
	require.NoError(t, err)
	assert.Equal(t, []byte{160, 0}, v)
}

func TestDwellDisplayCadence(t *testing.T) {
	b, m := newBench(t)
	b.Env.Setpoints.Set(setpoint.Anneal, 1.0)
	b.Env.Start.Set()
	runUntil(t, b, m, AnnealTimer, 10*tick)

	powers, timers := b.Display.Powers, b.Display.Timers
	runUntil(t, b, m, DropCase, 2*time.Second)

	assert.Equal(t, 9, b.Display.Powers-powers, "power every 100 ms of a 1 s dwell")
	assert.Equal(t, 3, b.Display.Timers-timers, "timer every 250 ms, none in the last 200 ms")
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "Wait Button", WaitButton.String())
	assert.Equal(t, "Annealing", AnnealTimer.String())
	assert.Equal(t, "Unknown", State(42).String())
}
