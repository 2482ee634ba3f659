package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/goanneal/pkg/anneal"
	"github.com/itohio/goanneal/pkg/appliance"
	"github.com/itohio/goanneal/pkg/calibrate"
	"github.com/itohio/goanneal/pkg/chrono"
	"github.com/itohio/goanneal/pkg/config"
	"github.com/itohio/goanneal/pkg/cycle"
	"github.com/itohio/goanneal/pkg/cycle/cycletest"
	"github.com/itohio/goanneal/pkg/eeprom"
	"github.com/itohio/goanneal/pkg/encoder"
	"github.com/itohio/goanneal/pkg/sensor"
	"github.com/itohio/goanneal/pkg/setpoint"
	"github.com/itohio/goanneal/pkg/trace"
)

const tick = time.Millisecond

func newController(t *testing.T) (*cycletest.Bench, *Controller) {
	t.Helper()
	b := cycletest.New(nil)
	b.Env.Setpoints.SetStartOnSensor(false)
	return b, New(b.Env)
}

func step(b *cycletest.Bench, c *Controller, n int) {
	for range n {
		b.Clock.Advance(tick)
		c.Tick()
	}
}

func TestNew(t *testing.T) {
	b, c := newController(t)

	assert.Equal(t, cycle.Idle, c.Mode())
	assert.False(t, b.Board.AnyOn())
	assert.Equal(t, []cycle.Mode{cycle.Idle}, b.Display.Modes)
	// An empty store gets defaults written on first open
	assert.Contains(t, b.Display.Statuses, "Defaults restored")
}

func TestSetMode(t *testing.T) {
	b, c := newController(t)

	require.NoError(t, c.SetMode(cycle.Anneal))
	assert.Equal(t, cycle.Anneal, c.Mode())
	assert.Equal(t, []cycle.Mode{cycle.Idle, cycle.Anneal}, b.Display.Modes)
	assert.Equal(t, anneal.WaitButton.String(), b.Display.States[len(b.Display.States)-1])

	// Same mode is a no-op
	require.NoError(t, c.SetMode(cycle.Anneal))
	assert.Len(t, b.Display.Modes, 2)

	require.NoError(t, c.SetMode(cycle.Calibration))
	assert.Equal(t, cycle.Calibration, c.Mode())
	assert.Equal(t, calibrate.WaitButton.String(), b.Display.States[len(b.Display.States)-1])

	require.NoError(t, c.SetMode(cycle.Idle))
	assert.Equal(t, cycle.Idle, c.Mode())
}

func TestSetMode_BusyWhileCycling(t *testing.T) {
	b, c := newController(t)
	require.NoError(t, c.SetMode(cycle.Anneal))

	b.Env.Start.Set()
	step(b, c, 5)
	require.Equal(t, anneal.AnnealTimer, c.Anneal().State())
	require.True(t, b.Board.Coil)

	assert.ErrorIs(t, c.SetMode(cycle.Calibration), ErrBusy)
	assert.Equal(t, cycle.Anneal, c.Mode())
	assert.True(t, b.Board.Coil, "a refused switch leaves the cycle running")

	b.Env.Stop.Set()
	step(b, c, 1)
	assert.False(t, b.Board.AnyOn())
	assert.NoError(t, c.SetMode(cycle.Calibration))
}

func TestTick_IdleDrainsButtons(t *testing.T) {
	b, c := newController(t)

	b.Env.Start.Set()
	b.Env.Stop.Set()
	step(b, c, 1)

	// A start pressed in the menu must not start a cycle later
	require.NoError(t, c.SetMode(cycle.Anneal))
	step(b, c, 5)
	assert.Equal(t, anneal.WaitButton, c.Anneal().State())
	assert.False(t, b.Board.AnyOn())
}

func TestTick_ClickLeavesMode(t *testing.T) {
	b, c := newController(t)
	require.NoError(t, c.SetMode(cycle.Anneal))

	b.Click()
	step(b, c, 1)
	assert.Equal(t, cycle.Idle, c.Mode())
	assert.Equal(t, []cycle.Mode{cycle.Idle, cycle.Anneal, cycle.Idle}, b.Display.Modes)
}

func TestTick_AnalogHousekeeping(t *testing.T) {
	b, c := newController(t)
	interval := b.Env.Config.Anneal.AnalogInterval

	step(b, c, int(interval/tick)-1)
	assert.Zero(t, b.Display.TempUpdates)

	step(b, c, 1)
	assert.Equal(t, 1, b.Display.TempUpdates)

	step(b, c, int(interval/tick))
	assert.Equal(t, 2, b.Display.TempUpdates)
}

func TestTick_MonitorTracksCurrentWhileIdle(t *testing.T) {
	b, c := newController(t)

	b.Board.SetAmps(3)
	step(b, c, int(b.Env.Config.Anneal.AnalogInterval/tick))
	assert.InDelta(t, 3, b.Env.Sensors.Reading().Amps, 0.01)
}

func TestDo(t *testing.T) {
	b, c := newController(t)

	var order []int
	c.Do(func(*Controller) { order = append(order, 1) })
	c.Do(func(c *Controller) {
		order = append(order, 2)
		assert.NoError(t, c.SetMode(cycle.Calibration))
	})
	assert.Empty(t, order, "commands wait for the loop")

	step(b, c, 1)
	assert.Equal(t, []int{1, 2}, order)
	assert.Equal(t, cycle.Calibration, c.Mode())

	step(b, c, 1)
	assert.Len(t, order, 2, "commands run once")
}

func TestDo_Concurrent(t *testing.T) {
	b, c := newController(t)

	const n = 100
	count := 0
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Do(func(*Controller) { count++ })
		}()
	}
	wg.Wait()

	step(b, c, 1)
	assert.Equal(t, n, count)
}

func TestShutdown(t *testing.T) {
	b, c := newController(t)
	require.NoError(t, c.SetMode(cycle.Anneal))

	b.Env.Setpoints.Set(setpoint.Anneal, 4.25)
	b.Board.Coil = true
	writes := b.EE.Writes()

	c.Shutdown()
	assert.False(t, b.Board.AnyOn())
	assert.Greater(t, b.EE.Writes(), writes)

	reopened := setpoint.Open(b.EE, b.Env.Config.Setpoints, false)
	assert.Equal(t, float32(4.25), reopened.Anneal())
}

func TestShutdown_ClosesSessionLog(t *testing.T) {
	b, c := newController(t)
	require.NoError(t, c.SetMode(cycle.Calibration))

	b.Env.Start.Set()
	step(b, c, 5)
	require.Equal(t, calibrate.RunTimer, c.Calibrate().State())
	require.Equal(t, 1, b.Logger.Begun)

	c.Shutdown()
	assert.False(t, b.Board.AnyOn())
	assert.Equal(t, 1, b.Logger.Ended)

	c.Shutdown()
	assert.Equal(t, 1, b.Logger.Ended, "a closed log is not closed again")
}

func TestEditSetpoints(t *testing.T) {
	t.Run("allowed while waiting for start", func(t *testing.T) {
		b, c := newController(t)
		require.NoError(t, c.SetMode(cycle.Anneal))
		refreshes := b.Display.Refreshes

		err := c.EditSetpoints(func(sp *setpoint.Store) error {
			sp.Set(setpoint.Anneal, 3)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, float32(3), b.Env.Setpoints.Anneal())
		assert.Greater(t, b.Display.Refreshes, refreshes)
	})

	t.Run("errors from the edit are returned", func(t *testing.T) {
		_, c := newController(t)
		err := c.EditSetpoints(func(sp *setpoint.Store) error {
			return sp.StoreCurrent(setpoint.NumPresets)
		})
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrBusy)
	})

	t.Run("refused while annealing", func(t *testing.T) {
		b, c := newController(t)
		b.Env.Setpoints.Set(setpoint.Anneal, 1.5)
		require.NoError(t, c.SetMode(cycle.Anneal))

		b.Env.Start.Set()
		step(b, c, 500)
		require.Equal(t, anneal.AnnealTimer, c.Anneal().State())

		var err error
		c.Do(func(c *Controller) {
			err = c.EditSetpoints(func(sp *setpoint.Store) error {
				sp.Set(setpoint.Anneal, 10)
				sp.SyncAll()
				return nil
			})
		})
		step(b, c, 1)
		assert.ErrorIs(t, err, ErrBusy)
		assert.Equal(t, float32(1.5), b.Env.Setpoints.Anneal())
		assert.True(t, b.Board.Coil)

		step(b, c, 1100)
		assert.False(t, b.Board.Coil, "the dwell ends on the setpoint it started with")
		assert.NotEqual(t, anneal.AnnealTimer, c.Anneal().State())
	})

	t.Run("refused while a calibration pass runs", func(t *testing.T) {
		b, c := newController(t)
		require.NoError(t, c.SetMode(cycle.Calibration))

		b.Env.Start.Set()
		step(b, c, 5)
		require.Equal(t, calibrate.RunTimer, c.Calibrate().State())

		called := false
		err := c.EditSetpoints(func(*setpoint.Store) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, ErrBusy)
		assert.False(t, called)
	})
}

func TestRun(t *testing.T) {
	b, c := newController(t)
	b.Board.Solenoid = true

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{})
	c.Do(func(*Controller) { close(ran) })

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, time.Millisecond) }()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("loop never ran queued command")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, b.Board.Solenoid, "Run switches everything off on exit")
}

func TestCalibration_WithMock(t *testing.T) {
	cfg := config.Default()
	cfg.Mock.NoiseLevel = 0
	clock := &chrono.Manual{}
	dev := appliance.NewMock(cfg, clock)
	require.NoError(t, dev.Connect())

	display := &cycletest.Display{}
	env := &cycle.Env{
		Config:    cfg,
		Clock:     clock,
		Outputs:   dev,
		Case:      dev,
		Sensors:   sensor.NewFilter(dev, cfg),
		Setpoints: setpoint.Open(eeprom.NewMemory(), cfg.Setpoints, false),
		Encoder:   encoder.New(cfg.Encoder.Debounce, cfg.Encoder.DoubleClick),
		Start:     &encoder.Latch{},
		Stop:      &encoder.Latch{},
		Trace:     trace.New(),
		Display:   display,
	}
	c := New(env)
	require.NoError(t, c.SetMode(cycle.Calibration))

	run := func(until calibrate.State, limit time.Duration) {
		t.Helper()
		for deadline := clock.Now() + limit; c.Calibrate().State() != until; {
			require.Less(t, clock.Now(), deadline, "stuck in %s", c.Calibrate().State())
			clock.Advance(tick)
			c.Tick()
		}
	}

	env.Start.Set()
	run(calibrate.WaitDropCase, 20*time.Second)

	coil, _, _ := dev.Outputs()
	assert.False(t, coil)
	require.Len(t, display.Recs, 1)
	rec := display.Recs[0]

	// The simulated curve peaks 10 s after the coil switches on; the smoothed
	// reading lags a few samples behind it
	assert.GreaterOrEqual(t, rec.Peak.Elapsed, 10*time.Second)
	assert.Less(t, rec.Peak.Elapsed, 10500*time.Millisecond)
	assert.InDelta(t, 15.5, rec.Peak.Amps, 0.6)
	assert.InDelta(t, calibrate.Recommend(rec.Peak.Elapsed, cfg.Calibration.F, cfg.Calibration.K), rec.Recommended, 1e-5)
	assert.InDelta(t, 4.7, rec.Recommended, 0.12)

	// Drop the case and close the session
	env.Start.Set()
	run(calibrate.PauseWait, 2*time.Second)
	assert.False(t, dev.CasePresent())
	env.Stop.Set()
	run(calibrate.WaitButton, time.Second)
	assert.Zero(t, c.Calibrate().Cycles())
}
