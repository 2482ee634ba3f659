// Package controller owns the main loop. Every tick it drains queued
// commands, runs slow sensor housekeeping, then advances exactly one
// machine: the one selected by the current mode.
package controller

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/itohio/goanneal/pkg/anneal"
	"github.com/itohio/goanneal/pkg/calibrate"
	"github.com/itohio/goanneal/pkg/chrono"
	"github.com/itohio/goanneal/pkg/cycle"
	"github.com/itohio/goanneal/pkg/sensor"
	"github.com/itohio/goanneal/pkg/setpoint"
)

// DefaultTickInterval is the loop period used by Run.
const DefaultTickInterval = time.Millisecond

// ErrBusy is returned when switching modes while a cycle is running.
var ErrBusy = errors.New("controller: cycle in progress")

// machine is what the dispatcher needs from either cycle.
type machine interface {
	Enter(env *cycle.Env)
	Tick(env *cycle.Env) (exit bool)
	Idle() bool
	Sampling() bool
}

var (
	_ machine = (*anneal.Machine)(nil)
	_ machine = (*calibrate.Machine)(nil)
)

// Controller runs the anneal and calibration machines against one Env.
type Controller struct {
	env  *cycle.Env
	mode cycle.Mode

	anneal    *anneal.Machine
	calibrate *calibrate.Machine

	analog *chrono.Timer

	mu       sync.Mutex
	commands []func(*Controller)
}

// New creates a controller in Idle mode and takes initial sensor readings.
func New(env *cycle.Env) *Controller {
	c := &Controller{
		env:       env,
		mode:      cycle.Idle,
		anneal:    anneal.New(env.Clock),
		calibrate: calibrate.New(env.Clock, env.Config.Calibration.BufferLength),
		analog:    chrono.NewTimer(env.Clock),
	}

	env.AllOff()
	env.Sensors.Power(true, sensor.Monitor)
	env.Sensors.Temperature(true)
	if env.Setpoints.Restored() {
		env.Display.Status("Defaults restored")
	}
	env.Display.Mode(c.mode)

	return c
}

// Env returns the environment. Only use it from the loop goroutine or from
// a function passed to Do.
func (c *Controller) Env() *cycle.Env {
	return c.env
}

// Mode returns the active mode. Loop goroutine only.
func (c *Controller) Mode() cycle.Mode {
	return c.mode
}

// Anneal returns the anneal machine. Loop goroutine only.
func (c *Controller) Anneal() *anneal.Machine {
	return c.anneal
}

// Calibrate returns the calibration machine. Loop goroutine only.
func (c *Controller) Calibrate() *calibrate.Machine {
	return c.calibrate
}

// Do queues fn to run on the loop goroutine at the start of the next tick.
// Commands run in the order they were queued. Safe for concurrent use.
func (c *Controller) Do(fn func(*Controller)) {
	c.mu.Lock()
	c.commands = append(c.commands, fn)
	c.mu.Unlock()
}

// SetMode switches the active mode. Leaving a mode is refused while its
// machine is mid-cycle. Loop goroutine only.
func (c *Controller) SetMode(m cycle.Mode) error {
	if m == c.mode {
		return nil
	}
	if !c.Idle() {
		return ErrBusy
	}

	log.Printf("controller: mode %s -> %s", c.mode, m)
	c.mode = m
	c.env.ClearInputs()
	c.env.Sensors.Power(true, sensor.Monitor)
	c.env.Sensors.Temperature(true)
	c.env.Display.Mode(m)

	if next := c.active(); next != nil {
		next.Enter(c.env)
	}
	return nil
}

// Idle reports whether no cycle is running: either no mode is active or the
// active machine waits for the start button. Loop goroutine only.
func (c *Controller) Idle() bool {
	m := c.active()
	return m == nil || m.Idle()
}

// EditSetpoints runs fn against the setpoint store and refreshes the display.
// Edits are refused with ErrBusy while a cycle is running, so a dwell cannot
// change under a live coil. Loop goroutine only.
func (c *Controller) EditSetpoints(fn func(sp *setpoint.Store) error) error {
	if !c.Idle() {
		return ErrBusy
	}
	err := fn(c.env.Setpoints)
	c.env.Display.Refresh(c.env.Snapshot())
	return err
}

func (c *Controller) active() machine {
	switch c.mode {
	case cycle.Anneal:
		return c.anneal
	case cycle.Calibration:
		return c.calibrate
	default:
		return nil
	}
}

// Tick runs one loop iteration.
func (c *Controller) Tick() {
	c.drain()

	m := c.active()

	if c.analog.Every(c.env.Config.Anneal.AnalogInterval) {
		if m == nil || !m.Sampling() {
			c.env.Sensors.Power(false, sensor.Monitor)
		}
		c.env.Sensors.Temperature(false)
		c.env.Display.Temps(c.env.Sensors.Reading())
	}

	if m == nil {
		// The menu owns the buttons while idle
		c.env.Start.Clear()
		c.env.Stop.Clear()
		return
	}

	if m.Tick(c.env) {
		if err := c.SetMode(cycle.Idle); err != nil {
			log.Printf("controller: %v", err)
		}
	}
}

func (c *Controller) drain() {
	c.mu.Lock()
	commands := c.commands
	c.commands = nil
	c.mu.Unlock()

	for _, fn := range commands {
		fn(c)
	}
}

// Run ticks the loop every interval until ctx is done, then switches every
// actuator off and persists drifted setpoints.
func (c *Controller) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer c.Shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Shutdown de-energizes the actuators, syncs the setpoints and closes an
// open calibration session log.
func (c *Controller) Shutdown() {
	c.env.AllOff()
	c.env.Setpoints.SyncAll()
	c.calibrate.CloseLog(c.env)
}
