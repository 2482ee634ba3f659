package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"

	"github.com/itohio/goanneal/pkg/appliance"
	"github.com/itohio/goanneal/pkg/chrono"
	"github.com/itohio/goanneal/pkg/config"
	"github.com/itohio/goanneal/pkg/controller"
	"github.com/itohio/goanneal/pkg/cycle"
	"github.com/itohio/goanneal/pkg/datalog"
	"github.com/itohio/goanneal/pkg/eeprom"
	"github.com/itohio/goanneal/pkg/encoder"
	"github.com/itohio/goanneal/pkg/sensor"
	"github.com/itohio/goanneal/pkg/setpoint"
	"github.com/itohio/goanneal/pkg/trace"
)

func main() {
	var (
		portFlag   = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag   = flag.Bool("mock", false, "Use the simulated annealer instead of the serial bridge")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *mockFlag {
		cfg.Serial.Mock = true
	}

	store, closeStore, err := openStore(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to open setpoint storage: %v", err)
	}
	defer closeStore()

	application := app.NewWithID("com.itohio.goanneal")
	window := application.NewWindow("Case Annealer")
	window.Resize(fyne.NewSize(1100, 700))
	window.CenterOnScreen()

	clock := chrono.NewSystem()
	in := appliance.Inputs{
		Encoder: encoder.New(cfg.Encoder.Debounce, cfg.Encoder.DoubleClick),
		Start:   &encoder.Latch{},
		Stop:    &encoder.Latch{},
	}

	var device appliance.Device
	if cfg.Serial.Mock {
		device = appliance.NewMock(cfg, clock)
		log.Printf("Using simulated annealer")
	} else {
		device = appliance.NewSerial(cfg.Serial, in)
	}
	if err := device.Connect(); err != nil {
		log.Fatalf("Failed to connect to %s: %v", cfg.Serial.Port, err)
	}
	defer device.Close()

	ui := newConsole(window)

	env := &cycle.Env{
		Config:    cfg,
		Clock:     clock,
		Outputs:   device,
		Case:      device,
		Sensors:   sensor.NewFilter(device, cfg),
		Setpoints: setpoint.Open(store, cfg.Setpoints, cfg.Anneal.StartOnSensor),
		Encoder:   in.Encoder,
		Start:     in.Start,
		Stop:      in.Stop,
		Trace:     trace.New(),
		Display:   ui,
	}
	if cfg.Log.Enabled {
		env.Logger = datalog.New(cfg.Log)
	}
	env.Trace.OnUpdate(ui.traceUpdated)

	ctrl := controller.New(env)

	state := &appState{
		cfg:        cfg,
		configPath: *configFlag,
		window:     window,
		device:     device,
		ctrl:       ctrl,
		in:         in,
		clock:      clock,
		ui:         ui,
		knob:       cfg.Serial.Mock,
	}

	window.SetContent(container.NewBorder(
		createToolbar(state),
		ui.statusBar(),
		nil,
		ui.panel(),
		ui.scope,
	))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ctrl.Run(ctx, controller.DefaultTickInterval)
	}()
	go watchOutputs(ctx, state)

	window.ShowAndRun()

	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Controller stopped: %v", err)
	}
}

// openStore opens the sqlite setpoint store, or an in-memory one when no
// path is configured.
func openStore(cfg config.StorageConfig) (eeprom.Store, func(), error) {
	if cfg.Path == "" {
		log.Printf("No storage path configured, setpoints are kept in memory")
		return eeprom.NewMemory(), func() {}, nil
	}
	db, err := eeprom.OpenSQLite(cfg.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.Path, err)
	}
	return db, func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing setpoint storage: %v", err)
		}
	}, nil
}
