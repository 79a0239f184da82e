package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/baroobob/Keithley617/internal/config"
	"github.com/baroobob/Keithley617/internal/driver"
	"github.com/baroobob/Keithley617/internal/logger"
	"github.com/baroobob/Keithley617/internal/prologix"
	"github.com/baroobob/Keithley617/internal/publish"
	"github.com/baroobob/Keithley617/internal/sweep"
)

// Application wires the channel, driver and sinks together
type Application struct {
	config    *config.Config
	channel   *prologix.Channel
	device    *driver.Device
	publisher *publish.Publisher
	influx    *publish.InfluxSink
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}

	// Initialize logging with level
	logger.GlobalLogging = &cfg.Logging
	logger.LogStartup("Logging initialized with level: %s", cfg.Logging.Level)

	log := logger.NewStandardLogger()
	channel := prologix.NewChannel(cfg.Serial, prologix.WithLogger(log))
	device := driver.NewDevice(channel,
		driver.WithLogger(log),
		driver.WithBusAddress(cfg.GPIB.Address),
		driver.WithPollBudget(cfg.Acquisition.MaxPolls),
	)

	app := &Application{
		config:  cfg,
		channel: channel,
		device:  device,
	}
	if cfg.MQTT.Enabled {
		app.publisher = publish.NewPublisher(&cfg.MQTT, log)
	}
	if cfg.Influx.Enabled {
		app.influx = publish.NewInfluxSink(&cfg.Influx)
	}
	return app, nil
}

// Start opens the instrument connection and the configured sinks
func (app *Application) Start(ctx context.Context) error {
	logger.LogInfo("🚀 Starting Keithley 617 driver...")

	if err := app.device.OpenConnection(); err != nil {
		return fmt.Errorf("error opening instrument connection: %w", err)
	}

	if app.publisher != nil {
		if err := app.publisher.Connect(ctx); err != nil {
			return fmt.Errorf("error connecting publisher: %w", err)
		}
		if err := app.publisher.PublishStatusOnline(); err != nil {
			logger.LogError("⚠️ Error publishing online status: %v", err)
		}
	}

	if err := app.selectMode(); err != nil {
		return fmt.Errorf("error selecting measurement mode: %w", err)
	}

	logger.LogInfo("✅ Keithley 617 ready")
	return nil
}

// selectMode puts the instrument in the configured measurement function
func (app *Application) selectMode() error {
	switch app.config.Acquisition.Mode {
	case "voltage":
		return app.device.VoltageMode()
	case "resistance":
		return app.device.ResistanceMode()
	default:
		return app.device.CurrentMode()
	}
}

// Run performs the configured measurement: either an I-V sweep or a single
// timed acquisition. The poll loop itself is synchronous and runs to
// completion; cancellation only takes effect between runs.
func (app *Application) Run() error {
	if app.config.Sweep.Enabled {
		return app.runSweep()
	}
	return app.runAcquisition()
}

// runAcquisition acquires the configured number of samples and publishes
// each one as it arrives.
func (app *Application) runAcquisition() error {
	cfg := app.config.Acquisition
	interval := driver.Interval(cfg.Interval)

	if cfg.Samples <= 1 {
		value, err := app.device.AcquireOne(interval)
		if err != nil {
			return err
		}
		logger.LogInfo("📊 Reading: %g", value)
		app.emitSample(cfg.Mode, 0, value)
		return nil
	}

	times, values, err := app.device.Acquire(interval, cfg.Samples, func(elapsed, value float64) {
		logger.LogInfo("📊 Sample t=%gs: %g", elapsed, value)
		app.emitSample(cfg.Mode, elapsed, value)
	})
	if err != nil {
		return err
	}
	logger.LogInfo("✅ Acquisition finished, %d samples over %gs", len(values), times[len(times)-1])
	return nil
}

// runSweep measures an I-V curve and publishes each point
func (app *Application) runSweep() error {
	runner := sweep.NewRunner(app.device, &app.config.Sweep, logger.NewStandardLogger())
	points, err := runner.Run(func(p sweep.Point) error {
		app.emitSweepPoint(p)
		return nil
	})
	if err != nil {
		return err
	}
	for _, p := range points {
		fmt.Printf("%g\t%g\n", p.Voltage, p.Current)
	}
	return nil
}

// emitSample forwards one sample to the enabled sinks
func (app *Application) emitSample(mode string, elapsed, value float64) {
	if app.publisher != nil {
		if err := app.publisher.PublishSample(elapsed, value); err != nil {
			logger.LogError("⚠️ Error publishing sample: %v", err)
		}
	}
	if app.influx != nil {
		app.influx.WriteSample(mode, elapsed, value)
	}
}

// emitSweepPoint forwards one sweep point to the enabled sinks
func (app *Application) emitSweepPoint(p sweep.Point) {
	if app.publisher != nil {
		if err := app.publisher.PublishSweepPoint(p.Voltage, p.Current); err != nil {
			logger.LogError("⚠️ Error publishing sweep point: %v", err)
		}
	}
	if app.influx != nil {
		app.influx.WriteSweepPoint(p.Voltage, p.Current)
	}
}

// Stop closes the instrument connection and the sinks
func (app *Application) Stop() {
	logger.LogInfo("🛑 Stopping Keithley 617 driver...")

	if app.publisher != nil {
		if err := app.publisher.PublishStatusOffline(); err != nil {
			logger.LogError("⚠️ Error publishing offline status: %v", err)
		}
		app.publisher.Disconnect()
	}
	if app.influx != nil {
		app.influx.Close()
	}
	if err := app.device.CloseConnection(); err != nil {
		logger.LogError("⚠️ Error closing instrument connection: %v", err)
	}

	logger.LogInfo("✅ Keithley 617 driver stopped")
}

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		logger.LogError("❌ %v", err)
		app.Stop()
		os.Exit(1)
	}

	runErr := app.Run()
	if runErr != nil {
		logger.LogError("❌ Measurement failed: %v", runErr)
		if app.publisher != nil {
			if err := app.publisher.PublishDiagnostic(driver.DiagnosticCode(runErr), runErr.Error()); err != nil {
				logger.LogError("⚠️ Error publishing diagnostic: %v", err)
			}
		}
	}

	app.Stop()
	if runErr != nil {
		os.Exit(1)
	}
}
