// Package sweep measures I-V curves by stepping the instrument's internal
// voltage source and reading one value per step.
package sweep

import (
	"fmt"
	"time"

	"github.com/baroobob/Keithley617/internal/config"
	"github.com/baroobob/Keithley617/internal/driver"
	"github.com/baroobob/Keithley617/internal/logger"
)

// Driver is the subset of the device driver the runner needs
type Driver interface {
	SetVoltageSource(voltage float64) error
	EnableVoltageSource() error
	DisableVoltageSource() error
	AcquireOne(interval driver.Interval) (float64, error)
}

// Point is one point of a measured I-V curve
type Point struct {
	Voltage float64
	Current float64
}

// PointFunc receives each point as it is measured. May be nil.
type PointFunc func(p Point) error

// Runner steps the voltage source through the configured range
type Runner struct {
	drv   Driver
	cfg   *config.SweepConfig
	log   logger.ILogger
	sleep func(time.Duration)
}

// NewRunner creates a sweep runner
func NewRunner(drv Driver, cfg *config.SweepConfig, log logger.ILogger) *Runner {
	return &Runner{
		drv:   drv,
		cfg:   cfg,
		log:   log,
		sleep: time.Sleep,
	}
}

// Run measures one I-V curve. The source is enabled for the duration of the
// sweep and disabled again on every exit path.
func (r *Runner) Run(onPoint PointFunc) (points []Point, err error) {
	if r.cfg.Step == 0 {
		return nil, fmt.Errorf("sweep step cannot be zero")
	}
	if (r.cfg.Stop-r.cfg.Start)*r.cfg.Step < 0 {
		return nil, fmt.Errorf("sweep step %g does not reach %g V from %g V",
			r.cfg.Step, r.cfg.Stop, r.cfg.Start)
	}

	if err := r.drv.EnableVoltageSource(); err != nil {
		return nil, err
	}
	defer func() {
		if offErr := r.drv.DisableVoltageSource(); offErr != nil {
			r.log.LogError("disabling voltage source after sweep: %v", offErr)
			if err == nil {
				err = offErr
			}
		}
	}()

	settle := time.Duration(r.cfg.Settle * float64(time.Second))
	for _, v := range r.steps() {
		if err := r.drv.SetVoltageSource(v); err != nil {
			return nil, err
		}
		r.sleep(settle)
		value, err := r.drv.AcquireOne(driver.Interval(r.cfg.Interval))
		if err != nil {
			return nil, err
		}
		p := Point{Voltage: v, Current: value}
		points = append(points, p)
		r.log.LogDebug("sweep point %g V -> %g", p.Voltage, p.Current)
		if onPoint != nil {
			if err := onPoint(p); err != nil {
				return nil, err
			}
		}
	}
	r.log.LogInfo("sweep finished, %d points", len(points))
	return points, nil
}

// steps enumerates the source voltages of the sweep, inclusive of the stop
// voltage within half a step to absorb accumulation error.
func (r *Runner) steps() []float64 {
	var steps []float64
	n := 0
	for {
		v := r.cfg.Start + float64(n)*r.cfg.Step
		if r.cfg.Step > 0 && v > r.cfg.Stop+r.cfg.Step/2 {
			break
		}
		if r.cfg.Step < 0 && v < r.cfg.Stop+r.cfg.Step/2 {
			break
		}
		steps = append(steps, v)
		n++
	}
	return steps
}
