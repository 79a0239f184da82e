package driver

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/baroobob/Keithley617/internal/logger"
)

// Command codes of the Keithley 617. These strings are the wire format and
// must be preserved exactly; see the device command summary in the manual.
const (
	cmdVoltageMode    = "F0X"
	cmdCurrentMode    = "F1X"
	cmdResistanceMode = "F2X"
	cmdSourceOff      = "O0X"
	cmdSourceOn       = "O1X"
	cmdDisplaySource  = "D1X"
	cmdZeroCheckOff   = "C0X"
	cmdTakeReading    = "B1X"
	cmdStopStorage    = "Q7X"
)

// The instrument needs this long to auto-range after a function change
// before readings are valid.
const modeSettleTime = 1 * time.Second

// The internal voltage source programs in 50 mV steps; finer values are
// silently truncated by the device.
const (
	sourceResolution    = 0.05
	resolutionTolerance = 1e-10
)

// Device drives a Keithley 617 electrometer over a command channel. All
// operations are synchronous and assume exclusive access to the channel.
type Device struct {
	ch       Channel
	log      logger.ILogger
	addr     int
	maxPolls int
	sleep    func(time.Duration)
}

// Option configures a Device
type Option func(*Device)

// WithLogger sets the logger used for advisory warnings and diagnostics
func WithLogger(l logger.ILogger) Option {
	return func(d *Device) { d.log = l }
}

// WithBusAddress sets the instrument's GPIB address (default 27)
func WithBusAddress(addr int) Option {
	return func(d *Device) { d.addr = addr }
}

// WithPollBudget bounds how many polls the acquisition loop spends waiting
// for each sample before failing with a TimeoutError. Zero keeps the
// original behavior of waiting forever.
func WithPollBudget(polls int) Option {
	return func(d *Device) { d.maxPolls = polls }
}

// NewDevice creates a driver on top of the given command channel
func NewDevice(ch Channel, opts ...Option) *Device {
	d := &Device{
		ch:    ch,
		log:   logger.NewStandardLogger(),
		addr:  27,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OpenConnection opens the channel, addresses and resets the instrument,
// disables zero check and verifies the instrument is powered on. The status
// line of a responsive 617 carries a "DC" function marker; anything else
// fails with a NotRespondingError.
func (d *Device) OpenConnection() error {
	if err := d.ch.Open(); err != nil {
		return err
	}
	if err := d.ch.SelectBusAddress(d.addr); err != nil {
		return err
	}
	if err := d.ch.ResetSelectedDevice(); err != nil {
		return err
	}
	// Turn off zero check. Sent twice because the 617 occasionally drops
	// the first command right after a bus reset.
	if err := d.ch.SendLine(cmdZeroCheckOff); err != nil {
		return err
	}
	if err := d.ch.SendLine(cmdZeroCheckOff); err != nil {
		return err
	}
	status, err := d.ch.ReceiveLine()
	if err != nil {
		return err
	}
	if !strings.Contains(status, "DC") {
		return NewNotRespondingError(status)
	}
	d.log.LogInfo("Keithley 617 responding at bus address %d", d.addr)
	return nil
}

// CloseConnection releases the command channel
func (d *Device) CloseConnection() error {
	return d.ch.Close()
}

// VoltageMode sets the instrument to measure voltage
func (d *Device) VoltageMode() error {
	return d.selectFunction(cmdVoltageMode)
}

// CurrentMode sets the instrument to measure current
func (d *Device) CurrentMode() error {
	return d.selectFunction(cmdCurrentMode)
}

// ResistanceMode sets the instrument to measure resistance
func (d *Device) ResistanceMode() error {
	return d.selectFunction(cmdResistanceMode)
}

// selectFunction sends a function-select command and waits out the
// auto-ranging settle time.
func (d *Device) selectFunction(command string) error {
	if err := d.ch.SendLine(command); err != nil {
		return err
	}
	d.sleep(modeSettleTime)
	return nil
}

// EnableVoltageSource enables the output of the internal voltage source
func (d *Device) EnableVoltageSource() error {
	return d.ch.SendLine(cmdSourceOn)
}

// DisableVoltageSource disables the output of the internal voltage source
func (d *Device) DisableVoltageSource() error {
	return d.ch.SendLine(cmdSourceOff)
}

// DisplayVoltageSource makes the front panel show the source value
func (d *Device) DisplayVoltageSource() error {
	return d.ch.SendLine(cmdDisplaySource)
}

// SetVoltageSource programs the internal voltage source. Values that are not
// a multiple of the 50 mV source resolution are truncated by the device, so
// the mismatch is logged as a warning and the command is sent anyway.
func (d *Device) SetVoltageSource(voltage float64) error {
	steps := voltage / sourceResolution
	if math.Abs(steps-math.Round(steps)) > resolutionTolerance {
		d.log.LogWarn("the voltage source in the Keithley 617 has a maximum resolution of 50 mV, %g V will be truncated", voltage)
	}
	return d.ch.SendLine(fmt.Sprintf("V%.2fX", voltage))
}

// EnableLiveReadings is a placeholder kept for API compatibility with the
// Keithley 2400 driver.
func (d *Device) EnableLiveReadings() error {
	return nil
}
