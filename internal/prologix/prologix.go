// Package prologix implements the driver's command channel on top of a
// Prologix GPIB-USB controller, reached through its virtual serial port.
package prologix

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/baroobob/Keithley617/internal/config"
	"github.com/baroobob/Keithley617/internal/logger"
)

// Controller commands sent on Open. The ++ prefix addresses the Prologix
// itself rather than the instrument: controller-in-charge mode,
// read-after-write so instrument responses arrive without an explicit
// ++read, and no extra GPIB termination.
var initCommands = []string{
	"++mode 1",
	"++auto 1",
	"++eos 0",
}

// Channel is a line-oriented command channel through a Prologix GPIB-USB
// adapter. It implements driver.Channel.
type Channel struct {
	cfg    config.SerialConfig
	log    logger.ILogger
	opener func() (io.ReadWriteCloser, error)
	rw     io.ReadWriteCloser
	reader *bufio.Reader
}

// Option configures a Channel
type Option func(*Channel)

// WithLogger sets the logger used for debug traces
func WithLogger(l logger.ILogger) Option {
	return func(c *Channel) { c.log = l }
}

// WithOpener replaces how the underlying transport is opened. Tests use
// this to swap the serial port for an in-memory pipe.
func WithOpener(open func() (io.ReadWriteCloser, error)) Option {
	return func(c *Channel) { c.opener = open }
}

// NewChannel creates a channel for the serial port described by cfg
func NewChannel(cfg config.SerialConfig, opts ...Option) *Channel {
	c := &Channel{
		cfg: cfg,
		log: logger.NewStandardLogger(),
	}
	c.opener = c.openSerialPort
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// openSerialPort opens the Prologix virtual serial port
func (c *Channel) openSerialPort() (io.ReadWriteCloser, error) {
	mode := &serial.Mode{BaudRate: c.cfg.Baud}
	port, err := serial.Open(c.cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", c.cfg.Port, err)
	}
	if c.cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(time.Duration(c.cfg.ReadTimeout) * time.Millisecond); err != nil {
			port.Close()
			return nil, fmt.Errorf("setting read timeout on %s: %w", c.cfg.Port, err)
		}
	}
	return port, nil
}

// Open opens the transport and configures the Prologix controller
func (c *Channel) Open() error {
	rw, err := c.opener()
	if err != nil {
		return err
	}
	c.rw = rw
	c.reader = bufio.NewReader(rw)
	for _, cmd := range initCommands {
		if err := c.SendLine(cmd); err != nil {
			rw.Close()
			c.rw = nil
			c.reader = nil
			return err
		}
	}
	return nil
}

// Close releases the transport. Closing an unopened channel is a no-op.
func (c *Channel) Close() error {
	if c.rw == nil {
		return nil
	}
	err := c.rw.Close()
	c.rw = nil
	c.reader = nil
	return err
}

// SendLine writes one command line, terminated for the Prologix
func (c *Channel) SendLine(command string) error {
	if c.rw == nil {
		return fmt.Errorf("channel is not open")
	}
	if c.cfg.Debug {
		c.log.LogDebug("-> %q", command)
	}
	_, err := c.rw.Write([]byte(command + "\n"))
	if err != nil {
		return fmt.Errorf("writing %q: %w", command, err)
	}
	return nil
}

// ReceiveLine blocks until one response line is available and returns it
// with the line terminator stripped.
func (c *Channel) ReceiveLine() (string, error) {
	if c.reader == nil {
		return "", fmt.Errorf("channel is not open")
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if c.cfg.Debug {
		c.log.LogDebug("<- %q", line)
	}
	return line, nil
}

// SelectBusAddress addresses the instrument on the GPIB bus
func (c *Channel) SelectBusAddress(addr int) error {
	return c.SendLine(fmt.Sprintf("++addr %d", addr))
}

// ResetSelectedDevice sends the Selected Device Clear message to the
// currently addressed instrument.
func (c *Channel) ResetSelectedDevice() error {
	return c.SendLine("++clr")
}
