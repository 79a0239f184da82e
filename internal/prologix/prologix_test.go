package prologix

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/baroobob/Keithley617/internal/config"
	"github.com/baroobob/Keithley617/internal/driver"
	"github.com/baroobob/Keithley617/internal/logger"
)

// fakePort is an in-memory stand-in for the Prologix serial port
type fakePort struct {
	wrote  bytes.Buffer
	reads  *bytes.Buffer
	closed bool
}

func newFakePort(response string) *fakePort {
	return &fakePort{reads: bytes.NewBufferString(response)}
}

func (f *fakePort) Write(p []byte) (int, error) { return f.wrote.Write(p) }
func (f *fakePort) Read(p []byte) (int, error)  { return f.reads.Read(p) }
func (f *fakePort) Close() error                { f.closed = true; return nil }

func newTestChannel(port *fakePort) *Channel {
	return NewChannel(
		config.SerialConfig{Port: "fake", Baud: 9600},
		WithLogger(logger.NewMockLogger()),
		WithOpener(func() (io.ReadWriteCloser, error) { return port, nil }),
	)
}

// The channel must satisfy the driver's command channel interface
var _ driver.Channel = (*Channel)(nil)

func TestOpenConfiguresController(t *testing.T) {
	port := newFakePort("")
	c := newTestChannel(port)

	if err := c.Open(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "++mode 1\n++auto 1\n++eos 0\n"
	if port.wrote.String() != want {
		t.Errorf("controller init wrote %q, want %q", port.wrote.String(), want)
	}
}

func TestSendLineTerminatesCommands(t *testing.T) {
	port := newFakePort("")
	c := newTestChannel(port)
	if err := c.Open(); err != nil {
		t.Fatal(err)
	}
	port.wrote.Reset()

	if err := c.SendLine("F1X"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if port.wrote.String() != "F1X\n" {
		t.Errorf("wrote %q, want %q", port.wrote.String(), "F1X\n")
	}
}

func TestReceiveLineStripsTerminator(t *testing.T) {
	port := newFakePort("NDCA-1.234567E-09,001\r\nNDCA-2.000000E-09,002\r\n")
	c := newTestChannel(port)
	if err := c.Open(); err != nil {
		t.Fatal(err)
	}

	line, err := c.ReceiveLine()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line != "NDCA-1.234567E-09,001" {
		t.Errorf("got %q, want the frame without its terminator", line)
	}

	// Buffered bytes of the second line must survive between calls
	line, err = c.ReceiveLine()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line != "NDCA-2.000000E-09,002" {
		t.Errorf("got %q, want the second frame", line)
	}
}

func TestBusPrimitives(t *testing.T) {
	port := newFakePort("")
	c := newTestChannel(port)
	if err := c.Open(); err != nil {
		t.Fatal(err)
	}
	port.wrote.Reset()

	if err := c.SelectBusAddress(27); err != nil {
		t.Fatal(err)
	}
	if err := c.ResetSelectedDevice(); err != nil {
		t.Fatal(err)
	}
	if port.wrote.String() != "++addr 27\n++clr\n" {
		t.Errorf("wrote %q, want address then clear", port.wrote.String())
	}
}

func TestCloseReleasesPort(t *testing.T) {
	port := newFakePort("")
	c := newTestChannel(port)
	if err := c.Open(); err != nil {
		t.Fatal(err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !port.closed {
		t.Error("port was not closed")
	}
	// Closing again is a no-op
	if err := c.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if err := c.SendLine("F1X"); err == nil || !strings.Contains(err.Error(), "not open") {
		t.Errorf("send after close = %v, want not-open error", err)
	}
}
