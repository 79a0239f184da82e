package driver

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/baroobob/Keithley617/internal/logger"
)

func TestOpenConnection(t *testing.T) {
	ch := &mockChannel{lines: []string{"NDCV+0.000000E+00"}}
	d, _ := newTestDevice(ch)

	if err := d.OpenConnection(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ch.opened {
		t.Error("channel was not opened")
	}
	want := []string{"++addr 27", "++clr", "C0X", "C0X"}
	for i, cmd := range want {
		if ch.sent[i] != cmd {
			t.Errorf("command %d = %q, want %q", i, ch.sent[i], cmd)
		}
	}
}

func TestOpenConnectionCustomAddress(t *testing.T) {
	ch := &mockChannel{lines: []string{"NDCV+0.000000E+00"}}
	d, _ := newTestDevice(ch, WithBusAddress(22))

	if err := d.OpenConnection(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch.sent[0] != "++addr 22" {
		t.Errorf("first command = %q, want ++addr 22", ch.sent[0])
	}
}

func TestOpenConnectionDeviceNotResponding(t *testing.T) {
	ch := &mockChannel{lines: []string{"\x00\x00\x00"}}
	d, _ := newTestDevice(ch)

	err := d.OpenConnection()

	var nr *NotRespondingError
	if !errors.As(err, &nr) {
		t.Fatalf("expected NotRespondingError, got %v", err)
	}
	if DiagnosticCode(err) != DiagNotResponding {
		t.Errorf("diagnostic code = %d, want %d", DiagnosticCode(err), DiagNotResponding)
	}
}

func TestCloseConnection(t *testing.T) {
	ch := &mockChannel{}
	d, _ := newTestDevice(ch)

	if err := d.CloseConnection(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ch.closed {
		t.Error("channel was not closed")
	}
}

func TestMeasurementModes(t *testing.T) {
	tests := []struct {
		name    string
		call    func(*Device) error
		command string
	}{
		{"voltage", (*Device).VoltageMode, "F0X"},
		{"current", (*Device).CurrentMode, "F1X"},
		{"resistance", (*Device).ResistanceMode, "F2X"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &mockChannel{}
			d, sleeps := newTestDevice(ch)

			if err := tt.call(d); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(ch.sent) != 1 || ch.sent[0] != tt.command {
				t.Errorf("sent %v, want [%s]", ch.sent, tt.command)
			}
			// Auto-ranging settle time after a function change
			if len(*sleeps) != 1 || (*sleeps)[0] != time.Second {
				t.Errorf("sleeps = %v, want one 1s settle", *sleeps)
			}
		})
	}
}

func TestVoltageSourceControl(t *testing.T) {
	ch := &mockChannel{}
	d, sleeps := newTestDevice(ch)

	if err := d.EnableVoltageSource(); err != nil {
		t.Fatal(err)
	}
	if err := d.DisableVoltageSource(); err != nil {
		t.Fatal(err)
	}
	if err := d.DisplayVoltageSource(); err != nil {
		t.Fatal(err)
	}

	want := []string{"O1X", "O0X", "D1X"}
	for i, cmd := range want {
		if ch.sent[i] != cmd {
			t.Errorf("command %d = %q, want %q", i, ch.sent[i], cmd)
		}
	}
	if len(*sleeps) != 0 {
		t.Errorf("source commands must not settle, slept %v", *sleeps)
	}
}

func TestSetVoltageSource(t *testing.T) {
	ch := &mockChannel{}
	mockLog := logger.NewMockLogger()
	d := NewDevice(ch, WithLogger(mockLog))
	d.sleep = func(time.Duration) {}

	// Exact multiple of the 50 mV resolution: no warning
	if err := d.SetVoltageSource(0.10); err != nil {
		t.Fatal(err)
	}
	if ch.sent[0] != "V0.10X" {
		t.Errorf("sent %q, want V0.10X", ch.sent[0])
	}
	if mockLog.HasWarnMessage() {
		t.Errorf("unexpected resolution warning for 0.10 V: %v", mockLog.WarnMessages)
	}

	// Finer than the source can program: warn but send anyway
	if err := d.SetVoltageSource(0.025); err != nil {
		t.Fatal(err)
	}
	if !mockLog.HasWarnMessage() {
		t.Error("expected a resolution warning for 0.025 V")
	}
	cmd := ch.sent[1]
	if !strings.HasPrefix(cmd, "V") || !strings.HasSuffix(cmd, "X") {
		t.Errorf("sent %q, want a set-voltage command despite the warning", cmd)
	}

	if err := d.SetVoltageSource(-1.55); err != nil {
		t.Fatal(err)
	}
	if ch.sent[2] != "V-1.55X" {
		t.Errorf("sent %q, want V-1.55X", ch.sent[2])
	}
}

func TestEnableLiveReadingsIsNoop(t *testing.T) {
	ch := &mockChannel{}
	d, _ := newTestDevice(ch)

	if err := d.EnableLiveReadings(); err != nil {
		t.Fatal(err)
	}
	if len(ch.sent) != 0 {
		t.Errorf("sent %v, want nothing", ch.sent)
	}
}
