package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
serial:
  port: /dev/ttyUSB0
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GPIB.Address != DefaultBusAddress {
		t.Errorf("address = %d, want default %d", cfg.GPIB.Address, DefaultBusAddress)
	}
	if cfg.Serial.Baud != DefaultBaud {
		t.Errorf("baud = %d, want default %d", cfg.Serial.Baud, DefaultBaud)
	}
	if cfg.Acquisition.Samples != 1 {
		t.Errorf("samples = %d, want default 1", cfg.Acquisition.Samples)
	}
	if cfg.Acquisition.Mode != "current" {
		t.Errorf("mode = %q, want default current", cfg.Acquisition.Mode)
	}
}

func TestLoadConfigFull(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
serial:
  port: /dev/ttyUSB1
  baud: 115200
  debug: true
gpib:
  address: 22
acquisition:
  mode: voltage
  interval: 60
  samples: 10
  max_polls: 20
sweep:
  enabled: true
  start: -1.0
  stop: 1.0
  step: 0.05
  settle: 0.5
mqtt:
  enabled: true
  broker: broker.lan
  port: 1883
  sample_topic: keithley617/sample
logging:
  level: debug
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Serial.Port != "/dev/ttyUSB1" || cfg.Serial.Baud != 115200 || !cfg.Serial.Debug {
		t.Errorf("serial config not parsed: %+v", cfg.Serial)
	}
	if cfg.GPIB.Address != 22 {
		t.Errorf("address = %d, want 22", cfg.GPIB.Address)
	}
	if cfg.Acquisition.Interval != 60 || cfg.Acquisition.Samples != 10 || cfg.Acquisition.MaxPolls != 20 {
		t.Errorf("acquisition config not parsed: %+v", cfg.Acquisition)
	}
	if !cfg.Sweep.Enabled || cfg.Sweep.Start != -1.0 || cfg.Sweep.Step != 0.05 {
		t.Errorf("sweep config not parsed: %+v", cfg.Sweep)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing port",
			yaml:    "gpib:\n  address: 27\n",
			wantErr: "serial.port",
		},
		{
			name:    "bad bus address",
			yaml:    minimalConfig + "gpib:\n  address: 31\n",
			wantErr: "gpib.address",
		},
		{
			name:    "bad mode",
			yaml:    minimalConfig + "acquisition:\n  mode: power\n",
			wantErr: "acquisition.mode",
		},
		{
			name:    "too many samples",
			yaml:    minimalConfig + "acquisition:\n  samples: 101\n",
			wantErr: "acquisition.samples",
		},
		{
			name:    "illegal interval for a series",
			yaml:    minimalConfig + "acquisition:\n  samples: 5\n  interval: 7\n",
			wantErr: "acquisition.interval",
		},
		{
			name:    "sweep step zero",
			yaml:    minimalConfig + "sweep:\n  enabled: true\n  start: 0\n  stop: 1\n  step: 0\n",
			wantErr: "sweep.step",
		},
		{
			name:    "sweep step wrong direction",
			yaml:    minimalConfig + "sweep:\n  enabled: true\n  start: 0\n  stop: 1\n  step: -0.1\n",
			wantErr: "sweep.step",
		},
		{
			name:    "mqtt enabled without broker",
			yaml:    minimalConfig + "mqtt:\n  enabled: true\n  port: 1883\n  sample_topic: t\n",
			wantErr: "mqtt.broker",
		},
		{
			name:    "influx enabled without bucket",
			yaml:    minimalConfig + "influx:\n  enabled: true\n  url: http://x\n  token: t\n  org: o\n",
			wantErr: "influx.org",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLegalIntervalSingleSampleUnconstrained(t *testing.T) {
	// A single sample may use any interval; only series are restricted to
	// the data store's enumerated rates.
	cfg, err := LoadConfig(writeConfig(t, minimalConfig+"acquisition:\n  samples: 1\n  interval: 7\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Acquisition.Interval != 7 {
		t.Errorf("interval = %d, want 7", cfg.Acquisition.Interval)
	}
}
