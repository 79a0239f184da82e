package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/baroobob/Keithley617/internal/logger"
)

// Config represents the complete application configuration
type Config struct {
	Serial      SerialConfig         `yaml:"serial"`
	GPIB        GPIBConfig           `yaml:"gpib"`
	Acquisition AcquisitionConfig    `yaml:"acquisition"`
	Sweep       SweepConfig          `yaml:"sweep"`
	MQTT        MQTTConfig           `yaml:"mqtt"`
	Influx      InfluxConfig         `yaml:"influx"`
	Logging     logger.LoggingConfig `yaml:"logging"`
}

// SerialConfig contains the settings for the Prologix GPIB-USB virtual
// serial port.
type SerialConfig struct {
	Port        string `yaml:"port"`
	Baud        int    `yaml:"baud"`
	ReadTimeout int    `yaml:"read_timeout"` // Read timeout in milliseconds, 0 blocks forever
	Debug       bool   `yaml:"debug"`        // Log every line sent and received
}

// GPIBConfig contains the instrument bus settings
type GPIBConfig struct {
	Address int `yaml:"address"`
}

// AcquisitionConfig contains the default acquisition settings
type AcquisitionConfig struct {
	Mode     string `yaml:"mode"`      // voltage, current or resistance
	Interval int    `yaml:"interval"`  // Sample interval in seconds
	Samples  int    `yaml:"samples"`   // Number of samples, 1..100
	MaxPolls int    `yaml:"max_polls"` // Polls allowed per sample before giving up, 0 waits forever
}

// SweepConfig describes an I-V sweep driven by the internal voltage source
type SweepConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Start    float64 `yaml:"start"`    // Start voltage in volts
	Stop     float64 `yaml:"stop"`     // Stop voltage in volts
	Step     float64 `yaml:"step"`     // Voltage step in volts
	Settle   float64 `yaml:"settle"`   // Settle time per step in seconds
	Interval int     `yaml:"interval"` // Sample interval per point in seconds
}

// MQTTConfig contains MQTT broker and topic settings
type MQTTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Broker          string `yaml:"broker"`
	Port            int    `yaml:"port"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	ClientID        string `yaml:"client_id"`
	RetryDelay      int    `yaml:"retry_delay"` // Delay between connection retries in milliseconds
	SampleTopic     string `yaml:"sample_topic"`
	SweepTopic      string `yaml:"sweep_topic"`
	StatusTopic     string `yaml:"status_topic"`
	DiagnosticTopic string `yaml:"diagnostic_topic"`
}

// InfluxConfig contains the optional InfluxDB sink settings
type InfluxConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
	SkipTLS bool   `yaml:"skip_tls"`
}

// Default GPIB address of the Keithley 617 and the legal sample intervals
// accepted by its data store.
const (
	DefaultBusAddress = 27
	DefaultBaud       = 9600
)

var legalIntervals = []int{0, 1, 10, 60, 600, 3600}

// LoadConfig loads configuration from specified file
func LoadConfig(configPath string) (*Config, error) {
	// Try to find configuration file in different locations
	paths := []string{
		configPath,
		"/etc/keithley617/config.yaml",
		"./config.yaml",
	}

	var data []byte
	var err error
	var usedPath string

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err = os.ReadFile(path)
		if err == nil {
			usedPath = path
			break
		}
	}

	if err != nil {
		return nil, fmt.Errorf("cannot read configuration file from any of the locations: %v. Last error: %w", paths, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing configuration from %s: %w", usedPath, err)
	}

	config.applyDefaults()

	// Configuration validation
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", usedPath, err)
	}

	return &config, nil
}

// applyDefaults fills in values that may be omitted from the file
func (c *Config) applyDefaults() {
	if c.GPIB.Address == 0 {
		c.GPIB.Address = DefaultBusAddress
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = DefaultBaud
	}
	if c.Acquisition.Samples == 0 {
		c.Acquisition.Samples = 1
	}
	if c.Acquisition.Mode == "" {
		c.Acquisition.Mode = "current"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "keithley617"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Serial.Port == "" {
		return fmt.Errorf("serial.port cannot be empty")
	}
	if c.GPIB.Address < 0 || c.GPIB.Address > 30 {
		return fmt.Errorf("gpib.address must be between 0 and 30, got %d", c.GPIB.Address)
	}
	switch c.Acquisition.Mode {
	case "voltage", "current", "resistance":
	default:
		return fmt.Errorf("acquisition.mode must be voltage, current or resistance, got %q", c.Acquisition.Mode)
	}
	if c.Acquisition.Samples < 1 || c.Acquisition.Samples > 100 {
		return fmt.Errorf("acquisition.samples must be between 1 and 100, got %d", c.Acquisition.Samples)
	}
	if c.Acquisition.Samples > 1 && !isLegalInterval(c.Acquisition.Interval) {
		return fmt.Errorf("acquisition.interval must be one of %v, got %d", legalIntervals, c.Acquisition.Interval)
	}
	if c.Sweep.Enabled {
		if c.Sweep.Step == 0 {
			return fmt.Errorf("sweep.step cannot be zero")
		}
		if (c.Sweep.Stop-c.Sweep.Start)*c.Sweep.Step < 0 {
			return fmt.Errorf("sweep.step direction does not reach stop voltage from start voltage")
		}
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker cannot be empty when mqtt is enabled")
		}
		if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
			return fmt.Errorf("mqtt.port must be between 1 and 65535, got %d", c.MQTT.Port)
		}
		if c.MQTT.SampleTopic == "" {
			return fmt.Errorf("mqtt.sample_topic cannot be empty when mqtt is enabled")
		}
	}
	if c.Influx.Enabled {
		if c.Influx.URL == "" || c.Influx.Token == "" {
			return fmt.Errorf("influx.url and influx.token cannot be empty when influx is enabled")
		}
		if c.Influx.Org == "" || c.Influx.Bucket == "" {
			return fmt.Errorf("influx.org and influx.bucket cannot be empty when influx is enabled")
		}
	}
	return nil
}

func isLegalInterval(interval int) bool {
	for _, legal := range legalIntervals {
		if interval == legal {
			return true
		}
	}
	return false
}
