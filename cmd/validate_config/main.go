// Validates a configuration file without touching any hardware.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/baroobob/Keithley617/internal/config"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration invalid: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Configuration valid\n")
	fmt.Printf("   serial port:  %s @ %d baud\n", cfg.Serial.Port, cfg.Serial.Baud)
	fmt.Printf("   bus address:  %d\n", cfg.GPIB.Address)
	fmt.Printf("   mode:         %s\n", cfg.Acquisition.Mode)
	fmt.Printf("   samples:      %d every %ds\n", cfg.Acquisition.Samples, cfg.Acquisition.Interval)
	if cfg.Sweep.Enabled {
		fmt.Printf("   sweep:        %g V to %g V in %g V steps\n", cfg.Sweep.Start, cfg.Sweep.Stop, cfg.Sweep.Step)
	}
	fmt.Printf("   mqtt:         %v\n", cfg.MQTT.Enabled)
	fmt.Printf("   influx:       %v\n", cfg.Influx.Enabled)
}
