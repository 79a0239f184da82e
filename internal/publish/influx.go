package publish

import (
	"crypto/tls"
	"strconv"
	"time"

	influx "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/baroobob/Keithley617/internal/config"
)

// InfluxSink writes acquired samples and sweep points to InfluxDB. Writes
// go through the non-blocking write API and are flushed on Close.
type InfluxSink struct {
	client   influx.Client
	writeAPI api.WriteAPI
}

// NewInfluxSink creates a sink for the given InfluxDB settings
func NewInfluxSink(cfg *config.InfluxConfig) *InfluxSink {
	options := influx.DefaultOptions()
	if cfg.SkipTLS {
		options = options.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	}
	client := influx.NewClientWithOptions(cfg.URL, cfg.Token, options)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
	}
}

// WriteSample writes one acquired sample tagged with the measurement mode
func (s *InfluxSink) WriteSample(mode string, elapsed, value float64) {
	p := influx.NewPoint(
		"reading",
		map[string]string{
			"mode": mode,
		},
		map[string]interface{}{
			"elapsed": elapsed,
			"value":   value,
		},
		time.Now(),
	)
	// write asynchronously
	s.writeAPI.WritePoint(p)
}

// WriteSweepPoint writes one I-V sweep point tagged with the source voltage
func (s *InfluxSink) WriteSweepPoint(voltage, current float64) {
	p := influx.NewPoint(
		"iv_curve",
		map[string]string{
			"voltage": strconv.FormatFloat(voltage, 'f', 2, 64),
		},
		map[string]interface{}{
			"current": current,
		},
		time.Now(),
	)
	s.writeAPI.WritePoint(p)
}

// Close flushes pending writes and releases the client
func (s *InfluxSink) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}
