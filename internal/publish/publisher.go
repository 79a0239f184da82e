package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/baroobob/Keithley617/internal/config"
	"github.com/baroobob/Keithley617/internal/logger"
)

// SamplePayload is the JSON shape published for each acquired sample
type SamplePayload struct {
	Elapsed float64 `json:"t"`
	Value   float64 `json:"value"`
}

// SweepPointPayload is the JSON shape published for each I-V sweep point
type SweepPointPayload struct {
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
}

// DiagnosticPayload carries a diagnostic code and message
type DiagnosticPayload struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Publisher publishes acquired data and status to an MQTT broker
type Publisher struct {
	client    mqtt.Client
	cfg       *config.MQTTConfig
	log       logger.ILogger
	mu        sync.RWMutex
	connected bool
}

// NewPublisher creates a publisher for the given broker settings
func NewPublisher(cfg *config.MQTTConfig, log logger.ILogger) *Publisher {
	p := &Publisher{cfg: cfg, log: log}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID + "_publisher")
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Last will so consumers see the driver drop off the broker
	if cfg.StatusTopic != "" {
		opts.SetWill(cfg.StatusTopic, "offline", 1, true)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		p.mu.Lock()
		p.connected = true
		p.mu.Unlock()
		p.log.LogInfo("Publisher connected to MQTT broker")
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		p.mu.Lock()
		p.connected = false
		p.mu.Unlock()
		p.log.LogError("Publisher disconnected: %v", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Connect connects to the broker, retrying until the context is cancelled
func (p *Publisher) Connect(ctx context.Context) error {
	retryDelay := time.Duration(p.cfg.RetryDelay) * time.Millisecond
	if retryDelay == 0 {
		retryDelay = 5000 * time.Millisecond // Default 5 seconds
	}

	attempt := 1
	for {
		p.log.LogDebug("Attempting to connect publisher to MQTT broker (attempt %d)...", attempt)

		if token := p.client.Connect(); token.Wait() && token.Error() != nil {
			p.log.LogError("Publisher connection failed (attempt %d): %v", attempt, token.Error())
			select {
			case <-ctx.Done():
				return fmt.Errorf("connection cancelled: %w", ctx.Err())
			case <-time.After(retryDelay):
				attempt++
				continue
			}
		}

		// Wait for the connect handler to run
		for i := 0; i < 50; i++ {
			if p.IsConnected() {
				p.log.LogInfo("Publisher connected to MQTT broker after %d attempts", attempt)
				return nil
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("connection cancelled during establishment: %w", ctx.Err())
			case <-time.After(100 * time.Millisecond):
			}
		}

		p.log.LogWarn("Publisher connection establishment timeout (attempt %d)", attempt)
		select {
		case <-ctx.Done():
			return fmt.Errorf("connection cancelled during timeout: %w", ctx.Err())
		case <-time.After(retryDelay):
			attempt++
		}
	}
}

// IsConnected checks if the publisher is connected
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected && p.client.IsConnected()
}

// Disconnect closes the broker connection
func (p *Publisher) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		p.connected = false
		if p.client.IsConnected() {
			p.client.Disconnect(250)
		}
	}
}

// PublishSample publishes one acquired sample
func (p *Publisher) PublishSample(elapsed, value float64) error {
	return p.publishJSON(p.cfg.SampleTopic, SamplePayload{Elapsed: elapsed, Value: value}, false)
}

// PublishSweepPoint publishes one I-V sweep point
func (p *Publisher) PublishSweepPoint(voltage, current float64) error {
	return p.publishJSON(p.cfg.SweepTopic, SweepPointPayload{Voltage: voltage, Current: current}, false)
}

// PublishStatusOnline publishes the retained online status
func (p *Publisher) PublishStatusOnline() error {
	return p.publish(p.cfg.StatusTopic, []byte("online"), true)
}

// PublishStatusOffline publishes the retained offline status
func (p *Publisher) PublishStatusOffline() error {
	return p.publish(p.cfg.StatusTopic, []byte("offline"), true)
}

// PublishDiagnostic publishes a diagnostic code and message
func (p *Publisher) PublishDiagnostic(code int, message string) error {
	payload := DiagnosticPayload{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	return p.publishJSON(p.cfg.DiagnosticTopic, payload, false)
}

func (p *Publisher) publishJSON(topic string, payload interface{}, retained bool) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload for %s: %w", topic, err)
	}
	return p.publish(topic, data, retained)
}

func (p *Publisher) publish(topic string, payload []byte, retained bool) error {
	if topic == "" {
		return nil
	}
	if !p.IsConnected() {
		return fmt.Errorf("publisher is not connected")
	}
	token := p.client.Publish(topic, 1, retained, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}
