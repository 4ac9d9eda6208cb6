// Package publish mirrors control cycle outcomes to an MQTT broker so other
// home automation systems can follow the humidistat.
package publish

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/joshp123/humidistat/internal/config"
	"github.com/joshp123/humidistat/internal/control"
)

const publishTimeout = 10 * time.Second

// State is the retained JSON document published after every cycle.
type State struct {
	Timestamp  time.Time `json:"timestamp"`
	Humidity   *float64  `json:"humidity,omitempty"`
	Threshold  float64   `json:"threshold"`
	Intent     string    `json:"intent,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
}

// StateFromCycle converts a cycle into its published form.
func StateFromCycle(c control.Cycle) State {
	s := State{
		Timestamp: c.Started.UTC(),
		Threshold: control.Threshold,
		Outcome:   c.Outcome(),
	}
	if c.ReadErr != nil {
		s.Error = c.ReadErr.Error()
	}
	if !c.HasReading {
		return s
	}
	humidity := c.Humidity
	s.Humidity = &humidity
	s.Intent = c.Intent.String()
	s.StatusCode = c.StatusCode
	if c.CommandErr != nil {
		s.Error = c.CommandErr.Error()
	}
	return s
}

// Transport publishes a payload to a topic.
type Transport interface {
	Publish(topic string, retained bool, payload []byte) error
	Close()
}

// Publisher is a control.Observer that publishes each cycle.
type Publisher struct {
	transport Transport
	topic     string
	log       *slog.Logger
}

func NewPublisher(transport Transport, topic string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{transport: transport, topic: topic, log: logger}
}

func (p *Publisher) ObserveCycle(_ context.Context, c control.Cycle) {
	payload, err := json.Marshal(StateFromCycle(c))
	if err != nil {
		p.log.Error("encode cycle state", "error", err)
		return
	}
	if err := p.transport.Publish(p.topic, true, payload); err != nil {
		p.log.Warn("publish cycle state", "topic", p.topic, "error", err)
	}
}

func (p *Publisher) Close() {
	p.transport.Close()
}

type pahoTransport struct {
	client mqtt.Client
}

// Dial connects to the broker described by cfg. The password is passed
// separately so it can come from a secret file.
func Dial(cfg config.MQTT, password string) (Transport, error) {
	if !cfg.Enabled() {
		return nil, errors.New("mqtt broker is not configured")
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg.Broker))
	opts.SetUsername(cfg.Username)
	opts.SetPassword(password)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = randomClientID()
	}
	opts.SetClientID(clientID)
	// Reconnect only after a successful first connect; a failed Dial leaves
	// nothing running.
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(publishTimeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}
	return &pahoTransport{client: client}, nil
}

func (t *pahoTransport) Publish(topic string, retained bool, payload []byte) error {
	token := t.client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	return token.Error()
}

func (t *pahoTransport) Close() {
	t.client.Disconnect(250)
}

// brokerURL accepts host:port and defaults the scheme to tcp.
func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

func randomClientID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "humidistat"
	}
	return "humidistat-" + hex.EncodeToString(buf)
}
