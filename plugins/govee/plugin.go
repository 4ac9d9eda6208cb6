package govee

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/humidistat/internal/config"
	"github.com/joshp123/humidistat/internal/core"
	"github.com/joshp123/humidistat/internal/rate"
)

// Plugin implements the core plugin contract for the Govee OpenAPI.
type Plugin struct {
	client        *Client
	devices       []string
	health        core.HealthStatus
	healthMessage string
}

// NewPlugin constructs a Govee plugin from config. Configuration errors are
// reported through Health rather than returned.
func NewPlugin(cfg *config.Config, apiKey string) Plugin {
	runtimeCfg, err := ConfigFrom(cfg, apiKey)
	if err != nil {
		return Plugin{health: core.HealthError, healthMessage: err.Error()}
	}

	client, err := NewClient(runtimeCfg)
	if err != nil {
		return Plugin{health: core.HealthError, healthMessage: err.Error()}
	}

	return Plugin{
		client:  client,
		devices: []string{cfg.Sensor.SKU, cfg.Actuator.SKU},
		health:  core.HealthHealthy,
	}
}

func (p Plugin) ID() string {
	return "govee"
}

func (p Plugin) Manifest() core.Manifest {
	return core.Manifest{
		PluginID:    "govee",
		DisplayName: "Govee",
		Version:     "0.1.0",
		Devices:     p.devices,
	}
}

// Client returns the API client, or nil when the plugin is misconfigured.
func (p Plugin) Client() *Client {
	return p.client
}

func (p Plugin) Collectors() []prometheus.Collector {
	if p.client == nil {
		return nil
	}
	return append(p.client.Collectors(), rate.MetricsCollectors()...)
}

// Health follows the outcome of the most recent API request.
func (p Plugin) Health() core.HealthStatus {
	if p.client == nil {
		return p.health
	}
	if _, err := p.client.LastOutcome(); err != nil {
		return core.HealthDegraded
	}
	return core.HealthHealthy
}

func (p Plugin) HealthMessage() string {
	if p.client == nil {
		return p.healthMessage
	}
	at, err := p.client.LastOutcome()
	switch {
	case at.IsZero():
		return "no requests yet"
	case err != nil:
		return err.Error()
	default:
		return "last request succeeded at " + at.UTC().Format("2006-01-02T15:04:05Z")
	}
}
