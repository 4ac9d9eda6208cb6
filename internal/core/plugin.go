package core

import (
	"github.com/prometheus/client_golang/prometheus"
)

// HealthStatus represents plugin health states for status reporting.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthDegraded HealthStatus = "DEGRADED"
	HealthError    HealthStatus = "ERROR"
)

// rank orders statuses from best to worst.
func (s HealthStatus) rank() int {
	switch s {
	case HealthHealthy:
		return 0
	case HealthDegraded:
		return 1
	default:
		return 2
	}
}

// Manifest describes a plugin for startup narration and status metadata.
type Manifest struct {
	PluginID    string
	DisplayName string
	Version     string
	Devices     []string
}

// Plugin is the compile-time contract for device vendor integrations.
type Plugin interface {
	ID() string
	Manifest() Manifest
	Collectors() []prometheus.Collector
	Health() HealthStatus
	HealthMessage() string
}

// Overall returns the worst health across plugins and the message of the
// plugin that reported it. No plugins is an error.
func Overall(plugins []Plugin) (HealthStatus, string) {
	if len(plugins) == 0 {
		return HealthError, "no plugins configured"
	}
	status, message := HealthHealthy, ""
	for _, p := range plugins {
		if h := p.Health(); h.rank() > status.rank() {
			status = h
			message = p.ID() + ": " + p.HealthMessage()
		}
	}
	return status, message
}
