package core

import "github.com/prometheus/client_golang/prometheus"

// MetricsRegistry builds a registry from plugin collectors plus any extras.
func MetricsRegistry(plugins []Plugin, extra ...prometheus.Collector) *prometheus.Registry {
	registry := prometheus.NewRegistry()

	for _, plugin := range plugins {
		for _, collector := range plugin.Collectors() {
			registry.MustRegister(collector)
		}
	}
	for _, collector := range extra {
		registry.MustRegister(collector)
	}

	return registry
}
