package control

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports cycle outcomes as Prometheus collectors.
type Metrics struct {
	humidity   prometheus.Gauge
	intent     prometheus.Gauge
	lastStatus prometheus.Gauge
	lastCycle  prometheus.Gauge
	threshold  prometheus.Gauge
	cycles     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "humidistat_humidity_percent",
			Help: "Last humidity reading (%)",
		}),
		intent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "humidistat_intent",
			Help: "Last commanded switch state (1=on, 0=off)",
		}),
		lastStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "humidistat_last_command_status_code",
			Help: "HTTP status of the last switch command (0=no response)",
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "humidistat_last_cycle_timestamp_seconds",
			Help: "Start of the last control cycle (epoch seconds)",
		}),
		threshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "humidistat_threshold_percent",
			Help: "Humidity above which the switch is turned on (%)",
		}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "humidistat_cycles_total",
			Help: "Control cycles by outcome",
		}, []string{"outcome"}),
	}
	m.threshold.Set(Threshold)
	return m
}

func (m *Metrics) ObserveCycle(_ context.Context, c Cycle) {
	m.cycles.WithLabelValues(c.Outcome()).Inc()
	m.lastCycle.Set(float64(c.Started.Unix()))
	if !c.HasReading {
		return
	}
	m.humidity.Set(c.Humidity)
	m.intent.Set(float64(c.Intent))
	m.lastStatus.Set(float64(c.StatusCode))
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.humidity,
		m.intent,
		m.lastStatus,
		m.lastCycle,
		m.threshold,
		m.cycles,
	}
}
