package rate

import "github.com/prometheus/client_golang/prometheus"

var (
	remainingGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "humidistat_rate_limit_remaining",
			Help: "Remaining requests in the provider rate-limit window",
		},
		[]string{"provider", "window"},
	)
	retryAfterGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "humidistat_rate_limit_retry_after_seconds",
			Help: "Cooldown seconds announced by the provider",
		},
		[]string{"provider"},
	)
	lastStatusGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "humidistat_rate_limit_last_status_code",
			Help: "Last HTTP status code observed by the rate-limit wrapper",
		},
		[]string{"provider"},
	)
	deniedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "humidistat_rate_limit_denied_total",
			Help: "Requests refused locally by the rate-limit guard",
		},
		[]string{"provider", "reason"},
	)
)

// MetricsCollectors exposes shared rate-limit collectors.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		remainingGauge,
		retryAfterGauge,
		lastStatusGauge,
		deniedCounter,
	}
}
