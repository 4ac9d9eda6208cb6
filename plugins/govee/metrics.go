package govee

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/humidistat/internal/rate"
)

// clientMetrics records the outcome of every Govee API request.
type clientMetrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess prometheus.Gauge
	lastFailure prometheus.Gauge

	mu       sync.Mutex
	lastErr  error
	lastTime time.Time
}

func newClientMetrics() *clientMetrics {
	return &clientMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "humidistat_govee_requests_total",
			Help: "Govee API requests by endpoint and result",
		}, []string{"endpoint", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "humidistat_govee_request_duration_seconds",
			Help:    "Govee API request latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "humidistat_govee_last_success_timestamp_seconds",
			Help: "Last successful Govee API request (epoch seconds)",
		}),
		lastFailure: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "humidistat_govee_last_failure_timestamp_seconds",
			Help: "Last failed Govee API request (epoch seconds)",
		}),
	}
}

func (m *clientMetrics) observe(endpoint string, status int, took time.Duration, err error) {
	now := time.Now()
	m.requests.WithLabelValues(endpoint, resultCode(status, err)).Inc()
	m.duration.WithLabelValues(endpoint).Observe(took.Seconds())
	if err != nil {
		m.lastFailure.Set(float64(now.Unix()))
	} else {
		m.lastSuccess.Set(float64(now.Unix()))
	}

	m.mu.Lock()
	m.lastErr = err
	m.lastTime = now
	m.mu.Unlock()
}

func (m *clientMetrics) last() (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTime, m.lastErr
}

func (m *clientMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requests, m.duration, m.lastSuccess, m.lastFailure}
}

func resultCode(status int, err error) string {
	var rlErr rate.RateLimitError
	switch {
	case errors.As(err, &rlErr):
		return "rate_limited"
	case status == 0 && err != nil:
		return "error"
	default:
		return strconv.Itoa(status)
	}
}
