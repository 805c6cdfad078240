package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the relay.
type Metrics struct {
	// Remote API metrics
	APIRequests *prometheus.CounterVec
	APIDuration *prometheus.HistogramVec

	// Bus metrics
	BusMessages  *prometheus.CounterVec
	BusConns     prometheus.Gauge
	BusUnknown   prometheus.Counter
	BusDirective *prometheus.CounterVec

	// Injector metrics
	Injections   prometheus.Counter
	Restores     prometheus.Counter
	PollAttempts prometheus.Counter
	StaleDrops   prometheus.Counter

	// Session metrics
	Logins  prometheus.Counter
	Logouts prometheus.Counter

	startTime time.Time
}

// NewMetrics creates metrics registered on the default registry.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

// NewMetricsFor creates metrics registered on the given registerer. Tests use
// this to avoid duplicate registration on the default registry.
func NewMetricsFor(reg prometheus.Registerer) *Metrics {
	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		APIRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_api_requests_total",
			Help: "Remote API requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		APIDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_api_request_duration_seconds",
			Help:    "Remote API request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		BusMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_bus_messages_total",
			Help: "Bus messages handled by action",
		}, []string{"action"}),
		BusConns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_bus_connections",
			Help: "Active websocket bus connections",
		}),
		BusUnknown: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_bus_unknown_actions_total",
			Help: "Messages carrying an unrecognized action",
		}),
		BusDirective: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_bus_directives_total",
			Help: "One-way directives published by action",
		}, []string{"action"}),

		Injections: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_injections_total",
			Help: "Feed snapshots injected into the host page",
		}),
		Restores: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_restores_total",
			Help: "Injected containers removed",
		}),
		PollAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_poll_attempts_total",
			Help: "Host container probe attempts",
		}),
		StaleDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_stale_snapshots_dropped_total",
			Help: "Snapshots discarded because a newer load superseded them",
		}),

		Logins: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_logins_total",
			Help: "Successful logins",
		}),
		Logouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_logouts_total",
			Help: "Logouts; the local clear counts even when the server call fails",
		}),

		startTime: time.Now(),
	}
}

// Uptime reports time since metrics creation.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

// ObserveAPIRequest records one remote API call.
func (m *Metrics) ObserveAPIRequest(endpoint, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.APIRequests.WithLabelValues(endpoint, outcome).Inc()
	m.APIDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}
