package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "balancebeam"

// Metrics groups the Prometheus collectors fed by the Collector.
type Metrics struct {
	Selections       *prometheus.CounterVec
	ConnectFailures  *prometheus.CounterVec
	Forwarded        *prometheus.CounterVec
	Responses        *prometheus.CounterVec
	ResponseDuration *prometheus.HistogramVec
	ClientErrors     *prometheus.CounterVec
	RateLimited      prometheus.Counter
	UpstreamHealthy  *prometheus.GaugeVec
	LiveUpstreams    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_selections_total",
			Help:      "Number of times an upstream was picked for a new session",
		}, []string{"upstream"}),

		ConnectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_connect_failures_total",
			Help:      "Failed connection attempts that removed an upstream from the live set",
		}, []string{"upstream"}),

		Forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_forwarded_total",
			Help:      "Requests written to an upstream",
		}, []string{"upstream"}),

		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Upstream responses relayed to clients by status code",
		}, []string{"upstream", "status_code"}),

		ResponseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_response_duration_seconds",
			Help:      "Time from forwarding a request to reading the upstream response",
			Buckets:   prometheus.DefBuckets,
		}, []string{"upstream"}),

		ClientErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "error_responses_total",
			Help:      "Error responses generated by the proxy itself",
		}, []string{"status_code"}),

		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the per-client rate limiter",
		}),

		UpstreamHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_healthy",
			Help:      "Whether the last health check found the upstream healthy (1) or not (0)",
		}, []string{"upstream"}),

		LiveUpstreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_upstreams",
			Help:      "Number of upstreams currently in the live set",
		}),
	}

	reg.MustRegister(
		m.Selections,
		m.ConnectFailures,
		m.Forwarded,
		m.Responses,
		m.ResponseDuration,
		m.ClientErrors,
		m.RateLimited,
		m.UpstreamHealthy,
		m.LiveUpstreams,
	)

	return m
}

func statusLabel(code int) string {
	return strconv.Itoa(code)
}
