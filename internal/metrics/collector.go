package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type EventType string

const (
	EventUpstreamSelected EventType = "upstream_selected"
	EventConnectFailed    EventType = "connect_failed"
	EventRequestForwarded EventType = "request_forwarded"
	EventResponseRelayed  EventType = "response_relayed"
	EventErrorResponse    EventType = "error_response"
	EventRateLimited      EventType = "rate_limited"
	EventHealthChecked    EventType = "health_checked"
	EventLiveSetReplaced  EventType = "live_set_replaced"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Upstream   string
	Duration   time.Duration
	StatusCode int
	Healthy    bool
	LiveCount  int
}

type Collector struct {
	eventCh  chan MetricEvent
	registry *prometheus.Registry
	metrics  *Metrics
	logger   *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		eventCh:  make(chan MetricEvent, bufferSize),
		registry: registry,
		metrics:  NewMetrics(registry),
		logger:   logger,
	}
}

// Emit queues an event without blocking. Events are dropped when the buffer
// is full, and a nil Collector ignores them.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Metrics() *Metrics {
	return c.metrics
}

// Handler serves the collected metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	m := c.metrics

	switch event.Type {
	case EventUpstreamSelected:
		m.Selections.WithLabelValues(event.Upstream).Inc()

	case EventConnectFailed:
		m.ConnectFailures.WithLabelValues(event.Upstream).Inc()

	case EventRequestForwarded:
		m.Forwarded.WithLabelValues(event.Upstream).Inc()

	case EventResponseRelayed:
		m.Responses.WithLabelValues(event.Upstream, statusLabel(event.StatusCode)).Inc()
		m.ResponseDuration.WithLabelValues(event.Upstream).Observe(event.Duration.Seconds())

	case EventErrorResponse:
		m.ClientErrors.WithLabelValues(statusLabel(event.StatusCode)).Inc()

	case EventRateLimited:
		m.RateLimited.Inc()

	case EventHealthChecked:
		value := 0.0
		if event.Healthy {
			value = 1
		}
		m.UpstreamHealthy.WithLabelValues(event.Upstream).Set(value)

	case EventLiveSetReplaced:
		m.LiveUpstreams.Set(float64(event.LiveCount))
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}
