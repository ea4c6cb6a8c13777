package loadbalancer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/angeloszaimis/balancebeam/internal/metrics"
	"github.com/angeloszaimis/balancebeam/internal/upstream"
)

// ErrAllUpstreamsDead is returned when failover ran out of live upstreams.
var ErrAllUpstreamsDead = errors.New("all upstreams are dead")

type LoadBalancer struct {
	registry  *upstream.Registry
	dialer    upstream.Dialer
	logger    *slog.Logger
	collector *metrics.Collector
}

func NewLoadBalancer(registry *upstream.Registry, dialer upstream.Dialer, logger *slog.Logger, collector *metrics.Collector) *LoadBalancer {
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	return &LoadBalancer{
		registry:  registry,
		dialer:    dialer,
		logger:    logger,
		collector: collector,
	}
}

// Pick returns a random live upstream without connecting to it.
func (lb *LoadBalancer) Pick() (string, error) {
	return lb.registry.Pick()
}

// ConnectWithFailover picks live upstreams at random until one accepts a TCP
// connection. Every upstream that refuses is removed from the live set before
// the next attempt, so the loop is bounded by the size of the pool.
func (lb *LoadBalancer) ConnectWithFailover(ctx context.Context) (net.Conn, string, error) {
	for {
		addr, err := lb.registry.Pick()
		if errors.Is(err, upstream.ErrNoLiveUpstreams) {
			lb.logger.Error("All upstreams are dead")
			return nil, "", ErrAllUpstreamsDead
		}
		if err != nil {
			return nil, "", err
		}

		conn, err := lb.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			lb.collector.Emit(metrics.MetricEvent{
				Type:     metrics.EventUpstreamSelected,
				Upstream: addr,
			})
			return conn, addr, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", fmt.Errorf("connect to upstream %s: %w", addr, ctxErr)
		}

		lb.logger.Error("Failed to connect to upstream",
			slog.String("upstream", addr),
			slog.Any("err", err))

		if lb.registry.Remove(addr) {
			lb.collector.Emit(metrics.MetricEvent{
				Type:     metrics.EventConnectFailed,
				Upstream: addr,
			})
			lb.collector.Emit(metrics.MetricEvent{
				Type:      metrics.EventLiveSetReplaced,
				LiveCount: lb.registry.LiveCount(),
			})
		}
	}
}
