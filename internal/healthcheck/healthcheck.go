package healthcheck

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sourcegraph/conc/iter"

	"github.com/angeloszaimis/balancebeam/internal/httpmsg"
	"github.com/angeloszaimis/balancebeam/internal/metrics"
	"github.com/angeloszaimis/balancebeam/internal/upstream"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultPath     = "/"
	DefaultTimeout  = 5 * time.Second
)

type Options struct {
	Interval time.Duration
	Path     string
	// Timeout bounds a single probe, from dial to the end of the response.
	Timeout time.Duration
	Dialer  upstream.Dialer
}

// Checker actively probes every configured upstream and rebuilds the live set
// from the results of each cycle.
type Checker struct {
	registry  *upstream.Registry
	opts      Options
	logger    *slog.Logger
	collector *metrics.Collector
}

func New(registry *upstream.Registry, opts Options, logger *slog.Logger, collector *metrics.Collector) *Checker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = &net.Dialer{}
	}

	return &Checker{
		registry:  registry,
		opts:      opts,
		logger:    logger,
		collector: collector,
	}
}

// Run performs a health check cycle every interval until ctx is cancelled.
// Probe failures only affect the upstream concerned; the loop keeps going.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	c.logger.Info("Health checker started",
		slog.Duration("interval", c.opts.Interval),
		slog.String("path", c.opts.Path))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Health checker stopped")
			return

		case <-ticker.C:
			c.RunCycle(ctx)
		}
	}
}

// RunCycle probes every configured upstream, including those currently
// considered dead, and replaces the live set with the ones that answered 200.
// Probes run concurrently and independently of each other.
func (c *Checker) RunCycle(ctx context.Context) []string {
	configured := c.registry.Configured()

	results := iter.Map(configured, func(addr *string) error {
		return c.Probe(ctx, *addr)
	})

	if ctx.Err() != nil {
		// Probes were cut short by shutdown, not by the upstreams.
		return c.registry.Live()
	}

	healthy := make([]string, 0, len(configured))
	failures := make(map[string]error)
	for i, addr := range configured {
		c.emitHealth(addr, results[i] == nil)
		if results[i] != nil {
			failures[addr] = results[i]
			c.logger.Debug("Upstream failed health check",
				slog.String("upstream", addr),
				slog.Any("err", results[i]))
			continue
		}
		healthy = append(healthy, addr)
	}

	added, removed := c.registry.Replace(healthy)

	for _, addr := range added {
		c.logger.Info("Upstream is back up", slog.String("upstream", addr))
	}
	for _, addr := range removed {
		c.logger.Warn("Upstream is down",
			slog.String("upstream", addr),
			slog.Any("err", failures[addr]))
	}

	c.collector.Emit(metrics.MetricEvent{
		Type:      metrics.EventLiveSetReplaced,
		LiveCount: len(healthy),
	})

	return healthy
}

// Probe sends one health check request to addr over a fresh connection and
// returns nil only if the upstream answered with status 200.
func (c *Checker) Probe(ctx context.Context, addr string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	conn, err := c.opts.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	req, err := newProbeRequest(c.opts.Path, addr)
	if err != nil {
		return err
	}

	if err := httpmsg.WriteRequest(bufio.NewWriter(conn), req); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	resp, err := httpmsg.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return nil
}

func (c *Checker) emitHealth(addr string, healthy bool) {
	c.collector.Emit(metrics.MetricEvent{
		Type:     metrics.EventHealthChecked,
		Upstream: addr,
		Healthy:  healthy,
	})
}

func newProbeRequest(path, host string) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %q: %w", path, err)
	}
	req.Host = host
	return req, nil
}
