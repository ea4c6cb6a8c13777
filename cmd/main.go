package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/balancebeam/config"
	"github.com/angeloszaimis/balancebeam/internal/handler"
	"github.com/angeloszaimis/balancebeam/internal/healthcheck"
	"github.com/angeloszaimis/balancebeam/internal/httpserver"
	"github.com/angeloszaimis/balancebeam/internal/listener"
	"github.com/angeloszaimis/balancebeam/internal/loadbalancer"
	"github.com/angeloszaimis/balancebeam/internal/metrics"
	"github.com/angeloszaimis/balancebeam/internal/ratelimit"
	"github.com/angeloszaimis/balancebeam/internal/upstream"
	"github.com/angeloszaimis/balancebeam/pkg/logger"
)

const metricsBufferSize = 1024

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Level:       cfg.Logging.Level,
		AddSource:   true,
		Environment: cfg.Server.Environment,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg, log)
	if err != nil {
		log.Error("Failed to start balancebeam", slog.Any("err", err))
		os.Exit(1)
	}

	if err := a.run(ctx); err != nil {
		log.Error("balancebeam stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("Shut down")
}

// app holds the long-running parts of the proxy, wired and bound but not
// yet running.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	registry  *upstream.Registry
	collector *metrics.Collector
	checker   *healthcheck.Checker
	limiter   *ratelimit.Limiter
	proxy     *listener.Server
	admin     *httpserver.Server
}

func newApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	registry, err := upstream.New(cfg.Upstreams)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector(metricsBufferSize, log)

	lb := loadbalancer.NewLoadBalancer(registry, nil, log, collector)
	limiter := ratelimit.New(cfg.RateLimit.MaxRequestsPerMinute)
	checker := healthcheck.New(registry, healthcheck.Options{
		Interval: cfg.HealthCheckInterval(),
		Path:     cfg.HealthCheck.Path,
		Timeout:  cfg.HealthCheckTimeout(),
	}, log, collector)

	connectionHandler := handler.NewConnectionHandler(log, lb, limiter, collector)

	proxy, err := listener.Listen(cfg.Server.Address, connectionHandler, log)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		log:       log,
		registry:  registry,
		collector: collector,
		checker:   checker,
		limiter:   limiter,
		proxy:     proxy,
	}

	if cfg.Admin.Address != "" {
		a.admin, err = httpserver.New(cfg.Admin.Address, setupRouter(collector, registry), log)
		if err == nil {
			err = a.admin.Listen()
		}
		if err != nil {
			proxy.Close()
			return nil, fmt.Errorf("admin server: %w", err)
		}
	}

	return a, nil
}

// run blocks until ctx is cancelled or a component fails.
func (a *app) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	a.collector.Start(ctx)

	a.log.Info("Starting balancebeam",
		slog.String("address", a.proxy.Addr().String()),
		slog.Any("upstreams", a.registry.Configured()),
		slog.Int("max_requests_per_minute", a.limiter.Max()))

	g.Go(func() error {
		a.checker.Run(ctx)
		return nil
	})

	if a.limiter.Enabled() {
		g.Go(func() error {
			a.limiter.Run(ctx, a.cfg.RateLimitWindow(), a.log)
			return nil
		})
	}

	g.Go(func() error {
		return a.proxy.Serve(ctx)
	})

	if a.admin != nil {
		g.Go(func() error {
			return a.admin.Run(ctx)
		})
	}

	return g.Wait()
}
