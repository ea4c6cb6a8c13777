package main

import (
	"net/http"

	"github.com/angeloszaimis/balancebeam/internal/httpserver"
	"github.com/angeloszaimis/balancebeam/internal/metrics"
	"github.com/angeloszaimis/balancebeam/internal/upstream"
)

func setupRouter(metricsCollector *metrics.Collector, registry *upstream.Registry) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/metrics", metricsCollector.Handler())
	mux.HandleFunc("/health", httpserver.HealthHandler())
	mux.HandleFunc("/ready", httpserver.ReadyHandler(registry))

	return mux
}
