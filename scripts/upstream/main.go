// Upstream is a small HTTP server to put behind balancebeam when trying it
// out locally. It echoes what it received, including X-Forwarded-For, and
// serves a health endpoint that can be switched off to exercise the active
// health checks.
//
// Usage:
//
//	go run ./scripts/upstream --port 8081 --name a
//	curl -X POST localhost:8081/health/toggle
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/spf13/pflag"

	"github.com/angeloszaimis/balancebeam/pkg/logger"
)

type echoResponse struct {
	Upstream      string `json:"upstream"`
	Method        string `json:"method"`
	Path          string `json:"path"`
	ForwardedFor  string `json:"x_forwarded_for"`
	RemoteAddr    string `json:"remote_addr"`
	ContentLength int64  `json:"content_length"`
}

func main() {
	port := pflag.Int("port", 8081, "port to listen on")
	name := pflag.String("name", "", "name reported in responses (defaults to the port)")
	level := pflag.String("log-level", "info", "log level")
	pflag.Parse()

	if *name == "" {
		*name = fmt.Sprintf("upstream-%d", *port)
	}

	log := logger.New(logger.Options{Level: *level, Environment: "dev"}).With(slog.String("upstream", *name))

	var unhealthy atomic.Bool

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if unhealthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unhealthy"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/health/toggle", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		now := !unhealthy.Load()
		unhealthy.Store(now)
		log.Info("Health toggled", slog.Bool("healthy", !now))
		fmt.Fprintf(w, "healthy=%t\n", !now)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.Info("Request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("x_forwarded_for", r.Header.Get("X-Forwarded-For")),
			slog.String("from", r.RemoteAddr))

		resp := echoResponse{
			Upstream:      *name,
			Method:        r.Method,
			Path:          r.URL.Path,
			ForwardedFor:  r.Header.Get("X-Forwarded-For"),
			RemoteAddr:    r.RemoteAddr,
			ContentLength: r.ContentLength,
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Upstream", *name)
		json.NewEncoder(w).Encode(resp)
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Info("Starting upstream", slog.String("address", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("Server failed", slog.Any("err", err))
		os.Exit(1)
	}
}
