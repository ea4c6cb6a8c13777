package httpserver

import (
	"fmt"
	"net/http"
)

// Readiness reports how many upstreams can currently take traffic.
type Readiness interface {
	LiveCount() int
}

// HealthHandler answers 200 while the process is up.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

// ReadyHandler answers 200 while at least one upstream is live and 503
// otherwise.
func ReadyHandler(readiness Readiness) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		live := readiness.LiveCount()
		if live == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready: no live upstreams"))
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ready: %d live upstreams", live)
	}
}
