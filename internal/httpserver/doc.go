// Package httpserver runs the admin HTTP endpoint that exposes metrics and
// liveness/readiness probes alongside the proxy listener.
package httpserver
