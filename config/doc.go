// Package config loads the proxy configuration from defaults, an optional
// YAML file, environment variables and command-line flags, and validates it.
// It covers the bind address, upstream list, active health checks, per-client
// rate limiting, the admin endpoint and logging.
package config
