// Package logger builds the process-wide slog logger: text output for local
// environments, JSON for prod, with the level taken from configuration.
package logger
