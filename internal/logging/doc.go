// Package logging provides file-based structured logging with rotation for
// the coordinator process. Logs are JSON (slog.JSONHandler) so they compose
// with the Prometheus/slog-based observability conventions the rest of the
// service follows; by default they also go to stderr for local runs.
package logging
