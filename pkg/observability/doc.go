// Package observability provides the cross-cutting operational concerns of
// the archive: structured JSON logging (log/slog), Prometheus metrics,
// OpenTelemetry trace export, dependency health checks, graceful shutdown
// and panic recovery.
//
// Pipeline metrics follow the error taxonomy: every ingest and every
// consumed message is counted by category and outcome (created, duplicate,
// indexed, invalid, conflict, error), so a dashboard can separate terminal
// failures from retryable ones at a glance.
package observability
