// Package observability groups the logging, metrics and tracing helpers of
// the ingestion engine.
//
// Subpackages:
//   - logging: slog construction and context propagation
//   - metrics: Prometheus collectors for cycles, feeds, breakers and the cache
//   - tracing: OpenTelemetry tracer access
package observability
