// Package tracing provides OpenTelemetry tracing integration.
//
// The engine opens a span per ingestion cycle and a child span per feed
// fetch. Without a configured TracerProvider the spans are no-ops; the
// worker installs an SDK provider at startup.
package tracing
