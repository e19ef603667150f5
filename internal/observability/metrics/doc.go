// Package metrics provides the Prometheus collectors of the ingestion engine.
//
// All collectors are registered with the default registry through promauto
// and exposed by the worker on /metrics.
//
// Example usage:
//
//	metrics.RecordFeedResult("succeeded")
//	metrics.SetBreakerState("example.com", "open")
package metrics
