// Package resilience groups the fault tolerance building blocks used by the
// ingestion engine.
//
// Subpackages:
//   - circuitbreaker: per-domain breakers for feed hosts and a gobreaker guard
//     for cache persistence
//   - retry: exponential backoff policy with result classification
//
// Usage Example:
//
//	breakers := circuitbreaker.NewRegistry(circuitbreaker.DefaultDomainConfig())
//	if breakers.Allow("example.com") {
//	    err := fetch()
//	    if err != nil {
//	        breakers.OnFailure("example.com")
//	    } else {
//	        breakers.OnSuccess("example.com")
//	    }
//	}
package resilience
