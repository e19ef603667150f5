// Package fetch orchestrates concurrent feed fetching. Each feed is gated by
// its domain's circuit breaker, retried with backoff and isolated from every
// other feed: per-feed failures end up in FetchStats, never in the caller's
// error path.
package fetch

import (
	"errors"
	"fmt"
)

// Error kinds carried by FetchError.
var (
	// ErrTransientFetch covers network errors, timeouts, HTTP 5xx and 429.
	ErrTransientFetch = errors.New("transient fetch failure")

	// ErrPermanentFetch covers HTTP 4xx responses other than 408 and 429.
	ErrPermanentFetch = errors.New("permanent fetch failure")

	// ErrParse indicates the response body is not a parsable RSS/Atom document.
	ErrParse = errors.New("feed parse failure")

	// ErrCircuitOpen indicates the domain's circuit breaker rejected the call.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrCancelled indicates the fetch was cut short by a stop request.
	ErrCancelled = errors.New("fetch cancelled")
)

// FetchError describes why a single feed produced no articles.
// It matches both its Kind and its cause with errors.Is / errors.As.
type FetchError struct {
	Source string
	Kind   error
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("feed %q: %v", e.Source, e.Kind)
	}
	return fmt.Sprintf("feed %q: %v: %v", e.Source, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Retryable reports whether another attempt may succeed.
func (e *FetchError) Retryable() bool {
	return e.Kind == ErrTransientFetch
}

// KindName returns a short, label-friendly name for the error kind.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrPermanentFetch):
		return "permanent"
	default:
		return "transient"
	}
}
