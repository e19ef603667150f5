// Package dedup provides the bounded, TTL-aware cache of article ids that
// have already been emitted, and the Store contract used to persist it
// between cycles.
package dedup

import "errors"

// Sentinel errors for cache persistence.
var (
	// ErrCacheIO indicates the store could not be read or written.
	// The in-memory cache stays authoritative and the next persist retries.
	ErrCacheIO = errors.New("dedup cache I/O failure")

	// ErrCacheCorrupt indicates stored content exists but cannot be decoded,
	// and no backup could be recovered.
	ErrCacheCorrupt = errors.New("dedup cache corrupt")
)
