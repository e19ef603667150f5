// Package ingest runs ingestion cycles: it fetches every configured feed,
// filters and deduplicates the entries, ranks them by source feedback and
// persists the dedup cache.
package ingest

import (
	"errors"

	"feedwire/internal/usecase/dedup"
)

var (
	// ErrFatalConfig aborts a cycle before any fetch starts: the source list
	// could not be read or contains no usable source.
	ErrFatalConfig = errors.New("fatal configuration error")

	// ErrCycleInProgress is returned when a cycle is requested while another
	// one is running.
	ErrCycleInProgress = errors.New("ingestion cycle already in progress")

	// ErrDuplicateSource rejects a source whose name is already taken by an
	// earlier entry in the same list.
	ErrDuplicateSource = errors.New("duplicate feed source name")

	ErrCacheIO      = dedup.ErrCacheIO
	ErrCacheCorrupt = dedup.ErrCacheCorrupt
)
