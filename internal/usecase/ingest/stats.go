package ingest

import (
	"time"

	"feedwire/internal/domain/entity"
	"feedwire/internal/usecase/fetch"
)

// Status is the outcome of a finished cycle.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// CycleStats describes one ingestion cycle.
type CycleStats struct {
	CycleID   string        `json:"cycle_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Status    Status        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Stopped   bool          `json:"stopped,omitempty"`

	FeedsAttempted      int `json:"feeds_attempted"`
	FeedsSucceeded      int `json:"feeds_succeeded"`
	FeedsCircuitSkipped int `json:"feeds_circuit_skipped"`
	FeedsFailed         int `json:"feeds_failed"`
	FeedsNotStarted     int `json:"feeds_not_started"`
	InvalidSources      int `json:"invalid_sources"`
	FetchAttempts       int `json:"fetch_attempts"`

	ArticlesFound     int `json:"articles_found"`
	ArticlesFiltered  int `json:"articles_filtered"`
	KeywordRejected   int `json:"keyword_rejected"`
	DuplicatesDropped int `json:"duplicates_dropped"`

	CacheEntries       int  `json:"cache_entries"`
	CacheExpired       int  `json:"cache_expired"`
	CacheEvicted       int  `json:"cache_evicted"`
	CacheLoadFailed    bool `json:"cache_load_failed,omitempty"`
	CachePersistFailed bool `json:"cache_persist_failed,omitempty"`

	// FeedErrors maps source name to error kind for every feed that failed
	// or was skipped by its circuit breaker.
	FeedErrors map[string]string `json:"feed_errors,omitempty"`
}

func (s *CycleStats) applyFetch(fs fetch.FetchStats) {
	s.FeedsAttempted = fs.Attempted
	s.FeedsSucceeded = fs.Succeeded
	s.FeedsCircuitSkipped = fs.CircuitSkipped
	s.FeedsFailed = fs.Failed
	s.FeedsNotStarted = fs.NotStarted
	s.FetchAttempts = fs.Attempts
	s.ArticlesFound = fs.ArticlesFound
	for source, err := range fs.Errors {
		if s.FeedErrors == nil {
			s.FeedErrors = make(map[string]string, len(fs.Errors))
		}
		s.FeedErrors[source] = fetch.KindName(err)
	}
}

func (s *CycleStats) applyProcess(ps ProcessStats) {
	s.ArticlesFiltered = ps.Output
	s.KeywordRejected = ps.KeywordRejected
	s.DuplicatesDropped = ps.Duplicates
}

// CycleResult is what a cycle hands to its caller: the ranked new articles
// and the statistics.
type CycleResult struct {
	Articles []entity.Article `json:"articles"`
	Stats    CycleStats       `json:"stats"`
}
