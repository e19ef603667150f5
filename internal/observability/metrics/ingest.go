package metrics

import "time"

// RecordCycle records the final status and duration of an ingestion cycle.
func RecordCycle(status string, duration time.Duration) {
	CyclesTotal.WithLabelValues(status).Inc()
	if duration > 0 {
		CycleDuration.Observe(duration.Seconds())
	}
}

// SetCycleRunning flips the running gauge.
func SetCycleRunning(running bool) {
	if running {
		CycleRunning.Set(1)
		return
	}
	CycleRunning.Set(0)
}

// RecordCycleOutput records how many articles a cycle emitted and how many
// duplicates it dropped.
func RecordCycleOutput(emitted, duplicates int) {
	ArticlesEmittedTotal.Add(float64(emitted))
	DuplicatesDroppedTotal.Add(float64(duplicates))
}

// RecordFeedResult increments the per-feed result counter.
func RecordFeedResult(result string) {
	FeedsTotal.WithLabelValues(result).Inc()
}

// RecordFeedFetch records the duration and entry count of one feed fetch.
func RecordFeedFetch(duration time.Duration, articles int) {
	FeedFetchDuration.Observe(duration.Seconds())
	FeedArticlesFound.Add(float64(articles))
}

// RecordFetchAttempt records a single attempt outcome.
func RecordFetchAttempt(outcome string) {
	FetchAttemptsTotal.WithLabelValues(outcome).Inc()
}

// SetBreakerState exports the current breaker state of a domain.
func SetBreakerState(domain string, state string) {
	var v float64
	switch state {
	case "open":
		v = 1
	case "half-open":
		v = 2
	}
	BreakerState.WithLabelValues(domain).Set(v)
	BreakerTransitionsTotal.WithLabelValues(state).Inc()
}

// SetCacheEntries sets the dedup cache size gauge.
func SetCacheEntries(n int) {
	CacheEntries.Set(float64(n))
}

// RecordCacheEvictions adds removed entries for the given reason.
func RecordCacheEvictions(reason string, n int) {
	if n <= 0 {
		return
	}
	CacheEvictionsTotal.WithLabelValues(reason).Add(float64(n))
}

// RecordCachePersist records the outcome of a persist operation.
func RecordCachePersist(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	CachePersistTotal.WithLabelValues(status).Inc()
}
