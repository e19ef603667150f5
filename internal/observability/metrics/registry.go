package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle metrics
var (
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_cycles_total",
			Help: "Total number of ingestion cycles by final status",
		},
		[]string{"status"}, // completed, failed, rejected
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_cycle_duration_seconds",
			Help:    "Duration of ingestion cycles in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	CycleRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_cycle_running",
			Help: "1 while an ingestion cycle is running",
		},
	)

	ArticlesEmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_articles_emitted_total",
			Help: "Total number of articles emitted after filtering and dedup",
		},
	)

	DuplicatesDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_duplicates_dropped_total",
			Help: "Total number of articles dropped as already seen",
		},
	)
)

// Feed fetch metrics
var (
	FeedsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_fetch_results_total",
			Help: "Total number of feed fetches by result",
		},
		[]string{"result"}, // succeeded, failed, circuit_skipped, not_started
	)

	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_fetch_attempts_total",
			Help: "Total number of individual fetch attempts by outcome",
		},
		[]string{"outcome"}, // success, retryable, fatal
	)

	FeedFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feed_fetch_duration_seconds",
			Help:    "Time taken to fetch one feed including retries",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	FeedArticlesFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_articles_found_total",
			Help: "Total number of raw entries parsed from feeds",
		},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feed_circuit_breaker_state",
			Help: "Circuit breaker state per remote domain (0=closed, 1=open, 2=half-open)",
		},
		[]string{"domain"},
	)

	BreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker transitions by target state",
		},
		[]string{"to"},
	)
)

// Dedup cache metrics
var (
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dedup_cache_entries",
			Help: "Number of entries in the dedup cache",
		},
	)

	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_cache_evictions_total",
			Help: "Total number of dedup cache entries removed by reason",
		},
		[]string{"reason"}, // expired, capacity
	)

	CachePersistTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_cache_persist_total",
			Help: "Total number of cache persist operations by status",
		},
		[]string{"status"}, // success, failure
	)
)
