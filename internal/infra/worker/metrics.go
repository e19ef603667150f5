package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"feedwire/internal/pkg/config"
)

// WorkerMetrics provides Prometheus metrics for the worker process.
// It embeds ConfigMetrics for configuration monitoring and adds metrics for
// scheduled cycle runs.
//
// Embedded metrics (from ConfigMetrics):
//   - worker_config_load_timestamp
//   - worker_config_validation_errors_total{field}
//   - worker_config_fallbacks_total{field}
//   - worker_config_fallback_active
//
// Scheduler metrics:
//   - worker_scheduled_runs_total{status}: completed, failed or skipped
//   - worker_scheduled_run_duration_seconds
//   - worker_feeds_processed_total
//   - worker_last_success_timestamp
type WorkerMetrics struct {
	*config.ConfigMetrics

	ScheduledRunsTotal   *prometheus.CounterVec
	RunDurationSeconds   prometheus.Histogram
	FeedsProcessedTotal  prometheus.Counter
	LastSuccessTimestamp prometheus.Gauge
}

// NewWorkerMetrics creates and registers the worker metrics. Call it once
// per process.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),

		ScheduledRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_scheduled_runs_total",
			Help: "Total number of scheduled cycle runs by status (completed/failed/skipped)",
		}, []string{"status"}),

		RunDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_scheduled_run_duration_seconds",
			Help:    "Duration of scheduled cycle runs in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 600, 1800},
		}),

		FeedsProcessedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worker_feeds_processed_total",
			Help: "Total number of feeds processed across all scheduled runs",
		}),

		LastSuccessTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_last_success_timestamp",
			Help: "Unix timestamp of the last completed scheduled run",
		}),
	}
}

// RecordRun increments the run counter for status.
func (m *WorkerMetrics) RecordRun(status string) {
	m.ScheduledRunsTotal.WithLabelValues(status).Inc()
}

// RecordRunDuration observes a run duration in seconds.
func (m *WorkerMetrics) RecordRunDuration(seconds float64) {
	m.RunDurationSeconds.Observe(seconds)
}

// RecordFeedsProcessed adds the feeds handled by one run.
func (m *WorkerMetrics) RecordFeedsProcessed(count int) {
	m.FeedsProcessedTotal.Add(float64(count))
}

// RecordLastSuccess stamps the current time as the last successful run.
func (m *WorkerMetrics) RecordLastSuccess() {
	m.LastSuccessTimestamp.SetToCurrentTime()
}
