package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"feedwire/internal/observability/logging"
	"feedwire/internal/usecase/ingest"
)

// CycleRunner is the part of ingest.Controller the scheduler drives.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*ingest.CycleResult, error)
	Stop() bool
}

var _ CycleRunner = (*ingest.Controller)(nil)

// Scheduler triggers ingestion cycles on a cron schedule. A tick that fires
// while the previous cycle is still running is skipped.
type Scheduler struct {
	runner  CycleRunner
	cfg     EngineConfig
	metrics *WorkerMetrics
	logger  *slog.Logger
	cron    *cron.Cron
}

// NewScheduler validates the schedule and timezone and registers the cycle
// job. Nothing runs until Start.
func NewScheduler(runner CycleRunner, cfg EngineConfig, metrics *WorkerMetrics, logger *slog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	cl := cronLogger{logger: logger}
	s := &Scheduler{
		runner:  runner,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}

	if _, err := s.cron.AddFunc(cfg.CronSchedule, func() {
		_, _ = s.RunOnce(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("add cron job: %w", err)
	}
	return s, nil
}

// Start begins firing the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started",
		slog.String("schedule", s.cfg.CronSchedule),
		slog.String("timezone", s.cfg.Timezone))
}

// NextRun returns the next scheduled activation, or the zero time before
// Start.
func (s *Scheduler) NextRun() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop prevents further ticks, asks a running cycle to stop and waits for it
// to finish or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	if s.runner.Stop() {
		s.logger.Info("stop requested for running cycle")
	}
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// RunOnce runs a single cycle bounded by CycleTimeout and records the run.
func (s *Scheduler) RunOnce(ctx context.Context) (*ingest.CycleResult, error) {
	start := time.Now()

	// サイクル全体のタイムアウト（設定から取得）
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
	defer cancel()

	res, err := s.runner.RunCycle(logging.WithLogger(ctx, s.logger))
	if errors.Is(err, ingest.ErrCycleInProgress) {
		s.metrics.RecordRun("skipped")
		s.logger.Warn("cycle skipped, previous cycle still running")
		return nil, err
	}
	s.metrics.RecordRunDuration(time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordRun(string(ingest.StatusFailed))
		s.logger.Error("scheduled cycle failed", slog.String("error", logging.SanitizeError(err)))
		return res, err
	}

	s.metrics.RecordRun(string(ingest.StatusCompleted))
	s.metrics.RecordFeedsProcessed(res.Stats.FeedsAttempted + res.Stats.FeedsCircuitSkipped)
	s.metrics.RecordLastSuccess()
	return res, nil
}

// cronLogger routes robfig/cron's logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	if msg == "skip" {
		l.logger.Warn("cron tick skipped, job still running", keysAndValues...)
		return
	}
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, slog.Any("error", err))...)
}
