package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"feedwire/internal/domain/entity"
	"feedwire/internal/observability/logging"
	"feedwire/internal/observability/metrics"
	"feedwire/internal/observability/tracing"
	"feedwire/internal/usecase/dedup"
)

// State is the controller's run state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// DefaultHistorySize is the number of CycleStats kept by default.
const DefaultHistorySize = 20

// ControllerConfig tunes the controller.
type ControllerConfig struct {
	// HistorySize bounds the rolling CycleStats history.
	HistorySize int

	// BlockPrivateHosts rejects sources whose host resolves to a loopback,
	// link-local or private address.
	BlockPrivateHosts bool
}

// Dependencies groups the collaborators of a Controller. Feedback may be nil.
type Dependencies struct {
	Sources  SourceProvider
	Keywords KeywordProvider
	Feedback FeedbackProvider
	Fetcher  BatchFetcher
	Cache    *dedup.Cache
}

// Controller runs ingestion cycles one at a time.
//
// A cycle loads the cache on first use, purges expired entries, reads the
// source list and keywords, fetches every feed, filters and ranks the
// entries, and persists the cache. Feed failures are reported in CycleStats;
// only ErrFatalConfig and ErrCacheCorrupt fail a cycle.
type Controller struct {
	deps     Dependencies
	cfg      ControllerConfig
	pipeline *Pipeline
	now      func() time.Time

	running atomic.Bool

	mu          sync.Mutex
	stop        context.CancelFunc
	cacheLoaded bool
	history     []CycleStats
}

func NewController(deps Dependencies, cfg ControllerConfig) *Controller {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	return &Controller{
		deps:     deps,
		cfg:      cfg,
		pipeline: NewPipeline(),
		now:      time.Now,
	}
}

// RunCycle runs one complete cycle. It returns ErrCycleInProgress without
// doing anything when another cycle is running.
//
// Cancelling ctx behaves like Stop: feeds that have not started are skipped
// and the cycle completes with partial results. On a fatal error the
// returned result carries the stats of the failed cycle.
func (c *Controller) RunCycle(ctx context.Context) (*CycleResult, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer c.running.Store(false)

	metrics.SetCycleRunning(true)
	defer metrics.SetCycleRunning(false)

	start := c.now()
	stats := CycleStats{CycleID: uuid.NewString(), StartedAt: start.UTC()}

	logger := logging.WithCycleID(logging.FromContext(ctx), stats.CycleID)
	ctx = logging.WithLogger(ctx, logger)
	ctx, span := tracing.GetTracer().Start(ctx, "ingest.cycle")
	span.SetAttributes(attribute.String("cycle.id", stats.CycleID))
	defer span.End()

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.stop = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.stop = nil
		c.mu.Unlock()
		cancel()
	}()

	logger.Info("ingestion cycle started")

	articles, err := c.run(runCtx, &stats)
	stats.Stopped = runCtx.Err() != nil
	stats.Duration = time.Since(start)
	result := &CycleResult{Articles: articles, Stats: stats}

	if err != nil {
		result.Stats.Status = StatusFailed
		result.Stats.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "cycle failed")
		logger.Error("ingestion cycle failed",
			slog.Duration("duration", stats.Duration),
			slog.Any("error", err))
	} else {
		result.Stats.Status = StatusCompleted
		span.SetAttributes(
			attribute.Int("cycle.feeds", stats.FeedsAttempted+stats.FeedsCircuitSkipped+stats.FeedsNotStarted),
			attribute.Int("cycle.articles", len(articles)),
		)
		logger.Info("ingestion cycle completed",
			slog.Int("feeds_succeeded", stats.FeedsSucceeded),
			slog.Int("feeds_failed", stats.FeedsFailed),
			slog.Int("feeds_circuit_skipped", stats.FeedsCircuitSkipped),
			slog.Int("feeds_not_started", stats.FeedsNotStarted),
			slog.Int("articles_found", stats.ArticlesFound),
			slog.Int("articles_new", len(articles)),
			slog.Int("duplicates", stats.DuplicatesDropped),
			slog.Bool("stopped", stats.Stopped),
			slog.Duration("duration", stats.Duration))
	}

	metrics.RecordCycle(string(result.Stats.Status), stats.Duration)
	c.record(result)
	return result, err
}

func (c *Controller) run(ctx context.Context, stats *CycleStats) ([]entity.Article, error) {
	logger := logging.FromContext(ctx)

	// only fetching reacts to a stop request; the other steps are short and
	// always run to completion
	steady := context.WithoutCancel(ctx)

	sources, keywords, err := c.loadConfig(steady, stats)
	if err != nil {
		return nil, err
	}

	if err := c.ensureCacheLoaded(steady, stats); err != nil {
		return nil, err
	}
	purged := c.deps.Cache.PurgeExpired(c.now())
	stats.CacheExpired = purged.Expired
	stats.CacheEvicted = purged.Evicted
	metrics.RecordCacheEvictions("expired", purged.Expired)
	metrics.RecordCacheEvictions("overflow", purged.Evicted)

	batch := c.deps.Fetcher.FetchAll(ctx, sources)
	stats.applyFetch(batch.Stats)

	scores := c.sourceScores(steady)
	articles, ps := c.pipeline.Process(batch.Articles, c.deps.Cache, keywords, scores)
	stats.applyProcess(ps)
	metrics.RecordCycleOutput(ps.Output, ps.Duplicates)

	if stats.CacheLoadFailed {
		// saving now would overwrite stored entries we never merged
		logger.Warn("skipping cache persist, cache was not loaded")
	} else if err := c.deps.Cache.Persist(steady); err != nil {
		stats.CachePersistFailed = true
		metrics.RecordCachePersist(false)
		logger.Error("failed to persist dedup cache, will retry next cycle",
			slog.Any("error", err))
	} else {
		metrics.RecordCachePersist(true)
	}

	stats.CacheEntries = c.deps.Cache.Len()
	metrics.SetCacheEntries(stats.CacheEntries)
	return articles, nil
}

func (c *Controller) loadConfig(ctx context.Context, stats *CycleStats) ([]entity.FeedSource, entity.KeywordSet, error) {
	logger := logging.FromContext(ctx)

	raw, err := c.deps.Sources.Sources(ctx)
	if err != nil {
		return nil, entity.KeywordSet{}, fmt.Errorf("%w: load sources: %w", ErrFatalConfig, err)
	}

	sources := make([]entity.FeedSource, 0, len(raw))
	names := make(map[string]struct{}, len(raw))
	for _, src := range raw {
		err := c.validateSource(&src)
		if err == nil {
			// 統計とフィードバックはソース名をキーにするため重複は不可
			if _, dup := names[src.Name]; dup {
				err = fmt.Errorf("%w: %q", ErrDuplicateSource, src.Name)
			}
		}
		if err != nil {
			stats.InvalidSources++
			logger.Warn("skipping invalid feed source",
				slog.String("source", src.Name),
				slog.String("feed_url", src.URL),
				slog.Any("error", err))
			continue
		}
		names[src.Name] = struct{}{}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return nil, entity.KeywordSet{}, fmt.Errorf("%w: no valid feed source (%d rejected)", ErrFatalConfig, stats.InvalidSources)
	}

	keywords, err := c.deps.Keywords.Keywords(ctx)
	if err != nil {
		return nil, entity.KeywordSet{}, fmt.Errorf("%w: load keywords: %w", ErrFatalConfig, err)
	}
	return sources, keywords, nil
}

func (c *Controller) validateSource(src *entity.FeedSource) error {
	if err := src.Validate(); err != nil {
		return err
	}
	if c.cfg.BlockPrivateHosts {
		return entity.RejectPrivateHost(src.URL)
	}
	return nil
}

// ensureCacheLoaded merges the stored cache into memory once per process.
// An I/O failure is retried next cycle; a corrupt store is fatal.
func (c *Controller) ensureCacheLoaded(ctx context.Context, stats *CycleStats) error {
	c.mu.Lock()
	loaded := c.cacheLoaded
	c.mu.Unlock()
	if loaded {
		return nil
	}

	logger := logging.FromContext(ctx)
	added, err := c.deps.Cache.Load(ctx)
	switch {
	case errors.Is(err, ErrCacheCorrupt):
		return fmt.Errorf("load dedup cache: %w", err)
	case err != nil:
		stats.CacheLoadFailed = true
		logger.Error("failed to load dedup cache, continuing with in-memory state",
			slog.Any("error", err))
		return nil
	}

	c.mu.Lock()
	c.cacheLoaded = true
	c.mu.Unlock()
	logger.Info("dedup cache loaded", slog.Int("entries", added))
	return nil
}

func (c *Controller) sourceScores(ctx context.Context) map[string]float64 {
	if c.deps.Feedback == nil {
		return nil
	}
	scores, err := c.deps.Feedback.SourceScores(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn("failed to load feedback scores, ranking without them",
			slog.Any("error", err))
		return nil
	}
	return scores
}

func (c *Controller) record(result *CycleResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, result.Stats)
	if over := len(c.history) - c.cfg.HistorySize; over > 0 {
		c.history = append(c.history[:0:0], c.history[over:]...)
	}
}

// Stop asks the running cycle to stop. It reports whether a cycle was
// running.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil {
		return false
	}
	c.stop()
	return true
}

// State reports whether a cycle is running.
func (c *Controller) State() State {
	if c.running.Load() {
		return StateRunning
	}
	return StateIdle
}

// History returns the stats of recent cycles, oldest first.
func (c *Controller) History() []CycleStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CycleStats, len(c.history))
	copy(out, c.history)
	return out
}

// ErrCacheNotLoaded is returned by Flush while the stored cache has not been
// merged into memory yet.
var ErrCacheNotLoaded = errors.New("dedup cache not loaded")

// Flush persists the dedup cache outside of a cycle, typically on shutdown.
// It refuses to write before the stored entries were loaded so they are not
// replaced by a partial in-memory view.
func (c *Controller) Flush(ctx context.Context) error {
	c.mu.Lock()
	loaded := c.cacheLoaded
	c.mu.Unlock()
	if !loaded {
		return ErrCacheNotLoaded
	}
	if err := c.deps.Cache.Persist(ctx); err != nil {
		metrics.RecordCachePersist(false)
		return err
	}
	metrics.RecordCachePersist(true)
	return nil
}
