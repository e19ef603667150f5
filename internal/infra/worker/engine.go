package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	feedsconfig "feedwire/internal/config"
	"feedwire/internal/infra/adapter/persistence/postgres"
	"feedwire/internal/infra/adapter/persistence/sqlite"
	"feedwire/internal/infra/cachestore"
	"feedwire/internal/infra/db"
	"feedwire/internal/infra/feedback"
	"feedwire/internal/infra/scraper"
	"feedwire/internal/observability/metrics"
	"feedwire/internal/resilience/circuitbreaker"
	"feedwire/internal/resilience/retry"
	"feedwire/internal/usecase/dedup"
	"feedwire/internal/usecase/fetch"
	"feedwire/internal/usecase/ingest"
)

// Engine is the fully wired ingestion engine shared by the worker daemon
// and the feedctl CLI.
type Engine struct {
	Controller *ingest.Controller
	Breakers   *circuitbreaker.Registry
	Cache      *dedup.Cache
	Feeds      *feedsconfig.FileProvider

	db *sql.DB
}

// EngineOption customises NewEngine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	fetcher fetch.FeedFetcher
}

// WithFeedFetcher replaces the RSS fetcher.
func WithFeedFetcher(f fetch.FeedFetcher) EngineOption {
	return func(o *engineOptions) { o.fetcher = f }
}

// NewEngine opens the configured cache backend and wires breakers, retry
// policy, orchestrator and controller. Close releases the database handle.
func NewEngine(ctx context.Context, cfg *EngineConfig, logger *slog.Logger, opts ...EngineOption) (*Engine, error) {
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.fetcher == nil {
		o.fetcher = scraper.NewRSSFetcher(nil, scraper.DefaultRSSConfig())
	}

	e := &Engine{Feeds: feedsconfig.NewFileProvider(cfg.FeedsConfig)}
	store, fb, err := e.openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	e.Breakers = newBreakers(cfg)
	e.Cache = dedup.New(cfg.CacheConfig(), store)
	orchestrator := fetch.NewOrchestrator(
		o.fetcher,
		e.Breakers,
		retry.NewPolicy(cfg.RetryConfig()),
		cfg.FetchConfig(),
	)
	e.Controller = ingest.NewController(ingest.Dependencies{
		Sources:  e.Feeds,
		Keywords: e.Feeds,
		Feedback: fb,
		Fetcher:  orchestrator,
		Cache:    e.Cache,
	}, cfg.ControllerConfig())
	return e, nil
}

// Close releases the storage backend.
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// newBreakers builds the per-domain breaker registry and mirrors every
// transition into the breaker state gauge. The registry logs transitions
// itself.
func newBreakers(cfg *EngineConfig) *circuitbreaker.Registry {
	bc := cfg.BreakerConfig()
	bc.OnStateChange = func(domain string, _, to circuitbreaker.State) {
		metrics.SetBreakerState(domain, to.String())
	}
	return circuitbreaker.NewRegistry(bc)
}

// guardStore wraps store in the persistence breaker. Corrupt content is an
// answer from a reachable store, so it never trips the circuit and keeps
// failing cycles with dedup.ErrCacheCorrupt.
func guardStore(store circuitbreaker.SeenStore) *circuitbreaker.GuardedStore {
	cfg := circuitbreaker.StoreConfig()
	cfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, dedup.ErrCacheCorrupt)
	}
	return circuitbreaker.NewGuardedStore(store, cfg)
}

func (e *Engine) openStorage(ctx context.Context, cfg *EngineConfig, logger *slog.Logger) (dedup.Store, ingest.FeedbackProvider, error) {
	fileFeedback := feedback.NewFileProvider(cfg.FeedbackPath)

	switch cfg.CacheBackend {
	case BackendSQLite:
		database, err := db.OpenSQLite(cfg.CachePath)
		if err != nil {
			return nil, nil, err
		}
		if err := db.MigrateUp(database, db.SQLite); err != nil {
			return nil, nil, errors.Join(err, database.Close())
		}
		e.db = database
		logger.Info("dedup cache backed by sqlite", slog.String("path", cfg.CachePath))
		return guardStore(sqlite.NewSeenRepo(database)), fileFeedback, nil

	case BackendPostgres:
		database, err := db.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.MigrateUp(database, db.Postgres); err != nil {
			return nil, nil, errors.Join(err, database.Close())
		}
		e.db = database
		logger.Info("dedup cache and feedback backed by postgres")
		return guardStore(postgres.NewSeenRepo(database)),
			postgres.NewFeedbackRepo(database, postgres.DefaultFeedbackWindow), nil

	case BackendFile, "":
		logger.Info("dedup cache backed by file", slog.String("path", cfg.CachePath))
		return guardStore(cachestore.NewFileStore(cfg.CachePath)), fileFeedback, nil

	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}
