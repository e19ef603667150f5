package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"feedwire/internal/pkg/config"
	"feedwire/internal/resilience/circuitbreaker"
	"feedwire/internal/resilience/retry"
	"feedwire/internal/usecase/dedup"
	"feedwire/internal/usecase/fetch"
	"feedwire/internal/usecase/ingest"
)

// Cache backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// EngineConfig holds every knob of the ingestion engine and the worker
// process around it.
//
// Configuration sources:
//   - Environment variables (loaded via LoadConfigFromEnv)
//   - Default values (provided by DefaultConfig)
//
// Example usage:
//
//	cfg, _ := LoadConfigFromEnv(logger, metrics)
//	registry := circuitbreaker.NewRegistry(cfg.BreakerConfig())
type EngineConfig struct {
	// CronSchedule is a five-field cron expression.
	// Default: "*/30 * * * *"
	CronSchedule string

	// Timezone is the IANA timezone the schedule is evaluated in.
	// Default: "UTC"
	Timezone string

	// CycleTimeout bounds one cycle; reaching it stops the cycle like Stop.
	// Range: 1m-4h, Default: 10 minutes
	CycleTimeout time.Duration

	// HealthPort serves /health, /health/ready and /health/breakers.
	// Range: 1024-65535, Default: 9091
	HealthPort int

	// MetricsPort serves /metrics.
	// Range: 1024-65535, Default: 9090
	MetricsPort int

	// FailureThreshold, RecoveryTimeout and HalfOpenAttempts configure the
	// per-domain circuit breakers.
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenAttempts int

	// MaxRetries is the total number of attempts per feed and cycle.
	// Range: 1-10, Default: 3
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// CacheTTLDays and CacheMaxEntries bound the dedup cache.
	CacheTTLDays    int
	CacheMaxEntries int

	MaxConcurrentFetches int
	FetchTimeout         time.Duration
	StopGracePeriod      time.Duration
	FetchRatePerSecond   float64

	// FeedsConfig is the YAML file listing feeds and keywords.
	FeedsConfig string

	// CacheBackend selects the dedup store: file, sqlite or postgres.
	CacheBackend string
	CachePath    string
	FeedbackPath string
	DatabaseURL  string

	HistorySize       int
	BlockPrivateHosts bool
}

// DefaultConfig returns an EngineConfig with production defaults.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		CronSchedule:         "*/30 * * * *",
		Timezone:             "UTC",
		CycleTimeout:         10 * time.Minute,
		HealthPort:           9091,
		MetricsPort:          9090,
		FailureThreshold:     5,
		RecoveryTimeout:      60 * time.Second,
		HalfOpenAttempts:     2,
		MaxRetries:           3,
		RetryBaseDelay:       5 * time.Second,
		RetryMaxDelay:        60 * time.Second,
		CacheTTLDays:         7,
		CacheMaxEntries:      5000,
		MaxConcurrentFetches: 10,
		FetchTimeout:         30 * time.Second,
		StopGracePeriod:      10 * time.Second,
		FeedsConfig:          "config.yaml",
		CacheBackend:         BackendFile,
		CachePath:            "data/article_cache.json",
		FeedbackPath:         "data/feedback.json",
		HistorySize:          ingest.DefaultHistorySize,
	}
}

// Validate checks every field and returns all problems at once.
func (c *EngineConfig) Validate() error {
	var errs []error
	check := func(field string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}

	check("cron schedule", config.ValidateCronSchedule(c.CronSchedule))
	check("timezone", config.ValidateTimezone(c.Timezone))
	check("cycle timeout", config.ValidateDuration(c.CycleTimeout, time.Minute, 4*time.Hour))
	check("health port", config.ValidateIntRange(c.HealthPort, 1024, 65535))
	check("metrics port", config.ValidateIntRange(c.MetricsPort, 1024, 65535))
	check("failure threshold", config.ValidateIntRange(c.FailureThreshold, 1, 100))
	check("recovery timeout", config.ValidatePositiveDuration(c.RecoveryTimeout))
	check("half open attempts", config.ValidateIntRange(c.HalfOpenAttempts, 1, 20))
	check("max retries", config.ValidateIntRange(c.MaxRetries, 1, 10))
	check("retry base delay", config.ValidatePositiveDuration(c.RetryBaseDelay))
	check("retry max delay", config.ValidatePositiveDuration(c.RetryMaxDelay))
	if c.RetryMaxDelay < c.RetryBaseDelay {
		check("retry max delay", fmt.Errorf("%v is below base delay %v", c.RetryMaxDelay, c.RetryBaseDelay))
	}
	check("cache ttl days", config.ValidateIntRange(c.CacheTTLDays, 1, 365))
	check("cache max entries", config.ValidateIntRange(c.CacheMaxEntries, 1, 1_000_000))
	check("max concurrent fetches", config.ValidateIntRange(c.MaxConcurrentFetches, 1, 100))
	check("fetch timeout", config.ValidatePositiveDuration(c.FetchTimeout))
	check("stop grace period", config.ValidatePositiveDuration(c.StopGracePeriod))
	check("fetch rate", config.ValidateNonNegativeFloat(c.FetchRatePerSecond))
	check("cache backend", config.OneOf(BackendFile, BackendSQLite, BackendPostgres)(c.CacheBackend))
	if c.CacheBackend == BackendPostgres && c.DatabaseURL == "" {
		check("database url", errors.New("required for the postgres backend"))
	}
	check("history size", config.ValidateIntRange(c.HistorySize, 1, 1000))

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// BreakerConfig converts the breaker knobs. OnStateChange is left to the caller.
func (c *EngineConfig) BreakerConfig() circuitbreaker.DomainConfig {
	return circuitbreaker.DomainConfig{
		FailureThreshold: c.FailureThreshold,
		RecoveryTimeout:  c.RecoveryTimeout,
		HalfOpenAttempts: c.HalfOpenAttempts,
	}
}

// RetryConfig converts the retry knobs on top of the feed fetch defaults.
func (c *EngineConfig) RetryConfig() retry.Config {
	rc := retry.FeedFetchConfig()
	rc.MaxAttempts = c.MaxRetries
	rc.InitialDelay = c.RetryBaseDelay
	rc.MaxDelay = c.RetryMaxDelay
	return rc
}

func (c *EngineConfig) CacheConfig() dedup.Config {
	return dedup.Config{
		TTL:        time.Duration(c.CacheTTLDays) * 24 * time.Hour,
		MaxEntries: c.CacheMaxEntries,
	}
}

func (c *EngineConfig) FetchConfig() fetch.Config {
	return fetch.Config{
		MaxConcurrentFetches: c.MaxConcurrentFetches,
		FetchTimeout:         c.FetchTimeout,
		StopGracePeriod:      c.StopGracePeriod,
		RatePerSecond:        c.FetchRatePerSecond,
	}
}

func (c *EngineConfig) ControllerConfig() ingest.ControllerConfig {
	return ingest.ControllerConfig{
		HistorySize:       c.HistorySize,
		BlockPrivateHosts: c.BlockPrivateHosts,
	}
}

// envLoader applies load results and tracks fallbacks.
type envLoader struct {
	logger   *slog.Logger
	metrics  *WorkerMetrics
	fallback bool
}

func apply[T any](l *envLoader, field string, res config.ConfigLoadResult[T]) T {
	if res.FallbackApplied {
		l.fallback = true
		l.metrics.RecordValidationError(field)
		l.metrics.RecordFallback(field)
		for _, warning := range res.Warnings {
			l.logger.Warn("Configuration fallback applied",
				slog.String("field", field),
				slog.String("warning", warning))
		}
	}
	return res.Value
}

// LoadConfigFromEnv loads the configuration from environment variables.
//
// It never fails: each invalid value falls back to its default with a
// warning and a metric. A combination that is still invalid after the
// per-field fallbacks (e.g. RETRY_MAX_DELAY below RETRY_BASE_DELAY) is
// replaced by the defaults of the fields involved.
//
// Environment variables:
//   - CRON_SCHEDULE, WORKER_TIMEZONE, CYCLE_TIMEOUT
//   - WORKER_HEALTH_PORT, METRICS_PORT
//   - FAILURE_THRESHOLD, RECOVERY_TIMEOUT, HALF_OPEN_ATTEMPTS
//   - MAX_RETRIES, RETRY_BASE_DELAY, RETRY_MAX_DELAY
//   - CACHE_TTL_DAYS, CACHE_MAX_ENTRIES
//   - MAX_CONCURRENT_FETCHES, FETCH_TIMEOUT, STOP_GRACE_PERIOD, FETCH_RATE_PER_SECOND
//   - FEEDS_CONFIG, CACHE_BACKEND, CACHE_PATH, FEEDBACK_PATH, DATABASE_URL
//   - CYCLE_HISTORY_SIZE, BLOCK_PRIVATE_HOSTS
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*EngineConfig, error) {
	cfg := DefaultConfig()
	def := DefaultConfig()
	l := &envLoader{logger: logger, metrics: metrics}

	cfg.CronSchedule = apply(l, "cron_schedule",
		config.LoadEnvWithFallback("CRON_SCHEDULE", def.CronSchedule, config.ValidateCronSchedule))
	cfg.Timezone = apply(l, "timezone",
		config.LoadEnvWithFallback("WORKER_TIMEZONE", def.Timezone, config.ValidateTimezone))
	cfg.CycleTimeout = apply(l, "cycle_timeout",
		config.LoadEnvDuration("CYCLE_TIMEOUT", def.CycleTimeout, config.DurationRange(time.Minute, 4*time.Hour)))
	cfg.HealthPort = apply(l, "health_port",
		config.LoadEnvInt("WORKER_HEALTH_PORT", def.HealthPort, config.IntRange(1024, 65535)))
	cfg.MetricsPort = apply(l, "metrics_port",
		config.LoadEnvInt("METRICS_PORT", def.MetricsPort, config.IntRange(1024, 65535)))

	cfg.FailureThreshold = apply(l, "failure_threshold",
		config.LoadEnvInt("FAILURE_THRESHOLD", def.FailureThreshold, config.IntRange(1, 100)))
	cfg.RecoveryTimeout = apply(l, "recovery_timeout",
		config.LoadEnvDuration("RECOVERY_TIMEOUT", def.RecoveryTimeout, config.ValidatePositiveDuration))
	cfg.HalfOpenAttempts = apply(l, "half_open_attempts",
		config.LoadEnvInt("HALF_OPEN_ATTEMPTS", def.HalfOpenAttempts, config.IntRange(1, 20)))

	cfg.MaxRetries = apply(l, "max_retries",
		config.LoadEnvInt("MAX_RETRIES", def.MaxRetries, config.IntRange(1, 10)))
	cfg.RetryBaseDelay = apply(l, "retry_base_delay",
		config.LoadEnvDuration("RETRY_BASE_DELAY", def.RetryBaseDelay, config.ValidatePositiveDuration))
	cfg.RetryMaxDelay = apply(l, "retry_max_delay",
		config.LoadEnvDuration("RETRY_MAX_DELAY", def.RetryMaxDelay, config.ValidatePositiveDuration))
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		l.fallback = true
		metrics.RecordValidationError("retry_max_delay")
		metrics.RecordFallback("retry_max_delay")
		logger.Warn("Configuration fallback applied",
			slog.String("field", "retry_max_delay"),
			slog.String("warning", fmt.Sprintf("RETRY_MAX_DELAY %v is below RETRY_BASE_DELAY %v, using defaults",
				cfg.RetryMaxDelay, cfg.RetryBaseDelay)))
		cfg.RetryBaseDelay = def.RetryBaseDelay
		cfg.RetryMaxDelay = def.RetryMaxDelay
	}

	cfg.CacheTTLDays = apply(l, "cache_ttl_days",
		config.LoadEnvInt("CACHE_TTL_DAYS", def.CacheTTLDays, config.IntRange(1, 365)))
	cfg.CacheMaxEntries = apply(l, "cache_max_entries",
		config.LoadEnvInt("CACHE_MAX_ENTRIES", def.CacheMaxEntries, config.IntRange(1, 1_000_000)))

	cfg.MaxConcurrentFetches = apply(l, "max_concurrent_fetches",
		config.LoadEnvInt("MAX_CONCURRENT_FETCHES", def.MaxConcurrentFetches, config.IntRange(1, 100)))
	cfg.FetchTimeout = apply(l, "fetch_timeout",
		config.LoadEnvDuration("FETCH_TIMEOUT", def.FetchTimeout, config.ValidatePositiveDuration))
	cfg.StopGracePeriod = apply(l, "stop_grace_period",
		config.LoadEnvDuration("STOP_GRACE_PERIOD", def.StopGracePeriod, config.ValidatePositiveDuration))
	cfg.FetchRatePerSecond = apply(l, "fetch_rate_per_second",
		config.LoadEnvFloat("FETCH_RATE_PER_SECOND", def.FetchRatePerSecond, config.ValidateNonNegativeFloat))

	cfg.FeedsConfig = config.LoadEnvString("FEEDS_CONFIG", def.FeedsConfig)
	cfg.CacheBackend = strings.ToLower(apply(l, "cache_backend",
		config.LoadEnvWithFallback("CACHE_BACKEND", def.CacheBackend,
			config.OneOf(BackendFile, BackendSQLite, BackendPostgres))))
	cfg.CachePath = config.LoadEnvString("CACHE_PATH", def.CachePath)
	cfg.FeedbackPath = config.LoadEnvString("FEEDBACK_PATH", def.FeedbackPath)
	cfg.DatabaseURL = config.LoadEnvString("DATABASE_URL", def.DatabaseURL)
	if cfg.CacheBackend == BackendPostgres && cfg.DatabaseURL == "" {
		l.fallback = true
		metrics.RecordValidationError("cache_backend")
		metrics.RecordFallback("cache_backend")
		logger.Warn("Configuration fallback applied",
			slog.String("field", "cache_backend"),
			slog.String("warning", "CACHE_BACKEND=postgres requires DATABASE_URL, falling back to default 'file'"))
		cfg.CacheBackend = def.CacheBackend
	}

	cfg.HistorySize = apply(l, "history_size",
		config.LoadEnvInt("CYCLE_HISTORY_SIZE", def.HistorySize, config.IntRange(1, 1000)))
	cfg.BlockPrivateHosts = apply(l, "block_private_hosts",
		config.LoadEnvBool("BLOCK_PRIVATE_HOSTS", def.BlockPrivateHosts))

	metrics.SetFallbackActive(l.fallback)
	metrics.RecordLoadTimestamp()

	return &cfg, nil
}
