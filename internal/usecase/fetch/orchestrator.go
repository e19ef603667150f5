package fetch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"feedwire/internal/domain/entity"
	"feedwire/internal/observability/logging"
	"feedwire/internal/observability/metrics"
	"feedwire/internal/observability/tracing"
	"feedwire/internal/resilience/circuitbreaker"
	"feedwire/internal/resilience/retry"
)

// FeedFetcher performs a single fetch-and-parse attempt for one source.
// Retries and circuit breaking are the orchestrator's job.
type FeedFetcher interface {
	Fetch(ctx context.Context, src entity.FeedSource) ([]entity.Article, error)
}

// Breakers is the per-domain circuit breaker contract used by the orchestrator.
type Breakers interface {
	Allow(domain string) bool
	OnSuccess(domain string)
	OnFailure(domain string)
	Release(domain string)
}

var _ Breakers = (*circuitbreaker.Registry)(nil)

// Feed results as reported in metrics and stats.
const (
	ResultSucceeded      = "succeeded"
	ResultFailed         = "failed"
	ResultCircuitSkipped = "circuit_skipped"
	ResultNotStarted     = "not_started"
)

// Config controls fetch concurrency and cancellation.
type Config struct {
	// MaxConcurrentFetches bounds the number of feeds fetched at once.
	MaxConcurrentFetches int

	// FetchTimeout bounds a single attempt.
	FetchTimeout time.Duration

	// StopGracePeriod is how long in-flight fetches may continue after a stop.
	StopGracePeriod time.Duration

	// RatePerSecond throttles fetch starts across all feeds. Zero disables it.
	RatePerSecond float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentFetches: 10,
		FetchTimeout:         30 * time.Second,
		StopGracePeriod:      10 * time.Second,
	}
}

// FetchStats summarizes one FetchAll call.
type FetchStats struct {
	Attempted      int
	Succeeded      int
	CircuitSkipped int
	Failed         int
	NotStarted     int
	ArticlesFound  int
	Attempts       int
	Errors         map[string]error
}

// Batch is the output of FetchAll. Articles are grouped by source in input
// order and keep each feed's item order.
type Batch struct {
	Articles []entity.Article
	Stats    FetchStats
}

type feedOutcome struct {
	result   string
	articles []entity.Article
	attempts int
	err      error
}

// Orchestrator fetches many feeds concurrently with per-feed isolation.
type Orchestrator struct {
	fetcher  FeedFetcher
	breakers Breakers
	policy   *retry.Policy
	cfg      Config
	limiter  *rate.Limiter
}

// NewOrchestrator wires a fetcher, the breaker registry and a retry policy.
func NewOrchestrator(fetcher FeedFetcher, breakers Breakers, policy *retry.Policy, cfg Config) *Orchestrator {
	if cfg.MaxConcurrentFetches <= 0 {
		cfg.MaxConcurrentFetches = DefaultConfig().MaxConcurrentFetches
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	o := &Orchestrator{
		fetcher:  fetcher,
		breakers: breakers,
		policy:   policy,
		cfg:      cfg,
	}
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return o
}

// FetchAll fetches every source and never fails as a whole.
//
// Cancelling ctx is a stop request: feeds that have not started are skipped
// and counted as not started, while in-flight fetches keep running for
// StopGracePeriod before their own context is cancelled.
func (o *Orchestrator) FetchAll(ctx context.Context, sources []entity.FeedSource) Batch {
	logger := logging.FromContext(ctx)
	start := time.Now()

	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	stopWatch := context.AfterFunc(ctx, func() {
		logger.Info("stop requested, draining in-flight fetches",
			slog.Duration("grace_period", o.cfg.StopGracePeriod))
		time.AfterFunc(o.cfg.StopGracePeriod, cancelWork)
	})
	defer stopWatch()

	outcomes := make([]feedOutcome, len(sources))
	var eg errgroup.Group
	eg.SetLimit(o.cfg.MaxConcurrentFetches)

	for i := range sources {
		if ctx.Err() != nil {
			outcomes[i] = feedOutcome{result: ResultNotStarted}
			continue
		}
		eg.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = feedOutcome{result: ResultNotStarted}
				return nil
			}
			if o.limiter != nil {
				if err := o.limiter.Wait(ctx); err != nil {
					outcomes[i] = feedOutcome{result: ResultNotStarted}
					return nil
				}
			}
			outcomes[i] = o.fetchOne(workCtx, sources[i])
			return nil
		})
	}
	_ = eg.Wait()

	batch := Batch{Stats: FetchStats{Errors: make(map[string]error)}}
	for i, out := range outcomes {
		metrics.RecordFeedResult(out.result)
		batch.Stats.Attempts += out.attempts
		switch out.result {
		case ResultSucceeded:
			batch.Stats.Attempted++
			batch.Stats.Succeeded++
			batch.Stats.ArticlesFound += len(out.articles)
			batch.Articles = append(batch.Articles, out.articles...)
		case ResultFailed:
			batch.Stats.Attempted++
			batch.Stats.Failed++
			batch.Stats.Errors[sources[i].Name] = out.err
		case ResultCircuitSkipped:
			batch.Stats.CircuitSkipped++
			batch.Stats.Errors[sources[i].Name] = out.err
		case ResultNotStarted:
			batch.Stats.NotStarted++
		}
	}

	logger.Info("feed fetch completed",
		slog.Int("sources", len(sources)),
		slog.Int("succeeded", batch.Stats.Succeeded),
		slog.Int("failed", batch.Stats.Failed),
		slog.Int("circuit_skipped", batch.Stats.CircuitSkipped),
		slog.Int("not_started", batch.Stats.NotStarted),
		slog.Int("articles", batch.Stats.ArticlesFound),
		slog.Duration("duration", time.Since(start)))

	return batch
}

// fetchOne runs the retry loop for one source. Every attempt is reported to
// the domain breaker; an attempt the breaker no longer allows ends the loop.
func (o *Orchestrator) fetchOne(ctx context.Context, src entity.FeedSource) feedOutcome {
	logger := logging.FromContext(ctx).With(slog.String("source", src.Name))
	domain := src.Domain()

	if !o.breakers.Allow(domain) {
		logger.Info("circuit open, skipping feed", slog.String("domain", domain))
		return feedOutcome{
			result: ResultCircuitSkipped,
			err:    &FetchError{Source: src.Name, Kind: ErrCircuitOpen},
		}
	}

	ctx, span := tracing.GetTracer().Start(ctx, "fetch.feed")
	span.SetAttributes(
		attribute.String("feed.name", src.Name),
		attribute.String("feed.domain", domain),
	)
	defer span.End()

	start := time.Now()
	var (
		mu       sync.Mutex
		articles []entity.Article
	)

	res, err := o.policy.Execute(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 0 && !o.breakers.Allow(domain) {
			return &FetchError{Source: src.Name, Kind: ErrCircuitOpen}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
		defer cancel()

		items, err := o.fetcher.Fetch(attemptCtx, src)
		if err != nil {
			if ctx.Err() != nil {
				o.breakers.Release(domain)
				metrics.RecordFetchAttempt(retry.Fatal.String())
				return err
			}
			o.breakers.OnFailure(domain)
			metrics.RecordFetchAttempt(retry.Classify(err).String())
			logger.Debug("fetch attempt failed",
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			return err
		}

		o.breakers.OnSuccess(domain)
		metrics.RecordFetchAttempt(retry.Success.String())
		mu.Lock()
		articles = items
		mu.Unlock()
		return nil
	})
	span.SetAttributes(attribute.Int("fetch.attempts", res.Attempts))

	if err != nil {
		fetchErr := o.classifyFailure(ctx, src, err)
		span.RecordError(fetchErr)
		span.SetStatus(codes.Error, KindName(fetchErr))
		logger.Warn("failed to fetch feed",
			slog.String("feed_url", src.URL),
			slog.Int("attempts", res.Attempts),
			slog.String("kind", KindName(fetchErr)),
			slog.Any("error", err))
		return feedOutcome{result: ResultFailed, attempts: res.Attempts, err: fetchErr}
	}

	metrics.RecordFeedFetch(time.Since(start), len(articles))
	logger.Debug("feed fetched",
		slog.Int("articles", len(articles)),
		slog.Int("attempts", res.Attempts),
		slog.Duration("duration", time.Since(start)))
	return feedOutcome{result: ResultSucceeded, articles: articles, attempts: res.Attempts}
}

func (o *Orchestrator) classifyFailure(ctx context.Context, src entity.FeedSource, err error) *FetchError {
	if ctx.Err() != nil {
		return &FetchError{Source: src.Name, Kind: ErrCancelled, Err: err}
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return &FetchError{Source: src.Name, Kind: fetchErr.Kind, Err: err}
	}
	var httpErr *retry.HTTPError
	if errors.As(err, &httpErr) && !httpErr.Retryable() {
		return &FetchError{Source: src.Name, Kind: ErrPermanentFetch, Err: err}
	}
	if retry.Classify(err) == retry.Fatal {
		return &FetchError{Source: src.Name, Kind: ErrParse, Err: err}
	}
	return &FetchError{Source: src.Name, Kind: ErrTransientFetch, Err: err}
}
