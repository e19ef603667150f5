package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedwire/internal/domain/entity"
	"feedwire/internal/resilience/circuitbreaker"
	"feedwire/internal/resilience/retry"
)

type fetchFunc func(ctx context.Context, src entity.FeedSource, call int) ([]entity.Article, error)

type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	fn    fetchFunc
}

func newFakeFetcher(fn fetchFunc) *fakeFetcher {
	return &fakeFetcher{calls: make(map[string]int), fn: fn}
}

func (f *fakeFetcher) Fetch(ctx context.Context, src entity.FeedSource) ([]entity.Article, error) {
	f.mu.Lock()
	call := f.calls[src.Name]
	f.calls[src.Name]++
	f.mu.Unlock()
	return f.fn(ctx, src, call)
}

func (f *fakeFetcher) callsFor(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func makeSources(n int) []entity.FeedSource {
	out := make([]entity.FeedSource, n)
	for i := range out {
		out[i] = entity.FeedSource{
			Name:     fmt.Sprintf("feed-%02d", i),
			URL:      fmt.Sprintf("https://feed%02d.example.com/rss", i),
			Category: entity.DefaultCategory,
		}
	}
	return out
}

func articlesFor(src entity.FeedSource, n int) []entity.Article {
	out := make([]entity.Article, n)
	for i := range out {
		link := fmt.Sprintf("%s/item/%d", src.URL, i)
		out[i] = entity.Article{
			ID:         entity.ArticleID(link, src.Name),
			Title:      src.Name,
			Link:       link,
			SourceName: src.Name,
			Category:   src.Category,
		}
	}
	return out
}

func noWaitPolicy() *retry.Policy {
	return retry.NewPolicy(retry.FeedFetchConfig()).WithSleep(func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	})
}

func transient(src entity.FeedSource, status int) error {
	return &FetchError{Source: src.Name, Kind: ErrTransientFetch, Err: &retry.HTTPError{StatusCode: status}}
}

func TestFetchAll_RespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	fetcher := newFakeFetcher(func(ctx context.Context, src entity.FeedSource, _ int) ([]entity.Article, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		inFlight.Add(-1)
		return articlesFor(src, 2), nil
	})

	sources := makeSources(11)
	o := NewOrchestrator(fetcher, circuitbreaker.NewRegistry(circuitbreaker.DomainConfig{}), noWaitPolicy(),
		Config{MaxConcurrentFetches: 4, FetchTimeout: time.Second, StopGracePeriod: time.Second})

	batch := o.FetchAll(context.Background(), sources)

	assert.LessOrEqual(t, peak.Load(), int32(4))
	assert.Equal(t, 11, batch.Stats.Succeeded)
	assert.Equal(t, 11, batch.Stats.Attempted)
	assert.Equal(t, 22, batch.Stats.ArticlesFound)
	require.Len(t, batch.Articles, 22)

	// grouped by source in input order, item order preserved
	for i, a := range batch.Articles {
		src := sources[i/2]
		assert.Equal(t, src.Name, a.SourceName)
		assert.Equal(t, fmt.Sprintf("%s/item/%d", src.URL, i%2), a.Link)
	}
}

func TestFetchAll_FailingFeedIsIsolated(t *testing.T) {
	sources := makeSources(3)
	fetcher := newFakeFetcher(func(ctx context.Context, src entity.FeedSource, _ int) ([]entity.Article, error) {
		if src.Name == "feed-01" {
			return nil, transient(src, 503)
		}
		return articlesFor(src, 1), nil
	})
	o := NewOrchestrator(fetcher, circuitbreaker.NewRegistry(circuitbreaker.DomainConfig{}), noWaitPolicy(), DefaultConfig())

	batch := o.FetchAll(context.Background(), sources)

	assert.Equal(t, 2, batch.Stats.Succeeded)
	assert.Equal(t, 1, batch.Stats.Failed)
	assert.Equal(t, 3, fetcher.callsFor("feed-01"))
	assert.Equal(t, 5, batch.Stats.Attempts)
	require.Len(t, batch.Articles, 2)

	err := batch.Stats.Errors["feed-01"]
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransientFetch)
	assert.Equal(t, "transient", KindName(err))
}

func TestFetchAll_PermanentErrorNotRetried(t *testing.T) {
	sources := makeSources(1)
	fetcher := newFakeFetcher(func(ctx context.Context, src entity.FeedSource, _ int) ([]entity.Article, error) {
		return nil, &FetchError{Source: src.Name, Kind: ErrPermanentFetch, Err: &retry.HTTPError{StatusCode: 404}}
	})
	o := NewOrchestrator(fetcher, circuitbreaker.NewRegistry(circuitbreaker.DomainConfig{}), noWaitPolicy(), DefaultConfig())

	batch := o.FetchAll(context.Background(), sources)

	assert.Equal(t, 1, fetcher.callsFor("feed-00"))
	assert.Equal(t, 1, batch.Stats.Failed)
	assert.Equal(t, "permanent", KindName(batch.Stats.Errors["feed-00"]))
}

func TestFetchAll_ParseErrorNotRetried(t *testing.T) {
	sources := makeSources(1)
	fetcher := newFakeFetcher(func(ctx context.Context, src entity.FeedSource, _ int) ([]entity.Article, error) {
		return nil, &FetchError{Source: src.Name, Kind: ErrParse, Err: errors.New("failed to detect feed type")}
	})
	o := NewOrchestrator(fetcher, circuitbreaker.NewRegistry(circuitbreaker.DomainConfig{}), noWaitPolicy(), DefaultConfig())

	batch := o.FetchAll(context.Background(), sources)

	assert.Equal(t, 1, fetcher.callsFor("feed-00"))
	assert.ErrorIs(t, batch.Stats.Errors["feed-00"], ErrParse)
}

func TestFetchAll_OpenCircuitSkipsFeed(t *testing.T) {
	sources := makeSources(2)
	registry := circuitbreaker.NewRegistry(circuitbreaker.DomainConfig{FailureThreshold: 1})
	registry.OnFailure(sources[0].Domain())

	fetcher := newFakeFetcher(func(ctx context.Context, src entity.FeedSource, _ int) ([]entity.Article, error) {
		return articlesFor(src, 1), nil
	})
	o := NewOrchestrator(fetcher, registry, noWaitPolicy(), DefaultConfig())

	batch := o.FetchAll(context.Background(), sources)

	assert.Equal(t, 0, fetcher.callsFor("feed-00"))
	assert.Equal(t, 1, batch.Stats.CircuitSkipped)
	assert.Equal(t, 1, batch.Stats.Succeeded)
	assert.Equal(t, 1, batch.Stats.Attempted)
	assert.ErrorIs(t, batch.Stats.Errors["feed-00"], ErrCircuitOpen)
}

func TestFetchAll_RateLimitedFeedOpensCircuit(t *testing.T) {
	sources := makeSources(1)
	var slept []time.Duration
	policy := retry.NewPolicy(retry.FeedFetchConfig()).WithSleep(func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})
	registry := circuitbreaker.NewRegistry(circuitbreaker.DomainConfig{FailureThreshold: 3})
	fetcher := newFakeFetcher(func(ctx context.Context, src entity.FeedSource, _ int) ([]entity.Article, error) {
		return nil, transient(src, 429)
	})
	o := NewOrchestrator(fetcher, registry, policy, DefaultConfig())

	batch := o.FetchAll(context.Background(), sources)

	assert.Equal(t, 3, fetcher.callsFor("feed-00"))
	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second}, slept)
	assert.Equal(t, circuitbreaker.StateOpen, registry.State(sources[0].Domain()))

	// next cycle skips the domain without calling the fetcher
	batch = o.FetchAll(context.Background(), sources)
	assert.Equal(t, 1, batch.Stats.CircuitSkipped)
	assert.Equal(t, 3, fetcher.callsFor("feed-00"))
}

func TestFetchAll_CircuitOpeningMidRetryStopsLoop(t *testing.T) {
	sources := makeSources(1)
	registry := circuitbreaker.NewRegistry(circuitbreaker.DomainConfig{FailureThreshold: 2})
	fetcher := newFakeFetcher(func(ctx context.Context, src entity.FeedSource, _ int) ([]entity.Article, error) {
		return nil, transient(src, 503)
	})
	o := NewOrchestrator(fetcher, registry, noWaitPolicy(), DefaultConfig())

	batch := o.FetchAll(context.Background(), sources)

	assert.Equal(t, 2, fetcher.callsFor("feed-00"))
	assert.Equal(t, 1, batch.Stats.Failed)
	assert.ErrorIs(t, batch.Stats.Errors["feed-00"], ErrCircuitOpen)
}

func TestFetchAll_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := newFakeFetcher(func(ctx context.Context, src entity.FeedSource, _ int) ([]entity.Article, error) {
		return articlesFor(src, 1), nil
	})
	o := NewOrchestrator(fetcher, circuitbreaker.NewRegistry(circuitbreaker.DomainConfig{}), noWaitPolicy(), DefaultConfig())

	batch := o.FetchAll(ctx, makeSources(5))

	assert.Equal(t, 5, batch.Stats.NotStarted)
	assert.Equal(t, 0, batch.Stats.Attempted)
	assert.Empty(t, batch.Articles)
}

func TestFetchAll_StopCancelsInFlightAfterGrace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	started := make(chan struct{})

	sources := makeSources(3)
	registry := circuitbreaker.NewRegistry(circuitbreaker.DomainConfig{FailureThreshold: 1})
	fetcher := newFakeFetcher(func(ctx context.Context, src entity.FeedSource, _ int) ([]entity.Article, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	grace := 30 * time.Millisecond
	o := NewOrchestrator(fetcher, registry, noWaitPolicy(),
		Config{MaxConcurrentFetches: 1, FetchTimeout: time.Minute, StopGracePeriod: grace})

	go func() {
		<-started
		cancel()
	}()
	begin := time.Now()
	batch := o.FetchAll(ctx, sources)

	assert.GreaterOrEqual(t, time.Since(begin), grace)
	assert.Equal(t, 1, batch.Stats.Failed)
	assert.Equal(t, 2, batch.Stats.NotStarted)
	assert.ErrorIs(t, batch.Stats.Errors["feed-00"], ErrCancelled)
	// a cancelled attempt is not a domain failure
	assert.Equal(t, circuitbreaker.StateClosed, registry.State(sources[0].Domain()))
}

func TestFetchAll_InFlightFinishesWithinGrace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	started := make(chan struct{})

	sources := makeSources(2)
	fetcher := newFakeFetcher(func(ctx context.Context, src entity.FeedSource, _ int) ([]entity.Article, error) {
		close(started)
		time.Sleep(20 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return articlesFor(src, 3), nil
	})
	o := NewOrchestrator(fetcher, circuitbreaker.NewRegistry(circuitbreaker.DomainConfig{}), noWaitPolicy(),
		Config{MaxConcurrentFetches: 1, FetchTimeout: time.Minute, StopGracePeriod: time.Second})

	go func() {
		<-started
		cancel()
	}()
	batch := o.FetchAll(ctx, sources)

	assert.Equal(t, 1, batch.Stats.Succeeded)
	assert.Equal(t, 1, batch.Stats.NotStarted)
	assert.Len(t, batch.Articles, 3)
}

func TestFetchAll_RateLimiter(t *testing.T) {
	fetcher := newFakeFetcher(func(ctx context.Context, src entity.FeedSource, _ int) ([]entity.Article, error) {
		return nil, nil
	})
	o := NewOrchestrator(fetcher, circuitbreaker.NewRegistry(circuitbreaker.DomainConfig{}), noWaitPolicy(),
		Config{MaxConcurrentFetches: 4, RatePerSecond: 50})

	begin := time.Now()
	batch := o.FetchAll(context.Background(), makeSources(6))

	assert.Equal(t, 6, batch.Stats.Succeeded)
	// burst of 50 lets all six through without measurable throttling
	assert.Less(t, time.Since(begin), time.Second)
}
