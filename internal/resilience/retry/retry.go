// Package retry provides a retry policy with exponential backoff.
// Every attempt result is classified into an Outcome and the loop is driven
// by that classification.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Outcome is the classification of a single attempt.
type Outcome int

const (
	// Success means the attempt produced a usable result.
	Success Outcome = iota
	// Retryable means the failure is transient and another attempt may succeed.
	Retryable
	// Fatal means retrying cannot help; the loop stops immediately.
	Fatal
)

// String returns a string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Config holds the configuration for retry logic.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first one
	MaxAttempts int

	// InitialDelay is the wait after the first failed attempt
	InitialDelay time.Duration

	// MaxDelay caps every computed wait
	MaxDelay time.Duration

	// Multiplier is the exponential growth factor per attempt
	Multiplier float64

	// RateLimitMultiplier is applied on top when the server answered 429
	RateLimitMultiplier float64

	// JitterFraction is the fraction of delay to add as random jitter (0.0 to 1.0)
	JitterFraction float64
}

// DefaultConfig returns a default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:         3,
		InitialDelay:        1 * time.Second,
		MaxDelay:            30 * time.Second,
		Multiplier:          2.0,
		RateLimitMultiplier: 2.0,
		JitterFraction:      0.1,
	}
}

// FeedFetchConfig returns configuration for RSS feed fetching.
// Jitter is off so that the wait after attempt n is exactly 5s*2^n,
// doubled for 429 responses.
func FeedFetchConfig() Config {
	return Config{
		MaxAttempts:         3,
		InitialDelay:        5 * time.Second,
		MaxDelay:            60 * time.Second,
		Multiplier:          2.0,
		RateLimitMultiplier: 2.0,
		JitterFraction:      0,
	}
}

// Delay returns the wait after the failed attempt with zero-based index n.
func (c Config) Delay(n int, err error) time.Duration {
	mult := c.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	d := float64(c.InitialDelay) * math.Pow(mult, float64(n))

	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		rl := c.RateLimitMultiplier
		if rl <= 0 {
			rl = 2.0
		}
		d *= rl
	}
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}

	delay := addJitter(time.Duration(d), c.JitterFraction)
	if c.MaxDelay > 0 && (delay > c.MaxDelay || delay < 0) {
		delay = c.MaxDelay
	}
	return delay
}

// Result describes how a retried operation went.
type Result struct {
	Attempts int
	Outcome  Outcome
	Delays   []time.Duration
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy executes operations according to a Config.
type Policy struct {
	cfg   Config
	sleep SleepFunc
}

// NewPolicy creates a policy that waits on real timers.
func NewPolicy(cfg Config) *Policy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Policy{cfg: cfg, sleep: sleepContext}
}

// WithSleep replaces the wait function, mainly for tests.
func (p *Policy) WithSleep(fn SleepFunc) *Policy {
	cp := *p
	cp.sleep = fn
	return &cp
}

// Config returns the policy configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// Execute runs fn until it succeeds, fails fatally or attempts run out.
// The first attempt starts without delay. fn receives the zero-based attempt
// index. Cancellation of ctx ends the loop with the last attempt error
// wrapped alongside the context error.
func (p *Policy) Execute(ctx context.Context, fn func(ctx context.Context, attempt int) error) (Result, error) {
	var res Result
	var lastErr error

	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.cfg.Delay(attempt-1, lastErr)
			res.Delays = append(res.Delays, delay)
			slog.Debug("operation failed, retrying",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", p.cfg.MaxAttempts),
				slog.Duration("delay", delay),
				slog.Any("error", lastErr))
			if err := p.sleep(ctx, delay); err != nil {
				res.Outcome = Fatal
				return res, fmt.Errorf("retry aborted (%w): %w", err, lastErr)
			}
		}

		res.Attempts++
		err := fn(ctx, attempt)
		outcome := Classify(err)
		if err != nil && ctx.Err() != nil {
			outcome = Fatal
		}

		switch outcome {
		case Success:
			res.Outcome = Success
			return res, nil
		case Fatal:
			res.Outcome = Fatal
			return res, err
		}
		lastErr = err
	}

	res.Outcome = Retryable
	return res, fmt.Errorf("max retry attempts (%d) exceeded: %w", p.cfg.MaxAttempts, lastErr)
}

// retryableError is implemented by errors that know whether they are transient.
type retryableError interface {
	error
	Retryable() bool
}

// Classify maps an attempt error to an Outcome.
// Errors that implement Retryable() decide for themselves (HTTPError does).
// Otherwise network errors and timeouts are retryable; cancellation and
// unrecognized errors such as parse failures are fatal.
func Classify(err error) Outcome {
	if err == nil {
		return Success
	}
	if errors.Is(err, context.Canceled) {
		return Fatal
	}

	var self retryableError
	if errors.As(err, &self) {
		if self.Retryable() {
			return Retryable
		}
		return Fatal
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return Retryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Retryable
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return Retryable
	}

	return Fatal
}

// HTTPError represents a non-2xx HTTP response.
type HTTPError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the status is transient.
func (e *HTTPError) Retryable() bool {
	switch {
	case e.StatusCode >= 500 && e.StatusCode < 600:
		return true
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode == http.StatusRequestTimeout:
		return true
	default:
		return false
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// addJitter adds random jitter to a duration to prevent thundering herd.
func addJitter(duration time.Duration, jitterFraction float64) time.Duration {
	if jitterFraction <= 0 {
		return duration
	}
	if jitterFraction > 1.0 {
		jitterFraction = 1.0
	}
	// #nosec G404 -- jitter does not need cryptographic randomness
	jitter := time.Duration(rand.Float64() * float64(duration) * jitterFraction)
	return duration + jitter
}
