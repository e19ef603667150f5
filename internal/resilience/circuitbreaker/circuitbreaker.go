// Package circuitbreaker provides circuit breakers for the ingestion engine.
// Feed hosts get lightweight per-domain breakers (see Registry); slower shared
// dependencies such as cache persistence are guarded by github.com/sony/gobreaker.
package circuitbreaker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrStoreUnavailable is returned while a guarded dependency's circuit is
// open or its half-open probe slots are taken.
var ErrStoreUnavailable = errors.New("cache store unavailable")

// Config tunes a gobreaker-backed breaker for a shared dependency.
type Config struct {
	// Name identifies the breaker in logs.
	Name string

	// ConsecutiveFailures trips the circuit.
	ConsecutiveFailures uint32

	// OpenTimeout is how long calls are rejected before a probe is let through.
	OpenTimeout time.Duration

	// HalfOpenProbes is the number of calls allowed while half-open.
	HalfOpenProbes uint32

	// IsSuccessful decides which errors count against the circuit. Errors it
	// accepts are returned to the caller but never trip the breaker.
	// Default: only nil is a success
	IsSuccessful func(err error) bool
}

// StoreConfig opens after 3 consecutive persistence failures and probes
// again after 5 minutes.
func StoreConfig() Config {
	return Config{
		Name:                "cache-store",
		ConsecutiveFailures: 3,
		OpenTimeout:         5 * time.Minute,
		HalfOpenProbes:      1,
	}
}

type breaker struct {
	cb *gobreaker.CircuitBreaker
}

func newBreaker(cfg Config) *breaker {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 1
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenProbes,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: cfg.IsSuccessful,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("dependency circuit state changed",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}
	return &breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// do runs fn through the breaker. Rejections wrap ErrStoreUnavailable.
func (b *breaker) do(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w: %w", b.cb.Name(), ErrStoreUnavailable, err)
	}
	return err
}

func (b *breaker) state() gobreaker.State {
	return b.cb.State()
}
