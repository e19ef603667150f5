package circuitbreaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// SeenStore is the persistence contract of the dedup cache.
type SeenStore interface {
	Load(ctx context.Context) (map[string]time.Time, error)
	Save(ctx context.Context, entries map[string]time.Time) error
}

// GuardedStore wraps a SeenStore with circuit breaker protection so a dead
// database or disk does not stall every cycle on its full timeout.
type GuardedStore struct {
	b     *breaker
	store SeenStore
}

// NewGuardedStore wraps store with a breaker built from cfg. Most callers
// pass StoreConfig().
func NewGuardedStore(store SeenStore, cfg Config) *GuardedStore {
	return &GuardedStore{b: newBreaker(cfg), store: store}
}

// Load reads the persisted entries through the breaker.
func (g *GuardedStore) Load(ctx context.Context) (map[string]time.Time, error) {
	var entries map[string]time.Time
	err := g.b.do(func() error {
		var err error
		entries, err = g.store.Load(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Save writes the entries through the breaker.
func (g *GuardedStore) Save(ctx context.Context, entries map[string]time.Time) error {
	return g.b.do(func() error {
		return g.store.Save(ctx, entries)
	})
}

// State returns the current state of the store circuit.
func (g *GuardedStore) State() gobreaker.State {
	return g.b.state()
}
