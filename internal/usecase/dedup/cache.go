package dedup

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const shardCount = 32

// Store persists cache entries (article id -> first-seen time).
// Save must replace the stored content atomically: a crash mid-save leaves
// either the previous or the new snapshot, never a mix.
type Store interface {
	Load(ctx context.Context) (map[string]time.Time, error)
	Save(ctx context.Context, entries map[string]time.Time) error
}

// Config bounds the cache.
type Config struct {
	// TTL is how long an id is remembered after it was first seen.
	// Default: 7 days
	TTL time.Duration

	// MaxEntries caps the number of ids kept.
	// Default: 5000
	MaxEntries int

	// Now is the clock Seen checks expiry against. Default: time.Now
	Now func() time.Time
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TTL:        7 * 24 * time.Hour,
		MaxEntries: 5000,
		Now:        time.Now,
	}
}

// PurgeResult reports what a purge removed.
type PurgeResult struct {
	Expired int
	Evicted int
}

// Stats is a point-in-time summary of the cache.
type Stats struct {
	Entries    int           `json:"total_entries"`
	Oldest     time.Time     `json:"oldest_entry,omitempty"`
	Newest     time.Time     `json:"newest_entry,omitempty"`
	TTL        time.Duration `json:"ttl"`
	MaxEntries int           `json:"max_entries"`
}

type shard struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// Cache remembers article ids with their first-seen time.
// Ids are spread over independently locked shards; only eviction takes a
// cache-wide lock.
type Cache struct {
	cfg     Config
	store   Store
	shards  [shardCount]shard
	count   atomic.Int64
	evictMu sync.Mutex
}

// New creates an empty cache. store may be nil for a memory-only cache.
func New(cfg Config, store Store) *Cache {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	c := &Cache{cfg: cfg, store: store}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]time.Time)
	}
	return c
}

// Config returns the cache bounds.
func (c *Cache) Config() Config {
	return c.cfg
}

func (c *Cache) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &c.shards[h.Sum32()%shardCount]
}

// Seen reports whether id was first seen within the TTL. Expired entries
// report false even before a purge removes them.
func (c *Cache) Seen(id string) bool {
	now := c.cfg.Now()
	s := c.shardFor(id)
	s.mu.Lock()
	ts, ok := s.entries[id]
	s.mu.Unlock()
	return ok && !c.expired(ts, now)
}

func (c *Cache) expired(firstSeen, now time.Time) bool {
	return now.Sub(firstSeen) > c.cfg.TTL
}

// Mark records id as seen at ts. Marking an id again within the TTL keeps
// its original first-seen time.
func (c *Cache) Mark(id string, ts time.Time) {
	c.MarkIfNew(id, ts)
}

// MarkIfNew records id and reports whether it was unseen at ts. An entry
// older than the TTL at ts counts as unseen and is replaced. Check and
// insert happen under one shard lock, so exactly one caller wins for a given
// id. When the insert pushes the cache over MaxEntries the oldest entries
// are evicted.
func (c *Cache) MarkIfNew(id string, ts time.Time) bool {
	s := c.shardFor(id)
	s.mu.Lock()
	if prev, ok := s.entries[id]; ok {
		if !c.expired(prev, ts) {
			s.mu.Unlock()
			return false
		}
		s.entries[id] = ts
		s.mu.Unlock()
		return true
	}
	s.entries[id] = ts
	s.mu.Unlock()

	if n := c.count.Add(1); n > int64(c.cfg.MaxEntries) {
		c.evictOverflow()
	}
	return true
}

// Len returns the number of cached ids.
func (c *Cache) Len() int {
	return int(c.count.Load())
}

// PurgeExpired removes entries first seen more than TTL before now, then
// evicts oldest-first until the cache fits MaxEntries.
func (c *Cache) PurgeExpired(now time.Time) PurgeResult {
	c.evictMu.Lock()
	defer c.evictMu.Unlock()

	var res PurgeResult
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for id, ts := range s.entries {
			if now.Sub(ts) > c.cfg.TTL {
				delete(s.entries, id)
				res.Expired++
			}
		}
		s.mu.Unlock()
	}
	c.count.Add(-int64(res.Expired))

	if excess := c.Len() - c.cfg.MaxEntries; excess > 0 {
		res.Evicted = c.evictOldestLocked(excess)
	}
	return res
}

func (c *Cache) evictOverflow() {
	c.evictMu.Lock()
	defer c.evictMu.Unlock()
	if excess := c.Len() - c.cfg.MaxEntries; excess > 0 {
		c.evictOldestLocked(excess)
	}
}

type aged struct {
	id string
	ts time.Time
}

// evictOldestLocked must be called with evictMu held.
func (c *Cache) evictOldestLocked(n int) int {
	all := make([]aged, 0, c.Len())
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for id, ts := range s.entries {
			all = append(all, aged{id: id, ts: ts})
		}
		s.mu.Unlock()
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].ts.Equal(all[j].ts) {
			return all[i].ts.Before(all[j].ts)
		}
		return all[i].id < all[j].id
	})

	evicted := 0
	for _, e := range all {
		if evicted == n {
			break
		}
		s := c.shardFor(e.id)
		s.mu.Lock()
		if ts, ok := s.entries[e.id]; ok && ts.Equal(e.ts) {
			delete(s.entries, e.id)
			evicted++
		}
		s.mu.Unlock()
	}
	c.count.Add(-int64(evicted))
	return evicted
}

// Snapshot copies every entry.
func (c *Cache) Snapshot() map[string]time.Time {
	out := make(map[string]time.Time, c.Len())
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for id, ts := range s.entries {
			out[id] = ts
		}
		s.mu.Unlock()
	}
	return out
}

// Stats summarizes the cache contents.
func (c *Cache) Stats() Stats {
	st := Stats{TTL: c.cfg.TTL, MaxEntries: c.cfg.MaxEntries}
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for _, ts := range s.entries {
			st.Entries++
			if st.Oldest.IsZero() || ts.Before(st.Oldest) {
				st.Oldest = ts
			}
			if ts.After(st.Newest) {
				st.Newest = ts
			}
		}
		s.mu.Unlock()
	}
	return st
}

// Load merges the stored entries into the cache, keeping the earliest
// first-seen time when an id is present in both. It does not purge.
func (c *Cache) Load(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	stored, err := c.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrCacheCorrupt) || errors.Is(err, ErrCacheIO) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: load: %w", ErrCacheIO, err)
	}

	added := 0
	for id, ts := range stored {
		s := c.shardFor(id)
		s.mu.Lock()
		cur, ok := s.entries[id]
		switch {
		case !ok:
			s.entries[id] = ts
			added++
		case ts.Before(cur):
			s.entries[id] = ts
		}
		s.mu.Unlock()
	}
	c.count.Add(int64(added))
	return added, nil
}

// Persist hands a snapshot of the cache to the store.
func (c *Cache) Persist(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Save(ctx, c.Snapshot()); err != nil {
		if errors.Is(err, ErrCacheIO) {
			return err
		}
		return fmt.Errorf("%w: save: %w", ErrCacheIO, err)
	}
	return nil
}
