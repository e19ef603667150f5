package circuitbreaker

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// State represents the state of a per-domain circuit breaker.
type State int

const (
	// StateClosed is normal operation; calls are allowed.
	StateClosed State = iota

	// StateOpen rejects every call until the recovery timeout has elapsed
	// since the last recorded failure.
	StateOpen

	// StateHalfOpen admits a bounded number of trial calls.
	StateHalfOpen
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Clock provides an abstraction for time operations to enable testing.
type Clock interface {
	Now() time.Time
}

// SystemClock is a Clock implementation that uses the system time.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// DomainConfig configures every breaker created by a Registry.
type DomainConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	// Default: 5
	FailureThreshold int

	// RecoveryTimeout is measured from the last failure before a trial is allowed.
	// Default: 60 seconds
	RecoveryTimeout time.Duration

	// HalfOpenAttempts caps concurrent trial calls while half-open.
	// Default: 2
	HalfOpenAttempts int

	// Clock defaults to SystemClock.
	Clock Clock

	// OnStateChange is invoked after every transition, outside the domain lock.
	OnStateChange func(domain string, from, to State)
}

// DefaultDomainConfig returns the production defaults.
func DefaultDomainConfig() DomainConfig {
	return DomainConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		HalfOpenAttempts: 2,
	}
}

// DomainStats is a point-in-time view of one domain's breaker.
type DomainStats struct {
	Domain              string    `json:"domain"`
	State               State     `json:"-"`
	StateName           string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
	LastStateChange     time.Time `json:"last_state_change"`
}

// Registry owns the breaker of every remote domain seen so far.
// Breakers are created on first use; each one is guarded by its own mutex so
// unrelated domains never contend.
type Registry struct {
	cfg      DomainConfig
	breakers sync.Map // domain -> *domainBreaker
}

// NewRegistry creates an empty registry. Zero config values take the defaults.
func NewRegistry(cfg DomainConfig) *Registry {
	def := DefaultDomainConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = def.RecoveryTimeout
	}
	if cfg.HalfOpenAttempts <= 0 {
		cfg.HalfOpenAttempts = def.HalfOpenAttempts
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	return &Registry{cfg: cfg}
}

type domainBreaker struct {
	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	lastFailure         time.Time
	lastStateChange     time.Time
	trials              int
}

type transition struct {
	from, to State
	failures int
}

func (r *Registry) get(domain string) *domainBreaker {
	if b, ok := r.breakers.Load(domain); ok {
		return b.(*domainBreaker)
	}
	b, _ := r.breakers.LoadOrStore(domain, &domainBreaker{lastStateChange: r.cfg.Clock.Now()})
	return b.(*domainBreaker)
}

// Allow reports whether a call to domain may proceed.
// An open breaker moves to half-open here, lazily, once the recovery timeout
// has passed. While half-open each true result occupies a trial slot that is
// freed by OnSuccess, OnFailure or Release.
func (r *Registry) Allow(domain string) bool {
	b := r.get(domain)
	now := r.cfg.Clock.Now()

	b.mu.Lock()
	var tr *transition
	if b.state == StateOpen && now.Sub(b.lastFailure) >= r.cfg.RecoveryTimeout {
		tr = b.moveTo(StateHalfOpen, now)
		b.trials = 0
	}
	allowed := true
	switch b.state {
	case StateOpen:
		allowed = false
	case StateHalfOpen:
		if b.trials < r.cfg.HalfOpenAttempts {
			b.trials++
		} else {
			allowed = false
		}
	}
	b.mu.Unlock()

	r.notify(domain, tr)
	return allowed
}

// OnSuccess records a successful call. A half-open breaker closes on the
// first success.
func (r *Registry) OnSuccess(domain string) {
	b := r.get(domain)
	now := r.cfg.Clock.Now()

	b.mu.Lock()
	var tr *transition
	switch b.state {
	case StateClosed:
		b.consecutiveFailures = 0
	case StateHalfOpen:
		b.consecutiveFailures = 0
		b.trials = 0
		tr = b.moveTo(StateClosed, now)
	}
	b.mu.Unlock()

	r.notify(domain, tr)
}

// OnFailure records a failed call. The breaker opens when consecutive
// failures reach the threshold, or immediately when half-open. Every failure
// refreshes the last-failure time, which restarts the recovery timeout.
func (r *Registry) OnFailure(domain string) {
	b := r.get(domain)
	now := r.cfg.Clock.Now()

	b.mu.Lock()
	var tr *transition
	b.consecutiveFailures++
	b.lastFailure = now
	switch b.state {
	case StateClosed:
		if b.consecutiveFailures >= r.cfg.FailureThreshold {
			tr = b.moveTo(StateOpen, now)
		}
	case StateHalfOpen:
		b.trials = 0
		tr = b.moveTo(StateOpen, now)
	}
	b.mu.Unlock()

	r.notify(domain, tr)
}

// Release frees a half-open trial slot for a call that was allowed but never
// completed, for example because the cycle was cancelled. State is unchanged.
func (r *Registry) Release(domain string) {
	b := r.get(domain)
	b.mu.Lock()
	if b.state == StateHalfOpen && b.trials > 0 {
		b.trials--
	}
	b.mu.Unlock()
}

// State returns the current state for domain without triggering recovery.
func (r *Registry) State(domain string) State {
	b := r.get(domain)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces domain back to closed. Useful for manual intervention.
func (r *Registry) Reset(domain string) {
	b := r.get(domain)
	now := r.cfg.Clock.Now()

	b.mu.Lock()
	tr := b.moveTo(StateClosed, now)
	b.consecutiveFailures = 0
	b.trials = 0
	b.lastFailure = time.Time{}
	b.mu.Unlock()

	r.notify(domain, tr)
}

// Snapshot returns the stats of every known domain, sorted by domain.
func (r *Registry) Snapshot() []DomainStats {
	var out []DomainStats
	r.breakers.Range(func(key, value any) bool {
		b := value.(*domainBreaker)
		b.mu.Lock()
		out = append(out, DomainStats{
			Domain:              key.(string),
			State:               b.state,
			StateName:           b.state.String(),
			ConsecutiveFailures: b.consecutiveFailures,
			LastFailure:         b.lastFailure,
			LastStateChange:     b.lastStateChange,
		})
		b.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

// moveTo must be called with b.mu held. It returns nil when the state does
// not actually change.
func (b *domainBreaker) moveTo(to State, now time.Time) *transition {
	if b.state == to {
		return nil
	}
	tr := &transition{from: b.state, to: to, failures: b.consecutiveFailures}
	b.state = to
	b.lastStateChange = now
	return tr
}

func (r *Registry) notify(domain string, tr *transition) {
	if tr == nil {
		return
	}
	slog.Warn("circuit breaker state changed",
		slog.String("domain", domain),
		slog.String("previous_state", tr.from.String()),
		slog.String("new_state", tr.to.String()),
		slog.Int("consecutive_failures", tr.failures),
		slog.Duration("recovery_timeout", r.cfg.RecoveryTimeout))
	if r.cfg.OnStateChange != nil {
		r.cfg.OnStateChange(domain, tr.from, tr.to)
	}
}
