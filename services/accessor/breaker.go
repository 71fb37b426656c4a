package accessor

import (
	"sync"
	"time"
)

// CircuitState describes a provider's breaker position
type CircuitState int

const (
	// StateClosed: the provider is healthy and may be called
	StateClosed CircuitState = iota

	// StateOpen: the provider failed repeatedly and is skipped until
	// the cooldown has elapsed
	StateOpen

	// StateHalfOpen: the cooldown has elapsed; one probe attempt is
	// allowed through. Success closes the circuit, failure re-opens it.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Default breaker parameters.
const (
	DefaultFailureThreshold = 3
	DefaultCooldown         = 60 * time.Second
)

// circuit tracks consecutive failures for one provider. Created lazily
// on first failure; reset on any success.
type circuit struct {
	consecutiveFailures int
	lastFailure         time.Time
}

// CircuitBreaker maintains per-provider failure state, keyed by provider
// name. All methods are safe for concurrent use.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	circuits  map[string]*circuit
}

// NewCircuitBreaker creates a breaker with the given threshold and cooldown
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		circuits:  make(map[string]*circuit),
	}
}

// State returns the breaker position for a provider
func (b *CircuitBreaker) State(name string) CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.stateLocked(name)
}

func (b *CircuitBreaker) stateLocked(name string) CircuitState {
	c, ok := b.circuits[name]
	if !ok || c.consecutiveFailures < b.threshold {
		return StateClosed
	}
	if b.now().Sub(c.lastFailure) > b.cooldown {
		return StateHalfOpen
	}
	return StateOpen
}

// Allow reports whether a call to the provider may proceed. Closed and
// half-open circuits allow the call; open circuits do not.
func (b *CircuitBreaker) Allow(name string) bool {
	return b.State(name) != StateOpen
}

// RecordSuccess resets the provider's circuit: failures back to zero,
// failure timestamp cleared.
func (b *CircuitBreaker) RecordSuccess(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.circuits, name)
}

// RecordFailure increments the provider's consecutive failure count and
// stamps the failure time. Returns the new count.
func (b *CircuitBreaker) RecordFailure(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[name]
	if !ok {
		c = &circuit{}
		b.circuits[name] = c
	}
	c.consecutiveFailures++
	c.lastFailure = b.now()
	return c.consecutiveFailures
}

// Failures returns the current consecutive failure count for a provider
func (b *CircuitBreaker) Failures(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.circuits[name]; ok {
		return c.consecutiveFailures
	}
	return 0
}

// Snapshot returns the current state of every tracked circuit
func (b *CircuitBreaker) Snapshot() map[string]CircuitInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]CircuitInfo, len(b.circuits))
	for name, c := range b.circuits {
		out[name] = CircuitInfo{
			ConsecutiveFailures: c.consecutiveFailures,
			LastFailure:         c.lastFailure,
			State:               b.stateLocked(name).String(),
		}
	}
	return out
}

// CircuitInfo is a point-in-time view of one provider's circuit
type CircuitInfo struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailure         time.Time `json:"last_failure"`
	State               string    `json:"state"`
}
