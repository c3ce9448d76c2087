package llm

import (
	"sync"
	"time"
)

// Breaker defaults. A provider that fails breakerMaxFailures times in a
// row is skipped until breakerCooldown elapses, then given one trial.
const (
	breakerMaxFailures = 3
	breakerCooldown    = 30 * time.Second
)

// breaker tracks consecutive failures per provider so a repeatedly
// failing provider stops eating a dispatch (and its latency) on every
// call. Success closes the circuit; a failed trial re-opens it.
type breaker struct {
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time

	mu       sync.Mutex
	failures map[string]int
	openedAt map[string]time.Time
}

func newBreaker(maxFailures int, cooldown time.Duration) *breaker {
	return &breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
		failures:    make(map[string]int),
		openedAt:    make(map[string]time.Time),
	}
}

// allow reports whether the provider may be dispatched: the circuit is
// closed, or the cooldown has elapsed and a trial is due.
func (b *breaker) allow(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures[name] < b.maxFailures {
		return true
	}
	return b.now().Sub(b.openedAt[name]) >= b.cooldown
}

// success closes the circuit for the provider.
func (b *breaker) success(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, name)
	delete(b.openedAt, name)
}

// failure records a consecutive failure, opening (or re-opening) the
// circuit once the threshold is reached.
func (b *breaker) failure(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[name]++
	if b.failures[name] >= b.maxFailures {
		b.openedAt[name] = b.now()
	}
}
