package resilience

import (
	"sort"
	"sync"
	"time"
)

// PolicyFunc resolves the breaker settings for a source name
type PolicyFunc func(name string) BreakerConfig

// Breakers owns one CircuitBreaker per source for the process lifetime.
// Breakers are created lazily from the policy on first use.
type Breakers struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	policy   PolicyFunc
	onChange func(name string, from, to State)
	now      func() time.Time
}

// NewBreakers creates a registry. A nil policy falls back to 3 failures / 60s.
func NewBreakers(policy PolicyFunc) *Breakers {
	if policy == nil {
		policy = func(string) BreakerConfig {
			return BreakerConfig{FailureThreshold: 3, RecoveryTimeout: 60 * time.Second}
		}
	}
	return &Breakers{
		breakers: make(map[string]*CircuitBreaker),
		policy:   policy,
		now:      time.Now,
	}
}

// OnStateChange installs a transition hook applied to every breaker created afterwards
func (b *Breakers) OnStateChange(fn func(name string, from, to State)) *Breakers {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
	return b
}

// Get returns the breaker for name, creating it on first use
func (b *Breakers) Get(name string) *CircuitBreaker {
	b.mu.RLock()
	cb, ok := b.breakers[name]
	b.mu.RUnlock()
	if ok {
		return cb
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[name]; ok {
		return cb
	}

	cfg := b.policy(name)
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = b.onChange
	}
	cb = NewCircuitBreaker(name, cfg)
	cb.now = b.now
	b.breakers[name] = cb
	return cb
}

// Snapshots returns every breaker's state sorted by name
func (b *Breakers) Snapshots() []Snapshot {
	b.mu.RLock()
	list := make([]*CircuitBreaker, 0, len(b.breakers))
	for _, cb := range b.breakers {
		list = append(list, cb)
	}
	b.mu.RUnlock()

	out := make([]Snapshot, 0, len(list))
	for _, cb := range list {
		out = append(out, cb.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
