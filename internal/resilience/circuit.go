// Package resilience provides circuit breakers and bounded retry for calls to
// external data sources.
package resilience

import (
	"sync"
	"time"
)

// State is the circuit breaker state
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BreakerConfig controls one breaker
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration

	// OnStateChange is called after a transition, outside the breaker lock
	OnStateChange func(name string, from, to State)
}

// Snapshot is a copy of a breaker's state for reporting
type Snapshot struct {
	Name             string        `json:"name"`
	State            State         `json:"state"`
	FailureCount     int           `json:"failure_count"`
	Threshold        int           `json:"threshold"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout"`
	OpenedAt         time.Time     `json:"opened_at,omitzero"`
	ProbeOutstanding bool          `json:"probe_outstanding"`
}

// CircuitBreaker guards one data source.
//
//	CLOSED    --failures >= threshold-->  OPEN
//	OPEN      --recovery timeout-->       HALF_OPEN (one probe granted)
//	HALF_OPEN --success-->                CLOSED
//	HALF_OPEN --failure-->                OPEN
//
// A probe that never reports back is re-granted after another recovery timeout.
// Safe for concurrent use.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig

	mu           sync.Mutex
	state        State
	failureCount int
	openedAt     time.Time
	probeAt      time.Time
	probing      bool

	now func() time.Time
}

// NewCircuitBreaker creates a closed breaker
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	return &CircuitBreaker{
		name:  name,
		cfg:   cfg,
		state: Closed,
		now:   time.Now,
	}
}

// Name returns the guarded source name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Allow reports whether a call may go through.
// In HALF_OPEN exactly one caller gets true until the probe reports back.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	now := cb.now()
	from := cb.state
	allowed := false

	switch cb.state {
	case Closed:
		allowed = true
	case Open:
		if now.Sub(cb.openedAt) >= cb.cfg.RecoveryTimeout {
			cb.state = HalfOpen
			cb.probing = true
			cb.probeAt = now
			allowed = true
		}
	case HalfOpen:
		if !cb.probing || now.Sub(cb.probeAt) >= cb.cfg.RecoveryTimeout {
			cb.probing = true
			cb.probeAt = now
			allowed = true
		}
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return allowed
}

// RecordSuccess resets the failure count and closes a half-open breaker
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	from := cb.state
	cb.failureCount = 0
	cb.probing = false
	if cb.state == HalfOpen {
		cb.state = Closed
		cb.openedAt = time.Time{}
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

// RecordFailure counts a failure; opens the breaker at the threshold or on a failed probe
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	from := cb.state
	cb.failureCount++
	switch cb.state {
	case Closed:
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.state = Open
			cb.openedAt = cb.now()
		}
	case HalfOpen:
		cb.state = Open
		cb.openedAt = cb.now()
		cb.probing = false
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

// State returns the current state without side effects
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot copies the breaker state
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Snapshot{
		Name:             cb.name,
		State:            cb.state,
		FailureCount:     cb.failureCount,
		Threshold:        cb.cfg.FailureThreshold,
		RecoveryTimeout:  cb.cfg.RecoveryTimeout,
		OpenedAt:         cb.openedAt,
		ProbeOutstanding: cb.probing,
	}
}

// Reset forces the breaker closed (manual recovery)
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = Closed
	cb.failureCount = 0
	cb.probing = false
	cb.openedAt = time.Time{}
	cb.mu.Unlock()

	cb.notify(from, Closed)
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}
