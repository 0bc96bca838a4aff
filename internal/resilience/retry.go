package resilience

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig controls bounded exponential backoff
type RetryConfig struct {
	MaxRetries int           // additional attempts after the first
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // cap for any single delay
	Jitter     float64       // ±fraction applied to each delay, 0 disables
}

// Retrier runs an operation with bounded exponential backoff.
// Context cancellation interrupts both the operation and the sleep.
type Retrier struct {
	cfg     RetryConfig
	rand    func() float64
	sleep   func(ctx context.Context, d time.Duration) error
	onRetry func(attempt int, delay time.Duration, err error)
}

// NewRetrier creates a retrier
func NewRetrier(cfg RetryConfig) *Retrier {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	return &Retrier{
		cfg:   cfg,
		rand:  rand.Float64,
		sleep: sleepCtx,
	}
}

// OnRetry installs a hook called before each backoff sleep
func (r *Retrier) OnRetry(fn func(attempt int, delay time.Duration, err error)) *Retrier {
	r.onRetry = fn
	return r
}

// Config returns the retry settings
func (r *Retrier) Config() RetryConfig {
	return r.cfg
}

// Backoff returns the delay before retry number attempt (0-based):
// min(BaseDelay * 2^attempt, MaxDelay), with jitter applied and re-capped.
func (r *Retrier) Backoff(attempt int) time.Duration {
	d := r.cfg.BaseDelay
	for i := 0; i < attempt && d < r.cfg.MaxDelay; i++ {
		d *= 2
	}
	if d > r.cfg.MaxDelay {
		d = r.cfg.MaxDelay
	}

	if r.cfg.Jitter > 0 && d > 0 {
		delta := float64(d) * r.cfg.Jitter * (2*r.rand() - 1)
		d = time.Duration(float64(d) + delta)
		if d > r.cfg.MaxDelay {
			d = r.cfg.MaxDelay
		}
		if d < 0 {
			d = 0
		}
	}
	return d
}

// Execute calls op up to MaxRetries+1 times and returns the last error.
// Non-retryable errors and a done context stop the loop early.
func (r *Retrier) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := ExecuteValue(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// ExecuteValue is Execute for operations that return a value
func ExecuteValue[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		val, err := op(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsRetryable(err) || attempt == r.cfg.MaxRetries {
			break
		}

		delay := r.Backoff(attempt)
		if r.onRetry != nil {
			r.onRetry(attempt+1, delay, err)
		}
		if err := r.sleep(ctx, delay); err != nil {
			break
		}
	}

	return zero, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
