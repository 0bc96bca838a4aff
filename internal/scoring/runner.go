package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"github.com/wonny/zion/internal/cache"
	"github.com/wonny/zion/internal/contracts"
	"github.com/wonny/zion/internal/data"
	"github.com/wonny/zion/pkg/logger"
)

// Unit outcomes reported to the Observer
const (
	OutcomeSuccess    = "success"
	OutcomeCacheHit   = "cache_hit"
	OutcomeNoData     = "no_data"
	OutcomeError      = "error"
	OutcomePanic      = "panic"
	OutcomeCacheError = "cache_error"
)

// Observer receives exactly one observation per Run call
type Observer interface {
	ObserveUnit(unit, category, outcome string, duration time.Duration)
}

// Runner invokes units with result caching and failure isolation.
// A unit can never crash the caller: panics, errors and malformed output all
// come back as a normalized ERROR / NO_DATA result.
type Runner struct {
	cache    *cache.ResultCache
	ttl      time.Duration
	logger   *logger.Logger
	observer Observer
}

// NewRunner creates a runner caching clean results for ttl
func NewRunner(c *cache.ResultCache, ttl time.Duration, log *logger.Logger) *Runner {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Runner{
		cache:  c,
		ttl:    ttl,
		logger: log.Component("unit_runner"),
	}
}

// WithObserver attaches a metrics observer
func (r *Runner) WithObserver(o Observer) *Runner {
	r.observer = o
	return r
}

// Run returns the unit's result for symbol.
// The error is non-nil only when the cache could not be read; unit failures
// are reported inside the result.
func (r *Runner) Run(ctx context.Context, reg Registration, symbol string, prior Prior) (contracts.UnitResult, error) {
	start := time.Now()
	name := reg.Name()
	key := cache.UnitKey(name, symbol, reg.Discriminator)

	var cached contracts.UnitResult
	found, err := r.cache.Get(ctx, key, &cached)
	if errors.Is(err, cache.ErrCorrupt) {
		// 손상된 항목은 miss로 취급하고 재계산
		r.logger.WithError(err).WithField("key", key).Warn("discarding corrupt unit cache entry")
		if derr := r.cache.Delete(ctx, key); derr != nil {
			r.logger.WithError(derr).WithField("key", key).Warn("unit cache delete failed")
		}
		found, err = false, nil
	}
	if err != nil {
		r.observe(reg, OutcomeCacheError, start)
		return contracts.UnitResult{}, fmt.Errorf("unit %s: cache read: %w", name, err)
	}
	if found {
		r.observe(reg, OutcomeCacheHit, start)
		return cached, nil
	}

	result, outcome := r.invoke(ctx, reg, symbol, prior)

	// 정상 결과만, 호출자 컨텍스트가 살아 있을 때만 캐시
	if result.Cacheable() && ctx.Err() == nil {
		ttl := r.ttl
		if reg.TTL > 0 {
			ttl = reg.TTL
		}
		if err := r.cache.Set(ctx, key, result, ttl); err != nil {
			r.logger.WithError(err).WithField("key", key).Warn("unit cache write failed")
		}
	}

	r.observe(reg, outcome, start)
	return result, nil
}

// invoke calls the unit and normalizes whatever comes back
func (r *Runner) invoke(ctx context.Context, reg Registration, symbol string, prior Prior) (result contracts.UnitResult, outcome string) {
	name := reg.Name()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(map[string]interface{}{
				"unit":   name,
				"symbol": symbol,
				"panic":  fmt.Sprint(rec),
				"stack":  string(debug.Stack()),
			}).Error("unit panicked")
			result = contracts.ErrorResult(symbol, name, contracts.ErrorKindUnhandled, fmt.Sprintf("panic: %v", rec))
			outcome = OutcomePanic
		}
	}()

	raw, err := reg.Unit.Score(ctx, symbol, prior)
	if err != nil {
		kind := classify(ctx, err)
		r.logger.WithFields(map[string]interface{}{
			"unit":       name,
			"symbol":     symbol,
			"error_kind": string(kind),
			"error":      err.Error(),
		}).Warn("unit failed")

		if kind == contracts.ErrorKindNoData {
			return contracts.ErrorResult(symbol, name, kind, err.Error()), OutcomeNoData
		}
		return contracts.ErrorResult(symbol, name, kind, err.Error()), OutcomeError
	}

	result, err = normalize(raw, symbol, name)
	if err != nil {
		r.logger.WithField("unit", name).WithError(err).Warn("unit returned malformed result")
		return contracts.ErrorResult(symbol, name, contracts.ErrorKindMalformedResult, err.Error()), OutcomeError
	}
	if result.Failed() {
		if result.Verdict == contracts.VerdictNoData {
			return result, OutcomeNoData
		}
		return result, OutcomeError
	}
	return result, OutcomeSuccess
}

func classify(ctx context.Context, err error) contracts.ErrorKind {
	switch {
	case data.IsNoData(err):
		return contracts.ErrorKindNoData
	case errors.Is(err, ErrInvalidInput):
		return contracts.ErrorKindInvalidInput
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return contracts.ErrorKindCanceled
	default:
		return contracts.ErrorKindUnitError
	}
}

// normalize enforces the UnitResult invariants on a unit's own output
func normalize(r contracts.UnitResult, symbol, name string) (contracts.UnitResult, error) {
	if r.Verdict == "" {
		return r, fmt.Errorf("empty verdict")
	}
	if math.IsNaN(r.Confidence) {
		return r, fmt.Errorf("confidence is NaN")
	}
	if r.Score != nil && math.IsNaN(*r.Score) {
		return r, fmt.Errorf("score is NaN")
	}

	r.Confidence = contracts.ClampConfidence(r.Confidence)
	if r.Score == nil {
		score := r.Confidence
		r.Score = &score
	}
	if r.Symbol == "" {
		r.Symbol = symbol
	}
	if r.AgentName == "" {
		r.AgentName = name
	}
	if r.Details == nil {
		r.Details = map[string]interface{}{}
	}
	// 유닛이 직접 ERROR/NO_DATA를 낸 경우 분류 보완
	if r.ErrorKind == contracts.ErrorKindNone {
		switch r.Verdict {
		case contracts.VerdictNoData:
			r.ErrorKind = contracts.ErrorKindNoData
		case contracts.VerdictError:
			r.ErrorKind = contracts.ErrorKindUnitError
		}
	}
	return r, nil
}

func (r *Runner) observe(reg Registration, outcome string, start time.Time) {
	if r.observer != nil {
		r.observer.ObserveUnit(reg.Name(), reg.Category, outcome, time.Since(start))
	}
}
