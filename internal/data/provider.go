// Package data fetches market data for scoring units through an ordered
// fallback chain of sources, each guarded by a circuit breaker and retry policy.
package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wonny/zion/internal/cache"
	"github.com/wonny/zion/internal/resilience"
	"github.com/wonny/zion/pkg/logger"
)

// FetchFunc retrieves one datum for a symbol from one source.
// The returned value must be JSON-serializable.
type FetchFunc func(ctx context.Context, symbol string) (interface{}, error)

// Observer receives one observation per source attempt and per cache hit
type Observer interface {
	ObserveFetch(source, kind, outcome string, duration time.Duration)
}

// Fetch outcomes reported to the Observer
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeCircuitOpen = "circuit_open"
	OutcomeCacheHit    = "cache_hit"
)

// Options configures a Provider
type Options struct {
	AttemptTimeout time.Duration            // bound on each single attempt
	KindTTL        map[string]time.Duration // cache TTL per kind
	DefaultTTL     time.Duration            // kinds without an entry
}

type source struct {
	name     string
	fn       FetchFunc
	priority int
	seq      int
}

// Provider resolves Fetch(kind, symbol) across registered sources
// ⭐ SSOT: 외부 데이터 접근은 이 Provider를 통해서만 (서킷 브레이커 소유)
type Provider struct {
	cache    *cache.ResultCache
	breakers *resilience.Breakers
	retrier  *resilience.Retrier
	opts     Options
	logger   *logger.Logger
	observer Observer

	mu      sync.RWMutex
	sources map[string][]source
	seq     int
}

// NewProvider creates a provider. The breaker registry is owned by the provider from here on.
func NewProvider(c *cache.ResultCache, breakers *resilience.Breakers, retrier *resilience.Retrier, opts Options, log *logger.Logger) *Provider {
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 10 * time.Second
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = time.Minute
	}
	return &Provider{
		cache:    c,
		breakers: breakers,
		retrier:  retrier,
		opts:     opts,
		logger:   log.Component("data_provider"),
		sources:  make(map[string][]source),
	}
}

// WithObserver attaches a metrics observer
func (p *Provider) WithObserver(o Observer) *Provider {
	p.observer = o
	return p
}

// RegisterDataSource adds a source for kind. Lower priority values are tried first;
// equal priorities keep registration order. Called during startup.
func (p *Provider) RegisterDataSource(kind, name string, fn FetchFunc, priority int) error {
	if kind == "" || name == "" {
		return fmt.Errorf("register data source: kind and name are required")
	}
	if fn == nil {
		return fmt.Errorf("register data source %s/%s: nil fetch func", kind, name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.sources[kind] {
		if s.name == name {
			return fmt.Errorf("register data source %s/%s: already registered", kind, name)
		}
	}

	p.seq++
	list := append(p.sources[kind], source{name: name, fn: fn, priority: priority, seq: p.seq})
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority < list[j].priority
		}
		return list[i].seq < list[j].seq
	})
	p.sources[kind] = list
	return nil
}

// Sources returns the source names for kind in the order they are tried
func (p *Provider) Sources(kind string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.sources[kind]))
	for _, s := range p.sources[kind] {
		names = append(names, s.name)
	}
	return names
}

// Kinds lists every kind with at least one source
func (p *Provider) Kinds() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	kinds := make([]string, 0, len(p.sources))
	for k := range p.sources {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Breakers exposes the breaker registry for reporting
func (p *Provider) Breakers() *resilience.Breakers {
	return p.breakers
}

// Fetch returns kind for symbol.
// A cache hit under "{kind}:{symbol}" short-circuits the chain. Otherwise sources are
// tried in order: open breakers are skipped, each call is retried with backoff and
// every attempt is bounded by AttemptTimeout. The first success is cached with the
// kind's TTL. When every source fails or is skipped the error is a *NoDataError and
// nothing is cached.
func (p *Provider) Fetch(ctx context.Context, kind, symbol string) (Value, error) {
	key := cache.FetchKey(kind, symbol)

	raw, found, err := p.cache.GetRaw(ctx, key)
	if err != nil {
		p.logger.WithError(err).WithField("key", key).Warn("fetch cache read failed, bypassing cache")
	} else if found {
		p.observe("cache", kind, OutcomeCacheHit, 0)
		return NewValue(raw, "cache"), nil
	}

	p.mu.RLock()
	chain := append([]source(nil), p.sources[kind]...)
	p.mu.RUnlock()

	var failures []*SourceError
	for _, src := range chain {
		cb := p.breakers.Get(src.name)
		if !cb.Allow() {
			p.observe(src.name, kind, OutcomeCircuitOpen, 0)
			failures = append(failures, &SourceError{Source: src.name, Kind: kind, Err: ErrCircuitOpen})
			continue
		}

		start := time.Now()
		raw, err := resilience.ExecuteValue(ctx, p.retrier, func(ctx context.Context) ([]byte, error) {
			return p.attempt(ctx, src, symbol)
		})
		elapsed := time.Since(start)

		if err == nil {
			cb.RecordSuccess()
			p.observe(src.name, kind, OutcomeSuccess, elapsed)

			if err := p.cache.SetRaw(ctx, key, raw, p.ttl(kind)); err != nil {
				p.logger.WithError(err).WithField("key", key).Warn("fetch cache write failed")
			}
			return NewValue(raw, src.name), nil
		}

		// 호출자 취소는 소스 장애로 집계하지 않음
		if ctx.Err() != nil {
			return Value{}, fmt.Errorf("fetch %s: %w", key, ctx.Err())
		}

		cb.RecordFailure()
		p.observe(src.name, kind, OutcomeFailure, elapsed)
		failures = append(failures, &SourceError{Source: src.name, Kind: kind, Err: err})

		p.logger.WithFields(map[string]interface{}{
			"source": src.name,
			"kind":   kind,
			"symbol": symbol,
			"error":  err.Error(),
		}).Warn("source failed, falling back")
	}

	return Value{}, &NoDataError{Kind: kind, Symbol: symbol, Failures: failures}
}

// FetchFloat fetches a numeric datum
func (p *Provider) FetchFloat(ctx context.Context, kind, symbol string) (float64, error) {
	v, err := p.Fetch(ctx, kind, symbol)
	if err != nil {
		return 0, err
	}
	return v.Float64()
}

// FetchSeries fetches a numeric series
func (p *Provider) FetchSeries(ctx context.Context, kind, symbol string) ([]float64, error) {
	v, err := p.Fetch(ctx, kind, symbol)
	if err != nil {
		return nil, err
	}
	return v.Float64s()
}

// attempt runs one bounded call and serializes the result
func (p *Provider) attempt(ctx context.Context, src source, symbol string) ([]byte, error) {
	actx, cancel := context.WithTimeout(ctx, p.opts.AttemptTimeout)
	defer cancel()

	val, err := src.fn(actx, symbol)
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, ErrEmptyResponse
	}

	raw, err := json.Marshal(val)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("encode %s response: %w", src.name, err))
	}
	// typed nil (nil slice/map/pointer) 포함
	if isEmptyJSON(raw) {
		return nil, ErrEmptyResponse
	}
	return raw, nil
}

func isEmptyJSON(raw []byte) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "[]", `""`:
		return true
	}
	return false
}

func (p *Provider) ttl(kind string) time.Duration {
	if ttl, ok := p.opts.KindTTL[kind]; ok && ttl > 0 {
		return ttl
	}
	return p.opts.DefaultTTL
}

func (p *Provider) observe(src, kind, outcome string, d time.Duration) {
	if p.observer != nil {
		p.observer.ObserveFetch(src, kind, outcome, d)
	}
}
