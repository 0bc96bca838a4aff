package brain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/zion/internal/cache"
	"github.com/wonny/zion/internal/contracts"
	"github.com/wonny/zion/internal/resilience"
	"github.com/wonny/zion/internal/scoring"
	"github.com/wonny/zion/pkg/logger"
)

// ErrInvalidSymbol is returned by Run for a blank symbol
var ErrInvalidSymbol = errors.New("invalid symbol")

// NormalizeSymbol is the canonical symbol form used in cache keys and stored runs
// ⭐ SSOT: 심볼 정규화는 이 함수에서만
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Category outcomes reported to the Observer
const (
	CategorySuccess  = "success"
	CategoryDegraded = "degraded"
	CategoryFailed   = "failed"
	CategoryCanceled = "canceled"
)

// Options configures the orchestrator
type Options struct {
	CategoryRetries     int           // total attempts per category
	CategoryRetryDelay  time.Duration // fixed delay between attempts
	MaxUnitsPerCategory int           // 0 = unlimited
	AnalysisTTL         time.Duration
}

// RunOptions configures one Run call
type RunOptions struct {
	ForceRefresh bool // skip the analysis cache read (the fresh result is still cached)
}

// Recorder persists finished analyses
type Recorder interface {
	SaveAnalysis(ctx context.Context, result *contracts.AnalysisResult) error
}

// Observer receives category and run level observations
type Observer interface {
	ObserveCategory(category, outcome string, attempts int, duration time.Duration)
	ObserveAnalysis(verdict string, cached bool, duration time.Duration)
}

// Orchestrator runs categories in dependency order and aggregates their results
// ⭐ SSOT: 분석 실행 조율은 여기서만
type Orchestrator struct {
	graph      *Graph
	registry   *scoring.Registry
	runner     *scoring.Runner
	cache      *cache.ResultCache
	aggregator *Aggregator
	weights    map[string]float64
	opts       Options

	recorder Recorder
	observer Observer
	logger   *logger.Logger

	now   func() time.Time
	newID func() string
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(
	graph *Graph,
	registry *scoring.Registry,
	runner *scoring.Runner,
	c *cache.ResultCache,
	aggregator *Aggregator,
	opts Options,
	log *logger.Logger,
) *Orchestrator {
	if opts.CategoryRetries <= 0 {
		opts.CategoryRetries = 3
	}
	if opts.CategoryRetryDelay < 0 {
		opts.CategoryRetryDelay = 0
	}
	if opts.AnalysisTTL <= 0 {
		opts.AnalysisTTL = 15 * time.Minute
	}
	return &Orchestrator{
		graph:      graph,
		registry:   registry,
		runner:     runner,
		cache:      c,
		aggregator: aggregator,
		weights:    graph.Weights(),
		opts:       opts,
		logger:     log.Component("orchestrator"),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// WithRecorder enables analysis history persistence
func (o *Orchestrator) WithRecorder(r Recorder) *Orchestrator {
	o.recorder = r
	return o
}

// WithObserver attaches a metrics observer
func (o *Orchestrator) WithObserver(obs Observer) *Orchestrator {
	o.observer = obs
	return o
}

// Graph returns the category graph
func (o *Orchestrator) Graph() *Graph {
	return o.graph
}

// Run analyzes symbol over the requested categories (empty = all).
// The error is non-nil only for invalid requests; unit and category failures
// are reported inside the result.
func (o *Orchestrator) Run(ctx context.Context, symbol string, categories []string, opts RunOptions) (*contracts.AnalysisResult, error) {
	result, _, err := o.run(ctx, symbol, categories, opts)
	return result, err
}

// RunJSON is Run returning the serialized result.
// A cache hit returns the stored bytes unchanged.
func (o *Orchestrator) RunJSON(ctx context.Context, symbol string, categories []string, opts RunOptions) ([]byte, error) {
	_, raw, err := o.run(ctx, symbol, categories, opts)
	return raw, err
}

func (o *Orchestrator) run(ctx context.Context, symbol string, categories []string, opts RunOptions) (*contracts.AnalysisResult, []byte, error) {
	startTime := o.now()

	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, nil, ErrInvalidSymbol
	}

	order, err := o.graph.ResolveOrder(categories)
	if err != nil {
		return nil, nil, err
	}

	requested := categories
	if len(requested) == 0 {
		requested = o.graph.Names()
	}
	key := cache.AnalysisKey(symbol, requested)

	if !opts.ForceRefresh {
		if cached, raw, ok := o.cached(ctx, key); ok {
			o.observeAnalysis(cached.Verdict, true, startTime)
			return cached, raw, nil
		}
	}

	runID := o.newID()
	log := o.logger.WithFields(map[string]interface{}{
		"run_id": runID,
		"symbol": symbol,
	})
	log.WithField("order", order).Info("Starting analysis")

	metrics := contracts.ExecutionMetrics{
		CategoryDurationMS: make(map[string]int64, len(order)),
		CategoryAttempts:   make(map[string]int, len(order)),
	}
	categoryResults := make(map[string]contracts.CategoryResult, len(order))
	prior := make(scoring.Prior, len(order))

	for i, name := range order {
		if ctx.Err() != nil {
			o.markCanceled(ctx, order[i:], categoryResults, prior)
			metrics.Canceled = true
			break
		}

		catStart := o.now()
		units, attempts, err := o.executeWithRetry(ctx, name, symbol, prior)
		elapsed := o.now().Sub(catStart)
		metrics.CategoryAttempts[name] = attempts
		metrics.CategoryDurationMS[name] = elapsed.Milliseconds()

		var cr contracts.CategoryResult
		outcome := CategorySuccess
		if err != nil {
			// 실패한 카테고리는 빈 결과로 후속 카테고리에 전달
			cr = contracts.CategoryResult{Results: []contracts.UnitResult{}, Error: err.Error()}
			prior[name] = []contracts.UnitResult{}
			metrics.CategoriesFailed++
			outcome = CategoryFailed
			if ctx.Err() != nil {
				outcome = CategoryCanceled
			}

			log.WithFields(map[string]interface{}{
				"category": name,
				"attempts": attempts,
				"error":    err.Error(),
			}).Warn("Category failed")
		} else {
			cr = contracts.CategoryResult{Results: units, Count: len(units)}
			prior[name] = units
			metrics.UnitsInvoked += len(units)
			metrics.UnitsFailed += len(units) - cr.Succeeded()
		}

		cr.Degraded = o.degraded(name, cr)
		if cr.Degraded && outcome == CategorySuccess {
			outcome = CategoryDegraded
		}
		categoryResults[name] = cr
		o.observeCategory(name, outcome, attempts, elapsed)
	}
	if ctx.Err() != nil {
		metrics.Canceled = true
	}

	decision := o.aggregator.Aggregate(prior, o.weights)
	metrics.DurationMS = o.now().Sub(startTime).Milliseconds()

	result := &contracts.AnalysisResult{
		RunID:            runID,
		Symbol:           symbol,
		Categories:       order,
		Verdict:          decision.Verdict,
		Confidence:       decision.Confidence,
		Regime:           decision.Regime,
		Contributing:     decision.Contributing,
		WeightsUsed:      decision.WeightsUsed,
		CategoryResults:  categoryResults,
		ExecutionMetrics: metrics,
		CreatedAt:        startTime.UTC(),
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, nil, fmt.Errorf("encode analysis: %w", err)
	}

	// 취소된 실행은 부분 결과이므로 캐시/저장하지 않음
	if !metrics.Canceled {
		if err := o.cache.SetRaw(ctx, key, raw, o.opts.AnalysisTTL); err != nil {
			log.WithError(err).Warn("Analysis cache write failed")
		}
		if o.recorder != nil {
			if err := o.recorder.SaveAnalysis(ctx, result); err != nil {
				log.WithError(err).Warn("Analysis history write failed")
			}
		}
	}

	log.WithFields(map[string]interface{}{
		"verdict":           result.Verdict,
		"confidence":        result.Confidence,
		"regime":            result.Regime,
		"duration_ms":       metrics.DurationMS,
		"units_invoked":     metrics.UnitsInvoked,
		"units_failed":      metrics.UnitsFailed,
		"categories_failed": metrics.CategoriesFailed,
		"canceled":          metrics.Canceled,
	}).Info("Analysis completed")

	o.observeAnalysis(result.Verdict, false, startTime)
	return result, raw, nil
}

// ExecuteCategory runs every unit of a category concurrently.
// All units run to completion; the first infrastructure error fails the attempt.
func (o *Orchestrator) ExecuteCategory(ctx context.Context, name, symbol string, prior scoring.Prior) ([]contracts.UnitResult, error) {
	if _, ok := o.graph.Category(name); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, name)
	}

	regs := o.registry.Units(name)
	results := make([]contracts.UnitResult, len(regs))

	var g errgroup.Group
	if o.opts.MaxUnitsPerCategory > 0 {
		g.SetLimit(o.opts.MaxUnitsPerCategory)
	}
	for i, reg := range regs {
		g.Go(func() error {
			res, err := o.runner.Run(ctx, reg, symbol, prior)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("category %s: %w", name, err)
	}
	return results, nil
}

// executeWithRetry wraps ExecuteCategory in a fixed-delay retry
func (o *Orchestrator) executeWithRetry(ctx context.Context, name, symbol string, prior scoring.Prior) ([]contracts.UnitResult, int, error) {
	retrier := resilience.NewRetrier(resilience.RetryConfig{
		MaxRetries: o.opts.CategoryRetries - 1,
		BaseDelay:  o.opts.CategoryRetryDelay,
		MaxDelay:   o.opts.CategoryRetryDelay,
	}).OnRetry(func(attempt int, delay time.Duration, err error) {
		o.logger.WithFields(map[string]interface{}{
			"category": name,
			"attempt":  attempt,
			"delay":    delay.String(),
			"error":    err.Error(),
		}).Warn("Retrying category")
	})

	attempts := 0
	results, err := resilience.ExecuteValue(ctx, retrier, func(ctx context.Context) ([]contracts.UnitResult, error) {
		attempts++
		return o.ExecuteCategory(ctx, name, symbol, prior)
	})
	return results, attempts, err
}

// degraded: no results, or a required category with fewer than half its units succeeding
func (o *Orchestrator) degraded(name string, cr contracts.CategoryResult) bool {
	if len(cr.Results) == 0 {
		return true
	}
	meta, _ := o.graph.Category(name)
	if !meta.Required {
		return false
	}
	registered := o.registry.Count(name)
	if registered == 0 {
		registered = len(cr.Results)
	}
	return cr.Succeeded()*2 < registered
}

func (o *Orchestrator) markCanceled(ctx context.Context, names []string, out map[string]contracts.CategoryResult, prior scoring.Prior) {
	msg := "canceled: " + ctx.Err().Error()
	for _, name := range names {
		out[name] = contracts.CategoryResult{Results: []contracts.UnitResult{}, Error: msg, Degraded: true}
		prior[name] = []contracts.UnitResult{}
		o.observeCategory(name, CategoryCanceled, 0, 0)
	}
}

// cached returns a stored analysis; read or decode failures count as a miss
func (o *Orchestrator) cached(ctx context.Context, key string) (*contracts.AnalysisResult, []byte, bool) {
	raw, found, err := o.cache.GetRaw(ctx, key)
	if err != nil {
		o.logger.WithError(err).WithField("key", key).Warn("Analysis cache read failed")
		return nil, nil, false
	}
	if !found {
		return nil, nil, false
	}

	var result contracts.AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		o.logger.WithError(err).WithField("key", key).Warn("Discarding unreadable cached analysis")
		return nil, nil, false
	}
	return &result, raw, true
}

func (o *Orchestrator) observeCategory(name, outcome string, attempts int, d time.Duration) {
	if o.observer != nil {
		o.observer.ObserveCategory(name, outcome, attempts, d)
	}
}

func (o *Orchestrator) observeAnalysis(verdict string, cached bool, start time.Time) {
	if o.observer != nil {
		o.observer.ObserveAnalysis(verdict, cached, o.now().Sub(start))
	}
}
