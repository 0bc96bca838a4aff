// Package units holds the built-in scoring units and their static registration table.
// The units are small demonstrators of the unit contract, not research-grade models.
package units

import (
	"context"
	"fmt"

	"github.com/wonny/zion/internal/contracts"
	"github.com/wonny/zion/internal/data"
	"github.com/wonny/zion/internal/risk"
	"github.com/wonny/zion/internal/scoring"
)

// Data kinds read by the built-in units
const (
	KindPrice       = "price"
	KindEPS         = "eps"
	KindPriceSeries = "price_series"
)

// MomentumLookback is the number of sessions the momentum units look back
const MomentumLookback = 20

// TailConfidence is the VaR confidence level of the tail_risk unit
const TailConfidence = 0.95

// DataSource is the subset of data.Provider the units use
type DataSource interface {
	FetchFloat(ctx context.Context, kind, symbol string) (float64, error)
	FetchSeries(ctx context.Context, kind, symbol string) ([]float64, error)
}

// Options parameterizes the table
type Options struct {
	Benchmark string // benchmark symbol for market context, default SPY
}

type entry struct {
	category string
	build    func(src DataSource, opts Options) (scoring.Unit, []scoring.Option)
}

// table is the static unit registration list
// ⭐ SSOT: 기본 유닛 등록은 이 테이블에서만
var table = []entry{
	{"valuation", func(src DataSource, _ Options) (scoring.Unit, []scoring.Option) {
		return PERatio(src), nil
	}},
	{"technical", func(src DataSource, _ Options) (scoring.Unit, []scoring.Option) {
		return PriceMomentum(src), nil
	}},
	{"market", func(src DataSource, opts Options) (scoring.Unit, []scoring.Option) {
		return BenchmarkTrend(src, opts.Benchmark), []scoring.Option{scoring.WithDiscriminator(opts.Benchmark)}
	}},
	{"risk", func(src DataSource, _ Options) (scoring.Unit, []scoring.Option) {
		return Volatility(src), nil
	}},
	{"risk", func(src DataSource, _ Options) (scoring.Unit, []scoring.Option) {
		return TailRisk(src), nil
	}},
	{"intelligence", func(DataSource, Options) (scoring.Unit, []scoring.Option) {
		return Consensus([]string{"valuation", "technical", "sentiment"}), nil
	}},
}

// Register adds every built-in unit whose category is configured.
// Returns how many units were registered.
func Register(reg *scoring.Registry, src DataSource, opts Options) (int, error) {
	if opts.Benchmark == "" {
		opts.Benchmark = "SPY"
	}

	n := 0
	for _, e := range table {
		if !reg.HasCategory(e.category) {
			continue
		}
		unit, unitOpts := e.build(src, opts)
		if err := reg.RegisterScoringUnit(e.category, unit, unitOpts...); err != nil {
			return n, fmt.Errorf("register %s: %w", unit.Name(), err)
		}
		n++
	}
	return n, nil
}

// PERatio scores price / trailing EPS
func PERatio(src DataSource) scoring.Unit {
	return scoring.UnitFunc("pe_ratio", func(ctx context.Context, symbol string, _ scoring.Prior) (contracts.UnitResult, error) {
		price, err := src.FetchFloat(ctx, KindPrice, symbol)
		if err != nil {
			return contracts.UnitResult{}, err
		}
		eps, err := src.FetchFloat(ctx, KindEPS, symbol)
		if err != nil {
			return contracts.UnitResult{}, err
		}
		if eps <= 0 {
			return contracts.UnitResult{}, scoring.InvalidInput("non-positive eps %.4f", eps)
		}

		pe := price / eps
		verdict := "FAIR"
		switch {
		case pe < 15:
			verdict = "UNDERVALUED"
		case pe > 30:
			verdict = "OVERVALUED"
		}

		return contracts.UnitResult{
			Verdict:    verdict,
			Confidence: clamp(1-pe/50, 0.1, 0.9),
			Value:      contracts.Round4(pe),
			Details: map[string]interface{}{
				"price": price,
				"eps":   eps,
			},
		}, nil
	})
}

// PriceMomentum scores the recent price trend
func PriceMomentum(src DataSource) scoring.Unit {
	return scoring.UnitFunc("price_momentum", func(ctx context.Context, symbol string, _ scoring.Prior) (contracts.UnitResult, error) {
		closes, err := src.FetchSeries(ctx, KindPriceSeries, symbol)
		if err != nil {
			return contracts.UnitResult{}, err
		}
		if len(closes) < 2 {
			return contracts.UnitResult{}, scoring.InvalidInput("need at least 2 closes, got %d", len(closes))
		}

		m := momentum(closes, MomentumLookback)
		return contracts.UnitResult{
			Verdict:    trendVerdict(m, "BULLISH", "BEARISH"),
			Confidence: clamp(0.5+m*5, 0, 1),
			Value:      contracts.Round4(m),
			Details: map[string]interface{}{
				"lookback": MomentumLookback,
				"points":   len(closes),
			},
		}, nil
	})
}

// BenchmarkTrend scores the broad market through a benchmark symbol
func BenchmarkTrend(src DataSource, benchmark string) scoring.Unit {
	return scoring.UnitFunc("benchmark_trend", func(ctx context.Context, _ string, _ scoring.Prior) (contracts.UnitResult, error) {
		closes, err := src.FetchSeries(ctx, KindPriceSeries, benchmark)
		if err != nil {
			return contracts.UnitResult{}, err
		}
		if len(closes) < 2 {
			return contracts.UnitResult{}, scoring.InvalidInput("need at least 2 benchmark closes, got %d", len(closes))
		}

		m := momentum(closes, MomentumLookback)
		return contracts.UnitResult{
			Verdict:    trendVerdict(m, "RISK_ON", "RISK_OFF"),
			Confidence: clamp(0.5+m*4, 0, 1),
			Value:      contracts.Round4(m),
			Details: map[string]interface{}{
				"benchmark": benchmark,
			},
		}, nil
	})
}

// Volatility scores realized volatility of daily returns.
// Its value is the regime indicator read by the aggregator.
func Volatility(src DataSource) scoring.Unit {
	return scoring.UnitFunc("volatility", func(ctx context.Context, symbol string, _ scoring.Prior) (contracts.UnitResult, error) {
		closes, err := src.FetchSeries(ctx, KindPriceSeries, symbol)
		if err != nil {
			return contracts.UnitResult{}, err
		}
		rets := returns(closes)
		if len(rets) < 2 {
			return contracts.UnitResult{}, scoring.InvalidInput("need at least 3 closes, got %d", len(closes))
		}

		vol := risk.StdDev(rets)
		verdict := "MODERATE_RISK"
		switch {
		case vol < 0.015:
			verdict = "LOW_RISK"
		case vol > 0.05:
			verdict = "HIGH_RISK"
		}

		return contracts.UnitResult{
			Verdict:    verdict,
			Confidence: clamp(1-vol/0.1, 0, 1),
			Value:      contracts.Round4(vol),
			Details: map[string]interface{}{
				"observations": len(rets),
			},
		}, nil
	})
}

// TailRisk scores historical VaR and drawdown of the price series
func TailRisk(src DataSource) scoring.Unit {
	return scoring.UnitFunc("tail_risk", func(ctx context.Context, symbol string, _ scoring.Prior) (contracts.UnitResult, error) {
		closes, err := src.FetchSeries(ctx, KindPriceSeries, symbol)
		if err != nil {
			return contracts.UnitResult{}, err
		}
		rets := returns(closes)
		if len(rets) < 5 {
			return contracts.UnitResult{}, scoring.InvalidInput("need at least 6 closes, got %d", len(closes))
		}

		v := risk.HistoricalVaR(rets, TailConfidence)
		mdd := risk.MaxDrawdown(closes)

		verdict := "CONTAINED"
		switch {
		case v.CVaR > 0.06 || mdd > 0.3:
			verdict = "FAT_TAIL"
		case v.VaR > 0.03 || mdd > 0.15:
			verdict = "ELEVATED"
		}

		return contracts.UnitResult{
			Verdict:    verdict,
			Confidence: clamp(1-v.CVaR*5-mdd, 0, 1),
			Value:      contracts.Round4(v.VaR),
			Details: map[string]interface{}{
				"confidence":   TailConfidence,
				"cvar":         contracts.Round4(v.CVaR),
				"max_drawdown": contracts.Round4(mdd),
				"observations": v.Observations,
			},
		}, nil
	})
}

// Consensus averages the usable signals of earlier categories
func Consensus(categories []string) scoring.Unit {
	return scoring.UnitFunc("consensus", func(_ context.Context, _ string, prior scoring.Prior) (contracts.UnitResult, error) {
		var confidences []float64
		for _, cat := range categories {
			for _, r := range prior[cat] {
				if !r.Failed() {
					confidences = append(confidences, r.Confidence)
				}
			}
		}
		if len(confidences) == 0 {
			return contracts.UnitResult{}, fmt.Errorf("no usable prior signals: %w", data.ErrNoDataAvailable)
		}

		c := risk.Mean(confidences)
		verdict := "MIXED"
		switch {
		case c > 0.6:
			verdict = "CONSENSUS_POSITIVE"
		case c < 0.4:
			verdict = "CONSENSUS_NEGATIVE"
		}

		return contracts.UnitResult{
			Verdict:    verdict,
			Confidence: c,
			Value:      len(confidences),
			Details: map[string]interface{}{
				"sources": categories,
			},
		}, nil
	})
}

func trendVerdict(m float64, up, down string) string {
	switch {
	case m > 0.02:
		return up
	case m < -0.02:
		return down
	default:
		return "NEUTRAL"
	}
}
