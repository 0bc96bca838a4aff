package brain

import (
	"encoding/json"
	"sort"

	"github.com/wonny/zion/internal/analysisconfig"
	"github.com/wonny/zion/internal/contracts"
)

// Market regimes reported by the aggregator
const (
	RegimeUnknown        = "unknown"
	RegimeHighVolatility = "high_volatility"
	RegimeLowVolatility  = "low_volatility"
)

// Decision is the aggregator's output
type Decision struct {
	Verdict      string
	Confidence   float64
	Regime       string
	Contributing map[string]float64 // category -> category score, only categories that were scored
	WeightsUsed  map[string]float64 // category -> weight after regime adjustment
}

// Aggregator turns per-category unit results into one composite verdict.
// Pure: no state is kept between calls.
// ⭐ SSOT: 최종 판정 로직은 여기서만
type Aggregator struct {
	thresholds analysisconfig.Verdict
	regime     analysisconfig.Regime
}

// NewAggregator creates an aggregator
func NewAggregator(thresholds analysisconfig.Verdict, regime analysisconfig.Regime) *Aggregator {
	return &Aggregator{thresholds: thresholds, regime: regime}
}

// Aggregate computes the weighted composite.
//
//	category score = mean confidence of the category's usable results
//	composite      = Σ(score·w) / Σw over scored categories with w > 0
//
// Nothing scored gives INSUFFICIENT_DATA with confidence 0.
func (a *Aggregator) Aggregate(results map[string][]contracts.UnitResult, weights map[string]float64) Decision {
	regime, adjusted := a.adjustWeights(results, weights)

	decision := Decision{
		Regime:       regime,
		Contributing: make(map[string]float64),
		WeightsUsed:  make(map[string]float64),
	}

	// 합산 순서 고정 (부동소수점 결과가 호출마다 같도록)
	cats := make([]string, 0, len(results))
	for cat := range results {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	var weightedSum, weightSum float64
	for _, cat := range cats {
		units := results[cat]
		w := adjusted[cat]
		decision.WeightsUsed[cat] = w

		score, ok := categoryScore(units)
		if !ok || w <= 0 {
			continue
		}
		decision.Contributing[cat] = contracts.Round4(score)
		weightedSum += score * w
		weightSum += w
	}

	if weightSum == 0 {
		decision.Verdict = contracts.VerdictInsufficientData
		decision.Confidence = 0
		return decision
	}

	composite := contracts.ClampConfidence(weightedSum / weightSum)
	decision.Confidence = contracts.Round4(composite)
	decision.Verdict = a.verdict(composite)
	return decision
}

// verdict maps a composite score to a label; thresholds are strictly greater-than
func (a *Aggregator) verdict(score float64) string {
	switch {
	case score > a.thresholds.StrongBuy:
		return contracts.VerdictStrongBuy
	case score > a.thresholds.Buy:
		return contracts.VerdictBuy
	case score > a.thresholds.Hold:
		return contracts.VerdictHold
	default:
		return contracts.VerdictSell
	}
}

// adjustWeights applies the regime override for the categories it lists
func (a *Aggregator) adjustWeights(results map[string][]contracts.UnitResult, base map[string]float64) (string, map[string]float64) {
	adjusted := make(map[string]float64, len(base))
	for k, v := range base {
		adjusted[k] = v
	}

	if !a.regime.Enabled {
		return RegimeUnknown, adjusted
	}

	indicator, ok := regimeIndicator(results[a.regime.Category], a.regime.Unit)
	if !ok {
		return RegimeUnknown, adjusted
	}

	regime, override := RegimeLowVolatility, a.regime.LowVolatility
	if indicator > a.regime.Threshold {
		regime, override = RegimeHighVolatility, a.regime.HighVolatility
	}
	for cat, w := range override {
		adjusted[cat] = w
	}
	return regime, adjusted
}

func categoryScore(units []contracts.UnitResult) (float64, bool) {
	var sum float64
	n := 0
	for _, r := range units {
		if r.Failed() {
			continue
		}
		sum += r.Confidence
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// regimeIndicator reads the numeric value of the indicator unit
func regimeIndicator(units []contracts.UnitResult, unit string) (float64, bool) {
	for _, r := range units {
		if r.AgentName != unit || r.Failed() {
			continue
		}
		switch v := r.Value.(type) {
		case float64:
			return v, true
		case float32:
			return float64(v), true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		case json.Number:
			f, err := v.Float64()
			return f, err == nil
		}
	}
	return 0, false
}
