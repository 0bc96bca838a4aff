package contracts

import (
	"math"
	"time"
)

// Unit verdicts with system-wide meaning. Units are free to emit their own
// verdict strings (BULLISH, UNDERVALUED, ...); these are the ones the engine
// itself interprets.
const (
	VerdictError  = "ERROR"
	VerdictNoData = "NO_DATA"
)

// Composite verdicts produced by the aggregator
const (
	VerdictStrongBuy        = "STRONG_BUY"
	VerdictBuy              = "BUY"
	VerdictHold             = "HOLD"
	VerdictSell             = "SELL"
	VerdictInsufficientData = "INSUFFICIENT_DATA"
)

// ErrorKind classifies why a unit did not produce a usable signal
type ErrorKind string

const (
	ErrorKindNone            ErrorKind = ""
	ErrorKindUnhandled       ErrorKind = "unhandled"        // panic inside the unit
	ErrorKindUnitError       ErrorKind = "unit_error"       // unit returned an error
	ErrorKindInvalidInput    ErrorKind = "invalid_input"    // unit rejected its input
	ErrorKindMalformedResult ErrorKind = "malformed_result" // unit output failed normalization
	ErrorKindNoData          ErrorKind = "no_data"          // every data source was exhausted
	ErrorKindCanceled        ErrorKind = "canceled"         // run ended before the unit finished
)

// UnitResult is the output of one scoring unit
// ⭐ SSOT: Unit → Orchestrator → Aggregator 결과 전달 형식
type UnitResult struct {
	Symbol     string                 `json:"symbol"`
	Verdict    string                 `json:"verdict"`
	Confidence float64                `json:"confidence"` // 0.0 ~ 1.0
	Value      any                    `json:"value"`
	Details    map[string]interface{} `json:"details"`
	Score      *float64               `json:"score"`
	AgentName  string                 `json:"agent_name"`
	Error      *string                `json:"error"`
	ErrorKind  ErrorKind              `json:"error_kind,omitempty"`
}

// Failed reports whether the result carries no usable signal
func (r UnitResult) Failed() bool {
	return r.ErrorKind != ErrorKindNone || r.Error != nil ||
		r.Verdict == VerdictError || r.Verdict == VerdictNoData
}

// Cacheable reports whether the result may be stored as a positive result
func (r UnitResult) Cacheable() bool {
	return !r.Failed()
}

// ErrorResult builds the normalized failure shape for a unit
func ErrorResult(symbol, agent string, kind ErrorKind, msg string) UnitResult {
	verdict := VerdictError
	if kind == ErrorKindNoData {
		verdict = VerdictNoData
	}
	zero := 0.0
	return UnitResult{
		Symbol:     symbol,
		Verdict:    verdict,
		Confidence: 0,
		Details:    map[string]interface{}{},
		Score:      &zero,
		AgentName:  agent,
		Error:      &msg,
		ErrorKind:  kind,
	}
}

// CategoryResult is one category's slot in an analysis
type CategoryResult struct {
	Results  []UnitResult `json:"results"`
	Error    string       `json:"error,omitempty"`
	Count    int          `json:"count"`
	Degraded bool         `json:"degraded,omitempty"`
}

// Succeeded counts the units that produced a usable signal
func (c CategoryResult) Succeeded() int {
	n := 0
	for _, r := range c.Results {
		if !r.Failed() {
			n++
		}
	}
	return n
}

// ExecutionMetrics summarizes one orchestrator run
type ExecutionMetrics struct {
	DurationMS         int64            `json:"duration_ms"`
	CategoryDurationMS map[string]int64 `json:"category_duration_ms"`
	UnitsInvoked       int              `json:"units_invoked"`
	UnitsFailed        int              `json:"units_failed"`
	CategoriesFailed   int              `json:"categories_failed"`
	CategoryAttempts   map[string]int   `json:"category_attempts"`
	Canceled           bool             `json:"canceled,omitempty"`
}

// AnalysisResult is the composite verdict for one (symbol, category set)
// ⭐ SSOT: Orchestrator 최종 출력 (API/CLI/DB 공통)
type AnalysisResult struct {
	RunID            string                    `json:"run_id"`
	Symbol           string                    `json:"symbol"`
	Categories       []string                  `json:"categories"`
	Verdict          string                    `json:"verdict"`
	Confidence       float64                   `json:"confidence"`
	Regime           string                    `json:"regime"`
	Contributing     map[string]float64        `json:"contributing_categories"`
	WeightsUsed      map[string]float64        `json:"category_weights_used"`
	CategoryResults  map[string]CategoryResult `json:"category_results"`
	ExecutionMetrics ExecutionMetrics          `json:"execution_metrics"`
	CreatedAt        time.Time                 `json:"created_at"`
}

// ClampConfidence forces a confidence into [0,1]; NaN becomes 0
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Round4 rounds to four decimals, the precision reported for scores
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
