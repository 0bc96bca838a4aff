// Package risk provides return-distribution risk measures used by the risk units.
package risk

import (
	"math"
	"sort"
)

// VaRResult VaR 계산 결과 (손실은 양수)
type VaRResult struct {
	Confidence   float64 `json:"confidence"`
	VaR          float64 `json:"var"`
	CVaR         float64 `json:"cvar"`
	Observations int     `json:"observations"`
}

// =============================================================================
// VaR (Value at Risk)
// =============================================================================

// HistoricalVaR 과거 수익률 기반 VaR (Historical Simulation)
// returns: 기간 수익률 (양수=이익, 음수=손실)
// confidence: 신뢰수준 (예: 0.95)
func HistoricalVaR(returns []float64, confidence float64) VaRResult {
	res := VaRResult{Confidence: confidence, Observations: len(returns)}
	if len(returns) == 0 || confidence <= 0 || confidence >= 1 {
		return res
	}

	// 오름차순: 손실이 앞에
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	res.VaR = lossOf(sorted[idx])
	res.CVaR = tailLoss(sorted, idx)
	return res
}

// tailLoss CVaR (Expected Shortfall): idx 이하 수익률의 평균 손실
func tailLoss(sorted []float64, idx int) float64 {
	if len(sorted) == 0 || idx < 0 {
		return 0
	}
	return lossOf(Mean(sorted[:idx+1]))
}

// ParametricVaR 정규분포 가정 VaR
func ParametricVaR(returns []float64, confidence float64) VaRResult {
	res := VaRResult{Confidence: confidence, Observations: len(returns)}
	if len(returns) < 2 || confidence <= 0 || confidence >= 1 {
		return res
	}

	sd := StdDev(returns)
	z := NormInv(confidence)

	res.VaR = math.Max(z*sd-Mean(returns), 0)
	res.CVaR = math.Max(sd*NormPDF(z)/(1-confidence)-Mean(returns), 0)
	return res
}

// MaxDrawdown 최대 낙폭 (0..1, 가격 시계열 기준)
func MaxDrawdown(closes []float64) float64 {
	peak := 0.0
	mdd := 0.0
	for _, c := range closes {
		if c <= 0 {
			continue
		}
		if c > peak {
			peak = c
			continue
		}
		if dd := (peak - c) / peak; dd > mdd {
			mdd = dd
		}
	}
	return mdd
}

func lossOf(r float64) float64 {
	if r < 0 {
		return -r
	}
	return 0
}

// =============================================================================
// 통계 유틸리티
// =============================================================================

// NormInv 정규분포 역함수 (Acklam rational approximation)
func NormInv(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}

	a := [6]float64{
		-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02,
		1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00,
	}
	b := [5]float64{
		-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02,
		6.680131188771972e+01, -1.328068155288572e+01,
	}
	c := [6]float64{
		-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00,
		-2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00,
	}
	d := [4]float64{
		7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00,
		3.754408661907416e+00,
	}

	const pLow = 0.02425
	switch {
	case p < pLow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	case p <= 1-pLow:
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	default:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	}
}

// NormPDF 정규분포 확률밀도함수
func NormPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

// Mean 평균
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev 표본 표준편차
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := Mean(values)
	var ss float64
	for _, v := range values {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(values)-1))
}
