package units

import "math"

// returns computes simple period returns; non-positive prices are skipped
func returns(closes []float64) []float64 {
	out := make([]float64, 0, len(closes))
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 {
			continue
		}
		out = append(out, closes[i]/closes[i-1]-1)
	}
	return out
}

// momentum is the return over the last n points (or the whole series if shorter)
func momentum(closes []float64, n int) float64 {
	if len(closes) < 2 {
		return 0
	}
	start := len(closes) - n - 1
	if start < 0 {
		start = 0
	}
	first := closes[start]
	if first <= 0 {
		return 0
	}
	return closes[len(closes)-1]/first - 1
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
