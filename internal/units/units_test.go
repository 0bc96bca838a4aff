package units

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/zion/internal/contracts"
	"github.com/wonny/zion/internal/data"
	"github.com/wonny/zion/internal/scoring"
)

type fakeSource struct {
	floats map[string]float64   // "kind:symbol"
	series map[string][]float64 // "kind:symbol"
}

func (f fakeSource) FetchFloat(_ context.Context, kind, symbol string) (float64, error) {
	v, ok := f.floats[kind+":"+symbol]
	if !ok {
		return 0, &data.NoDataError{Kind: kind, Symbol: symbol}
	}
	return v, nil
}

func (f fakeSource) FetchSeries(_ context.Context, kind, symbol string) ([]float64, error) {
	v, ok := f.series[kind+":"+symbol]
	if !ok {
		return nil, &data.NoDataError{Kind: kind, Symbol: symbol}
	}
	return v, nil
}

func TestPERatio(t *testing.T) {
	src := fakeSource{floats: map[string]float64{"price:AAPL": 150, "eps:AAPL": 10}}

	res, err := PERatio(src).Score(context.Background(), "AAPL", nil)
	require.NoError(t, err)
	assert.Equal(t, "FAIR", res.Verdict)
	assert.InDelta(t, 0.7, res.Confidence, 1e-9)
	assert.Equal(t, 15.0, res.Value)
}

func TestPERatio_NegativeEPS(t *testing.T) {
	src := fakeSource{floats: map[string]float64{"price:X": 10, "eps:X": -2}}

	_, err := PERatio(src).Score(context.Background(), "X", nil)
	assert.True(t, errors.Is(err, scoring.ErrInvalidInput))
}

func TestPERatio_MissingData(t *testing.T) {
	_, err := PERatio(fakeSource{}).Score(context.Background(), "X", nil)
	assert.True(t, data.IsNoData(err))
}

func TestPriceMomentum(t *testing.T) {
	tests := []struct {
		name    string
		closes  []float64
		verdict string
	}{
		{"rising", []float64{100, 101, 103, 106, 110}, "BULLISH"},
		{"falling", []float64{100, 98, 95, 92, 90}, "BEARISH"},
		{"flat", []float64{100, 100.5, 99.8, 100.2}, "NEUTRAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := fakeSource{series: map[string][]float64{"price_series:AAPL": tt.closes}}
			res, err := PriceMomentum(src).Score(context.Background(), "AAPL", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.verdict, res.Verdict)
			assert.GreaterOrEqual(t, res.Confidence, 0.0)
			assert.LessOrEqual(t, res.Confidence, 1.0)
		})
	}
}

func TestVolatility(t *testing.T) {
	calm := []float64{100, 100.5, 100.2, 100.6, 100.4, 100.8}
	wild := []float64{100, 112, 95, 118, 90, 120}

	src := fakeSource{series: map[string][]float64{
		"price_series:CALM": calm,
		"price_series:WILD": wild,
	}}

	res, err := Volatility(src).Score(context.Background(), "CALM", nil)
	require.NoError(t, err)
	assert.Equal(t, "LOW_RISK", res.Verdict)
	assert.Less(t, res.Value.(float64), 0.05)

	res, err = Volatility(src).Score(context.Background(), "WILD", nil)
	require.NoError(t, err)
	assert.Equal(t, "HIGH_RISK", res.Verdict)
	assert.Greater(t, res.Value.(float64), 0.05)
}

func TestTailRisk(t *testing.T) {
	src := fakeSource{series: map[string][]float64{
		"price_series:CALM":  {100, 100.5, 100.2, 100.6, 100.4, 100.8, 101},
		"price_series:CRASH": {100, 104, 90, 70, 75, 60, 62},
		"price_series:SHORT": {100, 101, 102},
	}}

	res, err := TailRisk(src).Score(context.Background(), "CALM", nil)
	require.NoError(t, err)
	assert.Equal(t, "CONTAINED", res.Verdict)
	assert.Greater(t, res.Confidence, 0.9)

	res, err = TailRisk(src).Score(context.Background(), "CRASH", nil)
	require.NoError(t, err)
	assert.Equal(t, "FAT_TAIL", res.Verdict)
	assert.InDelta(t, 0.4231, res.Details["max_drawdown"], 1e-4)

	_, err = TailRisk(src).Score(context.Background(), "SHORT", nil)
	assert.True(t, errors.Is(err, scoring.ErrInvalidInput))
}

func TestBenchmarkTrend_UsesBenchmarkSymbol(t *testing.T) {
	src := fakeSource{series: map[string][]float64{"price_series:QQQ": {100, 104, 108}}}

	res, err := BenchmarkTrend(src, "QQQ").Score(context.Background(), "AAPL", nil)
	require.NoError(t, err)
	assert.Equal(t, "RISK_ON", res.Verdict)
	assert.Equal(t, "QQQ", res.Details["benchmark"])
}

func TestConsensus(t *testing.T) {
	prior := scoring.Prior{
		"valuation": {{AgentName: "pe_ratio", Verdict: "UNDERVALUED", Confidence: 0.9}},
		"technical": {
			{AgentName: "price_momentum", Verdict: "BULLISH", Confidence: 0.7},
			contracts.ErrorResult("AAPL", "rsi", contracts.ErrorKindUnitError, "boom"),
		},
	}

	res, err := Consensus([]string{"valuation", "technical", "sentiment"}).Score(context.Background(), "AAPL", prior)
	require.NoError(t, err)
	assert.Equal(t, "CONSENSUS_POSITIVE", res.Verdict)
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)
	assert.Equal(t, 2, res.Value)

	_, err = Consensus([]string{"valuation"}).Score(context.Background(), "AAPL", scoring.Prior{})
	assert.True(t, data.IsNoData(err))
}

func TestRegister(t *testing.T) {
	reg := scoring.NewRegistry([]string{"valuation", "technical", "market", "risk", "sentiment"})

	n, err := Register(reg, fakeSource{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 5, n, "intelligence is not configured and must be skipped")

	assert.Len(t, reg.Units("risk"), 2)

	market := reg.Units("market")
	require.Len(t, market, 1)
	assert.Equal(t, "SPY", market[0].Discriminator)

	// 두 번째 등록은 중복 오류
	_, err = Register(reg, fakeSource{}, Options{})
	var cfgErr *scoring.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}
