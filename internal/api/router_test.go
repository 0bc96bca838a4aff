package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/zion/internal/analysisconfig"
	"github.com/wonny/zion/internal/api/handlers"
	"github.com/wonny/zion/internal/brain"
	"github.com/wonny/zion/internal/cache"
	"github.com/wonny/zion/internal/contracts"
	"github.com/wonny/zion/internal/data/repos"
	"github.com/wonny/zion/internal/resilience"
	"github.com/wonny/zion/internal/scoring"
	"github.com/wonny/zion/pkg/logger"
)

type fakeAnalyzer struct {
	symbol     string
	categories []string
	opts       brain.RunOptions
	err        error
}

func (f *fakeAnalyzer) RunJSON(_ context.Context, symbol string, categories []string, opts brain.RunOptions) ([]byte, error) {
	f.symbol, f.categories, f.opts = symbol, categories, opts
	if f.err != nil {
		return nil, f.err
	}
	return []byte(fmt.Sprintf(`{"symbol":%q,"verdict":"BUY"}`, symbol)), nil
}

type fakeHistory struct {
	latest *contracts.AnalysisResult
	runs   []repos.RunSummary
}

func (f *fakeHistory) GetLatest(_ context.Context, symbol string) (*contracts.AnalysisResult, error) {
	if f.latest == nil || f.latest.Symbol != symbol {
		return nil, repos.ErrNotFound
	}
	return f.latest, nil
}

func (f *fakeHistory) ListRecent(_ context.Context, _ string, limit int) ([]repos.RunSummary, error) {
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func newTestRouter(t *testing.T, a handlers.Analyzer, h handlers.History) http.Handler {
	t.Helper()

	graph, err := brain.NewGraph([]analysisconfig.Category{
		{Name: "technical", Weight: 0.6},
		{Name: "risk", Weight: 0.4, Required: true, Dependencies: []string{"technical"}},
	})
	require.NoError(t, err)

	reg := scoring.NewRegistry(graph.Names())
	require.NoError(t, reg.RegisterScoringUnit("risk", scoring.UnitFunc("volatility",
		func(context.Context, string, scoring.Prior) (contracts.UnitResult, error) {
			return contracts.UnitResult{}, nil
		})))

	breakers := resilience.NewBreakers(func(string) resilience.BreakerConfig {
		return resilience.BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute}
	})
	breakers.Get("finnhub").RecordFailure()
	breakers.Get("alpha_vantage")

	return NewRouter(Routes{
		Analysis: handlers.NewAnalysisHandler(a, h, logger.Nop()),
		Engine:   handlers.NewEngineHandler(graph, reg, breakers, nil, "abc123", logger.Nop()),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("zion_up 1\n"))
		}),
	}, logger.Nop())
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t, &fakeAnalyzer{}, nil)

	rec := get(t, r, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = get(t, r, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "zion_up 1")
}

func TestAnalyze(t *testing.T) {
	a := &fakeAnalyzer{}
	r := newTestRouter(t, a, nil)

	rec := get(t, r, "/api/analysis/AAPL?categories=risk,%20technical,&refresh=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"symbol":"AAPL","verdict":"BUY"}`, rec.Body.String())

	assert.Equal(t, "AAPL", a.symbol)
	assert.Equal(t, []string{"risk", "technical"}, a.categories)
	assert.True(t, a.opts.ForceRefresh)
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown category", fmt.Errorf("resolve: %w", brain.ErrUnknownCategory), http.StatusBadRequest},
		{"invalid symbol", brain.ErrInvalidSymbol, http.StatusBadRequest},
		{"cache failure", errors.New("redis: connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, &fakeAnalyzer{err: tt.err}, nil)
			rec := get(t, r, "/api/analysis/AAPL")
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestHistory(t *testing.T) {
	h := &fakeHistory{
		latest: &contracts.AnalysisResult{RunID: "r1", Symbol: "AAPL", Verdict: contracts.VerdictHold},
		runs:   []repos.RunSummary{{RunID: "r2"}, {RunID: "r1"}},
	}
	r := newTestRouter(t, &fakeAnalyzer{}, h)

	rec := get(t, r, "/api/analysis/aapl/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"run_id":"r1"`)

	rec = get(t, r, "/api/analysis/MSFT/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, r, "/api/analysis/AAPL/history?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Symbol string              `json:"symbol"`
		Runs   []repos.RunSummary `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "AAPL", body.Symbol)
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "r2", body.Runs[0].RunID)
}

// memHistory stores runs saved by the orchestrator
type memHistory struct {
	mu   sync.Mutex
	runs []*contracts.AnalysisResult
}

func (m *memHistory) SaveAnalysis(_ context.Context, res *contracts.AnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, res)
	return nil
}

func (m *memHistory) GetLatest(_ context.Context, symbol string) (*contracts.AnalysisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.runs) - 1; i >= 0; i-- {
		if m.runs[i].Symbol == symbol {
			return m.runs[i], nil
		}
	}
	return nil, repos.ErrNotFound
}

func (m *memHistory) ListRecent(_ context.Context, symbol string, _ int) ([]repos.RunSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repos.RunSummary
	for _, r := range m.runs {
		if r.Symbol == symbol {
			out = append(out, repos.RunSummary{RunID: r.RunID, Symbol: r.Symbol})
		}
	}
	return out, nil
}

func TestAnalyze_MixedCaseSymbolMatchesHistory(t *testing.T) {
	graph, err := brain.NewGraph([]analysisconfig.Category{{Name: "technical", Weight: 1}})
	require.NoError(t, err)

	reg := scoring.NewRegistry(graph.Names())
	require.NoError(t, reg.RegisterScoringUnit("technical", scoring.UnitFunc("momentum",
		func(context.Context, string, scoring.Prior) (contracts.UnitResult, error) {
			return contracts.UnitResult{Verdict: "BULLISH", Confidence: 0.6}, nil
		})))

	c := cache.New(cache.NewMemoryStore())
	orch := brain.NewOrchestrator(graph, reg,
		scoring.NewRunner(c, time.Hour, logger.Nop()), c,
		brain.NewAggregator(analysisconfig.Verdict{StrongBuy: 0.7, Buy: 0.5, Hold: 0.3}, analysisconfig.Regime{}),
		brain.Options{AnalysisTTL: time.Minute}, logger.Nop())
	history := &memHistory{}
	orch.WithRecorder(history)

	r := newTestRouter(t, orch, history)

	rec := get(t, r, "/api/analysis/aapl")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"symbol":"AAPL"`)

	rec = get(t, r, "/api/analysis/aapl/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"symbol":"AAPL"`)

	rec = get(t, r, "/api/analysis/Aapl/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"run_id"`)

	// 대소문자만 다른 요청은 같은 캐시 항목
	rec = get(t, r, "/api/analysis/AAPL")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, history.runs, 1)
}

func TestHistory_Disabled(t *testing.T) {
	r := newTestRouter(t, &fakeAnalyzer{}, nil)

	assert.Equal(t, http.StatusServiceUnavailable, get(t, r, "/api/analysis/AAPL/latest").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, r, "/api/analysis/AAPL/history").Code)
}

func TestCategories(t *testing.T) {
	r := newTestRouter(t, &fakeAnalyzer{}, nil)

	rec := get(t, r, "/api/categories")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ConfigHash string                  `json:"config_hash"`
		Categories []handlers.CategoryInfo `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "abc123", body.ConfigHash)
	require.Len(t, body.Categories, 2)
	assert.Equal(t, "technical", body.Categories[0].Name)
	assert.Empty(t, body.Categories[0].Units)
	assert.Equal(t, []string{"volatility"}, body.Categories[1].Units)
	assert.True(t, body.Categories[1].Required)
}

func TestBreakers(t *testing.T) {
	r := newTestRouter(t, &fakeAnalyzer{}, nil)

	rec := get(t, r, "/api/breakers")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Breakers []struct {
			Name  string `json:"name"`
			State string `json:"state"`
		} `json:"breakers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Breakers, 2)
	assert.Equal(t, "alpha_vantage", body.Breakers[0].Name)
	assert.Equal(t, "CLOSED", body.Breakers[0].State)
	assert.Equal(t, "OPEN", body.Breakers[1].State)
}

func TestJobs_NoScheduler(t *testing.T) {
	r := newTestRouter(t, &fakeAnalyzer{}, nil)

	rec := get(t, r, "/api/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"jobs":{}}`, rec.Body.String())
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analysis/X", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}
