package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wonny/zion/internal/brain"
	"github.com/wonny/zion/internal/contracts"
	"github.com/wonny/zion/internal/data/repos"
	"github.com/wonny/zion/pkg/logger"
)

// Analyzer runs analyses and returns the encoded result
type Analyzer interface {
	RunJSON(ctx context.Context, symbol string, categories []string, opts brain.RunOptions) ([]byte, error)
}

// History reads stored analysis runs
type History interface {
	GetLatest(ctx context.Context, symbol string) (*contracts.AnalysisResult, error)
	ListRecent(ctx context.Context, symbol string, limit int) ([]repos.RunSummary, error)
}

// AnalysisHandler handles analysis API endpoints
// ⭐ SSOT: 분석 API 핸들러는 이 구조체에서만
type AnalysisHandler struct {
	analyzer Analyzer
	history  History
	logger   *logger.Logger
}

// NewAnalysisHandler creates a new analysis handler. history may be nil when
// persistence is disabled.
func NewAnalysisHandler(a Analyzer, history History, log *logger.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		analyzer: a,
		history:  history,
		logger:   log,
	}
}

// Analyze runs (or serves from cache) the analysis of one symbol
// GET /api/analysis/{symbol}?categories=valuation,technical&refresh=true
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	q := r.URL.Query()

	categories := splitList(q.Get("categories"))
	refresh, _ := strconv.ParseBool(q.Get("refresh"))

	body, err := h.analyzer.RunJSON(r.Context(), symbol, categories, brain.RunOptions{ForceRefresh: refresh})
	if err != nil {
		switch {
		case errors.Is(err, brain.ErrInvalidSymbol), errors.Is(err, brain.ErrUnknownCategory):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.WithError(err).WithField("symbol", symbol).Error("Analysis failed")
			respondError(w, http.StatusInternalServerError, "Failed to run analysis")
		}
		return
	}

	respondRaw(w, http.StatusOK, body)
}

// GetLatest returns the most recent stored analysis
// GET /api/analysis/{symbol}/latest
func (h *AnalysisHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondError(w, http.StatusServiceUnavailable, "Analysis history is disabled")
		return
	}

	symbol := brain.NormalizeSymbol(mux.Vars(r)["symbol"])
	res, err := h.history.GetLatest(r.Context(), symbol)
	if errors.Is(err, repos.ErrNotFound) {
		respondError(w, http.StatusNotFound, "No stored analysis for "+symbol)
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("symbol", symbol).Error("Failed to get latest analysis")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve analysis")
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// ListHistory returns stored run summaries, newest first
// GET /api/analysis/{symbol}/history?limit=20
func (h *AnalysisHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondError(w, http.StatusServiceUnavailable, "Analysis history is disabled")
		return
	}

	symbol := brain.NormalizeSymbol(mux.Vars(r)["symbol"])
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	runs, err := h.history.ListRecent(r.Context(), symbol, limit)
	if err != nil {
		h.logger.WithError(err).WithField("symbol", symbol).Error("Failed to list analysis history")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve analysis history")
		return
	}
	if runs == nil {
		runs = []repos.RunSummary{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"runs":   runs,
	})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
