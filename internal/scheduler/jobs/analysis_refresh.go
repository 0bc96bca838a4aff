package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/zion/internal/brain"
	"github.com/wonny/zion/internal/contracts"
	"github.com/wonny/zion/pkg/logger"
)

// DefaultRefreshSchedule runs the refresh every 15 minutes (with seconds)
const DefaultRefreshSchedule = "0 */15 * * * *"

// Analyzer is the orchestrator surface the refresh job needs
type Analyzer interface {
	Run(ctx context.Context, symbol string, categories []string, opts brain.RunOptions) (*contracts.AnalysisResult, error)
}

// AnalysisRefreshJob re-analyzes every watchlist symbol, bypassing the analysis cache
// ⭐ SSOT: 워치리스트 갱신 스케줄은 이 Job에서만
type AnalysisRefreshJob struct {
	analyzer   Analyzer
	watchlist  []string
	categories []string
	schedule   string
	logger     *logger.Logger
}

// NewAnalysisRefreshJob creates a new refresh job. An empty schedule uses DefaultRefreshSchedule;
// empty categories analyze every configured category.
func NewAnalysisRefreshJob(a Analyzer, watchlist, categories []string, schedule string, log *logger.Logger) *AnalysisRefreshJob {
	if schedule == "" {
		schedule = DefaultRefreshSchedule
	}
	symbols := make([]string, 0, len(watchlist))
	for _, s := range watchlist {
		if s = brain.NormalizeSymbol(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	return &AnalysisRefreshJob{
		analyzer:   a,
		watchlist:  symbols,
		categories: categories,
		schedule:   schedule,
		logger:     log,
	}
}

// Name returns the job name
func (j *AnalysisRefreshJob) Name() string {
	return "analysis_refresh"
}

// Schedule returns the cron schedule
func (j *AnalysisRefreshJob) Schedule() string {
	return j.schedule
}

// Run analyzes each symbol in turn. A failing symbol does not stop the others;
// the job fails only when no symbol succeeded.
func (j *AnalysisRefreshJob) Run(ctx context.Context) error {
	if len(j.watchlist) == 0 {
		j.logger.Debug("Watchlist empty, nothing to refresh")
		return nil
	}

	j.logger.WithField("symbols", len(j.watchlist)).Info("Starting watchlist refresh")

	var errs []error
	for _, symbol := range j.watchlist {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("refresh interrupted: %w", err)
		}

		res, err := j.analyzer.Run(ctx, symbol, j.categories, brain.RunOptions{ForceRefresh: true})
		if err != nil {
			j.logger.WithError(err).WithField("symbol", symbol).Warn("Refresh failed")
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
			continue
		}

		j.logger.WithFields(map[string]interface{}{
			"symbol":     symbol,
			"verdict":    res.Verdict,
			"confidence": res.Confidence,
			"regime":     res.Regime,
		}).Info("Symbol refreshed")
	}

	if len(errs) == len(j.watchlist) {
		return fmt.Errorf("all %d symbols failed: %w", len(errs), errors.Join(errs...))
	}
	if len(errs) > 0 {
		j.logger.Warnf("Watchlist refresh finished with %d/%d failures", len(errs), len(j.watchlist))
	} else {
		j.logger.Info("Watchlist refresh completed")
	}
	return nil
}
