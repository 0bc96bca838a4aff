package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/wonny/zion/internal/contracts"
	"github.com/wonny/zion/internal/scheduler"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const (
	ruleHeavy = "═══════════════════════════════════════════════════════════"
	ruleLight = "───────────────────────────────────────────────────────────"
)

// PrintAnalysis prints a human-readable analysis report
func PrintAnalysis(w io.Writer, res *contracts.AnalysisResult) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, ruleHeavy)
	fmt.Fprintf(w, "  %s  %s (%.4f)\n", res.Symbol, res.Verdict, res.Confidence)
	fmt.Fprintln(w, ruleLight)
	fmt.Fprintf(w, "  Run ID    : %s\n", res.RunID)
	fmt.Fprintf(w, "  Regime    : %s\n", res.Regime)
	fmt.Fprintf(w, "  Duration  : %dms\n", res.ExecutionMetrics.DurationMS)
	fmt.Fprintf(w, "  Units     : %d invoked, %d failed\n",
		res.ExecutionMetrics.UnitsInvoked, res.ExecutionMetrics.UnitsFailed)
	fmt.Fprintln(w, ruleLight)

	for _, name := range res.Categories {
		cr := res.CategoryResults[name]

		score := "     -"
		if v, ok := res.Contributing[name]; ok {
			score = fmt.Sprintf("%.4f", v)
		}
		flags := categoryFlags(cr)
		fmt.Fprintf(w, "  %-14s %s  w=%.2f  %d/%d ok%s\n",
			name, score, res.WeightsUsed[name], cr.Succeeded(), cr.Count, flags)

		for _, r := range cr.Results {
			line := fmt.Sprintf("      %-18s %-14s %.4f", r.AgentName, r.Verdict, r.Confidence)
			if r.Error != nil {
				line += "  " + *r.Error
			}
			fmt.Fprintln(w, line)
		}
	}

	fmt.Fprintln(w, ruleHeavy)
}

func categoryFlags(cr contracts.CategoryResult) string {
	var flags []string
	if cr.Degraded {
		flags = append(flags, "degraded")
	}
	if cr.Error != "" {
		flags = append(flags, "error: "+cr.Error)
	}
	if len(flags) == 0 {
		return ""
	}
	return "  [" + strings.Join(flags, ", ") + "]"
}

// PrintJobResult prints the outcome of a scheduler job run
func PrintJobResult(w io.Writer, res scheduler.JobResult) {
	if res.Success {
		fmt.Fprintf(w, "✅ %s completed in %.2fs\n", res.JobName, res.Duration.Seconds())
		return
	}
	fmt.Fprintf(w, "❌ %s failed after %.2fs: %s\n", res.JobName, res.Duration.Seconds(), res.Error)
}
