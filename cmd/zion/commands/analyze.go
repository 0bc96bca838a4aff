package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/zion/internal/brain"
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze SYMBOL",
	Short: "종목 분석 실행",
	Long: `Analyzes one symbol over the configured categories.

Categories run in dependency order; dependencies of the requested
categories are included automatically. Results are cached, so an
identical request inside the analysis TTL returns the same document.

Example:
  go run ./cmd/zion analyze AAPL
  go run ./cmd/zion analyze MSFT --categories risk --refresh
  go run ./cmd/zion analyze NVDA --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var (
	analyzeCategories []string
	analyzeRefresh    bool
	analyzeJSON       bool
)

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringSliceVar(&analyzeCategories, "categories", nil, "categories to run (default all)")
	analyzeCmd.Flags().BoolVar(&analyzeRefresh, "refresh", false, "bypass the analysis cache")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the raw JSON result")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	opts := brain.RunOptions{ForceRefresh: analyzeRefresh}
	out := cmd.OutOrStdout()

	if analyzeJSON {
		body, err := app.Orchestrator.RunJSON(ctx, args[0], analyzeCategories, opts)
		if err != nil {
			return fmt.Errorf("analyze %s: %w", args[0], err)
		}
		_, err = fmt.Fprintln(out, string(body))
		return err
	}

	res, err := app.Orchestrator.Run(ctx, args[0], analyzeCategories, opts)
	if err != nil {
		return fmt.Errorf("analyze %s: %w", args[0], err)
	}
	PrintAnalysis(out, res)
	return nil
}
