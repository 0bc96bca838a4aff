package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	analysisConfigPath string
	verbose            bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "zion",
	Short: "Zion - multi-category stock analysis engine",
	Long: `Zion Unified CLI

Runs scoring units grouped into weighted categories over resilient
data sources and aggregates them into a single verdict.

Usage:
  go run ./cmd/zion [command]

Examples:
  go run ./cmd/zion analyze AAPL
  go run ./cmd/zion analyze AAPL --categories valuation,technical --json
  go run ./cmd/zion categories
  go run ./cmd/zion serve
  go run ./cmd/zion scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&analysisConfigPath, "analysis-config", "", "analysis YAML (default $ANALYSIS_CONFIG or config/analysis.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
