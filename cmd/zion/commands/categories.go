package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// categoriesCmd represents the categories command
var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "카테고리 실행 순서 조회",
	Long: `Prints categories in execution order with weights, dependencies,
registered units and the data sources behind each kind.`,
	Args: cobra.NoArgs,
	RunE: runCategories,
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
}

func runCategories(cmd *cobra.Command, args []string) error {
	app, err := bootstrap(context.Background())
	if err != nil {
		return err
	}
	defer app.Close()

	order, err := app.Graph.ResolveOrder(nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	units := app.Registry.Summary()

	fmt.Fprintln(out, ruleHeavy)
	fmt.Fprintf(out, "  Config    : %s\n", app.Config.AnalysisConfigPath)
	fmt.Fprintf(out, "  Hash      : %s\n", app.ConfigHash)
	fmt.Fprintln(out, ruleLight)

	for i, name := range order {
		c, _ := app.Graph.Category(name)
		req := ""
		if c.Required {
			req = " (required)"
		}
		fmt.Fprintf(out, "  %d. %-14s w=%.2f%s\n", i+1, name, c.Weight, req)
		if len(c.Dependencies) > 0 {
			fmt.Fprintf(out, "       depends on: %s\n", strings.Join(c.Dependencies, ", "))
		}
		if u := units[name]; len(u) > 0 {
			fmt.Fprintf(out, "       units: %s\n", strings.Join(u, ", "))
		}
	}

	fmt.Fprintln(out, ruleLight)
	for _, kind := range app.Provider.Kinds() {
		fmt.Fprintf(out, "  %-14s %s\n", kind, strings.Join(app.Provider.Sources(kind), " → "))
	}
	fmt.Fprintln(out, ruleHeavy)
	return nil
}
