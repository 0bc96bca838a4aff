package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/zion/internal/scheduler"
	"github.com/wonny/zion/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `Watchlist refresh scheduler.

Subcommands:
  start   - 스케줄러 시작 (WATCHLIST, REFRESH_SCHEDULE)
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행

Example:
  WATCHLIST=AAPL,MSFT go run ./cmd/zion scheduler start
  go run ./cmd/zion scheduler run analysis_refresh`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Args:  cobra.NoArgs,
		RunE:  runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		Args:  cobra.NoArgs,
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

// newScheduler registers every job against the bootstrapped engine
func newScheduler(app *App) (*scheduler.Scheduler, error) {
	sched := scheduler.New(app.Logger)

	refresh := jobs.NewAnalysisRefreshJob(
		app.Orchestrator,
		app.Config.Watchlist,
		nil,
		app.Config.RefreshSchedule,
		app.Logger.Component("analysis_refresh"),
	)
	if err := sched.AddJob(refresh); err != nil {
		return nil, fmt.Errorf("add job: %w", err)
	}

	return sched, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=== Zion Scheduler ===")

	app, err := bootstrap(context.Background())
	if err != nil {
		return err
	}
	defer app.Close()

	sched, err := newScheduler(app)
	if err != nil {
		return err
	}
	sched.Start()

	fmt.Fprintln(out, "\n✅ Scheduler started successfully")
	fmt.Fprintln(out, "\nRegistered jobs:")
	for name, stats := range sched.GetJobStats() {
		fmt.Fprintf(out, "  - %s (%s)\n", name, stats.Schedule)
	}
	fmt.Fprintf(out, "\nWatchlist: %v\n", app.Config.Watchlist)
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	sched.Stop()
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	app, err := bootstrap(context.Background())
	if err != nil {
		return err
	}
	defer app.Close()

	sched, err := newScheduler(app)
	if err != nil {
		return err
	}

	stats := sched.GetJobStats()
	for _, name := range sched.GetAllJobs() {
		fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", name, stats[name].Schedule)
	}
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	sched, err := newScheduler(app)
	if err != nil {
		return err
	}

	res, err := sched.RunNow(ctx, args[0])
	if err != nil {
		return err
	}
	PrintJobResult(cmd.OutOrStdout(), res)
	if !res.Success {
		return fmt.Errorf("job %s failed", res.JobName)
	}
	return nil
}
