package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/zion/internal/api"
	"github.com/wonny/zion/internal/api/handlers"
	"github.com/wonny/zion/internal/scheduler"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

Endpoints:
  GET  /health                          - Health check
  GET  /metrics                         - Prometheus metrics
  GET  /api/analysis/{symbol}           - Run or serve cached analysis (?categories=&refresh=)
  GET  /api/analysis/{symbol}/latest    - Latest stored analysis
  GET  /api/analysis/{symbol}/history   - Stored run summaries (?limit=)
  GET  /api/categories                  - Category order, weights and units
  GET  /api/breakers                    - Data source circuit breakers
  GET  /api/jobs                        - Scheduler statistics

Example:
  go run ./cmd/zion serve
  go run ./cmd/zion serve --port 8080 --with-scheduler`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	servePort          string
	serveWithScheduler bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "API 서버 포트 (default $PORT)")
	serveCmd.Flags().BoolVar(&serveWithScheduler, "with-scheduler", false, "run the watchlist refresh scheduler in-process")
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(cmd.OutOrStdout(), "=== Zion API Server ===")

	app, err := bootstrap(context.Background())
	if err != nil {
		return err
	}
	defer app.Close()

	if servePort != "" {
		app.Config.Port = servePort
	}
	log := app.Logger

	var sched *scheduler.Scheduler
	if serveWithScheduler {
		sched, err = newScheduler(app)
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	var history handlers.History
	if app.History != nil {
		history = app.History
	}

	var metricsHandler http.Handler
	if app.Metrics != nil {
		metricsHandler = app.Metrics.Handler()
	}

	router := api.NewRouter(api.Routes{
		Analysis: handlers.NewAnalysisHandler(app.Orchestrator, history, log),
		Engine:   handlers.NewEngineHandler(app.Graph, app.Registry, app.Breakers, sched, app.ConfigHash, log),
		Metrics:  metricsHandler,
	}, log)

	server := api.New(app.Config, log, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "\n✅ Server running on http://localhost:%s\n", app.Config.Port)
	fmt.Fprintln(cmd.OutOrStdout(), "\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
