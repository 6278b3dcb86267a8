package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webqa/internal/config"
	"webqa/internal/logging"
)

var (
	// Global flags
	configPath string
	reportDir  string
	logLevel   string

	// Logger
	logger    *zap.Logger
	logCloser func()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "webqa",
	Short: "webQA - LLM-driven web application test orchestrator",
	Long: `webQA runs automated QA test suites against a live web application.

It drives real Chromium sessions, plans UI test cases with an LLM, executes
them through a DOM-aware action layer, and aggregates everything into a
single HTML report.

Use "webqa run" for a one-shot run from a config file, or "webqa serve" to
expose a submission queue over HTTP.`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured test suite once and write the report",
	Long: `Loads the config file, launches a browser pool, executes every enabled
test configuration in dependency-aware batches, and writes JSON and HTML
reports into the run's report directory.

Example:
  webqa run --config webqa.yaml`,
	RunE: runSuite,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API with a background test worker",
	Long: `Starts the submission API. Tasks are queued FIFO and executed one at a
time by a background worker; clients poll task status and fetch report
paths when a task completes.

Example:
  webqa serve --config webqa.yaml --port 8080`,
	RunE: serve,
}

var servePort int

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "webqa.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&reportDir, "report-dir", "", "report directory override")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "console log level (debug, info, warn, error)")

	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}

// setup loads the config and builds the run logger shared by both commands.
func setup() (*config.Config, config.RunContext, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, config.RunContext{}, err
	}

	rc := config.NewRunContext()
	if reportDir != "" {
		rc = config.NewRunContextAt(reportDir)
	}
	if err := rc.EnsureDirs(); err != nil {
		return nil, config.RunContext{}, fmt.Errorf("create run dirs: %w", err)
	}

	logger, logCloser, err = logging.New(logging.Options{
		Dir:     rc.LogsDir,
		Level:   logLevel,
		Console: cfg.Log.Console,
	})
	if err != nil {
		return nil, config.RunContext{}, err
	}
	return cfg, rc, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
