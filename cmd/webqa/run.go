package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webqa/internal/browser"
	"webqa/internal/config"
	"webqa/internal/executor"
	"webqa/internal/llm"
	"webqa/internal/runner"
	"webqa/internal/types"
)

func runSuite(cmd *cobra.Command, args []string) error {
	cfg, rc, err := setup()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	client, err := llm.NewFromConfig(ctx, cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("llm client: %w", err)
	}

	manager := browser.NewSessionManager(logger)
	defer manager.CloseAll()

	exec := executor.New(manager, runner.NewRegistry(), client, executor.Options{
		MaxConcurrent: cfg.MaxConcurrentTests,
		ReportDir:     rc.ReportDir,
	}, logger)

	session, err := buildSession(cfg)
	if err != nil {
		return err
	}

	logger.Info("run starting",
		zap.String("session_id", session.SessionID),
		zap.String("target_url", cfg.TargetURL),
		zap.Int("tests", len(session.Configurations)))

	if err := exec.ExecuteParallelTests(ctx, session); err != nil {
		logger.Warn("run interrupted", zap.Error(err))
	}

	printSummary(session, rc)
	return nil
}

// buildSession turns the declarative config into a test session. Browser and
// LLM settings on individual tests inherit the top-level defaults unless set.
func buildSession(cfg *config.Config) (*types.TestSession, error) {
	session := types.NewTestSession(uuid.NewString(), cfg.TargetURL, cfg.LLM)

	for i := range cfg.TestConfigurations {
		tc := cfg.TestConfigurations[i]
		if !tc.Enabled {
			continue
		}
		if tc.BrowserConfig.Viewport.Width == 0 {
			tc.BrowserConfig = cfg.Browser
			if tc.BrowserConfig.Viewport.Width == 0 {
				tc.BrowserConfig = types.DefaultBrowserConfig()
			}
		}
		if err := session.AddTestConfiguration(&tc); err != nil {
			return nil, fmt.Errorf("test %s: %w", tc.TestID, err)
		}
	}
	if len(session.Configurations) == 0 {
		return nil, fmt.Errorf("no enabled test configurations")
	}
	return session, nil
}

func printSummary(session *types.TestSession, rc config.RunContext) {
	passed, failed := 0, 0
	for _, result := range session.Results {
		switch result.Status {
		case types.StatusPassed:
			passed++
		case types.StatusFailed:
			failed++
		}
	}
	fmt.Printf("\nTests: %d total, %d passed, %d failed\n", len(session.Results), passed, failed)
	if path, found := session.ReportPaths["html"]; found {
		fmt.Printf("Report: %s\n", rc.HostPath(path))
	}
	if path, found := session.ReportPaths["json"]; found {
		fmt.Printf("Results: %s\n", rc.HostPath(path))
	}
}
