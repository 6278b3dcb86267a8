package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webqa/internal/browser"
	"webqa/internal/config"
	"webqa/internal/executor"
	"webqa/internal/llm"
	"webqa/internal/queue"
	"webqa/internal/runner"
	"webqa/internal/server"
	"webqa/internal/types"
)

// currentExecutor routes cancellation to whichever executor owns the task
// the worker is currently running.
type currentExecutor struct {
	mu   sync.Mutex
	exec *executor.Executor
}

func (c *currentExecutor) set(e *executor.Executor) {
	c.mu.Lock()
	c.exec = e
	c.mu.Unlock()
}

func (c *currentExecutor) CancelTest(testID string) bool {
	c.mu.Lock()
	exec := c.exec
	c.mu.Unlock()
	if exec == nil {
		return false
	}
	return exec.CancelTest(testID)
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, rc, err := setup()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	// Serve mode picks up credential changes without a restart.
	var cfgMu sync.Mutex
	if err := config.Watch(configPath, func(fresh *config.Config) {
		cfgMu.Lock()
		cfg = fresh
		cfgMu.Unlock()
		logger.Info("config reloaded", zap.String("path", configPath))
	}); err != nil {
		logger.Warn("config watch unavailable", zap.Error(err))
	}

	manager := browser.NewSessionManager(logger)
	defer manager.CloseAll()
	registry := runner.NewRegistry()

	q := queue.New(logger)
	canceler := &currentExecutor{}
	srv := server.New(q, canceler, logger)
	metrics := srv.Metrics()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.Worker(ctx, func(taskCtx context.Context, task queue.Task) (interface{}, error) {
			cfgMu.Lock()
			current := cfg
			cfgMu.Unlock()

			started := time.Now()
			result, err := runTask(taskCtx, srv, manager, registry, canceler, current, rc, task)
			canceler.set(nil)

			metrics.TaskDuration.Observe(time.Since(started).Seconds())
			metrics.QueueDepth.Set(float64(q.Len()))
			if err != nil {
				metrics.TasksFinished.WithLabelValues(queue.StatusFailed).Inc()
			} else {
				metrics.TasksFinished.WithLabelValues(queue.StatusCompleted).Inc()
			}
			return result, err
		})
	}()

	port := cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}
	err = srv.ListenAndServe(ctx, fmt.Sprintf(":%d", port))
	wg.Wait()
	return err
}

// runTask executes one queued submission with its own report directory and
// executor so concurrent submissions never share report files.
func runTask(ctx context.Context, srv *server.Server, manager *browser.SessionManager,
	registry *runner.Registry, canceler *currentExecutor, cfg *config.Config,
	rc config.RunContext, task queue.Task) (interface{}, error) {

	req, found := srv.Submission(task.ID)
	if !found {
		return nil, fmt.Errorf("no submission recorded for task %s", task.ID)
	}

	llmCfg := cfg.LLM
	if req.LLMConfig != nil {
		llmCfg = *req.LLMConfig
	}
	client, err := llm.NewFromConfig(ctx, llmCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}

	taskRC := config.NewRunContextAt(filepath.Join(rc.ReportDir, "task_"+task.ID))
	if err := taskRC.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("create task dirs: %w", err)
	}

	exec := executor.New(manager, registry, client, executor.Options{
		MaxConcurrent: cfg.MaxConcurrentTests,
		ReportDir:     taskRC.ReportDir,
	}, logger)
	canceler.set(exec)

	session := types.NewTestSession(task.ID, req.TargetURL, llmCfg)
	browserCfg := cfg.Browser
	if req.BrowserConfig != nil {
		browserCfg = *req.BrowserConfig
	}
	for _, tc := range req.TestConfigurations {
		// Configs arriving over the API are implicitly enabled.
		tc.Enabled = true
		if tc.BrowserConfig.Viewport.Width == 0 {
			tc.BrowserConfig = browserCfg
			if tc.BrowserConfig.Viewport.Width == 0 {
				tc.BrowserConfig = types.DefaultBrowserConfig()
			}
		}
		if err := session.AddTestConfiguration(tc); err != nil {
			return nil, fmt.Errorf("test %s: %w", tc.TestID, err)
		}
	}

	logger.Info("task starting",
		zap.String("task_id", task.ID),
		zap.String("target_url", req.TargetURL),
		zap.Int("tests", len(session.Configurations)))

	if err := exec.ExecuteParallelTests(ctx, session); err != nil {
		return nil, err
	}

	reportPaths := make(map[string]string, len(session.ReportPaths))
	for kind, path := range session.ReportPaths {
		reportPaths[kind] = rc.HostPath(path)
	}
	return map[string]interface{}{
		"session_id":   session.SessionID,
		"report_paths": reportPaths,
		"aggregated":   session.AggregatedResults,
	}, nil
}
