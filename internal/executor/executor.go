// Package executor runs every enabled test of a session in dependency-ordered
// batches, bounded by the configured concurrency, and finalizes the session
// with aggregated results and report artifacts on every termination path.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"webqa/internal/browser"
	"webqa/internal/llm"
	"webqa/internal/report"
	"webqa/internal/runner"
	"webqa/internal/types"
)

// SentinelNoSession is the execution-context session id for tests that run
// without a browser.
const SentinelNoSession = "security_test_no_session"

// Executor schedules the tests of one session.
type Executor struct {
	manager  *browser.SessionManager
	registry *runner.Registry
	client   llm.Client
	logger   *zap.Logger

	maxConcurrent int
	reportDir     string

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// Options configure an executor.
type Options struct {
	MaxConcurrent int
	ReportDir     string
}

// New builds an executor over a session manager and runner registry.
func New(manager *browser.SessionManager, registry *runner.Registry, client llm.Client, opts Options, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}
	return &Executor{
		manager:       manager,
		registry:      registry,
		client:        client,
		logger:        logger.Named("executor"),
		maxConcurrent: opts.MaxConcurrent,
		reportDir:     opts.ReportDir,
		running:       make(map[string]context.CancelFunc),
	}
}

// ExecuteParallelTests runs all enabled configurations in batches and
// finalizes the session. The returned error reflects scheduling problems;
// per-test failures land in the session results.
func (e *Executor) ExecuteParallelTests(ctx context.Context, session *types.TestSession) error {
	session.StartTime = time.Now()
	batches := ResolveBatches(session.EnabledConfigurations(), e.maxConcurrent)
	e.logger.Info("test run starting",
		zap.Int("tests", len(session.Configurations)),
		zap.Int("batches", len(batches)),
		zap.Int("max_concurrent", e.maxConcurrent))

	defer e.finalize(session)

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			e.markRemaining(session, batches[i:], "run cancelled before batch started")
			return err
		}
		e.runBatch(ctx, session, batch)
	}
	return ctx.Err()
}

// runBatch executes one batch concurrently under a semaphore sized
// min(maxConcurrent, len(batch)).
func (e *Executor) runBatch(ctx context.Context, session *types.TestSession, batch []*types.TestConfiguration) {
	limit := e.maxConcurrent
	if len(batch) < limit {
		limit = len(batch)
	}
	sem := semaphore.NewWeighted(int64(limit))

	var wg sync.WaitGroup
	for _, cfg := range batch {
		if err := sem.Acquire(ctx, 1); err != nil {
			result := newSeededResult(cfg)
			result.ErrorMessage = "cancelled while waiting for a slot"
			result.Finish(types.StatusCancelled)
			e.storeResult(session, result)
			continue
		}
		wg.Add(1)
		go func(cfg *types.TestConfiguration) {
			defer wg.Done()
			defer sem.Release(1)
			e.runOne(ctx, session, cfg)
		}(cfg)
	}
	wg.Wait()
}

// runOne owns the full lifecycle of a single test: session creation,
// navigation, runner invocation, result recording, session release.
func (e *Executor) runOne(ctx context.Context, session *types.TestSession, cfg *types.TestConfiguration) {
	testCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	e.mu.Lock()
	e.running[cfg.TestID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.running, cfg.TestID)
		e.mu.Unlock()
	}()

	execCtx := session.ExecutionContexts[cfg.TestID]
	if execCtx == nil {
		execCtx = &types.TestExecutionContext{TestID: cfg.TestID}
		session.ExecutionContexts[cfg.TestID] = execCtx
	}
	execCtx.StartExecution()

	var (
		sess      *browser.Session
		sessionID = SentinelNoSession
	)
	if cfg.TestType.RequiresBrowser() {
		var err error
		sess, err = e.manager.CreateSession(testCtx, cfg.BrowserConfig)
		if err != nil {
			e.recordFailure(session, cfg, execCtx, fmt.Errorf("create browser session: %w", err))
			return
		}
		sessionID = sess.ID
		defer func() {
			if err := e.manager.Release(sess.ID); err != nil {
				e.logger.Debug("session release", zap.String("session_id", sess.ID), zap.Error(err))
			}
		}()

		if err := sess.Navigate(testCtx, session.TargetURL, cfg.BrowserConfig.Cookies); err != nil {
			e.recordFailure(session, cfg, execCtx, fmt.Errorf("navigate: %w", err))
			return
		}
	}
	execCtx.SessionID = sessionID

	r, err := e.registry.For(cfg.TestType)
	if err != nil {
		e.recordFailure(session, cfg, execCtx, err)
		return
	}

	e.logger.Info("test starting",
		zap.String("test_id", cfg.TestID),
		zap.String("type", string(cfg.TestType)),
		zap.String("session_id", sessionID))

	result := e.invoke(testCtx, r, runner.Input{
		Session:   sess,
		Config:    cfg,
		Client:    e.client,
		LLMConfig: session.LLMConfig,
		TargetURL: session.TargetURL,
		ReportDir: e.reportDir,
		Logger:    e.logger.With(zap.String("test_id", cfg.TestID)),
	})

	if testCtx.Err() != nil && !result.Status.IsTerminal() {
		result.Finish(types.StatusCancelled)
	}
	if testCtx.Err() != nil && result.Status == types.StatusFailed && ctx.Err() != nil {
		// Failure caused by run-wide cancellation reports as cancelled.
		result.Status = types.StatusCancelled
	}

	execCtx.CompleteExecution(result.Status == types.StatusPassed, result.ErrorMessage)
	e.storeResult(session, result)
	e.logger.Info("test finished",
		zap.String("test_id", cfg.TestID),
		zap.String("status", string(result.Status)),
		zap.Float64("duration_s", result.Duration))
}

// invoke shields the scheduler from a panicking runner.
func (e *Executor) invoke(ctx context.Context, r runner.Runner, in runner.Input) (result *types.TestResult) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("runner panicked",
				zap.String("test_id", in.Config.TestID),
				zap.Any("panic", rec))
			result = newSeededResult(in.Config)
			result.ErrorMessage = fmt.Sprintf("runner panic: %v", rec)
			result.Finish(types.StatusFailed)
		}
	}()
	return r.Run(ctx, in)
}

func (e *Executor) recordFailure(session *types.TestSession, cfg *types.TestConfiguration, execCtx *types.TestExecutionContext, err error) {
	result := newSeededResult(cfg)
	result.ErrorMessage = err.Error()
	result.Finish(types.StatusFailed)
	execCtx.CompleteExecution(false, err.Error())
	e.storeResult(session, result)
	e.logger.Warn("test failed to start",
		zap.String("test_id", cfg.TestID),
		zap.Error(err))
}

func (e *Executor) storeResult(session *types.TestSession, result *types.TestResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := session.UpdateTestResult(result); err != nil {
		e.logger.Error("result rejected", zap.String("test_id", result.TestID), zap.Error(err))
	}
}

func (e *Executor) markRemaining(session *types.TestSession, batches [][]*types.TestConfiguration, reason string) {
	for _, batch := range batches {
		for _, cfg := range batch {
			if _, exists := session.Results[cfg.TestID]; exists {
				continue
			}
			result := newSeededResult(cfg)
			result.ErrorMessage = reason
			result.Finish(types.StatusCancelled)
			e.storeResult(session, result)
		}
	}
}

// CancelTest cancels one running test.
func (e *Executor) CancelTest(testID string) bool {
	e.mu.Lock()
	cancel, found := e.running[testID]
	e.mu.Unlock()
	if found {
		cancel()
	}
	return found
}

// CancelAll cancels every running test and closes the session manager.
func (e *Executor) CancelAll() {
	e.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(e.running))
	for _, cancel := range e.running {
		cancels = append(cancels, cancel)
	}
	e.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	e.manager.CloseAll()
}

// finalize runs on every termination path: close sessions, aggregate, write
// the report artifacts, seal the session.
func (e *Executor) finalize(session *types.TestSession) {
	e.manager.CloseAll()

	// Aggregation may call the model; bound it so a dead endpoint cannot
	// hang teardown.
	aggCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	report.NewAggregator(e.client, e.logger).Aggregate(aggCtx, session)

	if e.reportDir != "" {
		if _, err := report.WriteJSONReport(session, e.reportDir); err != nil {
			e.logger.Error("json report failed", zap.Error(err))
		}
		if _, err := report.WriteHTMLReport(session, e.reportDir); err != nil {
			e.logger.Error("html report failed", zap.Error(err))
		}
	}
	session.CompleteSession()
	e.logger.Info("session finalized",
		zap.String("session_id", session.SessionID),
		zap.Int("results", len(session.Results)))
}

func newSeededResult(cfg *types.TestConfiguration) *types.TestResult {
	return &types.TestResult{
		TestID:    cfg.TestID,
		TestType:  cfg.TestType,
		TestName:  cfg.TestName,
		Category:  types.CategoryFor(cfg.TestType),
		StartTime: time.Now(),
	}
}
