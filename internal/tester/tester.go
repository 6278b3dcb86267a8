// Package tester records one test case at a time: it plans actions with the
// LLM, executes them against the page, verifies assertions from screenshots,
// and accumulates step records in the shape the runners report.
package tester

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"webqa/internal/actions"
	"webqa/internal/browser"
	"webqa/internal/crawler"
	"webqa/internal/llm"
	"webqa/internal/types"
)

// Case status strings carried on case records until the runner maps them to
// report statuses.
const (
	CaseStatusRunning     = "running"
	CaseStatusPassed      = "passed"
	CaseStatusCompleted   = "completed"
	CaseStatusFailed      = "failed"
	CaseStatusInterrupted = "interrupted"
)

const (
	settleAfterAction = 1500 * time.Millisecond
	idleWait          = 10 * time.Second
	plannerRetries    = 1
	plannerBackoff    = time.Second
)

// UITester drives one action/assertion cycle per step and records the
// results. It is owned by exactly one running test.
type UITester struct {
	session  *browser.Session
	crawl    *crawler.Crawler
	handler  *actions.Handler
	executor *actions.Executor
	client   llm.Client
	logger   *zap.Logger

	targetURL string

	currentName  string
	currentInfo  map[string]interface{}
	currentSteps []types.SubTestStep
	caseStart    time.Time
	stepCounter  int
	active       bool

	allCases []types.SubTestResult
}

// New builds a tester over a live browser session.
func New(session *browser.Session, client llm.Client, targetURL string, logger *zap.Logger) *UITester {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := actions.NewHandler(session.Page(), session.Context(), logger)
	return &UITester{
		session:   session,
		crawl:     crawler.New(session.Page(), logger),
		handler:   handler,
		executor:  actions.NewExecutor(handler, logger),
		client:    client,
		logger:    logger,
		targetURL: targetURL,
	}
}

// Handler exposes the action handler for callers that navigate directly.
func (t *UITester) Handler() *actions.Handler { return t.handler }

// Cases returns the sealed case records accumulated so far.
func (t *UITester) Cases() []types.SubTestResult { return t.allCases }

// StartCase opens a new case. An already-open case is force-finished as
// interrupted first, so there is never more than one open interval.
func (t *UITester) StartCase(name string, info map[string]interface{}) {
	if t.active {
		t.logger.Warn("case still open, force-finishing", zap.String("case", t.currentName))
		t.FinishCase(CaseStatusInterrupted, "interrupted by next case start")
	}
	t.currentName = name
	t.currentInfo = info
	t.currentSteps = nil
	t.stepCounter = 0
	t.caseStart = time.Now()
	t.active = true
	t.logger.Info("case started", zap.String("case", name))
}

// FinishCase seals the open case and appends it to the case list. Monitoring
// counters captured during the case ride along in the messages.
func (t *UITester) FinishCase(status, summary string) {
	if !t.active {
		return
	}
	result := types.SubTestResult{
		Name:         t.currentName,
		Status:       mapCaseStatus(status),
		Steps:        t.currentSteps,
		FinalSummary: summary,
	}
	if t.session != nil && t.session.Monitor() != nil {
		result.Messages = t.session.Monitor().Snapshot()
	}
	t.allCases = append(t.allCases, result)
	t.active = false
	t.logger.Info("case finished",
		zap.String("case", t.currentName),
		zap.String("status", status),
		zap.Int("steps", len(t.currentSteps)))
}

func mapCaseStatus(status string) types.TestStatus {
	switch status {
	case CaseStatusPassed, CaseStatusCompleted:
		return types.StatusPassed
	case CaseStatusFailed, CaseStatusInterrupted:
		return types.StatusFailed
	case CaseStatusRunning:
		return types.StatusRunning
	default:
		return types.StatusIncompleted
	}
}

// Action plans and executes one natural language instruction. The returned
// step is already recorded on the current case.
func (t *UITester) Action(ctx context.Context, instruction, filePath string) (*types.SubTestStep, actions.Result) {
	step := t.newStep(instruction)

	snap, err := t.crawl.Crawl(ctx, crawler.CrawlOptions{Highlight: true, ViewportOnly: true})
	if err != nil {
		return t.sealStep(step, actions.Result{Success: false, Message: fmt.Sprintf("crawl: %v", err)})
	}
	t.handler.SetBuffer(snap.Elements)
	t.handler.SetScrollY(snap.ScrollY)

	markerShot, err := t.handler.B64Screenshot(ctx, false)
	if err != nil {
		t.logger.Warn("marker screenshot failed", zap.Error(err))
	}
	if err := t.crawl.RemoveMarker(ctx); err != nil {
		t.logger.Debug("marker cleanup failed", zap.Error(err))
	}
	if markerShot != "" {
		step.Screenshots = append(step.Screenshots, types.Screenshot{Type: "base64", Data: markerShot})
	}

	plan, raw, err := t.plan(ctx, instruction, snap.Elements.Describe(), markerShot)
	step.ModelIO = raw
	if err != nil {
		return t.sealStep(step, actions.Result{Success: false, Message: fmt.Sprintf("plan: %v", err)})
	}

	for i := range plan.Actions {
		action := &plan.Actions[i]
		if filePath != "" && action.Type == actions.TypeUpload && action.ParamString("file_path") == "" {
			if action.Param == nil {
				action.Param = map[string]interface{}{}
			}
			action.Param["file_path"] = filePath
		}

		res := t.executor.Execute(ctx, action)
		step.Actions = append(step.Actions, types.ActionRecord{
			Type:        action.Type,
			Description: action.Thought,
			Success:     res.Success,
			Message:     res.Message,
		})

		t.settle(ctx)
		if shot, err := t.handler.B64Screenshot(ctx, false); err == nil {
			step.Screenshots = append(step.Screenshots, types.Screenshot{Type: "base64", Data: shot})
		}

		if !res.Success {
			return t.sealStep(step, res)
		}
	}
	return t.sealStep(step, actions.Result{Success: true, Message: fmt.Sprintf("executed %d action(s)", len(plan.Actions))})
}

func (t *UITester) plan(ctx context.Context, instruction, elementMap, screenshot string) (*actions.Plan, string, error) {
	prompt := plannerUserPrompt(t.targetURL, instruction, elementMap)
	opts := []llm.RequestOption{llm.WithTemperature(llm.TemperaturePlan)}
	if screenshot != "" {
		opts = append(opts, llm.WithImages(screenshot))
	}

	var lastErr error
	for attempt := 0; attempt <= plannerRetries; attempt++ {
		if attempt > 0 {
			t.logger.Info("retrying planner", zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(plannerBackoff):
			}
		}
		raw, err := t.client.GetResponse(ctx, plannerSystemPrompt, prompt, opts...)
		if err != nil {
			lastErr = err
			continue
		}
		plan, err := actions.ParsePlan(raw)
		if err != nil {
			lastErr = err
			continue
		}
		return plan, raw, nil
	}
	return nil, "", lastErr
}

// Verify judges an assertion from a highlighted and a plain screenshot plus
// the page text structure. The step is recorded on the current case.
func (t *UITester) Verify(ctx context.Context, assertion string) (*types.SubTestStep, string) {
	step := t.newStep(assertion)

	var pageText string
	snap, err := t.crawl.Crawl(ctx, crawler.CrawlOptions{Highlight: true, HighlightText: true})
	if err != nil {
		t.logger.Warn("verify crawl failed", zap.Error(err))
	} else {
		pageText = snap.Text()
	}

	markerShot, err := t.handler.B64Screenshot(ctx, false)
	if err != nil {
		t.logger.Warn("verify marker screenshot failed", zap.Error(err))
	}
	if err := t.crawl.RemoveMarker(ctx); err != nil {
		t.logger.Debug("marker cleanup failed", zap.Error(err))
	}
	plainShot, err := t.handler.B64Screenshot(ctx, false)
	if err != nil {
		t.logger.Warn("verify screenshot failed", zap.Error(err))
	}
	for _, shot := range []string{markerShot, plainShot} {
		if shot != "" {
			step.Screenshots = append(step.Screenshots, types.Screenshot{Type: "base64", Data: shot})
		}
	}

	raw, err := t.client.GetResponse(ctx, verifierSystemPrompt, verifierUserPrompt(assertion, pageText),
		llm.WithTemperature(llm.TemperatureVerify),
		llm.WithImages(markerShot, plainShot))
	if err != nil {
		step.Error = err.Error()
		t.sealStep(step, actions.Result{Success: false, Message: err.Error()})
		return step, ""
	}
	step.ModelIO = raw

	verdict := ParseVerifyResult(raw)
	t.sealStep(step, actions.Result{Success: verdict.Passed(), Message: verdict.Result})
	return step, raw
}

// ParseVerifyResult normalizes a verifier response. Details always comes back
// as a string list, whatever shape the model produced; undecodable responses
// fail the verification.
func ParseVerifyResult(raw string) VerifyResult {
	var loose map[string]interface{}
	if err := llm.DecodeJSON(llm.StripFences(raw), &loose); err != nil {
		return VerifyResult{Result: "Validation Failed", Details: []string{"unparseable verifier response"}}
	}

	out := VerifyResult{Result: "Validation Failed"}
	if s, ok := loose["Validation Result"].(string); ok {
		out.Result = s
	}
	switch d := loose["Details"].(type) {
	case string:
		if d != "" {
			out.Details = []string{d}
		}
	case []interface{}:
		for _, item := range d {
			out.Details = append(out.Details, fmt.Sprintf("%v", item))
		}
	case map[string]interface{}:
		for k, v := range d {
			out.Details = append(out.Details, fmt.Sprintf("%s: %v", k, v))
		}
	}
	return out
}

func (t *UITester) newStep(description string) *types.SubTestStep {
	t.stepCounter++
	return &types.SubTestStep{
		ID:          t.stepCounter,
		Description: description,
		Status:      CaseStatusRunning,
		StartTime:   time.Now(),
	}
}

func (t *UITester) sealStep(step *types.SubTestStep, res actions.Result) (*types.SubTestStep, actions.Result) {
	step.EndTime = time.Now()
	if res.Success {
		step.Status = CaseStatusPassed
	} else {
		step.Status = CaseStatusFailed
		if step.Error == "" {
			step.Error = res.Message
		}
	}
	if t.active {
		t.currentSteps = append(t.currentSteps, *step)
	}
	return step, res
}

func (t *UITester) settle(ctx context.Context) {
	if t.session == nil {
		return
	}
	if err := t.handler.Page().Context(ctx).Timeout(idleWait).WaitIdle(idleWait); err != nil {
		t.logger.Debug("post-action idle wait gave up", zap.Error(err))
	}
	select {
	case <-ctx.Done():
	case <-time.After(settleAfterAction):
	}
}

// RunnerFormatReport folds all sealed cases into one runner-shaped result.
func (t *UITester) RunnerFormatReport(testID, testName string) *types.TestResult {
	result := &types.TestResult{
		TestID:    testID,
		TestType:  types.TestTypeUIAgent,
		TestName:  testName,
		Category:  types.CategoryFor(types.TestTypeUIAgent),
		StartTime: t.caseStart,
		SubTests:  t.allCases,
		Metrics:   t.aggregateMetrics(),
	}
	result.Finish(result.DeriveStatus())
	return result
}

func (t *UITester) aggregateMetrics() map[string]interface{} {
	totalSteps := 0
	passedSteps := 0
	var netTotal, netFailed, consoleErrors float64

	for _, c := range t.allCases {
		totalSteps += len(c.Steps)
		for _, s := range c.Steps {
			if s.Status == CaseStatusPassed {
				passedSteps++
			}
		}
		if c.Messages == nil {
			continue
		}
		if network, ok := c.Messages["network"].(map[string]interface{}); ok {
			netTotal += numField(network, "total_requests_count")
			netFailed += numField(network, "failed_requests_count")
		}
		if console, ok := c.Messages["console"].(map[string]interface{}); ok {
			consoleErrors += numField(console, "error_count")
		}
	}

	successRate := 0.0
	if totalSteps > 0 {
		successRate = float64(passedSteps) / float64(totalSteps)
	}
	return map[string]interface{}{
		"total_steps":                   totalSteps,
		"success_rate":                  successRate,
		"network_total_requests_count":  netTotal,
		"network_failed_requests_count": netFailed,
		"console_error_count":           consoleErrors,
	}
}

func numField(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	}
	return 0
}
