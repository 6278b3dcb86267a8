package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"webqa/internal/crawler"
	"webqa/internal/llm"
	"webqa/internal/tester"
)

// Loop is the exploratory test state machine:
//
//	setup → plan → next case → execute → reflect → {plan | next | done} → cleanup
//
// One loop runs one agent-mode test; it owns the tester handle for that
// duration.
type Loop struct {
	tester     *tester.UITester
	crawl      *crawler.Crawler
	client     llm.Client
	logger     *zap.Logger
	targetURL  string
	objectives string
	reportDir  string

	// reset re-navigates the session for cases that declare reset_session.
	reset func(ctx context.Context, url string) error
}

// Options configure a loop.
type Options struct {
	TargetURL  string
	Objectives string
	ReportDir  string
	Reset      func(ctx context.Context, url string) error
}

// NewLoop wires the loop over a tester and its page.
func NewLoop(t *tester.UITester, client llm.Client, opts Options, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		tester:     t,
		crawl:      crawler.New(t.Handler().Page(), logger),
		client:     client,
		logger:     logger,
		targetURL:  opts.TargetURL,
		objectives: opts.Objectives,
		reportDir:  opts.ReportDir,
		reset:      opts.Reset,
	}
}

// Run drives the state machine to termination. The final state carries the
// executed plan and per-case results; the tester accumulates the step data.
func (l *Loop) Run(ctx context.Context, state *State) error {
	if err := l.planCases(ctx, state); err != nil {
		return err
	}
	if state.GenerateOnly {
		l.logger.Info("generate-only run, stopping after planning",
			zap.Int("cases", len(state.TestCases)))
		return nil
	}
	if len(state.TestCases) == 0 {
		return fmt.Errorf("planner produced no test cases")
	}

	for state.CurrentIndex < len(state.TestCases) {
		if err := ctx.Err(); err != nil {
			return err
		}

		state.CurrentCase = &state.TestCases[state.CurrentIndex]
		l.executeCase(ctx, state)

		decision := l.reflect(ctx, state)
		switch decision {
		case DecisionFinish:
			l.logger.Info("reflector finished the run",
				zap.Int("completed", len(state.CompletedCases)))
			return nil
		case DecisionReplan:
			if err := l.planCases(ctx, state); err != nil {
				l.logger.Warn("replan failed, continuing with current plan", zap.Error(err))
			}
		}
	}
	return nil
}

// planCases asks the model for the case plan, or splices a reflector replan
// into the existing one. The resulting plan is persisted as cases.json.
func (l *Loop) planCases(ctx context.Context, state *State) error {
	if state.IsReplan {
		state.TestCases = SpliceReplan(state.TestCases, state.CurrentIndex, state.ReplannedCases)
		state.ReplannedCases = nil
		state.IsReplan = false
		state.ReplanCount++
		l.logger.Info("plan rewritten by reflector",
			zap.Int("cases", len(state.TestCases)),
			zap.Int("replan_count", state.ReplanCount))
		l.persistPlan(state)
		return nil
	}

	snap, err := l.crawl.Crawl(ctx, crawler.CrawlOptions{Highlight: true, ViewportOnly: true})
	if err != nil {
		return fmt.Errorf("plan crawl: %w", err)
	}
	shot, err := l.tester.Handler().B64Screenshot(ctx, false)
	if err != nil {
		l.logger.Warn("plan screenshot failed", zap.Error(err))
	}
	if err := l.crawl.RemoveMarker(ctx); err != nil {
		l.logger.Debug("marker cleanup failed", zap.Error(err))
	}

	opts := []llm.RequestOption{llm.WithTemperature(llm.TemperaturePlan)}
	if shot != "" {
		opts = append(opts, llm.WithImages(shot))
	}
	raw, err := l.client.GetResponse(ctx, casePlannerSystemPrompt,
		casePlannerUserPrompt(l.targetURL, l.objectives, snap.Elements.Describe()), opts...)
	if err != nil {
		return fmt.Errorf("case planning: %w", err)
	}

	cases, err := ParseCasePlan(raw, l.targetURL)
	if err != nil {
		return fmt.Errorf("case planning: %w", err)
	}
	state.TestCases = cases
	l.logger.Info("test cases planned", zap.Int("cases", len(cases)))
	l.persistPlan(state)
	return nil
}

func (l *Loop) persistPlan(state *State) {
	if l.reportDir == "" {
		return
	}
	data, err := json.MarshalIndent(state.TestCases, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(l.reportDir, "cases.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		l.logger.Warn("cases.json write failed", zap.String("path", path), zap.Error(err))
	}
}

// executeCase runs the current case through the worker and records its
// outcome on both the tester and the state.
func (l *Loop) executeCase(ctx context.Context, state *State) {
	c := state.CurrentCase
	l.logger.Info("executing case",
		zap.Int("index", state.CurrentIndex),
		zap.String("case", c.Name))

	l.tester.StartCase(c.Name, map[string]interface{}{
		"objective":        c.Objective,
		"success_criteria": c.SuccessCriteria,
		"category":         c.Category,
	})

	if c.ResetSession && l.reset != nil {
		url := c.URL
		if url == "" {
			url = l.targetURL
		}
		if err := l.reset(ctx, url); err != nil {
			l.logger.Warn("session reset failed", zap.Error(err))
		}
	}

	w := &worker{tester: l.tester, client: l.client, logger: l.logger}
	result := w.runCase(ctx, c)

	c.Status = result.Status
	l.tester.FinishCase(result.Status, result.Summary)
	state.CompletedCases = append(state.CompletedCases, result)
}

// reflect advances the index (this is the only place it moves) and asks the
// reflector whether to continue, replan, or finish.
func (l *Loop) reflect(ctx context.Context, state *State) string {
	state.CurrentIndex++

	if state.ReplanCount >= MaxReplans {
		r := Reflection{Decision: DecisionFinish, Reasoning: "replan limit reached"}
		state.ReflectionHistory = append(state.ReflectionHistory, r)
		return l.applyDecision(state, r)
	}

	var pageText, elementMap string
	if snap, err := l.crawl.Crawl(ctx, crawler.CrawlOptions{ViewportOnly: true}); err == nil {
		pageText = snap.Text()
		elementMap = snap.Elements.Describe()
	}

	raw, err := l.client.GetResponse(ctx, reflectorSystemPrompt,
		reflectorUserPrompt(l.objectives, state.TestCases, state.CompletedCases, pageText, elementMap),
		llm.WithTemperature(llm.TemperaturePlan))
	var r Reflection
	if err != nil {
		r = Reflection{Decision: DecisionContinue, Reasoning: fmt.Sprintf("reflection unavailable: %v", err)}
	} else {
		r = ParseReflection(raw)
	}
	state.ReflectionHistory = append(state.ReflectionHistory, r)
	l.logger.Info("reflection",
		zap.String("decision", r.Decision),
		zap.String("reasoning", firstLine(r.Reasoning)))
	return l.applyDecision(state, r)
}

func (l *Loop) applyDecision(state *State, r Reflection) string {
	switch r.Decision {
	case DecisionReplan:
		state.IsReplan = true
		state.ReplannedCases = r.NewPlan
		return DecisionReplan
	case DecisionFinish:
		return DecisionFinish
	default:
		if state.CurrentIndex >= len(state.TestCases) {
			return DecisionFinish
		}
		return DecisionContinue
	}
}
