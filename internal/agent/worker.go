package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"webqa/internal/llm"
	"webqa/internal/tester"
)

// navigationKeywords mark a preamble instruction as a plain navigation that
// can be skipped when the page is already at the target.
var navigationKeywords = []string{
	"navigate", "go to", "open", "visit", "browse", "load",
	"导航", "打开", "访问", "跳转", "前往",
}

// failure markers scanned in step outcomes and summaries.
var failureMarkers = []string{"[failure]", "failed", "stopped due to max iterations"}

// IsNavigationInstruction reports whether an instruction is just "get to the
// URL", by keyword or by containing the target URL itself.
func IsNavigationInstruction(instruction, targetURL string) bool {
	lower := strings.ToLower(instruction)
	for _, kw := range navigationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return targetURL != "" && strings.Contains(lower, strings.ToLower(targetURL))
}

func containsFailureMarker(s string) bool {
	lower := strings.ToLower(s)
	for _, m := range failureMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// worker executes one case through the UI tester and produces its summary.
type worker struct {
	tester *tester.UITester
	client llm.Client
	logger *zap.Logger
}

// runCase drives the preamble and the case steps, then synthesizes the final
// summary and status.
func (w *worker) runCase(ctx context.Context, c *TestCase) CaseResult {
	var (
		failedSteps []string
		recent      []string
		totalSteps  int
	)

	for _, preamble := range c.PreambleActions {
		if c.ResetSession && IsNavigationInstruction(preamble, c.URL) && w.atTarget(ctx, c.URL) {
			w.logger.Debug("skipping navigation preamble, already at target",
				zap.String("instruction", preamble))
			continue
		}
		_, res := w.tester.Action(ctx, preamble, "")
		recent = append(recent, fmt.Sprintf("preamble %q: %s", preamble, res.Message))
		if !res.Success {
			summary := fmt.Sprintf("FINAL_SUMMARY: Test case failed during preamble %q: %s", preamble, res.Message)
			return CaseResult{Name: c.Name, Status: tester.CaseStatusFailed, Summary: summary}
		}
	}

	for i, step := range c.Steps {
		if ctx.Err() != nil {
			break
		}
		label := fmt.Sprintf("step %d", i+1)
		switch {
		case step.Action != "":
			totalSteps++
			_, res := w.tester.Action(ctx, step.Action, "")
			recent = append(recent, fmt.Sprintf("%s action %q: %s", label, step.Action, res.Message))
			if !res.Success {
				failedSteps = append(failedSteps, fmt.Sprintf("%s (%s): %s", label, step.Action, res.Message))
				// An action that cannot run leaves the page in an unknown
				// state; the rest of the case would only add noise.
				return w.finish(ctx, c, totalSteps, failedSteps, recent)
			}
		case step.Verify != "":
			totalSteps++
			stepRec, _ := w.tester.Verify(ctx, step.Verify)
			recent = append(recent, fmt.Sprintf("%s verify %q: %s", label, step.Verify, stepRec.Status))
			if stepRec.Status != tester.CaseStatusPassed {
				failedSteps = append(failedSteps, fmt.Sprintf("%s (verify %s)", label, step.Verify))
			}
		}
	}

	return w.finish(ctx, c, totalSteps, failedSteps, recent)
}

func (w *worker) atTarget(ctx context.Context, url string) bool {
	if url == "" {
		return false
	}
	return w.tester.Handler().AtURL(ctx, url)
}

func (w *worker) finish(ctx context.Context, c *TestCase, totalSteps int, failedSteps, recent []string) CaseResult {
	summary := w.summarize(ctx, c, totalSteps, failedSteps, recent)
	return CaseResult{
		Name:    c.Name,
		Status:  deriveCaseStatus(summary, failedSteps),
		Summary: summary,
	}
}

// summarize asks the model for a closing paragraph; when the model is
// unreachable it falls back to a mechanical summary. The FINAL_SUMMARY:
// prefix is guaranteed either way.
func (w *worker) summarize(ctx context.Context, c *TestCase, totalSteps int, failedSteps, recent []string) string {
	raw, err := w.client.GetResponse(ctx, summarySystemPrompt,
		summaryUserPrompt(c, totalSteps, failedSteps, recent),
		llm.WithTemperature(llm.TemperaturePlan),
		llm.WithMaxTokens(512))
	if err != nil || strings.TrimSpace(raw) == "" {
		if len(failedSteps) > 0 {
			raw = fmt.Sprintf("Test case failed at %s after %d step(s).", failedSteps[0], totalSteps)
		} else {
			raw = fmt.Sprintf("Test case completed successfully in %d step(s).", totalSteps)
		}
	}
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "FINAL_SUMMARY:") {
		raw = "FINAL_SUMMARY: " + raw
	}
	return raw
}

// deriveCaseStatus applies the summary heuristics: explicit failure phrases
// win, then an explicit success phrase, then the failed-step tally breaks the
// tie.
func deriveCaseStatus(summary string, failedSteps []string) string {
	lower := strings.ToLower(summary)
	if strings.Contains(lower, "failed at step") || strings.Contains(lower, "test case failed") {
		return tester.CaseStatusFailed
	}
	if strings.Contains(lower, "completed successfully") && !containsFailureMarker(lower) {
		return tester.CaseStatusPassed
	}
	if len(failedSteps) > 0 {
		return tester.CaseStatusFailed
	}
	return tester.CaseStatusPassed
}
