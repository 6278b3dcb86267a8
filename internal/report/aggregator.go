// Package report turns a completed test session into the artifacts users
// consume: the aggregated issue structure, test_results.json, and a fully
// inlined HTML report.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"webqa/internal/llm"
	"webqa/internal/types"
)

// Severity levels used in the issue list.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Issue is one entry of the problem list tab.
type Issue struct {
	TestName    string `json:"test_name"`
	SubTestName string `json:"sub_test_name,omitempty"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// Aggregator folds session results into the two-tab report structure. The
// LLM client is optional; without one the keyword heuristic stands in.
type Aggregator struct {
	client llm.Client
	logger *zap.Logger
}

// NewAggregator builds an aggregator. client may be nil.
func NewAggregator(client llm.Client, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{client: client, logger: logger}
}

// Aggregate produces the UI structure: a statistics tab ("摘要与建议") and an
// issue tab ("问题列表"). Counts treat every non-PASSED sub-test as failed.
func (a *Aggregator) Aggregate(ctx context.Context, session *types.TestSession) map[string]interface{} {
	var (
		totalSubtests  int
		passedSubtests int
		issues         []Issue
	)

	for _, testID := range sortedResultIDs(session) {
		result := session.Results[testID]
		if result.ErrorMessage != "" {
			issues = append(issues, Issue{
				TestName:    result.TestName,
				Description: result.ErrorMessage,
				Severity:    SeverityHigh,
			})
		}
		for _, sub := range result.SubTests {
			totalSubtests++
			if sub.Status == types.StatusPassed {
				passedSubtests++
				continue
			}
			issues = append(issues, a.extractIssues(ctx, result.TestName, &sub)...)
		}
	}

	aggregated := map[string]interface{}{
		"摘要与建议": map[string]interface{}{
			"total_subtests":  totalSubtests,
			"passed_subtests": passedSubtests,
			"failed_subtests": totalSubtests - passedSubtests,
		},
		"问题列表": issues,
	}
	session.AggregatedResults = aggregated
	return aggregated
}

func sortedResultIDs(session *types.TestSession) []string {
	ids := make([]string, 0, len(session.Results))
	for id := range session.Results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// llmIssueResponse is the shape the extraction prompt asks for.
type llmIssueResponse struct {
	IssueCount int      `json:"issue_count"`
	Issues     []string `json:"issues"`
	Severity   string   `json:"severity"`
}

const issueExtractionSystem = `You extract concrete user-facing problems from the record of one
failed or degraded web test. Report only problems evidenced by the record.

Respond with a single JSON object, no prose:
{"issue_count": <n>, "issues": ["one problem per entry"], "severity": "high"|"medium"|"low"}`

// extractIssues asks the model to read one non-passed sub-test; if the model
// is unavailable or unparseable it falls back to keyword scanning.
func (a *Aggregator) extractIssues(ctx context.Context, testName string, sub *types.SubTestResult) []Issue {
	if a.client != nil {
		if issues, err := a.llmIssues(ctx, testName, sub); err == nil {
			return issues
		} else {
			a.logger.Debug("llm issue extraction failed, using heuristic",
				zap.String("sub_test", sub.Name), zap.Error(err))
		}
	}
	return a.heuristicIssues(testName, sub)
}

func (a *Aggregator) llmIssues(ctx context.Context, testName string, sub *types.SubTestResult) ([]Issue, error) {
	compact, err := json.Marshal(map[string]interface{}{
		"name":          sub.Name,
		"status":        sub.Status,
		"report":        sub.Report,
		"metrics":       sub.Metrics,
		"final_summary": sub.FinalSummary,
	})
	if err != nil {
		return nil, err
	}

	raw, err := a.client.GetResponse(ctx, issueExtractionSystem, string(compact),
		llm.WithTemperature(llm.TemperatureVerify), llm.WithMaxTokens(1024))
	if err != nil {
		return nil, err
	}
	var resp llmIssueResponse
	if err := llm.DecodeJSON(llm.StripFences(raw), &resp); err != nil {
		return nil, err
	}
	if len(resp.Issues) == 0 {
		return nil, fmt.Errorf("no issues extracted")
	}

	severity := normalizeSeverity(resp.Severity)
	if severity == "" {
		severity = severityFromStatus(sub.Status)
	}
	out := make([]Issue, 0, len(resp.Issues))
	for _, desc := range resp.Issues {
		out = append(out, Issue{TestName: testName, SubTestName: sub.Name, Description: desc, Severity: severity})
	}
	return out, nil
}

// heuristicIssues builds one issue per sub-test from its summary, rating
// severity by keyword.
func (a *Aggregator) heuristicIssues(testName string, sub *types.SubTestResult) []Issue {
	description := strings.TrimSpace(sub.FinalSummary)
	if description == "" && len(sub.Report) > 0 && len(sub.Report[0].Issues) > 0 {
		description = strings.Join(sub.Report[0].Issues, "; ")
	}
	if description == "" {
		description = fmt.Sprintf("sub-test %s finished with status %s", sub.Name, sub.Status)
	}
	return []Issue{{
		TestName:    testName,
		SubTestName: sub.Name,
		Description: description,
		Severity:    KeywordSeverity(description),
	}}
}

var (
	highKeywords = []string{"error", "fail", "严重", "错误", "崩溃", "无法"}
	lowKeywords  = []string{"warning", "警告", "建议", "优化", "改进"}
)

// KeywordSeverity rates a summary line: high keywords win, then low, else
// medium.
func KeywordSeverity(text string) string {
	lower := strings.ToLower(text)
	for _, kw := range highKeywords {
		if strings.Contains(lower, kw) {
			return SeverityHigh
		}
	}
	for _, kw := range lowKeywords {
		if strings.Contains(lower, kw) {
			return SeverityLow
		}
	}
	return SeverityMedium
}

func severityFromStatus(status types.TestStatus) string {
	switch status {
	case types.StatusWarning:
		return SeverityLow
	case types.StatusFailed:
		return SeverityHigh
	}
	return ""
}

func normalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return strings.ToLower(strings.TrimSpace(s))
	}
	return ""
}
