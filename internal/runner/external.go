package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"go.uber.org/zap"

	"webqa/internal/llm"
	"webqa/internal/types"
)

// LighthouseRunner shells out to the lighthouse CLI for performance scores.
// Without the tool on PATH the test reports INCOMPLETED rather than failing
// the run.
type LighthouseRunner struct{}

func (r *LighthouseRunner) Run(ctx context.Context, in Input) *types.TestResult {
	result := newResult(in.Config)
	logger := in.logger()

	bin, err := exec.LookPath("lighthouse")
	if err != nil {
		result.ErrorMessage = "lighthouse CLI not installed, skipping performance test"
		result.Finish(types.StatusIncompleted)
		return result
	}

	cmd := exec.CommandContext(ctx, bin, in.TargetURL,
		"--output=json", "--quiet", "--chrome-flags=--headless --no-sandbox")
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			result.Finish(types.StatusCancelled)
			return result
		}
		result.ErrorMessage = fmt.Sprintf("lighthouse run failed: %v", err)
		result.Finish(types.StatusFailed)
		return result
	}

	var report struct {
		Categories map[string]struct {
			Score float64 `json:"score"`
		} `json:"categories"`
	}
	if err := json.Unmarshal(out, &report); err != nil {
		result.ErrorMessage = fmt.Sprintf("lighthouse output unparseable: %v", err)
		result.Finish(types.StatusFailed)
		return result
	}

	result.Metrics = map[string]interface{}{}
	status := types.StatusPassed
	for name, cat := range report.Categories {
		score := cat.Score * 100
		result.Metrics[name+"_score"] = score
		sub := types.SubTestResult{
			Name:         name,
			Status:       types.StatusPassed,
			FinalSummary: fmt.Sprintf("score %.0f", score),
		}
		if score < 50 {
			sub.Status = types.StatusFailed
			status = types.StatusFailed
		} else if score < 80 && status == types.StatusPassed {
			sub.Status = types.StatusWarning
			status = types.StatusWarning
		}
		result.SubTests = append(result.SubTests, sub)
	}
	logger.Info("lighthouse completed", zap.String("status", string(status)))
	result.Finish(status)
	return result
}

// SecurityRunner wraps an external scanner (nuclei). It runs without a
// browser session; the executor hands it the sentinel session id. Missing
// tool reports INCOMPLETED.
type SecurityRunner struct{}

func (r *SecurityRunner) Run(ctx context.Context, in Input) *types.TestResult {
	result := newResult(in.Config)
	logger := in.logger()

	bin, err := exec.LookPath("nuclei")
	if err != nil {
		result.ErrorMessage = "nuclei not installed, skipping security test"
		result.Finish(types.StatusIncompleted)
		return result
	}

	cmd := exec.CommandContext(ctx, bin, "-u", in.TargetURL, "-jsonl", "-silent", "-severity", "medium,high,critical")
	out, err := cmd.Output()
	if err != nil && ctx.Err() != nil {
		result.Finish(types.StatusCancelled)
		return result
	}
	// nuclei exits nonzero when findings exist; output still carries them.

	findings := parseNucleiFindings(out)
	if len(findings) == 0 {
		result.SubTests = []types.SubTestResult{{
			Name:         "漏洞扫描",
			Status:       types.StatusPassed,
			FinalSummary: "no findings at medium severity or above",
		}}
		result.Finish(types.StatusPassed)
		return result
	}

	issues := make([]string, 0, len(findings))
	for _, f := range findings {
		issues = append(issues, f)
	}
	if in.Client != nil {
		if summary, err := summarizeFindings(ctx, in.Client, issues); err == nil && summary != "" {
			issues = append(issues, "评估: "+summary)
		}
	}
	result.SubTests = []types.SubTestResult{{
		Name:         "漏洞扫描",
		Status:       types.StatusFailed,
		Report:       []types.ReportEntry{{Title: "安全问题", Issues: issues}},
		FinalSummary: fmt.Sprintf("%d finding(s)", len(findings)),
	}}
	logger.Warn("security findings", zap.Int("count", len(findings)))
	result.Finish(types.StatusFailed)
	return result
}

func parseNucleiFindings(out []byte) []string {
	var findings []string
	for _, line := range splitLines(out) {
		var entry struct {
			Info struct {
				Name     string `json:"name"`
				Severity string `json:"severity"`
			} `json:"info"`
			MatchedAt string `json:"matched-at"`
		}
		if err := json.Unmarshal(line, &entry); err != nil || entry.Info.Name == "" {
			continue
		}
		findings = append(findings, fmt.Sprintf("[%s] %s (%s)", entry.Info.Severity, entry.Info.Name, entry.MatchedAt))
	}
	return findings
}

func splitLines(out []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range out {
		if b == '\n' {
			if i > start {
				lines = append(lines, out[start:i])
			}
			start = i + 1
		}
	}
	if start < len(out) {
		lines = append(lines, out[start:])
	}
	return lines
}

func summarizeFindings(ctx context.Context, client llm.Client, issues []string) (string, error) {
	prompt := "Summarize the impact of these scanner findings in two sentences:\n"
	for _, issue := range issues {
		prompt += "- " + issue + "\n"
	}
	return client.GetResponse(ctx, "You are an application security analyst.", prompt,
		llm.WithTemperature(llm.TemperatureVerify), llm.WithMaxTokens(256))
}
