package runner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"webqa/internal/actions"
	"webqa/internal/crawler"
	"webqa/internal/llm"
	"webqa/internal/types"
)

// UXRunner evaluates the page as a user would read it: one pass over the
// text content, one pass over scrolled screenshots.
type UXRunner struct{}

const uxTextCheckSystem = `You review the text content of a web page for user-facing quality
problems: broken or placeholder copy (lorem ipsum, "undefined", "null",
"NaN"), encoding damage, untranslated fragments, truncated sentences,
contradictory labels.

Respond with a single JSON object, no prose:
{"passed": true|false, "issues": ["one finding per entry"]}
Pass when the text is clean; do not invent problems.`

const uxContentCheckSystem = `You review screenshots of a web page for visual quality problems:
overlapping or clipped elements, unreadable contrast, broken images,
misaligned layout, empty regions that should have content.

Respond with a single JSON object, no prose:
{"passed": true|false, "issues": ["one finding per entry"]}
Pass when the page renders acceptably; do not invent problems.`

type uxVerdict struct {
	Passed bool     `json:"passed"`
	Issues []string `json:"issues"`
}

func (r *UXRunner) Run(ctx context.Context, in Input) *types.TestResult {
	if in.Session == nil {
		return failedResult(in.Config, fmt.Errorf("ux test requires a browser session"))
	}
	if in.Client == nil {
		return failedResult(in.Config, fmt.Errorf("ux test requires an llm client"))
	}
	logger := in.logger()
	result := newResult(in.Config)

	crawl := crawler.New(in.Session.Page(), logger)
	handler := actions.NewHandler(in.Session.Page(), in.Session.Context(), logger)

	result.SubTests = append(result.SubTests, r.textCheck(ctx, in, crawl))
	result.SubTests = append(result.SubTests, r.contentCheck(ctx, in, handler))

	result.Finish(result.DeriveStatus())
	return result
}

// textCheck hands the crawled text structure to the model.
func (r *UXRunner) textCheck(ctx context.Context, in Input, crawl *crawler.Crawler) types.SubTestResult {
	sub := types.SubTestResult{Name: "TextCheck", Status: types.StatusFailed}

	snap, err := crawl.Crawl(ctx, crawler.CrawlOptions{})
	if err != nil {
		sub.FinalSummary = fmt.Sprintf("crawl failed: %v", err)
		return sub
	}
	pageText := snap.Text()
	if strings.TrimSpace(pageText) == "" {
		sub.FinalSummary = "page produced no readable text"
		return sub
	}
	const maxText = 12000
	if r := []rune(pageText); len(r) > maxText {
		pageText = string(r[:maxText]) + "\n…(truncated)"
	}

	raw, err := in.Client.GetResponse(ctx, uxTextCheckSystem,
		fmt.Sprintf("Target site: %s\n\nPage text:\n%s", in.TargetURL, pageText),
		llm.WithTemperature(llm.TemperatureVerify))
	if err != nil {
		sub.FinalSummary = fmt.Sprintf("text check llm call failed: %v", err)
		return sub
	}
	return sealUXVerdict(sub, raw, in.logger())
}

// contentCheck scrolls through the page and hands screenshots to the model.
func (r *UXRunner) contentCheck(ctx context.Context, in Input, handler *actions.Handler) types.SubTestResult {
	sub := types.SubTestResult{Name: "ContentCheck", Status: types.StatusFailed}

	var shots []string
	var screenshots []types.Screenshot
	const maxShots = 3
	for i := 0; i < maxShots; i++ {
		shot, err := handler.B64Screenshot(ctx, false)
		if err != nil {
			in.logger().Warn("content check screenshot failed", zap.Error(err))
			break
		}
		shots = append(shots, shot)
		screenshots = append(screenshots, types.Screenshot{Type: "base64", Data: shot})
		if i < maxShots-1 {
			if res := handler.Scroll(ctx, actions.ScrollDown, actions.ScrollOnce, 0); !res.Success {
				break
			}
		}
	}
	if len(shots) == 0 {
		sub.FinalSummary = "no screenshots captured"
		return sub
	}

	raw, err := in.Client.GetResponse(ctx, uxContentCheckSystem,
		fmt.Sprintf("Target site: %s\n\nThe attached screenshots walk down the page from the top.", in.TargetURL),
		llm.WithTemperature(llm.TemperatureVerify),
		llm.WithImages(shots...))
	if err != nil {
		sub.FinalSummary = fmt.Sprintf("content check llm call failed: %v", err)
		return sub
	}

	sub = sealUXVerdict(sub, raw, in.logger())
	sub.Steps = []types.SubTestStep{{ID: 1, Description: "scrolled page capture", Screenshots: screenshots, Status: "passed"}}
	return sub
}

// sealUXVerdict maps a model verdict onto the sub-test. Undecodable output
// degrades to WARNING rather than failing the page outright.
func sealUXVerdict(sub types.SubTestResult, raw string, logger *zap.Logger) types.SubTestResult {
	var verdict uxVerdict
	if err := llm.DecodeJSON(llm.StripFences(raw), &verdict); err != nil {
		logger.Warn("ux verdict unparseable", zap.String("sub_test", sub.Name), zap.Error(err))
		sub.Status = types.StatusWarning
		sub.FinalSummary = "verdict unparseable: " + firstChars(raw, 200)
		return sub
	}
	if verdict.Passed {
		sub.Status = types.StatusPassed
		sub.FinalSummary = "no issues found"
	} else {
		sub.Status = types.StatusFailed
		sub.FinalSummary = strings.Join(verdict.Issues, "; ")
	}
	if len(verdict.Issues) > 0 {
		sub.Report = []types.ReportEntry{{Title: sub.Name, Issues: verdict.Issues}}
	}
	return sub
}

// firstChars truncates on rune boundaries; most of the text passing through
// here is Chinese.
func firstChars(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
