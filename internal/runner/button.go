package runner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"webqa/internal/actions"
	"webqa/internal/crawler"
	"webqa/internal/types"
)

// ButtonRunner sweeps the clickable elements on the landing page: click each
// one, capture the before/after screenshots, re-navigate, repeat.
type ButtonRunner struct{}

// maxButtonClicks caps the sweep so link farms do not stall a run.
const maxButtonClicks = 20

func (r *ButtonRunner) Run(ctx context.Context, in Input) *types.TestResult {
	if in.Session == nil {
		return failedResult(in.Config, fmt.Errorf("button test requires a browser session"))
	}
	logger := in.logger()
	result := newResult(in.Config)

	crawl := crawler.New(in.Session.Page(), logger)
	handler := actions.NewHandler(in.Session.Page(), in.Session.Context(), logger)

	snap, err := crawl.Crawl(ctx, crawler.CrawlOptions{ViewportOnly: true})
	if err != nil {
		return failedResult(in.Config, fmt.Errorf("initial crawl: %w", err))
	}

	ids := snap.Elements.SortedIDs()
	if len(ids) > maxButtonClicks {
		ids = ids[:maxButtonClicks]
	}
	total := len(ids)
	failures := 0
	var steps []types.SubTestStep

	for i, id := range ids {
		if ctx.Err() != nil {
			break
		}
		el, _ := snap.Elements.Get(id)
		step := types.SubTestStep{ID: i + 1, Description: describeClickable(id, el)}

		// Re-crawl after the first iteration: navigation invalidated the
		// buffer, and element ids are only stable within one crawl.
		if i > 0 {
			if err := in.Session.Navigate(ctx, in.TargetURL, in.Config.BrowserConfig.Cookies); err != nil {
				step.Status = "failed"
				step.Error = fmt.Sprintf("re-navigate: %v", err)
				failures++
				steps = append(steps, step)
				continue
			}
			fresh, err := crawl.Crawl(ctx, crawler.CrawlOptions{ViewportOnly: true})
			if err != nil || fresh.Elements[id] == nil {
				step.Status = "failed"
				step.Error = "element disappeared after re-navigation"
				failures++
				steps = append(steps, step)
				continue
			}
			handler.SetBuffer(fresh.Elements)
			handler.SetScrollY(fresh.ScrollY)
		} else {
			handler.SetBuffer(snap.Elements)
			handler.SetScrollY(snap.ScrollY)
		}

		if shot, err := handler.B64Screenshot(ctx, false); err == nil {
			step.Screenshots = append(step.Screenshots, types.Screenshot{Type: "base64", Data: shot})
		}

		res := handler.Click(ctx, id)
		step.Actions = []types.ActionRecord{{Type: actions.TypeTap, Success: res.Success, Message: res.Message}}

		if shot, err := handler.B64Screenshot(ctx, false); err == nil {
			step.Screenshots = append(step.Screenshots, types.Screenshot{Type: "base64", Data: shot})
		}

		if res.Success {
			step.Status = "passed"
		} else {
			step.Status = "failed"
			step.Error = res.Message
			failures++
			logger.Warn("button click failed", zap.String("id", id), zap.String("message", res.Message))
		}
		steps = append(steps, step)
	}

	sub := types.SubTestResult{
		Name:   "遍历测试",
		Status: types.StatusPassed,
		Steps:  steps,
		Report: []types.ReportEntry{{
			Title:  "遍历测试结果",
			Issues: []string{fmt.Sprintf("可点击元素%d个，点击行为失败%d个", total, failures)},
		}},
		Metrics: map[string]interface{}{
			"clickable_count": total,
			"failed_clicks":   failures,
		},
	}
	if failures > 0 {
		sub.Status = types.StatusFailed
	}
	result.SubTests = []types.SubTestResult{sub}
	result.Finish(result.DeriveStatus())
	return result
}

func describeClickable(id string, el *crawler.DomElement) string {
	if el == nil {
		return fmt.Sprintf("click element [%s]", id)
	}
	return fmt.Sprintf("click [%s]<%s> %s", id, el.Tag, firstChars(el.InnerText, 40))
}
