package runner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"webqa/internal/agent"
	"webqa/internal/tester"
	"webqa/internal/types"
)

// UIAgentRunner drives the exploratory agent loop: plan cases against the
// live page, execute them through the UI tester, reflect between cases.
type UIAgentRunner struct{}

func (r *UIAgentRunner) Run(ctx context.Context, in Input) *types.TestResult {
	if in.Session == nil {
		return failedResult(in.Config, fmt.Errorf("ui agent test requires a browser session"))
	}
	if in.Client == nil {
		return failedResult(in.Config, fmt.Errorf("ui agent test requires an llm client"))
	}
	logger := in.logger()

	ut := tester.New(in.Session, in.Client, in.TargetURL, logger)
	loop := agent.NewLoop(ut, in.Client, agent.Options{
		TargetURL:  in.TargetURL,
		Objectives: specificString(in.Config, "business_objectives"),
		ReportDir:  in.ReportDir,
		Reset: func(ctx context.Context, url string) error {
			return in.Session.Navigate(ctx, url, in.Config.BrowserConfig.Cookies)
		},
	}, logger)

	state := &agent.State{GenerateOnly: specificBool(in.Config, "generate_only")}
	runErr := loop.Run(ctx, state)

	result := ut.RunnerFormatReport(in.Config.TestID, in.Config.TestName)
	result.Category = types.CategoryFor(in.Config.TestType)
	result.TestType = in.Config.TestType

	if state.GenerateOnly && runErr == nil {
		result.Finish(types.StatusPassed)
		result.Metrics["planned_cases"] = len(state.TestCases)
		return result
	}
	if runErr != nil {
		logger.Error("agent loop failed", zap.Error(runErr))
		result.ErrorMessage = runErr.Error()
		if ctx.Err() != nil {
			result.Finish(types.StatusCancelled)
		} else {
			result.Finish(types.StatusFailed)
		}
		return result
	}

	result.Metrics["planned_cases"] = len(state.TestCases)
	result.Metrics["replan_count"] = state.ReplanCount
	return result
}
