package tester

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"webqa/internal/actions"
	"webqa/internal/types"
)

func newBareTester() *UITester {
	return &UITester{logger: zap.NewNop()}
}

func TestStartCaseForceFinishesOpenCase(t *testing.T) {
	ut := newBareTester()
	ut.StartCase("登录流程", nil)
	ut.StartCase("下单流程", nil)

	require.Len(t, ut.Cases(), 1)
	interrupted := ut.Cases()[0]
	assert.Equal(t, "登录流程", interrupted.Name)
	assert.Equal(t, types.StatusFailed, interrupted.Status)

	ut.FinishCase(CaseStatusPassed, "all good")
	require.Len(t, ut.Cases(), 2)
	assert.Equal(t, "下单流程", ut.Cases()[1].Name)
	assert.Equal(t, types.StatusPassed, ut.Cases()[1].Status)
}

func TestFinishCaseWithoutOpenCaseIsNoop(t *testing.T) {
	ut := newBareTester()
	ut.FinishCase(CaseStatusPassed, "nothing open")
	assert.Empty(t, ut.Cases())
}

func TestStepIDsAreOrdinalWithinCase(t *testing.T) {
	ut := newBareTester()
	ut.StartCase("case", nil)

	for i := 1; i <= 3; i++ {
		step := ut.newStep("step")
		assert.Equal(t, i, step.ID)
		ut.sealStep(step, actions.Result{Success: true, Message: "ok"})
	}
	ut.FinishCase(CaseStatusPassed, "")

	require.Len(t, ut.Cases()[0].Steps, 3)
	for i, s := range ut.Cases()[0].Steps {
		assert.Equal(t, i+1, s.ID)
		assert.Equal(t, CaseStatusPassed, s.Status)
		assert.False(t, s.EndTime.Before(s.StartTime))
	}

	// Counter resets with the next case.
	ut.StartCase("next", nil)
	assert.Equal(t, 1, ut.newStep("first").ID)
}

func TestSealStepRecordsFailure(t *testing.T) {
	ut := newBareTester()
	ut.StartCase("case", nil)
	step := ut.newStep("click missing thing")
	ut.sealStep(step, actions.Result{Success: false, Message: "element 9 not in current crawl"})

	assert.Equal(t, CaseStatusFailed, step.Status)
	assert.Equal(t, "element 9 not in current crawl", step.Error)
}

func TestMapCaseStatus(t *testing.T) {
	assert.Equal(t, types.StatusPassed, mapCaseStatus(CaseStatusPassed))
	assert.Equal(t, types.StatusPassed, mapCaseStatus(CaseStatusCompleted))
	assert.Equal(t, types.StatusFailed, mapCaseStatus(CaseStatusFailed))
	assert.Equal(t, types.StatusFailed, mapCaseStatus(CaseStatusInterrupted))
	assert.Equal(t, types.StatusRunning, mapCaseStatus(CaseStatusRunning))
	assert.Equal(t, types.StatusIncompleted, mapCaseStatus("weird"))
}

func TestParseVerifyResult(t *testing.T) {
	v := ParseVerifyResult("```json\n{\"Validation Result\": \"Validation Passed\", \"Details\": [\"标题正确\"]}\n```")
	assert.True(t, v.Passed())
	assert.Equal(t, []string{"标题正确"}, v.Details)

	v = ParseVerifyResult(`{"Validation Result": "Validation Failed", "Details": "购物车为空"}`)
	assert.False(t, v.Passed())
	assert.Equal(t, []string{"购物车为空"}, v.Details)

	v = ParseVerifyResult(`{"Validation Result": "Validation Passed", "Details": {"title": "ok"}}`)
	assert.True(t, v.Passed())
	assert.Equal(t, []string{"title: ok"}, v.Details)

	v = ParseVerifyResult("the page looks fine to me")
	assert.False(t, v.Passed())
	assert.Contains(t, v.Details[0], "unparseable")
}

func TestRunnerFormatReportAggregatesMetrics(t *testing.T) {
	ut := newBareTester()
	ut.allCases = []types.SubTestResult{
		{
			Name:   "case1",
			Status: types.StatusPassed,
			Steps: []types.SubTestStep{
				{ID: 1, Status: CaseStatusPassed},
				{ID: 2, Status: CaseStatusPassed},
			},
			Messages: map[string]interface{}{
				"network": map[string]interface{}{"total_requests_count": 40.0, "failed_requests_count": 2.0},
				"console": map[string]interface{}{"error_count": 1.0},
			},
		},
		{
			Name:   "case2",
			Status: types.StatusFailed,
			Steps: []types.SubTestStep{
				{ID: 1, Status: CaseStatusPassed},
				{ID: 2, Status: CaseStatusFailed},
			},
		},
	}

	report := ut.RunnerFormatReport("t1", "agent test")
	assert.Equal(t, types.StatusFailed, report.Status)
	assert.Equal(t, types.TestTypeUIAgent, report.TestType)
	require.Len(t, report.SubTests, 2)

	m := report.Metrics
	assert.Equal(t, 4, m["total_steps"])
	assert.Equal(t, 0.75, m["success_rate"])
	assert.Equal(t, 40.0, m["network_total_requests_count"])
	assert.Equal(t, 2.0, m["network_failed_requests_count"])
	assert.Equal(t, 1.0, m["console_error_count"])
}

func TestRunnerFormatReportAllPassed(t *testing.T) {
	ut := newBareTester()
	ut.allCases = []types.SubTestResult{
		{Name: "case1", Status: types.StatusPassed},
		{Name: "case2", Status: types.StatusPassed},
	}
	report := ut.RunnerFormatReport("t1", "agent test")
	assert.Equal(t, types.StatusPassed, report.Status)
	assert.Equal(t, 0.0, report.Metrics["success_rate"])
}
