package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddTestConfiguration(t *testing.T) {
	s := NewTestSession("s1", "https://example.com", LLMConfig{API: "openai"})

	cfg := &TestConfiguration{TestID: "t1", TestType: TestTypeUX, TestName: "ux", Enabled: true}
	require.NoError(t, s.AddTestConfiguration(cfg))
	assert.Contains(t, s.Configurations, "t1")
	assert.Contains(t, s.ExecutionContexts, "t1")

	assert.Error(t, s.AddTestConfiguration(cfg), "duplicate test_id must be rejected")
	assert.Error(t, s.AddTestConfiguration(&TestConfiguration{}), "empty test_id must be rejected")
}

func TestUpdateTestResultRequiresConfiguration(t *testing.T) {
	s := NewTestSession("s1", "https://example.com", LLMConfig{})
	err := s.UpdateTestResult(&TestResult{TestID: "ghost"})
	assert.Error(t, err)

	require.NoError(t, s.AddTestConfiguration(&TestConfiguration{TestID: "t1", TestType: TestTypeButton}))
	require.NoError(t, s.UpdateTestResult(&TestResult{TestID: "t1", Status: StatusPassed}))

	// Every result test_id appears in configurations.
	for tid := range s.Results {
		assert.Contains(t, s.Configurations, tid)
	}
}

func TestExecutionContextTiming(t *testing.T) {
	ctx := &TestExecutionContext{TestID: "t1"}
	ctx.StartExecution()
	time.Sleep(5 * time.Millisecond)
	ctx.CompleteExecution(true, "")

	assert.False(t, ctx.EndTime.Before(ctx.StartTime))
	assert.GreaterOrEqual(t, ctx.Duration, 0.0)
	assert.InDelta(t, ctx.EndTime.Sub(ctx.StartTime).Seconds(), ctx.Duration, 1e-9)

	// CompleteExecution is one-shot.
	end := ctx.EndTime
	ctx.CompleteExecution(false, "late")
	assert.Equal(t, end, ctx.EndTime)
	assert.True(t, ctx.Success)
}

func TestCompleteExecutionWithoutStart(t *testing.T) {
	ctx := &TestExecutionContext{TestID: "t1"}
	ctx.CompleteExecution(false, "boom")
	assert.False(t, ctx.EndTime.Before(ctx.StartTime))
	assert.Equal(t, "boom", ctx.ErrorMessage)
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name     string
		subs     []SubTestResult
		expected TestStatus
	}{
		{"all passed", []SubTestResult{{Status: StatusPassed}, {Status: StatusPassed}}, StatusPassed},
		{"one failed", []SubTestResult{{Status: StatusPassed}, {Status: StatusFailed}}, StatusFailed},
		{"warning only", []SubTestResult{{Status: StatusWarning}, {Status: StatusPassed}}, StatusWarning},
		{"failed beats warning", []SubTestResult{{Status: StatusWarning}, {Status: StatusFailed}}, StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &TestResult{SubTests: tt.subs}
			assert.Equal(t, tt.expected, r.DeriveStatus())
		})
	}
}

func TestResultFinishDuration(t *testing.T) {
	r := &TestResult{TestID: "t1", StartTime: time.Now().Add(-time.Second)}
	r.Finish(StatusPassed)
	assert.GreaterOrEqual(t, r.Duration, 0.0)
	assert.False(t, r.EndTime.Before(r.StartTime))
}

func TestSessionJSONRoundTrip(t *testing.T) {
	s := NewTestSession("s1", "https://example.com", LLMConfig{API: "openai", Model: "gpt-4o"})
	require.NoError(t, s.AddTestConfiguration(&TestConfiguration{
		TestID: "t1", TestType: TestTypeUIAgent, TestName: "agent", Enabled: true,
	}))
	res := &TestResult{
		TestID: "t1", TestType: TestTypeUIAgent, Status: StatusPassed,
		SubTests: []SubTestResult{{
			Name:   "case 1",
			Status: StatusPassed,
			Steps: []SubTestStep{
				{ID: 1, Description: "导航到首页", Status: "passed"},
				{ID: 2, Description: "click login", Status: "passed"},
			},
		}},
	}
	require.NoError(t, s.UpdateTestResult(res))
	s.CompleteSession()

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var back TestSession
	require.NoError(t, json.Unmarshal(data, &back))
	require.Contains(t, back.Results, "t1")
	steps := back.Results["t1"].SubTests[0].Steps
	require.Len(t, steps, 2)
	// Step order is preserved and UTF-8 text survives intact.
	assert.Equal(t, "导航到首页", steps[0].Description)
	assert.Equal(t, []int{steps[0].ID, steps[1].ID}, []int{1, 2})
}

func TestCompleteSessionIdempotent(t *testing.T) {
	s := NewTestSession("s1", "u", LLMConfig{})
	s.CompleteSession()
	end := s.EndTime
	s.CompleteSession()
	assert.Equal(t, end, s.EndTime)
}

func TestCategoryFor(t *testing.T) {
	assert.Equal(t, CategoryPerformance, CategoryFor(TestTypePerformance))
	assert.Equal(t, CategorySecurity, CategoryFor(TestTypeSecurity))
	assert.Equal(t, CategoryUI, CategoryFor(TestTypeUX))
	assert.Equal(t, CategoryUI, CategoryFor(TestTypeButton))
	assert.Equal(t, CategoryFunction, CategoryFor(TestTypeUIAgent))
}

func TestRequiresBrowser(t *testing.T) {
	assert.False(t, TestTypeSecurity.RequiresBrowser())
	assert.True(t, TestTypeUIAgent.RequiresBrowser())
}
