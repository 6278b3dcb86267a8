package agent

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCasePlanArray(t *testing.T) {
	raw := "```json\n[\n  {\"name\": \"登录\", \"objective\": \"验证登录\", \"success_criteria\": \"显示用户名\",\n   \"steps\": [{\"action\": \"点击登录按钮\"}, {\"verify\": \"出现登录表单\"}]}\n]\n```"
	cases, err := ParseCasePlan(raw, "https://example.com")
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "登录", cases[0].Name)
	assert.Equal(t, "pending", cases[0].Status)
	assert.Equal(t, "https://example.com", cases[0].URL)
}

func TestParseCasePlanWrappedObject(t *testing.T) {
	raw := `{"test_cases": [{"name": "a", "steps": [{"action": "x"}]}, {"steps": [{"verify": "y"}]}]}`
	cases, err := ParseCasePlan(raw, "https://example.com")
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "case_2", cases[1].Name)
}

func TestParseCasePlanRejectsEmpty(t *testing.T) {
	_, err := ParseCasePlan("[]", "https://example.com")
	assert.Error(t, err)

	_, err = ParseCasePlan("I could not plan anything.", "https://example.com")
	assert.Error(t, err)
}

func TestParseReflection(t *testing.T) {
	r := ParseReflection(`{"decision": "finish", "reasoning": "覆盖完成"}`)
	assert.Equal(t, DecisionFinish, r.Decision)

	r = ParseReflection(`{"decision": "REPLAN", "reasoning": "页面有弹窗", "new_plan": [{"name": "关闭弹窗", "steps": [{"action": "关闭"}]}]}`)
	assert.Equal(t, DecisionReplan, r.Decision)
	require.Len(t, r.NewPlan, 1)

	// REPLAN without a plan degrades to CONTINUE.
	r = ParseReflection(`{"decision": "REPLAN", "reasoning": "..."}`)
	assert.Equal(t, DecisionContinue, r.Decision)

	// Garbage degrades to CONTINUE.
	r = ParseReflection("hmm, hard to say")
	assert.Equal(t, DecisionContinue, r.Decision)

	r = ParseReflection(`{"decision": "PONDER"}`)
	assert.Equal(t, DecisionContinue, r.Decision)
}

func TestSpliceReplanInsertsAtIndex(t *testing.T) {
	cases := []TestCase{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	out := SpliceReplan(cases, 1, []TestCase{{Name: "x"}, {Name: "y"}})

	names := make([]string, len(out))
	for i, c := range out {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"a", "x", "y", "b", "c"}, names)
	assert.Equal(t, "pending", out[1].Status)
}

func TestSpliceReplanClampsIndex(t *testing.T) {
	cases := []TestCase{{Name: "a"}}
	out := SpliceReplan(cases, 99, []TestCase{{Name: "x"}})
	require.Len(t, out, 2)
	assert.Equal(t, "x", out[1].Name)

	out = SpliceReplan(cases, -3, []TestCase{{Name: "x"}})
	assert.Equal(t, "x", out[0].Name)
}

func TestIsNavigationInstruction(t *testing.T) {
	assert.True(t, IsNavigationInstruction("Navigate to the home page", ""))
	assert.True(t, IsNavigationInstruction("打开首页", ""))
	assert.True(t, IsNavigationInstruction("跳转到订单列表", ""))
	assert.True(t, IsNavigationInstruction("start at https://example.com/shop", "https://example.com/shop"))
	assert.False(t, IsNavigationInstruction("click the submit button", "https://example.com"))
	assert.False(t, IsNavigationInstruction("填写搜索框", ""))
}

func TestDeriveCaseStatus(t *testing.T) {
	assert.Equal(t, "failed", deriveCaseStatus("FINAL_SUMMARY: test case failed at step 2", nil))
	assert.Equal(t, "failed", deriveCaseStatus("FINAL_SUMMARY: failed at step 1 while clicking", nil))
	assert.Equal(t, "passed", deriveCaseStatus("FINAL_SUMMARY: The case completed successfully.", nil))
	assert.Equal(t, "failed", deriveCaseStatus("FINAL_SUMMARY: ambiguous outcome", []string{"step 2"}))
	assert.Equal(t, "passed", deriveCaseStatus("FINAL_SUMMARY: ambiguous outcome", nil))
}

func TestApplyDecisionIndexBoundary(t *testing.T) {
	l := &Loop{}

	state := &State{TestCases: []TestCase{{Name: "a"}, {Name: "b"}}, CurrentIndex: 1}
	assert.Equal(t, DecisionContinue, l.applyDecision(state, Reflection{Decision: DecisionContinue}))

	state.CurrentIndex = 2
	assert.Equal(t, DecisionFinish, l.applyDecision(state, Reflection{Decision: DecisionContinue}))

	assert.Equal(t, DecisionReplan, l.applyDecision(state, Reflection{Decision: DecisionReplan, NewPlan: []TestCase{{Name: "x"}}}))
	assert.True(t, state.IsReplan)
	require.Len(t, state.ReplannedCases, 1)
}

func TestFirstLineCutsOnRuneBoundaries(t *testing.T) {
	long := strings.Repeat("验证失败", 50) + "\n第二行"
	got := firstLine(long)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("验证失败", 40)+"…", got)
	assert.Equal(t, "通过", firstLine("通过\n细节"))
}
