package actions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlanPlain(t *testing.T) {
	plan, err := ParsePlan(`{
		"actions": [
			{"type": "Tap", "thought": "点击登录按钮", "locate": {"id": "3"}},
			{"type": "Input", "locate": {"id": "5"}, "param": {"value": "admin"}}
		],
		"taskWillBeAccomplished": true
	}`)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 2)
	assert.True(t, plan.TaskWillBeAccomplished)
	assert.Equal(t, TypeTap, plan.Actions[0].Type)
	assert.Equal(t, "3", plan.Actions[0].Locate.ID)
	assert.Equal(t, "admin", plan.Actions[1].ParamString("value"))
}

func TestParsePlanFencedAndProse(t *testing.T) {
	raw := "Here is the plan:\n```json\n{\"actions\":[{\"type\":\"Scroll\",\"param\":{\"direction\":\"down\",\"scrollType\":\"once\"}}],\"taskWillBeAccomplished\":false}\n```"
	plan, err := ParsePlan(raw)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, TypeScroll, plan.Actions[0].Type)
}

func TestParsePlanRepairsTrailingComma(t *testing.T) {
	plan, err := ParsePlan(`{"actions":[{"type":"Tap","locate":{"id":"1"},}],"taskWillBeAccomplished":true,}`)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 1)
}

func TestParsePlanRejectsEmptyAndError(t *testing.T) {
	_, err := ParsePlan(`{"actions":[],"taskWillBeAccomplished":false}`)
	assert.ErrorContains(t, err, "no actions")

	_, err = ParsePlan(`{"actions":[],"error":"element list is empty"}`)
	assert.ErrorContains(t, err, "element list is empty")

	_, err = ParsePlan("not json at all")
	assert.Error(t, err)
}

func TestPlanActionParamHelpers(t *testing.T) {
	a := &PlanAction{Param: map[string]interface{}{
		"value":    "hello",
		"distance": 250.0,
		"flag":     true,
		"paths":    []interface{}{"/a.png", "/b.png"},
	}}
	assert.Equal(t, "hello", a.ParamString("value"))
	d, found := a.ParamFloat("distance")
	assert.True(t, found)
	assert.Equal(t, 250.0, d)
	assert.True(t, a.ParamBool("flag"))
	assert.Equal(t, []string{"/a.png", "/b.png"}, a.ParamStrings("paths"))
	assert.Equal(t, []string{"hello"}, a.ParamStrings("value"))

	empty := &PlanAction{}
	assert.Equal(t, "", empty.ParamString("value"))
	_, found = empty.ParamFloat("distance")
	assert.False(t, found)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://www.Example.com/", "https://example.com"},
		{"https://example.com", "https://example.com"},
		{"HTTPS://WWW.EXAMPLE.COM/shop/", "https://example.com/shop"},
		{"https://example.com/a?x=1", "https://example.com/a?x=1"},
		{"not a url/", "not a url"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeURL(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeURLEquivalence(t *testing.T) {
	assert.Equal(t, NormalizeURL("https://www.shop.example.com/cart/"), NormalizeURL("https://shop.example.com/cart"))
	assert.NotEqual(t, NormalizeURL("https://example.com/a"), NormalizeURL("https://example.com/b"))
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	return NewExecutor(NewHandler(nil, nil, nil), nil)
}

func TestExecutorRejectsUnknownType(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), &PlanAction{Type: "Teleport"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "unknown action type")
}

func TestExecutorValidatesParams(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		action *PlanAction
		msg    string
	}{
		{"tap without locate", &PlanAction{Type: TypeTap}, "locate.id"},
		{"input without value", &PlanAction{Type: TypeInput, Locate: &Locate{ID: "1"}}, "param.value"},
		{"scroll without direction", &PlanAction{Type: TypeScroll, Param: map[string]interface{}{"scrollType": "once"}}, "direction"},
		{"drag without coords", &PlanAction{Type: TypeDrag, Param: map[string]interface{}{"sourceX": 1.0}}, "Drag requires"},
		{"upload without paths", &PlanAction{Type: TypeUpload}, "file_path"},
		{"keyboard without key", &PlanAction{Type: TypeKeyboardPress}, "param.value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Execute(ctx, tt.action)
			assert.False(t, res.Success)
			assert.Contains(t, res.Message, tt.msg)
		})
	}
}

func TestExecutorTapMissingElement(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), &PlanAction{Type: TypeTap, Locate: &Locate{ID: "42"}})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "not in current crawl")
}

func TestExecutorSleepBoundsAndCancel(t *testing.T) {
	e := newTestExecutor(t)

	start := time.Now()
	res := e.Execute(context.Background(), &PlanAction{Type: TypeSleep, Param: map[string]interface{}{"timeMs": 20.0}})
	assert.True(t, res.Success)
	assert.Less(t, time.Since(start), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start = time.Now()
	res = e.Execute(ctx, &PlanAction{Type: TypeSleep, Param: map[string]interface{}{"timeMs": 5000.0}})
	assert.True(t, res.Success)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecutorCheckAndFalsy(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	res := e.Execute(ctx, &PlanAction{Type: TypeCheck, Thought: "购物车应为空"})
	assert.True(t, res.Success)

	res = e.Execute(ctx, &PlanAction{Type: TypeFalsy, Param: map[string]interface{}{"reason": "登录表单未出现"}})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "登录表单未出现")
}

func TestExecutorRegisterOverride(t *testing.T) {
	e := newTestExecutor(t)
	e.Register("Blink", func(context.Context, *PlanAction) Result {
		return ok("blinked")
	})
	res := e.Execute(context.Background(), &PlanAction{Type: "Blink"})
	assert.True(t, res.Success)
	assert.Equal(t, "blinked", res.Message)
}

func TestHandlerScrollValidation(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	res := h.Scroll(context.Background(), "sideways", ScrollOnce, 0)
	assert.False(t, res.Success)
	res = h.Scroll(context.Background(), ScrollDown, "forever", 0)
	assert.False(t, res.Success)
}

func TestHandlerKeyboardRejectsUnknownKey(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	res := h.KeyboardPress(context.Background(), "HyperShift")
	assert.False(t, res.Success)
}

func TestDirectOptionClickReportsAntSelectOption(t *testing.T) {
	res := directOptionResult("7")
	assert.True(t, res.Success)
	assert.Equal(t, "ant_select_option", res.SelectorType)
	assert.Equal(t, "clicked option 7", res.Message)
}
