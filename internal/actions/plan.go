// Package actions translates planner instructions into browser operations on
// elements discovered by the DOM crawl. The handler owns the low-level page
// operations; the executor maps plan action types onto them and validates
// parameters.
package actions

import (
	"fmt"
	"strings"

	"webqa/internal/llm"
)

// Action type tags the planner emits.
const (
	TypeTap            = "Tap"
	TypeHover          = "Hover"
	TypeInput          = "Input"
	TypeClear          = "Clear"
	TypeSleep          = "Sleep"
	TypeScroll         = "Scroll"
	TypeKeyboardPress  = "KeyboardPress"
	TypeUpload         = "Upload"
	TypeSelectDropdown = "SelectDropdown"
	TypeDrag           = "Drag"
	TypeGetNewPage     = "GetNewPage"
	TypeCheck          = "Check"
	TypeFalsy          = "FalsyConditionStatement"
)

// Locate points an action at a crawled element by its short id.
type Locate struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt,omitempty"`
}

// PlanAction is one atomic UI operation from the planner.
type PlanAction struct {
	Type    string                 `json:"type"`
	Thought string                 `json:"thought,omitempty"`
	Locate  *Locate                `json:"locate,omitempty"`
	Param   map[string]interface{} `json:"param,omitempty"`
}

// FurtherPlan carries the planner's continuation notes when a task spans
// multiple turns.
type FurtherPlan struct {
	WhatHaveDone string `json:"whatHaveDone"`
	WhatToDoNext string `json:"whatToDoNext"`
}

// Plan is the planner's full response for one instruction.
type Plan struct {
	Actions                []PlanAction `json:"actions"`
	TaskWillBeAccomplished bool         `json:"taskWillBeAccomplished"`
	FurtherPlan            *FurtherPlan `json:"furtherPlan,omitempty"`
	Error                  string       `json:"error,omitempty"`
}

// ParsePlan decodes a planner response. Fenced or slightly malformed JSON is
// tolerated; a syntactically valid plan with no actions is an error the
// caller retries on.
func ParsePlan(raw string) (*Plan, error) {
	text := llm.StripFences(raw)
	if span := llm.ExtractJSONSpan(text); span != "" {
		text = span
	}

	var plan Plan
	if err := llm.DecodeJSON(text, &plan); err != nil {
		return nil, fmt.Errorf("plan decode: %w", err)
	}
	if plan.Error != "" {
		return nil, fmt.Errorf("planner error: %s", plan.Error)
	}
	if len(plan.Actions) == 0 {
		return nil, fmt.Errorf("plan has no actions")
	}
	for i := range plan.Actions {
		plan.Actions[i].Type = strings.TrimSpace(plan.Actions[i].Type)
	}
	return &plan, nil
}

// ParamString pulls a string parameter, accepting numbers the model sometimes
// emits instead.
func (a *PlanAction) ParamString(key string) string {
	if a.Param == nil {
		return ""
	}
	switch v := a.Param[key].(type) {
	case string:
		return v
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%v", v), ".0")
	case bool:
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// ParamFloat pulls a numeric parameter.
func (a *PlanAction) ParamFloat(key string) (float64, bool) {
	if a.Param == nil {
		return 0, false
	}
	v, ok := a.Param[key].(float64)
	return v, ok
}

// ParamBool pulls a boolean parameter.
func (a *PlanAction) ParamBool(key string) bool {
	if a.Param == nil {
		return false
	}
	v, _ := a.Param[key].(bool)
	return v
}

// ParamStrings pulls a string-list parameter, accepting a bare string too.
func (a *PlanAction) ParamStrings(key string) []string {
	if a.Param == nil {
		return nil
	}
	switch v := a.Param[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
