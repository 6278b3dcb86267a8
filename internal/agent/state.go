// Package agent drives the exploratory UI test loop: a state machine that
// plans test cases against a live page, executes them one at a time through
// the UI tester, and reflects between cases to continue, replan, or finish.
package agent

import (
	"fmt"
	"strings"

	"webqa/internal/llm"
)

// MaxReplans caps how often the reflector may rewrite the plan before the
// loop is forced to finish.
const MaxReplans = 2

// CaseStep is one instruction inside a case: either an action or an
// assertion, never both.
type CaseStep struct {
	Action string `json:"action,omitempty"`
	Verify string `json:"verify,omitempty"`
}

// TestCase is one planned scenario.
type TestCase struct {
	Name            string     `json:"name"`
	Objective       string     `json:"objective"`
	SuccessCriteria string     `json:"success_criteria"`
	Category        string     `json:"category,omitempty"`
	Steps           []CaseStep `json:"steps"`
	PreambleActions []string   `json:"preamble_actions,omitempty"`
	ResetSession    bool       `json:"reset_session,omitempty"`
	URL             string     `json:"url,omitempty"`
	Status          string     `json:"status"`
}

// CaseResult is the outcome of one executed case.
type CaseResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // passed | failed
	Summary string `json:"summary"`
}

// Decision values the reflector may return.
const (
	DecisionContinue = "CONTINUE"
	DecisionReplan   = "REPLAN"
	DecisionFinish   = "FINISH"
)

// Reflection is one reflector verdict.
type Reflection struct {
	Decision  string     `json:"decision"`
	Reasoning string     `json:"reasoning"`
	NewPlan   []TestCase `json:"new_plan,omitempty"`
}

// State is the loop's mutable state. The reflector is the only writer of
// CurrentIndex once execution starts.
type State struct {
	TestCases         []TestCase
	CurrentIndex      int
	CurrentCase       *TestCase
	CompletedCases    []CaseResult
	IsReplan          bool
	ReplannedCases    []TestCase
	ReplanCount       int
	ReflectionHistory []Reflection
	GenerateOnly      bool
}

// ParseCasePlan decodes the planner's case array, tolerating fences and
// light JSON damage, and stamps every case pending with the session URL as
// fallback.
func ParseCasePlan(raw, defaultURL string) ([]TestCase, error) {
	text := llm.StripFences(raw)
	if span := llm.ExtractJSONSpan(text); span != "" {
		text = span
	}

	var cases []TestCase
	if err := llm.DecodeJSON(text, &cases); err != nil {
		// Some models wrap the array in an object.
		var wrapped struct {
			TestCases []TestCase `json:"test_cases"`
			Cases     []TestCase `json:"cases"`
		}
		if werr := llm.DecodeJSON(text, &wrapped); werr != nil {
			return nil, fmt.Errorf("case plan decode: %w", err)
		}
		cases = wrapped.TestCases
		if len(cases) == 0 {
			cases = wrapped.Cases
		}
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("case plan is empty")
	}

	for i := range cases {
		cases[i].Status = "pending"
		if cases[i].URL == "" {
			cases[i].URL = defaultURL
		}
		if strings.TrimSpace(cases[i].Name) == "" {
			cases[i].Name = fmt.Sprintf("case_%d", i+1)
		}
	}
	return cases, nil
}

// ParseReflection decodes the reflector's verdict. A response that cannot be
// decoded degrades to CONTINUE so one confused reflection never stalls the
// run.
func ParseReflection(raw string) Reflection {
	var r Reflection
	if err := llm.DecodeJSON(llm.StripFences(raw), &r); err != nil {
		return Reflection{Decision: DecisionContinue, Reasoning: "reflection unparseable, continuing"}
	}
	r.Decision = strings.ToUpper(strings.TrimSpace(r.Decision))
	switch r.Decision {
	case DecisionContinue, DecisionReplan, DecisionFinish:
	default:
		r.Decision = DecisionContinue
	}
	if r.Decision == DecisionReplan && len(r.NewPlan) == 0 {
		r.Decision = DecisionContinue
		r.Reasoning += " (REPLAN without new_plan, continuing)"
	}
	return r
}

// SpliceReplan inserts the replanned cases at the current index, ahead of
// the not-yet-run remainder of the plan, so they execute next.
func SpliceReplan(cases []TestCase, index int, inserted []TestCase) []TestCase {
	if index < 0 {
		index = 0
	}
	if index > len(cases) {
		index = len(cases)
	}
	out := make([]TestCase, 0, len(cases)+len(inserted))
	out = append(out, cases[:index]...)
	for i := range inserted {
		inserted[i].Status = "pending"
		out = append(out, inserted[i])
	}
	out = append(out, cases[index:]...)
	return out
}
