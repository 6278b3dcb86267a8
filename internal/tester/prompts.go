package tester

import (
	"fmt"
	"strings"
)

const plannerSystemPrompt = `You are a web UI test execution planner. You receive one natural
language instruction, a numbered map of the interactive elements on the
current page, and a screenshot where each interactive element is labeled
with its number.

Plan the minimal sequence of atomic UI actions that carries out the
instruction. Only reference element ids that appear in the map.

Respond with a single JSON object, no prose:
{
  "actions": [
    {
      "type": "Tap" | "Hover" | "Input" | "Clear" | "Sleep" | "Scroll" |
              "KeyboardPress" | "Upload" | "SelectDropdown" | "Drag" |
              "GetNewPage" | "Check" | "FalsyConditionStatement",
      "thought": "why this action",
      "locate": {"id": "<element id>"},
      "param": {}
    }
  ],
  "taskWillBeAccomplished": true | false,
  "furtherPlan": {"whatHaveDone": "...", "whatToDoNext": "..."}
}

Parameter conventions:
- Input: param.value is the text, param.clear_before_type clears first
- Scroll: param.direction ("up"|"down"), param.scrollType ("once"|"untilBottom"|"untilTop"), optional param.distance
- KeyboardPress: param.value is the key name (Enter, Tab, Escape, ...)
- Upload: param.file_path is a path or list of paths
- SelectDropdown: param.option_text, or param.selection_path for cascading menus, or param.option_id when the option itself is a numbered element
- Drag: param.sourceX/sourceY/targetX/targetY
- Sleep: param.timeMs

If the instruction cannot be carried out on this page, return
{"actions": [], "error": "<reason>"}.`

func plannerUserPrompt(targetURL, instruction, elementMap string) string {
	return fmt.Sprintf(`Target site: %s

Instruction:
%s

Interactive elements on the current page:
%s

The attached screenshot shows the page with each element labeled by its id.
Return the JSON plan.`, targetURL, instruction, elementMap)
}

const verifierSystemPrompt = `You are a strict web UI test verifier. You receive an assertion about
the current page, the page's text structure, and two screenshots: one with
text regions highlighted and one unmodified.

Judge only from the evidence given. Do not assume actions succeeded; if the
evidence is ambiguous or contradicts the assertion, fail it.

Respond with a single JSON object, no prose:
{
  "Validation Result": "Validation Passed" | "Validation Failed",
  "Details": ["evidence or discrepancy, one finding per entry"]
}`

func verifierUserPrompt(assertion, pageText string) string {
	const maxPageText = 8000
	if r := []rune(pageText); len(r) > maxPageText {
		pageText = string(r[:maxPageText]) + "\n…(truncated)"
	}
	return fmt.Sprintf(`Assertion to verify:
%s

Page text structure:
%s

Two screenshots are attached: the first with text regions marked, the
second unmodified. Return the JSON verdict.`, assertion, pageText)
}

// VerifyResult is the normalized verifier verdict.
type VerifyResult struct {
	Result  string   `json:"Validation Result"`
	Details []string `json:"Details"`
}

// Passed reports whether the verdict is the exact pass marker.
func (v VerifyResult) Passed() bool {
	return strings.TrimSpace(v.Result) == "Validation Passed"
}
