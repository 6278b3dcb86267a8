package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

const casePlannerSystemPrompt = `You are a senior QA engineer planning an exploratory UI test session
for a web application. You receive the target URL, a numbered map of the
interactive elements visible on the landing page, a labeled screenshot, and
the business objectives for the session.

Design a focused set of test cases. Each case verifies one user-facing
behavior end to end. Prefer the critical paths a real user would take; cover
destructive and edge inputs only where the page invites them.

Respond with a JSON array, no prose:
[
  {
    "name": "short case name",
    "objective": "what this case proves",
    "success_criteria": "observable condition that must hold",
    "category": "function | ui | data",
    "preamble_actions": ["navigate to <url>", "..."],
    "reset_session": false,
    "steps": [
      {"action": "one natural language UI instruction"},
      {"verify": "one assertion about the resulting page"}
    ]
  }
]

Rules:
- Steps alternate action and verify; every case ends with a verify.
- Instructions must be executable on this site with the elements shown.
- Keep it between 2 and 6 cases.`

func casePlannerUserPrompt(targetURL, objectives, elementMap string) string {
	if objectives == "" {
		objectives = "General functional coverage of the site's primary user flows."
	}
	return fmt.Sprintf(`Target site: %s

Business objectives:
%s

Interactive elements on the landing page:
%s

The attached screenshot shows the page with elements labeled by id.
Return the JSON array of test cases.`, targetURL, objectives, elementMap)
}

const reflectorSystemPrompt = `You review the progress of a UI test session and decide how to
proceed. You receive the business objectives, the current plan, the results
of the cases executed so far, and the structure of the page as it is now.

Decide one of:
- CONTINUE: the plan is still sound, run the next case
- REPLAN: the page revealed something the plan misses or blocks; provide
  replacement cases for the remaining work
- FINISH: objectives are covered or further cases cannot add signal

Respond with a single JSON object, no prose:
{
  "decision": "CONTINUE" | "REPLAN" | "FINISH",
  "reasoning": "one short paragraph",
  "new_plan": [ ...same case schema as the original plan... ]
}
new_plan is required for REPLAN and omitted otherwise.`

func reflectorUserPrompt(objectives string, plan []TestCase, completed []CaseResult, pageText, elementMap string) string {
	planJSON, _ := json.MarshalIndent(summarizeCases(plan), "", "  ")

	var done strings.Builder
	for _, c := range completed {
		fmt.Fprintf(&done, "- %s: %s", c.Name, c.Status)
		if c.Summary != "" {
			fmt.Fprintf(&done, " (%s)", firstLine(c.Summary))
		}
		done.WriteString("\n")
	}
	if done.Len() == 0 {
		done.WriteString("(none yet)\n")
	}

	const maxPageText = 4000
	if r := []rune(pageText); len(r) > maxPageText {
		pageText = string(r[:maxPageText]) + "\n…(truncated)"
	}

	return fmt.Sprintf(`Business objectives:
%s

Current plan:
%s

Completed cases:
%s
Current page structure:
%s

Interactive elements now visible:
%s

Return the JSON decision.`, objectives, planJSON, done.String(), pageText, elementMap)
}

func summarizeCases(cases []TestCase) []map[string]string {
	out := make([]map[string]string, 0, len(cases))
	for _, c := range cases {
		out = append(out, map[string]string{
			"name":      c.Name,
			"objective": c.Objective,
			"status":    c.Status,
		})
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > 160 {
		s = string(r[:160]) + "…"
	}
	return s
}

const summarySystemPrompt = `You write the closing summary of one executed UI test case. Judge
strictly from the step outcomes given; a case with failed steps did not
complete successfully.

Respond with one short paragraph starting exactly with "FINAL_SUMMARY:".
State whether the case completed successfully or failed at which step, and
the single most important observation.`

func summaryUserPrompt(c *TestCase, totalSteps int, failedSteps []string, recent []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Case: %s\nObjective: %s\nSuccess criteria: %s\n", c.Name, c.Objective, c.SuccessCriteria)
	fmt.Fprintf(&sb, "Steps executed: %d, failed: %d\n", totalSteps, len(failedSteps))
	if len(failedSteps) > 0 {
		sb.WriteString("Failed steps:\n")
		for _, f := range failedSteps {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
	}
	if len(recent) > 0 {
		sb.WriteString("Recent activity:\n")
		tail := recent
		if len(tail) > 6 {
			tail = tail[len(tail)-6:]
		}
		for _, r := range tail {
			fmt.Fprintf(&sb, "- %s\n", firstLine(r))
		}
	}
	return sb.String()
}
