package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"uppercase tag", "```JSON\n{\"a\":1}\n```", `{"a":1}`},
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"whitespace", "  \n{\"a\":1}\n ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestDecodeJSONFencedEqualsUnfenced(t *testing.T) {
	type result struct {
		ValidationResult string   `json:"Validation Result"`
		Details          []string `json:"Details"`
	}
	fenced := "```json\n{\"Validation Result\":\"Validation Passed\",\"Details\":[\"ok\"]}\n```"
	plain := `{"Validation Result":"Validation Passed","Details":["ok"]}`

	var a, b result
	require.NoError(t, DecodeJSON(fenced, &a))
	require.NoError(t, DecodeJSON(plain, &b))
	assert.Equal(t, b, a)
	assert.Equal(t, "Validation Passed", a.ValidationResult)
	assert.Equal(t, []string{"ok"}, a.Details)
}

func TestDecodeJSONRepairsSloppyOutput(t *testing.T) {
	var v map[string]interface{}
	// Trailing comma and single quotes, the usual model damage.
	require.NoError(t, DecodeJSON("{'decision': 'CONTINUE', 'reasoning': 'fine',}", &v))
	assert.Equal(t, "CONTINUE", v["decision"])
}

func TestDecodeJSONRejectsProse(t *testing.T) {
	var v map[string]interface{}
	err := DecodeJSON("I could not produce a plan today.", &v)
	assert.Error(t, err)
}

func TestExtractJSONSpan(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"object in prose", `Here you go: {"a":1} thanks`, `{"a":1}`},
		{"array in prose", `cases: [{"name":"x"}] done`, `[{"name":"x"}]`},
		{"fenced object", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"no json", "nothing to see here", ""},
		{"unterminated", `prefix {"a":1`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSONSpan(tt.in))
		})
	}
}

func TestExtractJSONObjectFromProse(t *testing.T) {
	var v map[string]interface{}
	raw := "Sure! Here is the plan:\n{\"actions\": []}\nLet me know."
	require.NoError(t, ExtractJSONObject(raw, &v))
	assert.Contains(t, v, "actions")
}

func TestExtractJSONArrayFromProse(t *testing.T) {
	var v []map[string]interface{}
	raw := "The cases are:\n[{\"name\": \"login\"}] done"
	require.NoError(t, ExtractJSONObject(raw, &v))
	require.Len(t, v, 1)
	assert.Equal(t, "login", v[0]["name"])
}
