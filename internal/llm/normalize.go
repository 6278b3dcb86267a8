package llm

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// StripFences removes a surrounding ```json ... ``` or ``` ... ``` block.
// Responses without fences pass through unchanged, so fenced and unfenced
// payloads parse identically.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		head := strings.TrimSpace(trimmed[:idx])
		if head == "" || strings.EqualFold(head, "json") {
			trimmed = trimmed[idx+1:]
		}
	}
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

// DecodeJSON parses model output into v. It strips fences, tries strict
// decoding, then falls back to a jsonrepair pass for the usual model damage
// (trailing commas, single quotes, unquoted keys).
func DecodeJSON(raw string, v interface{}) error {
	payload := StripFences(raw)
	if err := json.Unmarshal([]byte(payload), v); err == nil {
		return nil
	}
	repaired, err := jsonrepair.JSONRepair(payload)
	if err != nil {
		return &APIError{Provider: "parser", Message: "unparseable JSON: " + err.Error()}
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return &APIError{Provider: "parser", Message: "invalid JSON after repair: " + err.Error()}
	}
	return nil
}

// ExtractJSONSpan returns the first top-level {...} or [...] span inside
// surrounding prose, or "" when none exists. Some models wrap JSON in
// commentary despite instructions.
func ExtractJSONSpan(raw string) string {
	payload := StripFences(raw)
	start := strings.IndexAny(payload, "{[")
	if start < 0 {
		return ""
	}
	var end int
	if payload[start] == '{' {
		end = strings.LastIndex(payload, "}")
	} else {
		end = strings.LastIndex(payload, "]")
	}
	if end <= start {
		return ""
	}
	return payload[start : end+1]
}

// ExtractJSONObject decodes model output into v, falling back to the first
// JSON span when the full payload does not parse.
func ExtractJSONObject(raw string, v interface{}) error {
	payload := StripFences(raw)
	if err := DecodeJSON(payload, v); err == nil {
		return nil
	}
	span := ExtractJSONSpan(payload)
	if span == "" {
		return &APIError{Provider: "parser", Message: "no JSON payload found"}
	}
	return DecodeJSON(span, v)
}
