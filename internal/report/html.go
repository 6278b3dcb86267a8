package report

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"webqa/internal/types"
)

//go:embed assets/template.html assets/style.css assets/index.js
var assets embed.FS

// WriteJSONReport serializes the whole session to test_results.json in the
// report directory. Values the encoder cannot handle are stringified rather
// than aborting the report.
func WriteJSONReport(session *types.TestSession, reportDir string) (string, error) {
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return "", fmt.Errorf("report dir: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		// Maps in metrics and messages can carry non-JSON scalars; strip
		// them by round-tripping through a stringified copy.
		data, err = json.MarshalIndent(stringifyUnsupported(session), "", "  ")
		if err != nil {
			return "", fmt.Errorf("serialize session: %w", err)
		}
	}

	path := filepath.Join(reportDir, "test_results.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write json report: %w", err)
	}
	if session.ReportPaths != nil {
		session.ReportPaths["json"] = path
	}
	return path, nil
}

func stringifyUnsupported(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = stringifyUnsupported(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = stringifyUnsupported(item)
		}
		return out
	default:
		if _, err := json.Marshal(v); err != nil {
			return fmt.Sprintf("%v", v)
		}
		return v
	}
}

// The template references its assets with exactly these three tag shapes;
// inlining replaces each with embedded content.
var (
	cssLinkRe    = regexp.MustCompile(`<link[^>]*rel="stylesheet"[^>]*href="/assets/style\.css"[^>]*/?>`)
	dataScriptRe = regexp.MustCompile(`<script[^>]*src="/data\.js"[^>]*>\s*</script>`)
	jsScriptRe   = regexp.MustCompile(`<script[^>]*type="module"[^>]*src="/assets/index\.js"[^>]*>\s*</script>`)
)

// WriteHTMLReport renders test_report.html beside the JSON: the template with
// CSS, the data blob, and the viewer script all inlined so the file opens
// from disk without a server.
func WriteHTMLReport(session *types.TestSession, reportDir string) (string, error) {
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return "", fmt.Errorf("report dir: %w", err)
	}

	tmpl, err := assets.ReadFile("assets/template.html")
	if err != nil {
		return "", fmt.Errorf("report template: %w", err)
	}
	css, err := assets.ReadFile("assets/style.css")
	if err != nil {
		return "", fmt.Errorf("report stylesheet: %w", err)
	}
	viewer, err := assets.ReadFile("assets/index.js")
	if err != nil {
		return "", fmt.Errorf("report script: %w", err)
	}

	data, err := json.Marshal(stringifyUnsupported(toPlainMap(session)))
	if err != nil {
		return "", fmt.Errorf("serialize session for html: %w", err)
	}
	// </script> inside string data would terminate the inline block early.
	safeData := strings.ReplaceAll(string(data), "</script>", `<\/script>`)

	// Literal replacements: ReplaceAllString would expand $-groups in the
	// inlined JS (template literals like ${x}).
	html := string(tmpl)
	html = replaceLiteral(html, cssLinkRe, "<style>\n"+string(css)+"\n</style>")
	html = replaceLiteral(html, dataScriptRe, "<script>\nwindow.testResultData = "+safeData+";\n</script>")
	html = replaceLiteral(html, jsScriptRe, "<script type=\"module\">\n"+string(viewer)+"\n</script>")

	path := filepath.Join(reportDir, "test_report.html")
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return "", fmt.Errorf("write html report: %w", err)
	}
	if session.ReportPaths != nil {
		session.ReportPaths["html"] = path
	}
	return path, nil
}

func replaceLiteral(s string, re *regexp.Regexp, replacement string) string {
	return re.ReplaceAllStringFunc(s, func(string) string { return replacement })
}

func toPlainMap(session *types.TestSession) map[string]interface{} {
	data, err := json.Marshal(session)
	if err != nil {
		return map[string]interface{}{"session_id": session.SessionID}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]interface{}{"session_id": session.SessionID}
	}
	return out
}
