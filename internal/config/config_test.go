package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webqa/internal/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "webqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validYAML = `
target_url: https://example.com
llm_config:
  api: openai
  model: gpt-4o
  api_key: sk-test
  base_url: https://api.openai.com/v1
  top_p: 0.9
browser_config:
  viewport: {width: 1280, height: 720}
  headless: true
test_configurations:
  - test_id: t1
    test_type: ux_test
    test_name: ux
    enabled: true
    browser_config:
      viewport: {width: 800, height: 600}
    test_specific_config:
      business_objectives: checkout flow
    retry_count: 2
    dependencies: [t0]
max_concurrent_tests: 3
`

// Every snake_case key must land in its struct field: these come in through
// mapstructure, not encoding/json.
func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", cfg.TargetURL)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "https://api.openai.com/v1", cfg.LLM.BaseURL)
	require.NotNil(t, cfg.LLM.TopP)
	assert.InDelta(t, 0.9, *cfg.LLM.TopP, 1e-9)
	assert.Equal(t, 1280, cfg.Browser.Viewport.Width)
	assert.Equal(t, 3, cfg.MaxConcurrentTests)

	require.Len(t, cfg.TestConfigurations, 1)
	tc := cfg.TestConfigurations[0]
	assert.Equal(t, "t1", tc.TestID)
	assert.Equal(t, types.TestTypeUX, tc.TestType)
	assert.Equal(t, "ux", tc.TestName)
	assert.Equal(t, 800, tc.BrowserConfig.Viewport.Width)
	assert.Equal(t, "checkout flow", tc.TestSpecificConfig["business_objectives"])
	assert.Equal(t, 2, tc.RetryCount)
	assert.Equal(t, []string{"t0"}, tc.Dependencies)
}

func TestLoadMissingTarget(t *testing.T) {
	_, err := Load(writeConfig(t, `
llm_config: {api: openai, model: m, api_key: k}
`))
	assert.ErrorContains(t, err, "target_url")
}

func TestLoadAllDisabled(t *testing.T) {
	_, err := Load(writeConfig(t, `
target_url: https://example.com
llm_config: {api: openai, model: m, api_key: k}
test_configurations:
  - {test_id: t1, test_type: ux_test, enabled: false}
`))
	assert.ErrorContains(t, err, "disabled")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("OPENAI_BASE_URL", "https://proxy.local/v1")
	t.Setenv("DOCKER_ENV", "true")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, "https://proxy.local/v1", cfg.LLM.BaseURL)
	assert.True(t, cfg.Browser.Headless)
	assert.True(t, cfg.TestConfigurations[0].BrowserConfig.Headless)
}

func TestRunContextFromEnv(t *testing.T) {
	t.Setenv("WEBQA_TIMESTAMP", "2026-08-24_10-00-00")
	rc := NewRunContext()
	assert.Equal(t, "2026-08-24_10-00-00", rc.Timestamp)
	assert.Equal(t, filepath.Join("reports", "test_2026-08-24_10-00-00"), rc.ReportDir)
	assert.Equal(t, filepath.Join("logs", "2026-08-24_10-00-00"), rc.LogsDir)
}

func TestRunContextComputed(t *testing.T) {
	t.Setenv("WEBQA_TIMESTAMP", "")
	rc := NewRunContext()
	assert.NotEmpty(t, rc.Timestamp)
	assert.Contains(t, rc.ReportDir, "test_"+rc.Timestamp)
}

func TestHostPathRewrite(t *testing.T) {
	t.Setenv("DOCKER_ENV", "true")
	rc := NewRunContext()
	assert.Equal(t, "/app/reports/test_x/test_report.html", rc.HostPath("./reports/test_x/test_report.html"))

	t.Setenv("DOCKER_ENV", "false")
	assert.Equal(t, "./reports/test_x/test_report.html", rc.HostPath("./reports/test_x/test_report.html"))
}
