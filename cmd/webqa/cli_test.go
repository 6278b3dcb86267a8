package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webqa/internal/config"
	"webqa/internal/types"
)

func TestBuildSessionFiltersAndInherits(t *testing.T) {
	cfg := &config.Config{
		TargetURL: "https://example.com",
		LLM:       types.LLMConfig{API: "openai", Model: "m", APIKey: "k"},
		Browser:   types.BrowserConfig{Viewport: types.Viewport{Width: 1920, Height: 1080}, Headless: true},
		TestConfigurations: []types.TestConfiguration{
			{TestID: "ui", TestType: types.TestTypeUIAgent, Enabled: true},
			{TestID: "off", TestType: types.TestTypeButton, Enabled: false},
			{
				TestID: "custom", TestType: types.TestTypeBasicCheck, Enabled: true,
				BrowserConfig: types.BrowserConfig{Viewport: types.Viewport{Width: 800, Height: 600}},
			},
		},
	}

	session, err := buildSession(cfg)
	require.NoError(t, err)
	require.Len(t, session.Configurations, 2)

	assert.Equal(t, "https://example.com", session.TargetURL)
	assert.Equal(t, 1920, session.Configurations["ui"].BrowserConfig.Viewport.Width)
	assert.Equal(t, 800, session.Configurations["custom"].BrowserConfig.Viewport.Width)
	assert.NotContains(t, session.Configurations, "off")
}

func TestBuildSessionDefaultBrowserConfig(t *testing.T) {
	cfg := &config.Config{
		TargetURL: "https://example.com",
		LLM:       types.LLMConfig{API: "openai", Model: "m", APIKey: "k"},
		TestConfigurations: []types.TestConfiguration{
			{TestID: "ui", TestType: types.TestTypeUIAgent, Enabled: true},
		},
	}

	session, err := buildSession(cfg)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultBrowserConfig(), session.Configurations["ui"].BrowserConfig)
}

func TestBuildSessionRejectsEmptySuite(t *testing.T) {
	cfg := &config.Config{
		TargetURL: "https://example.com",
		TestConfigurations: []types.TestConfiguration{
			{TestID: "off", TestType: types.TestTypeButton, Enabled: false},
		},
	}

	_, err := buildSession(cfg)
	assert.ErrorContains(t, err, "no enabled test configurations")
}
