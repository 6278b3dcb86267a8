// Package config loads webQA run configuration: the LLM backend, the browser
// defaults, and the declarative test list. Files are read through viper so
// both YAML and JSON configs work; a handful of environment variables
// override file values.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"webqa/internal/types"
)

// Config is the top-level run configuration.
type Config struct {
	TargetURL          string                    `mapstructure:"target_url"`
	LLM                types.LLMConfig           `mapstructure:"llm_config"`
	Browser            types.BrowserConfig       `mapstructure:"browser_config"`
	TestConfigurations []types.TestConfiguration `mapstructure:"test_configurations"`
	MaxConcurrentTests int                       `mapstructure:"max_concurrent_tests"`
	Log                LogConfig                 `mapstructure:"log"`
	Server             ServerConfig              `mapstructure:"server"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// ServerConfig controls the serve-mode HTTP front-end.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// Load reads a config file and applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("max_concurrent_tests", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("server.port", 8080)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch re-reads the file on change and invokes onChange with the fresh
// config. Used by serve mode so queue workers pick up new credentials
// without a restart.
func Watch(path string, onChange func(*Config)) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("watch config %s: %w", path, err)
	}
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := Load(path)
		if err != nil {
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// ApplyEnvOverrides applies OPENAI_API_KEY, OPENAI_BASE_URL and DOCKER_ENV.
// DOCKER_ENV=true forces headless browsers regardless of file settings.
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		c.LLM.BaseURL = base
	}
	if InDocker() {
		c.Browser.Headless = true
		for i := range c.TestConfigurations {
			c.TestConfigurations[i].BrowserConfig.Headless = true
		}
	}
}

// Validate checks the parts of the config every run needs.
func (c *Config) Validate() error {
	if c.TargetURL == "" {
		return fmt.Errorf("target_url is required")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm_config.api_key is required (or set OPENAI_API_KEY)")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm_config.model is required")
	}
	enabled := 0
	for _, tc := range c.TestConfigurations {
		if tc.Enabled {
			enabled++
		}
	}
	if len(c.TestConfigurations) > 0 && enabled == 0 {
		return fmt.Errorf("all test configurations are disabled")
	}
	return nil
}

// InDocker reports whether the process runs inside the container image.
func InDocker() bool {
	return strings.EqualFold(os.Getenv("DOCKER_ENV"), "true")
}
