// Package runner holds one runner per test type. A runner turns a live
// browser session plus a test configuration into a TestResult; the parallel
// executor owns session lifecycle and timeout enforcement around it.
package runner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"webqa/internal/browser"
	"webqa/internal/llm"
	"webqa/internal/types"
)

// Input carries everything a runner needs for one test.
type Input struct {
	Session   *browser.Session // nil for tests that do not use a browser
	Config    *types.TestConfiguration
	Client    llm.Client
	LLMConfig types.LLMConfig
	TargetURL string
	ReportDir string
	Logger    *zap.Logger
}

func (in Input) logger() *zap.Logger {
	if in.Logger == nil {
		return zap.NewNop()
	}
	return in.Logger
}

// Runner executes one configured test.
type Runner interface {
	Run(ctx context.Context, in Input) *types.TestResult
}

// Registry maps test types to runners.
type Registry struct {
	runners map[types.TestType]Runner
}

// NewRegistry returns a registry with every built-in runner installed.
func NewRegistry() *Registry {
	r := &Registry{runners: make(map[types.TestType]Runner)}
	r.Register(types.TestTypeUIAgent, &UIAgentRunner{})
	r.Register(types.TestTypeUX, &UXRunner{})
	r.Register(types.TestTypeButton, &ButtonRunner{})
	r.Register(types.TestTypeBasicCheck, &BasicCheckRunner{})
	r.Register(types.TestTypePerformance, &LighthouseRunner{})
	r.Register(types.TestTypeSecurity, &SecurityRunner{})
	return r
}

// Register installs or replaces the runner for a type.
func (r *Registry) Register(t types.TestType, runner Runner) {
	r.runners[t] = runner
}

// For returns the runner for a test type.
func (r *Registry) For(t types.TestType) (Runner, error) {
	runner, found := r.runners[t]
	if !found {
		return nil, fmt.Errorf("no runner for test type %q", t)
	}
	return runner, nil
}

// Types lists the registered test types, sorted.
func (r *Registry) Types() []types.TestType {
	out := make([]types.TestType, 0, len(r.runners))
	for t := range r.runners {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// newResult seeds a TestResult from the configuration.
func newResult(cfg *types.TestConfiguration) *types.TestResult {
	return &types.TestResult{
		TestID:    cfg.TestID,
		TestType:  cfg.TestType,
		TestName:  cfg.TestName,
		Category:  types.CategoryFor(cfg.TestType),
		Status:    types.StatusRunning,
		StartTime: time.Now(),
	}
}

// failedResult is the uniform shape for a test that could not run.
func failedResult(cfg *types.TestConfiguration, err error) *types.TestResult {
	result := newResult(cfg)
	result.ErrorMessage = err.Error()
	result.Finish(types.StatusFailed)
	return result
}

// specificString reads a string out of the test_specific_config bag.
func specificString(cfg *types.TestConfiguration, key string) string {
	if cfg.TestSpecificConfig == nil {
		return ""
	}
	v, _ := cfg.TestSpecificConfig[key].(string)
	return v
}

// specificBool reads a bool out of the test_specific_config bag.
func specificBool(cfg *types.TestConfiguration, key string) bool {
	if cfg.TestSpecificConfig == nil {
		return false
	}
	v, _ := cfg.TestSpecificConfig[key].(bool)
	return v
}
