// Package types provides the shared data model for webQA test runs.
// This package exists to break import cycles between the executor, the runners,
// and the report layer. Types here are foundational data structures with no
// dependencies beyond the standard library.
package types

import (
	"fmt"
	"time"
)

// =============================================================================
// ENUMS
// =============================================================================

// TestType identifies the kind of test a configuration describes.
type TestType string

const (
	TestTypeUIAgent     TestType = "ui_agent_langgraph"
	TestTypeUX          TestType = "ux_test"
	TestTypePerformance TestType = "performance"
	TestTypeBasicCheck  TestType = "web_basic_check"
	TestTypeButton      TestType = "button_test"
	TestTypeSecurity    TestType = "security"
)

// RequiresBrowser reports whether a test of this type needs its own
// isolated browser session.
func (t TestType) RequiresBrowser() bool {
	return t != TestTypeSecurity
}

// TestCategory groups results for reporting.
type TestCategory string

const (
	CategoryFunction    TestCategory = "FUNCTION"
	CategoryUI          TestCategory = "UI"
	CategoryPerformance TestCategory = "PERFORMANCE"
	CategorySecurity    TestCategory = "SECURITY"
)

// CategoryFor maps a test type to its reporting category.
func CategoryFor(t TestType) TestCategory {
	switch t {
	case TestTypePerformance:
		return CategoryPerformance
	case TestTypeSecurity:
		return CategorySecurity
	case TestTypeUX, TestTypeButton:
		return CategoryUI
	default:
		return CategoryFunction
	}
}

// TestStatus is the lifecycle status of a test or sub-test.
type TestStatus string

const (
	StatusPending     TestStatus = "PENDING"
	StatusRunning     TestStatus = "RUNNING"
	StatusPassed      TestStatus = "PASSED"
	StatusFailed      TestStatus = "FAILED"
	StatusWarning     TestStatus = "WARNING"
	StatusCancelled   TestStatus = "CANCELLED"
	StatusIncompleted TestStatus = "INCOMPLETED"
)

// IsTerminal reports whether the status is a final state.
func (s TestStatus) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusWarning, StatusCancelled, StatusIncompleted:
		return true
	}
	return false
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// BrowserConfig describes the browser context a test runs in.
type BrowserConfig struct {
	Viewport Viewport      `json:"viewport" mapstructure:"viewport"`
	Headless bool          `json:"headless" mapstructure:"headless"`
	Language string        `json:"language,omitempty" mapstructure:"language"`
	Cookies  []interface{} `json:"cookies,omitempty" mapstructure:"cookies"`
}

// Viewport is the page viewport size in CSS pixels.
type Viewport struct {
	Width  int `json:"width" mapstructure:"width"`
	Height int `json:"height" mapstructure:"height"`
}

// DefaultBrowserConfig returns the configuration used when a test does not
// specify its own.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Viewport: Viewport{Width: 1280, Height: 720},
		Headless: true,
		Language: "zh-CN",
	}
}

// LLMConfig holds credentials and sampling parameters for the model backend.
type LLMConfig struct {
	API         string   `json:"api" mapstructure:"api"`
	Model       string   `json:"model" mapstructure:"model"`
	APIKey      string   `json:"api_key" mapstructure:"api_key"`
	BaseURL     string   `json:"base_url" mapstructure:"base_url"`
	Temperature *float64 `json:"temperature,omitempty" mapstructure:"temperature"`
	TopP        *float64 `json:"top_p,omitempty" mapstructure:"top_p"`
}

// TestConfiguration is one declarative test entry. Immutable after the
// session is assembled.
type TestConfiguration struct {
	TestID             string                 `json:"test_id" mapstructure:"test_id"`
	TestType           TestType               `json:"test_type" mapstructure:"test_type"`
	TestName           string                 `json:"test_name" mapstructure:"test_name"`
	Enabled            bool                   `json:"enabled" mapstructure:"enabled"`
	BrowserConfig      BrowserConfig          `json:"browser_config" mapstructure:"browser_config"`
	TestSpecificConfig map[string]interface{} `json:"test_specific_config,omitempty" mapstructure:"test_specific_config"`
	TimeoutSeconds     int                    `json:"timeout,omitempty" mapstructure:"timeout"`
	RetryCount         int                    `json:"retry_count,omitempty" mapstructure:"retry_count"`
	Dependencies       []string               `json:"dependencies,omitempty" mapstructure:"dependencies"`
}

// Timeout returns the per-test timeout, defaulting to 300 s.
func (c TestConfiguration) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// =============================================================================
// RESULTS
// =============================================================================

// Screenshot is one captured image attached to a step.
type Screenshot struct {
	Type string `json:"type"` // always "base64"
	Data string `json:"data"` // data:image/png;base64,... URL
}

// ActionRecord is one executed action inside a step.
type ActionRecord struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
}

// SubTestStep is one action or verification within a case. Step IDs are
// ordinal and strictly increasing within a case.
type SubTestStep struct {
	ID          int            `json:"id"`
	Description string         `json:"description"`
	Actions     []ActionRecord `json:"actions,omitempty"`
	Screenshots []Screenshot   `json:"screenshots,omitempty"`
	ModelIO     string         `json:"modelIO,omitempty"`
	Status      string         `json:"status"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     time.Time      `json:"end_time"`
	Error       string         `json:"error,omitempty"`
}

// ReportEntry is a titled issue list attached to a sub-test.
type ReportEntry struct {
	Title  string   `json:"title"`
	Issues []string `json:"issues"`
}

// SubTestResult is the unit of issue reporting inside a TestResult.
type SubTestResult struct {
	Name         string                 `json:"name"`
	Status       TestStatus             `json:"status"`
	Steps        []SubTestStep          `json:"steps,omitempty"`
	Report       []ReportEntry          `json:"report,omitempty"`
	Messages     map[string]interface{} `json:"messages,omitempty"`
	FinalSummary string                 `json:"final_summary,omitempty"`
	Metrics      map[string]interface{} `json:"metrics,omitempty"`
}

// TestResult is the outcome of one configured test.
type TestResult struct {
	TestID       string                 `json:"test_id"`
	TestType     TestType               `json:"test_type"`
	TestName     string                 `json:"test_name"`
	Category     TestCategory           `json:"category"`
	Status       TestStatus             `json:"status"`
	StartTime    time.Time              `json:"start_time"`
	EndTime      time.Time              `json:"end_time"`
	Duration     float64                `json:"duration"` // seconds
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metrics      map[string]interface{} `json:"metrics,omitempty"`
	SubTests     []SubTestResult        `json:"sub_tests,omitempty"`
}

// Finish seals the result timing. Duration is derived, never stored
// independently of the interval.
func (r *TestResult) Finish(status TestStatus) {
	r.EndTime = time.Now()
	if r.StartTime.IsZero() {
		r.StartTime = r.EndTime
	}
	r.Duration = r.EndTime.Sub(r.StartTime).Seconds()
	r.Status = status
}

// DeriveStatus computes the result status from its sub-tests: any FAILED
// sub-test fails the result, any WARNING degrades it, otherwise PASSED.
// Sub-test statuses are authoritative.
func (r *TestResult) DeriveStatus() TestStatus {
	if len(r.SubTests) == 0 {
		return r.Status
	}
	status := StatusPassed
	for _, st := range r.SubTests {
		switch st.Status {
		case StatusFailed:
			return StatusFailed
		case StatusWarning:
			status = StatusWarning
		}
	}
	return status
}

// =============================================================================
// EXECUTION CONTEXT
// =============================================================================

// TestExecutionContext tracks the browser session and timing of one running
// test. StartExecution and CompleteExecution are one-shot.
type TestExecutionContext struct {
	TestID       string    `json:"test_id"`
	SessionID    string    `json:"session_id"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Duration     float64   `json:"duration"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// StartExecution records the start of the test run.
func (c *TestExecutionContext) StartExecution() {
	if c.StartTime.IsZero() {
		c.StartTime = time.Now()
	}
}

// CompleteExecution seals the context. end_time >= start_time holds even if
// the caller never called StartExecution.
func (c *TestExecutionContext) CompleteExecution(success bool, errMsg string) {
	if !c.EndTime.IsZero() {
		return
	}
	c.StartExecution()
	c.EndTime = time.Now()
	c.Duration = c.EndTime.Sub(c.StartTime).Seconds()
	c.Success = success
	c.ErrorMessage = errMsg
}

// =============================================================================
// SESSION
// =============================================================================

// TestSession is the root record of one run: every configuration, execution
// context and result, keyed by test ID.
type TestSession struct {
	SessionID         string                           `json:"session_id"`
	TargetURL         string                           `json:"target_url"`
	LLMConfig         LLMConfig                        `json:"llm_config"`
	Configurations    map[string]*TestConfiguration    `json:"configurations"`
	ExecutionContexts map[string]*TestExecutionContext `json:"execution_contexts"`
	Results           map[string]*TestResult           `json:"results"`
	StartTime         time.Time                        `json:"start_time"`
	EndTime           time.Time                        `json:"end_time"`
	AggregatedResults map[string]interface{}           `json:"aggregated_results,omitempty"`
	ReportPaths       map[string]string                `json:"report_paths,omitempty"`
	Completed         bool                             `json:"completed"`
}

// NewTestSession creates an empty session for the target URL.
func NewTestSession(sessionID, targetURL string, llm LLMConfig) *TestSession {
	return &TestSession{
		SessionID:         sessionID,
		TargetURL:         targetURL,
		LLMConfig:         llm,
		Configurations:    make(map[string]*TestConfiguration),
		ExecutionContexts: make(map[string]*TestExecutionContext),
		Results:           make(map[string]*TestResult),
		ReportPaths:       make(map[string]string),
	}
}

// AddTestConfiguration registers a configuration. Duplicate IDs are rejected
// so results can never outnumber configurations.
func (s *TestSession) AddTestConfiguration(cfg *TestConfiguration) error {
	if cfg.TestID == "" {
		return fmt.Errorf("test configuration has empty test_id")
	}
	if _, exists := s.Configurations[cfg.TestID]; exists {
		return fmt.Errorf("duplicate test_id %q", cfg.TestID)
	}
	s.Configurations[cfg.TestID] = cfg
	s.ExecutionContexts[cfg.TestID] = &TestExecutionContext{TestID: cfg.TestID}
	return nil
}

// UpdateTestResult stores a result. The test ID must belong to a known
// configuration.
func (s *TestSession) UpdateTestResult(result *TestResult) error {
	if _, ok := s.Configurations[result.TestID]; !ok {
		return fmt.Errorf("result for unknown test_id %q", result.TestID)
	}
	s.Results[result.TestID] = result
	return nil
}

// EnabledConfigurations returns the configurations with Enabled set, in no
// particular order.
func (s *TestSession) EnabledConfigurations() []*TestConfiguration {
	out := make([]*TestConfiguration, 0, len(s.Configurations))
	for _, cfg := range s.Configurations {
		if cfg.Enabled {
			out = append(out, cfg)
		}
	}
	return out
}

// CompleteSession seals the session. Idempotent.
func (s *TestSession) CompleteSession() {
	if s.Completed {
		return
	}
	s.EndTime = time.Now()
	s.Completed = true
}
