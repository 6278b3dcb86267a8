package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TimestampLayout is the run timestamp format shared by the report and log
// directories.
const TimestampLayout = "2006-01-02_15-04-05"

// RunContext carries the run-scoped paths that used to live in process
// environment: one timestamp, one report directory, one log directory.
// Components receive it explicitly instead of consulting env vars.
type RunContext struct {
	Timestamp string
	ReportDir string
	LogsDir   string
}

// NewRunContext builds a run context. The timestamp comes from
// WEBQA_TIMESTAMP when set so parallel processes of one run agree on paths,
// otherwise it is computed at init.
func NewRunContext() RunContext {
	ts := os.Getenv("WEBQA_TIMESTAMP")
	if ts == "" {
		ts = time.Now().Format(TimestampLayout)
	}
	return RunContext{
		Timestamp: ts,
		ReportDir: filepath.Join(".", "reports", "test_"+ts),
		LogsDir:   filepath.Join(".", "logs", ts),
	}
}

// NewRunContextAt builds a run context rooted at an explicit report dir,
// used when the caller supplies report_dir.
func NewRunContextAt(reportDir string) RunContext {
	ts := filepath.Base(reportDir)
	ts = strings.TrimPrefix(ts, "test_")
	return RunContext{
		Timestamp: ts,
		ReportDir: reportDir,
		LogsDir:   filepath.Join(".", "logs", ts),
	}
}

// EnsureDirs creates the report and log directories.
func (rc RunContext) EnsureDirs() error {
	if err := os.MkdirAll(rc.ReportDir, 0o755); err != nil {
		return err
	}
	return os.MkdirAll(rc.LogsDir, 0o755)
}

// HostPath rewrites a container-relative report path to its host form when
// running under DOCKER_ENV. Paths returned to users stay useful outside the
// container.
func (rc RunContext) HostPath(p string) string {
	if !InDocker() {
		return p
	}
	clean := strings.TrimPrefix(p, "./")
	if strings.HasPrefix(clean, "reports/") {
		return "/app/" + clean
	}
	return p
}
