package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesLevelSplitFiles(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := New(Options{Dir: dir, Level: "info", Console: false})
	require.NoError(t, err)

	logger.Info("orchestrator started")
	logger.Warn("slow navigation")
	logger.Error("browser launch failed")
	closer()

	info, err := os.ReadFile(filepath.Join(dir, "log.log"))
	require.NoError(t, err)
	errLog, err := os.ReadFile(filepath.Join(dir, "error.log"))
	require.NoError(t, err)

	assert.Contains(t, string(info), "orchestrator started")
	assert.Contains(t, string(info), "slow navigation")
	assert.NotContains(t, string(errLog), "orchestrator started")
	assert.Contains(t, string(errLog), "slow navigation")
	assert.Contains(t, string(errLog), "browser launch failed")
}

func TestNewCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	_, closer, err := New(Options{Dir: dir})
	require.NoError(t, err)
	defer closer()

	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestNewRequiresDir(t *testing.T) {
	_, _, err := New(Options{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "directory"))
}
