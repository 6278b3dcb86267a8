package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"webqa/internal/types"
)

func TestCloseAllKeepsManagerUsable(t *testing.T) {
	m := NewSessionManager(zap.NewNop())
	m.sessions["s1"] = &Session{ID: "s1", closed: true, logger: zap.NewNop()}
	m.sessions["s2"] = &Session{ID: "s2", closed: true, logger: zap.NewNop()}

	m.CloseAll()
	assert.Empty(t, m.List())
	assert.Nil(t, m.browser)
	assert.Nil(t, m.stop)

	// Teardown must not retire the manager: serve mode reuses one manager
	// across queued tasks, so the next launch starts from a clean slate.
	m.sessions["s3"] = &Session{ID: "s3", closed: true, logger: zap.NewNop()}
	assert.Equal(t, []string{"s3"}, m.List())
	m.CloseAll()
	assert.Empty(t, m.List())
}

func TestEnsureBrowserHonorsCallerCancellation(t *testing.T) {
	m := NewSessionManager(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.ensureBrowser(ctx, types.DefaultBrowserConfig())
	require.ErrorIs(t, err, context.Canceled)
	// The failed call must not leave launch state behind.
	assert.Nil(t, m.browser)
	assert.Nil(t, m.stop)
}

func TestReleaseUnknownSessionIsNoop(t *testing.T) {
	m := NewSessionManager(zap.NewNop())
	assert.NoError(t, m.Release("ghost"))
}
