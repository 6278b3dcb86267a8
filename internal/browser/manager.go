package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"webqa/internal/types"
)

// SessionManager launches the shared browser and tracks live sessions by ID.
// The manager lock guards only the session map and launch state, never
// session IO.
type SessionManager struct {
	logger *zap.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	stop     context.CancelFunc // ends the current browser's lifetime
	sessions map[string]*Session
}

// NewSessionManager creates an empty manager. The browser launches on first
// CreateSession.
func NewSessionManager(logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		logger:   logger.Named("browser"),
		sessions: make(map[string]*Session),
	}
}

// CreateSession launches (if needed) and opens a fresh incognito context
// with one page sized to the config viewport.
func (m *SessionManager) CreateSession(ctx context.Context, cfg types.BrowserConfig) (*Session, error) {
	root, err := m.ensureBrowser(ctx, cfg)
	if err != nil {
		return nil, err
	}

	incognito, err := root.Incognito()
	if err != nil {
		return nil, fmt.Errorf("%w: incognito context: %v", ErrBrowserLaunch, err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("%w: create page: %v", ErrBrowserLaunch, err)
	}

	width, height := cfg.Viewport.Width, cfg.Viewport.Height
	if width == 0 || height == 0 {
		def := types.DefaultBrowserConfig().Viewport
		width, height = def.Width, def.Height
	}
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		m.logger.Warn("set viewport failed", zap.Error(err))
	}
	if cfg.Language != "" {
		if err := (proto.EmulationSetLocaleOverride{Locale: cfg.Language}).Call(page); err != nil {
			m.logger.Debug("set locale failed", zap.Error(err))
		}
	}

	sess := &Session{
		ID:      newSessionID(),
		cfg:     cfg,
		browser: incognito,
		page:    page,
		logger:  m.logger,
	}
	sess.monitor = newMonitor(page, m.logger)

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	m.logger.Info("browser session created",
		zap.String("session_id", sess.ID),
		zap.Int("width", width), zap.Int("height", height),
		zap.Bool("headless", cfg.Headless))
	return sess, nil
}

// Get returns a live session by ID.
func (m *SessionManager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// List returns the IDs of live sessions.
func (m *SessionManager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Release removes a session from tracking and closes it.
func (m *SessionManager) Release(sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close()
}

// CloseAll closes every session concurrently, then the shared browser.
// Called at teardown on every termination path. The manager stays usable:
// the next CreateSession relaunches, so one manager can serve many runs.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	root := m.browser
	stop := m.stop
	m.browser = nil
	m.stop = nil
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := s.Close(); err != nil {
				m.logger.Debug("session close", zap.String("session_id", s.ID), zap.Error(err))
			}
		}(s)
	}
	wg.Wait()

	if root != nil {
		if err := root.Close(); err != nil {
			m.logger.Debug("browser close", zap.Error(err))
		}
	}
	if stop != nil {
		stop()
	}
	m.logger.Info("all browser sessions closed", zap.Int("count", len(sessions)))
}

// ensureBrowser launches the shared Chromium once, using the first config's
// headless setting. The cached browser is bound to a manager-owned context,
// never the caller's: per-test contexts apply to sessions and pages, and a
// finished test must not kill the browser under everyone else.
func (m *SessionManager) ensureBrowser(ctx context.Context, cfg types.BrowserConfig) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.browser != nil {
		return m.browser, nil
	}

	width, height := cfg.Viewport.Width, cfg.Viewport.Height
	if width == 0 || height == 0 {
		def := types.DefaultBrowserConfig().Viewport
		width, height = def.Width, def.Height
	}

	l := launcher.New().
		Headless(cfg.Headless).
		Set(flags.NoSandbox).
		Set("disable-dev-shm-usage").
		Set("window-size", fmt.Sprintf("%d,%d", width, height))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserLaunch, err)
	}

	lifetime, cancel := context.WithCancel(context.Background())
	b := rod.New().ControlURL(controlURL).Context(lifetime)
	if err := b.Connect(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: connect: %v", ErrBrowserLaunch, err)
	}
	m.browser = b
	m.stop = cancel
	m.logger.Info("browser launched", zap.Bool("headless", cfg.Headless))
	return b, nil
}
