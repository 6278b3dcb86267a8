// Package browser owns isolated browser sessions for test execution. One
// shared Chromium instance is launched lazily; each session gets its own
// incognito context and page so concurrently running tests never share
// state.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"webqa/internal/types"
)

// Error kinds surfaced to runners.
var (
	ErrBrowserLaunch = errors.New("browser launch failed")
	ErrNavigation    = errors.New("navigation failed")
	ErrBlankPage     = errors.New("page body is blank")
)

const navigationTimeout = 60 * time.Second

// Session is one isolated browser context plus page, exclusively owned by a
// single running test.
type Session struct {
	ID string

	cfg     types.BrowserConfig
	browser *rod.Browser // incognito context
	page    *rod.Page
	monitor *Monitor
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
}

// Page returns the session's page.
func (s *Session) Page() *rod.Page { return s.page }

// Context returns the session's incognito browser context.
func (s *Session) Context() *rod.Browser { return s.browser }

// Monitor returns the console/network monitor attached at creation.
func (s *Session) Monitor() *Monitor { return s.monitor }

// Navigate adds cookies and loads the URL. It waits for DOMContentLoaded,
// then for network idle with a 60 s cap, then probes document.body.innerText;
// a blank body fails with ErrBlankPage.
func (s *Session) Navigate(ctx context.Context, url string, cookies interface{}) error {
	params, err := NormalizeCookies(cookies, url)
	if err != nil {
		return fmt.Errorf("normalize cookies: %w", err)
	}
	if len(params) > 0 {
		if err := s.page.Context(ctx).SetCookies(params); err != nil {
			s.logger.Warn("set cookies failed", zap.Error(err))
		}
	}

	page := s.page.Context(ctx).Timeout(navigationTimeout)
	wait := page.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
	}
	wait()

	// Network idle is best effort; heavy pages keep polling forever.
	if err := page.WaitIdle(navigationTimeout); err != nil {
		s.logger.Debug("network idle wait gave up", zap.String("url", url), zap.Error(err))
	}

	res, err := s.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      `() => (document.body && document.body.innerText) || ""`,
		ByValue: true,
	})
	if err != nil {
		return fmt.Errorf("%w: body probe: %v", ErrNavigation, err)
	}
	if strings.TrimSpace(res.Value.Str()) == "" {
		return fmt.Errorf("%w: %s", ErrBlankPage, url)
	}
	return nil
}

// CurrentURL returns the page URL, empty on a dead page.
func (s *Session) CurrentURL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Close releases the incognito context and page. Idempotent; safe to call
// after a partial init.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.monitor != nil {
		s.monitor.Stop()
	}
	var err error
	if s.page != nil {
		err = s.page.Close()
	}
	if s.browser != nil {
		if cerr := s.browser.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func newSessionID() string {
	return uuid.NewString()
}
