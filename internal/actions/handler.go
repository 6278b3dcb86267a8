package actions

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"webqa/internal/crawler"
)

// Result is the uniform outcome every operation reports. Ordinary failures
// (element gone, option not found) come back as Success=false with a reason;
// only browser-level faults surface as errors.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func ok(format string, args ...interface{}) Result {
	return Result{Success: true, Message: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...interface{}) Result {
	return Result{Success: false, Message: fmt.Sprintf(format, args...)}
}

// Handler performs low-level DOM operations keyed by the short element IDs of
// the most recent crawl. It owns the element buffer for the duration of one
// planning turn.
type Handler struct {
	page    *rod.Page
	browser *rod.Browser
	buffer  crawler.ElementBuffer
	scrollY float64
	logger  *zap.Logger
}

// NewHandler binds a handler to a page and its owning browser context.
func NewHandler(page *rod.Page, browser *rod.Browser, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{page: page, browser: browser, buffer: crawler.ElementBuffer{}, logger: logger}
}

// Page returns the page the handler currently drives.
func (h *Handler) Page() *rod.Page { return h.page }

// SetBuffer installs the element buffer from the latest crawl.
func (h *Handler) SetBuffer(buf crawler.ElementBuffer) { h.buffer = buf }

// SetScrollY records the scroll offset captured at crawl time so hover
// coordinates line up with crawl-time boxes.
func (h *Handler) SetScrollY(y float64) { h.scrollY = y }

// Buffer returns the active element buffer.
func (h *Handler) Buffer() crawler.ElementBuffer { return h.buffer }

func (h *Handler) element(id string) (*crawler.DomElement, bool) {
	return h.buffer.Get(id)
}

// sleep pauses without outliving the context.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Click strips target attributes from anchors so navigation stays in the
// current tab, then clicks the element's center through the mouse.
func (h *Handler) Click(ctx context.Context, id string) Result {
	el, found := h.element(id)
	if !found {
		return fail("element %s not in current crawl", id)
	}

	_, err := h.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      `() => { document.querySelectorAll('a[target]').forEach(a => a.removeAttribute('target')); }`,
		ByValue: true,
	})
	if err != nil {
		h.logger.Debug("anchor target strip failed", zap.Error(err))
	}

	page := h.page.Context(ctx)
	if err := page.Mouse.MoveTo(proto.NewPoint(el.CenterX, el.CenterY)); err != nil {
		return fail("move to element %s: %v", id, err)
	}
	if err := page.Mouse.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fail("click element %s: %v", id, err)
	}
	return ok("clicked [%s]<%s>", id, el.Tag)
}

// Hover moves the mouse over the element and lets hover UI settle.
func (h *Handler) Hover(ctx context.Context, id string) Result {
	el, found := h.element(id)
	if !found {
		return fail("element %s not in current crawl", id)
	}
	if err := h.page.Context(ctx).Mouse.MoveTo(proto.NewPoint(el.CenterX, el.CenterY-h.scrollY)); err != nil {
		return fail("hover element %s: %v", id, err)
	}
	sleep(ctx, 500*time.Millisecond)
	return ok("hovered [%s]<%s>", id, el.Tag)
}

// resolve finds the live element, preferring the CSS selector when it is
// syntactically valid and falling back to XPath.
func (h *Handler) resolve(ctx context.Context, el *crawler.DomElement) (*rod.Element, error) {
	page := h.page.Context(ctx)
	if el.Selector != "" && crawler.ValidateCSSSelector(el.Selector) {
		if node, err := page.Element(el.Selector); err == nil {
			return node, nil
		}
	}
	if el.XPath != "" {
		if node, err := page.ElementX(el.XPath); err == nil {
			return node, nil
		}
	}
	return nil, fmt.Errorf("element not found by selector %q or xpath %q", el.Selector, el.XPath)
}

// Type focuses the element by clicking it, optionally clears it, and fills
// the text.
func (h *Handler) Type(ctx context.Context, id, text string, clearFirst bool) Result {
	el, found := h.element(id)
	if !found {
		return fail("element %s not in current crawl", id)
	}
	if res := h.Click(ctx, id); !res.Success {
		return res
	}
	node, err := h.resolve(ctx, el)
	if err != nil {
		return fail("type into %s: %v", id, err)
	}
	if clearFirst {
		if err := clearElement(node); err != nil {
			return fail("clear %s before type: %v", id, err)
		}
	}
	if err := node.Input(text); err != nil {
		return fail("type into %s: %v", id, err)
	}
	sleep(ctx, time.Second)
	return ok("typed %q into [%s]", text, id)
}

// Clear empties the element's value.
func (h *Handler) Clear(ctx context.Context, id string) Result {
	el, found := h.element(id)
	if !found {
		return fail("element %s not in current crawl", id)
	}
	if res := h.Click(ctx, id); !res.Success {
		return res
	}
	node, err := h.resolve(ctx, el)
	if err != nil {
		return fail("clear %s: %v", id, err)
	}
	if err := clearElement(node); err != nil {
		return fail("clear %s: %v", id, err)
	}
	return ok("cleared [%s]", id)
}

func clearElement(node *rod.Element) error {
	if err := node.SelectAllText(); err != nil {
		return err
	}
	return node.Input("")
}

// Scroll directions and modes.
const (
	ScrollUp   = "up"
	ScrollDown = "down"

	ScrollOnce        = "once"
	ScrollUntilBottom = "untilBottom"
	ScrollUntilTop    = "untilTop"
)

// Scroll moves the viewport. Distance defaults to half the window height.
// The until modes iterate and stop when the scroll position stops changing.
func (h *Handler) Scroll(ctx context.Context, direction, scrollType string, distance float64) Result {
	if direction != ScrollUp && direction != ScrollDown {
		return fail("invalid scroll direction %q", direction)
	}

	switch scrollType {
	case ScrollOnce:
		if err := h.scrollBy(ctx, direction, distance); err != nil {
			return fail("scroll: %v", err)
		}
		return ok("scrolled %s once", direction)
	case ScrollUntilBottom, ScrollUntilTop:
		dir := ScrollDown
		if scrollType == ScrollUntilTop {
			dir = ScrollUp
		}
		prev := -1.0
		for i := 0; i < 50; i++ {
			pos, err := h.scrollPosition(ctx)
			if err != nil {
				return fail("scroll: %v", err)
			}
			if pos == prev {
				return ok("scrolled %s to the end", dir)
			}
			prev = pos
			if err := h.scrollBy(ctx, dir, distance); err != nil {
				return fail("scroll: %v", err)
			}
			sleep(ctx, time.Second)
			if ctx.Err() != nil {
				return fail("scroll: %v", ctx.Err())
			}
		}
		return ok("scrolled %s (iteration cap reached)", dir)
	default:
		return fail("invalid scroll type %q", scrollType)
	}
}

func (h *Handler) scrollPosition(ctx context.Context) (float64, error) {
	res, err := h.page.Context(ctx).Evaluate(&rod.EvalOptions{JS: `() => window.scrollY`, ByValue: true})
	if err != nil {
		return 0, err
	}
	return res.Value.Num(), nil
}

func (h *Handler) scrollBy(ctx context.Context, direction string, distance float64) error {
	_, err := h.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `(dir, dist) => {
			const step = dist > 0 ? dist : window.innerHeight / 2;
			window.scrollBy(0, dir === 'up' ? -step : step);
		}`,
		JSArgs:  []interface{}{direction, distance},
		ByValue: true,
	})
	return err
}

var keyMap = map[string]input.Key{
	"enter":      input.Enter,
	"tab":        input.Tab,
	"escape":     input.Escape,
	"esc":        input.Escape,
	"backspace":  input.Backspace,
	"delete":     input.Delete,
	"space":      input.Space,
	"arrowup":    input.ArrowUp,
	"arrowdown":  input.ArrowDown,
	"arrowleft":  input.ArrowLeft,
	"arrowright": input.ArrowRight,
	"pageup":     input.PageUp,
	"pagedown":   input.PageDown,
	"home":       input.Home,
	"end":        input.End,
}

// KeyboardPress sends a named key to the focused element.
func (h *Handler) KeyboardPress(ctx context.Context, key string) Result {
	k, found := keyMap[strings.ToLower(strings.TrimSpace(key))]
	if !found {
		return fail("unsupported key %q", key)
	}
	if err := h.page.Context(ctx).Keyboard.Press(k); err != nil {
		return fail("press %s: %v", key, err)
	}
	return ok("pressed %s", key)
}

// GoBack navigates one history entry back.
func (h *Handler) GoBack(ctx context.Context) Result {
	if err := h.page.Context(ctx).NavigateBack(); err != nil {
		return fail("go back: %v", err)
	}
	sleep(ctx, time.Second)
	return ok("navigated back")
}

// GetNewPage switches the handler to the newest page in the browser context.
// Used after a click opened a fresh tab despite the target stripping.
func (h *Handler) GetNewPage(ctx context.Context) Result {
	if h.browser == nil {
		return fail("no browser context attached")
	}
	pages, err := h.browser.Pages()
	if err != nil {
		return fail("list pages: %v", err)
	}
	if len(pages) == 0 {
		return fail("browser context has no pages")
	}
	newest := pages[len(pages)-1]
	if newest.TargetID != h.page.TargetID {
		h.page = newest
		if err := h.page.Context(ctx).WaitLoad(); err != nil {
			h.logger.Debug("new page load wait failed", zap.Error(err))
		}
		return ok("switched to new page")
	}
	return ok("no new page, staying on current")
}

// TakeScreenshot returns raw PNG bytes.
func (h *Handler) TakeScreenshot(ctx context.Context, fullPage bool, timeout time.Duration) ([]byte, error) {
	page := h.page.Context(ctx)
	if timeout > 0 {
		page = page.Timeout(timeout)
	}
	return page.Screenshot(fullPage, nil)
}

// B64Screenshot waits for the page to settle and returns the screenshot as a
// data URL. The wait is best effort; a slow page still gets captured.
func (h *Handler) B64Screenshot(ctx context.Context, fullPage bool) (string, error) {
	if err := h.page.Context(ctx).Timeout(10 * time.Second).WaitLoad(); err != nil {
		h.logger.Debug("screenshot load wait gave up", zap.Error(err))
	}
	data, err := h.TakeScreenshot(ctx, fullPage, 30*time.Second)
	if err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// UploadFile sets files on the page's best-matching file input. When several
// file inputs exist, the first whose accept attribute matches the upload's
// extension wins, else the first input.
func (h *Handler) UploadFile(ctx context.Context, paths []string) Result {
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		} else {
			h.logger.Warn("upload file missing", zap.String("path", p))
		}
	}
	if len(existing) == 0 {
		return fail("no existing files to upload")
	}

	inputs, err := h.page.Context(ctx).Elements(`input[type="file"]`)
	if err != nil || len(inputs) == 0 {
		return fail("no file input on page")
	}

	ext := strings.ToLower(filepath.Ext(existing[0]))
	target := inputs[0]
	for _, in := range inputs {
		accept, err := in.Attribute("accept")
		if err != nil || accept == nil {
			continue
		}
		if ext != "" && strings.Contains(strings.ToLower(*accept), ext) {
			target = in
			break
		}
	}

	if err := target.SetFiles(existing); err != nil {
		return fail("set files: %v", err)
	}
	sleep(ctx, time.Second)
	return ok("uploaded %d file(s)", len(existing))
}

// Drag presses at the source, moves in small steps, and releases at the
// target.
func (h *Handler) Drag(ctx context.Context, fromX, fromY, toX, toY float64) Result {
	mouse := h.page.Context(ctx).Mouse
	if err := mouse.MoveTo(proto.NewPoint(fromX, fromY)); err != nil {
		return fail("drag move to source: %v", err)
	}
	if err := mouse.Down(proto.InputMouseButtonLeft, 1); err != nil {
		return fail("drag press: %v", err)
	}
	const steps = 10
	for i := 1; i <= steps; i++ {
		x := fromX + (toX-fromX)*float64(i)/steps
		y := fromY + (toY-fromY)*float64(i)/steps
		if err := mouse.MoveTo(proto.NewPoint(x, y)); err != nil {
			_ = mouse.Up(proto.InputMouseButtonLeft, 1)
			return fail("drag move: %v", err)
		}
		sleep(ctx, 30*time.Millisecond)
	}
	if err := mouse.Up(proto.InputMouseButtonLeft, 1); err != nil {
		return fail("drag release: %v", err)
	}
	sleep(ctx, 500*time.Millisecond)
	return ok("dragged (%.0f,%.0f) to (%.0f,%.0f)", fromX, fromY, toX, toY)
}

// NormalizeURL canonicalizes for same-page comparison: lowercase host, strip
// a www. prefix and any trailing slash.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), "/")
	}
	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	u.Host = host
	u.Scheme = strings.ToLower(u.Scheme)
	out := u.String()
	return strings.TrimSuffix(out, "/")
}

// AtURL reports whether the page is already at the target after URL
// normalization. A failed liveness probe reports false so callers re-navigate.
func (h *Handler) AtURL(ctx context.Context, target string) bool {
	res, err := h.page.Context(ctx).Evaluate(&rod.EvalOptions{JS: `() => window.location.href`, ByValue: true})
	if err != nil {
		return false
	}
	return NormalizeURL(res.Value.Str()) == NormalizeURL(target)
}

// SmartNavigate skips navigation when the page is already at the target URL.
func (h *Handler) SmartNavigate(ctx context.Context, target string, navigate func(context.Context, string) error) error {
	if h.AtURL(ctx, target) {
		h.logger.Debug("already at target, skipping navigation", zap.String("url", target))
		return nil
	}
	return navigate(ctx, target)
}
