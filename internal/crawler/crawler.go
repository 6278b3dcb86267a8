package crawler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
	"go.uber.org/zap"
)

// CrawlOptions steer one crawl pass.
type CrawlOptions struct {
	// Highlight paints numbered overlays on interactive elements so they
	// show up in screenshots handed to the planner.
	Highlight bool
	// HighlightText also marks leaf text nodes, used by content checks.
	HighlightText bool
	// ViewportOnly restricts short IDs to elements inside the viewport.
	ViewportOnly bool
}

// Crawler walks the live DOM of a page and produces element snapshots.
type Crawler struct {
	page   *rod.Page
	logger *zap.Logger
}

// New returns a crawler bound to one page.
func New(page *rod.Page, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{page: page, logger: logger}
}

// jsNode mirrors the tree the page script returns.
type jsNode struct {
	DomElement
	Children []jsNode `json:"children"`
}

type jsResult struct {
	Root    jsNode  `json:"root"`
	ScrollY float64 `json:"scroll_y"`
}

// Crawl executes the page-side walk and flattens the returned tree into an
// arena snapshot. Short IDs follow document traversal order starting at "1".
func (c *Crawler) Crawl(ctx context.Context, opts CrawlOptions) (*Snapshot, error) {
	res, err := c.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      crawlScript,
		JSArgs:  []interface{}{map[string]bool{"highlight": opts.Highlight, "highlightText": opts.HighlightText, "viewportOnly": opts.ViewportOnly}},
		ByValue: true,
	})
	if err != nil {
		return nil, fmt.Errorf("dom crawl: %w", err)
	}

	snap, err := decodeCrawl([]byte(res.Value.JSON("", "")))
	if err != nil {
		return nil, err
	}
	c.logger.Debug("dom crawled",
		zap.Int("nodes", len(snap.Nodes)),
		zap.Int("interactive", len(snap.Elements)))
	return snap, nil
}

// decodeCrawl turns the page script's JSON into an arena snapshot carrying
// the scroll offset the coordinates were captured at.
func decodeCrawl(data []byte) (*Snapshot, error) {
	var result jsResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("dom crawl decode: %w", err)
	}
	snap := Flatten(&result.Root)
	snap.ScrollY = result.ScrollY
	return snap, nil
}

// RemoveMarker clears the highlight overlay so the next screenshot shows the
// page as the user sees it.
func (c *Crawler) RemoveMarker(ctx context.Context) error {
	_, err := c.page.Context(ctx).Evaluate(&rod.EvalOptions{JS: removeMarkerScript, ByValue: true})
	if err != nil {
		return fmt.Errorf("remove marker: %w", err)
	}
	return nil
}

// Flatten converts a nested crawl tree into the arena form. Exported for the
// tests that feed pre-built trees.
func Flatten(root *jsNode) *Snapshot {
	snap := &Snapshot{Root: 0, Elements: ElementBuffer{}}
	snap.flatten(root, -1)
	return snap
}

func (s *Snapshot) flatten(n *jsNode, parent int) int {
	idx := len(s.Nodes)
	s.Nodes = append(s.Nodes, TreeNode{Element: n.DomElement, Parent: parent})
	if n.ID != "" {
		el := s.Nodes[idx].Element
		s.Elements[n.ID] = &el
	}
	for i := range n.Children {
		childIdx := s.flatten(&n.Children[i], idx)
		s.Nodes[idx].Children = append(s.Nodes[idx].Children, childIdx)
	}
	return idx
}
