// Package crawler produces a numbered map of the interactive elements on the
// current page. Each crawl rewrites the element buffer; the short IDs it
// assigns are stable only for the lifetime of that crawl.
package crawler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Rect is an element bounding box in viewport coordinates.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"width"`
	H float64 `json:"height"`
}

// DomElement is one element discovered by the crawl. Elements handed to the
// action layer always carry a syntactically valid CSS selector or a
// non-empty XPath.
type DomElement struct {
	ID          string            `json:"id"` // short external id, "" for non-interactive nodes
	InternalID  int64             `json:"internal_id"`
	Tag         string            `json:"tag"`
	Class       string            `json:"class,omitempty"`
	InnerText   string            `json:"inner_text,omitempty"`
	ElementType string            `json:"element_type,omitempty"` // input type attr or tag
	Placeholder string            `json:"placeholder,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Selector    string            `json:"selector,omitempty"`
	XPath       string            `json:"xpath,omitempty"`
	Box         Rect              `json:"box"`
	CenterX     float64           `json:"center_x"`
	CenterY     float64           `json:"center_y"`
	Visible     bool              `json:"visible"`
	Interactive bool              `json:"interactive"`
	TopElement  bool              `json:"top_element"`
	InViewport  bool              `json:"in_viewport"`
	Depth       int               `json:"depth"`
}

// truncateRunes cuts on rune boundaries so Chinese text is never split
// mid-character.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// ElementBuffer maps short external IDs to elements. It is rewritten on
// every crawl and consumed within the same planning turn.
type ElementBuffer map[string]*DomElement

// Get returns the element for a short ID.
func (b ElementBuffer) Get(id string) (*DomElement, bool) {
	el, ok := b[id]
	return el, ok
}

// SortedIDs returns the buffer's IDs in numeric order.
func (b ElementBuffer) SortedIDs() []string {
	ids := make([]string, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.Atoi(ids[i])
		c, _ := strconv.Atoi(ids[j])
		return a < c
	})
	return ids
}

// Describe renders the buffer as planner context, one line per element:
//
//	[3]<button class="primary"> 提交 </button>
func (b ElementBuffer) Describe() string {
	var sb strings.Builder
	for _, id := range b.SortedIDs() {
		el := b[id]
		sb.WriteString(fmt.Sprintf("[%s]<%s", id, el.Tag))
		if el.ElementType != "" && el.ElementType != el.Tag {
			sb.WriteString(fmt.Sprintf(" type=%q", el.ElementType))
		}
		if el.Placeholder != "" {
			sb.WriteString(fmt.Sprintf(" placeholder=%q", el.Placeholder))
		}
		sb.WriteString(">")
		text := truncateRunes(strings.TrimSpace(el.InnerText), 80)
		if text != "" {
			sb.WriteString(" " + text + " ")
		}
		sb.WriteString(fmt.Sprintf("</%s>\n", el.Tag))
	}
	return sb.String()
}

// TreeNode is one node of the crawled DOM tree. The tree is stored as an
// arena; parent and children are indices into it, so there are no pointer
// cycles to manage.
type TreeNode struct {
	Element  DomElement
	Parent   int // -1 for the root
	Children []int
}

// Snapshot is the output of one crawl: the arena tree plus the flat buffer.
type Snapshot struct {
	Nodes    []TreeNode
	Root     int
	Elements ElementBuffer
	// ScrollY is the page scroll offset at crawl time. Element coordinates
	// are page-absolute; mouse moves need them viewport-relative.
	ScrollY float64
}

// Text renders the visible text structure of the snapshot, indented by
// depth, with interactive elements tagged by their short ID. Suitable as LLM
// page context.
func (s *Snapshot) Text() string {
	if len(s.Nodes) == 0 {
		return ""
	}
	var sb strings.Builder
	s.writeText(&sb, s.Root)
	return sb.String()
}

func (s *Snapshot) writeText(sb *strings.Builder, idx int) {
	node := &s.Nodes[idx]
	el := &node.Element
	if el.Visible {
		text := strings.TrimSpace(el.InnerText)
		if el.Interactive || (text != "" && len(node.Children) == 0) {
			sb.WriteString(strings.Repeat("  ", el.Depth))
			if el.ID != "" {
				sb.WriteString("[" + el.ID + "]")
			}
			sb.WriteString("<" + el.Tag + ">")
			if text != "" {
				sb.WriteString(" " + truncateRunes(text, 120))
			}
			sb.WriteString("\n")
		}
	}
	for _, child := range node.Children {
		s.writeText(sb, child)
	}
}
