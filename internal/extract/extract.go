// Package extract turns page snapshots into the ordered element descriptors
// that get fingerprinted and classified.
package extract

import (
	"context"
	"fmt"
	"iter"
	"math"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/rcliao/element-memory/internal/fingerprint"
	"github.com/rcliao/element-memory/internal/model"
)

// RawNode is one DOM element as reported by a PageSource. Rect is in
// viewport coordinates.
type RawNode struct {
	Tag       string              `json:"tag"`
	ID        string              `json:"id"`
	Class     string              `json:"class"`
	Text      string              `json:"text"`
	Rect      model.Rect          `json:"rect"`
	Visible   bool                `json:"visible"`
	Href      string              `json:"href,omitempty"`
	Clickable bool                `json:"clickable,omitempty"`
	Children  []model.NodeSummary `json:"children,omitempty"`
}

// Snapshot is the state of a page at one instant. Nodes are in document
// order.
type Snapshot struct {
	URL     string    `json:"url"`
	ScrollX float64   `json:"scroll_x"`
	ScrollY float64   `json:"scroll_y"`
	Nodes   []RawNode `json:"nodes"`
}

// PageSource supplies snapshots of the current page.
type PageSource interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Options controls filtering.
type Options struct {
	MinWidth    float64
	MinHeight   float64
	MaxElements int
	// Tolerance is the slack in pixels allowed when testing containment.
	Tolerance float64
}

// DefaultOptions returns 50x50 minimum size, 30 elements, 1px tolerance.
func DefaultOptions() Options {
	return Options{MinWidth: 50, MinHeight: 50, MaxElements: 30, Tolerance: 1}
}

// Extractor selects candidate elements from snapshots.
type Extractor struct {
	opts Options
}

// New creates an Extractor. Zero fields fall back to DefaultOptions.
func New(opts Options) *Extractor {
	def := DefaultOptions()
	if opts.MinWidth <= 0 {
		opts.MinWidth = def.MinWidth
	}
	if opts.MinHeight <= 0 {
		opts.MinHeight = def.MinHeight
	}
	if opts.MaxElements <= 0 {
		opts.MaxElements = def.MaxElements
	}
	if opts.Tolerance < 0 {
		opts.Tolerance = 0
	}
	return &Extractor{opts: opts}
}

// Extract takes a fresh snapshot from src and returns its candidates as a
// single-use sequence: ranging over it a second time yields nothing. Every
// call re-walks the page.
func (e *Extractor) Extract(ctx context.Context, src PageSource) (iter.Seq[model.ElementDescriptor], error) {
	snap, err := src.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract: snapshot: %w", err)
	}
	descs := e.Select(snap)

	var used atomic.Bool
	return func(yield func(model.ElementDescriptor) bool) {
		if used.Swap(true) {
			return
		}
		for _, d := range descs {
			if !yield(d) {
				return
			}
		}
	}, nil
}

type candidate struct {
	idx  int
	node *RawNode
	rect model.Rect
	text string
}

// Select filters, deduplicates and caps the nodes of snap, returning
// descriptors in document order with rectangles in document coordinates.
func (e *Extractor) Select(snap *Snapshot) []model.ElementDescriptor {
	if snap == nil {
		return nil
	}

	var cands []*candidate
	for i := range snap.Nodes {
		n := &snap.Nodes[i]
		if !n.Visible || !finite(n.Rect) {
			continue
		}
		if n.Rect.Width <= e.opts.MinWidth || n.Rect.Height <= e.opts.MinHeight {
			continue
		}
		r := n.Rect
		r.X += snap.ScrollX
		r.Y += snap.ScrollY
		cands = append(cands, &candidate{idx: i, node: n, rect: r, text: collapse(n.Text)})
	}

	// Largest first, so every container is selected before anything it holds.
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].rect.Area() > cands[j].rect.Area()
	})

	var selected []*candidate
	for _, c := range cands {
		if e.redundant(c, selected) {
			continue
		}
		selected = append(selected, c)
	}

	sort.Slice(selected, func(i, j int) bool { return selected[i].idx < selected[j].idx })
	if len(selected) > e.opts.MaxElements {
		selected = selected[:e.opts.MaxElements]
	}

	return e.describe(selected)
}

// redundant reports whether c sits inside an already-selected candidate and
// adds no text of its own.
func (e *Extractor) redundant(c *candidate, selected []*candidate) bool {
	for _, s := range selected {
		if !s.rect.Contains(c.rect, e.opts.Tolerance) {
			continue
		}
		if c.text == "" || strings.Contains(s.text, c.text) {
			return true
		}
	}
	return false
}

func (e *Extractor) describe(selected []*candidate) []model.ElementDescriptor {
	parents := make([]int, len(selected))
	for i, c := range selected {
		parents[i] = -1
		for j, p := range selected {
			if i == j || !p.rect.Contains(c.rect, e.opts.Tolerance) || p.rect.Area() <= c.rect.Area() {
				continue
			}
			if parents[i] < 0 || p.rect.Area() < selected[parents[i]].rect.Area() {
				parents[i] = j
			}
		}
	}

	out := make([]model.ElementDescriptor, len(selected))
	for i, c := range selected {
		d := model.ElementDescriptor{
			Tag:       strings.ToLower(c.node.Tag),
			ID:        c.node.ID,
			Classes:   c.node.Class,
			Text:      c.node.Text,
			Rect:      c.rect,
			Href:      c.node.Href,
			Clickable: c.node.Clickable,
		}

		var ctx model.StructuralContext
		if p := parents[i]; p >= 0 {
			ctx.Parent = summarize(selected[p])
			for j := range selected {
				if j != i && parents[j] == p && len(ctx.Siblings) < 3 {
					ctx.Siblings = append(ctx.Siblings, *summarize(selected[j]))
				}
			}
		}
		if n := len(c.node.Children); n > 0 {
			ctx.Children = append([]model.NodeSummary(nil), c.node.Children[:min(n, 5)]...)
		}
		if ctx.Parent != nil || len(ctx.Siblings) > 0 || len(ctx.Children) > 0 {
			d.Context = &ctx
		}
		out[i] = d
	}
	return out
}

func summarize(c *candidate) *model.NodeSummary {
	d := model.ElementDescriptor{Tag: c.node.Tag, ID: c.node.ID, Classes: c.node.Class}
	text := c.text
	if r := []rune(text); len(r) > 30 {
		text = string(r[:30])
	}
	return &model.NodeSummary{
		Tag:      strings.ToLower(c.node.Tag),
		Selector: fingerprint.Selector(d),
		Text:     text,
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func finite(r model.Rect) bool {
	for _, f := range []float64{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
