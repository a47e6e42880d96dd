package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/rcliao/element-memory/internal/extract"
)

// Page is an open tab. It implements extract.PageSource.
type Page struct {
	URL  string
	page *rod.Page
	mgr  *Manager
}

var _ extract.PageSource = (*Page)(nil)

// OpenPage opens a tab, navigates to pageURL and waits for the load event.
func OpenPage(ctx context.Context, mgr *Manager, pageURL string) (*Page, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	log := mgr.cfg.Logger

	var page *rod.Page
	var err error
	if mgr.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(mgr.cfg.BlockResources) > 0 {
		blockResources(page, mgr.cfg.BlockResources)
	}

	navCtx, cancel := context.WithTimeout(ctx, mgr.cfg.Timeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		log.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return &Page{URL: pageURL, page: page, mgr: mgr}, nil
}

// Snapshot probes the live DOM for candidate elements.
func (p *Page) Snapshot(ctx context.Context) (*extract.Snapshot, error) {
	res, err := p.page.Context(ctx).Eval(probeScript)
	if err != nil {
		return nil, fmt.Errorf("browser: probe %s: %w", p.URL, err)
	}
	snap, err := decodeSnapshot(res.Value.Str())
	if err != nil {
		return nil, fmt.Errorf("browser: probe %s: %w", p.URL, err)
	}
	p.mgr.cfg.Logger.Debug("browser: snapshot", "url", snap.URL, "nodes", len(snap.Nodes))
	return snap, nil
}

// Close closes the tab.
func (p *Page) Close() error {
	if p.page != nil {
		return p.page.Close()
	}
	return nil
}

func decodeSnapshot(raw string) (*extract.Snapshot, error) {
	var snap extract.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	for i := range snap.Nodes {
		snap.Nodes[i].Tag = strings.ToLower(snap.Nodes[i].Tag)
	}
	return &snap, nil
}

// blockResources fails requests for the configured resource types.
func blockResources(page *rod.Page, types []string) {
	blockSet := make(map[string]bool, len(types))
	for _, t := range types {
		blockSet[strings.ToLower(t)] = true
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if shouldBlock(blockSet, string(h.Request.Type())) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}

func shouldBlock(blockSet map[string]bool, resType string) bool {
	switch strings.ToLower(resType) {
	case "image":
		return blockSet["images"]
	case "font":
		return blockSet["fonts"]
	case "media":
		return blockSet["media"]
	}
	return false
}
