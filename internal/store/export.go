package store

import (
	"context"

	"github.com/rcliao/element-memory/internal/model"
	"github.com/rcliao/element-memory/internal/site"
)

// Import writes entries into a site's map. With replace set the site's
// existing knowledge is discarded first; otherwise imported entries
// overwrite same-fingerprint entries and the rest are kept. Entries are
// re-keyed by their element_hash and re-owned by id.
func Import(ctx context.Context, s Store, id site.Identity, entries model.SiteKnowledgeMap, replace bool) (int, error) {
	m := model.SiteKnowledgeMap{}
	if !replace {
		existing, err := s.Load(ctx, id)
		if err != nil {
			return 0, err
		}
		m = existing
	}

	imported := 0
	for fp, k := range entries {
		if k == nil {
			continue
		}
		cp := *k
		if cp.ElementHash == "" {
			cp.ElementHash = fp
		}
		cp.URL = id.String()
		m[cp.ElementHash] = &cp
		imported++
	}

	if err := s.Save(ctx, id, m); err != nil {
		return 0, err
	}
	return imported, nil
}
