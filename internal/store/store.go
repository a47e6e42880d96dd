// Package store persists per-site element knowledge.
package store

import (
	"context"
	"fmt"

	"github.com/rcliao/element-memory/internal/model"
	"github.com/rcliao/element-memory/internal/site"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Store defines the knowledge storage interface. All methods may block on
// storage I/O.
type Store interface {
	// Load returns the whole knowledge map for a site. A missing or
	// undecodable map yields an empty map, never an error.
	Load(ctx context.Context, id site.Identity) (model.SiteKnowledgeMap, error)

	// Save replaces the persisted map for a site atomically.
	Save(ctx context.Context, id site.Identity, m model.SiteKnowledgeMap) error

	// Find returns the entry for fp, or ErrNotFound.
	Find(ctx context.Context, id site.Identity, fp model.Fingerprint) (*model.ElementKnowledge, error)

	// Put inserts or replaces the entry keyed by k.ElementHash. Writers for
	// one site are serialized.
	Put(ctx context.Context, id site.Identity, k *model.ElementKnowledge) error

	// Clear deletes all knowledge for a site. Clearing an absent site is not
	// an error.
	Clear(ctx context.Context, id site.Identity) error

	// Stats reports what is persisted.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases the store.
	Close() error
}

// Open opens the backend named by backend rooted at dataDir.
func Open(backend, dataDir string, opts Options) (Store, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(dataDir, opts)
	case BackendSQLite:
		return NewSQLiteStore(dataDir, opts)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", backend)
	}
}
