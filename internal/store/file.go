package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/rcliao/element-memory/internal/model"
	"github.com/rcliao/element-memory/internal/site"
)

const lockRetryDelay = 50 * time.Millisecond

// FileStore keeps one JSON file per site identity under a directory. Writes
// go to a temporary file that is renamed over the target, under an
// in-process mutex and a cross-process flock. Loaded maps are cached until
// the next Save, Put or Clear for the same site.
type FileStore struct {
	dir string
	log *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	cache map[string]model.SiteKnowledgeMap
}

// NewFileStore opens or creates a file store rooted at dir.
func NewFileStore(dir string, opts Options) (*FileStore, error) {
	opts.defaults()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create knowledge dir: %w", err)
	}
	return &FileStore{
		dir:   dir,
		log:   opts.Logger,
		locks: make(map[string]*sync.Mutex),
		cache: make(map[string]model.SiteKnowledgeMap),
	}, nil
}

// Path returns the file that holds the knowledge map for id.
func (s *FileStore) Path(id site.Identity) string {
	return filepath.Join(s.dir, id.FileName()+".json")
}

func (s *FileStore) Load(ctx context.Context, id site.Identity) (model.SiteKnowledgeMap, error) {
	m, err := s.shared(id)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

func (s *FileStore) Find(ctx context.Context, id site.Identity, fp model.Fingerprint) (*model.ElementKnowledge, error) {
	m, err := s.shared(id)
	if err != nil {
		return nil, err
	}
	k, ok := m[fp]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, id, fp)
	}
	return k.Clone(), nil
}

func (s *FileStore) Save(ctx context.Context, id site.Identity, m model.SiteKnowledgeMap) error {
	return s.withWriteLock(ctx, id, func() error {
		if err := s.write(id, m.Clone()); err != nil {
			return err
		}
		s.log.Info("store: saved site knowledge", "site", id.String(), "entries", len(m))
		return nil
	})
}

func (s *FileStore) Put(ctx context.Context, id site.Identity, k *model.ElementKnowledge) error {
	return s.withWriteLock(ctx, id, func() error {
		// Re-read under the lock; another process may have written since
		// our cached copy was loaded.
		m, err := s.read(id)
		if err != nil {
			return err
		}
		m[k.ElementHash] = k.Clone()
		if err := s.write(id, m); err != nil {
			return err
		}
		s.log.Info("store: saved element knowledge",
			"site", id.String(), "selector", k.Selector, "fingerprint", k.ElementHash)
		return nil
	})
}

func (s *FileStore) Clear(ctx context.Context, id site.Identity) error {
	return s.withWriteLock(ctx, id, func() error {
		err := os.Remove(s.Path(id))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: remove %s: %w", ErrWrite, s.Path(id), err)
		}
		if err == nil {
			s.log.Info("store: cleared site knowledge", "site", id.String())
		}
		return nil
	})
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	s.cache = make(map[string]model.SiteKnowledgeMap)
	s.mu.Unlock()
	return nil
}

// shared returns the cached map for id, reading it on first use. The
// result must not be modified.
func (s *FileStore) shared(id site.Identity) (model.SiteKnowledgeMap, error) {
	key := id.String()
	s.mu.Lock()
	m, ok := s.cache[key]
	s.mu.Unlock()
	if ok {
		return m, nil
	}

	lock := s.siteLock(id)
	lock.Lock()
	defer lock.Unlock()

	m, err := s.read(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[key] = m
	s.mu.Unlock()
	return m, nil
}

// read decodes the site file. A missing file is an empty map; a corrupt
// file is logged and treated as empty.
func (s *FileStore) read(id site.Identity) (model.SiteKnowledgeMap, error) {
	path := s.Path(id)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return model.SiteKnowledgeMap{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	m, err := decodeMap(data)
	if err != nil {
		s.log.Warn("store: ignoring unreadable site knowledge",
			"site", id.String(), "path", path, "error", fmt.Errorf("%w: %w", ErrCorrupt, err))
		return model.SiteKnowledgeMap{}, nil
	}
	s.log.Debug("store: loaded site knowledge", "site", id.String(), "entries", len(m))
	return m, nil
}

func decodeMap(data []byte) (model.SiteKnowledgeMap, error) {
	var raw map[model.Fingerprint]*model.ElementKnowledge
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("top-level value is not an object")
	}
	m := make(model.SiteKnowledgeMap, len(raw))
	for fp, k := range raw {
		if k == nil {
			continue
		}
		if k.ElementHash == "" {
			k.ElementHash = fp
		}
		m[fp] = k
	}
	return m, nil
}

// write replaces the site file with m via a temp file and rename, then drops
// the cached copy.
func (s *FileStore) write(id site.Identity, m model.SiteKnowledgeMap) error {
	path := s.Path(id)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrWrite, path, err)
	}

	tmp, err := os.CreateTemp(s.dir, id.FileName()+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp: %w", ErrWrite, err)
	}
	tmpName := tmp.Name()
	fail := func(op string, err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %s %s: %w", ErrWrite, op, tmpName, err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %w", ErrWrite, tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: rename %s: %w", ErrWrite, path, err)
	}

	s.invalidate(id)
	return nil
}

func (s *FileStore) invalidate(id site.Identity) {
	s.mu.Lock()
	delete(s.cache, id.String())
	s.mu.Unlock()
}

func (s *FileStore) siteLock(id site.Identity) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id.String()]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id.String()] = l
	}
	return l
}

// withWriteLock runs fn holding the site's mutex and its file lock. The
// cache entry is dropped afterwards whether or not fn succeeded.
func (s *FileStore) withWriteLock(ctx context.Context, id site.Identity, fn func() error) error {
	lock := s.siteLock(id)
	lock.Lock()
	defer lock.Unlock()
	defer s.invalidate(id)

	fl := flock.New(s.Path(id) + ".lock")
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("%w: lock %s: %w", ErrWrite, fl.Path(), err)
	}
	if !locked {
		return fmt.Errorf("%w: lock %s: not acquired", ErrWrite, fl.Path())
	}
	defer func() { _ = fl.Unlock() }()

	return fn()
}
