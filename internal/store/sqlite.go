package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcliao/element-memory/internal/model"
	"github.com/rcliao/element-memory/internal/site"
)

// SQLiteFile is the database file name inside the data directory.
const SQLiteFile = "knowledge.db"

// SQLiteStore implements Store on an embedded SQLite database keyed by
// (site, fingerprint). Unlike FileStore it tolerates several writer
// processes.
type SQLiteStore struct {
	db   *sql.DB
	path string
	log  *slog.Logger
}

// NewSQLiteStore opens or creates the knowledge database under dir.
func NewSQLiteStore(dir string, opts Options) (*SQLiteStore, error) {
	opts.defaults()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dbPath := filepath.Join(dir, SQLiteFile)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db, path: dbPath, log: opts.Logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS knowledge (
		site          TEXT NOT NULL,
		fingerprint   TEXT NOT NULL,
		url           TEXT NOT NULL,
		selector      TEXT NOT NULL,
		understanding TEXT NOT NULL,
		purpose       TEXT NOT NULL,
		confidence    REAL NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL,
		llm_response  TEXT,
		PRIMARY KEY (site, fingerprint)
	);
	CREATE INDEX IF NOT EXISTS idx_knowledge_created ON knowledge(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

const selectColumns = `fingerprint, url, selector, understanding, purpose, confidence, created_at, llm_response`

func (s *SQLiteStore) Load(ctx context.Context, id site.Identity) (model.SiteKnowledgeMap, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM knowledge WHERE site = ?`, id.String())
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	defer rows.Close()

	m := model.SiteKnowledgeMap{}
	for rows.Next() {
		k, err := scanKnowledge(rows)
		if err != nil {
			s.log.Warn("store: skipping unreadable knowledge row",
				"site", id.String(), "error", fmt.Errorf("%w: %w", ErrCorrupt, err))
			continue
		}
		m[k.ElementHash] = k
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	return m, nil
}

func (s *SQLiteStore) Find(ctx context.Context, id site.Identity, fp model.Fingerprint) (*model.ElementKnowledge, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM knowledge WHERE site = ? AND fingerprint = ?`,
		id.String(), string(fp))
	k, err := scanKnowledge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, id, fp)
	}
	if err != nil {
		s.log.Warn("store: unreadable knowledge row",
			"site", id.String(), "fingerprint", fp, "error", fmt.Errorf("%w: %w", ErrCorrupt, err))
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, id, fp)
	}
	return k, nil
}

func (s *SQLiteStore) Save(ctx context.Context, id site.Identity, m model.SiteKnowledgeMap) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrWrite, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge WHERE site = ?`, id.String()); err != nil {
		return fmt.Errorf("%w: replace %s: %w", ErrWrite, id, err)
	}
	for fp, k := range m {
		if k == nil {
			continue
		}
		cp := *k
		cp.ElementHash = fp
		if err := upsert(ctx, tx, id, &cp); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrWrite, err)
	}
	s.log.Info("store: saved site knowledge", "site", id.String(), "entries", len(m))
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, id site.Identity, k *model.ElementKnowledge) error {
	if err := upsert(ctx, s.db, id, k); err != nil {
		return err
	}
	s.log.Info("store: saved element knowledge",
		"site", id.String(), "selector", k.Selector, "fingerprint", k.ElementHash)
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, id site.Identity) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM knowledge WHERE site = ?`, id.String())
	if err != nil {
		return fmt.Errorf("%w: clear %s: %w", ErrWrite, id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Info("store: cleared site knowledge", "site", id.String(), "entries", n)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, db execer, id site.Identity, k *model.ElementKnowledge) error {
	payload, err := json.Marshal(k.LLMResponse)
	if err != nil {
		return fmt.Errorf("%w: encode llm_response: %w", ErrWrite, err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO knowledge (site, fingerprint, url, selector, understanding, purpose, confidence, created_at, llm_response)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(site, fingerprint) DO UPDATE SET
		   url = excluded.url,
		   selector = excluded.selector,
		   understanding = excluded.understanding,
		   purpose = excluded.purpose,
		   confidence = excluded.confidence,
		   created_at = excluded.created_at,
		   llm_response = excluded.llm_response`,
		id.String(), string(k.ElementHash), k.URL, k.Selector, k.Understanding, k.Purpose,
		k.Confidence, k.Timestamp.UTC().Format(time.RFC3339Nano), string(payload))
	if err != nil {
		return fmt.Errorf("%w: upsert %s/%s: %w", ErrWrite, id, k.ElementHash, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanKnowledge(row scanner) (*model.ElementKnowledge, error) {
	var k model.ElementKnowledge
	var fp, createdAt string
	var payload sql.NullString

	err := row.Scan(&fp, &k.URL, &k.Selector, &k.Understanding, &k.Purpose,
		&k.Confidence, &createdAt, &payload)
	if err != nil {
		return nil, err
	}
	k.ElementHash = model.Fingerprint(fp)

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	k.Timestamp = model.Timestamp{Time: t}

	if payload.Valid && payload.String != "" {
		if err := json.Unmarshal([]byte(payload.String), &k.LLMResponse); err != nil {
			return nil, fmt.Errorf("llm_response: %w", err)
		}
	}
	return &k, nil
}
