package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rcliao/element-memory/internal/model"
	"github.com/rcliao/element-memory/internal/site"
)

var quiet = Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), quiet)
	if err != nil {
		t.Fatalf("create file store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(t.TempDir(), quiet)
	if err != nil {
		t.Fatalf("create sqlite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// forEachBackend runs fn against every Store implementation.
func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("file", func(t *testing.T) { fn(t, newTestFileStore(t)) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestSQLiteStore(t)) })
}

var example = site.MustParse("example.com")

func knowledge(fp, understanding string) *model.ElementKnowledge {
	return &model.ElementKnowledge{
		URL:           example.String(),
		Selector:      "nav.navbar",
		ElementHash:   model.Fingerprint(fp),
		Understanding: understanding,
		Purpose:       "navigate",
		Confidence:    0.8,
		Timestamp:     model.Timestamp{Time: time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)},
		LLMResponse: model.Classification{
			"understanding": understanding,
			"purpose":       "navigate",
			"confidence":    0.8,
			"key_elements":  []any{"links", "logo"},
		},
	}
}

func assertEqualKnowledge(t *testing.T, want, got *model.ElementKnowledge) {
	t.Helper()
	if got.URL != want.URL || got.Selector != want.Selector || got.ElementHash != want.ElementHash ||
		got.Understanding != want.Understanding || got.Purpose != want.Purpose ||
		got.Confidence != want.Confidence {
		t.Errorf("expected %+v, got %+v", want, got)
	}
	if !got.Timestamp.Equal(want.Timestamp.Time) {
		t.Errorf("expected timestamp %v, got %v", want.Timestamp, got.Timestamp)
	}
	if got.LLMResponse["understanding"] != want.LLMResponse["understanding"] {
		t.Errorf("llm_response not preserved: %v", got.LLMResponse)
	}
	if ke, ok := got.LLMResponse["key_elements"].([]any); !ok || len(ke) != 2 {
		t.Errorf("expected key_elements to survive, got %v", got.LLMResponse["key_elements"])
	}
}

func TestLoadMissingSiteIsEmpty(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		m, err := s.Load(context.Background(), example)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if m == nil || len(m) != 0 {
			t.Errorf("expected empty map, got %v", m)
		}
	})
}

func TestRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		m, _ := s.Load(ctx, example)
		k := knowledge("f1", "main navigation")
		m[k.ElementHash] = k
		if err := s.Save(ctx, example, m); err != nil {
			t.Fatalf("save: %v", err)
		}

		got, err := s.Load(ctx, example)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(got))
		}
		assertEqualKnowledge(t, k, got["f1"])
	})
}

func TestFind(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if _, err := s.Find(ctx, example, "f1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		k := knowledge("f1", "main navigation")
		if err := s.Put(ctx, example, k); err != nil {
			t.Fatalf("put: %v", err)
		}
		got, err := s.Find(ctx, example, "f1")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		assertEqualKnowledge(t, k, got)
	})
}

func TestPutReplacesSameFingerprint(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		s.Put(ctx, example, knowledge("f1", "first"))
		s.Put(ctx, example, knowledge("f2", "other"))
		if err := s.Put(ctx, example, knowledge("f1", "second")); err != nil {
			t.Fatalf("put: %v", err)
		}

		m, _ := s.Load(ctx, example)
		if len(m) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(m))
		}
		if m["f1"].Understanding != "second" {
			t.Errorf("expected 'second', got %q", m["f1"].Understanding)
		}
	})
}

func TestSaveReplacesWholeMap(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		s.Put(ctx, example, knowledge("f1", "one"))
		s.Put(ctx, example, knowledge("f2", "two"))

		if err := s.Save(ctx, example, model.SiteKnowledgeMap{"f3": knowledge("f3", "three")}); err != nil {
			t.Fatalf("save: %v", err)
		}
		m, _ := s.Load(ctx, example)
		if len(m) != 1 || m["f3"] == nil {
			t.Errorf("expected only f3, got %v", m)
		}
	})
}

func TestClear(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		other := site.MustParse("https://other.example/")
		s.Put(ctx, example, knowledge("f1", "one"))
		s.Put(ctx, other, knowledge("f1", "kept"))

		if err := s.Clear(ctx, example); err != nil {
			t.Fatalf("clear: %v", err)
		}
		if m, _ := s.Load(ctx, example); len(m) != 0 {
			t.Errorf("expected empty after clear, got %d", len(m))
		}
		if _, err := s.Find(ctx, example, "f1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after clear, got %v", err)
		}
		if m, _ := s.Load(ctx, other); len(m) != 1 {
			t.Errorf("clear leaked into another site: %d entries", len(m))
		}
		if err := s.Clear(ctx, example); err != nil {
			t.Errorf("second clear should be a no-op, got %v", err)
		}
	})
}

func TestLoadReturnsCopy(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		s.Put(ctx, example, knowledge("f1", "one"))
		m, _ := s.Load(ctx, example)
		m["f1"].Understanding = "mutated"
		m["f9"] = knowledge("f9", "ghost")

		again, _ := s.Load(ctx, example)
		if again["f1"].Understanding != "one" || len(again) != 1 {
			t.Error("mutating a loaded map changed the store")
		}
	})
}

func TestLoadedPayloadIsIndependent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.Put(ctx, example, knowledge("aaaa", "one")); err != nil {
			t.Fatalf("put: %v", err)
		}

		m, _ := s.Load(ctx, example)
		m["aaaa"].LLMResponse["understanding"] = "tampered"
		m["aaaa"].LLMResponse["key_elements"].([]any)[0] = "tampered"

		k, err := s.Find(ctx, example, "aaaa")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got := k.LLMResponse["understanding"]; got != "one" {
			t.Errorf("expected llm_response.understanding=one after mutating a loaded map, got %v", got)
		}
		k.LLMResponse["purpose"] = "tampered"
		k.LLMResponse["key_elements"].([]any)[1] = "tampered"

		again, _ := s.Load(ctx, example)
		ke := again["aaaa"].LLMResponse["key_elements"].([]any)
		if again["aaaa"].LLMResponse["purpose"] != "navigate" || ke[0] != "links" || ke[1] != "logo" {
			t.Errorf("expected stored payload unchanged, got %v", again["aaaa"].LLMResponse)
		}
	})
}

func TestPutKeepsCallerPayloadSeparate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		k := knowledge("aaaa", "one")
		if err := s.Put(ctx, example, k); err != nil {
			t.Fatalf("put: %v", err)
		}
		k.LLMResponse["understanding"] = "tampered"

		got, _ := s.Find(ctx, example, "aaaa")
		if got.LLMResponse["understanding"] != "one" {
			t.Errorf("expected stored understanding=one, got %v", got.LLMResponse["understanding"])
		}
	})
}

func TestSaveSkipsNilEntries(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		m := model.SiteKnowledgeMap{
			"f1": knowledge("f1", "one"),
			"f2": nil,
		}
		if err := s.Save(ctx, example, m); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, _ := s.Load(ctx, example)
		if len(got) != 1 || got["f1"] == nil {
			t.Errorf("expected only f1 to be stored, got %v", got)
		}
	})
}

func TestConcurrentPutsKeepEveryEntry(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		var wg sync.WaitGroup
		fps := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
		for _, fp := range fps {
			wg.Add(1)
			go func(fp string) {
				defer wg.Done()
				if err := s.Put(ctx, example, knowledge(fp, fp)); err != nil {
					t.Errorf("put %s: %v", fp, err)
				}
			}(fp)
		}
		wg.Wait()

		m, _ := s.Load(ctx, example)
		if len(m) != len(fps) {
			t.Errorf("expected %d entries, got %d", len(fps), len(m))
		}
	})
}

func TestFileStoreCorruptFileIsColdCache(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)
	if err := os.WriteFile(s.Path(example), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := s.Load(ctx, example)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(m) != 0 {
		t.Errorf("expected empty map, got %d entries", len(m))
	}

	// A write after corruption must produce a readable file.
	if err := s.Put(ctx, example, knowledge("f1", "one")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if m, _ := s.Load(ctx, example); len(m) != 1 {
		t.Errorf("expected 1 entry after rewrite, got %d", len(m))
	}
}

func TestFileStoreNonObjectIsCorrupt(t *testing.T) {
	s := newTestFileStore(t)
	os.WriteFile(s.Path(example), []byte(`["a","b"]`), 0o644)
	if m, err := s.Load(context.Background(), example); err != nil || len(m) != 0 {
		t.Errorf("expected empty map and no error, got %v, %v", m, err)
	}
	os.WriteFile(s.Path(example), []byte(`null`), 0o644)
	if m, err := s.Load(context.Background(), example); err != nil || len(m) != 0 {
		t.Errorf("expected empty map and no error for null, got %v, %v", m, err)
	}
}

func TestFileStoreReadsLegacyFile(t *testing.T) {
	s := newTestFileStore(t)
	legacy := `{
  "9f2c1b7a0d3e4f51": {
    "url": "https://example.com",
    "selector": "nav.navbar",
    "element_hash": "9f2c1b7a0d3e4f51",
    "understanding": "Main navigation",
    "purpose": "Move between sections",
    "confidence": 0.9,
    "timestamp": "2024-05-01T09:30:00.123456",
    "llm_response": {"understanding": "Main navigation", "notes": "sticky"}
  }
}`
	os.WriteFile(s.Path(example), []byte(legacy), 0o644)

	k, err := s.Find(context.Background(), example, "9f2c1b7a0d3e4f51")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if k.LLMResponse["notes"] != "sticky" {
		t.Errorf("expected free-form field preserved, got %v", k.LLMResponse)
	}
	if k.Timestamp.Year() != 2024 {
		t.Errorf("expected legacy timestamp parsed, got %v", k.Timestamp)
	}
}

func TestFileStoreCacheInvalidatedByExternalSave(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a, _ := NewFileStore(dir, quiet)
	b, _ := NewFileStore(dir, quiet)

	a.Put(ctx, example, knowledge("f1", "one"))
	if _, err := a.Find(ctx, example, "f1"); err != nil {
		t.Fatalf("find: %v", err)
	}

	// b stands in for another process writing the same site.
	b.Put(ctx, example, knowledge("f2", "two"))

	// a's Put re-reads under the lock, so b's entry survives.
	a.Put(ctx, example, knowledge("f3", "three"))
	m, _ := b.Load(ctx, example)
	if len(m) != 3 {
		t.Errorf("expected 3 entries across writers, got %d", len(m))
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, _ := NewFileStore(dir, quiet)
	for i := 0; i < 5; i++ {
		s.Put(ctx, example, knowledge("f1", "x"))
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if name := e.Name(); len(name) > 4 && name[len(name)-4:] == ".tmp" {
			t.Errorf("leftover temp file %s", name)
		}
	}
}

func TestFileStoreWriteFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	ctx := context.Background()
	dir := t.TempDir()
	s, _ := NewFileStore(dir, quiet)
	if err := s.Put(ctx, example, knowledge("f1", "one")); err != nil {
		t.Fatalf("put: %v", err)
	}
	os.Chmod(dir, 0o500)
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	err := s.Put(ctx, example, knowledge("f2", "two"))
	if !errors.Is(err, ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
	m, _ := s.Load(ctx, example)
	if len(m) != 1 {
		t.Errorf("failed write must not change the persisted map, got %d entries", len(m))
	}
}

func TestStats(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		other := site.MustParse("https://other.example/")
		s.Put(ctx, example, knowledge("f1", "one"))
		s.Put(ctx, example, knowledge("f2", "two"))
		o := knowledge("f1", "x")
		o.URL = other.String()
		s.Put(ctx, other, o)

		st, err := s.Stats(ctx)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if st.TotalSites != 2 || st.TotalEntries != 3 {
			t.Errorf("expected 2 sites / 3 entries, got %d / %d", st.TotalSites, st.TotalEntries)
		}
	})
}

func TestImport(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		s.Put(ctx, example, knowledge("f1", "old"))

		in := model.SiteKnowledgeMap{
			"f1": knowledge("f1", "new"),
			"f2": knowledge("f2", "added"),
		}
		n, err := Import(ctx, s, example, in, false)
		if err != nil || n != 2 {
			t.Fatalf("import: n=%d err=%v", n, err)
		}
		m, _ := s.Load(ctx, example)
		if len(m) != 2 || m["f1"].Understanding != "new" {
			t.Errorf("unexpected map after merge import: %v", m)
		}

		n, _ = Import(ctx, s, example, model.SiteKnowledgeMap{"f9": knowledge("f9", "only")}, true)
		m, _ = s.Load(ctx, example)
		if n != 1 || len(m) != 1 || m["f9"] == nil {
			t.Errorf("expected replace import to leave only f9, got %v", m)
		}
	})
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("postgres", t.TempDir(), quiet); err == nil {
		t.Error("expected error for unknown backend")
	}
}
