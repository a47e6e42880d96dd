package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	body := `{"url":"https://example.com/","scroll_x":0,"scroll_y":120,"nodes":[
		{"tag":"nav","id":"","class":"navbar","text":"Home About","rect":{"x":0,"y":0,"width":800,"height":60},"visible":true}
	]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	snap, err := snapshotFile(path).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.ScrollY != 120 || len(snap.Nodes) != 1 || snap.Nodes[0].Class != "navbar" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestSnapshotFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := snapshotFile(filepath.Join(dir, "missing.json")).Snapshot(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := snapshotFile(bad).Snapshot(context.Background()); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"analyze", "show", "get", "clear", "sites", "stats", "export", "import", "fingerprint"}
	for _, name := range want {
		cmd, _, err := RootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}
