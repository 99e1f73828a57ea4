package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/quiltwm/quilt/internal/layout"
	"github.com/quiltwm/quilt/internal/model"
	"github.com/quiltwm/quilt/internal/platform"
)

func buildModel(t *testing.T) *model.Model {
	t.Helper()
	m := model.New()
	bounds := platform.Rect{Width: 1920, Height: 1080}

	web := m.EnsureWorkspace("web", layout.ModeBSP)
	if err := web.AttachTiled(10, 0, bounds); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := web.AttachTiled(11, 10, bounds); err != nil {
		t.Fatalf("attach: %v", err)
	}
	web.AttachFloating(12)
	web.Focused = 11

	code := m.EnsureWorkspace("code", layout.ModeTiling)
	if err := code.AttachTiled(20, 0, bounds); err != nil {
		t.Fatalf("attach: %v", err)
	}

	for i, id := range []platform.WindowID{10, 11, 12, 20} {
		m.Windows[id] = &model.Window{
			ID:        id,
			PID:       100 + i,
			AppID:     "app",
			LastFrame: platform.Rect{X: i * 10, Y: i * 5, Width: 400, Height: 300},
			Floating:  id == 12,
			Phase:     model.PhaseTracked,
		}
	}
	m.Active[0] = "web"
	m.Active[1] = "code"
	return m
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	orig := buildModel(t)

	if err := Save(path, orig); err != nil {
		t.Fatalf("save: %v", err)
	}
	restored, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if restored == nil {
		t.Fatal("expected a restored model")
	}

	if len(restored.Order) != len(orig.Order) {
		t.Fatalf("workspace count: got %d, want %d", len(restored.Order), len(orig.Order))
	}
	for _, wsID := range orig.Order {
		a, b := orig.Workspaces[wsID], restored.Workspaces[wsID]
		if b == nil {
			t.Fatalf("workspace %s missing after restore", wsID)
		}
		if !a.Tree.Equal(b.Tree) {
			t.Fatalf("workspace %s: tree differs after round trip", wsID)
		}
		if a.Mode != b.Mode || a.Focused != b.Focused {
			t.Fatalf("workspace %s: mode/focus differ", wsID)
		}
		if len(a.Floating) != len(b.Floating) {
			t.Fatalf("workspace %s: floating set differs", wsID)
		}
		for id := range a.Floating {
			if _, ok := b.Floating[id]; !ok {
				t.Fatalf("workspace %s: floating window %d missing", wsID, id)
			}
		}
		if err := b.Consistent(); err != nil {
			t.Fatalf("restored workspace inconsistent: %v", err)
		}
	}

	for id, a := range orig.Windows {
		b := restored.Windows[id]
		if b == nil {
			t.Fatalf("window %d missing after restore", id)
		}
		if a.LastFrame != b.LastFrame || a.Floating != b.Floating {
			t.Fatalf("window %d: state differs after round trip", id)
		}
	}

	if restored.Active[0] != "web" || restored.Active[1] != "code" {
		t.Fatalf("active mapping differs: %+v", restored.Active)
	}
}

func TestLoad_ReseedsApps(t *testing.T) {
	// PID-level events (app termination) must find their windows right after
	// a restore, before any reconcile pass rebuilds app ownership.
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := Save(path, buildModel(t)); err != nil {
		t.Fatalf("save: %v", err)
	}
	restored, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	for i, id := range []platform.WindowID{10, 11, 12, 20} {
		pid := 100 + i
		app, ok := restored.Apps[pid]
		if !ok {
			t.Fatalf("no app record for pid %d", pid)
		}
		if _, ok := app.Windows[id]; !ok {
			t.Fatalf("app %d does not own window %d", pid, id)
		}
	}
}

func TestLoad_MissingFileStartsEmpty(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Fatal("missing snapshot should yield nil model")
	}
}

func TestLoad_CorruptFileReportsErrCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(path)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestLoad_InconsistentWorkspaceRejected(t *testing.T) {
	// Tiled member list and tree disagree: the codec must refuse rather than
	// restore a model violating the lockstep invariant.
	doc := `{
  "version": 1,
  "workspaces": [
    {"id": "web", "index": 0, "mode": "tiling",
     "tree": {"weight": 1, "window": 10},
     "tiled": [10, 11]}
  ]
}`
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(path)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestSave_Atomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	m := buildModel(t)
	if err := Save(path, m); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := Save(path, m); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temp file left behind")
	}
}
