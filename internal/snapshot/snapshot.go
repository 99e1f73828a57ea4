// Package snapshot serializes the full model to a recoverable JSON document.
// The snapshot is written on clean shutdown and consulted once at startup to
// restore the pre-restart arrangement exactly. A corrupt or missing snapshot
// downgrades to an empty initial state; it never blocks startup.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/quiltwm/quilt/internal/layout"
	"github.com/quiltwm/quilt/internal/model"
	"github.com/quiltwm/quilt/internal/platform"
)

// ErrCorrupt marks a snapshot file that exists but cannot be restored.
var ErrCorrupt = errors.New("snapshot: corrupt snapshot file")

const schemaVersion = 1

// windowRecord carries the per-window state the model needs back after a
// restart. App records are not persisted separately; Load re-seeds them from
// the windows' PIDs.
type windowRecord struct {
	ID       platform.WindowID `json:"id"`
	PID      int               `json:"pid"`
	AppID    string            `json:"app_id"`
	Title    string            `json:"title,omitempty"`
	Frame    platform.Rect     `json:"frame"`
	Floating bool              `json:"floating,omitempty"`
	Hidden   bool              `json:"hidden,omitempty"`
	ZHint    int               `json:"z_hint,omitempty"`
}

type workspaceRecord struct {
	ID       model.WorkspaceID   `json:"id"`
	Index    int                 `json:"index"`
	Mode     string              `json:"mode"`
	Tree     *layout.NodeSpec    `json:"tree,omitempty"`
	Tiled    []platform.WindowID `json:"tiled,omitempty"`
	Floating []platform.WindowID `json:"floating,omitempty"`
	Focused  platform.WindowID   `json:"focused,omitempty"`
}

type document struct {
	Version    int                          `json:"version"`
	SavedAt    time.Time                    `json:"saved_at"`
	Workspaces []workspaceRecord            `json:"workspaces"`
	Windows    []windowRecord               `json:"windows,omitempty"`
	Active     map[string]model.WorkspaceID `json:"active,omitempty"`
}

// Save writes the model to path atomically (temp file + rename).
func Save(path string, m *model.Model) error {
	doc := document{
		Version: schemaVersion,
		SavedAt: time.Now().UTC(),
		Active:  make(map[string]model.WorkspaceID, len(m.Active)),
	}

	for _, wsID := range m.Order {
		ws := m.Workspaces[wsID]
		rec := workspaceRecord{
			ID:      ws.ID,
			Index:   ws.Index,
			Mode:    ws.Mode.String(),
			Tree:    ws.Tree.Spec(),
			Tiled:   append([]platform.WindowID(nil), ws.Tiled...),
			Focused: ws.Focused,
		}
		for id := range ws.Floating {
			rec.Floating = append(rec.Floating, id)
		}
		sortIDs(rec.Floating)
		doc.Workspaces = append(doc.Workspaces, rec)
	}

	ids := make([]platform.WindowID, 0, len(m.Windows))
	for id := range m.Windows {
		ids = append(ids, id)
	}
	sortIDs(ids)
	for _, id := range ids {
		w := m.Windows[id]
		doc.Windows = append(doc.Windows, windowRecord{
			ID:       w.ID,
			PID:      w.PID,
			AppID:    w.AppID,
			Title:    w.Title,
			Frame:    w.LastFrame,
			Floating: w.Floating,
			Hidden:   w.Hidden,
			ZHint:    w.ZHint,
		})
	}

	for display, wsID := range m.Active {
		doc.Active[strconv.Itoa(display)] = wsID
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Load restores a model from path. A missing file returns (nil, nil) so the
// caller starts empty; any decode or structural failure returns an error
// wrapping ErrCorrupt.
func Load(path string) (*model.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc.Version != schemaVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, doc.Version)
	}

	m := model.New()
	for _, rec := range doc.Windows {
		m.Windows[rec.ID] = &model.Window{
			ID:        rec.ID,
			PID:       rec.PID,
			AppID:     rec.AppID,
			Title:     rec.Title,
			LastFrame: rec.Frame,
			Floating:  rec.Floating,
			Hidden:    rec.Hidden,
			ZHint:     rec.ZHint,
			Phase:     model.PhaseTracked,
		}
	}
	// Rebuild app ownership so PID-level events work before the first
	// reconcile pass.
	for _, rec := range doc.Windows {
		if rec.PID == 0 {
			continue
		}
		app := m.EnsureApp(rec.PID, rec.AppID)
		app.Windows[rec.ID] = struct{}{}
	}

	for _, rec := range doc.Workspaces {
		mode, err := layout.ParseMode(rec.Mode)
		if err != nil {
			return nil, fmt.Errorf("%w: workspace %s: %v", ErrCorrupt, rec.ID, err)
		}
		tree, err := layout.FromSpec(rec.Tree)
		if err != nil {
			return nil, fmt.Errorf("%w: workspace %s: %v", ErrCorrupt, rec.ID, err)
		}
		ws := model.NewWorkspace(rec.ID, rec.Index, mode)
		ws.Tree = tree
		ws.Tiled = append([]platform.WindowID(nil), rec.Tiled...)
		for _, id := range rec.Floating {
			ws.Floating[id] = struct{}{}
		}
		ws.Focused = rec.Focused
		if err := ws.Consistent(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		m.Workspaces[ws.ID] = ws
		m.Order = append(m.Order, ws.ID)
	}

	for key, wsID := range doc.Active {
		display, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: bad display key %q", ErrCorrupt, key)
		}
		if _, ok := m.Workspaces[wsID]; !ok {
			return nil, fmt.Errorf("%w: active workspace %s undefined", ErrCorrupt, wsID)
		}
		m.Active[display] = wsID
	}

	return m, nil
}

func sortIDs(ids []platform.WindowID) {
	slices.Sort(ids)
}
