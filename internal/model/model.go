// Package model holds the authoritative bookkeeping of windows, applications,
// and workspaces. The model is owned exclusively by the reactor; every other
// component sees it only through summaries.
package model

import (
	"fmt"

	"github.com/quiltwm/quilt/internal/layout"
	"github.com/quiltwm/quilt/internal/platform"
)

// Phase is the reactor's bookkeeping state for a window. A window is
// Discovered on its creation notification, Tracked once it passes filtering
// and classification, and Removed on destruction. Removal is idempotent.
type Phase uint8

const (
	PhaseDiscovered Phase = iota
	PhaseTracked
	PhaseRemoved
)

func (p Phase) String() string {
	switch p {
	case PhaseDiscovered:
		return "discovered"
	case PhaseTracked:
		return "tracked"
	default:
		return "removed"
	}
}

// Window is the model's record of one OS window. Referenced everywhere by ID,
// never by pointer ownership from workspaces or containers.
type Window struct {
	ID        platform.WindowID
	PID       int
	AppID     string
	Title     string
	LastFrame platform.Rect
	Floating  bool
	Hidden    bool
	ZHint     int
	Phase     Phase
}

// App is the model's record of one application, holding the set of window ids
// it owns. Windows are removed en masse when the app terminates.
type App struct {
	PID       int
	AppID     string
	Windows   map[platform.WindowID]struct{}
	Frontmost bool
}

// WorkspaceID names a workspace. IDs come from configuration (or defaults)
// and survive restarts via the snapshot.
type WorkspaceID string

// Workspace is one logical desktop: an ordered sequence of tiled members, a
// layout tree kept in lockstep with it, and an independent floating set.
type Workspace struct {
	ID       WorkspaceID
	Index    int
	Mode     layout.Mode
	Tiled    []platform.WindowID
	Tree     *layout.Tree
	Floating map[platform.WindowID]struct{}
	Focused  platform.WindowID
}

// NewWorkspace returns an empty workspace.
func NewWorkspace(id WorkspaceID, index int, mode layout.Mode) *Workspace {
	return &Workspace{
		ID:       id,
		Index:    index,
		Mode:     mode,
		Tree:     layout.New(),
		Floating: make(map[platform.WindowID]struct{}),
	}
}

// AttachTiled inserts the window into the layout tree adjacent to anchor and
// appends it to the tiled member sequence. The two structures always move
// together.
func (w *Workspace) AttachTiled(id, anchor platform.WindowID, bounds platform.Rect) error {
	if err := w.Tree.Insert(id, anchor, w.Mode, bounds); err != nil {
		return err
	}
	w.Tiled = append(w.Tiled, id)
	return nil
}

// DetachTiled removes the window from both the tree and the member sequence.
func (w *Workspace) DetachTiled(id platform.WindowID) error {
	if err := w.Tree.Remove(id); err != nil {
		return err
	}
	for i, m := range w.Tiled {
		if m == id {
			w.Tiled = append(w.Tiled[:i], w.Tiled[i+1:]...)
			break
		}
	}
	return nil
}

// AttachFloating adds the window to the floating set.
func (w *Workspace) AttachFloating(id platform.WindowID) {
	w.Floating[id] = struct{}{}
}

// Detach removes the window from whichever structure holds it. Detaching an
// absent window is a no-op.
func (w *Workspace) Detach(id platform.WindowID) {
	if w.Tree.Contains(id) {
		_ = w.DetachTiled(id)
	}
	delete(w.Floating, id)
	if w.Focused == id {
		w.Focused = 0
	}
}

// Contains reports whether the window is a member, tiled or floating.
func (w *Workspace) Contains(id platform.WindowID) bool {
	if _, ok := w.Floating[id]; ok {
		return true
	}
	return w.Tree.Contains(id)
}

// Consistent verifies the tree/member lockstep invariant: every non-floating
// member appears in exactly one leaf and vice versa.
func (w *Workspace) Consistent() error {
	if len(w.Tiled) != w.Tree.Len() {
		return fmt.Errorf("workspace %s: %d tiled members but %d leaves", w.ID, len(w.Tiled), w.Tree.Len())
	}
	for _, id := range w.Tiled {
		if !w.Tree.Contains(id) {
			return fmt.Errorf("workspace %s: member %d has no leaf", w.ID, id)
		}
		if _, floating := w.Floating[id]; floating {
			return fmt.Errorf("workspace %s: window %d is both tiled and floating", w.ID, id)
		}
	}
	return nil
}

// Model is the full logical state of the window manager.
type Model struct {
	Workspaces map[WorkspaceID]*Workspace
	Windows    map[platform.WindowID]*Window
	Apps       map[int]*App
	// Active maps display ID to the workspace visible on it. Switching is a
	// reassignment here, never a structural copy.
	Active map[int]WorkspaceID
	Order  []WorkspaceID
}

// New returns an empty model.
func New() *Model {
	return &Model{
		Workspaces: make(map[WorkspaceID]*Workspace),
		Windows:    make(map[platform.WindowID]*Window),
		Apps:       make(map[int]*App),
		Active:     make(map[int]WorkspaceID),
	}
}

// EnsureWorkspace returns the named workspace, creating it when absent.
func (m *Model) EnsureWorkspace(id WorkspaceID, mode layout.Mode) *Workspace {
	if ws, ok := m.Workspaces[id]; ok {
		return ws
	}
	ws := NewWorkspace(id, len(m.Order), mode)
	m.Workspaces[id] = ws
	m.Order = append(m.Order, id)
	return ws
}

// WorkspaceOf returns the workspace containing the window, or nil.
func (m *Model) WorkspaceOf(id platform.WindowID) *Workspace {
	for _, wsID := range m.Order {
		if ws := m.Workspaces[wsID]; ws.Contains(id) {
			return ws
		}
	}
	return nil
}

// ActiveWorkspace returns the workspace visible on the display, or nil.
func (m *Model) ActiveWorkspace(display int) *Workspace {
	id, ok := m.Active[display]
	if !ok {
		return nil
	}
	return m.Workspaces[id]
}

// EnsureApp returns the app record for pid, creating it when absent.
func (m *Model) EnsureApp(pid int, appID string) *App {
	if a, ok := m.Apps[pid]; ok {
		return a
	}
	a := &App{PID: pid, AppID: appID, Windows: make(map[platform.WindowID]struct{})}
	m.Apps[pid] = a
	return a
}

// DropWindow removes the window record and its app back-reference. Workspace
// membership must already be detached by the caller.
func (m *Model) DropWindow(id platform.WindowID) {
	win, ok := m.Windows[id]
	if !ok {
		return
	}
	if app, ok := m.Apps[win.PID]; ok {
		delete(app.Windows, id)
	}
	delete(m.Windows, id)
}
