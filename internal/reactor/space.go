package reactor

import (
	"fmt"

	"github.com/quiltwm/quilt/internal/model"
	"github.com/quiltwm/quilt/internal/platform"
)

// handleSpaceChanged reacts to the window system switching the visible
// desktop. The first notification resolves the initial active workspace from
// the OS-focused window rather than the configured default; later ones just
// trigger a reconcile, since windows may have been shuffled underneath us.
func (r *Reactor) handleSpaceChanged(displayID int) {
	if !r.spaceResolved {
		r.spaceResolved = true
		if id, err := r.provider.ActiveWindow(); err == nil && id != 0 {
			if ws := r.model.WorkspaceOf(id); ws != nil {
				if r.model.Active[displayID] != ws.ID && r.displayShowing(ws.ID) < 0 {
					r.model.Active[displayID] = ws.ID
					r.logger.Info("resolved initial workspace from focused window",
						"display", displayID, "workspace", ws.ID, "window", id)
				}
			}
		}
		return
	}
	if !r.asleep {
		r.reconcileAll("space-changed")
	}
}

func (r *Reactor) handleDisplaysChanged(displays []platform.Display) {
	r.logger.Info("display arrangement changed", "displays", len(displays))
	r.displays = displays

	for id, wsID := range r.model.Active {
		if displayByID(displays, id) == nil {
			delete(r.model.Active, id)
			r.hideWorkspace(r.model.Workspaces[wsID])
		}
	}
	for _, d := range displays {
		if _, ok := r.model.Active[d.ID]; ok {
			continue
		}
		if next := r.firstHiddenWorkspace(); next != nil {
			r.model.Active[d.ID] = next.ID
			r.showWorkspace(next)
		}
	}

	// Bounds changed for everything still visible; reflow.
	for _, d := range displays {
		if ws := r.model.ActiveWorkspace(d.ID); ws != nil {
			r.applyLayout(ws)
		}
	}
}

func (r *Reactor) firstHiddenWorkspace() *model.Workspace {
	for _, id := range r.model.Order {
		if r.displayShowing(id) < 0 {
			return r.model.Workspaces[id]
		}
	}
	return nil
}

// switchWorkspace makes target the visible workspace on a display. Without a
// way to unmap windows through the provider, hiding is a shift far offscreen;
// the layout tree keeps the logical arrangement so showing restores it.
func (r *Reactor) switchWorkspace(displayID int, target model.WorkspaceID) error {
	ws, ok := r.model.Workspaces[target]
	if !ok {
		return fmt.Errorf("reactor: unknown workspace %q", target)
	}
	if r.model.Active[displayID] == target {
		return nil
	}
	// Already visible elsewhere: take the assignment over and give that
	// display another workspace afterwards.
	other := r.displayShowing(target)
	if other >= 0 {
		delete(r.model.Active, other)
	}

	if cur := r.model.ActiveWorkspace(displayID); cur != nil {
		r.hideWorkspace(cur)
	}
	r.model.Active[displayID] = target
	r.showWorkspace(ws)

	if other >= 0 {
		if next := r.firstHiddenWorkspace(); next != nil {
			r.model.Active[other] = next.ID
			r.showWorkspace(next)
		}
	}

	r.logger.Info("workspace switched", "display", displayID, "workspace", target)
	r.broadcastWorkspace(ws)
	return nil
}

// hideWorkspace shifts every member window offscreen and marks it hidden so
// reconciliation leaves it alone.
func (r *Reactor) hideWorkspace(ws *model.Workspace) {
	if ws == nil {
		return
	}
	for id := range r.memberSet(ws) {
		win := r.model.Windows[id]
		if win == nil || win.Hidden {
			continue
		}
		win.Hidden = true
		shifted := win.LastFrame
		shifted.X += offscreenShift
		r.emitMove(id, shifted)
		win.LastFrame = shifted
	}
}

// showWorkspace brings a workspace's windows back on screen. Tiled frames are
// recomputed from the tree; floating windows return to where they were.
func (r *Reactor) showWorkspace(ws *model.Workspace) {
	if ws == nil {
		return
	}
	for id := range r.memberSet(ws) {
		win := r.model.Windows[id]
		if win == nil || !win.Hidden {
			continue
		}
		win.Hidden = false
		if win.Floating {
			restored := win.LastFrame
			if restored.X >= offscreenShift {
				restored.X -= offscreenShift
			}
			r.emitMove(id, restored)
			win.LastFrame = restored
		}
	}
	r.applyLayout(ws)
	if ws.Focused != 0 {
		r.emitFocus(ws.Focused)
	}
}

func (r *Reactor) memberSet(ws *model.Workspace) map[platform.WindowID]struct{} {
	members := make(map[platform.WindowID]struct{}, len(ws.Tiled)+len(ws.Floating))
	for _, id := range ws.Tiled {
		members[id] = struct{}{}
	}
	for id := range ws.Floating {
		members[id] = struct{}{}
	}
	return members
}

// moveToWorkspace transfers a window to another workspace, optionally
// following it there.
func (r *Reactor) moveToWorkspace(id platform.WindowID, target model.WorkspaceID) error {
	win, ok := r.model.Windows[id]
	if !ok || win.Phase == model.PhaseRemoved {
		return fmt.Errorf("reactor: window %d not tracked", id)
	}
	dst, ok := r.model.Workspaces[target]
	if !ok {
		return fmt.Errorf("reactor: unknown workspace %q", target)
	}
	src := r.model.WorkspaceOf(id)
	if src == dst {
		return nil
	}

	if src != nil {
		if src.Focused == id {
			if next := r.nearestTiled(src, id); next != 0 {
				src.Focused = next
				r.emitFocus(next)
			} else {
				src.Focused = 0
			}
		}
		src.Detach(id)
		r.applyLayout(src)
	}

	if win.Floating {
		dst.AttachFloating(id)
	} else {
		anchor := dst.Focused
		if !dst.Tree.Contains(anchor) {
			anchor = 0
		}
		if err := dst.AttachTiled(id, anchor, r.boundsFor(dst)); err != nil {
			return fmt.Errorf("reactor: failed to attach window %d to %q: %w", id, target, err)
		}
	}
	dst.Focused = id

	dstVisible := r.displayShowing(dst.ID) >= 0
	switch {
	case r.cfg.GetSwitchOnMove() && !dstVisible:
		display := 0
		if src != nil {
			if d := r.displayShowing(src.ID); d >= 0 {
				display = d
			}
		}
		if err := r.switchWorkspace(display, target); err != nil {
			return err
		}
	case dstVisible:
		r.applyLayout(dst)
		r.emitFocus(id)
	default:
		// Destination stays hidden; ship the window offscreen with it.
		win.Hidden = true
		shifted := win.LastFrame
		shifted.X += offscreenShift
		r.emitMove(id, shifted)
		win.LastFrame = shifted
	}

	r.logger.Info("window moved", "window", id, "workspace", target)
	if src != nil {
		r.broadcastWindows(src)
	}
	r.broadcastWindows(dst)
	return nil
}
