package reactor

import (
	"math"

	"github.com/quiltwm/quilt/internal/model"
	"github.com/quiltwm/quilt/internal/platform"
)

// manageable filters out the windows the reactor never tracks: docks,
// tooltips, splash screens, notifications, and zero-size windows.
func manageable(info platform.WindowInfo) bool {
	switch info.Kind {
	case platform.KindNormal, platform.KindDialog:
	default:
		return false
	}
	return !info.Frame.Empty()
}

func (r *Reactor) handleWindowCreated(info platform.WindowInfo) {
	if win, ok := r.model.Windows[info.ID]; ok && win.Phase != model.PhaseRemoved {
		r.logger.Debug("duplicate creation notification", "window", info.ID)
		return
	}
	if !manageable(info) {
		r.logger.Debug("ignoring unmanageable window", "window", info.ID, "kind", info.Kind)
		return
	}

	win := &model.Window{
		ID:        info.ID,
		PID:       info.PID,
		AppID:     info.AppID,
		Title:     info.Title,
		LastFrame: info.Frame,
		Hidden:    info.Minimized,
		ZHint:     info.ZHint,
		Phase:     model.PhaseDiscovered,
	}
	// Classification happens exactly once, here; the decision is cached on
	// the record and never re-derived.
	win.Floating = info.Kind == platform.KindDialog || r.cfg.FloatingFor(info.AppID, info.Title)
	win.Phase = model.PhaseTracked
	r.model.Windows[info.ID] = win

	app := r.model.EnsureApp(info.PID, info.AppID)
	app.Windows[info.ID] = struct{}{}

	ws := r.workspaceForNewWindow(info.Frame)
	if ws == nil {
		r.logger.Warn("no workspace available for new window", "window", info.ID)
		return
	}

	if win.Floating {
		ws.AttachFloating(info.ID)
	} else {
		anchor := ws.Focused
		if !ws.Tree.Contains(anchor) {
			anchor = 0
		}
		if err := ws.AttachTiled(info.ID, anchor, r.boundsFor(ws)); err != nil {
			r.logger.Error("failed to tile new window", "window", info.ID, "error", err)
			ws.AttachFloating(info.ID)
			win.Floating = true
		} else {
			r.applyLayout(ws)
		}
	}

	r.logger.Info("window tracked", "window", info.ID, "app", info.AppID,
		"workspace", ws.ID, "floating", win.Floating)
	r.broadcastWindows(ws)
}

// workspaceForNewWindow places a window on the active workspace of the
// display its frame overlaps most.
func (r *Reactor) workspaceForNewWindow(frame platform.Rect) *model.Workspace {
	if d := r.displayFor(frame); d != nil {
		if ws := r.model.ActiveWorkspace(d.ID); ws != nil {
			return ws
		}
	}
	if len(r.model.Order) > 0 {
		return r.model.Workspaces[r.model.Order[0]]
	}
	return nil
}

// handleWindowDestroyed removes a window. The transition is idempotent: a
// second destruction for an already-removed window is a no-op, not an error.
func (r *Reactor) handleWindowDestroyed(id platform.WindowID) {
	win, ok := r.model.Windows[id]
	if !ok || win.Phase == model.PhaseRemoved {
		r.logger.Debug("destroy for untracked window", "window", id)
		return
	}
	win.Phase = model.PhaseRemoved

	ws := r.model.WorkspaceOf(id)
	if ws != nil {
		// Pick the replacement focus before removal completes so the
		// workspace is never left focusless while windows remain.
		if ws.Focused == id {
			if next := r.nearestTiled(ws, id); next != 0 {
				ws.Focused = next
				r.emitFocus(next)
			} else {
				ws.Focused = 0
			}
		}
		ws.Detach(id)
		r.applyLayout(ws)
	}

	delete(r.tx, id)
	r.model.DropWindow(id)
	r.logger.Info("window removed", "window", id)
	if ws != nil {
		r.broadcastWindows(ws)
	}
}

// nearestTiled returns the remaining tiled window geometrically closest to
// the removed one, by Euclidean distance between frame centers.
func (r *Reactor) nearestTiled(ws *model.Workspace, removed platform.WindowID) platform.WindowID {
	from, ok := r.model.Windows[removed]
	if !ok {
		return 0
	}
	fx, fy := from.LastFrame.Center()

	var best platform.WindowID
	bestDist := math.MaxFloat64
	for _, id := range ws.Tiled {
		if id == removed {
			continue
		}
		win := r.model.Windows[id]
		if win == nil {
			continue
		}
		cx, cy := win.LastFrame.Center()
		d := (cx-fx)*(cx-fx) + (cy-fy)*(cy-fy)
		if d < bestDist {
			bestDist = d
			best = id
		}
	}
	return best
}

// handleFrameChanged distinguishes acknowledgements of our own effects from
// user-initiated drags. An unmatched drag of a tiled window becomes an
// implicit swap request; with no valid swap target the window snaps back to
// its computed frame so it cannot drift out of the layout.
func (r *Reactor) handleFrameChanged(id platform.WindowID, frame platform.Rect) {
	win, ok := r.model.Windows[id]
	if !ok || win.Phase == model.PhaseRemoved {
		r.logger.Debug("frame change for untracked window", "window", id)
		return
	}

	if st := r.tx[id]; st != nil && st.pending {
		if framesClose(frame, st.target) {
			st.pending = false
			win.LastFrame = frame
			return
		}
		// Intermediate geometry while our request settles; wait for the
		// final notification.
		return
	}

	if r.asleep {
		// Events around sleep are unreliable; wake reconciliation will
		// re-derive the truth.
		return
	}

	win.LastFrame = frame
	if win.Floating {
		return
	}

	ws := r.model.WorkspaceOf(id)
	if ws == nil || !ws.Tree.Contains(id) {
		return
	}

	if target := r.swapTarget(ws, id, frame); target != 0 {
		if err := ws.Tree.Swap(id, target); err != nil {
			r.logger.Warn("drag swap failed", "window", id, "target", target, "error", err)
		} else {
			r.logger.Info("drag swap", "window", id, "target", target)
		}
	}
	// Either reflow both swapped windows or snap the dragged one back.
	r.snapToLayout(ws)
	r.broadcastWindows(ws)
}

// swapTarget finds the tiled window whose computed frame the dragged frame
// overlaps most, excluding the dragged window itself.
func (r *Reactor) swapTarget(ws *model.Workspace, dragged platform.WindowID, frame platform.Rect) platform.WindowID {
	bounds := r.boundsFor(ws)
	var best platform.WindowID
	bestOverlap := 0
	for _, f := range ws.Tree.ComputeFrames(bounds, r.cfg.Gaps) {
		if f.ID == dragged {
			continue
		}
		if o := frame.Overlap(f.Rect); o > bestOverlap {
			best = f.ID
			bestOverlap = o
		}
	}
	// Require a meaningful overlap before treating the drag as a swap.
	if bestOverlap < frame.Width*frame.Height/4 {
		return 0
	}
	return best
}

// snapToLayout re-asserts computed frames for every tiled window in the
// workspace, emitting effects only where the on-screen frame disagrees.
func (r *Reactor) snapToLayout(ws *model.Workspace) {
	if r.displayShowing(ws.ID) < 0 {
		return
	}
	bounds := r.boundsFor(ws)
	for _, f := range ws.Tree.ComputeFrames(bounds, r.cfg.Gaps) {
		win := r.model.Windows[f.ID]
		if win == nil {
			continue
		}
		if win.LastFrame != f.Rect {
			r.emitMove(f.ID, f.Rect)
		}
	}
}

func (r *Reactor) handleWindowFocused(id platform.WindowID) {
	win, ok := r.model.Windows[id]
	if !ok || win.Phase == model.PhaseRemoved {
		return
	}
	ws := r.model.WorkspaceOf(id)
	if ws == nil {
		return
	}
	if ws.Focused != id {
		ws.Focused = id
		r.broadcastWorkspace(ws)
	}
	if app, ok := r.model.Apps[win.PID]; ok {
		r.setFrontmost(app.PID)
	}
}

func (r *Reactor) handleTitleChanged(id platform.WindowID, title string) {
	if win, ok := r.model.Windows[id]; ok && win.Phase != model.PhaseRemoved {
		win.Title = title
	}
}

func framesClose(a, b platform.Rect) bool {
	abs := func(v int) int {
		if v < 0 {
			return -v
		}
		return v
	}
	return abs(a.X-b.X) <= frameTolerancePx &&
		abs(a.Y-b.Y) <= frameTolerancePx &&
		abs(a.Width-b.Width) <= frameTolerancePx &&
		abs(a.Height-b.Height) <= frameTolerancePx
}
