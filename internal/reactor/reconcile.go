package reactor

import (
	"github.com/quiltwm/quilt/internal/model"
	"github.com/quiltwm/quilt/internal/platform"
)

// reconcileAll compares the provider's full window enumeration against the
// model and repairs every discrepancy: ghosts are removed, drift gets one
// corrective effect per window, and untracked manageable windows are adopted.
// This is the safety net for dropped or reordered notifications.
func (r *Reactor) reconcileAll(reason string) {
	list, err := r.provider.ListWindows()
	if err != nil {
		r.logger.Error("reconcile failed to enumerate windows", "reason", reason, "error", err)
		return
	}

	live := make(map[platform.WindowID]platform.WindowInfo, len(list))
	for _, info := range list {
		live[info.ID] = info
	}

	// Ghosts first, so layout reflow happens before drift correction.
	var ghosts []platform.WindowID
	for id, win := range r.model.Windows {
		if win.Phase == model.PhaseRemoved {
			continue
		}
		if _, ok := live[id]; !ok {
			ghosts = append(ghosts, id)
		}
	}
	for _, id := range ghosts {
		r.logger.Warn("removing ghost window", "window", id, "reason", reason)
		r.handleWindowDestroyed(id)
	}

	adopted := 0
	for _, info := range list {
		win, ok := r.model.Windows[info.ID]
		if !ok || win.Phase == model.PhaseRemoved {
			if manageable(info) {
				r.handleWindowCreated(info)
				adopted++
			}
			continue
		}
		win.Title = info.Title
		if win.Hidden {
			// Offscreen by our own doing; leave it there.
			continue
		}
		if st := r.tx[info.ID]; st != nil && st.pending {
			st.pending = false
		}
		win.LastFrame = info.Frame
	}

	corrected := 0
	for _, d := range r.displays {
		ws := r.model.ActiveWorkspace(d.ID)
		if ws == nil {
			continue
		}
		for _, f := range ws.Tree.ComputeFrames(d.Usable, r.cfg.Gaps) {
			win := r.model.Windows[f.ID]
			if win == nil || win.Hidden {
				continue
			}
			if win.LastFrame != f.Rect {
				r.emitMove(f.ID, f.Rect)
				corrected++
			}
		}
	}

	if len(ghosts) > 0 || adopted > 0 || corrected > 0 {
		r.logger.Info("reconciled",
			"reason", reason, "ghosts", len(ghosts), "adopted", adopted, "corrected", corrected)
	}
}

// reconcileWindow repairs a single window after a rejected effect: gone means
// removal, present means re-deriving its frame from the provider's truth.
func (r *Reactor) reconcileWindow(id platform.WindowID) {
	win, ok := r.model.Windows[id]
	if !ok || win.Phase == model.PhaseRemoved {
		return
	}

	list, err := r.provider.ListWindows()
	if err != nil {
		r.logger.Error("single-window reconcile failed", "window", id, "error", err)
		return
	}
	var found *platform.WindowInfo
	for i := range list {
		if list[i].ID == id {
			found = &list[i]
			break
		}
	}
	if found == nil {
		r.handleWindowDestroyed(id)
		return
	}

	if st := r.tx[id]; st != nil {
		st.pending = false
	}
	win.LastFrame = found.Frame
	if win.Hidden || win.Floating {
		return
	}
	ws := r.model.WorkspaceOf(id)
	if ws == nil || r.displayShowing(ws.ID) < 0 {
		return
	}
	if f, ok := ws.Tree.FrameOf(id, r.boundsFor(ws), r.cfg.Gaps); ok && win.LastFrame != f {
		r.emitMove(id, f)
	}
}
