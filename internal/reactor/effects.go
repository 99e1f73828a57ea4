package reactor

import (
	"context"

	"github.com/quiltwm/quilt/internal/model"
	"github.com/quiltwm/quilt/internal/platform"
)

// Effect is a geometry/focus operation the reactor asks the provider to
// perform. Effects are idempotent and safe to reissue; each completion
// re-enters the inbox as an effectDone message.
type Effect interface {
	apply(p platform.Provider) error
	window() platform.WindowID
}

// MoveResizeEffect moves a window to a target frame. Tx identifies the
// request so the matching frame-changed notification can be recognized as
// our own doing rather than a user drag.
type MoveResizeEffect struct {
	ID    platform.WindowID
	Frame platform.Rect
	Tx    uint32
}

func (e MoveResizeEffect) apply(p platform.Provider) error { return p.MoveResize(e.ID, e.Frame) }
func (e MoveResizeEffect) window() platform.WindowID       { return e.ID }

// FocusEffect gives a window input focus.
type FocusEffect struct {
	ID platform.WindowID
}

func (e FocusEffect) apply(p platform.Provider) error { return p.Focus(e.ID) }
func (e FocusEffect) window() platform.WindowID       { return e.ID }

// RaiseEffect brings a window to the front of the stacking order.
type RaiseEffect struct {
	ID platform.WindowID
}

func (e RaiseEffect) apply(p platform.Provider) error { return p.Raise(e.ID) }
func (e RaiseEffect) window() platform.WindowID       { return e.ID }

// runEffects executes effects in issue order without ever blocking the
// reactor loop on the provider.
func (r *Reactor) runEffects(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopped:
			return
		case eff := <-r.effects:
			err := eff.apply(r.provider)
			r.post(effectDone{effect: eff, err: err})
		}
	}
}

// emitMove issues a move/resize effect and records the transaction so the
// eventual frame-changed notification is recognized as ours.
func (r *Reactor) emitMove(id platform.WindowID, frame platform.Rect) {
	st := r.tx[id]
	if st == nil {
		st = &txState{}
		r.tx[id] = st
	}
	st.tx++
	st.target = frame
	st.pending = true

	r.send(MoveResizeEffect{ID: id, Frame: frame, Tx: st.tx})
}

func (r *Reactor) emitFocus(id platform.WindowID) {
	r.send(FocusEffect{ID: id})
}

func (r *Reactor) emitRaise(id platform.WindowID) {
	r.send(RaiseEffect{ID: id})
}

func (r *Reactor) send(eff Effect) {
	r.inFlight++
	select {
	case r.effects <- eff:
	case <-r.stopped:
	}
}

// handleEffectDone processes an effect completion. A rejected effect
// triggers reconciliation of that single window rather than a blind retry.
func (r *Reactor) handleEffectDone(done effectDone) {
	id := done.effect.window()
	r.inFlight--

	if done.err != nil {
		r.logger.Warn("effect rejected, reconciling window",
			"window", id, "effect", effectName(done.effect), "error", done.err)
		if r.saveExit == nil {
			r.reconcileWindow(id)
		}
	} else if move, ok := done.effect.(MoveResizeEffect); ok {
		if win := r.model.Windows[id]; win != nil {
			win.LastFrame = move.Frame
		}
		if st := r.tx[id]; st != nil && st.tx == move.Tx {
			st.pending = false
		}
	}

	if r.saveExit != nil && r.inFlight <= 0 {
		r.finishSaveExit(nil)
	}
}

func effectName(e Effect) string {
	switch e.(type) {
	case MoveResizeEffect:
		return "move-resize"
	case FocusEffect:
		return "focus"
	case RaiseEffect:
		return "raise"
	default:
		return "unknown"
	}
}

// applyLayout recomputes a workspace's frames and emits move effects for
// every window whose frame changed, not just the newest one: insertion and
// removal typically reflow siblings too.
func (r *Reactor) applyLayout(ws *model.Workspace) {
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
