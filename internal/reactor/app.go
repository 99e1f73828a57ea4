package reactor

import (
	"github.com/quiltwm/quilt/internal/platform"
)

func (r *Reactor) handleAppLaunched(ev platform.AppLaunched) {
	r.model.EnsureApp(ev.PID, ev.AppID)
	r.logger.Info("app launched", "pid", ev.PID, "app", ev.AppID, "windows", len(ev.Windows))
	for _, info := range ev.Windows {
		r.handleWindowCreated(info)
	}
}

// handleAppTerminated removes every window the app still owns. Individual
// destroy notifications may or may not have arrived first; removal is
// idempotent either way.
func (r *Reactor) handleAppTerminated(pid int) {
	app, ok := r.model.Apps[pid]
	if !ok {
		return
	}
	ids := make([]platform.WindowID, 0, len(app.Windows))
	for id := range app.Windows {
		ids = append(ids, id)
	}
	for _, id := range ids {
		r.handleWindowDestroyed(id)
	}
	delete(r.model.Apps, pid)
	r.logger.Info("app terminated", "pid", pid, "app", app.AppID, "windows", len(ids))
}

func (r *Reactor) handleAppActivated(pid int) {
	if _, ok := r.model.Apps[pid]; !ok {
		return
	}
	r.setFrontmost(pid)
}

func (r *Reactor) setFrontmost(pid int) {
	for p, app := range r.model.Apps {
		app.Frontmost = p == pid
	}
}
