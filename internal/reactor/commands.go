package reactor

import (
	"fmt"
	"time"

	"github.com/quiltwm/quilt/internal/config"
	"github.com/quiltwm/quilt/internal/layout"
	"github.com/quiltwm/quilt/internal/model"
	"github.com/quiltwm/quilt/internal/platform"
	"github.com/quiltwm/quilt/internal/snapshot"
)

// command is an inbox message submitted from outside the reactor goroutine.
// Each carries its own reply channel; execute runs on the reactor goroutine
// with exclusive model access.
type command interface {
	execute(r *Reactor)
}

// Direction names a spatial direction for focus, swap, and resize commands.
type Direction uint8

const (
	Left Direction = iota
	Right
	Up
	Down
)

// ParseDirection maps the wire spelling to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	default:
		return 0, fmt.Errorf("reactor: unknown direction %q", s)
	}
}

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	case Up:
		return "up"
	default:
		return "down"
	}
}

// WindowSummary is the externally visible view of one window.
type WindowSummary struct {
	ID       platform.WindowID `json:"id"`
	App      string            `json:"app"`
	Title    string            `json:"title,omitempty"`
	Frame    platform.Rect     `json:"frame"`
	Floating bool              `json:"floating,omitempty"`
	Hidden   bool              `json:"hidden,omitempty"`
	Focused  bool              `json:"focused,omitempty"`
}

// WorkspaceSummary is the externally visible view of one workspace.
type WorkspaceSummary struct {
	ID      string            `json:"id"`
	Mode    string            `json:"mode"`
	Display int               `json:"display"`
	Visible bool              `json:"visible"`
	Focused platform.WindowID `json:"focused,omitempty"`
	Windows []WindowSummary   `json:"windows"`
}

// StateSummary is the full QUERY_STATE reply.
type StateSummary struct {
	Workspaces []WorkspaceSummary `json:"workspaces"`
	Displays   []DisplaySummary   `json:"displays"`
	UptimeSecs int64              `json:"uptime_secs"`
}

// DisplaySummary describes one display and the workspace it shows.
type DisplaySummary struct {
	ID        int           `json:"id"`
	Name      string        `json:"name,omitempty"`
	Usable    platform.Rect `json:"usable"`
	Workspace string        `json:"workspace,omitempty"`
}

// submit posts a command unless the reactor has stopped.
func (r *Reactor) submit(cmd command) error {
	select {
	case r.inbox <- cmd:
		return nil
	case <-r.stopped:
		return ErrStopped
	}
}

// errReply is the common reply shape for commands without a payload.
type errReply chan error

func (r *Reactor) await(reply errReply) error {
	select {
	case err := <-reply:
		return err
	case <-r.stopped:
		return ErrStopped
	}
}

// QueryState returns a consistent snapshot of workspaces, windows, and
// displays.
func (r *Reactor) QueryState() (*StateSummary, error) {
	reply := make(chan *StateSummary, 1)
	if err := r.submit(queryStateCmd{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-r.stopped:
		return nil, ErrStopped
	}
}

type queryStateCmd struct {
	reply chan *StateSummary
}

func (c queryStateCmd) execute(r *Reactor) {
	c.reply <- r.summarize()
}

func (r *Reactor) summarize() *StateSummary {
	s := &StateSummary{UptimeSecs: int64(time.Since(r.startTime).Seconds())}
	for _, d := range r.displays {
		ds := DisplaySummary{ID: d.ID, Name: d.Name, Usable: d.Usable}
		if wsID, ok := r.model.Active[d.ID]; ok {
			ds.Workspace = string(wsID)
		}
		s.Displays = append(s.Displays, ds)
	}
	for _, wsID := range r.model.Order {
		s.Workspaces = append(s.Workspaces, *r.summarizeWorkspace(r.model.Workspaces[wsID]))
	}
	return s
}

func (r *Reactor) summarizeWorkspace(ws *model.Workspace) *WorkspaceSummary {
	sum := &WorkspaceSummary{
		ID:      string(ws.ID),
		Mode:    ws.Mode.String(),
		Display: r.displayShowing(ws.ID),
		Visible: r.displayShowing(ws.ID) >= 0,
		Focused: ws.Focused,
	}
	add := func(id platform.WindowID) {
		win := r.model.Windows[id]
		if win == nil {
			return
		}
		sum.Windows = append(sum.Windows, WindowSummary{
			ID:       win.ID,
			App:      win.AppID,
			Title:    win.Title,
			Frame:    win.LastFrame,
			Floating: win.Floating,
			Hidden:   win.Hidden,
			Focused:  ws.Focused == win.ID,
		})
	}
	for _, id := range ws.Tiled {
		add(id)
	}
	for id := range ws.Floating {
		add(id)
	}
	return sum
}

// FocusWindow focuses a specific window, switching to its workspace when it
// is hidden.
func (r *Reactor) FocusWindow(id platform.WindowID) error {
	reply := make(errReply, 1)
	if err := r.submit(focusWindowCmd{id: id, reply: reply}); err != nil {
		return err
	}
	return r.await(reply)
}

type focusWindowCmd struct {
	id    platform.WindowID
	reply errReply
}

func (c focusWindowCmd) execute(r *Reactor) {
	win, ok := r.model.Windows[c.id]
	if !ok || win.Phase == model.PhaseRemoved {
		c.reply <- fmt.Errorf("reactor: window %d not tracked", c.id)
		return
	}
	ws := r.model.WorkspaceOf(c.id)
	if ws == nil {
		c.reply <- fmt.Errorf("reactor: window %d has no workspace", c.id)
		return
	}
	if r.displayShowing(ws.ID) < 0 {
		if err := r.switchWorkspace(r.anyDisplay(), ws.ID); err != nil {
			c.reply <- err
			return
		}
	}
	ws.Focused = c.id
	r.emitRaise(c.id)
	r.emitFocus(c.id)
	c.reply <- nil
}

// FocusDirection moves focus to the nearest tiled window in a direction on
// the focused workspace.
func (r *Reactor) FocusDirection(dir Direction) error {
	reply := make(errReply, 1)
	if err := r.submit(focusDirectionCmd{dir: dir, reply: reply}); err != nil {
		return err
	}
	return r.await(reply)
}

type focusDirectionCmd struct {
	dir   Direction
	reply errReply
}

func (c focusDirectionCmd) execute(r *Reactor) {
	ws := r.focusedWorkspace()
	if ws == nil || ws.Focused == 0 {
		c.reply <- fmt.Errorf("reactor: no focused window")
		return
	}
	target := r.neighbor(ws, ws.Focused, c.dir)
	if target == 0 {
		c.reply <- fmt.Errorf("reactor: no window %s of the focused one", c.dir)
		return
	}
	ws.Focused = target
	r.emitFocus(target)
	r.broadcastWorkspace(ws)
	c.reply <- nil
}

// SwapDirection exchanges the focused window with its neighbor in a
// direction. Only tree positions move; focus stays on the same window.
func (r *Reactor) SwapDirection(dir Direction) error {
	reply := make(errReply, 1)
	if err := r.submit(swapDirectionCmd{dir: dir, reply: reply}); err != nil {
		return err
	}
	return r.await(reply)
}

type swapDirectionCmd struct {
	dir   Direction
	reply errReply
}

func (c swapDirectionCmd) execute(r *Reactor) {
	ws := r.focusedWorkspace()
	if ws == nil || ws.Focused == 0 {
		c.reply <- fmt.Errorf("reactor: no focused window")
		return
	}
	target := r.neighbor(ws, ws.Focused, c.dir)
	if target == 0 {
		c.reply <- fmt.Errorf("reactor: no window %s of the focused one", c.dir)
		return
	}
	if err := ws.Tree.Swap(ws.Focused, target); err != nil {
		c.reply <- err
		return
	}
	r.applyLayout(ws)
	r.broadcastWindows(ws)
	c.reply <- nil
}

// ResizeFocused grows or shrinks the focused window's share along the axis a
// direction implies. Amount is a fraction of the enclosing container.
func (r *Reactor) ResizeFocused(dir Direction, amount float64) error {
	reply := make(errReply, 1)
	if err := r.submit(resizeCmd{dir: dir, amount: amount, reply: reply}); err != nil {
		return err
	}
	return r.await(reply)
}

type resizeCmd struct {
	dir    Direction
	amount float64
	reply  errReply
}

func (c resizeCmd) execute(r *Reactor) {
	ws := r.focusedWorkspace()
	if ws == nil || ws.Focused == 0 {
		c.reply <- fmt.Errorf("reactor: no focused window")
		return
	}
	axis := layout.Horizontal
	delta := c.amount
	switch c.dir {
	case Left:
		delta = -c.amount
	case Up:
		axis = layout.Vertical
		delta = -c.amount
	case Down:
		axis = layout.Vertical
	}
	if err := ws.Tree.Resize(ws.Focused, delta, axis); err != nil {
		c.reply <- err
		return
	}
	r.applyLayout(ws)
	r.broadcastWindows(ws)
	c.reply <- nil
}

// MoveToWorkspace transfers a window (0 means the focused one) to a named
// workspace.
func (r *Reactor) MoveToWorkspace(id platform.WindowID, workspace string) error {
	reply := make(errReply, 1)
	if err := r.submit(moveToWorkspaceCmd{id: id, workspace: workspace, reply: reply}); err != nil {
		return err
	}
	return r.await(reply)
}

type moveToWorkspaceCmd struct {
	id        platform.WindowID
	workspace string
	reply     errReply
}

func (c moveToWorkspaceCmd) execute(r *Reactor) {
	id := c.id
	if id == 0 {
		if ws := r.focusedWorkspace(); ws != nil {
			id = ws.Focused
		}
	}
	if id == 0 {
		c.reply <- fmt.Errorf("reactor: no focused window")
		return
	}
	c.reply <- r.moveToWorkspace(id, model.WorkspaceID(c.workspace))
}

// SwitchWorkspace makes a named workspace visible on a display. Display -1
// means the display of the currently focused workspace.
func (r *Reactor) SwitchWorkspace(display int, workspace string) error {
	reply := make(errReply, 1)
	if err := r.submit(switchWorkspaceCmd{display: display, workspace: workspace, reply: reply}); err != nil {
		return err
	}
	return r.await(reply)
}

type switchWorkspaceCmd struct {
	display   int
	workspace string
	reply     errReply
}

func (c switchWorkspaceCmd) execute(r *Reactor) {
	display := c.display
	if display < 0 {
		display = r.anyDisplay()
	}
	c.reply <- r.switchWorkspace(display, model.WorkspaceID(c.workspace))
}

// ToggleFloat flips a window (0 means the focused one) between tiled and
// floating.
func (r *Reactor) ToggleFloat(id platform.WindowID) error {
	reply := make(errReply, 1)
	if err := r.submit(toggleFloatCmd{id: id, reply: reply}); err != nil {
		return err
	}
	return r.await(reply)
}

type toggleFloatCmd struct {
	id    platform.WindowID
	reply errReply
}

func (c toggleFloatCmd) execute(r *Reactor) {
	id := c.id
	if id == 0 {
		if ws := r.focusedWorkspace(); ws != nil {
			id = ws.Focused
		}
	}
	win, ok := r.model.Windows[id]
	if !ok || win.Phase == model.PhaseRemoved {
		c.reply <- fmt.Errorf("reactor: window %d not tracked", id)
		return
	}
	ws := r.model.WorkspaceOf(id)
	if ws == nil {
		c.reply <- fmt.Errorf("reactor: window %d has no workspace", id)
		return
	}

	if win.Floating {
		delete(ws.Floating, id)
		anchor := ws.Focused
		if anchor == id || !ws.Tree.Contains(anchor) {
			anchor = 0
		}
		if err := ws.AttachTiled(id, anchor, r.boundsFor(ws)); err != nil {
			ws.Floating[id] = struct{}{}
			c.reply <- err
			return
		}
		win.Floating = false
	} else {
		if err := ws.DetachTiled(id); err != nil {
			c.reply <- err
			return
		}
		ws.AttachFloating(id)
		win.Floating = true
		r.emitRaise(id)
	}
	r.applyLayout(ws)
	r.broadcastWindows(ws)
	c.reply <- nil
}

// SetLayoutMode changes a workspace's layout mode and rebuilds its tree so
// the arrangement reflects the new mode immediately.
func (r *Reactor) SetLayoutMode(workspace string, mode layout.Mode) error {
	reply := make(errReply, 1)
	if err := r.submit(setLayoutCmd{workspace: workspace, mode: mode, reply: reply}); err != nil {
		return err
	}
	return r.await(reply)
}

type setLayoutCmd struct {
	workspace string
	mode      layout.Mode
	reply     errReply
}

func (c setLayoutCmd) execute(r *Reactor) {
	var ws *model.Workspace
	if c.workspace == "" {
		ws = r.focusedWorkspace()
	} else {
		ws = r.model.Workspaces[model.WorkspaceID(c.workspace)]
	}
	if ws == nil {
		c.reply <- fmt.Errorf("reactor: unknown workspace %q", c.workspace)
		return
	}
	ws.Mode = c.mode

	bounds := r.boundsFor(ws)
	rebuilt := layout.New()
	for _, id := range ws.Tiled {
		if err := rebuilt.Insert(id, 0, c.mode, bounds); err != nil {
			c.reply <- fmt.Errorf("reactor: rebuild failed at window %d: %w", id, err)
			return
		}
	}
	ws.Tree = rebuilt
	r.applyLayout(ws)
	r.broadcastWindows(ws)
	c.reply <- nil
}

// UpdateConfig swaps in a validated configuration. Gap and mode changes take
// effect on the next layout pass; workspaces are only ever added, never
// removed while windows may reference them.
func (r *Reactor) UpdateConfig(cfg *config.Config) error {
	reply := make(errReply, 1)
	if err := r.submit(updateConfigCmd{cfg: cfg, reply: reply}); err != nil {
		return err
	}
	return r.await(reply)
}

type updateConfigCmd struct {
	cfg   *config.Config
	reply errReply
}

func (c updateConfigCmd) execute(r *Reactor) {
	r.cfg = c.cfg
	for _, wsc := range c.cfg.Workspaces {
		r.model.EnsureWorkspace(model.WorkspaceID(wsc.Name), c.cfg.ModeFor(wsc.Name))
	}
	for _, d := range r.displays {
		if ws := r.model.ActiveWorkspace(d.ID); ws != nil {
			r.applyLayout(ws)
		}
	}
	r.logger.Info("configuration reloaded")
	r.emitBroadcast(Broadcast{Kind: BroadcastConfigReloaded})
	c.reply <- nil
}

// SaveAndExit restores every window to its logical frame, waits for the
// provider to acknowledge (bounded by a timeout), writes the snapshot, and
// stops the reactor.
func (r *Reactor) SaveAndExit() error {
	reply := make(errReply, 1)
	if err := r.submit(saveExitCmd{reply: reply}); err != nil {
		return err
	}
	// The reply arrives just before the reactor stops; do not race it against
	// the stopped channel.
	return <-reply
}

type saveExitCmd struct {
	reply errReply
}

func (c saveExitCmd) execute(r *Reactor) {
	if r.saveExit != nil {
		c.reply <- fmt.Errorf("reactor: shutdown already in progress")
		return
	}
	r.saveExit = &saveExitState{reply: c.reply}

	// Bring hidden windows back to their logical frames so the snapshot and
	// the on-screen state both describe the arrangement the user had.
	for _, wsID := range r.model.Order {
		ws := r.model.Workspaces[wsID]
		bounds := r.boundsFor(ws)
		for _, f := range ws.Tree.ComputeFrames(bounds, r.cfg.Gaps) {
			win := r.model.Windows[f.ID]
			if win == nil {
				continue
			}
			win.Hidden = false
			if win.LastFrame != f.Rect {
				r.emitMove(f.ID, f.Rect)
				win.LastFrame = f.Rect
			}
		}
		for id := range ws.Floating {
			win := r.model.Windows[id]
			if win == nil {
				continue
			}
			if win.Hidden {
				win.Hidden = false
				restored := win.LastFrame
				if restored.X >= offscreenShift {
					restored.X -= offscreenShift
				}
				r.emitMove(id, restored)
				win.LastFrame = restored
			}
		}
	}

	if r.inFlight == 0 {
		r.finishSaveExit(nil)
		return
	}
	r.saveExit.timer = time.AfterFunc(saveExitTimeoutDur, func() {
		r.post(saveExitTimeout{})
	})
	r.logger.Info("shutdown started", "pending_effects", r.inFlight)
}

// finishSaveExit writes the snapshot and stops the reactor. Runs on the
// reactor goroutine.
func (r *Reactor) finishSaveExit(cause error) {
	st := r.saveExit
	if st == nil {
		return
	}
	r.saveExit = nil
	if st.timer != nil {
		st.timer.Stop()
	}
	if cause != nil {
		r.logger.Warn("shutdown proceeding without full acknowledgement", "error", cause)
	}

	var err error
	if r.snapshotPath != "" {
		if err = snapshot.Save(r.snapshotPath, r.model); err != nil {
			r.logger.Error("failed to write snapshot", "path", r.snapshotPath, "error", err)
		} else {
			r.logger.Info("snapshot written", "path", r.snapshotPath)
		}
	}
	st.reply <- err
	close(r.stopped)
}

// focusedWorkspace returns the visible workspace holding focus, preferring
// displays in id order.
func (r *Reactor) focusedWorkspace() *model.Workspace {
	var fallback *model.Workspace
	for _, d := range r.displays {
		ws := r.model.ActiveWorkspace(d.ID)
		if ws == nil {
			continue
		}
		if fallback == nil {
			fallback = ws
		}
		if ws.Focused != 0 {
			return ws
		}
	}
	return fallback
}

func (r *Reactor) anyDisplay() int {
	if len(r.displays) > 0 {
		return r.displays[0].ID
	}
	return 0
}

// neighbor finds the nearest tiled window in a direction, comparing computed
// frame centers.
func (r *Reactor) neighbor(ws *model.Workspace, from platform.WindowID, dir Direction) platform.WindowID {
	bounds := r.boundsFor(ws)
	frames := ws.Tree.ComputeFrames(bounds, r.cfg.Gaps)

	var origin platform.Rect
	found := false
	for _, f := range frames {
		if f.ID == from {
			origin = f.Rect
			found = true
			break
		}
	}
	if !found {
		return 0
	}
	ox, oy := origin.Center()

	var best platform.WindowID
	bestDist := 0.0
	for _, f := range frames {
		if f.ID == from {
			continue
		}
		cx, cy := f.Rect.Center()
		ahead := false
		switch dir {
		case Left:
			ahead = cx < ox
		case Right:
			ahead = cx > ox
		case Up:
			ahead = cy < oy
		case Down:
			ahead = cy > oy
		}
		if !ahead {
			continue
		}
		d := (cx-ox)*(cx-ox) + (cy-oy)*(cy-oy)
		if best == 0 || d < bestDist {
			best = f.ID
			bestDist = d
		}
	}
	return best
}

// broadcastWorkspace publishes a workspace-level change to subscribers.
func (r *Reactor) broadcastWorkspace(ws *model.Workspace) {
	r.emitBroadcast(Broadcast{
		Kind:      BroadcastWorkspaceChanged,
		Workspace: string(ws.ID),
		State:     r.summarizeWorkspace(ws),
	})
}

// broadcastWindows publishes a membership/geometry change to subscribers.
func (r *Reactor) broadcastWindows(ws *model.Workspace) {
	sum := r.summarizeWorkspace(ws)
	r.emitBroadcast(Broadcast{
		Kind:      BroadcastWindowListChanged,
		Workspace: string(ws.ID),
		Windows:   sum.Windows,
	})
}
