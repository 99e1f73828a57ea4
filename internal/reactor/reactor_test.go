package reactor

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/quiltwm/quilt/internal/config"
	"github.com/quiltwm/quilt/internal/platform"
	"github.com/quiltwm/quilt/internal/snapshot"
)

type fakeProvider struct {
	mu       sync.Mutex
	displays []platform.Display
	windows  []platform.WindowInfo
	active   platform.WindowID
	events   chan platform.Event
	closed   sync.Once
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		displays: []platform.Display{{
			ID:     0,
			Name:   "fake-0",
			Bounds: platform.Rect{Width: 1920, Height: 1080},
			Usable: platform.Rect{Width: 1920, Height: 1080},
		}},
		events: make(chan platform.Event, 64),
	}
}

func (f *fakeProvider) Displays() ([]platform.Display, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Display(nil), f.displays...), nil
}

func (f *fakeProvider) ActiveWindow() (platform.WindowID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, nil
}

func (f *fakeProvider) ListWindows() ([]platform.WindowInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.WindowInfo(nil), f.windows...), nil
}

func (f *fakeProvider) MoveResize(id platform.WindowID, frame platform.Rect) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.windows {
		if f.windows[i].ID == id {
			f.windows[i].Frame = frame
		}
	}
	return nil
}

func (f *fakeProvider) Focus(id platform.WindowID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = id
	return nil
}

func (f *fakeProvider) Raise(platform.WindowID) error { return nil }

func (f *fakeProvider) Events() <-chan platform.Event { return f.events }

func (f *fakeProvider) Close() {
	f.closed.Do(func() { close(f.events) })
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestReactor(t *testing.T) (*Reactor, *fakeProvider) {
	t.Helper()
	fake := newFakeProvider()
	r := New(fake, config.Default(), "", testLogger())
	if err := r.Bootstrap(nil); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return r, fake
}

func winInfo(id platform.WindowID, frame platform.Rect) platform.WindowInfo {
	return platform.WindowInfo{
		ID:    id,
		PID:   1000 + int(id),
		AppID: "app",
		Frame: frame,
		Kind:  platform.KindNormal,
	}
}

// drainEffects empties the effect queue without executing anything.
func drainEffects(r *Reactor) []Effect {
	var out []Effect
	for {
		select {
		case e := <-r.effects:
			out = append(out, e)
		default:
			return out
		}
	}
}

func movesOf(effects []Effect) map[platform.WindowID]platform.Rect {
	moves := make(map[platform.WindowID]platform.Rect)
	for _, e := range effects {
		if m, ok := e.(MoveResizeEffect); ok {
			moves[m.ID] = m.Frame
		}
	}
	return moves
}

// ackPending feeds the frame notification our own pending moves would have
// produced, as the window system would.
func ackPending(r *Reactor) {
	drainEffects(r)
	for id, st := range r.tx {
		if st.pending {
			r.dispatch(platform.WindowFrameChanged{ID: id, Frame: st.target})
		}
	}
}

func TestWindowCreated_FirstFillsBounds(t *testing.T) {
	r, _ := newTestReactor(t)
	r.dispatch(platform.WindowCreated{Window: winInfo(1, platform.Rect{X: 10, Y: 10, Width: 500, Height: 400})})

	moves := movesOf(drainEffects(r))
	if len(moves) != 1 {
		t.Fatalf("expected one move, got %d", len(moves))
	}
	want := platform.Rect{Width: 1920, Height: 1080}
	if moves[1] != want {
		t.Fatalf("frame: got %+v, want %+v", moves[1], want)
	}
}

func TestWindowCreated_SecondSplitsEvenly(t *testing.T) {
	r, _ := newTestReactor(t)
	r.dispatch(platform.WindowCreated{Window: winInfo(1, platform.Rect{Width: 500, Height: 400})})
	ackPending(r)

	r.dispatch(platform.WindowCreated{Window: winInfo(2, platform.Rect{Width: 500, Height: 400})})
	moves := movesOf(drainEffects(r))
	if len(moves) != 2 {
		t.Fatalf("insert should reflow both windows, got %d moves", len(moves))
	}
	if moves[1] != (platform.Rect{Width: 960, Height: 1080}) {
		t.Fatalf("first window frame: %+v", moves[1])
	}
	if moves[2] != (platform.Rect{X: 960, Width: 960, Height: 1080}) {
		t.Fatalf("second window frame: %+v", moves[2])
	}
}

func TestWindowCreated_IgnoresUnmanageable(t *testing.T) {
	r, _ := newTestReactor(t)
	dock := winInfo(5, platform.Rect{Width: 1920, Height: 30})
	dock.Kind = platform.KindDock
	r.dispatch(platform.WindowCreated{Window: dock})
	r.dispatch(platform.WindowCreated{Window: winInfo(6, platform.Rect{})})

	if len(r.model.Windows) != 0 {
		t.Fatalf("unmanageable windows must not be tracked: %d tracked", len(r.model.Windows))
	}
	if effects := drainEffects(r); len(effects) != 0 {
		t.Fatalf("unexpected effects: %d", len(effects))
	}
}

func TestWindowDestroyed_SurvivorReclaimsBounds(t *testing.T) {
	r, _ := newTestReactor(t)
	r.dispatch(platform.WindowCreated{Window: winInfo(1, platform.Rect{Width: 500, Height: 400})})
	r.dispatch(platform.WindowCreated{Window: winInfo(2, platform.Rect{Width: 500, Height: 400})})
	ackPending(r)

	r.dispatch(platform.WindowDestroyed{ID: 1})
	moves := movesOf(drainEffects(r))
	if moves[2] != (platform.Rect{Width: 1920, Height: 1080}) {
		t.Fatalf("survivor frame: %+v", moves[2])
	}
	if _, ok := r.model.Windows[1]; ok {
		t.Fatal("destroyed window still tracked")
	}
}

func TestWindowDestroyed_DuplicateIsNoOp(t *testing.T) {
	r, _ := newTestReactor(t)
	r.dispatch(platform.WindowCreated{Window: winInfo(1, platform.Rect{Width: 500, Height: 400})})
	r.dispatch(platform.WindowCreated{Window: winInfo(2, platform.Rect{Width: 500, Height: 400})})
	ackPending(r)

	r.dispatch(platform.WindowDestroyed{ID: 1})
	drainEffects(r)
	before := r.model.Workspaces["1"].Tree.Len()

	r.dispatch(platform.WindowDestroyed{ID: 1})
	if effects := drainEffects(r); len(effects) != 0 {
		t.Fatalf("duplicate destroy produced %d effects", len(effects))
	}
	if got := r.model.Workspaces["1"].Tree.Len(); got != before {
		t.Fatalf("duplicate destroy changed the tree: %d leaves", got)
	}
}

func TestFocusReplacement_NearestCenter(t *testing.T) {
	r, _ := newTestReactor(t)
	for id := platform.WindowID(1); id <= 3; id++ {
		r.dispatch(platform.WindowCreated{Window: winInfo(id, platform.Rect{Width: 500, Height: 400})})
	}
	ackPending(r)
	r.dispatch(platform.WindowFocused{ID: 2})
	drainEffects(r)

	// Layout is 1 beside the 2/3 stack, so 3 is nearest to 2 by center
	// distance.
	r.dispatch(platform.WindowDestroyed{ID: 2})
	ws := r.model.Workspaces["1"]
	if ws.Focused != 3 {
		t.Fatalf("focus went to %d, want 3", ws.Focused)
	}
	focused := false
	for _, e := range drainEffects(r) {
		if f, ok := e.(FocusEffect); ok && f.ID == 3 {
			focused = true
		}
	}
	if !focused {
		t.Fatal("no focus effect for the replacement window")
	}
}

func TestFrameChanged_AckDoesNotCascade(t *testing.T) {
	r, _ := newTestReactor(t)
	r.dispatch(platform.WindowCreated{Window: winInfo(1, platform.Rect{Width: 500, Height: 400})})
	drainEffects(r)

	st := r.tx[1]
	if st == nil || !st.pending {
		t.Fatal("expected a pending transaction after layout")
	}
	r.dispatch(platform.WindowFrameChanged{ID: 1, Frame: st.target})
	if st.pending {
		t.Fatal("acknowledgement did not clear the transaction")
	}
	if effects := drainEffects(r); len(effects) != 0 {
		t.Fatalf("acknowledgement produced %d effects", len(effects))
	}
}

func TestFrameChanged_DragOntoNeighborSwaps(t *testing.T) {
	r, _ := newTestReactor(t)
	r.dispatch(platform.WindowCreated{Window: winInfo(1, platform.Rect{Width: 500, Height: 400})})
	r.dispatch(platform.WindowCreated{Window: winInfo(2, platform.Rect{Width: 500, Height: 400})})
	ackPending(r)

	// Drop 1 onto 2's half of the screen.
	r.dispatch(platform.WindowFrameChanged{ID: 1, Frame: platform.Rect{X: 1000, Y: 100, Width: 900, Height: 900}})

	ws := r.model.Workspaces["1"]
	bounds := platform.Rect{Width: 1920, Height: 1080}
	f1, _ := ws.Tree.FrameOf(1, bounds, r.cfg.Gaps)
	f2, _ := ws.Tree.FrameOf(2, bounds, r.cfg.Gaps)
	if f1 != (platform.Rect{X: 960, Width: 960, Height: 1080}) {
		t.Fatalf("dragged window frame after swap: %+v", f1)
	}
	if f2 != (platform.Rect{Width: 960, Height: 1080}) {
		t.Fatalf("neighbor frame after swap: %+v", f2)
	}
}

func TestFrameChanged_SmallDragSnapsBack(t *testing.T) {
	r, _ := newTestReactor(t)
	r.dispatch(platform.WindowCreated{Window: winInfo(1, platform.Rect{Width: 500, Height: 400})})
	r.dispatch(platform.WindowCreated{Window: winInfo(2, platform.Rect{Width: 500, Height: 400})})
	ackPending(r)

	r.dispatch(platform.WindowFrameChanged{ID: 1, Frame: platform.Rect{X: 30, Y: 40, Width: 960, Height: 1080}})
	moves := movesOf(drainEffects(r))
	if len(moves) != 1 {
		t.Fatalf("expected one snap-back move, got %d", len(moves))
	}
	if moves[1] != (platform.Rect{Width: 960, Height: 1080}) {
		t.Fatalf("snap-back frame: %+v", moves[1])
	}
}

func TestWakeReconcile_OneCorrectiveEffectPerDriftedWindow(t *testing.T) {
	r, fake := newTestReactor(t)
	for id := platform.WindowID(1); id <= 3; id++ {
		r.dispatch(platform.WindowCreated{Window: winInfo(id, platform.Rect{Width: 500, Height: 400})})
	}
	ackPending(r)

	ws := r.model.Workspaces["1"]
	bounds := platform.Rect{Width: 1920, Height: 1080}
	fake.mu.Lock()
	fake.windows = nil
	for _, f := range ws.Tree.ComputeFrames(bounds, r.cfg.Gaps) {
		info := winInfo(f.ID, f.Rect)
		if f.ID == 3 {
			info.Frame.X += 77
		}
		fake.windows = append(fake.windows, info)
	}
	fake.mu.Unlock()

	r.dispatch(platform.SleepDetected{})
	if !r.asleep {
		t.Fatal("sleep not registered")
	}
	r.dispatch(platform.WakeDetected{})

	moves := movesOf(drainEffects(r))
	if len(moves) != 1 {
		t.Fatalf("expected exactly one corrective move, got %d", len(moves))
	}
	want, _ := ws.Tree.FrameOf(3, bounds, r.cfg.Gaps)
	if moves[3] != want {
		t.Fatalf("corrective frame: got %+v, want %+v", moves[3], want)
	}
}

func TestReconcile_RemovesGhostsAndAdopts(t *testing.T) {
	r, fake := newTestReactor(t)
	r.dispatch(platform.WindowCreated{Window: winInfo(1, platform.Rect{Width: 500, Height: 400})})
	ackPending(r)

	// Window 1 vanished without a notification; window 9 appeared the same way.
	fake.mu.Lock()
	fake.windows = []platform.WindowInfo{winInfo(9, platform.Rect{X: 5, Y: 5, Width: 300, Height: 300})}
	fake.mu.Unlock()

	r.dispatch(reconcileTick{})
	if _, ok := r.model.Windows[1]; ok {
		t.Fatal("ghost window still tracked")
	}
	win := r.model.Windows[9]
	if win == nil {
		t.Fatal("live window not adopted")
	}
	ws := r.model.Workspaces["1"]
	if !ws.Tree.Contains(9) {
		t.Fatal("adopted window not tiled")
	}
}

func TestSwitchWorkspace_HidesAndRestores(t *testing.T) {
	r, _ := newTestReactor(t)
	r.dispatch(platform.WindowCreated{Window: winInfo(1, platform.Rect{Width: 500, Height: 400})})
	ackPending(r)

	if err := r.switchWorkspace(0, "2"); err != nil {
		t.Fatalf("switch: %v", err)
	}
	win := r.model.Windows[1]
	if !win.Hidden {
		t.Fatal("window on hidden workspace not marked hidden")
	}
	moves := movesOf(drainEffects(r))
	if moves[1].X < offscreenShift {
		t.Fatalf("hidden window not shifted offscreen: %+v", moves[1])
	}

	if err := r.switchWorkspace(0, "1"); err != nil {
		t.Fatalf("switch back: %v", err)
	}
	if win.Hidden {
		t.Fatal("window still hidden after switching back")
	}
	moves = movesOf(drainEffects(r))
	if moves[1] != (platform.Rect{Width: 1920, Height: 1080}) {
		t.Fatalf("restored frame: %+v", moves[1])
	}
	if r.model.Active[0] != "1" {
		t.Fatalf("active workspace: %s", r.model.Active[0])
	}
}

func TestSwitchWorkspace_BackfillsDisplayItWasTakenFrom(t *testing.T) {
	fake := newFakeProvider()
	fake.displays = append(fake.displays, platform.Display{
		ID:     1,
		Name:   "fake-1",
		Bounds: platform.Rect{X: 1920, Width: 1920, Height: 1080},
		Usable: platform.Rect{X: 1920, Width: 1920, Height: 1080},
	})
	r := New(fake, config.Default(), "", testLogger())
	if err := r.Bootstrap(nil); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	r.model.Active[0] = "1"
	r.model.Active[1] = "2"

	if err := r.switchWorkspace(0, "2"); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if r.model.Active[0] != "2" {
		t.Fatalf("display 0 shows %s, want 2", r.model.Active[0])
	}
	ws, ok := r.model.Active[1]
	if !ok {
		t.Fatal("display 1 left without a workspace")
	}
	if ws == "2" {
		t.Fatal("workspace 2 visible on two displays at once")
	}
}

func TestSaveAndExit_WaitsForEffectsIssuedBeforeShutdown(t *testing.T) {
	r, _ := newTestReactor(t)
	r.dispatch(platform.WindowCreated{Window: winInfo(1, platform.Rect{X: 100, Y: 100, Width: 500, Height: 400})})
	placed := drainEffects(r)
	if len(placed) != 1 {
		t.Fatalf("expected one placement effect, got %d", len(placed))
	}

	reply := make(errReply, 1)
	r.dispatch(saveExitCmd{reply: reply})
	restore := drainEffects(r)
	if len(restore) != 1 {
		t.Fatalf("expected one restore effect, got %d", len(restore))
	}

	// The placement effect predates shutdown; its completion alone must not
	// satisfy the drain.
	r.dispatch(effectDone{effect: placed[0]})
	select {
	case <-r.Stopped():
		t.Fatal("stopped with the restore effect still outstanding")
	default:
	}

	r.dispatch(effectDone{effect: restore[0]})
	select {
	case <-r.Stopped():
	default:
		t.Fatal("did not stop after every effect completed")
	}
	if err := <-reply; err != nil {
		t.Fatalf("save and exit: %v", err)
	}
}

func TestMoveToWorkspace_FollowsWindow(t *testing.T) {
	r, _ := newTestReactor(t)
	r.dispatch(platform.WindowCreated{Window: winInfo(1, platform.Rect{Width: 500, Height: 400})})
	r.dispatch(platform.WindowCreated{Window: winInfo(2, platform.Rect{Width: 500, Height: 400})})
	ackPending(r)
	r.dispatch(platform.WindowFocused{ID: 1})

	if err := r.moveToWorkspace(1, "2"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if r.model.Active[0] != "2" {
		t.Fatalf("switch_on_move should follow the window, active is %s", r.model.Active[0])
	}
	if !r.model.Workspaces["2"].Tree.Contains(1) {
		t.Fatal("window not attached to destination")
	}
	if r.model.Workspaces["1"].Tree.Contains(1) {
		t.Fatal("window still attached to source")
	}
	if !r.model.Windows[2].Hidden {
		t.Fatal("window left behind should be hidden with its workspace")
	}
}

func TestToggleFloat_RoundTrip(t *testing.T) {
	r, _ := newTestReactor(t)
	r.dispatch(platform.WindowCreated{Window: winInfo(1, platform.Rect{Width: 500, Height: 400})})
	r.dispatch(platform.WindowCreated{Window: winInfo(2, platform.Rect{Width: 500, Height: 400})})
	ackPending(r)

	reply := make(errReply, 1)
	r.dispatch(toggleFloatCmd{id: 1, reply: reply})
	if err := <-reply; err != nil {
		t.Fatalf("toggle: %v", err)
	}
	ws := r.model.Workspaces["1"]
	if ws.Tree.Contains(1) || !r.model.Windows[1].Floating {
		t.Fatal("window did not float")
	}
	moves := movesOf(drainEffects(r))
	if moves[2] != (platform.Rect{Width: 1920, Height: 1080}) {
		t.Fatalf("remaining tiled window frame: %+v", moves[2])
	}

	reply = make(errReply, 1)
	r.dispatch(toggleFloatCmd{id: 1, reply: reply})
	if err := <-reply; err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if !ws.Tree.Contains(1) || r.model.Windows[1].Floating {
		t.Fatal("window did not re-tile")
	}
	if ws.Tree.Len() != 2 {
		t.Fatalf("leaf count: %d", ws.Tree.Len())
	}
}

func TestFocusDirection_PicksNearestAhead(t *testing.T) {
	r, _ := newTestReactor(t)
	for id := platform.WindowID(1); id <= 3; id++ {
		r.dispatch(platform.WindowCreated{Window: winInfo(id, platform.Rect{Width: 500, Height: 400})})
	}
	ackPending(r)
	r.dispatch(platform.WindowFocused{ID: 1})

	reply := make(errReply, 1)
	r.dispatch(focusDirectionCmd{dir: Right, reply: reply})
	if err := <-reply; err != nil {
		t.Fatalf("focus right: %v", err)
	}
	ws := r.model.Workspaces["1"]
	if ws.Focused != 2 && ws.Focused != 3 {
		t.Fatalf("focus moved to %d, want a window in the right stack", ws.Focused)
	}

	reply = make(errReply, 1)
	r.dispatch(focusDirectionCmd{dir: Left, reply: reply})
	if err := <-reply; err != nil {
		t.Fatalf("focus left: %v", err)
	}
	if ws.Focused != 1 {
		t.Fatalf("focus left landed on %d, want 1", ws.Focused)
	}
}

func TestAppTerminated_RemovesAllWindows(t *testing.T) {
	r, _ := newTestReactor(t)
	a := winInfo(1, platform.Rect{Width: 500, Height: 400})
	b := winInfo(2, platform.Rect{Width: 500, Height: 400})
	b.PID = a.PID
	r.dispatch(platform.AppLaunched{PID: a.PID, AppID: "app", Windows: []platform.WindowInfo{a, b}})
	r.dispatch(platform.WindowCreated{Window: winInfo(7, platform.Rect{Width: 500, Height: 400})})
	ackPending(r)

	r.dispatch(platform.AppTerminated{PID: a.PID})
	if len(r.model.Windows) != 1 {
		t.Fatalf("expected only the unrelated window to survive, got %d", len(r.model.Windows))
	}
	if _, ok := r.model.Apps[a.PID]; ok {
		t.Fatal("terminated app still tracked")
	}
	if !r.model.Workspaces["1"].Tree.Contains(7) {
		t.Fatal("unrelated window lost its tile")
	}
}

func TestRunLoop_SaveAndExitWritesSnapshot(t *testing.T) {
	fake := newFakeProvider()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	r := New(fake, config.Default(), path, testLogger())
	if err := r.Bootstrap(nil); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	fake.events <- platform.WindowCreated{Window: winInfo(1, platform.Rect{Width: 500, Height: 400})}

	deadline := time.Now().Add(2 * time.Second)
	for {
		state, err := r.QueryState()
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(state.Workspaces) > 0 && len(state.Workspaces[0].Windows) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("window never appeared in state")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := r.SaveAndExit(); err != nil {
		t.Fatalf("save and exit: %v", err)
	}
	select {
	case <-r.Stopped():
	case <-time.After(2 * time.Second):
		t.Fatal("reactor did not stop")
	}
	if err := <-done; err != nil {
		t.Fatalf("run returned: %v", err)
	}

	restored, err := snapshot.Load(path)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if restored == nil || !restored.Workspaces["1"].Tree.Contains(1) {
		t.Fatal("snapshot does not contain the tracked window")
	}
}
