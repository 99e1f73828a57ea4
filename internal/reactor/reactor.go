// Package reactor implements the single actor that owns the window-manager
// model. All OS notifications and user commands funnel into one ordered
// inbox; the reactor processes exactly one message at a time, mutates the
// model through the layout engine, and emits geometry/focus effects that an
// executor applies asynchronously. Effect completions re-enter the inbox, so
// the model never has a second writer.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quiltwm/quilt/internal/config"
	"github.com/quiltwm/quilt/internal/model"
	"github.com/quiltwm/quilt/internal/platform"
	"github.com/quiltwm/quilt/internal/snapshot"
)

// ErrStopped is returned by command submission once the reactor has shut down.
var ErrStopped = errors.New("reactor: stopped")

const (
	inboxSize = 256
	// saveExitTimeoutDur bounds how long shutdown waits for the provider to
	// acknowledge restore effects before writing the snapshot anyway.
	saveExitTimeoutDur = 3 * time.Second
	// offscreenShift moves windows of hidden workspaces out of view while
	// keeping their logical frames intact in the model.
	offscreenShift = 30000
	// frameTolerancePx treats frame observations within this distance of a
	// pending effect's target as the acknowledgement of that effect.
	frameTolerancePx = 2
)

// Message is one inbox entry: a platform.Event, a command, or an internal
// follow-up such as an effect completion.
type Message interface{}

// internal inbox messages
type effectDone struct {
	effect Effect
	err    error
}

type reconcileTick struct{}

type saveExitTimeout struct{}

type providerLost struct{}

// Reactor owns the model. Construct with New, then Bootstrap, then Run.
type Reactor struct {
	provider platform.Provider
	logger   *slog.Logger
	cfg      *config.Config

	model    *model.Model
	displays []platform.Display

	inbox   chan Message
	effects chan Effect
	tx      map[platform.WindowID]*txState
	// inFlight counts effects issued but not yet completed; SaveAndExit
	// drains it to zero before writing the snapshot.
	inFlight int

	subsMu  sync.Mutex
	subs    map[int]chan Broadcast
	nextSub int

	// spaceResolved flips after the first space activation, which resolves
	// the initial active workspace from the OS-focused window instead of a
	// configured default.
	spaceResolved bool
	asleep        bool

	snapshotPath string
	saveExit     *saveExitState
	stopped      chan struct{}
	startTime    time.Time
}

type txState struct {
	tx      uint32
	target  platform.Rect
	pending bool
}

type saveExitState struct {
	reply chan error
	timer *time.Timer
}

// New creates a reactor. The snapshot path may be empty to disable
// persistence (tests).
func New(provider platform.Provider, cfg *config.Config, snapshotPath string, logger *slog.Logger) *Reactor {
	return &Reactor{
		provider:     provider,
		logger:       logger,
		cfg:          cfg,
		model:        model.New(),
		inbox:        make(chan Message, inboxSize),
		effects:      make(chan Effect, inboxSize),
		tx:           make(map[platform.WindowID]*txState),
		subs:         make(map[int]chan Broadcast),
		snapshotPath: snapshotPath,
		stopped:      make(chan struct{}),
		startTime:    time.Now(),
	}
}

// Bootstrap prepares the model before the run loop starts: restore the
// snapshot when one exists, build the configured workspaces, enumerate
// displays and live windows, and reconcile the restored state against them.
// Call once, before Run; the model has no other writer yet.
func (r *Reactor) Bootstrap(restored *model.Model) error {
	if restored != nil {
		r.model = restored
	}

	for _, ws := range r.cfg.Workspaces {
		r.model.EnsureWorkspace(model.WorkspaceID(ws.Name), r.cfg.ModeFor(ws.Name))
	}

	displays, err := r.provider.Displays()
	if err != nil {
		return fmt.Errorf("reactor: failed to enumerate displays: %w", err)
	}
	r.displays = displays
	for _, d := range displays {
		if _, ok := r.model.Active[d.ID]; !ok {
			if len(r.model.Order) > 0 {
				r.model.Active[d.ID] = r.model.Order[0]
			}
		}
	}
	// Drop active entries for displays that no longer exist.
	for id := range r.model.Active {
		if displayByID(r.displays, id) == nil {
			delete(r.model.Active, id)
		}
	}

	r.reconcileAll("startup")

	// Whatever ended up on a workspace no display shows goes offscreen until
	// that workspace is switched to.
	for _, id := range r.model.Order {
		if r.displayShowing(id) < 0 {
			r.hideWorkspace(r.model.Workspaces[id])
		}
	}
	return nil
}

// Run processes the inbox until the context is cancelled, the provider's
// event stream ends, or a SaveAndExit command completes.
func (r *Reactor) Run(ctx context.Context) error {
	go r.forwardEvents(ctx)
	go r.runEffects(ctx)
	go r.runReconcileTicker(ctx)

	for {
		select {
		case <-ctx.Done():
			r.bestEffortSnapshot()
			return ctx.Err()
		case <-r.stopped:
			return nil
		case msg := <-r.inbox:
			r.dispatch(msg)
			select {
			case <-r.stopped:
				return nil
			default:
			}
		}
	}
}

// forwardEvents funnels provider notifications into the ordered inbox.
func (r *Reactor) forwardEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.provider.Events():
			if !ok {
				r.post(providerLost{})
				return
			}
			r.post(ev)
		}
	}
}

// runReconcileTicker posts periodic drift-check ticks into the inbox.
func (r *Reactor) runReconcileTicker(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReconcileInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.post(reconcileTick{})
		}
	}
}

// post delivers a message to the inbox unless the reactor already stopped.
func (r *Reactor) post(msg Message) {
	select {
	case r.inbox <- msg:
	case <-r.stopped:
	}
}

func (r *Reactor) dispatch(msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic while processing message", "message", fmt.Sprintf("%T", msg), "panic", rec)
		}
	}()

	switch m := msg.(type) {
	case platform.WindowCreated:
		r.handleWindowCreated(m.Window)
	case platform.WindowDestroyed:
		r.handleWindowDestroyed(m.ID)
	case platform.WindowFrameChanged:
		r.handleFrameChanged(m.ID, m.Frame)
	case platform.WindowFocused:
		r.handleWindowFocused(m.ID)
	case platform.WindowTitleChanged:
		r.handleTitleChanged(m.ID, m.Title)
	case platform.AppLaunched:
		r.handleAppLaunched(m)
	case platform.AppTerminated:
		r.handleAppTerminated(m.PID)
	case platform.AppActivated:
		r.handleAppActivated(m.PID)
	case platform.SpaceChanged:
		r.handleSpaceChanged(m.DisplayID)
	case platform.DisplaysChanged:
		r.handleDisplaysChanged(m.Displays)
	case platform.SleepDetected:
		r.logger.Info("system sleep detected, suspending trust in incremental events")
		r.asleep = true
	case platform.WakeDetected:
		r.logger.Info("system wake detected, reconciling")
		r.asleep = false
		r.reconcileAll("wake")
	case effectDone:
		r.handleEffectDone(m)
	case reconcileTick:
		if !r.asleep && r.saveExit == nil {
			r.reconcileAll("periodic")
		}
	case saveExitTimeout:
		r.finishSaveExit(errors.New("reactor: timed out waiting for restore effects"))
	case providerLost:
		r.logger.Error("provider event stream closed, shutting down")
		r.bestEffortSnapshot()
		close(r.stopped)
	case command:
		m.execute(r)
	default:
		r.logger.Warn("unknown inbox message", "type", fmt.Sprintf("%T", msg))
	}
}

// bestEffortSnapshot is used on abnormal shutdown paths; clean shutdown goes
// through SaveAndExit.
func (r *Reactor) bestEffortSnapshot() {
	if r.snapshotPath == "" {
		return
	}
	if err := snapshot.Save(r.snapshotPath, r.model); err != nil {
		r.logger.Error("failed to write snapshot", "path", r.snapshotPath, "error", err)
	}
}

// Stopped returns a channel closed when the reactor has terminated.
func (r *Reactor) Stopped() <-chan struct{} { return r.stopped }

func displayByID(displays []platform.Display, id int) *platform.Display {
	for i := range displays {
		if displays[i].ID == id {
			return &displays[i]
		}
	}
	return nil
}

// displayFor picks the display whose usable area overlaps the frame most.
func (r *Reactor) displayFor(frame platform.Rect) *platform.Display {
	var best *platform.Display
	bestOverlap := -1
	for i := range r.displays {
		if o := r.displays[i].Usable.Overlap(frame); o > bestOverlap {
			best = &r.displays[i]
			bestOverlap = o
		}
	}
	return best
}

// displayShowing returns the id of the display a workspace is active on, or
// -1 when the workspace is hidden.
func (r *Reactor) displayShowing(ws model.WorkspaceID) int {
	for display, active := range r.model.Active {
		if active == ws {
			return display
		}
	}
	return -1
}

// boundsFor returns the tiling bounds for a workspace: the usable area of
// the display it is visible on, or of the first display while hidden.
func (r *Reactor) boundsFor(ws *model.Workspace) platform.Rect {
	if display := r.displayShowing(ws.ID); display >= 0 {
		if d := displayByID(r.displays, display); d != nil {
			return d.Usable
		}
	}
	if len(r.displays) > 0 {
		return r.displays[0].Usable
	}
	return platform.Rect{Width: 1920, Height: 1080}
}
