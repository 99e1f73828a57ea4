package x11

import (
	"fmt"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/BurntSushi/xgbutil/xwindow"

	"github.com/quiltwm/quilt/internal/platform"
)

// sleepGap is the wall-clock jump that is interpreted as a suspend/resume
// cycle. X11 delivers no sleep notifications, so this heuristic stands in.
const sleepGap = 5 * time.Second

// startEvents subscribes to root-window notifications and runs the X event
// loop. All callbacks run on the xevent goroutine, which owns p.known.
func (p *Provider) startEvents() error {
	root := xwindow.New(p.xu, p.root)
	if err := root.Listen(xproto.EventMaskPropertyChange | xproto.EventMaskSubstructureNotify); err != nil {
		return fmt.Errorf("failed to listen on root window: %w", err)
	}

	// Seed the mirror so startup does not replay every existing window as a
	// creation; the reactor adopts them through its own reconciliation.
	if infos, err := p.ListWindows(); err == nil {
		for _, info := range infos {
			win := xproto.Window(info.ID)
			p.known[win] = info
			p.watchWindow(win)
		}
	}

	xevent.PropertyNotifyFun(p.onRootProperty).Connect(p.xu, p.root)
	xevent.ConfigureNotifyFun(p.onConfigure).Connect(p.xu, p.root)

	go p.watchClock()
	go func() {
		xevent.Main(p.xu)
		close(p.events)
	}()
	return nil
}

func (p *Provider) onRootProperty(xu *xgbutil.XUtil, ev xevent.PropertyNotifyEvent) {
	name, err := xprop.AtomName(xu, ev.Atom)
	if err != nil {
		return
	}
	switch name {
	case "_NET_CLIENT_LIST":
		p.syncClients()
	case "_NET_ACTIVE_WINDOW":
		if id, err := p.ActiveWindow(); err == nil && id != 0 {
			p.emit(platform.WindowFocused{ID: id})
		}
	case "_NET_CURRENT_DESKTOP":
		p.emit(platform.SpaceChanged{DisplayID: 0})
	}
}

// syncClients diffs the EWMH client list against the mirror and emits
// creations and destructions.
func (p *Provider) syncClients() {
	clients, err := ewmh.ClientListGet(p.xu)
	if err != nil {
		p.logger.Warn("failed to get client list", "error", err)
		return
	}

	live := make(map[xproto.Window]struct{}, len(clients))
	for _, win := range clients {
		live[win] = struct{}{}
		if _, ok := p.known[win]; ok {
			continue
		}
		info, err := p.windowInfo(win)
		if err != nil {
			continue
		}
		p.known[win] = info
		p.watchWindow(win)
		p.emit(platform.WindowCreated{Window: info})
	}

	for win := range p.known {
		if _, ok := live[win]; !ok {
			delete(p.known, win)
			xevent.Detach(p.xu, win)
			p.emit(platform.WindowDestroyed{ID: platform.WindowID(win)})
		}
	}
}

// watchWindow subscribes to per-window property changes for title updates.
func (p *Provider) watchWindow(win xproto.Window) {
	xwindow.New(p.xu, win).Listen(xproto.EventMaskPropertyChange)
	xevent.PropertyNotifyFun(func(xu *xgbutil.XUtil, ev xevent.PropertyNotifyEvent) {
		name, err := xprop.AtomName(xu, ev.Atom)
		if err != nil {
			return
		}
		if name != "_NET_WM_NAME" && name != "WM_NAME" {
			return
		}
		if title, err := ewmh.WmNameGet(xu, win); err == nil {
			if info, ok := p.known[win]; ok {
				info.Title = title
				p.known[win] = info
			}
			p.emit(platform.WindowTitleChanged{ID: platform.WindowID(win), Title: title})
		}
	}).Connect(p.xu, win)
}

func (p *Provider) onConfigure(xu *xgbutil.XUtil, ev xevent.ConfigureNotifyEvent) {
	if ev.Window == p.root {
		// Root geometry changes on resolution or arrangement changes.
		if displays, err := p.Displays(); err == nil {
			p.emit(platform.DisplaysChanged{Displays: displays})
		}
		return
	}

	info, ok := p.known[ev.Window]
	if !ok {
		return
	}
	frame, err := p.frameOf(ev.Window)
	if err != nil {
		return
	}
	if frame == info.Frame {
		return
	}
	info.Frame = frame
	p.known[ev.Window] = info
	p.emit(platform.WindowFrameChanged{ID: platform.WindowID(ev.Window), Frame: frame})
}

// watchClock detects suspend/resume by watching for wall-clock jumps.
func (p *Provider) watchClock() {
	last := time.Now()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.quit:
			return
		case now := <-ticker.C:
			if now.Sub(last) > sleepGap {
				p.emit(platform.SleepDetected{})
				p.emit(platform.WakeDetected{})
			}
			last = now
		}
	}
}
