package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xwindow"

	"github.com/quiltwm/quilt/internal/platform"
)

// ListWindows enumerates the EWMH client list with geometry and metadata.
func (p *Provider) ListWindows() ([]platform.WindowInfo, error) {
	clients, err := ewmh.ClientListGet(p.xu)
	if err != nil {
		return nil, fmt.Errorf("failed to get client list: %w", err)
	}

	infos := make([]platform.WindowInfo, 0, len(clients))
	for _, win := range clients {
		info, err := p.windowInfo(win)
		if err != nil {
			// The window may have vanished between the list and the query.
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (p *Provider) windowInfo(win xproto.Window) (platform.WindowInfo, error) {
	frame, err := p.frameOf(win)
	if err != nil {
		return platform.WindowInfo{}, err
	}

	info := platform.WindowInfo{
		ID:    platform.WindowID(win),
		Frame: frame,
		Kind:  p.kindOf(win),
	}
	if name, err := ewmh.WmNameGet(p.xu, win); err == nil {
		info.Title = name
	}
	if pid, err := ewmh.WmPidGet(p.xu, win); err == nil {
		info.PID = int(pid)
	}
	if class, err := icccm.WmClassGet(p.xu, win); err == nil && class != nil {
		info.AppID = class.Class
	}
	if states, err := ewmh.WmStateGet(p.xu, win); err == nil {
		for _, s := range states {
			if s == "_NET_WM_STATE_HIDDEN" {
				info.Minimized = true
			}
		}
	}
	return info, nil
}

// frameOf returns the window's geometry in root coordinates.
func (p *Provider) frameOf(win xproto.Window) (platform.Rect, error) {
	geom, err := xproto.GetGeometry(p.xu.Conn(), xproto.Drawable(win)).Reply()
	if err != nil {
		return platform.Rect{}, fmt.Errorf("failed to get geometry: %w", err)
	}
	translate, err := xproto.TranslateCoordinates(p.xu.Conn(), win, p.root, 0, 0).Reply()
	if err != nil {
		return platform.Rect{}, fmt.Errorf("failed to translate coordinates: %w", err)
	}
	return platform.Rect{
		X:      int(translate.DstX),
		Y:      int(translate.DstY),
		Width:  int(geom.Width),
		Height: int(geom.Height),
	}, nil
}

func (p *Provider) kindOf(win xproto.Window) platform.WindowKind {
	types, err := ewmh.WmWindowTypeGet(p.xu, win)
	if err != nil || len(types) == 0 {
		// No type set on plain application windows; assume normal.
		return platform.KindNormal
	}
	for _, t := range types {
		switch t {
		case "_NET_WM_WINDOW_TYPE_NORMAL":
			return platform.KindNormal
		case "_NET_WM_WINDOW_TYPE_DIALOG":
			return platform.KindDialog
		case "_NET_WM_WINDOW_TYPE_DOCK":
			return platform.KindDock
		case "_NET_WM_WINDOW_TYPE_SPLASH":
			return platform.KindSplash
		case "_NET_WM_WINDOW_TYPE_TOOLTIP":
			return platform.KindTooltip
		case "_NET_WM_WINDOW_TYPE_NOTIFICATION":
			return platform.KindNotification
		case "_NET_WM_WINDOW_TYPE_DESKTOP":
			return platform.KindDesktop
		}
	}
	return platform.KindNormal
}

// MoveResize moves a window to the frame, unmaximizing it first so the
// request is not silently ignored.
func (p *Provider) MoveResize(id platform.WindowID, frame platform.Rect) error {
	win := xproto.Window(id)
	p.unmaximize(win)

	err := ewmh.MoveresizeWindow(p.xu, win, frame.X, frame.Y, frame.Width, frame.Height)
	if err != nil {
		// Fallback to direct window manipulation.
		xwindow.New(p.xu, win).MoveResize(frame.X, frame.Y, frame.Width, frame.Height)
	}
	return nil
}

func (p *Provider) unmaximize(win xproto.Window) {
	states, err := ewmh.WmStateGet(p.xu, win)
	if err != nil {
		return
	}
	for _, state := range states {
		if state == "_NET_WM_STATE_MAXIMIZED_HORZ" || state == "_NET_WM_STATE_MAXIMIZED_VERT" {
			ewmh.WmStateReq(p.xu, win, 0, state)
		}
	}
}

// Focus activates a window via _NET_ACTIVE_WINDOW. The message is built
// manually because the xgbutil helper panics on this library version.
func (p *Provider) Focus(id platform.WindowID) error {
	atomReply, err := xproto.InternAtom(p.xu.Conn(), false,
		uint16(len("_NET_ACTIVE_WINDOW")), "_NET_ACTIVE_WINDOW").Reply()
	if err != nil {
		return fmt.Errorf("failed to intern _NET_ACTIVE_WINDOW: %w", err)
	}

	const sourceIndication = 2 // pager/direct action
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: xproto.Window(id),
		Type:   atomReply.Atom,
		Data:   xproto.ClientMessageDataUnionData32New([]uint32{sourceIndication, 0, 0, 0, 0}),
	}

	return xproto.SendEventChecked(
		p.xu.Conn(),
		false,
		p.root,
		xproto.EventMaskSubstructureRedirect|xproto.EventMaskSubstructureNotify,
		string(ev.Bytes()),
	).Check()
}

// Raise moves a window to the top of the stacking order.
func (p *Provider) Raise(id platform.WindowID) error {
	return xproto.ConfigureWindowChecked(
		p.xu.Conn(),
		xproto.Window(id),
		xproto.ConfigWindowStackMode,
		[]uint32{xproto.StackModeAbove},
	).Check()
}

// ActiveWindow returns the currently focused window, 0 when none.
func (p *Provider) ActiveWindow() (platform.WindowID, error) {
	win, err := ewmh.ActiveWindowGet(p.xu)
	if err != nil {
		return 0, fmt.Errorf("failed to get active window: %w", err)
	}
	return platform.WindowID(win), nil
}
