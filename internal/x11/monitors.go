package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"

	"github.com/quiltwm/quilt/internal/platform"
)

// Displays enumerates active RandR CRTCs. Usable is the CRTC area minus any
// dock struts that intersect it.
func (p *Provider) Displays() ([]platform.Display, error) {
	if err := randr.Init(p.xu.Conn()); err != nil {
		return nil, fmt.Errorf("randr init failed: %w", err)
	}

	resources, err := randr.GetScreenResources(p.xu.Conn(), p.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	var displays []platform.Display
	for i, crtc := range resources.Crtcs {
		crtcInfo, err := randr.GetCrtcInfo(p.xu.Conn(), crtc, resources.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}
		// Skip disabled CRTCs
		if crtcInfo.Width == 0 || crtcInfo.Height == 0 || len(crtcInfo.Outputs) == 0 {
			continue
		}

		name := fmt.Sprintf("display-%d", i)
		if outputInfo, err := randr.GetOutputInfo(p.xu.Conn(), crtcInfo.Outputs[0], resources.ConfigTimestamp).Reply(); err == nil {
			name = string(outputInfo.Name)
		}

		bounds := platform.Rect{
			X:      int(crtcInfo.X),
			Y:      int(crtcInfo.Y),
			Width:  int(crtcInfo.Width),
			Height: int(crtcInfo.Height),
		}
		displays = append(displays, platform.Display{
			ID:     i,
			Name:   name,
			Bounds: bounds,
			Usable: p.usableArea(bounds),
		})
	}

	if len(displays) == 0 {
		return nil, fmt.Errorf("no active displays found")
	}
	return displays, nil
}

// usableArea shrinks a display's bounds by the struts of every dock window
// that borders it.
func (p *Provider) usableArea(bounds platform.Rect) platform.Rect {
	rootGeom, err := xproto.GetGeometry(p.xu.Conn(), xproto.Drawable(p.root)).Reply()
	if err != nil {
		return bounds
	}
	rootWidth := int(rootGeom.Width)
	rootHeight := int(rootGeom.Height)

	clients, err := ewmh.ClientListGet(p.xu)
	if err != nil {
		return bounds
	}

	var left, right, top, bottom int
	for _, win := range clients {
		if p.kindOf(win) != platform.KindDock {
			continue
		}

		sp, err := ewmh.WmStrutPartialGet(p.xu, win)
		if err != nil {
			// Some docks only set _NET_WM_STRUT (no partial ranges).
			s, err := ewmh.WmStrutGet(p.xu, win)
			if err != nil {
				continue
			}
			sp = &ewmh.WmStrutPartial{
				Left:         s.Left,
				Right:        s.Right,
				Top:          s.Top,
				Bottom:       s.Bottom,
				LeftStartY:   0,
				LeftEndY:     uint(rootHeight - 1),
				RightStartY:  0,
				RightEndY:    uint(rootHeight - 1),
				TopStartX:    0,
				TopEndX:      uint(rootWidth - 1),
				BottomStartX: 0,
				BottomEndX:   uint(rootWidth - 1),
			}
		}

		if sp.Top > 0 {
			strut := platform.Rect{
				X:      int(sp.TopStartX),
				Width:  int(sp.TopEndX) - int(sp.TopStartX) + 1,
				Height: int(sp.Top),
			}
			if bounds.Overlap(strut) > 0 {
				top = max(top, int(sp.Top)-bounds.Y)
			}
		}
		if sp.Bottom > 0 {
			strut := platform.Rect{
				X:      int(sp.BottomStartX),
				Y:      rootHeight - int(sp.Bottom),
				Width:  int(sp.BottomEndX) - int(sp.BottomStartX) + 1,
				Height: int(sp.Bottom),
			}
			if bounds.Overlap(strut) > 0 {
				bottom = max(bottom, bounds.Y+bounds.Height-(rootHeight-int(sp.Bottom)))
			}
		}
		if sp.Left > 0 {
			strut := platform.Rect{
				Y:      int(sp.LeftStartY),
				Width:  int(sp.Left),
				Height: int(sp.LeftEndY) - int(sp.LeftStartY) + 1,
			}
			if bounds.Overlap(strut) > 0 {
				left = max(left, int(sp.Left)-bounds.X)
			}
		}
		if sp.Right > 0 {
			strut := platform.Rect{
				X:      rootWidth - int(sp.Right),
				Y:      int(sp.RightStartY),
				Width:  int(sp.Right),
				Height: int(sp.RightEndY) - int(sp.RightStartY) + 1,
			}
			if bounds.Overlap(strut) > 0 {
				right = max(right, bounds.X+bounds.Width-(rootWidth-int(sp.Right)))
			}
		}
	}

	usable := platform.Rect{
		X:      bounds.X + max(left, 0),
		Y:      bounds.Y + max(top, 0),
		Width:  bounds.Width - max(left, 0) - max(right, 0),
		Height: bounds.Height - max(top, 0) - max(bottom, 0),
	}
	if usable.Width < 1 {
		usable.Width = 1
	}
	if usable.Height < 1 {
		usable.Height = 1
	}
	return usable
}
