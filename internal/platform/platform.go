package platform

// WindowID is an OS-assigned window identifier, opaque to the rest of the
// system and stable for the window's lifetime.
type WindowID uint32

// Rect describes a rectangular region in screen coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the geometric center of the rectangle.
func (r Rect) Center() (float64, float64) {
	return float64(r.X) + float64(r.Width)/2, float64(r.Y) + float64(r.Height)/2
}

// Contains reports whether the point (x, y) lies inside the rectangle.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// Overlap returns the intersection area of two rectangles, 0 when disjoint.
func (r Rect) Overlap(o Rect) int {
	w := min(r.X+r.Width, o.X+o.Width) - max(r.X, o.X)
	h := min(r.Y+r.Height, o.Y+o.Height) - max(r.Y, o.Y)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Display describes a physical display and its usable work area.
type Display struct {
	ID     int
	Name   string
	Bounds Rect
	Usable Rect
}

// WindowKind classifies a top-level window as reported by the window system.
type WindowKind uint8

const (
	KindNormal WindowKind = iota
	KindDialog
	KindDock
	KindSplash
	KindTooltip
	KindNotification
	KindDesktop
)

// WindowInfo contains metadata and geometry for a top-level window.
type WindowInfo struct {
	ID        WindowID
	PID       int
	AppID     string
	Title     string
	Frame     Rect
	Kind      WindowKind
	Minimized bool
	ZHint     int
}

// Event is a notification delivered by the Provider. Events carry no ordering
// guarantees beyond channel order; the reactor is responsible for tolerating
// duplicates and stale observations.
type Event interface {
	isEvent()
}

// WindowCreated reports a new top-level window.
type WindowCreated struct {
	Window WindowInfo
}

// WindowDestroyed reports that a window no longer exists.
type WindowDestroyed struct {
	ID WindowID
}

// WindowFrameChanged reports a window's new on-screen frame. The change may
// be the result of one of our own move/resize effects or of a user drag.
type WindowFrameChanged struct {
	ID    WindowID
	Frame Rect
}

// WindowFocused reports that the window system focus moved to a window.
type WindowFocused struct {
	ID WindowID
}

// WindowTitleChanged reports a title update for a tracked window.
type WindowTitleChanged struct {
	ID    WindowID
	Title string
}

// AppLaunched reports a new application together with its initial windows.
type AppLaunched struct {
	PID     int
	AppID   string
	Windows []WindowInfo
}

// AppTerminated reports that an application exited. All of its windows are
// gone with it, whether or not individual destroy notifications arrived.
type AppTerminated struct {
	PID int
}

// AppActivated reports that an application became frontmost.
type AppActivated struct {
	PID int
}

// SpaceChanged reports that the window system switched the visible desktop
// on a display.
type SpaceChanged struct {
	DisplayID int
}

// DisplaysChanged reports a change in the physical display arrangement.
type DisplaysChanged struct {
	Displays []Display
}

// SleepDetected reports that the system is suspending. Notifications dropped
// or reordered during sleep must not be trusted; the reactor performs a full
// reconciliation on wake instead.
type SleepDetected struct{}

// WakeDetected reports that the system resumed from sleep.
type WakeDetected struct{}

func (WindowCreated) isEvent()      {}
func (WindowDestroyed) isEvent()    {}
func (WindowFrameChanged) isEvent() {}
func (WindowFocused) isEvent()      {}
func (WindowTitleChanged) isEvent() {}
func (AppLaunched) isEvent()        {}
func (AppTerminated) isEvent()      {}
func (AppActivated) isEvent()       {}
func (SpaceChanged) isEvent()       {}
func (DisplaysChanged) isEvent()    {}
func (SleepDetected) isEvent()      {}
func (WakeDetected) isEvent()       {}

// Provider abstracts the window system: it delivers lifecycle and geometry
// notifications on Events and executes geometry/focus operations. Operations
// are idempotent and safe to reissue.
type Provider interface {
	Displays() ([]Display, error)
	ActiveWindow() (WindowID, error)
	ListWindows() ([]WindowInfo, error)
	MoveResize(id WindowID, frame Rect) error
	Focus(id WindowID) error
	Raise(id WindowID) error
	Events() <-chan Event
	Close()
}
