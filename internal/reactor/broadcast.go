package reactor

// Broadcast is a state-change notification delivered to subscribers (the IPC
// SUBSCRIBE stream). Delivery is best effort: a subscriber that stops reading
// loses events rather than stalling the reactor.
type Broadcast struct {
	Kind      string            `json:"kind"`
	Workspace string            `json:"workspace,omitempty"`
	Windows   []WindowSummary   `json:"windows,omitempty"`
	State     *WorkspaceSummary `json:"state,omitempty"`
}

const (
	BroadcastWorkspaceChanged  = "workspace_changed"
	BroadcastWindowListChanged = "window_list_changed"
	BroadcastConfigReloaded    = "config_reloaded"
)

// Subscribe registers a broadcast channel and returns it with a cancel
// function. Safe to call from any goroutine.
func (r *Reactor) Subscribe() (<-chan Broadcast, func()) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	id := r.nextSub
	r.nextSub++
	ch := make(chan Broadcast, 16)
	r.subs[id] = ch
	return ch, func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
	}
}

func (r *Reactor) emitBroadcast(b Broadcast) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- b:
		default:
		}
	}
}
