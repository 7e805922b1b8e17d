package state

import (
	"sync"
)

// versionHub tracks a monotonically increasing version per session and
// fans a change signal out to subscribers. Channels are buffered with
// capacity 1 and sends never block: a subscriber that has not drained yet
// already has a wakeup pending, which is all a repaint loop needs.
type versionHub struct {
	mu       sync.Mutex
	versions map[string]uint64
	subs     map[string]map[int]chan struct{}
	nextID   int
}

func newVersionHub() *versionHub {
	return &versionHub{
		versions: make(map[string]uint64),
		subs:     make(map[string]map[int]chan struct{}),
	}
}

// Version returns the session's current version. Unknown sessions are at 0.
func (h *versionHub) Version(sessionID string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.versions[sessionID]
}

// Subscribe registers for the session's change signal. The returned cancel
// func unregisters; it is safe to call more than once.
func (h *versionHub) Subscribe(sessionID string) (<-chan struct{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[int]chan struct{})
	}
	id := h.nextID
	h.nextID++
	ch := make(chan struct{}, 1)
	h.subs[sessionID][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs, ok := h.subs[sessionID]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(h.subs, sessionID)
			}
		}
	}
	return ch, cancel
}

// Bump increments each session's version and signals its subscribers.
func (h *versionHub) Bump(sessionIDs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sessionID := range sessionIDs {
		h.versions[sessionID]++
		for _, ch := range h.subs[sessionID] {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}
