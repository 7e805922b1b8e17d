package state

import (
	"sort"
	"sync"
	"time"

	"sextant/internal/domain/models/session"
)

// Overlay buffers the live version of actively streaming parts keyed by
// (messageID, partID) and throttles change notifications so consumers
// repaint at a steady rate instead of once per token.
//
// Flow:
//  1. The coordinator writes each patched part as stream deltas land
//  2. Each write marks the part's session dirty and arms the throttle
//  3. At most one notification per interval bumps the session version
//  4. On stream completion Flush drains every entry into the sink,
//     clears the buffer and notifies immediately
//
// There is never more than one pending timer: writes inside the throttle
// window coalesce into the timer already armed.
//
// Thread-safety: safe for concurrent use.
type Overlay struct {
	mu       sync.Mutex
	interval time.Duration
	entries  map[string]map[string]*session.Part
	dirty    map[string]struct{}
	timer    *time.Timer
	last     time.Time
	hub      *versionHub
}

// NewOverlay creates an overlay that signals at most once per interval
// per burst of writes.
func NewOverlay(interval time.Duration) *Overlay {
	return &Overlay{
		interval: interval,
		entries:  make(map[string]map[string]*session.Part),
		dirty:    make(map[string]struct{}),
		hub:      newVersionHub(),
	}
}

// Write stores the live version of a part and schedules a throttled
// notification for its session.
func (o *Overlay) Write(p *session.Part) {
	o.mu.Lock()
	defer o.mu.Unlock()

	byPart, ok := o.entries[p.MessageID]
	if !ok {
		byPart = make(map[string]*session.Part)
		o.entries[p.MessageID] = byPart
	}
	byPart[p.ID] = p

	o.dirty[p.SessionID] = struct{}{}
	o.scheduleLocked()
}

// scheduleLocked fires a notification now if the throttle window has
// passed, otherwise arms the single trailing timer.
func (o *Overlay) scheduleLocked() {
	if o.timer != nil {
		return
	}
	elapsed := time.Since(o.last)
	if elapsed >= o.interval {
		o.notifyLocked()
		return
	}
	o.timer = time.AfterFunc(o.interval-elapsed, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.timer = nil
		o.notifyLocked()
	})
}

// notifyLocked bumps the version of every dirty session and resets the
// throttle window.
func (o *Overlay) notifyLocked() {
	if len(o.dirty) == 0 {
		return
	}
	sessions := make([]string, 0, len(o.dirty))
	for id := range o.dirty {
		sessions = append(sessions, id)
	}
	o.dirty = make(map[string]struct{})
	o.last = time.Now()
	o.hub.Bump(sessions...)
}

// Get returns the live version of one part, nil when it is not streaming.
func (o *Overlay) Get(messageID, partID string) *session.Part {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.entries[messageID][partID]
}

// Read returns a copy of a message's live parts keyed by part id, nil when
// none are streaming.
func (o *Overlay) Read(messageID string) map[string]*session.Part {
	o.mu.Lock()
	defer o.mu.Unlock()

	byPart, ok := o.entries[messageID]
	if !ok {
		return nil
	}
	out := make(map[string]*session.Part, len(byPart))
	for id, p := range byPart {
		out[id] = p
	}
	return out
}

// ReadAll returns a copy of every buffered part keyed by message then part
// id, nil when nothing is streaming.
func (o *Overlay) ReadAll() map[string]map[string]*session.Part {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.entries) == 0 {
		return nil
	}
	out := make(map[string]map[string]*session.Part, len(o.entries))
	for messageID, byPart := range o.entries {
		cp := make(map[string]*session.Part, len(byPart))
		for id, p := range byPart {
			cp[id] = p
		}
		out[messageID] = cp
	}
	return out
}

// Len returns the number of buffered parts across all messages.
func (o *Overlay) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for _, byPart := range o.entries {
		n += len(byPart)
	}
	return n
}

// Flush drains every buffered part into sink, clears the buffer, cancels
// any pending timer and notifies the affected sessions immediately. The
// sink runs under the overlay lock, so drain, clear and hand-off are one
// atomic step against concurrent writes; sinks must not call back into
// the overlay.
func (o *Overlay) Flush(sink func([]*session.Part)) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var drained []*session.Part
	for _, byPart := range o.entries {
		for _, p := range byPart {
			drained = append(drained, p)
			o.dirty[p.SessionID] = struct{}{}
		}
	}
	o.entries = make(map[string]map[string]*session.Part)

	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}

	if len(drained) > 0 {
		sort.Slice(drained, func(i, j int) bool {
			if drained[i].MessageID != drained[j].MessageID {
				return drained[i].MessageID < drained[j].MessageID
			}
			return drained[i].ID < drained[j].ID
		})
		if sink != nil {
			sink(drained)
		}
	}
	o.notifyLocked()
}

// Drop discards a message's live parts without notifying (removal and
// eviction cascades).
func (o *Overlay) Drop(messageID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.entries, messageID)
}

// DropPart discards one live part without notifying.
func (o *Overlay) DropPart(messageID, partID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	byPart, ok := o.entries[messageID]
	if !ok {
		return
	}
	delete(byPart, partID)
	if len(byPart) == 0 {
		delete(o.entries, messageID)
	}
}

// Version returns the session's streaming version counter.
func (o *Overlay) Version(sessionID string) uint64 {
	return o.hub.Version(sessionID)
}

// Subscribe registers for the session's throttled change signal.
func (o *Overlay) Subscribe(sessionID string) (<-chan struct{}, func()) {
	return o.hub.Subscribe(sessionID)
}
