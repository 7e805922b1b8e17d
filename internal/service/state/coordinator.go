package state

import (
	"log/slog"
	"sync"
	"time"

	"sextant/internal/config"
	"sextant/internal/domain/models/session"
)

// Coordinator reconciles the three write sources of a client session, the
// REST hydration snapshot, the live event stream and optimistic local
// sends, into one consistent set of per-session stores. All writes go
// through here; reads hand out copy-on-write snapshots that stay valid
// after later writes.
//
// Write routing:
//   - full message/part records replace whatever the stores hold
//   - stream deltas patch the newest version of a part (overlay first,
//     then committed) and recommit it, so reads always see accumulated
//     content without waiting for a flush
//   - writes naming unknown sessions, messages or parts are no-ops,
//     stale events after a removal must not resurrect state
//
// Thread-safety: safe for concurrent use.
type Coordinator struct {
	mu     sync.RWMutex
	logger *slog.Logger

	messageCap int
	sessions   List[*session.Session]
	messages   *Store[*session.Message]
	parts      *Store[*session.Part]
	todos      map[string][]session.Todo
	overlay    *Overlay
	turnCache  map[string][]*session.Turn
}

// NewCoordinator creates a coordinator holding at most messageCap messages
// per session and signalling streaming changes at most once per throttle
// interval. Zero values fall back to the configured defaults.
func NewCoordinator(messageCap int, throttle time.Duration, logger *slog.Logger) *Coordinator {
	if messageCap <= 0 {
		messageCap = config.DefaultMessageCap
	}
	if throttle <= 0 {
		throttle = config.StreamThrottleInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		logger:     logger,
		messageCap: messageCap,
		messages:   NewStore[*session.Message](func(m *session.Message) string { return m.SessionID }),
		parts:      NewStore[*session.Part](func(p *session.Part) string { return p.MessageID }),
		todos:      make(map[string][]session.Todo),
		overlay:    NewOverlay(throttle),
		turnCache:  make(map[string][]*session.Turn),
	}
}

// Hydrate installs a fetched snapshot of one session. An empty local store
// takes the snapshot wholesale. Otherwise fetched records merge around
// local state: messages already present win, and a message that already
// has parts keeps them, because anything written by the live stream is
// newer than the fetch that raced with it.
func (c *Coordinator) Hydrate(sessionID string, messages []*session.Message, partsByMessage map[string][]*session.Part) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.messages.list(sessionID)
	if list.Len() == 0 {
		list.Replace(messages)
		for messageID, parts := range partsByMessage {
			if _, ok := list.Find(messageID); !ok {
				continue
			}
			c.parts.Replace(messageID, parts)
		}
		c.evictLocked(sessionID)
		c.logger.Debug("hydrated session", "session_id", sessionID, "messages", list.Len())
		return
	}

	for _, m := range messages {
		if _, ok := list.Find(m.ID); ok {
			continue
		}
		list.Upsert(m)
	}
	for messageID, parts := range partsByMessage {
		if _, ok := list.Find(messageID); !ok {
			continue
		}
		if c.parts.Len(messageID) > 0 {
			continue
		}
		c.parts.Replace(messageID, parts)
	}
	c.evictLocked(sessionID)
	c.logger.Debug("merged session snapshot", "session_id", sessionID, "messages", list.Len())
}

// UpsertMessage commits a full message record. A server-confirmed user
// message first retires the session's optimistic placeholder: a different
// id removes the oldest placeholder and its parts, the same id simply
// replaces in place so the parts survive.
func (c *Coordinator) UpsertMessage(m *session.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.messages.list(m.SessionID)
	if m.IsUser() && !m.Optimistic {
		c.retireOptimisticLocked(list, m.ID)
	}
	list.Upsert(m)
	c.evictLocked(m.SessionID)
}

// retireOptimisticLocked removes the oldest optimistic user message other
// than the confirmed id, cascading to its parts and overlay entries.
func (c *Coordinator) retireOptimisticLocked(list *List[*session.Message], confirmedID string) {
	for _, m := range list.Items() {
		if m.Optimistic && m.IsUser() && m.ID != confirmedID {
			list.Remove(m.ID)
			c.parts.Drop(m.ID)
			c.overlay.Drop(m.ID)
			return
		}
	}
}

// evictLocked enforces the per-session message cap, dropping oldest
// messages and cascading to their parts and overlay entries.
func (c *Coordinator) evictLocked(sessionID string) {
	list := c.messages.list(sessionID)
	for list.Len() > c.messageCap {
		evicted, ok := list.DropOldest()
		if !ok {
			return
		}
		c.parts.Drop(evicted.ID)
		c.overlay.Drop(evicted.ID)
		c.logger.Debug("evicted message over cap", "session_id", sessionID, "message_id", evicted.ID)
	}
}

// UpsertPart commits a full part record. Parts whose owning message is not
// in the store are dropped: parts are always reachable through their
// message, so a late part event for an evicted or removed message must not
// leave orphan state behind. If the part is still streaming the overlay
// copy is refreshed too, so a later delta accumulates onto this newer
// version rather than a stale one.
func (c *Coordinator) UpsertPart(p *session.Part) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upsertPartLocked(p)
}

func (c *Coordinator) upsertPartLocked(p *session.Part) {
	if _, ok := c.messages.Find(p.SessionID, p.MessageID); !ok {
		return
	}
	c.parts.Upsert(p)
	if c.overlay.Get(p.MessageID, p.ID) != nil {
		c.overlay.Write(p)
	}
}

// BatchUpsertParts commits many part records with one revision bump per
// affected message. Parts for unknown messages are dropped as in
// UpsertPart.
func (c *Coordinator) BatchUpsertParts(ps []*session.Part) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := make([]*session.Part, 0, len(ps))
	for _, p := range ps {
		if _, ok := c.messages.Find(p.SessionID, p.MessageID); !ok {
			continue
		}
		kept = append(kept, p)
	}
	c.parts.BatchUpsert(kept)
	for _, p := range kept {
		if c.overlay.Get(p.MessageID, p.ID) != nil {
			c.overlay.Write(p)
		}
	}
}

// ApplyPartDelta appends a stream fragment to the named field of a part.
// The newest version wins as the patch base: the overlay copy if the part
// is streaming, else the committed record. The patched copy is committed
// and written to the overlay, which schedules the throttled signal.
// Returns false without side effects when the part is unknown or the
// field does not accept deltas.
func (c *Coordinator) ApplyPartDelta(messageID, partID string, field session.DeltaField, delta string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.overlay.Get(messageID, partID)
	if p == nil {
		committed, ok := c.parts.Find(messageID, partID)
		if !ok {
			return false
		}
		p = committed
	}

	patched, ok := p.ApplyDelta(field, delta)
	if !ok {
		return false
	}
	c.parts.Upsert(patched)
	c.overlay.Write(patched)
	return true
}

// RemoveMessage removes a message and everything hanging off it: committed
// parts, overlay entries. Unknown ids are a no-op.
func (c *Coordinator) RemoveMessage(sessionID, messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.messages.Remove(sessionID, messageID); !ok {
		return
	}
	c.parts.Drop(messageID)
	c.overlay.Drop(messageID)
}

// RemovePart removes one part from its message. Unknown ids are a no-op.
func (c *Coordinator) RemovePart(messageID, partID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.parts.Remove(messageID, partID)
	c.overlay.DropPart(messageID, partID)
}

// FlushStreaming drains the overlay into the committed part stores and
// fires an immediate streaming signal. Called when a stream settles
// (session idle, message completed).
func (c *Coordinator) FlushStreaming() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.overlay.Flush(func(ps []*session.Part) {
		c.parts.BatchUpsert(ps)
	})
}

// UpsertSession commits a session record into the registry.
func (c *Coordinator) UpsertSession(s *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions.Upsert(s)
}

// RemoveSession removes a session and cascades to its messages, parts,
// overlay entries, todos and cached turns.
func (c *Coordinator) RemoveSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.messages.Items(sessionID) {
		c.parts.Drop(m.ID)
		c.overlay.Drop(m.ID)
	}
	c.messages.Drop(sessionID)
	c.sessions.Remove(sessionID)
	delete(c.todos, sessionID)
	delete(c.turnCache, sessionID)
	c.logger.Debug("removed session", "session_id", sessionID)
}

// SetTodos replaces a session's todo list.
func (c *Coordinator) SetTodos(sessionID string, todos []session.Todo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.todos[sessionID] = todos
}

// Sessions returns the sorted session registry snapshot.
func (c *Coordinator) Sessions() []*session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessions.Items()
}

// Session looks one session up by id.
func (c *Coordinator) Session(sessionID string) (*session.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessions.Find(sessionID)
}

// Messages returns a session's committed messages sorted by id. The
// returned slice is a snapshot; callers must not mutate it.
func (c *Coordinator) Messages(sessionID string) []*session.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.messages.Items(sessionID)
}

// MessagesRevision returns the change counter of a session's message list.
func (c *Coordinator) MessagesRevision(sessionID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.messages.Revision(sessionID)
}

// Parts returns a message's committed parts sorted by id.
func (c *Coordinator) Parts(messageID string) []*session.Part {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.parts.Items(messageID)
}

// StreamingOverlay returns a copy of a message's live streaming parts,
// nil when nothing is in flight.
func (c *Coordinator) StreamingOverlay(messageID string) map[string]*session.Part {
	return c.overlay.Read(messageID)
}

// StreamingVersion returns the session's throttled streaming counter.
func (c *Coordinator) StreamingVersion(sessionID string) uint64 {
	return c.overlay.Version(sessionID)
}

// SubscribeStreaming registers for the session's throttled streaming
// signal. The cancel func unregisters.
func (c *Coordinator) SubscribeStreaming(sessionID string) (<-chan struct{}, func()) {
	return c.overlay.Subscribe(sessionID)
}

// Todos returns a session's todo list.
func (c *Coordinator) Todos(sessionID string) []session.Todo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.todos[sessionID]
}
