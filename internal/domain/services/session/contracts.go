package session

import (
	"context"

	"sextant/internal/domain/models/session"
)

// State is the session-state core: the ordered message/part stores, the
// streaming overlay, the session registry and the derived views, behind one
// coordinator.
//
// Write operations never fail. Unknown or malformed references degrade to
// no-ops (best-effort convergence): a single bad event must not take down a
// live session view. The only report is ApplyPartDelta's boolean, which
// tells the transport whether the delta landed.
//
// Read operations return sorted, immutable snapshots. Callers must not
// mutate them; the store replaces slices wholesale on every change, so a
// held snapshot stays valid forever.
type State interface {
	// Hydrate merges a fetched page into the session's stores. Empty
	// session: wholesale install. Otherwise locally-known messages win
	// over fetched ones, and fetched parts are dropped for any message
	// that already accumulated parts via streaming.
	Hydrate(sessionID string, messages []*session.Message, partsByMessage map[string][]*session.Part)

	// UpsertMessage inserts or replaces a message. A confirmed user
	// message first removes the session's pending optimistic placeholder;
	// inserts enforce the per-session cap by evicting the oldest message
	// and its parts.
	UpsertMessage(m *session.Message)

	// UpsertPart inserts or replaces a committed part.
	UpsertPart(p *session.Part)

	// BatchUpsertParts applies many part upserts, grouped per message.
	// End state is identical to sequential UpsertPart calls in order.
	BatchUpsertParts(ps []*session.Part)

	// ApplyPartDelta appends delta text to a known part's field and
	// reports whether it was applied. Unknown part or non-patchable
	// field: no-op, false.
	ApplyPartDelta(messageID, partID string, field session.DeltaField, delta string) bool

	// RemoveMessage deletes a message, its parts and overlay entries.
	RemoveMessage(sessionID, messageID string)

	// RemovePart deletes one part and its overlay entry.
	RemovePart(messageID, partID string)

	// FlushStreaming commits all overlay entries into the part stores,
	// clears the overlay and signals subscribers immediately.
	FlushStreaming()

	// UpsertSession and RemoveSession maintain the session registry.
	// Removal cascades to the session's messages, parts and todos.
	UpsertSession(s *session.Session)
	RemoveSession(sessionID string)

	// SetTodos replaces a session's todo list wholesale.
	SetTodos(sessionID string, todos []session.Todo)

	// Sessions returns the registry snapshot; Session looks one up.
	Sessions() []*session.Session
	Session(sessionID string) (*session.Session, bool)

	// Messages returns the session's sorted message snapshot.
	// MessagesRevision changes exactly when that snapshot does, so a
	// consumer can compare revisions instead of slices.
	Messages(sessionID string) []*session.Message
	MessagesRevision(sessionID string) uint64

	// Parts returns a message's sorted committed parts.
	Parts(messageID string) []*session.Part

	// StreamingOverlay returns the in-flight parts of a message (a copy,
	// safe to hold), or nil when nothing is streaming for it.
	StreamingOverlay(messageID string) map[string]*session.Part

	// StreamingVersion and SubscribeStreaming expose the throttled
	// change signal, scoped per session. The channel coalesces: a slow
	// reader sees at least one pending signal, never a backlog.
	StreamingVersion(sessionID string) uint64
	SubscribeStreaming(sessionID string) (<-chan struct{}, func())

	// Turns groups the session's messages into turns with structural
	// sharing: an unchanged turn is the same *Turn as last call.
	Turns(sessionID string) []*session.Turn

	// Derived views, recomputed on read.
	Agents(sessionID string) []*session.Session
	Projects() []ProjectGroup
	Waiting(sessionID string) bool
	WaitingCount() int
	Todos(sessionID string) []session.Todo
}

// ProjectGroup is one project's sessions, used by the sidebar fold.
type ProjectGroup struct {
	ProjectID string
	Sessions  []*session.Session
}

// Transport is the server-facing collaborator: REST fetches and the
// outgoing send. The event stream side lives in its consumer, which feeds
// State directly.
type Transport interface {
	// FetchSessions lists the top-level and sub-agent sessions.
	FetchSessions(ctx context.Context) ([]*session.Session, error)

	// FetchMessages retrieves one page of messages with their parts,
	// newest page by default, older pages via Before.
	FetchMessages(ctx context.Context, sessionID string, opts FetchOptions) ([]MessageEnvelope, error)

	// SendMessage posts a user prompt and returns the server's message
	// record. The caller inserts the optimistic placeholder before
	// calling; confirmation arrives via the event stream.
	SendMessage(ctx context.Context, sessionID string, req *SendMessageRequest) (*session.Message, error)
}

// FetchOptions narrows a message fetch.
type FetchOptions struct {
	// Limit bounds the page size; 0 means the configured default.
	Limit int
	// Before restricts the page to messages with ids below it, for
	// load-earlier. Empty fetches the newest page.
	Before string
}

// MessageEnvelope is the fetch DTO: one message with its parts.
type MessageEnvelope struct {
	Info  *session.Message `json:"info"`
	Parts []*session.Part  `json:"parts"`
}

// SendMessageRequest is the DTO for posting a user prompt.
type SendMessageRequest struct {
	// MessageID is the client-generated id, reused by the server so the
	// optimistic placeholder and the confirmed message share identity.
	MessageID string `json:"messageID"`
	Text      string `json:"text"`
}
