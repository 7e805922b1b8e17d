package session

// Role constants
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessageTime carries unix-millisecond timestamps for a message.
// Completed is nil while an assistant response is still streaming.
type MessageTime struct {
	Created   int64  `json:"created"`
	Completed *int64 `json:"completed,omitempty"`
}

// TokenCache counts prompt-cache reads and writes.
type TokenCache struct {
	Read  int `json:"read"`
	Write int `json:"write"`
}

// TokenUsage aggregates token counts for an assistant response.
type TokenUsage struct {
	Input     int        `json:"input"`
	Output    int        `json:"output"`
	Reasoning int        `json:"reasoning"`
	Cache     TokenCache `json:"cache"`
}

// Message represents one turn-level unit in a session: a user prompt or an
// assistant response. Ids are globally unique and lexicographically sortable,
// so the per-session order by id is the temporal order.
//
// Messages are treated as immutable once handed to the state layer; the
// server updates a message (completion time, cost, tokens) by sending a full
// replacement record under the same id.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionID"`
	Role      string      `json:"role"` // "user" or "assistant"
	// ParentID links an assistant response to the user message that
	// triggered it. Empty for user messages and for servers that predate
	// parent tracking (grouping then falls back to sequence position).
	ParentID string      `json:"parentID,omitempty"`
	Time     MessageTime `json:"time"`

	// Assistant-only fields
	ModelID    string      `json:"modelID,omitempty"`
	ProviderID string      `json:"providerID,omitempty"`
	Mode       string      `json:"mode,omitempty"`
	Cost       float64     `json:"cost,omitempty"`
	Tokens     *TokenUsage `json:"tokens,omitempty"`
	Error      *string     `json:"error,omitempty"`

	// Optimistic marks a locally-created user message that the server has
	// not confirmed yet. Client-side only, never serialized.
	Optimistic bool `json:"-"`
}

// Key returns the identity the ordered stores sort by.
func (m *Message) Key() string { return m.ID }

// IsUser returns true if this is a user prompt
func (m *Message) IsUser() bool {
	return m.Role == RoleUser
}

// IsAssistant returns true if this is an assistant response
func (m *Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}

// IsCompleted returns true if the message reached a terminal state
// (assistant finished streaming, or errored)
func (m *Message) IsCompleted() bool {
	return m.Time.Completed != nil || m.Error != nil
}

// RespondsTo returns true if this assistant message belongs to the turn
// opened by the given user message id. An empty ParentID counts as a
// positional match (the caller decides position).
func (m *Message) RespondsTo(userMessageID string) bool {
	return m.ParentID == "" || m.ParentID == userMessageID
}
