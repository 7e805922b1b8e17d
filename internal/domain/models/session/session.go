package session

// SessionTime carries unix-millisecond timestamps for a session.
type SessionTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}

// Session represents one ongoing agent conversation.
//
// A session with a non-empty ParentID is a sub-agent: a conversation
// spawned by a task tool inside the parent session. Sub-agents show up in
// the parent's agents view, not in the top-level session list.
type Session struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"projectID,omitempty"`
	ParentID  string      `json:"parentID,omitempty"`
	Title     string      `json:"title,omitempty"`
	Directory string      `json:"directory,omitempty"`
	Version   string      `json:"version,omitempty"`
	Time      SessionTime `json:"time"`
}

// Key returns the identity the session registry sorts by.
func (s *Session) Key() string { return s.ID }

// IsChild returns true if this session is a sub-agent conversation
func (s *Session) IsChild() bool {
	return s.ParentID != ""
}

// Todo status constants
const (
	TodoStatusPending    = "pending"
	TodoStatusInProgress = "in_progress"
	TodoStatusCompleted  = "completed"
	TodoStatusCancelled  = "cancelled"
)

// Todo is one entry of an agent's plan list. The server replaces a
// session's whole list on every todo.updated event, so there is no
// per-entry merge logic anywhere.
type Todo struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Status  string `json:"status"` // "pending", "in_progress", "completed", "cancelled"
}
