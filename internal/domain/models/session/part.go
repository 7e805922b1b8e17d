package session

// Part type constants
const (
	PartTypeText       = "text"
	PartTypeReasoning  = "reasoning"
	PartTypeTool       = "tool"
	PartTypeFile       = "file"
	PartTypeCompaction = "compaction"
	PartTypeRetry      = "retry"
	PartTypeStepStart  = "step-start"
	PartTypeStepFinish = "step-finish"
)

// Tool invocation status constants
const (
	ToolStatusPending   = "pending"
	ToolStatusRunning   = "running"
	ToolStatusCompleted = "completed"
	ToolStatusError     = "error"
)

// PartTime carries unix-millisecond timestamps for parts that have a
// duration (reasoning, tool). End is nil while the part is in flight.
type PartTime struct {
	Start int64  `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

// ToolState tracks one tool invocation through its lifecycle.
//
// Status flow: pending (announced) -> running (input complete, executing)
// -> completed or error. Input is the decoded tool input; Output and Error
// are only set in terminal states.
type ToolState struct {
	Status string                 `json:"status"` // "pending", "running", "completed", "error"
	Input  map[string]interface{} `json:"input,omitempty"`
	Output string                 `json:"output,omitempty"`
	Title  string                 `json:"title,omitempty"`
	Error  string                 `json:"error,omitempty"`
	Time   *PartTime              `json:"time,omitempty"`
}

// Part represents a sub-unit of a message: a text chunk, reasoning block,
// tool invocation, file attachment, or a synthetic marker (compaction,
// retry, step boundaries). Part ids are sortable; the per-message order by
// id is the display order.
//
// Type-specific fields:
//   - text, reasoning: Text (reasoning additionally uses Time for duration)
//   - tool: Tool, CallID, State
//   - file: MIME, Filename, URL
//   - compaction, retry, step-start, step-finish: no payload
//
// Like messages, parts are immutable once stored; every update (including
// delta accumulation) produces a fresh record under the same id.
type Part struct {
	ID        string `json:"id"`
	MessageID string `json:"messageID"`
	SessionID string `json:"sessionID"`
	Type      string `json:"type"`

	// Text content (text and reasoning parts)
	Text string `json:"text,omitempty"`

	// Tool invocation fields
	Tool   string     `json:"tool,omitempty"`
	CallID string     `json:"callID,omitempty"`
	State  *ToolState `json:"state,omitempty"`

	// File attachment fields
	MIME     string `json:"mime,omitempty"`
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url,omitempty"`

	Time *PartTime `json:"time,omitempty"`
}

// Key returns the identity the ordered stores sort by.
func (p *Part) Key() string { return p.ID }

// IsTextual returns true if the part carries streamed text content
func (p *Part) IsTextual() bool {
	return p.Type == PartTypeText || p.Type == PartTypeReasoning
}

// IsTool returns true if the part is a tool invocation
func (p *Part) IsTool() bool {
	return p.Type == PartTypeTool
}

// ToolStatus returns the invocation status, or "" for non-tool parts
// and tool parts whose state has not arrived yet.
func (p *Part) ToolStatus() string {
	if p.State == nil {
		return ""
	}
	return p.State.Status
}

// Clone returns a deep copy safe to modify without touching the original.
// Nested pointers (State, Time) are copied; the tool Input map is shared
// because accumulation never mutates it.
func (p *Part) Clone() *Part {
	cp := *p
	if p.State != nil {
		st := *p.State
		if p.State.Time != nil {
			t := *p.State.Time
			st.Time = &t
		}
		cp.State = &st
	}
	if p.Time != nil {
		t := *p.Time
		cp.Time = &t
	}
	return &cp
}
