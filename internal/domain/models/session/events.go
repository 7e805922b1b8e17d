package session

import (
	"encoding/json"
	"fmt"
)

// SSE event type constants
const (
	EventSessionUpdated = "session.updated"      // Session created or metadata changed
	EventSessionDeleted = "session.deleted"      // Session removed server-side
	EventSessionIdle    = "session.idle"         // Session finished streaming, overlay can flush
	EventSessionError   = "session.error"        // Session-level failure
	EventMessageUpdated = "message.updated"      // Full message record (create or replace)
	EventMessageRemoved = "message.removed"      // Message deleted (revert)
	EventPartUpdated    = "message.part.updated" // Full part record (create or replace)
	EventPartDelta      = "message.part.delta"   // Incremental append to one part field
	EventPartRemoved    = "message.part.removed" // Part deleted (revert)
	EventTodoUpdated    = "todo.updated"         // Agent plan list replaced wholesale
)

// SessionUpdatedEvent carries a full session record
type SessionUpdatedEvent struct {
	Info Session `json:"info"`
}

// SessionDeletedEvent signals a server-side session removal
type SessionDeletedEvent struct {
	SessionID string `json:"sessionID"`
}

// SessionIdleEvent signals that a session stopped streaming
type SessionIdleEvent struct {
	SessionID string `json:"sessionID"`
}

// SessionErrorEvent carries a session-level failure message
type SessionErrorEvent struct {
	SessionID string `json:"sessionID"`
	Error     string `json:"error"`
}

// MessageUpdatedEvent carries a full message record
type MessageUpdatedEvent struct {
	Info Message `json:"info"`
}

// MessageRemovedEvent signals a message deletion
type MessageRemovedEvent struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
}

// PartUpdatedEvent carries a full part record
type PartUpdatedEvent struct {
	Part Part `json:"part"`
}

// PartRemovedEvent signals a part deletion
type PartRemovedEvent struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	PartID    string `json:"partID"`
}

// TodoUpdatedEvent replaces a session's todo list
type TodoUpdatedEvent struct {
	SessionID string `json:"sessionID"`
	Todos     []Todo `json:"todos"`
}

// DecodeEvent unmarshals an SSE payload into its typed event struct based
// on the event name. The delta payload decodes into *PartDelta; everything
// else into the matching *XxxEvent. Unknown event names return an error so
// the consumer can skip them without guessing at the payload shape.
func DecodeEvent(eventType string, data []byte) (interface{}, error) {
	var v interface{}

	switch eventType {
	case EventSessionUpdated:
		v = &SessionUpdatedEvent{}
	case EventSessionDeleted:
		v = &SessionDeletedEvent{}
	case EventSessionIdle:
		v = &SessionIdleEvent{}
	case EventSessionError:
		v = &SessionErrorEvent{}
	case EventMessageUpdated:
		v = &MessageUpdatedEvent{}
	case EventMessageRemoved:
		v = &MessageRemovedEvent{}
	case EventPartUpdated:
		v = &PartUpdatedEvent{}
	case EventPartDelta:
		v = &PartDelta{}
	case EventPartRemoved:
		v = &PartRemovedEvent{}
	case EventTodoUpdated:
		v = &TodoUpdatedEvent{}
	default:
		return nil, fmt.Errorf("unknown SSE event type: %s", eventType)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", eventType, err)
	}
	return v, nil
}

// FormatSSE formats an SSE event for transmission
// Returns a string in SSE format:
//   event: event_name
//   data: {"field": "value"}
//   \n
func FormatSSE(eventType string, data interface{}) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal SSE event data: %w", err)
	}

	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, string(jsonData)), nil
}
