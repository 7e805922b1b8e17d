package session

import (
	"strings"

	"github.com/google/uuid"
)

// Id prefixes, one per record kind. The prefix keeps ids self-describing in
// logs; the UUIDv7 tail keeps them lexicographically sortable, which the
// ordered stores rely on for temporal ordering.
const (
	sessionIDPrefix = "ses"
	messageIDPrefix = "msg"
	partIDPrefix    = "prt"
)

// NewSessionID generates a sortable session id.
func NewSessionID() string { return newID(sessionIDPrefix) }

// NewMessageID generates a sortable message id. Used for optimistic sends:
// a v7 id created now sorts after every id the session already holds, so
// the placeholder lands at the end of the conversation.
func NewMessageID() string { return newID(messageIDPrefix) }

// NewPartID generates a sortable part id.
func NewPartID() string { return newID(partIDPrefix) }

func newID(prefix string) string {
	id := uuid.Must(uuid.NewV7())
	return prefix + "_" + strings.ReplaceAll(id.String(), "-", "")
}
