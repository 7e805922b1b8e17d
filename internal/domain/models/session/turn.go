package session

// Entry pairs a message with its current parts for presentation. Both the
// message and the parts slice are immutable snapshots.
type Entry struct {
	Message *Message `json:"message"`
	Parts   []*Part  `json:"parts"`
}

// Turn groups one user message with the assistant responses it triggered.
// Turns are derived on read, never stored independently.
//
// Fingerprint is an opaque change-detection key: two turns with the same
// fingerprint render identically, so a consumer holding the previous
// grouping can skip unchanged turns without deep comparison. When a
// regrouping produces an identical fingerprint, the previous *Turn is
// returned as-is (structural sharing), so pointer comparison works too.
type Turn struct {
	ID          string  `json:"id"` // user message id
	User        Entry   `json:"user"`
	Responses   []Entry `json:"responses"`
	Fingerprint string  `json:"-"`
}

// LastResponse returns the newest assistant entry of the turn, or nil.
func (t *Turn) LastResponse() *Entry {
	if len(t.Responses) == 0 {
		return nil
	}
	return &t.Responses[len(t.Responses)-1]
}

// InProgress returns true if any response in the turn is still streaming
func (t *Turn) InProgress() bool {
	for i := range t.Responses {
		if !t.Responses[i].Message.IsCompleted() {
			return true
		}
	}
	return false
}
