package session

// DeltaField names a part field that streaming deltas may append to.
//
// The set is closed on purpose: the server streams token-by-token updates
// only into known string fields, and an explicit dispatch keeps a malformed
// event from poking arbitrary state. Anything outside the enum is dropped
// by ApplyDelta.
type DeltaField string

const (
	// DeltaFieldText appends to Part.Text (text and reasoning parts)
	DeltaFieldText DeltaField = "text"
	// DeltaFieldOutput appends to Part.State.Output (tool parts)
	DeltaFieldOutput DeltaField = "output"
)

// PartDelta is one incremental update on the event stream.
//
// Deltas are ephemeral: they are accumulated into Parts in memory and never
// stored themselves. A delta for a part the client has not seen carries too
// little information to rebuild anything but a text part, which is why
// Field matters to the consumer (see transport.Consumer).
type PartDelta struct {
	SessionID string     `json:"sessionID"`
	MessageID string     `json:"messageID"`
	PartID    string     `json:"partID"`
	Field     DeltaField `json:"field"`
	Delta     string     `json:"delta"`
}

// IsText returns true if the delta targets streamed text content
func (d *PartDelta) IsText() bool {
	return d.Field == DeltaFieldText
}

// ApplyDelta returns a copy of the part with the delta text appended to the
// named field, or (nil, false) when the field does not apply to this part
// type. The receiver is never mutated; stored parts stay immutable.
//
// Dispatch:
//   - text   -> Part.Text, valid for text and reasoning parts
//   - output -> Part.State.Output, valid for tool parts (a missing State
//     is created with a running status, since output implies execution)
func (p *Part) ApplyDelta(field DeltaField, delta string) (*Part, bool) {
	switch field {
	case DeltaFieldText:
		if !p.IsTextual() {
			return nil, false
		}
		cp := p.Clone()
		cp.Text += delta
		return cp, true

	case DeltaFieldOutput:
		if !p.IsTool() {
			return nil, false
		}
		cp := p.Clone()
		if cp.State == nil {
			cp.State = &ToolState{Status: ToolStatusRunning}
		}
		cp.State.Output += delta
		return cp, true

	default:
		return nil, false
	}
}
