package state

import (
	"fmt"
	"testing"
	"time"

	"sextant/internal/domain/models/session"
	sessionsvc "sextant/internal/domain/services/session"
)

// Coordinator must keep satisfying the state contract.
var _ sessionsvc.State = (*Coordinator)(nil)

func newUserMsg(sessionID, id string) *session.Message {
	return &session.Message{
		ID:        id,
		SessionID: sessionID,
		Role:      session.RoleUser,
		Time:      session.MessageTime{Created: 1700000000000},
	}
}

func newAssistantMsg(sessionID, id, parentID string) *session.Message {
	return &session.Message{
		ID:        id,
		SessionID: sessionID,
		Role:      session.RoleAssistant,
		ParentID:  parentID,
		Time:      session.MessageTime{Created: 1700000000000},
	}
}

func newTextPart(sessionID, messageID, id, text string) *session.Part {
	return &session.Part{
		ID:        id,
		MessageID: messageID,
		SessionID: sessionID,
		Type:      session.PartTypeText,
		Text:      text,
	}
}

func newToolPart(sessionID, messageID, id, status, output string) *session.Part {
	return &session.Part{
		ID:        id,
		MessageID: messageID,
		SessionID: sessionID,
		Type:      session.PartTypeTool,
		Tool:      "bash",
		State:     &session.ToolState{Status: status, Output: output},
	}
}

func completedAt(ms int64) *int64 { return &ms }

func newTestCoordinator() *Coordinator {
	return NewCoordinator(0, time.Millisecond, nil)
}

func TestHydrateEmptyStoreInstallsSnapshot(t *testing.T) {
	c := newTestCoordinator()

	// Out of order on purpose; the store sorts by id.
	c.Hydrate("ses_1",
		[]*session.Message{
			newAssistantMsg("ses_1", "msg_b", "msg_a"),
			newUserMsg("ses_1", "msg_a"),
		},
		map[string][]*session.Part{
			"msg_a": {newTextPart("ses_1", "msg_a", "prt_1", "hi")},
			"msg_b": {newTextPart("ses_1", "msg_b", "prt_2", "hello")},
		},
	)

	msgs := c.Messages("ses_1")
	if len(msgs) != 2 {
		t.Fatalf("Messages() len = %d, want 2", len(msgs))
	}
	if msgs[0].ID != "msg_a" || msgs[1].ID != "msg_b" {
		t.Errorf("Messages() order = [%s %s], want [msg_a msg_b]", msgs[0].ID, msgs[1].ID)
	}
	if parts := c.Parts("msg_b"); len(parts) != 1 || parts[0].Text != "hello" {
		t.Errorf("Parts(msg_b) = %v, want one part with text %q", parts, "hello")
	}
}

func TestHydrateMergePreservesLocalState(t *testing.T) {
	c := newTestCoordinator()

	// Local state arrived from the live stream before the fetch returned.
	local := newAssistantMsg("ses_1", "msg_a", "")
	local.ModelID = "local"
	c.UpsertMessage(local)
	c.UpsertPart(newTextPart("ses_1", "msg_a", "prt_1", "streamed"))

	fetched := newAssistantMsg("ses_1", "msg_a", "")
	fetched.ModelID = "fetched"
	c.Hydrate("ses_1",
		[]*session.Message{fetched, newUserMsg("ses_1", "msg_0")},
		map[string][]*session.Part{
			"msg_a": {newTextPart("ses_1", "msg_a", "prt_1", "stale"), newTextPart("ses_1", "msg_a", "prt_2", "stale")},
			"msg_0": {newTextPart("ses_1", "msg_0", "prt_0", "question")},
		},
	)

	msgs := c.Messages("ses_1")
	if len(msgs) != 2 {
		t.Fatalf("Messages() len = %d, want 2", len(msgs))
	}

	// The streamed message wins over the fetched duplicate.
	if got, _ := findMsg(msgs, "msg_a"); got.ModelID != "local" {
		t.Errorf("msg_a ModelID = %q, want %q", got.ModelID, "local")
	}
	// Streamed parts win: the fetched two-part snapshot is discarded.
	if parts := c.Parts("msg_a"); len(parts) != 1 || parts[0].Text != "streamed" {
		t.Errorf("Parts(msg_a) = %v, want the single streamed part", parts)
	}
	// The message the stream never saw takes its fetched parts.
	if parts := c.Parts("msg_0"); len(parts) != 1 || parts[0].Text != "question" {
		t.Errorf("Parts(msg_0) = %v, want the fetched part", parts)
	}
}

func findMsg(msgs []*session.Message, id string) (*session.Message, bool) {
	for _, m := range msgs {
		if m.ID == id {
			return m, true
		}
	}
	return nil, false
}

func TestUpsertMessageReplacesOptimisticPlaceholder(t *testing.T) {
	c := newTestCoordinator()

	placeholder := newUserMsg("ses_1", "msg_local")
	placeholder.Optimistic = true
	c.UpsertMessage(placeholder)
	c.UpsertPart(newTextPart("ses_1", "msg_local", "prt_l", "hi there"))

	c.UpsertMessage(newUserMsg("ses_1", "msg_server"))

	msgs := c.Messages("ses_1")
	if len(msgs) != 1 {
		t.Fatalf("Messages() len = %d, want 1", len(msgs))
	}
	if msgs[0].ID != "msg_server" {
		t.Errorf("surviving message = %s, want msg_server", msgs[0].ID)
	}
	if parts := c.Parts("msg_local"); parts != nil {
		t.Errorf("Parts(msg_local) = %v, want nil after placeholder removal", parts)
	}
}

func TestUpsertMessageSameIDConfirmKeepsParts(t *testing.T) {
	c := newTestCoordinator()

	placeholder := newUserMsg("ses_1", "msg_u1")
	placeholder.Optimistic = true
	c.UpsertMessage(placeholder)
	c.UpsertPart(newTextPart("ses_1", "msg_u1", "prt_1", "hi there"))

	// Server echoes the same id back as the confirmed record.
	c.UpsertMessage(newUserMsg("ses_1", "msg_u1"))

	msgs := c.Messages("ses_1")
	if len(msgs) != 1 {
		t.Fatalf("Messages() len = %d, want 1", len(msgs))
	}
	if msgs[0].Optimistic {
		t.Errorf("confirmed message still marked optimistic")
	}
	if parts := c.Parts("msg_u1"); len(parts) != 1 {
		t.Errorf("Parts(msg_u1) len = %d, want 1 (parts must survive same-id confirm)", len(parts))
	}
}

func TestMessageCapEvictsOldestWithParts(t *testing.T) {
	c := NewCoordinator(200, time.Millisecond, nil)

	for i := 1; i <= 200; i++ {
		id := fmt.Sprintf("msg_%03d", i)
		c.UpsertMessage(newUserMsg("ses_1", id))
		c.UpsertPart(newTextPart("ses_1", id, "prt_"+id, "x"))
	}
	if got := len(c.Messages("ses_1")); got != 200 {
		t.Fatalf("Messages() len = %d, want 200", got)
	}

	c.UpsertMessage(newUserMsg("ses_1", "msg_201"))

	msgs := c.Messages("ses_1")
	if len(msgs) != 200 {
		t.Fatalf("Messages() len after cap = %d, want 200", len(msgs))
	}
	if msgs[0].ID != "msg_002" {
		t.Errorf("oldest surviving message = %s, want msg_002", msgs[0].ID)
	}
	if parts := c.Parts("msg_001"); parts != nil {
		t.Errorf("Parts(msg_001) = %v, want nil after eviction", parts)
	}
	if parts := c.Parts("msg_002"); len(parts) != 1 {
		t.Errorf("Parts(msg_002) len = %d, want 1 (survivor keeps its parts)", len(parts))
	}
}

func TestApplyPartDeltaAccumulatesText(t *testing.T) {
	c := newTestCoordinator()
	c.UpsertMessage(newAssistantMsg("ses_1", "msg_a1", ""))
	c.UpsertPart(newTextPart("ses_1", "msg_a1", "prt_p1", ""))

	if !c.ApplyPartDelta("msg_a1", "prt_p1", session.DeltaFieldText, "Hello") {
		t.Fatalf("ApplyPartDelta(Hello) = false, want true")
	}
	if !c.ApplyPartDelta("msg_a1", "prt_p1", session.DeltaFieldText, " world") {
		t.Fatalf("ApplyPartDelta( world) = false, want true")
	}

	parts := c.Parts("msg_a1")
	if len(parts) != 1 {
		t.Fatalf("Parts() len = %d, want 1", len(parts))
	}
	if parts[0].Text != "Hello world" {
		t.Errorf("part text = %q, want %q", parts[0].Text, "Hello world")
	}

	// Overlay holds the same live version until the stream settles.
	live := c.StreamingOverlay("msg_a1")
	if live == nil || live["prt_p1"] == nil || live["prt_p1"].Text != "Hello world" {
		t.Errorf("StreamingOverlay() = %v, want live prt_p1 with accumulated text", live)
	}
}

func TestApplyPartDeltaUnknownPartIsNoOp(t *testing.T) {
	c := newTestCoordinator()
	c.UpsertMessage(newAssistantMsg("ses_1", "msg_a1", ""))
	c.UpsertPart(newTextPart("ses_1", "msg_a1", "prt_p1", "hi"))
	rev := c.messages.Revision("ses_1")

	if c.ApplyPartDelta("msg_a1", "prt_ghost", session.DeltaFieldText, "x") {
		t.Errorf("ApplyPartDelta(unknown part) = true, want false")
	}
	if c.ApplyPartDelta("msg_ghost", "prt_p1", session.DeltaFieldText, "x") {
		t.Errorf("ApplyPartDelta(unknown message) = true, want false")
	}
	if got := c.messages.Revision("ses_1"); got != rev {
		t.Errorf("revision changed on no-op delta: %d -> %d", rev, got)
	}
	if parts := c.Parts("msg_a1"); parts[0].Text != "hi" {
		t.Errorf("part text = %q, want untouched %q", parts[0].Text, "hi")
	}
}

func TestApplyPartDeltaFieldRules(t *testing.T) {
	tests := []struct {
		name  string
		part  *session.Part
		field session.DeltaField
		want  bool
	}{
		{"text delta on text part", newTextPart("ses_1", "msg_1", "prt_1", ""), session.DeltaFieldText, true},
		{"text delta on tool part", newToolPart("ses_1", "msg_1", "prt_1", session.ToolStatusRunning, ""), session.DeltaFieldText, false},
		{"output delta on tool part", newToolPart("ses_1", "msg_1", "prt_1", session.ToolStatusRunning, ""), session.DeltaFieldOutput, true},
		{"output delta on text part", newTextPart("ses_1", "msg_1", "prt_1", ""), session.DeltaFieldOutput, false},
		{"unknown field", newTextPart("ses_1", "msg_1", "prt_1", ""), session.DeltaField("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCoordinator()
			c.UpsertMessage(newAssistantMsg("ses_1", "msg_1", ""))
			c.UpsertPart(tt.part)

			got := c.ApplyPartDelta("msg_1", "prt_1", tt.field, "chunk")
			if got != tt.want {
				t.Errorf("ApplyPartDelta() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyPartDeltaOutputAccumulates(t *testing.T) {
	c := newTestCoordinator()
	c.UpsertMessage(newAssistantMsg("ses_1", "msg_1", ""))
	c.UpsertPart(newToolPart("ses_1", "msg_1", "prt_t", session.ToolStatusRunning, "$ ls"))

	c.ApplyPartDelta("msg_1", "prt_t", session.DeltaFieldOutput, "\nmain.go")
	c.ApplyPartDelta("msg_1", "prt_t", session.DeltaFieldOutput, "\nutil.go")

	parts := c.Parts("msg_1")
	if want := "$ ls\nmain.go\nutil.go"; parts[0].State.Output != want {
		t.Errorf("tool output = %q, want %q", parts[0].State.Output, want)
	}
	if parts[0].State.Status != session.ToolStatusRunning {
		t.Errorf("tool status = %q, want running preserved", parts[0].State.Status)
	}
}

func TestApplyPartDeltaUsesNewestVersion(t *testing.T) {
	c := newTestCoordinator()
	c.UpsertMessage(newAssistantMsg("ses_1", "msg_1", ""))
	c.UpsertPart(newTextPart("ses_1", "msg_1", "prt_1", ""))
	c.ApplyPartDelta("msg_1", "prt_1", session.DeltaFieldText, "Hel")

	// A full snapshot lands mid-stream and supersedes the live copy.
	c.UpsertPart(newTextPart("ses_1", "msg_1", "prt_1", "Hello"))
	c.ApplyPartDelta("msg_1", "prt_1", session.DeltaFieldText, " world")

	parts := c.Parts("msg_1")
	if parts[0].Text != "Hello world" {
		t.Errorf("part text = %q, want %q (delta must extend the newest snapshot)", parts[0].Text, "Hello world")
	}
}

func TestFlushStreamingDrainsOverlay(t *testing.T) {
	c := newTestCoordinator()
	c.UpsertMessage(newAssistantMsg("ses_1", "msg_1", ""))
	c.UpsertPart(newTextPart("ses_1", "msg_1", "prt_1", ""))
	c.ApplyPartDelta("msg_1", "prt_1", session.DeltaFieldText, "Hello world")

	if c.StreamingOverlay("msg_1") == nil {
		t.Fatalf("StreamingOverlay() = nil, want live entry before flush")
	}

	before := c.StreamingVersion("ses_1")
	c.FlushStreaming()

	if c.StreamingOverlay("msg_1") != nil {
		t.Errorf("StreamingOverlay() = non-nil after flush, want nil")
	}
	if parts := c.Parts("msg_1"); len(parts) != 1 || parts[0].Text != "Hello world" {
		t.Errorf("Parts() after flush = %v, want the accumulated part", parts)
	}
	if got := c.StreamingVersion("ses_1"); got <= before {
		t.Errorf("StreamingVersion() = %d, want > %d (flush notifies immediately)", got, before)
	}
}

func TestRemoveMessageCascades(t *testing.T) {
	c := newTestCoordinator()
	c.UpsertMessage(newUserMsg("ses_1", "msg_1"))
	c.UpsertMessage(newAssistantMsg("ses_1", "msg_2", "msg_1"))
	c.UpsertPart(newTextPart("ses_1", "msg_2", "prt_1", ""))
	c.ApplyPartDelta("msg_2", "prt_1", session.DeltaFieldText, "live")

	c.RemoveMessage("ses_1", "msg_2")

	if got := len(c.Messages("ses_1")); got != 1 {
		t.Errorf("Messages() len = %d, want 1", got)
	}
	if parts := c.Parts("msg_2"); parts != nil {
		t.Errorf("Parts(msg_2) = %v, want nil after remove", parts)
	}
	if live := c.StreamingOverlay("msg_2"); live != nil {
		t.Errorf("StreamingOverlay(msg_2) = %v, want nil after remove", live)
	}

	// Unknown ids change nothing.
	c.RemoveMessage("ses_1", "msg_ghost")
	c.RemoveMessage("ses_ghost", "msg_1")
	if got := len(c.Messages("ses_1")); got != 1 {
		t.Errorf("Messages() len after unknown removes = %d, want 1", got)
	}
}

func TestRemovePart(t *testing.T) {
	c := newTestCoordinator()
	c.UpsertMessage(newAssistantMsg("ses_1", "msg_1", ""))
	c.UpsertPart(newTextPart("ses_1", "msg_1", "prt_1", "a"))
	c.UpsertPart(newTextPart("ses_1", "msg_1", "prt_2", "b"))
	c.ApplyPartDelta("msg_1", "prt_2", session.DeltaFieldText, "c")

	c.RemovePart("msg_1", "prt_2")

	parts := c.Parts("msg_1")
	if len(parts) != 1 || parts[0].ID != "prt_1" {
		t.Errorf("Parts() = %v, want only prt_1", parts)
	}
	if live := c.StreamingOverlay("msg_1"); live != nil {
		t.Errorf("StreamingOverlay() = %v, want nil after removing the only live part", live)
	}
}

func TestRemoveSessionCascades(t *testing.T) {
	c := newTestCoordinator()
	c.UpsertSession(&session.Session{ID: "ses_1", ProjectID: "proj_1"})
	c.UpsertMessage(newUserMsg("ses_1", "msg_1"))
	c.UpsertPart(newTextPart("ses_1", "msg_1", "prt_1", "x"))
	c.SetTodos("ses_1", []session.Todo{{ID: "todo_1", Content: "ship it", Status: session.TodoStatusPending}})

	c.RemoveSession("ses_1")

	if got := len(c.Sessions()); got != 0 {
		t.Errorf("Sessions() len = %d, want 0", got)
	}
	if msgs := c.Messages("ses_1"); msgs != nil {
		t.Errorf("Messages() = %v, want nil", msgs)
	}
	if parts := c.Parts("msg_1"); parts != nil {
		t.Errorf("Parts() = %v, want nil", parts)
	}
	if todos := c.Todos("ses_1"); todos != nil {
		t.Errorf("Todos() = %v, want nil", todos)
	}
}

func TestUpsertPartUnknownMessageDropped(t *testing.T) {
	c := newTestCoordinator()

	// No message record exists, so the part must not create orphan state.
	c.UpsertPart(newTextPart("ses_1", "msg_ghost", "prt_1", "late"))
	if parts := c.Parts("msg_ghost"); parts != nil {
		t.Errorf("Parts(msg_ghost) = %v, want nil", parts)
	}

	// Same for an evicted message: its stream may still be in flight.
	c.UpsertMessage(newUserMsg("ses_1", "msg_1"))
	c.RemoveMessage("ses_1", "msg_1")
	c.BatchUpsertParts([]*session.Part{newTextPart("ses_1", "msg_1", "prt_1", "late")})
	if parts := c.Parts("msg_1"); parts != nil {
		t.Errorf("Parts(msg_1) = %v, want nil after removal", parts)
	}
}

func TestUpsertMessageSameReferenceKeepsRevision(t *testing.T) {
	c := newTestCoordinator()
	m := newUserMsg("ses_1", "msg_1")
	c.UpsertMessage(m)
	rev := c.MessagesRevision("ses_1")

	c.UpsertMessage(m)

	if got := c.MessagesRevision("ses_1"); got != rev {
		t.Errorf("MessagesRevision() = %d after redundant upsert, want %d", got, rev)
	}
}
