package state

import (
	"testing"

	"sextant/internal/domain/models/session"
)

func TestListUpsertKeepsSortedUnique(t *testing.T) {
	var l List[*session.Part]

	l.Upsert(newTextPart("ses_1", "msg_1", "prt_c", "3"))
	l.Upsert(newTextPart("ses_1", "msg_1", "prt_a", "1"))
	l.Upsert(newTextPart("ses_1", "msg_1", "prt_b", "2"))
	// Same key replaces, never duplicates.
	l.Upsert(newTextPart("ses_1", "msg_1", "prt_a", "1-replaced"))

	items := l.Items()
	if len(items) != 3 {
		t.Fatalf("Len = %d, want 3", len(items))
	}
	for i, want := range []string{"prt_a", "prt_b", "prt_c"} {
		if items[i].ID != want {
			t.Errorf("items[%d].ID = %s, want %s", i, items[i].ID, want)
		}
	}
	if items[0].Text != "1-replaced" {
		t.Errorf("replaced record text = %q, want %q", items[0].Text, "1-replaced")
	}
}

func TestListUpsertSameReferenceIsNoOp(t *testing.T) {
	var l List[*session.Part]
	p := newTextPart("ses_1", "msg_1", "prt_a", "x")

	l.Upsert(p)
	rev := l.Revision()
	before := l.Items()

	if changed := l.Upsert(p); changed {
		t.Errorf("Upsert(same reference) = true, want false")
	}
	if l.Revision() != rev {
		t.Errorf("Revision = %d after redundant upsert, want %d", l.Revision(), rev)
	}
	after := l.Items()
	if &before[0] != &after[0] {
		t.Errorf("snapshot identity changed on redundant upsert")
	}
}

func TestListSnapshotSurvivesLaterWrites(t *testing.T) {
	var l List[*session.Part]
	l.Upsert(newTextPart("ses_1", "msg_1", "prt_a", "old"))
	snapshot := l.Items()

	l.Upsert(newTextPart("ses_1", "msg_1", "prt_a", "new"))
	l.Upsert(newTextPart("ses_1", "msg_1", "prt_b", "added"))

	if len(snapshot) != 1 {
		t.Fatalf("old snapshot len = %d, want 1", len(snapshot))
	}
	if snapshot[0].Text != "old" {
		t.Errorf("old snapshot text = %q, want %q", snapshot[0].Text, "old")
	}
	if got := l.Items(); len(got) != 2 || got[0].Text != "new" {
		t.Errorf("current snapshot = %v, want 2 items with prt_a replaced", got)
	}
}

func TestListRemove(t *testing.T) {
	var l List[*session.Part]
	l.Upsert(newTextPart("ses_1", "msg_1", "prt_a", "1"))
	l.Upsert(newTextPart("ses_1", "msg_1", "prt_b", "2"))
	rev := l.Revision()

	removed, ok := l.Remove("prt_a")
	if !ok || removed.ID != "prt_a" {
		t.Fatalf("Remove(prt_a) = (%v, %v), want the record and true", removed, ok)
	}
	if l.Len() != 1 || l.Items()[0].ID != "prt_b" {
		t.Errorf("after remove: %v, want only prt_b", l.Items())
	}
	if l.Revision() != rev+1 {
		t.Errorf("Revision = %d, want %d", l.Revision(), rev+1)
	}

	if _, ok := l.Remove("prt_ghost"); ok {
		t.Errorf("Remove(absent) = true, want false")
	}
	if l.Revision() != rev+1 {
		t.Errorf("Revision changed on absent remove")
	}
}

func TestListDropOldest(t *testing.T) {
	var l List[*session.Part]
	if _, ok := l.DropOldest(); ok {
		t.Errorf("DropOldest(empty) = true, want false")
	}

	l.Upsert(newTextPart("ses_1", "msg_1", "prt_b", "2"))
	l.Upsert(newTextPart("ses_1", "msg_1", "prt_a", "1"))

	dropped, ok := l.DropOldest()
	if !ok || dropped.ID != "prt_a" {
		t.Errorf("DropOldest() = (%v, %v), want prt_a and true", dropped, ok)
	}
}

func TestListReplaceKeepsLastDuplicate(t *testing.T) {
	var l List[*session.Part]
	l.Upsert(newTextPart("ses_1", "msg_1", "prt_z", "stale"))

	l.Replace([]*session.Part{
		newTextPart("ses_1", "msg_1", "prt_b", "b"),
		newTextPart("ses_1", "msg_1", "prt_a", "first"),
		newTextPart("ses_1", "msg_1", "prt_a", "last"),
	})

	items := l.Items()
	if len(items) != 2 {
		t.Fatalf("Len = %d, want 2 (prt_z gone, prt_a deduped)", len(items))
	}
	if items[0].ID != "prt_a" || items[0].Text != "last" {
		t.Errorf("items[0] = %s/%q, want prt_a with the later record", items[0].ID, items[0].Text)
	}
}

func TestStoreBatchUpsertMatchesSequential(t *testing.T) {
	ownerOf := func(p *session.Part) string { return p.MessageID }
	records := []*session.Part{
		newTextPart("ses_1", "msg_2", "prt_d", "d"),
		newTextPart("ses_1", "msg_1", "prt_b", "b"),
		newTextPart("ses_1", "msg_1", "prt_a", "a"),
		newTextPart("ses_1", "msg_1", "prt_b", "b-replaced"),
		newTextPart("ses_1", "msg_2", "prt_c", "c"),
	}

	batched := NewStore[*session.Part](ownerOf)
	batched.BatchUpsert(records)

	sequential := NewStore[*session.Part](ownerOf)
	for _, p := range records {
		sequential.Upsert(p)
	}

	for _, owner := range []string{"msg_1", "msg_2"} {
		got, want := batched.Items(owner), sequential.Items(owner)
		if len(got) != len(want) {
			t.Fatalf("owner %s: batch len = %d, sequential len = %d", owner, len(got), len(want))
		}
		for i := range got {
			if got[i] != want[i] {
				t.Errorf("owner %s item %d: batch %s/%q, sequential %s/%q",
					owner, i, got[i].ID, got[i].Text, want[i].ID, want[i].Text)
			}
		}
	}
}

func TestStoreBatchUpsertBumpsRevisionOncePerOwner(t *testing.T) {
	s := NewStore[*session.Part](func(p *session.Part) string { return p.MessageID })
	s.Upsert(newTextPart("ses_1", "msg_1", "prt_a", "a"))
	rev := s.Revision("msg_1")

	s.BatchUpsert([]*session.Part{
		newTextPart("ses_1", "msg_1", "prt_b", "b"),
		newTextPart("ses_1", "msg_1", "prt_c", "c"),
		newTextPart("ses_1", "msg_1", "prt_a", "a-replaced"),
	})

	if got := s.Revision("msg_1"); got != rev+1 {
		t.Errorf("Revision = %d after batch, want %d (one bump per owner)", got, rev+1)
	}

	// A batch that changes nothing must not bump at all.
	items := s.Items("msg_1")
	s.BatchUpsert([]*session.Part{items[0], items[1]})
	if got := s.Revision("msg_1"); got != rev+1 {
		t.Errorf("Revision = %d after no-op batch, want %d", got, rev+1)
	}
}

func TestStoreUnknownOwner(t *testing.T) {
	s := NewStore[*session.Part](func(p *session.Part) string { return p.MessageID })

	if items := s.Items("msg_ghost"); items != nil {
		t.Errorf("Items(unknown) = %v, want nil", items)
	}
	if rev := s.Revision("msg_ghost"); rev != 0 {
		t.Errorf("Revision(unknown) = %d, want 0", rev)
	}
	if _, ok := s.Find("msg_ghost", "prt_a"); ok {
		t.Errorf("Find(unknown) = true, want false")
	}
	if _, ok := s.Remove("msg_ghost", "prt_a"); ok {
		t.Errorf("Remove(unknown) = true, want false")
	}
}

func TestStoreDrop(t *testing.T) {
	s := NewStore[*session.Part](func(p *session.Part) string { return p.MessageID })
	s.Upsert(newTextPart("ses_1", "msg_1", "prt_a", "a"))
	s.Upsert(newTextPart("ses_1", "msg_2", "prt_b", "b"))

	s.Drop("msg_1")

	if items := s.Items("msg_1"); items != nil {
		t.Errorf("Items(msg_1) = %v after drop, want nil", items)
	}
	if got := s.Len("msg_2"); got != 1 {
		t.Errorf("Len(msg_2) = %d, want 1 (other owners untouched)", got)
	}
}
