package state

import (
	"sort"
)

// Keyed constrains the records the ordered stores hold: pointer records
// with a stable, unique, lexicographically sortable key.
type Keyed interface {
	comparable
	Key() string
}

// List is one owner's records sorted ascending by key, plus a revision
// counter that changes exactly when the snapshot does. Mutations are
// copy-on-write: the backing array is never edited in place, so a snapshot
// handed out by Items stays valid forever and consumers can compare
// revisions (or slice identity) instead of contents.
//
// Thread-safety: NOT thread-safe. Lists are owned by the Coordinator,
// which serializes all access.
type List[T Keyed] struct {
	items []T
	rev   uint64
}

// search returns the index where key sits or would be inserted.
func (l *List[T]) search(key string) (int, bool) {
	i := sort.Search(len(l.items), func(i int) bool { return l.items[i].Key() >= key })
	if i < len(l.items) && l.items[i].Key() == key {
		return i, true
	}
	return i, false
}

// Upsert inserts or replaces the record, keeping the list sorted. An
// upsert of the exact reference already stored is a no-op: no copy, no
// revision bump, so redundant events cost nothing downstream. Returns
// whether the list changed.
func (l *List[T]) Upsert(v T) bool {
	i, found := l.search(v.Key())
	if found {
		if l.items[i] == v {
			return false
		}
		next := make([]T, len(l.items))
		copy(next, l.items)
		next[i] = v
		l.items = next
	} else {
		next := make([]T, len(l.items)+1)
		copy(next, l.items[:i])
		next[i] = v
		copy(next[i+1:], l.items[i:])
		l.items = next
	}
	l.rev++
	return true
}

// applyBatch upserts many records through a single working copy, bumping
// the revision at most once. End state is identical to sequential Upsert
// calls in the same order.
func (l *List[T]) applyBatch(vs []T) bool {
	work := make([]T, len(l.items), len(l.items)+len(vs))
	copy(work, l.items)
	changed := false

	for _, v := range vs {
		key := v.Key()
		i := sort.Search(len(work), func(i int) bool { return work[i].Key() >= key })
		if i < len(work) && work[i].Key() == key {
			if work[i] == v {
				continue
			}
			work[i] = v
		} else {
			work = append(work, v)
			copy(work[i+1:], work[i:])
			work[i] = v
		}
		changed = true
	}

	if !changed {
		return false
	}
	l.items = work
	l.rev++
	return true
}

// Replace swaps in a whole new record set (hydrate fast path). Input order
// does not matter; duplicate keys keep the last occurrence.
func (l *List[T]) Replace(vs []T) {
	next := make([]T, len(vs))
	copy(next, vs)
	sort.SliceStable(next, func(i, j int) bool { return next[i].Key() < next[j].Key() })

	// Dedup adjacent keys, keeping the later record.
	out := next[:0]
	for i, v := range next {
		if i+1 < len(next) && next[i+1].Key() == v.Key() {
			continue
		}
		out = append(out, v)
	}
	l.items = out
	l.rev++
}

// Remove splices the record out. Absent keys are a no-op.
func (l *List[T]) Remove(key string) (T, bool) {
	var zero T
	i, found := l.search(key)
	if !found {
		return zero, false
	}
	removed := l.items[i]
	next := make([]T, len(l.items)-1)
	copy(next, l.items[:i])
	copy(next[i:], l.items[i+1:])
	l.items = next
	l.rev++
	return removed, true
}

// DropOldest removes the lowest-key record (eviction).
func (l *List[T]) DropOldest() (T, bool) {
	var zero T
	if len(l.items) == 0 {
		return zero, false
	}
	return l.Remove(l.items[0].Key())
}

// Items returns the current snapshot. Callers must not mutate it.
func (l *List[T]) Items() []T { return l.items }

// Find returns the record with the given key.
func (l *List[T]) Find(key string) (T, bool) {
	if i, ok := l.search(key); ok {
		return l.items[i], true
	}
	var zero T
	return zero, false
}

// Len returns the record count.
func (l *List[T]) Len() int { return len(l.items) }

// Revision returns the change counter. It increases on every snapshot
// change and never otherwise.
func (l *List[T]) Revision() uint64 { return l.rev }

// Store holds one List per owner key (messages per session, parts per
// message). The owner of a record is derived by the function fixed at
// construction, so batch upserts can group records per owner before
// touching any list.
//
// Thread-safety: NOT thread-safe; owned by the Coordinator.
type Store[T Keyed] struct {
	ownerOf func(T) string
	lists   map[string]*List[T]
}

// NewStore creates a store whose records belong to ownerOf(record).
func NewStore[T Keyed](ownerOf func(T) string) *Store[T] {
	return &Store[T]{
		ownerOf: ownerOf,
		lists:   make(map[string]*List[T]),
	}
}

// list returns the owner's list, creating it on first use.
func (s *Store[T]) list(owner string) *List[T] {
	l, ok := s.lists[owner]
	if !ok {
		l = &List[T]{}
		s.lists[owner] = l
	}
	return l
}

// Upsert routes the record to its owner's list.
func (s *Store[T]) Upsert(v T) bool {
	return s.list(s.ownerOf(v)).Upsert(v)
}

// BatchUpsert groups records by owner first, then applies one batched
// merge per owner. Produces the same end state as sequential Upsert calls
// in the same order.
func (s *Store[T]) BatchUpsert(vs []T) {
	if len(vs) == 0 {
		return
	}
	groups := make(map[string][]T)
	order := make([]string, 0, 1)
	for _, v := range vs {
		owner := s.ownerOf(v)
		if _, ok := groups[owner]; !ok {
			order = append(order, owner)
		}
		groups[owner] = append(groups[owner], v)
	}
	for _, owner := range order {
		s.list(owner).applyBatch(groups[owner])
	}
}

// Replace swaps an owner's whole list (hydrate fast path).
func (s *Store[T]) Replace(owner string, vs []T) {
	s.list(owner).Replace(vs)
}

// Remove splices one record out of an owner's list.
func (s *Store[T]) Remove(owner, key string) (T, bool) {
	if l, ok := s.lists[owner]; ok {
		return l.Remove(key)
	}
	var zero T
	return zero, false
}

// Drop deletes an owner's entire list (cascade deletion).
func (s *Store[T]) Drop(owner string) {
	delete(s.lists, owner)
}

// Items returns an owner's snapshot, nil for unknown owners.
func (s *Store[T]) Items(owner string) []T {
	if l, ok := s.lists[owner]; ok {
		return l.Items()
	}
	return nil
}

// Find looks a record up by owner and key.
func (s *Store[T]) Find(owner, key string) (T, bool) {
	if l, ok := s.lists[owner]; ok {
		return l.Find(key)
	}
	var zero T
	return zero, false
}

// Len returns an owner's record count.
func (s *Store[T]) Len(owner string) int {
	if l, ok := s.lists[owner]; ok {
		return l.Len()
	}
	return 0
}

// Revision returns an owner's change counter, 0 for unknown owners.
func (s *Store[T]) Revision(owner string) uint64 {
	if l, ok := s.lists[owner]; ok {
		return l.Revision()
	}
	return 0
}
