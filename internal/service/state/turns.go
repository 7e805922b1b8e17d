package state

import (
	"sort"
	"strconv"
	"strings"

	"sextant/internal/domain/models/session"
)

// entryFingerprint summarizes an entry coarsely enough to stay cheap and
// finely enough that anything a conversation view renders is covered:
// message id, completion time at second granularity, part count, last
// part id, total visible text length and per-tool status with output
// length. Token-level churn inside one second collapses to one value.
func entryFingerprint(e session.Entry) string {
	var b strings.Builder
	b.WriteString(e.Message.ID)
	b.WriteByte('|')

	var completed int64
	if t := e.Message.Time.Completed; t != nil {
		completed = *t / 1000
	}
	b.WriteString(strconv.FormatInt(completed, 10))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(len(e.Parts)))
	b.WriteByte('|')
	if n := len(e.Parts); n > 0 {
		b.WriteString(e.Parts[n-1].ID)
	}
	b.WriteByte('|')

	textLen := 0
	for _, p := range e.Parts {
		if p.IsTextual() {
			textLen += len(p.Text)
		}
	}
	b.WriteString(strconv.Itoa(textLen))

	for _, p := range e.Parts {
		if !p.IsTool() {
			continue
		}
		b.WriteByte('|')
		b.WriteString(p.ID)
		b.WriteByte(':')
		b.WriteString(p.ToolStatus())
		b.WriteByte(':')
		outLen := 0
		if p.State != nil {
			outLen = len(p.State.Output)
		}
		b.WriteString(strconv.Itoa(outLen))
	}
	return b.String()
}

// turnFingerprint covers the user entry plus every response entry.
func turnFingerprint(user session.Entry, responses []session.Entry) string {
	var b strings.Builder
	b.WriteString(entryFingerprint(user))
	for _, r := range responses {
		b.WriteByte(';')
		b.WriteString(entryFingerprint(r))
	}
	return b.String()
}

// GroupTurns folds ordered entries into turns: each user message opens a
// turn that absorbs the non-user entries following it, up to the next
// user message. An assistant whose parent id names a different user
// message is a sub-task response and is left out of the turn. Entries
// before the first user message belong to no turn.
//
// Turns whose fingerprint matches one from previous reuse that exact
// *Turn, so consumers holding the old slice see identical pointers for
// unchanged turns and only rebuild what actually changed.
func GroupTurns(entries []session.Entry, previous []*session.Turn) []*session.Turn {
	prevByFP := make(map[string]*session.Turn, len(previous))
	for _, t := range previous {
		prevByFP[t.Fingerprint] = t
	}

	var turns []*session.Turn
	i := 0
	for i < len(entries) && !entries[i].Message.IsUser() {
		i++
	}
	for i < len(entries) {
		user := entries[i]
		i++

		var responses []session.Entry
		for i < len(entries) && !entries[i].Message.IsUser() {
			e := entries[i]
			i++
			if e.Message.IsAssistant() && !e.Message.RespondsTo(user.Message.ID) {
				continue
			}
			responses = append(responses, e)
		}

		fp := turnFingerprint(user, responses)
		if prev, ok := prevByFP[fp]; ok {
			turns = append(turns, prev)
			continue
		}
		turns = append(turns, &session.Turn{
			ID:          user.Message.ID,
			User:        user,
			Responses:   responses,
			Fingerprint: fp,
		})
	}
	return turns
}

// Turns groups a session's messages into turns, merging live streaming
// parts over the committed ones so an in-flight response renders with its
// newest content. The previous grouping is cached per session and reused
// turn by turn through fingerprint matching.
func (c *Coordinator) Turns(sessionID string) []*session.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.entriesLocked(sessionID)
	turns := GroupTurns(entries, c.turnCache[sessionID])
	c.turnCache[sessionID] = turns
	return turns
}

// entriesLocked pairs each of the session's messages with its parts,
// live streaming versions replacing or extending the committed snapshot.
func (c *Coordinator) entriesLocked(sessionID string) []session.Entry {
	msgs := c.messages.Items(sessionID)
	live := c.overlay.ReadAll()
	entries := make([]session.Entry, 0, len(msgs))
	for _, m := range msgs {
		parts := c.parts.Items(m.ID)
		if lp := live[m.ID]; lp != nil {
			parts = mergeLive(parts, lp)
		}
		entries = append(entries, session.Entry{Message: m, Parts: parts})
	}
	return entries
}

// mergeLive overlays live parts onto the committed snapshot: matching ids
// replace in place, new ids join in sorted position. Returns a fresh
// slice, the committed snapshot is never touched.
func mergeLive(committed []*session.Part, live map[string]*session.Part) []*session.Part {
	merged := make([]*session.Part, len(committed), len(committed)+len(live))
	copy(merged, committed)

	seen := make(map[string]struct{}, len(live))
	for i, p := range merged {
		if lp, ok := live[p.ID]; ok {
			merged[i] = lp
			seen[p.ID] = struct{}{}
		}
	}
	for id, lp := range live {
		if _, ok := seen[id]; !ok {
			merged = append(merged, lp)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ID < merged[j].ID })
	return merged
}
