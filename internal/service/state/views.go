package state

import (
	"sort"

	"sextant/internal/domain/models/session"
	sessionsvc "sextant/internal/domain/services/session"
)

// Agents returns the sub-agent sessions spawned under a parent session,
// sorted by id.
func (c *Coordinator) Agents(sessionID string) []*session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var agents []*session.Session
	for _, s := range c.sessions.Items() {
		if s.ParentID == sessionID {
			agents = append(agents, s)
		}
	}
	return agents
}

// Projects groups the top-level sessions by project id, project ids
// sorted, sessions within a group keeping their id order. Sub-agent
// sessions are reachable through Agents, not here.
func (c *Coordinator) Projects() []sessionsvc.ProjectGroup {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byProject := make(map[string][]*session.Session)
	for _, s := range c.sessions.Items() {
		if s.IsChild() {
			continue
		}
		byProject[s.ProjectID] = append(byProject[s.ProjectID], s)
	}

	ids := make([]string, 0, len(byProject))
	for id := range byProject {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	groups := make([]sessionsvc.ProjectGroup, 0, len(ids))
	for _, id := range ids {
		groups = append(groups, sessionsvc.ProjectGroup{
			ProjectID: id,
			Sessions:  byProject[id],
		})
	}
	return groups
}

// Waiting reports whether the session sits at a finished assistant reply
// the user has not answered yet: its newest loaded message is an
// assistant message that completed or errored.
func (c *Coordinator) Waiting(sessionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return waitingOn(c.messages.Items(sessionID))
}

// WaitingCount counts the sessions with loaded messages that are waiting
// on user input.
func (c *Coordinator) WaitingCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, list := range c.messages.lists {
		if waitingOn(list.Items()) {
			n++
		}
	}
	return n
}

func waitingOn(msgs []*session.Message) bool {
	if len(msgs) == 0 {
		return false
	}
	newest := msgs[len(msgs)-1]
	return newest.IsAssistant() && newest.IsCompleted()
}
