// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package lockmgr

import "time"

// CheckDeadlock runs the manager's one-shot deadlock sweep: first it expires
// one held lock that has outlived its own timeout and, if it did, returns
// true at once; otherwise it builds the wait-for graph (holder -> waits-for(key) -> holder(key) -> holder') and
// searches it for a cycle via depth-first traversal with a recursion stack.
// On finding a cycle it releases exactly one lock in the cycle and returns
// true. Per §9 DESIGN NOTES, this normalises the legacy semantics so that
// either corrective action — a timeout release or a cycle break — reports
// true; only a sweep that changes nothing returns false.
//
// The sweep itself is rate-limited to the manager's configured interval
// unless force is true, which always runs it (the explicit-request carve-out
// from §9 DESIGN NOTES, "Deadlock sweep cadence").
func (m *Manager) CheckDeadlock(force bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if !force && now.Sub(m.lastSweep) < m.deadlockInterval {
		return false
	}
	m.lastSweep = now

	if m.expireOneLocked(now) {
		return true
	}

	return m.breakOneCycleLocked()
}

// expireOneLocked releases one held lock whose hold duration exceeds its own
// timeout; when several qualify, which one is released follows map iteration
// order and is not deterministic. Returns true if it released one.
func (m *Manager) expireOneLocked(now time.Time) bool {
	for key, s := range m.keys {
		if s.hasDeadln && s.timeout > 0 && now.Sub(s.acquired) > s.timeout {
			delete(m.keys, key)
			m.cond.Broadcast()
			return true
		}
	}
	return false
}

// breakOneCycleLocked composes the wait-for graph and searches for a cycle.
// m.mu is already held by the caller.
func (m *Manager) breakOneCycleLocked() bool {
	// holderOf[key] is who currently owns key (the write holder, or an
	// arbitrary reader — any reader blocks a waiting writer just the same).
	holderOf := make(map[string]string, len(m.keys))
	for key, s := range m.keys {
		if s.writer != "" {
			holderOf[key] = s.writer
		} else {
			for r := range s.readers {
				holderOf[key] = r
				break
			}
		}
	}

	waitFor := make(map[string]map[string]struct{}, len(m.waiting))
	for holder, keys := range m.waiting {
		for key := range keys {
			owner, ok := holderOf[key]
			if !ok || owner == holder {
				continue
			}
			set, ok := waitFor[holder]
			if !ok {
				set = make(map[string]struct{})
				waitFor[holder] = set
			}
			set[owner] = struct{}{}
		}
	}

	visited := make(map[string]bool, len(waitFor))
	for holder := range waitFor {
		if visited[holder] {
			continue
		}
		if cycle := findCycle(holder, waitFor, visited, make(map[string]bool)); cycle != "" {
			return m.releaseVictimLocked(cycle)
		}
	}
	return false
}

// findCycle performs a DFS from holder over the wait-for graph, maintaining
// a recursion stack. It returns the holder ID that closes a cycle (the
// chosen victim), or "" if no cycle is reachable from holder.
func findCycle(holder string, waitFor map[string]map[string]struct{}, visited, recStack map[string]bool) string {
	visited[holder] = true
	recStack[holder] = true

	for next := range waitFor[holder] {
		if recStack[next] {
			return next
		}
		if !visited[next] {
			if v := findCycle(next, waitFor, visited, recStack); v != "" {
				return v
			}
		}
	}

	recStack[holder] = false
	return ""
}

// releaseVictimLocked releases one lock currently held by victim, breaking a
// detected cycle. If the victim holds several keys, which one is released
// follows map iteration order and is not deterministic.
func (m *Manager) releaseVictimLocked(victim string) bool {
	for key, s := range m.keys {
		if s.writer == victim {
			delete(m.keys, key)
			m.cond.Broadcast()
			return true
		}
		if _, ok := s.readers[victim]; ok {
			delete(s.readers, victim)
			if len(s.readers) == 0 && s.writer == "" {
				delete(m.keys, key)
			}
			m.cond.Broadcast()
			return true
		}
	}
	return false
}
