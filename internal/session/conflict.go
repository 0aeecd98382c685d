package session

import (
	"time"

	"github.com/dsj7419/cleo/internal/model"
)

type conflictKind int

const (
	conflictNone conflictKind = iota
	conflictSoft
	conflictHard
)

// classifyConflict compares two scopes. Hard: identical scopes (two globals
// included), one rooted scope inside the other, or custom sets where one
// covers the other. Soft: a global scope over any narrower one, or distinct
// rooted scopes under a shared ancestor.
func classifyConflict(todo *model.TodoFile, a, b model.Scope) conflictKind {
	if a.Type == model.ScopeGlobal && b.Type == model.ScopeGlobal {
		return conflictHard
	}
	// A global session coordinates; a narrower one works under it. Overlap
	// is tolerated as a soft conflict subject to policy.
	if a.Type == model.ScopeGlobal || b.Type == model.ScopeGlobal {
		return conflictSoft
	}

	ra, rb := a.Root(), b.Root()
	if ra != "" && rb != "" {
		if ra == rb {
			return conflictHard
		}
		if isAncestor(todo, ra, rb) || isAncestor(todo, rb, ra) {
			return conflictHard
		}
		if sharedAncestor(todo, ra, rb) {
			return conflictSoft
		}
		return conflictNone
	}

	// At least one custom scope: compare explicit task sets.
	sa := scopeTaskSet(todo, a)
	sb := scopeTaskSet(todo, b)
	shared := false
	for id := range sa {
		if sb[id] {
			shared = true
			break
		}
	}
	if !shared {
		return conflictNone
	}
	if sameSet(sa, sb) {
		return conflictHard
	}
	if containsSet(sa, sb) || containsSet(sb, sa) {
		return conflictHard
	}
	return conflictSoft
}

// checkScope validates that a scope's referenced tasks exist and fit the
// scope type.
func (m *Manager) checkScope(todo *model.TodoFile, scope model.Scope) error {
	switch scope.Type {
	case model.ScopeGlobal:
		return nil
	case model.ScopeEpic:
		t := todo.FindTask(scope.EpicID)
		if t == nil {
			return model.NewError(model.ErrNotFound, "epic %s not found", scope.EpicID).WithField("scope.epicId")
		}
		if t.Type != model.TypeEpic {
			return model.NewError(model.ErrInvalidInput,
				"task %s is a %s, not an epic", t.ID, t.Type).WithField("scope.epicId")
		}
		return nil
	case model.ScopeSubtree:
		if todo.FindTask(scope.RootID) == nil {
			return model.NewError(model.ErrNotFound, "task %s not found", scope.RootID).WithField("scope.rootId")
		}
		return nil
	case model.ScopeCustom:
		if len(scope.TaskIDs) == 0 {
			return model.NewError(model.ErrInvalidInput, "custom scope needs at least one task").
				WithField("scope.taskIds")
		}
		for _, id := range scope.TaskIDs {
			if todo.FindTask(id) == nil {
				return model.NewError(model.ErrNotFound, "task %s not found", id).WithField("scope.taskIds")
			}
		}
		return nil
	}
	return model.NewError(model.ErrInvalidInput, "unknown scope type %q", scope.Type).
		WithField("scope.type").WithAlternatives("global", "epic", "subtree", "custom")
}

// isAncestor reports whether ancestor sits on descendant's parent chain.
func isAncestor(todo *model.TodoFile, ancestor, descendant string) bool {
	cur := todo.FindTask(descendant)
	for hops := 0; cur != nil && cur.ParentID != "" && hops <= len(todo.Tasks); hops++ {
		if cur.ParentID == ancestor {
			return true
		}
		cur = todo.FindTask(cur.ParentID)
	}
	return false
}

// sharedAncestor reports whether two tasks have any common non-root ancestor.
func sharedAncestor(todo *model.TodoFile, a, b string) bool {
	seen := map[string]bool{}
	cur := todo.FindTask(a)
	for hops := 0; cur != nil && cur.ParentID != "" && hops <= len(todo.Tasks); hops++ {
		seen[cur.ParentID] = true
		cur = todo.FindTask(cur.ParentID)
	}
	cur = todo.FindTask(b)
	for hops := 0; cur != nil && cur.ParentID != "" && hops <= len(todo.Tasks); hops++ {
		if seen[cur.ParentID] {
			return true
		}
		cur = todo.FindTask(cur.ParentID)
	}
	return false
}

// scopeTaskSet expands a scope into its concrete task id set.
func scopeTaskSet(todo *model.TodoFile, scope model.Scope) map[string]bool {
	out := map[string]bool{}
	switch scope.Type {
	case model.ScopeCustom:
		for _, id := range scope.TaskIDs {
			out[id] = true
		}
	case model.ScopeEpic, model.ScopeSubtree:
		root := scope.Root()
		out[root] = true
		for _, d := range todo.Descendants(root) {
			out[d.ID] = true
		}
	case model.ScopeGlobal:
		for _, t := range todo.Tasks {
			out[t.ID] = true
		}
	}
	return out
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if !b[id] {
			return false
		}
	}
	return true
}

// containsSet reports whether outer covers every id in inner.
func containsSet(outer, inner map[string]bool) bool {
	if len(inner) == 0 {
		return false
	}
	for id := range inner {
		if !outer[id] {
			return false
		}
	}
	return true
}

// lastSessionActivity is the most recent timestamp a session touched
// anything: its start, its focus changes, or its notes.
func lastSessionActivity(s *model.Session) time.Time {
	last := s.StartedAt
	for _, h := range s.History {
		if h.SetAt.After(last) {
			last = h.SetAt
		}
		if h.ClearedAt != nil && h.ClearedAt.After(last) {
			last = *h.ClearedAt
		}
	}
	for _, n := range s.Notes {
		if n.TS.After(last) {
			last = n.TS
		}
	}
	return last
}

func daysToHours(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}
