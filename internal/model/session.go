package model

import "time"

// SessionStatus is the lifecycle state of an agent session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionSuspended SessionStatus = "suspended"
	SessionEnded     SessionStatus = "ended"
	SessionOrphaned  SessionStatus = "orphaned"
)

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionSuspended, SessionEnded, SessionOrphaned:
		return true
	}
	return false
}

// ScopeType tags the Scope union.
type ScopeType string

const (
	ScopeGlobal  ScopeType = "global"
	ScopeEpic    ScopeType = "epic"
	ScopeSubtree ScopeType = "subtree"
	ScopeCustom  ScopeType = "custom"
)

// Scope is the subset of the task graph a session may modify. Global scope
// covers everything; epic and subtree scopes are rooted at a task; custom
// scope names an explicit task set.
type Scope struct {
	Type    ScopeType `json:"type"`
	EpicID  string    `json:"epicId,omitempty"`
	RootID  string    `json:"rootId,omitempty"`
	TaskIDs []string  `json:"taskIds,omitempty"`
}

// Root returns the root task id of a rooted scope, or "" for global/custom.
func (s Scope) Root() string {
	switch s.Type {
	case ScopeEpic:
		return s.EpicID
	case ScopeSubtree:
		return s.RootID
	}
	return ""
}

// Focus is the single task a session is currently working on.
type Focus struct {
	TaskID string     `json:"taskId,omitempty"`
	SetAt  *time.Time `json:"setAt,omitempty"`
}

// FocusEntry is one append-only focus-history row. At most one row per
// session has ClearedAt == nil.
type FocusEntry struct {
	TaskID    string     `json:"taskId"`
	SetAt     time.Time  `json:"setAt"`
	ClearedAt *time.Time `json:"clearedAt"`
}

// Session is one agent working session against a project.
type Session struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Status  SessionStatus `json:"status"`
	Scope   Scope         `json:"scope"`
	Focus   Focus         `json:"focus"`
	Agent   string        `json:"agent,omitempty"`
	History []FocusEntry  `json:"focusHistory,omitempty"`

	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`

	Notes          []Note   `json:"notes,omitempty"`
	TasksCompleted []string `json:"tasksCompleted,omitempty"`
	TasksCreated   []string `json:"tasksCreated,omitempty"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	c.History = append([]FocusEntry(nil), s.History...)
	c.Notes = append([]Note(nil), s.Notes...)
	c.TasksCompleted = append([]string(nil), s.TasksCompleted...)
	c.TasksCreated = append([]string(nil), s.TasksCreated...)
	if s.EndedAt != nil {
		ts := *s.EndedAt
		c.EndedAt = &ts
	}
	if s.Focus.SetAt != nil {
		ts := *s.Focus.SetAt
		c.Focus.SetAt = &ts
	}
	return &c
}

// OpenFocusEntry returns the index of the history row with ClearedAt == nil,
// or -1 when the session has no open focus.
func (s *Session) OpenFocusEntry() int {
	for i := range s.History {
		if s.History[i].ClearedAt == nil {
			return i
		}
	}
	return -1
}
