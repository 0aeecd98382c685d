// Package session manages agent working sessions: start/end lifecycle, scope
// conflict detection between concurrent sessions, the single-focus rule with
// its append-only history, and garbage collection of expired sessions.
package session

import (
	"fmt"
	"time"

	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/model"
	"github.com/dsj7419/cleo/internal/validate"
)

// Manager applies session transformations under one config and clock.
type Manager struct {
	cfg   config.Config
	clock model.Clock
}

// NewManager constructs a Manager.
func NewManager(cfg config.Config, clock model.Clock) *Manager {
	return &Manager{cfg: cfg, clock: clock}
}

// StartRequest opens a new session.
type StartRequest struct {
	Name  string
	Agent string
	Scope model.Scope

	// AllowSoftConflict overrides the configured soft-conflict policy for
	// this start only.
	AllowSoftConflict bool
}

// StartResult carries the new session plus any soft-conflict warnings that
// were tolerated.
type StartResult struct {
	Session  *model.Session
	Warnings []string
}

// Start validates the scope against the task graph, checks it against every
// active session, and appends the new session. A hard conflict (identical
// scope, or one rooted scope containing the other) refuses; a soft conflict
// (a global scope over a narrower one, or distinct subtrees under a shared
// ancestor) warns and proceeds when the policy allows it.
func (m *Manager) Start(sessions *model.SessionsFile, todo *model.TodoFile, req StartRequest) (*StartResult, error) {
	if err := m.checkScope(todo, req.Scope); err != nil {
		return nil, err
	}

	var warnings []string
	for _, other := range sessions.ActiveSessions() {
		switch classifyConflict(todo, req.Scope, other.Scope) {
		case conflictHard:
			return nil, model.NewError(model.ErrStateConflict,
				"scope conflicts with active session %s (%s)", other.ID, other.Name).
				WithFix("end or suspend the conflicting session, or narrow the scope").
				WithAlternatives("end", "suspend", "narrow scope")
		case conflictSoft:
			if !m.cfg.SoftConflictAllowed && !req.AllowSoftConflict {
				return nil, model.NewError(model.ErrStateConflict,
					"scope overlaps active session %s (%s)", other.ID, other.Name).
					WithFix("pass --allow-overlap or enable softConflictAllowed")
			}
			warnings = append(warnings,
				fmt.Sprintf("scope overlaps active session %s (%s)", other.ID, other.Name))
		}
	}

	now := m.clock.Now()
	s := &model.Session{
		ID:        model.NewSessionID(now),
		Name:      req.Name,
		Status:    model.SessionActive,
		Scope:     req.Scope,
		Agent:     req.Agent,
		StartedAt: now,
	}
	sessions.Sessions = append(sessions.Sessions, s)
	return &StartResult{Session: s, Warnings: warnings}, nil
}

// End closes a session, clearing any open focus first.
func (m *Manager) End(sessions *model.SessionsFile, id string) (*model.Session, error) {
	s := sessions.FindSession(id)
	if s == nil {
		return nil, model.NewError(model.ErrNotFound, "session %s not found", id)
	}
	if s.Status == model.SessionEnded {
		return s, nil // idempotent
	}

	now := m.clock.Now()
	m.clearFocus(s, now)
	s.Status = model.SessionEnded
	ts := now
	s.EndedAt = &ts
	return s, nil
}

// Suspend pauses an active session without closing its focus history; the
// open focus row stays open so Resume picks up where the session left off.
func (m *Manager) Suspend(sessions *model.SessionsFile, id string) (*model.Session, error) {
	s := sessions.FindSession(id)
	if s == nil {
		return nil, model.NewError(model.ErrNotFound, "session %s not found", id)
	}
	if s.Status != model.SessionActive {
		return nil, model.NewError(model.ErrStateConflict,
			"session %s is %s, only active sessions can be suspended", id, s.Status)
	}
	s.Status = model.SessionSuspended
	return s, nil
}

// Resume reactivates a suspended or orphaned session, re-checking its scope
// against the sessions that became active in the meantime.
func (m *Manager) Resume(sessions *model.SessionsFile, todo *model.TodoFile, id string) (*model.Session, error) {
	s := sessions.FindSession(id)
	if s == nil {
		return nil, model.NewError(model.ErrNotFound, "session %s not found", id)
	}
	switch s.Status {
	case model.SessionActive:
		return s, nil
	case model.SessionEnded:
		return nil, model.NewError(model.ErrStateConflict, "session %s has ended and cannot be resumed", id).
			WithFix("start a new session instead")
	}

	for _, other := range sessions.ActiveSessions() {
		if classifyConflict(todo, s.Scope, other.Scope) == conflictHard {
			return nil, model.NewError(model.ErrStateConflict,
				"scope conflicts with active session %s (%s)", other.ID, other.Name)
		}
	}
	s.Status = model.SessionActive
	return s, nil
}

// GC rewrites ended sessions older than the retention window as orphaned,
// and does the same for active or suspended sessions with no activity inside
// the window. Returns the sessions whose status changed.
func (m *Manager) GC(sessions *model.SessionsFile) []*model.Session {
	now := m.clock.Now()
	maxAge := daysToHours(m.cfg.SessionMaxAgeDays)

	var orphaned []*model.Session
	for _, s := range sessions.Sessions {
		switch s.Status {
		case model.SessionEnded:
			if s.EndedAt != nil && now.Sub(*s.EndedAt) > maxAge {
				s.Status = model.SessionOrphaned
				orphaned = append(orphaned, s)
			}
		case model.SessionActive, model.SessionSuspended:
			if now.Sub(lastSessionActivity(s)) > maxAge {
				m.clearFocus(s, now)
				s.Status = model.SessionOrphaned
				orphaned = append(orphaned, s)
			}
		}
	}
	return orphaned
}

// SetFocus points a session at one task. The previous focus row is closed,
// a new history row opens, and a pending task moves to active.
func (m *Manager) SetFocus(sessions *model.SessionsFile, todo *model.TodoFile, sessionID, taskID string) (*model.Session, error) {
	s := sessions.FindSession(sessionID)
	if s == nil {
		return nil, model.NewError(model.ErrNotFound, "session %s not found", sessionID)
	}
	if s.Status != model.SessionActive {
		return nil, model.NewError(model.ErrStateConflict,
			"session %s is %s; focus requires an active session", sessionID, s.Status)
	}
	t := todo.FindTask(taskID)
	if t == nil {
		return nil, model.NewError(model.ErrNotFound, "task %s not found", taskID)
	}
	if t.Status.Terminal() {
		return nil, model.NewError(model.ErrStateConflict,
			"task %s is %s and cannot take focus", taskID, t.Status)
	}
	if !validate.ScopeContains(todo, s.Scope, taskID) {
		return nil, model.NewError(model.ErrStateConflict,
			"task %s is outside the session scope", taskID).
			WithFix("widen the scope or start a session that covers this task")
	}

	now := m.clock.Now()
	m.clearFocus(s, now)
	ts := now
	s.Focus = model.Focus{TaskID: taskID, SetAt: &ts}
	s.History = append(s.History, model.FocusEntry{TaskID: taskID, SetAt: now})

	if t.Status == model.StatusPending {
		if err := validate.CheckTransition(t.ID, t.Status, model.StatusActive); err != nil {
			return nil, err
		}
		t.Status = model.StatusActive
		t.UpdatedAt = now
	}
	return s, nil
}

// ClearFocus closes the open focus row without setting a new one.
func (m *Manager) ClearFocus(sessions *model.SessionsFile, sessionID string) (*model.Session, error) {
	s := sessions.FindSession(sessionID)
	if s == nil {
		return nil, model.NewError(model.ErrNotFound, "session %s not found", sessionID)
	}
	m.clearFocus(s, m.clock.Now())
	return s, nil
}

// clearFocus closes any open history row and blanks the focus pointer.
func (m *Manager) clearFocus(s *model.Session, now time.Time) {
	if i := s.OpenFocusEntry(); i >= 0 {
		ts := now
		s.History[i].ClearedAt = &ts
	}
	s.Focus = model.Focus{}
}
