// Package model defines the entities shared by every CLEO subsystem: tasks,
// sessions, project phases, the on-disk document envelopes, and the error
// taxonomy. All other internal packages depend on model; model depends on
// no other internal package.
package model

import (
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusBlocked   Status = "blocked"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusBlocked, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// Priority orders tasks for scheduling. Lower rank sorts first.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank returns the sort rank of the priority (critical first).
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

// Valid reports whether p is a known priority value.
func (p Priority) Valid() bool {
	return p.Rank() < 4
}

// TaskType distinguishes hierarchy levels.
type TaskType string

const (
	TypeEpic    TaskType = "epic"
	TypeTask    TaskType = "task"
	TypeSubtask TaskType = "subtask"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	return t == TypeEpic || t == TypeTask || t == TypeSubtask
}

// Size is the estimated effort bucket used by leverage weighting.
type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// Valid reports whether s is a known size (empty is allowed, size is optional).
func (s Size) Valid() bool {
	return s == "" || s == SizeSmall || s == SizeMedium || s == SizeLarge
}

// RelationType labels a cross-task relation.
type RelationType string

const (
	RelatesTo   RelationType = "relates-to"
	SpawnedFrom RelationType = "spawned-from"
	DeferredTo  RelationType = "deferred-to"
	Supersedes  RelationType = "supersedes"
	Duplicates  RelationType = "duplicates"
)

// Valid reports whether r is a known relation type.
func (r RelationType) Valid() bool {
	switch r {
	case RelatesTo, SpawnedFrom, DeferredTo, Supersedes, Duplicates:
		return true
	}
	return false
}

// Relation links a task to another task.
type Relation struct {
	TaskID string       `json:"taskId"`
	Type   RelationType `json:"type"`
	Reason string       `json:"reason,omitempty"`
}

// Note is a timestamped annotation on a task. Notes are append-only.
type Note struct {
	TS   time.Time `json:"ts"`
	Text string    `json:"text"`
}

// Task is the core work item. Fields with pointer types are absent until set.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority"`
	Type        TaskType `json:"type"`
	ParentID    string   `json:"parentId,omitempty"`
	Depends     []string `json:"depends,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	Phase       string   `json:"phase,omitempty"`
	Size        Size     `json:"size,omitempty"`
	Files       []string `json:"files,omitempty"`
	Notes       []Note   `json:"notes,omitempty"`

	Verification *Verification `json:"verification,omitempty"`
	Relates      []Relation    `json:"relates,omitempty"`

	BlockedBy          string     `json:"blockedBy,omitempty"`
	CancellationReason string     `json:"cancellationReason,omitempty"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`

	// PreCancelStatus remembers the status a task held before cancellation
	// so uncancel can restore it. Not part of the public schema surface.
	PreCancelStatus Status `json:"preCancelStatus,omitempty"`

	// AutoCompleted marks parents completed by child propagation, so reopen
	// knows which ancestors to cascade back to pending.
	AutoCompleted bool `json:"autoCompleted,omitempty"`

	// ArchivedAt is set when the task is moved to the archive document.
	ArchivedAt *time.Time `json:"archivedAt,omitempty"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	c.Depends = append([]string(nil), t.Depends...)
	c.Labels = append([]string(nil), t.Labels...)
	c.Files = append([]string(nil), t.Files...)
	c.Notes = append([]Note(nil), t.Notes...)
	c.Relates = append([]Relation(nil), t.Relates...)
	if t.Verification != nil {
		v := t.Verification.Clone()
		c.Verification = v
	}
	if t.CancelledAt != nil {
		ts := *t.CancelledAt
		c.CancelledAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	if t.ArchivedAt != nil {
		ts := *t.ArchivedAt
		c.ArchivedAt = &ts
	}
	return &c
}

// LastActivity returns the most recent lifecycle timestamp on the task.
func (t *Task) LastActivity() time.Time {
	ts := t.CreatedAt
	if t.UpdatedAt.After(ts) {
		ts = t.UpdatedAt
	}
	if t.CompletedAt != nil && t.CompletedAt.After(ts) {
		ts = *t.CompletedAt
	}
	return ts
}
