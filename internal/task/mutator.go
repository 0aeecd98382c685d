// Package task implements the task lifecycle operations: add, update,
// complete, reopen, cancel, uncancel, delete, archive, and verification gate
// updates. Every operation is a pure transformation over the in-memory
// documents; loading, validation-before-save, persistence, and audit logging
// belong to the operation surface above.
package task

import (
	"strings"
	"time"

	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/model"
	"github.com/dsj7419/cleo/internal/validate"
)

// Mutator applies lifecycle transformations under one config and clock.
type Mutator struct {
	cfg   config.Config
	clock model.Clock
}

// NewMutator constructs a Mutator.
func NewMutator(cfg config.Config, clock model.Clock) *Mutator {
	return &Mutator{cfg: cfg, clock: clock}
}

// AddRequest creates a task.
type AddRequest struct {
	Title       string
	Description string
	Type        model.TaskType
	Priority    model.Priority
	ParentID    string
	Depends     []string
	Labels      []string
	Phase       string
	Size        model.Size
	Files       []string
	Agent       string
}

// Add appends a new task with a freshly allocated id. Parent, depth, and
// dependency constraints are enforced before the task joins the document.
func (m *Mutator) Add(todo *model.TodoFile, archive *model.ArchiveFile, req AddRequest) (*model.Task, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, model.NewError(model.ErrInvalidInput, "title is required").WithField("title")
	}
	if req.Type == "" {
		req.Type = model.TypeTask
	}
	if !req.Type.Valid() {
		return nil, model.NewError(model.ErrInvalidInput, "unknown task type %q", req.Type).
			WithField("type").WithAlternatives("epic", "task", "subtask")
	}
	if req.Priority == "" {
		req.Priority = model.PriorityMedium
	}
	if !req.Priority.Valid() {
		return nil, model.NewError(model.ErrInvalidInput, "unknown priority %q", req.Priority).
			WithField("priority").WithAlternatives("critical", "high", "medium", "low")
	}
	if !req.Size.Valid() {
		return nil, model.NewError(model.ErrInvalidInput, "unknown size %q", req.Size).
			WithField("size").WithAlternatives("small", "medium", "large")
	}

	if req.ParentID != "" {
		parent := todo.FindTask(req.ParentID)
		if parent == nil {
			return nil, model.NewError(model.ErrNotFound, "parent task %s not found", req.ParentID).
				WithField("parentId")
		}
		if parent.Status.Terminal() {
			return nil, model.NewError(model.ErrStateConflict,
				"parent task %s is %s and cannot take new children", parent.ID, parent.Status)
		}
		if depth := todo.Depth(req.ParentID) + 1; depth > m.cfg.MaxDepth {
			return nil, model.NewError(model.ErrValidation,
				"task would sit at depth %d, maximum is %d", depth, m.cfg.MaxDepth).
				WithField("parentId")
		}
	}

	for _, dep := range req.Depends {
		if todo.FindTask(dep) == nil {
			return nil, model.NewError(model.ErrNotFound, "dependency %s not found", dep).
				WithField("depends")
		}
	}

	if req.Phase != "" {
		if _, ok := todo.Project.Phases[req.Phase]; !ok {
			return nil, model.NewError(model.ErrNotFound, "phase %q not found", req.Phase).
				WithField("phase")
		}
	}

	now := m.clock.Now()
	t := &model.Task{
		ID:          model.NextTaskID(todo, archive),
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Status:      model.StatusPending,
		Priority:    req.Priority,
		Type:        req.Type,
		ParentID:    req.ParentID,
		Depends:     model.NormalizeStringSet(req.Depends),
		Labels:      model.NormalizeLabels(req.Labels),
		Phase:       req.Phase,
		Size:        req.Size,
		Files:       model.NormalizeStringSet(req.Files),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	// Epics carry no verification; they are done when their children are.
	if t.Type != model.TypeEpic {
		t.Verification = model.NewVerification(req.Agent)
	}

	todo.Tasks = append(todo.Tasks, t)
	return t, nil
}

// UpdateRequest modifies mutable task fields. Nil pointers leave the field
// untouched.
type UpdateRequest struct {
	ID          string
	Title       *string
	Description *string
	Priority    *model.Priority
	Status      *model.Status
	Phase       *string
	Size        *model.Size
	Labels      *[]string
	Files       *[]string
	Depends     *[]string
	AddNote     string
}

// Update applies the requested field changes, running status changes through
// the state machine.
func (m *Mutator) Update(todo *model.TodoFile, req UpdateRequest) (*model.Task, error) {
	t := todo.FindTask(req.ID)
	if t == nil {
		return nil, model.NewError(model.ErrNotFound, "task %s not found", req.ID)
	}

	now := m.clock.Now()

	if req.Status != nil && *req.Status != t.Status {
		if err := validate.CheckTransition(t.ID, t.Status, *req.Status); err != nil {
			return nil, err
		}
		applyStatus(t, *req.Status, now)
	}
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, model.NewError(model.ErrInvalidInput, "title cannot be empty").WithField("title")
		}
		t.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Priority != nil {
		if !req.Priority.Valid() {
			return nil, model.NewError(model.ErrInvalidInput, "unknown priority %q", *req.Priority).
				WithField("priority")
		}
		t.Priority = *req.Priority
	}
	if req.Phase != nil {
		if *req.Phase != "" {
			if _, ok := todo.Project.Phases[*req.Phase]; !ok {
				return nil, model.NewError(model.ErrNotFound, "phase %q not found", *req.Phase).
					WithField("phase")
			}
		}
		t.Phase = *req.Phase
	}
	if req.Size != nil {
		if !req.Size.Valid() {
			return nil, model.NewError(model.ErrInvalidInput, "unknown size %q", *req.Size).WithField("size")
		}
		t.Size = *req.Size
	}
	if req.Labels != nil {
		t.Labels = model.NormalizeLabels(*req.Labels)
	}
	if req.Files != nil {
		t.Files = model.NormalizeStringSet(*req.Files)
	}
	if req.Depends != nil {
		for _, dep := range *req.Depends {
			if dep == t.ID {
				return nil, model.NewError(model.ErrValidation, "task %s cannot depend on itself", t.ID).
					WithField("depends")
			}
			if todo.FindTask(dep) == nil {
				return nil, model.NewError(model.ErrNotFound, "dependency %s not found", dep).
					WithField("depends")
			}
		}
		t.Depends = model.NormalizeStringSet(*req.Depends)
	}
	if req.AddNote != "" {
		t.Notes = append(t.Notes, model.Note{TS: now, Text: req.AddNote})
	}

	t.UpdatedAt = now
	return t, nil
}

// applyStatus sets a status plus its lifecycle metadata. Callers have
// already checked the transition.
func applyStatus(t *model.Task, to model.Status, now time.Time) {
	from := t.Status
	t.Status = to
	switch to {
	case model.StatusDone:
		ts := now
		t.CompletedAt = &ts
	case model.StatusPending, model.StatusActive:
		if from == model.StatusDone {
			t.CompletedAt = nil
			t.AutoCompleted = false
		}
	}
	t.UpdatedAt = now
}
