package task

import (
	"fmt"

	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/model"
	"github.com/dsj7419/cleo/internal/validate"
)

// CancelRequest cancels a task.
type CancelRequest struct {
	ID       string
	Reason   string
	Children config.ChildHandling // empty uses the configured default
	Force    bool                 // override the cascade threshold
}

// Cancel marks a task cancelled, handling children per the requested
// strategy: block refuses when children exist, cascade cancels the whole
// subtree (bounded by the threshold unless forced), orphan detaches direct
// children. Returns every task that changed.
func (m *Mutator) Cancel(todo *model.TodoFile, req CancelRequest) ([]*model.Task, error) {
	t := todo.FindTask(req.ID)
	if t == nil {
		return nil, model.NewError(model.ErrNotFound, "task %s not found", req.ID)
	}
	if t.Status == model.StatusCancelled {
		return []*model.Task{t}, nil // idempotent
	}
	if msg := checkCancelReason(req.Reason, m.cfg.MinReasonLength); msg != "" {
		return nil, model.NewError(model.ErrInvalidInput, "%s", msg).WithField("reason")
	}

	strategy := req.Children
	if strategy == "" {
		strategy = m.cfg.DefaultChildHandling
	}

	children := todo.Children(t.ID)
	descendants := todo.Descendants(t.ID)
	now := m.clock.Now()

	switch strategy {
	case config.ChildBlock:
		if len(children) > 0 {
			return nil, model.NewError(model.ErrStateConflict,
				"task %s has %d children; choose a child-handling strategy", t.ID, len(children)).
				WithAlternatives("cascade", "orphan")
		}

	case config.ChildCascade:
		active := activeDescendants(descendants)
		if len(active) > m.cfg.CascadeThreshold && !req.Force {
			return nil, model.NewError(model.ErrCascadeThreshold,
				"cascade would cancel %d descendants, threshold is %d (affectedCount: %d)",
				len(active), m.cfg.CascadeThreshold, len(active)).
				WithFix("re-run with --force to cancel the whole subtree")
		}

	case config.ChildOrphan:
		// handled below

	default:
		return nil, model.NewError(model.ErrInvalidInput, "unknown child strategy %q", strategy).
			WithAlternatives("block", "cascade", "orphan")
	}

	cancelOne := func(target *model.Task, reason string) {
		target.PreCancelStatus = target.Status
		target.Status = model.StatusCancelled
		target.CancellationReason = reason
		ts := now
		target.CancelledAt = &ts
		target.UpdatedAt = now
	}

	cancelOne(t, req.Reason)
	changed := []*model.Task{t}

	switch strategy {
	case config.ChildCascade:
		for _, d := range descendants {
			if d.Status.Terminal() {
				continue
			}
			cancelOne(d, fmt.Sprintf("cascaded from cancellation of %s: %s", t.ID, req.Reason))
			changed = append(changed, d)
		}
	case config.ChildOrphan:
		for _, c := range children {
			c.ParentID = ""
			c.UpdatedAt = now
			changed = append(changed, c)
		}
	}
	return changed, nil
}

// Uncancel restores a cancelled task to the status it held before
// cancellation.
func (m *Mutator) Uncancel(todo *model.TodoFile, id string) (*model.Task, error) {
	t := todo.FindTask(id)
	if t == nil {
		return nil, model.NewError(model.ErrNotFound, "task %s not found", id)
	}
	if t.Status != model.StatusCancelled {
		return nil, model.NewError(model.ErrStateConflict,
			"task %s is %s, only cancelled tasks can be uncancelled", id, t.Status)
	}

	restored := t.PreCancelStatus
	if restored == "" || restored == model.StatusCancelled {
		restored = model.StatusPending
	}
	if err := validate.CheckTransition(t.ID, t.Status, restored); err != nil {
		return nil, err
	}

	now := m.clock.Now()
	t.Status = restored
	t.CancellationReason = ""
	t.CancelledAt = nil
	t.PreCancelStatus = ""
	t.UpdatedAt = now
	return t, nil
}

// DeleteRequest physically removes a task from the active document. Deleted
// tasks are not archived; cancellation is the recoverable path.
type DeleteRequest struct {
	ID       string
	Children config.ChildHandling
	Force    bool
}

// Delete removes the task (and, under cascade, its subtree) from the active
// list. Dependency references to the removed ids are stripped from the
// remaining tasks.
func (m *Mutator) Delete(todo *model.TodoFile, req DeleteRequest) ([]string, error) {
	t := todo.FindTask(req.ID)
	if t == nil {
		return nil, model.NewError(model.ErrNotFound, "task %s not found", req.ID)
	}

	strategy := req.Children
	if strategy == "" {
		strategy = m.cfg.DefaultChildHandling
	}

	children := todo.Children(t.ID)
	descendants := todo.Descendants(t.ID)
	now := m.clock.Now()

	removed := map[string]bool{t.ID: true}
	switch strategy {
	case config.ChildBlock:
		if len(children) > 0 {
			return nil, model.NewError(model.ErrStateConflict,
				"task %s has %d children; choose a child-handling strategy", t.ID, len(children)).
				WithAlternatives("cascade", "orphan")
		}
	case config.ChildCascade:
		if len(descendants) > m.cfg.CascadeThreshold && !req.Force {
			return nil, model.NewError(model.ErrCascadeThreshold,
				"cascade would delete %d descendants, threshold is %d (affectedCount: %d)",
				len(descendants), m.cfg.CascadeThreshold, len(descendants)).
				WithFix("re-run with --force to delete the whole subtree")
		}
		for _, d := range descendants {
			removed[d.ID] = true
		}
	case config.ChildOrphan:
		for _, c := range children {
			c.ParentID = ""
			c.UpdatedAt = now
		}
	default:
		return nil, model.NewError(model.ErrInvalidInput, "unknown child strategy %q", strategy).
			WithAlternatives("block", "cascade", "orphan")
	}

	kept := todo.Tasks[:0]
	for _, task := range todo.Tasks {
		if removed[task.ID] {
			continue
		}
		if len(task.Depends) > 0 {
			deps := task.Depends[:0]
			for _, dep := range task.Depends {
				if !removed[dep] {
					deps = append(deps, dep)
				}
			}
			task.Depends = deps
		}
		kept = append(kept, task)
	}
	todo.Tasks = kept

	ids := make([]string, 0, len(removed))
	for id := range removed {
		ids = append(ids, id)
	}
	return ids, nil
}

func activeDescendants(descendants []*model.Task) []*model.Task {
	var out []*model.Task
	for _, d := range descendants {
		if !d.Status.Terminal() {
			out = append(out, d)
		}
	}
	return out
}

// checkCancelReason mirrors the validator's reason rule so the failure
// surfaces before any mutation.
func checkCancelReason(reason string, minLen int) string {
	if len(reason) == 0 {
		return "a cancellation reason is required"
	}
	if len(reason) < minLen {
		return fmt.Sprintf("cancellation reason must be at least %d characters", minLen)
	}
	return ""
}
