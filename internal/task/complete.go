package task

import (
	"github.com/dsj7419/cleo/internal/model"
	"github.com/dsj7419/cleo/internal/validate"
)

// Complete marks a task done and walks the parent chain bottom-up,
// auto-completing every parent whose children are now all done. Returns
// every task that changed, the completed task first.
func (m *Mutator) Complete(todo *model.TodoFile, id string) ([]*model.Task, error) {
	t := todo.FindTask(id)
	if t == nil {
		return nil, model.NewError(model.ErrNotFound, "task %s not found", id)
	}
	if t.Status == model.StatusDone {
		return []*model.Task{t}, nil // idempotent
	}
	if err := validate.CheckTransition(t.ID, t.Status, model.StatusDone); err != nil {
		return nil, err
	}

	now := m.clock.Now()
	applyStatus(t, model.StatusDone, now)
	changed := []*model.Task{t}

	// Auto-complete propagation: a parent completes only when every child is
	// done. A cancelled sibling blocks propagation by design.
	for cur := t; cur.ParentID != ""; {
		parent := todo.FindTask(cur.ParentID)
		if parent == nil || parent.Status == model.StatusDone {
			break
		}
		if !allChildrenDone(todo, parent.ID) {
			break
		}
		applyStatus(parent, model.StatusDone, now)
		parent.AutoCompleted = true
		changed = append(changed, parent)
		cur = parent
	}
	return changed, nil
}

// Reopen returns a done task to pending and cascades the reopening to every
// ancestor that had been auto-completed.
func (m *Mutator) Reopen(todo *model.TodoFile, id string) ([]*model.Task, error) {
	t := todo.FindTask(id)
	if t == nil {
		return nil, model.NewError(model.ErrNotFound, "task %s not found", id)
	}
	if t.Status != model.StatusDone {
		return nil, model.NewError(model.ErrStateConflict,
			"task %s is %s, only done tasks can be reopened", id, t.Status)
	}

	now := m.clock.Now()
	applyStatus(t, model.StatusPending, now)
	changed := []*model.Task{t}

	for cur := t; cur.ParentID != ""; {
		parent := todo.FindTask(cur.ParentID)
		if parent == nil || parent.Status != model.StatusDone || !parent.AutoCompleted {
			break
		}
		applyStatus(parent, model.StatusPending, now)
		changed = append(changed, parent)
		cur = parent
	}
	return changed, nil
}

// allChildrenDone reports whether every direct child of id is done. A task
// with no children never auto-completes.
func allChildrenDone(todo *model.TodoFile, id string) bool {
	children := todo.Children(id)
	if len(children) == 0 {
		return false
	}
	for _, c := range children {
		if c.Status != model.StatusDone {
			return false
		}
	}
	return true
}
