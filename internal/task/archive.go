package task

import (
	"github.com/dsj7419/cleo/internal/model"
)

// Archive moves a terminal task and its subtree from the active document into
// the archive. Every task in the subtree must itself be terminal; archiving a
// parent never drags live work along with it.
func (m *Mutator) Archive(todo *model.TodoFile, archive *model.ArchiveFile, id string) ([]*model.Task, error) {
	t := todo.FindTask(id)
	if t == nil {
		return nil, model.NewError(model.ErrNotFound, "task %s not found", id)
	}
	if !t.Status.Terminal() {
		return nil, model.NewError(model.ErrStateConflict,
			"task %s is %s; only done or cancelled tasks can be archived", id, t.Status).
			WithFix("complete or cancel the task first")
	}

	subtree := append([]*model.Task{t}, todo.Descendants(id)...)
	for _, s := range subtree {
		if !s.Status.Terminal() {
			return nil, model.NewError(model.ErrStateConflict,
				"descendant %s is %s; the whole subtree must be terminal before archiving", s.ID, s.Status)
		}
	}

	// Tasks outside the subtree must not depend on anything leaving the
	// active document.
	moving := make(map[string]bool, len(subtree))
	for _, s := range subtree {
		moving[s.ID] = true
	}
	for _, other := range todo.Tasks {
		if moving[other.ID] || other.Status.Terminal() {
			continue
		}
		for _, dep := range other.Depends {
			if moving[dep] {
				return nil, model.NewError(model.ErrStateConflict,
					"task %s still depends on %s; archive would strand it", other.ID, dep).
					WithFix("complete, cancel, or re-point the dependent task first")
			}
		}
	}

	now := m.clock.Now()
	for _, s := range subtree {
		ts := now
		s.ArchivedAt = &ts
		archive.Tasks = append(archive.Tasks, s)
	}

	kept := todo.Tasks[:0]
	for _, task := range todo.Tasks {
		if !moving[task.ID] {
			kept = append(kept, task)
		}
	}
	todo.Tasks = kept
	return subtree, nil
}

// Unarchive moves a task (and the part of its subtree that was archived with
// it) back into the active document. The parent link is cleared when the
// parent is not also coming back or already active.
func (m *Mutator) Unarchive(todo *model.TodoFile, archive *model.ArchiveFile, id string) ([]*model.Task, error) {
	t := archive.FindArchived(id)
	if t == nil {
		return nil, model.NewError(model.ErrNotFound, "task %s not found in archive", id)
	}
	if todo.FindTask(id) != nil {
		return nil, model.NewError(model.ErrStateConflict,
			"task id %s already exists in the active document", id)
	}

	// Collect the archived subtree rooted at id.
	children := make(map[string][]*model.Task)
	for _, a := range archive.Tasks {
		if a.ParentID != "" {
			children[a.ParentID] = append(children[a.ParentID], a)
		}
	}
	moving := map[string]bool{}
	queue := []*model.Task{t}
	var subtree []*model.Task
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if moving[cur.ID] {
			continue
		}
		moving[cur.ID] = true
		subtree = append(subtree, cur)
		queue = append(queue, children[cur.ID]...)
	}

	now := m.clock.Now()
	for _, s := range subtree {
		s.ArchivedAt = nil
		s.UpdatedAt = now
		if s.ParentID != "" && !moving[s.ParentID] && todo.FindTask(s.ParentID) == nil {
			s.ParentID = ""
		}
		// Dependencies pointing at tasks that stayed archived are stale.
		if len(s.Depends) > 0 {
			deps := s.Depends[:0]
			for _, dep := range s.Depends {
				if moving[dep] || todo.FindTask(dep) != nil {
					deps = append(deps, dep)
				}
			}
			s.Depends = deps
		}
		todo.Tasks = append(todo.Tasks, s)
	}

	kept := archive.Tasks[:0]
	for _, a := range archive.Tasks {
		if !moving[a.ID] {
			kept = append(kept, a)
		}
	}
	archive.Tasks = kept
	return subtree, nil
}
