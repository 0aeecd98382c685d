package ops

import (
	"context"
	"sort"
	"strings"

	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/model"
	"github.com/dsj7419/cleo/internal/task"
)

func init() {
	register("add", opAdd)
	register("show", opShow)
	register("list", opList)
	register("find", opFind)
	register("update", opUpdate)
	register("complete", opComplete)
	register("reopen", opReopen)
	register("cancel", opCancel)
	register("uncancel", opUncancel)
	register("delete", opDelete)
	register("archive", opArchive)
	register("unarchive", opUnarchive)
	register("verify", opVerify)
}

func opAdd(ctx context.Context, env *Env, req Request) (any, error) {
	title, err := req.requireStr("title")
	if err != nil {
		return nil, err
	}
	todo, archive, _, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	t, err := env.Mutator.Add(todo, archive, task.AddRequest{
		Title:       title,
		Description: req.str("description"),
		Type:        model.TaskType(req.str("type")),
		Priority:    model.Priority(req.str("priority")),
		ParentID:    req.str("parentId"),
		Depends:     req.strSlice("depends"),
		Labels:      req.strSlice("labels"),
		Phase:       req.str("phase"),
		Size:        model.Size(req.str("size")),
		Files:       req.strSlice("files"),
		Agent:       req.actor(),
	})
	if err != nil {
		return nil, err
	}
	if err := saveTodo(ctx, env, req, todo, archive, t.ID, nil, t); err != nil {
		return nil, err
	}
	return t, nil
}

func opShow(ctx context.Context, env *Env, req Request) (any, error) {
	id, err := req.requireStr("id")
	if err != nil {
		return nil, err
	}
	todo, err := env.Accessor.LoadTodo(ctx)
	if err != nil {
		return nil, err
	}
	if t := todo.FindTask(id); t != nil {
		return t, nil
	}
	archive, err := env.Accessor.LoadArchive(ctx)
	if err != nil {
		return nil, err
	}
	if t := archive.FindArchived(id); t != nil {
		return t, nil
	}
	return nil, model.NewError(model.ErrNotFound, "task %s not found", id)
}

// listFilter narrows the list operation.
type listFilter struct {
	status model.Status
	typ    model.TaskType
	phase  string
	label  string
	parent string
}

func opList(ctx context.Context, env *Env, req Request) (any, error) {
	todo, err := env.Accessor.LoadTodo(ctx)
	if err != nil {
		return nil, err
	}
	f := listFilter{
		status: model.Status(req.str("status")),
		typ:    model.TaskType(req.str("type")),
		phase:  req.str("phase"),
		label:  req.str("label"),
		parent: req.str("parentId"),
	}

	var out []*model.Task
	for _, t := range todo.Tasks {
		if f.status != "" && t.Status != f.status {
			continue
		}
		if f.typ != "" && t.Type != f.typ {
			continue
		}
		if f.phase != "" && t.Phase != f.phase {
			continue
		}
		if f.parent != "" && t.ParentID != f.parent {
			continue
		}
		if f.label != "" && !hasLabel(t, f.label) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return model.TaskIDNumber(out[i].ID) < model.TaskIDNumber(out[j].ID)
	})
	return out, nil
}

func hasLabel(t *model.Task, label string) bool {
	for _, l := range t.Labels {
		if l == label {
			return true
		}
	}
	return false
}

func opFind(ctx context.Context, env *Env, req Request) (any, error) {
	query, err := req.requireStr("query")
	if err != nil {
		return nil, err
	}
	todo, err := env.Accessor.LoadTodo(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	var out []*model.Task
	for _, t := range todo.Tasks {
		if strings.Contains(strings.ToLower(t.Title), needle) ||
			strings.Contains(strings.ToLower(t.Description), needle) ||
			hasLabel(t, query) {
			out = append(out, t)
		}
	}
	if req.boolean("includeArchive") {
		archive, aerr := env.Accessor.LoadArchive(ctx)
		if aerr != nil {
			return nil, aerr
		}
		for _, t := range archive.Tasks {
			if strings.Contains(strings.ToLower(t.Title), needle) {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func opUpdate(ctx context.Context, env *Env, req Request) (any, error) {
	id, err := req.requireStr("id")
	if err != nil {
		return nil, err
	}
	todo, archive, _, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	before := cloneTask(todo.FindTask(id))
	ur := task.UpdateRequest{
		ID:          id,
		Title:       req.strPtr("title"),
		Description: req.strPtr("description"),
		Phase:       req.strPtr("phase"),
		Labels:      req.strSlicePtr("labels"),
		Files:       req.strSlicePtr("files"),
		Depends:     req.strSlicePtr("depends"),
		AddNote:     req.str("note"),
	}
	if p := req.strPtr("priority"); p != nil {
		pr := model.Priority(*p)
		ur.Priority = &pr
	}
	if s := req.strPtr("status"); s != nil {
		st := model.Status(*s)
		ur.Status = &st
	}
	if s := req.strPtr("size"); s != nil {
		sz := model.Size(*s)
		ur.Size = &sz
	}

	t, err := env.Mutator.Update(todo, ur)
	if err != nil {
		return nil, err
	}
	if err := saveTodo(ctx, env, req, todo, archive, t.ID, before, t); err != nil {
		return nil, err
	}
	return t, nil
}

func opComplete(ctx context.Context, env *Env, req Request) (any, error) {
	id, err := req.requireStr("id")
	if err != nil {
		return nil, err
	}
	todo, archive, _, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	before := cloneTask(todo.FindTask(id))
	changed, err := env.Mutator.Complete(todo, id)
	if err != nil {
		return nil, err
	}
	if err := saveTodo(ctx, env, req, todo, archive, id, before, changed); err != nil {
		return nil, err
	}
	return changed, nil
}

func opReopen(ctx context.Context, env *Env, req Request) (any, error) {
	id, err := req.requireStr("id")
	if err != nil {
		return nil, err
	}
	todo, archive, _, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	before := cloneTask(todo.FindTask(id))
	changed, err := env.Mutator.Reopen(todo, id)
	if err != nil {
		return nil, err
	}
	if err := saveTodo(ctx, env, req, todo, archive, id, before, changed); err != nil {
		return nil, err
	}
	return changed, nil
}

func opCancel(ctx context.Context, env *Env, req Request) (any, error) {
	id, err := req.requireStr("id")
	if err != nil {
		return nil, err
	}
	reason, err := req.requireStr("reason")
	if err != nil {
		return nil, err
	}
	todo, archive, _, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	before := cloneTask(todo.FindTask(id))
	changed, err := env.Mutator.Cancel(todo, task.CancelRequest{
		ID:       id,
		Reason:   reason,
		Children: config.ChildHandling(req.str("children")),
		Force:    req.boolean("force"),
	})
	if err != nil {
		return nil, err
	}
	if err := saveTodo(ctx, env, req, todo, archive, id, before, changed); err != nil {
		return nil, err
	}
	return changed, nil
}

func opUncancel(ctx context.Context, env *Env, req Request) (any, error) {
	id, err := req.requireStr("id")
	if err != nil {
		return nil, err
	}
	todo, archive, _, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	before := cloneTask(todo.FindTask(id))
	t, err := env.Mutator.Uncancel(todo, id)
	if err != nil {
		return nil, err
	}
	if err := saveTodo(ctx, env, req, todo, archive, id, before, t); err != nil {
		return nil, err
	}
	return t, nil
}

func opDelete(ctx context.Context, env *Env, req Request) (any, error) {
	id, err := req.requireStr("id")
	if err != nil {
		return nil, err
	}
	todo, archive, _, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	before := cloneTask(todo.FindTask(id))
	ids, err := env.Mutator.Delete(todo, task.DeleteRequest{
		ID:       id,
		Children: config.ChildHandling(req.str("children")),
		Force:    req.boolean("force"),
	})
	if err != nil {
		return nil, err
	}
	if err := saveTodo(ctx, env, req, todo, archive, id, before, map[string]any{"deleted": ids}); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": ids}, nil
}

func opArchive(ctx context.Context, env *Env, req Request) (any, error) {
	id, err := req.requireStr("id")
	if err != nil {
		return nil, err
	}
	todo, archive, _, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	moved, err := env.Mutator.Archive(todo, archive, id)
	if err != nil {
		return nil, err
	}
	if err := saveArchive(ctx, env, req, archive, id); err != nil {
		return nil, err
	}
	if err := saveTodo(ctx, env, req, todo, archive, id, nil, map[string]any{"archived": taskIDs(moved)}); err != nil {
		return nil, err
	}
	return map[string]any{"archived": taskIDs(moved)}, nil
}

func opUnarchive(ctx context.Context, env *Env, req Request) (any, error) {
	id, err := req.requireStr("id")
	if err != nil {
		return nil, err
	}
	todo, archive, _, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	moved, err := env.Mutator.Unarchive(todo, archive, id)
	if err != nil {
		return nil, err
	}
	if err := saveTodo(ctx, env, req, todo, archive, id, nil, map[string]any{"unarchived": taskIDs(moved)}); err != nil {
		return nil, err
	}
	if err := saveArchive(ctx, env, req, archive, id); err != nil {
		return nil, err
	}
	return map[string]any{"unarchived": taskIDs(moved)}, nil
}

func opVerify(ctx context.Context, env *Env, req Request) (any, error) {
	id, err := req.requireStr("id")
	if err != nil {
		return nil, err
	}
	gate, err := req.requireStr("gate")
	if err != nil {
		return nil, err
	}
	todo, archive, _, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	before := cloneTask(todo.FindTask(id))
	t, gerr := env.Mutator.UpdateGate(todo, task.GateRequest{
		ID:     id,
		Gate:   model.Gate(gate),
		Value:  req.boolean("value"),
		Agent:  req.actor(),
		Reason: req.str("reason"),
	})
	// A bounded-rounds block still mutated the task; persist before
	// surfacing the error.
	if t != nil {
		if serr := saveTodo(ctx, env, req, todo, archive, id, before, t); serr != nil {
			return nil, serr
		}
	}
	if gerr != nil {
		return nil, gerr
	}
	return t, nil
}

func cloneTask(t *model.Task) *model.Task {
	if t == nil {
		return nil
	}
	return t.Clone()
}

func taskIDs(tasks []*model.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
