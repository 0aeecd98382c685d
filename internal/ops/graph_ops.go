package ops

import (
	"context"

	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/graph"
	"github.com/dsj7419/cleo/internal/model"
)

func init() {
	register("analyze", opAnalyze)
	register("deps", opDeps)
	register("waves", opWaves)
	register("next", opNext)
	register("blockers", opBlockers)
	register("critical-path", opCriticalPath)
	register("staleness", opStaleness)
}

// scopedTasks returns either the whole active list or the subtree of the
// epic named in the request.
func scopedTasks(env *Env, todo *model.TodoFile, req Request) ([]*model.Task, error) {
	epicID := req.str("epic")
	if epicID == "" {
		return todo.Tasks, nil
	}
	epic := todo.FindTask(epicID)
	if epic == nil {
		return nil, model.NewError(model.ErrNotFound, "epic %s not found", epicID)
	}
	return todo.Descendants(epicID), nil
}

func opAnalyze(ctx context.Context, env *Env, req Request) (any, error) {
	todo, err := env.Accessor.LoadTodo(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := scopedTasks(env, todo, req)
	if err != nil {
		return nil, err
	}
	strategy := env.Cfg.SizeStrategy
	if s := req.str("strategy"); s != "" {
		strategy = config.SizeStrategy(s)
	}
	return graph.New(tasks).Analyze(&todo.Project, strategy), nil
}

func opDeps(ctx context.Context, env *Env, req Request) (any, error) {
	id, err := req.requireStr("id")
	if err != nil {
		return nil, err
	}
	todo, err := env.Accessor.LoadTodo(ctx)
	if err != nil {
		return nil, err
	}
	t := todo.FindTask(id)
	if t == nil {
		return nil, model.NewError(model.ErrNotFound, "task %s not found", id)
	}

	g := graph.New(todo.Tasks)
	dependents := g.Blockers()
	var blockedBy []string
	for _, dep := range t.Depends {
		if d := todo.FindTask(dep); d != nil && !d.Status.Terminal() {
			blockedBy = append(blockedBy, dep)
		}
	}
	return map[string]any{
		"id":        t.ID,
		"depends":   t.Depends,
		"blockedBy": blockedBy,
		"unblocks":  dependents[t.ID],
	}, nil
}

func opWaves(ctx context.Context, env *Env, req Request) (any, error) {
	todo, err := env.Accessor.LoadTodo(ctx)
	if err != nil {
		return nil, err
	}
	if epicID := req.str("epic"); epicID != "" {
		return env.Orch.Waves(todo, epicID)
	}
	return graph.New(todo.Tasks).ComputeWaves(), nil
}

func opNext(ctx context.Context, env *Env, req Request) (any, error) {
	todo, err := env.Accessor.LoadTodo(ctx)
	if err != nil {
		return nil, err
	}
	if epicID := req.str("epic"); epicID != "" {
		return env.Orch.Next(todo, epicID)
	}
	return graph.New(todo.Tasks).NextTask(), nil
}

func opBlockers(ctx context.Context, env *Env, req Request) (any, error) {
	todo, err := env.Accessor.LoadTodo(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := scopedTasks(env, todo, req)
	if err != nil {
		return nil, err
	}
	return graph.New(tasks).Blockers(), nil
}

func opCriticalPath(ctx context.Context, env *Env, req Request) (any, error) {
	todo, err := env.Accessor.LoadTodo(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := scopedTasks(env, todo, req)
	if err != nil {
		return nil, err
	}
	return graph.New(tasks).CriticalPath(), nil
}

func opStaleness(ctx context.Context, env *Env, req Request) (any, error) {
	todo, err := env.Accessor.LoadTodo(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := scopedTasks(env, todo, req)
	if err != nil {
		return nil, err
	}
	return graph.Staleness(tasks, env.Cfg, env.Clock.Now()), nil
}
