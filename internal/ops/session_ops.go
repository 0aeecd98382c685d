package ops

import (
	"context"

	"go.uber.org/zap"

	"github.com/dsj7419/cleo/internal/model"
	"github.com/dsj7419/cleo/internal/session"
)

func init() {
	register("session-start", opSessionStart)
	register("session-end", opSessionEnd)
	register("session-resume", opSessionResume)
	register("session-suspend", opSessionSuspend)
	register("session-status", opSessionStatus)
	register("session-gc", opSessionGC)
	register("focus-set", opFocusSet)
	register("focus-clear", opFocusClear)
	register("focus-show", opFocusShow)
	register("focus-history", opFocusHistory)
}

func scopeFromRequest(req Request) model.Scope {
	return model.Scope{
		Type:    model.ScopeType(req.str("scopeType")),
		EpicID:  req.str("epicId"),
		RootID:  req.str("rootId"),
		TaskIDs: req.strSlice("taskIds"),
	}
}

func opSessionStart(ctx context.Context, env *Env, req Request) (any, error) {
	todo, _, sessions, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	scope := scopeFromRequest(req)
	if scope.Type == "" {
		scope.Type = model.ScopeGlobal
	}
	res, err := env.Sessions.Start(sessions, todo, session.StartRequest{
		Name:              req.str("name"),
		Agent:             req.actor(),
		Scope:             scope,
		AllowSoftConflict: req.boolean("allowOverlap"),
	})
	if err != nil {
		return nil, err
	}
	if err := saveSessions(ctx, env, req, sessions, todo, res.Session.ID, res.Session); err != nil {
		return nil, err
	}
	if !req.DryRun {
		if merr := env.Recorder.SessionStart(ctx, res.Session.ID); merr != nil {
			env.Logger.Warn("session start metrics not recorded", zap.Error(merr))
		}
	}
	return res, nil
}

func opSessionEnd(ctx context.Context, env *Env, req Request) (any, error) {
	id, err := req.requireStr("id")
	if err != nil {
		return nil, err
	}
	todo, _, sessions, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	s, err := env.Sessions.End(sessions, id)
	if err != nil {
		return nil, err
	}
	if err := saveSessions(ctx, env, req, sessions, todo, s.ID, s); err != nil {
		return nil, err
	}
	if !req.DryRun {
		if merr := env.Recorder.SessionEnd(ctx, s.ID); merr != nil {
			env.Logger.Warn("session end metrics not recorded", zap.Error(merr))
		}
	}
	return s, nil
}

func opSessionResume(ctx context.Context, env *Env, req Request) (any, error) {
	id, err := req.requireStr("id")
	if err != nil {
		return nil, err
	}
	todo, _, sessions, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	s, err := env.Sessions.Resume(sessions, todo, id)
	if err != nil {
		return nil, err
	}
	if err := saveSessions(ctx, env, req, sessions, todo, s.ID, s); err != nil {
		return nil, err
	}
	return s, nil
}

func opSessionSuspend(ctx context.Context, env *Env, req Request) (any, error) {
	id, err := req.requireStr("id")
	if err != nil {
		return nil, err
	}
	todo, _, sessions, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	s, err := env.Sessions.Suspend(sessions, id)
	if err != nil {
		return nil, err
	}
	if err := saveSessions(ctx, env, req, sessions, todo, s.ID, s); err != nil {
		return nil, err
	}
	return s, nil
}

func opSessionStatus(ctx context.Context, env *Env, req Request) (any, error) {
	sessions, err := env.Accessor.LoadSessions(ctx)
	if err != nil {
		return nil, err
	}
	if id := req.str("id"); id != "" {
		s := sessions.FindSession(id)
		if s == nil {
			return nil, model.NewError(model.ErrNotFound, "session %s not found", id)
		}
		return s, nil
	}
	return sessions.ActiveSessions(), nil
}

func opSessionGC(ctx context.Context, env *Env, req Request) (any, error) {
	todo, _, sessions, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	orphaned := env.Sessions.GC(sessions)
	if len(orphaned) > 0 {
		if err := saveSessions(ctx, env, req, sessions, todo, "", map[string]int{"orphaned": len(orphaned)}); err != nil {
			return nil, err
		}
	}
	return map[string]any{"orphaned": sessionIDs(orphaned)}, nil
}

func opFocusSet(ctx context.Context, env *Env, req Request) (any, error) {
	sessionID, err := req.requireStr("sessionId")
	if err != nil {
		return nil, err
	}
	taskID, err := req.requireStr("taskId")
	if err != nil {
		return nil, err
	}
	todo, archive, sessions, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	s, err := env.Sessions.SetFocus(sessions, todo, sessionID, taskID)
	if err != nil {
		return nil, err
	}
	// Focus may flip the task pending->active, so both documents persist.
	if err := saveTodo(ctx, env, req, todo, archive, taskID, nil, nil); err != nil {
		return nil, err
	}
	if err := saveSessions(ctx, env, req, sessions, todo, s.ID, s.Focus); err != nil {
		return nil, err
	}
	return s, nil
}

func opFocusClear(ctx context.Context, env *Env, req Request) (any, error) {
	sessionID, err := req.requireStr("sessionId")
	if err != nil {
		return nil, err
	}
	todo, _, sessions, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	s, err := env.Sessions.ClearFocus(sessions, sessionID)
	if err != nil {
		return nil, err
	}
	if err := saveSessions(ctx, env, req, sessions, todo, s.ID, s.Focus); err != nil {
		return nil, err
	}
	return s, nil
}

func opFocusShow(ctx context.Context, env *Env, req Request) (any, error) {
	sessionID, err := req.requireStr("sessionId")
	if err != nil {
		return nil, err
	}
	sessions, err := env.Accessor.LoadSessions(ctx)
	if err != nil {
		return nil, err
	}
	s := sessions.FindSession(sessionID)
	if s == nil {
		return nil, model.NewError(model.ErrNotFound, "session %s not found", sessionID)
	}
	return s.Focus, nil
}

func opFocusHistory(ctx context.Context, env *Env, req Request) (any, error) {
	sessionID, err := req.requireStr("sessionId")
	if err != nil {
		return nil, err
	}
	sessions, err := env.Accessor.LoadSessions(ctx)
	if err != nil {
		return nil, err
	}
	s := sessions.FindSession(sessionID)
	if s == nil {
		return nil, model.NewError(model.ErrNotFound, "session %s not found", sessionID)
	}
	return s.History, nil
}

func sessionIDs(sessions []*model.Session) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID
	}
	return out
}
