package validate

import (
	"fmt"

	"github.com/dsj7419/cleo/internal/model"
)

// Layer 3: cross-entity invariants over whole documents.

func (v *Validator) crossTodo(doc *model.TodoFile, archive *model.ArchiveFile, res *Result) {
	byID := make(map[string]*model.Task, len(doc.Tasks))
	for i, t := range doc.Tasks {
		field := fmt.Sprintf("tasks[%d]", i)
		if _, dup := byID[t.ID]; dup {
			res.addError(field+".id", "ID_DUPLICATE", "task id %s appears more than once", t.ID)
			continue
		}
		byID[t.ID] = t
	}

	if archive != nil {
		for _, at := range archive.Tasks {
			if _, clash := byID[at.ID]; clash {
				res.addError("tasks", "ID_ARCHIVE_CLASH",
					"task id %s exists in both the active and archive documents", at.ID)
			}
		}
	}

	for i, t := range doc.Tasks {
		field := fmt.Sprintf("tasks[%d]", i)

		if t.ParentID != "" {
			if t.ParentID == t.ID {
				res.addError(field+".parentId", "PARENT_SELF", "task %s is its own parent", t.ID)
			} else if _, ok := byID[t.ParentID]; !ok {
				res.addError(field+".parentId", "PARENT_MISSING",
					"task %s references missing parent %s", t.ID, t.ParentID)
			}
		}

		seen := map[string]bool{}
		for _, dep := range t.Depends {
			if dep == t.ID {
				res.addError(field+".depends", "DEP_SELF", "task %s depends on itself", t.ID)
				continue
			}
			if seen[dep] {
				res.addError(field+".depends", "DEP_DUPLICATE",
					"task %s lists dependency %s twice", t.ID, dep)
			}
			seen[dep] = true
			if _, ok := byID[dep]; !ok {
				res.addError(field+".depends", "DEP_MISSING",
					"task %s depends on missing task %s", t.ID, dep)
			}
		}

		for j, rel := range t.Relates {
			if _, ok := byID[rel.TaskID]; !ok {
				if archive == nil || archive.FindArchived(rel.TaskID) == nil {
					res.addWarning(fmt.Sprintf("%s.relates[%d]", field, j), "RELATION_DANGLING",
						"task %s relates to unknown task %s", t.ID, rel.TaskID)
				}
			}
		}

		if t.Phase != "" {
			if _, ok := doc.Project.Phases[t.Phase]; !ok {
				res.addError(field+".phase", "PHASE_MISSING",
					"task %s names unknown phase %q", t.ID, t.Phase)
			}
		}

		if t.Verification != nil {
			checkGateChain(t, field, res)
		}
	}

	checkParentCycles(doc, byID, res)
	checkDependencyCycles(doc, byID, res)
	checkDepth(doc, v.cfg.MaxDepth, res)
	checkPhases(&doc.Project, res)
}

// checkGateChain enforces the prefix property: a true gate requires every
// earlier gate in the chain to be true.
func checkGateChain(t *model.Task, field string, res *Result) {
	ver := t.Verification
	for i, g := range model.GateChain {
		if !ver.Gates[g] {
			continue
		}
		for _, earlier := range model.GateChain[:i] {
			if !ver.Gates[earlier] {
				res.addError(field+".verification.gates", "GATE_CHAIN_BROKEN",
					"task %s gate %s is true but predecessor %s is not", t.ID, g, earlier)
			}
		}
	}
	if ver.Round < 0 {
		res.addError(field+".verification.round", "ROUND_NEGATIVE",
			"task %s verification round is negative", t.ID)
	}
}

// checkParentCycles walks each parent chain with a visited set.
func checkParentCycles(doc *model.TodoFile, byID map[string]*model.Task, res *Result) {
	for _, t := range doc.Tasks {
		visited := map[string]bool{t.ID: true}
		cur := t
		for cur.ParentID != "" {
			next, ok := byID[cur.ParentID]
			if !ok {
				break
			}
			if visited[next.ID] {
				res.addError("tasks", "PARENT_CYCLE",
					"parent chain of task %s contains a cycle through %s", t.ID, next.ID)
				break
			}
			visited[next.ID] = true
			cur = next
		}
	}
}

// checkDependencyCycles runs a three-color DFS over the depends edges.
func checkDependencyCycles(doc *model.TodoFile, byID map[string]*model.Task, res *Result) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(doc.Tasks))

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		t := byID[id]
		if t != nil {
			for _, dep := range t.Depends {
				if _, ok := byID[dep]; !ok {
					continue
				}
				switch color[dep] {
				case gray:
					return false
				case white:
					if !visit(dep) {
						return false
					}
				}
			}
		}
		color[id] = black
		return true
	}

	for _, t := range doc.Tasks {
		if color[t.ID] == white {
			if !visit(t.ID) {
				res.addError("tasks", "DEP_CYCLE",
					"dependency graph contains a cycle through %s", t.ID)
				return
			}
		}
	}
}

func checkDepth(doc *model.TodoFile, maxDepth int, res *Result) {
	for _, t := range doc.Tasks {
		if d := doc.Depth(t.ID); d > maxDepth {
			res.addError("tasks", "DEPTH_EXCEEDED",
				"task %s sits at depth %d, maximum is %d", t.ID, d, maxDepth)
		}
	}
}

func checkPhases(p *model.Project, res *Result) {
	active := ""
	for name, ph := range p.Phases {
		if ph.Status == model.PhaseActive {
			if active != "" {
				res.addError("project.phases", "PHASE_MULTIPLE_ACTIVE",
					"phases %q and %q are both active", active, name)
			}
			active = name
		}
	}
	if p.CurrentPhase != "" {
		ph, ok := p.Phases[p.CurrentPhase]
		if !ok {
			res.addError("project.currentPhase", "CURRENT_PHASE_MISSING",
				"currentPhase %q does not exist", p.CurrentPhase)
		} else if ph.Status != model.PhaseActive {
			res.addError("project.currentPhase", "CURRENT_PHASE_INACTIVE",
				"currentPhase %q is %s, expected active", p.CurrentPhase, ph.Status)
		}
	} else if active != "" {
		res.addError("project.currentPhase", "CURRENT_PHASE_UNSET",
			"phase %q is active but currentPhase is empty", active)
	}
}

func (v *Validator) crossSessions(doc *model.SessionsFile, todo *model.TodoFile, res *Result) {
	seen := map[string]bool{}
	for i, s := range doc.Sessions {
		field := fmt.Sprintf("sessions[%d]", i)
		if seen[s.ID] {
			res.addError(field+".id", "ID_DUPLICATE", "session id %s appears more than once", s.ID)
		}
		seen[s.ID] = true

		open := 0
		for _, h := range s.History {
			if h.ClearedAt == nil {
				open++
			}
		}
		if open > 1 {
			res.addError(field+".focusHistory", "FOCUS_MULTIPLE_OPEN",
				"session %s has %d open focus rows, at most one allowed", s.ID, open)
		}
		if s.Focus.TaskID != "" && open == 0 {
			res.addError(field+".focus", "FOCUS_NO_HISTORY",
				"session %s holds focus on %s without an open history row", s.ID, s.Focus.TaskID)
		}

		if todo != nil {
			if root := s.Scope.Root(); root != "" && todo.FindTask(root) == nil {
				res.addError(field+".scope", "SCOPE_ROOT_MISSING",
					"session %s scope is rooted at missing task %s", s.ID, root)
			}
			if s.Focus.TaskID != "" {
				ft := todo.FindTask(s.Focus.TaskID)
				if ft == nil {
					res.addError(field+".focus", "FOCUS_TASK_MISSING",
						"session %s focuses missing task %s", s.ID, s.Focus.TaskID)
				} else if !ScopeContains(todo, s.Scope, ft.ID) {
					res.addError(field+".focus", "FOCUS_OUT_OF_SCOPE",
						"session %s focus %s is outside its scope", s.ID, ft.ID)
				}
			}
		}
	}
}

// ScopeContains reports whether a task lies inside a session scope.
func ScopeContains(todo *model.TodoFile, scope model.Scope, taskID string) bool {
	switch scope.Type {
	case model.ScopeGlobal:
		return true
	case model.ScopeCustom:
		for _, id := range scope.TaskIDs {
			if id == taskID {
				return true
			}
		}
		return false
	default:
		root := scope.Root()
		if root == "" {
			return false
		}
		if taskID == root {
			return true
		}
		for _, d := range todo.Descendants(root) {
			if d.ID == taskID {
				return true
			}
		}
		return false
	}
}
