// Package graph implements the pure algorithms over the task graph:
// topological ordering, dependency waves, next-task selection, critical
// path, leverage analysis, and staleness. Everything here is a function of
// an in-memory task list; no I/O, no clocks except those passed in.
package graph

import (
	"sort"

	"github.com/dsj7419/cleo/internal/model"
)

// Graph is a fixed snapshot of the active task list indexed for traversal.
type Graph struct {
	tasks []*model.Task
	byID  map[string]*model.Task
	// dependents inverts the depends edges: dependents[a] lists tasks that
	// depend on a.
	dependents map[string][]string
}

// New builds a graph from the active task list. Edges to unknown ids are
// dropped; reference validity is the validator's concern.
func New(tasks []*model.Task) *Graph {
	g := &Graph{
		tasks:      tasks,
		byID:       make(map[string]*model.Task, len(tasks)),
		dependents: make(map[string][]string),
	}
	for _, t := range tasks {
		g.byID[t.ID] = t
	}
	for _, t := range tasks {
		for _, dep := range t.Depends {
			if _, ok := g.byID[dep]; ok {
				g.dependents[dep] = append(g.dependents[dep], t.ID)
			}
		}
	}
	return g
}

// Task returns the task with the given id, or nil.
func (g *Graph) Task(id string) *model.Task { return g.byID[id] }

// Tasks returns the underlying snapshot.
func (g *Graph) Tasks() []*model.Task { return g.tasks }

// activeDeps returns t's dependencies that are neither done nor cancelled
// and exist in the graph. Terminal dependencies count as satisfied.
func (g *Graph) activeDeps(t *model.Task) []string {
	var out []string
	for _, dep := range t.Depends {
		d, ok := g.byID[dep]
		if !ok {
			continue
		}
		if !d.Status.Terminal() {
			out = append(out, dep)
		}
	}
	return out
}

// TopoSort orders tasks by Kahn's algorithm over the depends edges. When the
// graph contains a cycle the fallback ordering sorts by priority rank, then
// id, so callers always get a total order.
func (g *Graph) TopoSort() []string {
	indeg := make(map[string]int, len(g.tasks))
	for _, t := range g.tasks {
		indeg[t.ID] = 0
	}
	for _, t := range g.tasks {
		for _, dep := range t.Depends {
			if _, ok := g.byID[dep]; ok {
				indeg[t.ID]++
			}
		}
	}

	var frontier []string
	for id, d := range indeg {
		if d == 0 {
			frontier = append(frontier, id)
		}
	}
	sort.Strings(frontier)

	order := make([]string, 0, len(g.tasks))
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		order = append(order, id)
		next := append([]string(nil), g.dependents[id]...)
		sort.Strings(next)
		for _, dep := range next {
			indeg[dep]--
			if indeg[dep] == 0 {
				frontier = append(frontier, dep)
			}
		}
		sort.Strings(frontier)
	}

	if len(order) == len(g.tasks) {
		return order
	}

	// Cycle fallback: total order by priority then id.
	fallback := make([]*model.Task, len(g.tasks))
	copy(fallback, g.tasks)
	sort.Slice(fallback, func(i, j int) bool {
		a, b := fallback[i], fallback[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		return a.ID < b.ID
	})
	order = order[:0]
	for _, t := range fallback {
		order = append(order, t.ID)
	}
	return order
}

// ComputeWaves partitions the non-terminal tasks into dependency waves. A
// task joins the earliest wave in which all of its active dependencies have
// appeared in earlier waves; completed and cancelled dependencies count as
// satisfied. Each wave is sorted by id. If progress stalls (a cycle), every
// remaining task is emitted as one final wave: the algorithm is total, the
// invariant violation is the validator's concern.
func (g *Graph) ComputeWaves() [][]string {
	remaining := make(map[string]bool)
	for _, t := range g.tasks {
		if !t.Status.Terminal() {
			remaining[t.ID] = true
		}
	}

	pending := make(map[string]int, len(remaining))
	for id := range remaining {
		n := 0
		for _, dep := range g.activeDeps(g.byID[id]) {
			if remaining[dep] {
				n++
			}
		}
		pending[id] = n
	}

	var waves [][]string
	for len(remaining) > 0 {
		var wave []string
		for id := range remaining {
			if pending[id] == 0 {
				wave = append(wave, id)
			}
		}
		if len(wave) == 0 {
			// Cyclic remainder.
			for id := range remaining {
				wave = append(wave, id)
			}
			sort.Strings(wave)
			waves = append(waves, wave)
			break
		}
		sort.Strings(wave)
		waves = append(waves, wave)
		for _, id := range wave {
			delete(remaining, id)
			for _, dep := range g.dependents[id] {
				if remaining[dep] {
					pending[dep]--
				}
			}
		}
	}
	return waves
}

// NextTask picks the task to work on: non-terminal tasks whose active
// dependencies are all satisfied, already-active tasks first (they
// continue), then priority, then id. Returns nil when nothing is ready.
func (g *Graph) NextTask() *model.Task {
	var ready []*model.Task
	for _, t := range g.tasks {
		if t.Status.Terminal() || t.Status == model.StatusBlocked {
			continue
		}
		if len(g.activeDeps(t)) == 0 {
			ready = append(ready, t)
		}
	}
	if len(ready) == 0 {
		return nil
	}
	sort.Slice(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		aActive := a.Status == model.StatusActive
		bActive := b.Status == model.StatusActive
		if aActive != bActive {
			return aActive
		}
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		return a.ID < b.ID
	})
	return ready[0]
}

// CriticalPath returns one longest dependency chain through the non-terminal
// graph, as an ordered id list from first to last. Longest-chain distance is
// computed by dynamic programming over the topological order; ties break
// toward the higher predecessor id.
func (g *Graph) CriticalPath() []string {
	order := g.TopoSort()

	dist := make(map[string]int, len(order))
	prev := make(map[string]string, len(order))
	for _, id := range order {
		t := g.byID[id]
		if t == nil || t.Status.Terminal() {
			continue
		}
		dist[id] = 1
		for _, dep := range g.activeDeps(t) {
			if d, ok := dist[dep]; ok {
				cand := d + 1
				if cand > dist[id] || (cand == dist[id] && dep > prev[id]) {
					dist[id] = cand
					prev[id] = dep
				}
			}
		}
	}

	end, best := "", 0
	for id, d := range dist {
		if d > best || (d == best && id > end) {
			end, best = id, d
		}
	}
	if end == "" {
		return nil
	}

	var path []string
	for id := end; id != ""; id = prev[id] {
		path = append(path, id)
	}
	// Reverse into dependency order.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Blockers returns, per blocked or dependency-waiting task, the ids of the
// unsatisfied dependencies holding it up.
func (g *Graph) Blockers() map[string][]string {
	out := map[string][]string{}
	for _, t := range g.tasks {
		if t.Status.Terminal() {
			continue
		}
		if deps := g.activeDeps(t); len(deps) > 0 {
			sort.Strings(deps)
			out[t.ID] = deps
		}
	}
	return out
}
