package graph

import (
	"sort"

	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/model"
)

// Recommendation is one analyze result row.
type Recommendation struct {
	TaskID     string  `json:"taskId"`
	Title      string  `json:"title"`
	Leverage   float64 `json:"leverage"`
	Unblocks   int     `json:"unblocks"`
	Confidence float64 `json:"confidence"`
	Priority   model.Priority `json:"priority"`
}

// sizeWeights are the three fixed weighting tables, keyed by strategy. The
// row order is small, medium, large.
var sizeWeights = map[config.SizeStrategy][3]float64{
	config.StrategyQuickWins: {3, 2, 1},
	config.StrategyBigImpact: {1, 2, 3},
	config.StrategyBalanced:  {1, 1, 1},
}

func sizeWeight(strategy config.SizeStrategy, size model.Size) float64 {
	w, ok := sizeWeights[strategy]
	if !ok {
		w = sizeWeights[config.StrategyBalanced]
	}
	switch size {
	case model.SizeSmall:
		return w[0]
	case model.SizeLarge:
		return w[2]
	default:
		return w[1]
	}
}

// phaseBoost multiplies tasks in the current phase by 1.5 and tasks in an
// adjacent phase by 1.25.
func phaseBoost(project *model.Project, taskPhase string) float64 {
	if project == nil || project.CurrentPhase == "" || taskPhase == "" {
		return 1.0
	}
	if taskPhase == project.CurrentPhase {
		return 1.5
	}
	if project.AdjacentPhases(taskPhase, project.CurrentPhase) {
		return 1.25
	}
	return 1.0
}

// Analyze scores every ready task by leverage: the number of descendants and
// dependents unblocked by completing it, weighted by the size strategy and
// the phase boost. Ordering is leverage descending, then priority, then id.
func (g *Graph) Analyze(project *model.Project, strategy config.SizeStrategy) []Recommendation {
	unblocks := g.unblockCounts()

	var recs []Recommendation
	for _, t := range g.tasks {
		if t.Status.Terminal() || t.Status == model.StatusBlocked {
			continue
		}
		if len(g.activeDeps(t)) > 0 {
			continue
		}
		n := unblocks[t.ID]
		leverage := float64(n) * sizeWeight(strategy, t.Size) * phaseBoost(project, t.Phase)
		recs = append(recs, Recommendation{
			TaskID:     t.ID,
			Title:      t.Title,
			Leverage:   leverage,
			Unblocks:   n,
			Confidence: confidence(t, n),
			Priority:   t.Priority,
		})
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Leverage != recs[j].Leverage {
			return recs[i].Leverage > recs[j].Leverage
		}
		a, b := g.byID[recs[i].TaskID], g.byID[recs[j].TaskID]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		return recs[i].TaskID < recs[j].TaskID
	})
	return recs
}

// unblockCounts computes, per task, how many transitive dependents become
// reachable once it completes.
func (g *Graph) unblockCounts() map[string]int {
	out := make(map[string]int, len(g.tasks))
	for _, t := range g.tasks {
		seen := map[string]bool{}
		queue := append([]string(nil), g.dependents[t.ID]...)
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			if seen[id] {
				continue
			}
			seen[id] = true
			queue = append(queue, g.dependents[id]...)
		}
		out[t.ID] = len(seen)
	}
	return out
}

// confidence reflects how much signal the recommendation rests on: tasks
// with explicit size and at least one dependent score higher than bare
// guesses. Always within [0, 1].
func confidence(t *model.Task, unblocks int) float64 {
	c := 0.5
	if t.Size != "" {
		c += 0.2
	}
	if unblocks > 0 {
		c += 0.2
	}
	if t.Priority == model.PriorityCritical || t.Priority == model.PriorityHigh {
		c += 0.1
	}
	if c > 1 {
		c = 1
	}
	return c
}
