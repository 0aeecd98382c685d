package graph

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/model"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func seed(id string, status model.Status, depends ...string) *model.Task {
	return &model.Task{
		ID:        id,
		Title:     "task " + id,
		Status:    status,
		Priority:  model.PriorityMedium,
		Type:      model.TypeTask,
		Depends:   depends,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
}

// diamond: T002 and T003 both depend on T001; T004 depends on both.
func diamond() []*model.Task {
	return []*model.Task{
		seed("T001", model.StatusPending),
		seed("T002", model.StatusPending, "T001"),
		seed("T003", model.StatusPending, "T001"),
		seed("T004", model.StatusPending, "T002", "T003"),
	}
}

func TestTopoSortRespectsDependencies(t *testing.T) {
	order := New(diamond()).TopoSort()

	want := []string{"T001", "T002", "T003", "T004"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("topo order mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeWavesDiamond(t *testing.T) {
	waves := New(diamond()).ComputeWaves()

	want := [][]string{{"T001"}, {"T002", "T003"}, {"T004"}}
	if diff := cmp.Diff(want, waves); diff != "" {
		t.Errorf("waves mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeWavesTreatsTerminalDepsAsSatisfied(t *testing.T) {
	tasks := diamond()
	tasks[0].Status = model.StatusDone

	waves := New(tasks).ComputeWaves()
	want := [][]string{{"T002", "T003"}, {"T004"}}
	if diff := cmp.Diff(want, waves); diff != "" {
		t.Errorf("waves mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeWavesCycleEmitsFinalWave(t *testing.T) {
	tasks := []*model.Task{
		seed("T001", model.StatusPending, "T002"),
		seed("T002", model.StatusPending, "T001"),
		seed("T003", model.StatusPending),
	}

	waves := New(tasks).ComputeWaves()
	want := [][]string{{"T003"}, {"T001", "T002"}}
	if diff := cmp.Diff(want, waves); diff != "" {
		t.Errorf("waves mismatch (-want +got):\n%s", diff)
	}
}

func TestNextTaskPrefersActiveThenPriority(t *testing.T) {
	tasks := []*model.Task{
		seed("T001", model.StatusPending),
		seed("T002", model.StatusActive),
		seed("T003", model.StatusPending),
	}
	tasks[0].Priority = model.PriorityCritical

	next := New(tasks).NextTask()
	require.NotNil(t, next)
	assert.Equal(t, "T002", next.ID, "an already-active task continues before anything else starts")

	tasks[1].Status = model.StatusDone
	next = New(tasks).NextTask()
	require.NotNil(t, next)
	assert.Equal(t, "T001", next.ID, "highest priority ready task wins")
}

func TestNextTaskSkipsBlockedAndUnready(t *testing.T) {
	tasks := []*model.Task{
		seed("T001", model.StatusBlocked),
		seed("T002", model.StatusPending, "T001"),
	}
	assert.Nil(t, New(tasks).NextTask())
}

func TestCriticalPathFollowsLongestChain(t *testing.T) {
	tasks := append(diamond(),
		seed("T005", model.StatusPending, "T004"),
		seed("T006", model.StatusPending), // isolated
	)

	path := New(tasks).CriticalPath()
	require.Len(t, path, 4)
	assert.Equal(t, "T001", path[0])
	assert.Equal(t, "T004", path[2])
	assert.Equal(t, "T005", path[3])
}

func TestBlockersListsUnsatisfiedDeps(t *testing.T) {
	tasks := diamond()
	tasks[1].Status = model.StatusDone // T002 done

	blockers := New(tasks).Blockers()
	want := map[string][]string{
		"T003": {"T001"},
		"T004": {"T003"},
	}
	if diff := cmp.Diff(want, blockers); diff != "" {
		t.Errorf("blockers mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeRanksByLeverage(t *testing.T) {
	tasks := diamond()
	tasks[0].Size = model.SizeSmall

	recs := New(tasks).Analyze(nil, config.StrategyQuickWins)
	require.NotEmpty(t, recs)
	// Only T001 is ready; it unblocks all three others, weighted x3 for small
	// under quick-wins.
	assert.Equal(t, "T001", recs[0].TaskID)
	assert.Equal(t, 3, recs[0].Unblocks)
	assert.InDelta(t, 9.0, recs[0].Leverage, 1e-9)
}

func TestAnalyzePhaseBoost(t *testing.T) {
	project := &model.Project{
		Phases: map[string]model.Phase{
			"core":   {Name: "core", Order: 1, Status: model.PhaseActive},
			"polish": {Name: "polish", Order: 2, Status: model.PhasePending},
		},
		CurrentPhase: "core",
	}
	a := seed("T001", model.StatusPending)
	a.Phase = "core"
	b := seed("T002", model.StatusPending)
	b.Phase = "polish"
	c := seed("T003", model.StatusPending, "T001")
	d := seed("T004", model.StatusPending, "T002")

	recs := New([]*model.Task{a, b, c, d}).Analyze(project, config.StrategyBalanced)
	require.GreaterOrEqual(t, len(recs), 2)
	// Both unblock one task each, but T001 sits in the current phase (x1.5)
	// against T002's adjacent phase (x1.25).
	assert.Equal(t, "T001", recs[0].TaskID)
	assert.InDelta(t, 1.5, recs[0].Leverage, 1e-9)
	assert.Equal(t, "T002", recs[1].TaskID)
	assert.InDelta(t, 1.25, recs[1].Leverage, 1e-9)
}

func TestStalenessClassification(t *testing.T) {
	cfg := config.Default() // stale 7d, critical 14d, abandoned 30d

	fresh := seed("T001", model.StatusPending)
	stale := seed("T002", model.StatusPending)
	stale.CreatedAt = testNow.AddDate(0, 0, -8)
	stale.UpdatedAt = stale.CreatedAt
	critical := seed("T003", model.StatusPending)
	critical.CreatedAt = testNow.AddDate(0, 0, -20)
	critical.UpdatedAt = critical.CreatedAt
	abandoned := seed("T004", model.StatusPending)
	abandoned.CreatedAt = testNow.AddDate(0, 0, -45)
	abandoned.UpdatedAt = abandoned.CreatedAt
	doneOld := seed("T005", model.StatusDone)
	doneOld.CreatedAt = testNow.AddDate(0, 0, -90)
	doneOld.UpdatedAt = doneOld.CreatedAt

	reports := Staleness([]*model.Task{fresh, stale, critical, abandoned, doneOld}, cfg, testNow)
	byID := map[string]StalenessClass{}
	for _, r := range reports {
		byID[r.TaskID] = r.Class
	}
	assert.Equal(t, Fresh, byID["T001"])
	assert.Equal(t, Stale, byID["T002"])
	assert.Equal(t, Critical, byID["T003"])
	assert.Equal(t, Abandoned, byID["T004"])
	assert.Equal(t, Fresh, byID["T005"], "terminal tasks never demand attention")
}
