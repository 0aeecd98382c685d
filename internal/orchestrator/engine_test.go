package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dsj7419/cleo/internal/compliance"
	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/fsstore"
	"github.com/dsj7419/cleo/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type tickingClock struct {
	t time.Time
}

func (c *tickingClock) Now() time.Time { return c.t }

func testOrchestrator(t *testing.T) (*Orchestrator, *tickingClock) {
	t.Helper()
	root := t.TempDir()
	paths := config.Paths{
		ProjectRoot: root,
		StateDir:    filepath.Join(root, ".cleo"),
		GlobalDir:   filepath.Join(root, "global"),
	}
	require.NoError(t, paths.EnsureStateDir())
	clock := &tickingClock{t: testNow}
	return New(config.Default(), paths, fsstore.New(), clock, nil, nil), clock
}

// epicFixture builds the decomposition scenario: epic T001 with children
// T002, T003, and T004 which depends on both.
func epicFixture() *model.TodoFile {
	todo := model.NewTodoFile("demo")
	add := func(id string, typ model.TaskType, deps ...string) {
		parent := ""
		if typ != model.TypeEpic {
			parent = "T001"
		}
		t := &model.Task{
			ID: id, Title: "task " + id, Status: model.StatusPending,
			Priority: model.PriorityMedium, Type: typ, ParentID: parent, Depends: deps,
			CreatedAt: testNow, UpdatedAt: testNow,
		}
		if typ != model.TypeEpic {
			t.Verification = model.NewVerification("user")
		}
		todo.Tasks = append(todo.Tasks, t)
	}
	add("T001", model.TypeEpic)
	add("T002", model.TypeTask)
	add("T003", model.TypeTask)
	add("T004", model.TypeTask, "T002", "T003")
	return todo
}

func TestWavesAndNext(t *testing.T) {
	o, _ := testOrchestrator(t)
	todo := epicFixture()

	waves, err := o.Waves(todo, "T001")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"T002", "T003"}, {"T004"}}, waves)

	ready, err := o.Ready(todo, "T001")
	require.NoError(t, err)
	assert.Equal(t, []string{"T002", "T003"}, ready)

	next, err := o.Next(todo, "T001")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "T002", next.ID)
}

func TestWavesRequireAnEpic(t *testing.T) {
	o, _ := testOrchestrator(t)
	todo := epicFixture()

	_, err := o.Waves(todo, "T002")
	var cerr *model.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, model.ErrInvalidInput, cerr.Code)
}

func TestSpawnComposesResolvedPrompt(t *testing.T) {
	o, _ := testOrchestrator(t)
	todo := epicFixture()

	res, err := o.Spawn(context.Background(), todo, "T001", "T002")
	require.NoError(t, err)
	assert.True(t, res.TokenResolution.FullyResolved)
	assert.Equal(t, ProtocolImplementation, res.Protocol)
	assert.Contains(t, res.Prompt, "T002")
	assert.Contains(t, res.Prompt, "T001")
	assert.Contains(t, res.Prompt, "2026-03-14")
	assert.NotContains(t, res.Prompt, "{taskId}")
	assert.Equal(t, testNow.Add(60*time.Minute), res.Deadline)
}

func TestSpawnRefusesUnreadyTask(t *testing.T) {
	o, _ := testOrchestrator(t)
	todo := epicFixture()

	_, err := o.Spawn(context.Background(), todo, "T001", "T004")
	var cerr *model.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, model.ErrStateConflict, cerr.Code)
}

func TestSpawnWaveCoversWaveZero(t *testing.T) {
	o, _ := testOrchestrator(t)
	todo := epicFixture()

	results, err := o.SpawnWave(context.Background(), todo, "T001")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "T002", results[0].TaskID)
	assert.Equal(t, "T003", results[1].TaskID)
}

func TestProtocolDispatch(t *testing.T) {
	cases := []struct {
		title string
		typ   model.TaskType
		want  ProtocolKind
	}{
		{"Research retry semantics", model.TypeTask, ProtocolResearch},
		{"Break down the migration epic", model.TypeTask, ProtocolDecomposition},
		{"Write the storage spec", model.TypeTask, ProtocolSpecification},
		{"Upstream the fsnotify fix", model.TypeTask, ProtocolContribution},
		{"Reach consensus on naming", model.TypeTask, ProtocolConsensus},
		{"Ship v2.1.0", model.TypeTask, ProtocolRelease},
		{"Fix the lock timeout", model.TypeTask, ProtocolImplementation},
		{"Anything at all", model.TypeEpic, ProtocolDecomposition},
	}
	for _, tc := range cases {
		got := DispatchProtocol(&model.Task{ID: "T001", Title: tc.title, Type: tc.typ})
		assert.Equal(t, tc.want, got, tc.title)
	}
}

func TestRecordReturnCompliantPath(t *testing.T) {
	o, _ := testOrchestrator(t)
	todo := epicFixture()
	ctx := context.Background()

	_, err := o.Spawn(ctx, todo, "T001", "T002")
	require.NoError(t, err)

	entry := compliance.NewManifestEntry(testNow)
	entry.Title = "T002 findings"
	entry.File = "research/t002.md"
	entry.Topics = []string{"locking"}
	entry.LinkedTasks = []string{"T002"}
	entry.FindingsSummary = "flock with retry loop"
	entry.AgentType = "implementation"

	res, err := o.RecordReturn(ctx, todo, Return{
		TaskID:   "T002",
		Output:   "TASK COMPLETE: T002 - manifest entry appended.",
		Manifest: &entry,
	})
	require.NoError(t, err)
	assert.True(t, res.Record.Passed())
	assert.True(t, res.GateMarked)

	task := todo.FindTask("T002")
	assert.True(t, task.Verification.Gates[model.GateImplemented])
	require.Len(t, task.Notes, 1)

	entries, err := o.Manifests().Read()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "T002 findings", entries[0].Title)

	// The spawn is accounted for: no blocked report even past the deadline.
	blocked, err := o.CheckBlocked(ctx)
	require.NoError(t, err)
	assert.Empty(t, blocked)
}

func TestCheckBlockedReportsMissedDeadlines(t *testing.T) {
	o, clock := testOrchestrator(t)
	todo := epicFixture()
	ctx := context.Background()

	_, err := o.Spawn(ctx, todo, "T001", "T002")
	require.NoError(t, err)

	// Before the deadline nothing is blocked.
	blocked, err := o.CheckBlocked(ctx)
	require.NoError(t, err)
	assert.Empty(t, blocked)

	clock.t = testNow.Add(2 * time.Hour)
	blocked, err = o.CheckBlocked(ctx)
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.Equal(t, "T002", blocked[0].TaskID)
	assert.Equal(t, model.StatusPending, todo.FindTask("T002").Status, "task keeps its prior state")

	records, err := o.Scorer().ReadRecords()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, compliance.IntegrityMissing, records[0].Integrity)

	// A second check does not re-report the same miss.
	blocked, err = o.CheckBlocked(ctx)
	require.NoError(t, err)
	assert.Empty(t, blocked)
}
