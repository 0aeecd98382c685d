package task

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/model"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newMutator(t *testing.T) *Mutator {
	t.Helper()
	return NewMutator(config.Default(), model.FixedClock{T: testNow})
}

func seedTask(todo *model.TodoFile, id, parent string, status model.Status) *model.Task {
	t := &model.Task{
		ID:        id,
		Title:     "task " + id,
		Status:    status,
		Priority:  model.PriorityMedium,
		Type:      model.TypeTask,
		ParentID:  parent,
		CreatedAt: testNow.Add(-time.Hour),
		UpdatedAt: testNow.Add(-time.Hour),
	}
	todo.Tasks = append(todo.Tasks, t)
	return t
}

func TestAddDefaultsAndIDAllocation(t *testing.T) {
	m := newMutator(t)
	todo := model.NewTodoFile("demo")
	archive := model.NewArchiveFile()

	got, err := m.Add(todo, archive, AddRequest{Title: "  first task  "})
	require.NoError(t, err)
	assert.Equal(t, "T001", got.ID)
	assert.Equal(t, "first task", got.Title)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, model.PriorityMedium, got.Priority)
	assert.Equal(t, model.TypeTask, got.Type)
	require.NotNil(t, got.Verification)

	// Archived ids count toward allocation so ids are never reused.
	archive.Tasks = append(archive.Tasks, &model.Task{ID: "T007"})
	next, err := m.Add(todo, archive, AddRequest{Title: "second"})
	require.NoError(t, err)
	assert.Equal(t, "T008", next.ID)
}

func TestAddRejectsDeepNesting(t *testing.T) {
	m := newMutator(t)
	todo := model.NewTodoFile("demo")
	seedTask(todo, "T001", "", model.StatusPending)
	seedTask(todo, "T002", "T001", model.StatusPending)
	seedTask(todo, "T003", "T002", model.StatusPending)
	seedTask(todo, "T004", "T003", model.StatusPending)

	_, err := m.Add(todo, model.NewArchiveFile(), AddRequest{Title: "too deep", ParentID: "T004"})
	var cerr *model.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, model.ErrValidation, cerr.Code)
}

func TestAddEpicHasNoVerification(t *testing.T) {
	m := newMutator(t)
	todo := model.NewTodoFile("demo")
	got, err := m.Add(todo, model.NewArchiveFile(), AddRequest{Title: "milestone", Type: model.TypeEpic})
	require.NoError(t, err)
	assert.Nil(t, got.Verification)
}

func TestCompleteAutoCompletesParentChain(t *testing.T) {
	m := newMutator(t)
	todo := model.NewTodoFile("demo")
	seedTask(todo, "T001", "", model.StatusActive).Type = model.TypeEpic
	seedTask(todo, "T002", "T001", model.StatusDone)
	seedTask(todo, "T003", "T001", model.StatusActive)

	changed, err := m.Complete(todo, "T003")
	require.NoError(t, err)
	require.Len(t, changed, 2)

	parent := todo.FindTask("T001")
	assert.Equal(t, model.StatusDone, parent.Status)
	assert.True(t, parent.AutoCompleted)
	require.NotNil(t, parent.CompletedAt)
	assert.Equal(t, testNow, *parent.CompletedAt)
}

func TestCompleteCancelledSiblingBlocksPropagation(t *testing.T) {
	m := newMutator(t)
	todo := model.NewTodoFile("demo")
	seedTask(todo, "T001", "", model.StatusActive)
	seedTask(todo, "T002", "T001", model.StatusCancelled)
	seedTask(todo, "T003", "T001", model.StatusActive)

	changed, err := m.Complete(todo, "T003")
	require.NoError(t, err)
	assert.Len(t, changed, 1)
	assert.Equal(t, model.StatusActive, todo.FindTask("T001").Status)
}

func TestCompleteIsIdempotent(t *testing.T) {
	m := newMutator(t)
	todo := model.NewTodoFile("demo")
	done := seedTask(todo, "T001", "", model.StatusDone)
	before := done.UpdatedAt

	changed, err := m.Complete(todo, "T001")
	require.NoError(t, err)
	assert.Len(t, changed, 1)
	assert.Equal(t, before, done.UpdatedAt)
}

func TestReopenCascadesThroughAutoCompletedAncestors(t *testing.T) {
	m := newMutator(t)
	todo := model.NewTodoFile("demo")
	root := seedTask(todo, "T001", "", model.StatusDone)
	root.AutoCompleted = true
	mid := seedTask(todo, "T002", "T001", model.StatusDone)
	mid.AutoCompleted = true
	seedTask(todo, "T003", "T002", model.StatusDone)

	changed, err := m.Reopen(todo, "T003")
	require.NoError(t, err)
	assert.Len(t, changed, 3)
	for _, id := range []string{"T001", "T002", "T003"} {
		got := todo.FindTask(id)
		assert.Equal(t, model.StatusPending, got.Status, id)
		assert.Nil(t, got.CompletedAt, id)
		assert.False(t, got.AutoCompleted, id)
	}
}

func TestReopenStopsAtManuallyCompletedParent(t *testing.T) {
	m := newMutator(t)
	todo := model.NewTodoFile("demo")
	seedTask(todo, "T001", "", model.StatusDone) // manual, AutoCompleted false
	seedTask(todo, "T002", "T001", model.StatusDone)

	changed, err := m.Reopen(todo, "T002")
	require.NoError(t, err)
	assert.Len(t, changed, 1)
	assert.Equal(t, model.StatusDone, todo.FindTask("T001").Status)
}

func TestCancelBlockStrategyRefusesWithChildren(t *testing.T) {
	m := newMutator(t)
	todo := model.NewTodoFile("demo")
	seedTask(todo, "T001", "", model.StatusActive)
	seedTask(todo, "T002", "T001", model.StatusPending)

	_, err := m.Cancel(todo, CancelRequest{ID: "T001", Reason: "no longer needed", Children: config.ChildBlock})
	var cerr *model.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, model.ErrStateConflict, cerr.Code)
	assert.Contains(t, cerr.Alternatives, "cascade")
}

func TestCancelCascadeThreshold(t *testing.T) {
	m := newMutator(t)
	todo := model.NewTodoFile("demo")
	seedTask(todo, "T001", "", model.StatusActive)
	for i := 2; i <= 16; i++ { // 15 active descendants, threshold is 10
		seedTask(todo, model.FormatTaskID(i), "T001", model.StatusPending)
	}

	_, err := m.Cancel(todo, CancelRequest{ID: "T001", Reason: "scope collapsed entirely", Children: config.ChildCascade})
	var cerr *model.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, model.ErrCascadeThreshold, cerr.Code)
	assert.Contains(t, cerr.Message, "affectedCount: 15")

	changed, err := m.Cancel(todo, CancelRequest{
		ID: "T001", Reason: "scope collapsed entirely", Children: config.ChildCascade, Force: true,
	})
	require.NoError(t, err)
	assert.Len(t, changed, 16)
	for _, c := range changed {
		assert.Equal(t, model.StatusCancelled, c.Status)
		require.NotNil(t, c.CancelledAt)
	}
}

func TestCancelOrphanDetachesChildren(t *testing.T) {
	m := newMutator(t)
	todo := model.NewTodoFile("demo")
	seedTask(todo, "T001", "", model.StatusActive)
	child := seedTask(todo, "T002", "T001", model.StatusPending)

	changed, err := m.Cancel(todo, CancelRequest{ID: "T001", Reason: "replaced by other work", Children: config.ChildOrphan})
	require.NoError(t, err)
	assert.Len(t, changed, 2)
	assert.Empty(t, child.ParentID)
	assert.Equal(t, model.StatusPending, child.Status)
}

func TestCancelRequiresSubstantiveReason(t *testing.T) {
	m := newMutator(t)
	todo := model.NewTodoFile("demo")
	seedTask(todo, "T001", "", model.StatusActive)

	_, err := m.Cancel(todo, CancelRequest{ID: "T001", Reason: "nah"})
	var cerr *model.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, model.ErrInvalidInput, cerr.Code)
	assert.Equal(t, "reason", cerr.Field)
}

func TestUncancelRestoresPreCancelStatus(t *testing.T) {
	m := newMutator(t)
	todo := model.NewTodoFile("demo")
	seedTask(todo, "T001", "", model.StatusActive)

	_, err := m.Cancel(todo, CancelRequest{ID: "T001", Reason: "deprioritized this sprint"})
	require.NoError(t, err)

	got, err := m.Uncancel(todo, "T001")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)
	assert.Empty(t, got.CancellationReason)
	assert.Nil(t, got.CancelledAt)
	assert.Empty(t, got.PreCancelStatus)
}

func TestDeleteCascadeStripsDependencyReferences(t *testing.T) {
	m := newMutator(t)
	todo := model.NewTodoFile("demo")
	seedTask(todo, "T001", "", model.StatusPending)
	seedTask(todo, "T002", "T001", model.StatusPending)
	outsider := seedTask(todo, "T003", "", model.StatusPending)
	outsider.Depends = []string{"T002"}

	ids, err := m.Delete(todo, DeleteRequest{ID: "T001", Children: config.ChildCascade})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"T001", "T002"}, ids)
	assert.Nil(t, todo.FindTask("T001"))
	assert.Empty(t, todo.FindTask("T003").Depends)
}

func TestUpdateGateChainOrder(t *testing.T) {
	m := newMutator(t)
	todo := model.NewTodoFile("demo")
	task := seedTask(todo, "T001", "", model.StatusActive)
	task.Verification = model.NewVerification("agent-alpha")

	_, err := m.UpdateGate(todo, GateRequest{ID: "T001", Gate: model.GateTestsPassed, Value: true, Agent: "agent-beta"})
	var cerr *model.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, model.ErrLifecycleGate, cerr.Code)

	_, err = m.UpdateGate(todo, GateRequest{ID: "T001", Gate: model.GateImplemented, Value: true, Agent: "agent-alpha"})
	require.NoError(t, err)
	_, err = m.UpdateGate(todo, GateRequest{ID: "T001", Gate: model.GateTestsPassed, Value: true, Agent: "agent-beta"})
	require.NoError(t, err)
	assert.True(t, task.Verification.Gates[model.GateTestsPassed])
}

func TestUpdateGateCircularValidation(t *testing.T) {
	m := newMutator(t)
	todo := model.NewTodoFile("demo")
	task := seedTask(todo, "T001", "", model.StatusActive)
	task.Verification = model.NewVerification("agent-alpha")
	task.Verification.Gates[model.GateImplemented] = true

	// The creator may not test its own work.
	_, err := m.UpdateGate(todo, GateRequest{ID: "T001", Gate: model.GateTestsPassed, Value: true, Agent: "agent-alpha"})
	var cerr *model.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, model.ErrCircularValidation, cerr.Code)

	_, err = m.UpdateGate(todo, GateRequest{ID: "T001", Gate: model.GateTestsPassed, Value: true, Agent: "agent-beta"})
	require.NoError(t, err)

	// The tester may not also validate.
	_, err = m.UpdateGate(todo, GateRequest{ID: "T001", Gate: model.GateQAPassed, Value: true, Agent: "agent-beta"})
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, model.ErrCircularValidation, cerr.Code)

	_, err = m.UpdateGate(todo, GateRequest{ID: "T001", Gate: model.GateQAPassed, Value: true, Agent: "agent-gamma"})
	require.NoError(t, err)
}

func TestUpdateGateFailureResetsDownstream(t *testing.T) {
	m := newMutator(t)
	todo := model.NewTodoFile("demo")
	task := seedTask(todo, "T001", "", model.StatusActive)
	task.Verification = model.NewVerification("user")
	for _, g := range []model.Gate{model.GateImplemented, model.GateTestsPassed, model.GateQAPassed} {
		task.Verification.Gates[g] = true
	}

	_, err := m.UpdateGate(todo, GateRequest{
		ID: "T001", Gate: model.GateTestsPassed, Value: false, Agent: "agent-beta", Reason: "regression in parser",
	})
	require.NoError(t, err)

	ver := task.Verification
	val, set := ver.GateState(model.GateTestsPassed)
	assert.True(t, set)
	assert.False(t, val)
	_, set = ver.GateState(model.GateQAPassed)
	assert.False(t, set, "downstream gate must reset to unset")
	assert.True(t, ver.Gates[model.GateImplemented], "upstream gate untouched")
	assert.Equal(t, 1, ver.Round)
	require.Len(t, ver.Failures, 1)
	assert.Equal(t, "regression in parser", ver.Failures[0].Reason)
}

func TestUpdateGateBoundedRoundsBlocksTask(t *testing.T) {
	cfg := config.Default()
	cfg.MaxVerifyRounds = 2
	m := NewMutator(cfg, model.FixedClock{T: testNow})
	todo := model.NewTodoFile("demo")
	task := seedTask(todo, "T001", "", model.StatusActive)
	task.Verification = model.NewVerification("user")

	_, err := m.UpdateGate(todo, GateRequest{ID: "T001", Gate: model.GateImplemented, Value: false, Agent: "agent-beta", Reason: "missing edge case"})
	require.NoError(t, err)

	_, err = m.UpdateGate(todo, GateRequest{ID: "T001", Gate: model.GateImplemented, Value: false, Agent: "agent-beta", Reason: "still failing on retry"})
	var cerr *model.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, model.ErrLifecycleGate, cerr.Code)
	assert.Equal(t, model.StatusBlocked, task.Status)
}

func TestArchiveRequiresTerminalSubtree(t *testing.T) {
	m := newMutator(t)
	todo := model.NewTodoFile("demo")
	archive := model.NewArchiveFile()
	seedTask(todo, "T001", "", model.StatusDone)
	seedTask(todo, "T002", "T001", model.StatusActive)

	_, err := m.Archive(todo, archive, "T001")
	var cerr *model.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, model.ErrStateConflict, cerr.Code)
}

func TestArchiveRefusesToStrandDependents(t *testing.T) {
	m := newMutator(t)
	todo := model.NewTodoFile("demo")
	archive := model.NewArchiveFile()
	seedTask(todo, "T001", "", model.StatusDone)
	dep := seedTask(todo, "T002", "", model.StatusPending)
	dep.Depends = []string{"T001"}

	_, err := m.Archive(todo, archive, "T001")
	var cerr *model.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, model.ErrStateConflict, cerr.Code)
}

func TestArchiveAndUnarchiveRoundTrip(t *testing.T) {
	m := newMutator(t)
	todo := model.NewTodoFile("demo")
	archive := model.NewArchiveFile()
	seedTask(todo, "T001", "", model.StatusDone)
	seedTask(todo, "T002", "T001", model.StatusCancelled)

	moved, err := m.Archive(todo, archive, "T001")
	require.NoError(t, err)
	assert.Len(t, moved, 2)
	assert.Empty(t, todo.Tasks)
	require.NotNil(t, archive.FindArchived("T001").ArchivedAt)

	restored, err := m.Unarchive(todo, archive, "T001")
	require.NoError(t, err)
	assert.Len(t, restored, 2)
	assert.Empty(t, archive.Tasks)
	got := todo.FindTask("T002")
	require.NotNil(t, got)
	assert.Equal(t, "T001", got.ParentID)
	assert.Nil(t, got.ArchivedAt)
}
