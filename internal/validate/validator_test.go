package validate

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

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New(config.Default())
	require.NoError(t, err)
	return v
}

func seedTask(id, title string) *model.Task {
	return &model.Task{
		ID:        id,
		Title:     title,
		Status:    model.StatusPending,
		Priority:  model.PriorityMedium,
		Type:      model.TypeTask,
		CreatedAt: testNow.Add(-time.Hour),
		UpdatedAt: testNow.Add(-time.Hour),
	}
}

func cleanTodo(tasks ...*model.Task) *model.TodoFile {
	doc := model.NewTodoFile("proj")
	doc.Tasks = tasks
	return doc
}

func hasCode(issues []Issue, code string) bool {
	for _, i := range issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

func TestValidateTodoCleanDocument(t *testing.T) {
	v := newValidator(t)
	res := v.ValidateTodo(cleanTodo(seedTask("T001", "build it")), nil, testNow)
	assert.True(t, res.Valid, "errors: %+v", res.Errors)
	assert.NoError(t, res.Err())
}

func TestSemanticTitleRules(t *testing.T) {
	v := newValidator(t)

	empty := seedTask("T001", "   ")
	res := v.ValidateTodo(cleanTodo(empty), nil, testNow)
	require.False(t, res.Valid)
	assert.True(t, hasCode(res.Errors, "TITLE_EMPTY"))

	hidden := seedTask("T001", "looks normal\u200bbut is not")
	res = v.ValidateTodo(cleanTodo(hidden), nil, testNow)
	require.False(t, res.Valid)
	assert.True(t, hasCode(res.Errors, "TITLE_HIDDEN_CHARS"))

	multiline := seedTask("T001", "first\nsecond")
	res = v.ValidateTodo(cleanTodo(multiline), nil, testNow)
	require.False(t, res.Valid)
	assert.True(t, hasCode(res.Errors, "TITLE_MULTILINE"))
}

func TestSemanticUnsafeFilePath(t *testing.T) {
	v := newValidator(t)
	bad := seedTask("T001", "touch files")
	bad.Files = []string{"src/ok.go", "src/$(rm -rf).go"}

	res := v.ValidateTodo(cleanTodo(bad), nil, testNow)
	require.False(t, res.Valid)
	assert.True(t, hasCode(res.Errors, "FILE_PATH_UNSAFE"))
}

func TestSemanticDoneRequiresTimestamp(t *testing.T) {
	v := newValidator(t)
	done := seedTask("T001", "finished work")
	done.Status = model.StatusDone

	res := v.ValidateTodo(cleanTodo(done), nil, testNow)
	require.False(t, res.Valid)
	assert.True(t, hasCode(res.Errors, "DONE_NO_TIMESTAMP"))
}

func TestCrossDanglingAndSelfReferences(t *testing.T) {
	v := newValidator(t)
	a := seedTask("T001", "references everything")
	a.Depends = []string{"T001", "T999"}

	res := v.ValidateTodo(cleanTodo(a), nil, testNow)
	require.False(t, res.Valid)
	assert.True(t, hasCode(res.Errors, "DEP_SELF"))
	assert.True(t, hasCode(res.Errors, "DEP_MISSING"))
}

func TestCrossDependencyCycle(t *testing.T) {
	v := newValidator(t)
	a := seedTask("T001", "first of the loop")
	a.Depends = []string{"T002"}
	b := seedTask("T002", "second of the loop")
	b.Depends = []string{"T001"}

	res := v.ValidateTodo(cleanTodo(a, b), nil, testNow)
	require.False(t, res.Valid)
	assert.True(t, hasCode(res.Errors, "DEP_CYCLE"))
}

func TestCrossArchiveIDClash(t *testing.T) {
	v := newValidator(t)
	archive := model.NewArchiveFile()
	clash := seedTask("T001", "already archived")
	clash.Status = model.StatusDone
	ts := testNow.Add(-time.Minute)
	clash.CompletedAt = &ts
	archive.Tasks = []*model.Task{clash}

	res := v.ValidateTodo(cleanTodo(seedTask("T001", "active twin")), archive, testNow)
	require.False(t, res.Valid)
	assert.True(t, hasCode(res.Errors, "ID_ARCHIVE_CLASH"))
}

func TestCrossGateChainPrefix(t *testing.T) {
	v := newValidator(t)
	broken := seedTask("T001", "skipped a gate")
	broken.Verification = model.NewVerification("user")
	broken.Verification.Gates[model.GateQAPassed] = true // implemented/testsPassed unset

	res := v.ValidateTodo(cleanTodo(broken), nil, testNow)
	require.False(t, res.Valid)
	assert.True(t, hasCode(res.Errors, "GATE_CHAIN_BROKEN"))
}

func TestCheckTransitionTable(t *testing.T) {
	cases := []struct {
		from, to model.Status
		ok       bool
	}{
		{model.StatusPending, model.StatusActive, true},
		{model.StatusPending, model.StatusPending, true}, // idempotent
		{model.StatusDone, model.StatusPending, true},    // reopen
		{model.StatusDone, model.StatusActive, false},
		{model.StatusBlocked, model.StatusDone, false},
		{model.StatusActive, model.StatusCancelled, true},
	}
	for _, tc := range cases {
		err := CheckTransition("T001", tc.from, tc.to)
		if tc.ok {
			assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
			continue
		}
		var e *model.Error
		require.True(t, errors.As(err, &e), "%s -> %s", tc.from, tc.to)
		assert.Equal(t, model.ErrStateConflict, e.Code)
		assert.NotEmpty(t, e.Alternatives)
	}
}

func TestCheckGateAgentCreatorMayNotValidate(t *testing.T) {
	task := seedTask("T001", "authored by alpha")
	task.Verification = model.NewVerification("alpha")

	err := CheckGateAgent(task, model.GateQAPassed, "alpha")
	var e *model.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, model.ErrCircularValidation, e.Code)

	assert.NoError(t, CheckGateAgent(task, model.GateQAPassed, "beta"))
	assert.NoError(t, CheckGateAgent(task, model.GateImplemented, "alpha"),
		"the creator may still mark implementation done")
}

func TestCheckGateAgentTesterValidatorDistinct(t *testing.T) {
	task := seedTask("T001", "tested by beta")
	task.Verification = model.NewVerification("alpha")
	task.Verification.Agents[model.GateTestsPassed] = "beta"

	err := CheckGateAgent(task, model.GateQAPassed, "beta")
	var e *model.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, model.ErrCircularValidation, e.Code)

	assert.NoError(t, CheckGateAgent(task, model.GateQAPassed, "gamma"))
	assert.NoError(t, CheckGateAgent(task, model.GateQAPassed, "user"), "trusted identities bypass")
}

func TestValidateSessionsFocusInvariants(t *testing.T) {
	v := newValidator(t)
	todo := cleanTodo(seedTask("T001", "in scope"))

	doc := model.NewSessionsFile()
	setAt := testNow.Add(-time.Minute)
	s := &model.Session{
		ID:        "session_20260314_110000_ab12cd",
		Status:    model.SessionActive,
		Scope:     model.Scope{Type: model.ScopeGlobal},
		StartedAt: testNow.Add(-time.Hour),
		Focus:     model.Focus{TaskID: "T001", SetAt: &setAt},
	}
	doc.Sessions = []*model.Session{s}

	// Focus without an open history row is inconsistent.
	res := v.ValidateSessions(doc, todo, testNow)
	require.False(t, res.Valid)
	assert.True(t, hasCode(res.Errors, "FOCUS_NO_HISTORY"))

	s.History = []model.FocusEntry{{TaskID: "T001", SetAt: testNow.Add(-time.Minute)}}
	res = v.ValidateSessions(doc, todo, testNow)
	assert.True(t, res.Valid, "errors: %+v", res.Errors)
}

func TestScopeContains(t *testing.T) {
	epic := seedTask("T001", "epic root")
	epic.Type = model.TypeEpic
	child := seedTask("T002", "inside")
	child.ParentID = "T001"
	outsider := seedTask("T003", "outside")
	todo := cleanTodo(epic, child, outsider)

	scope := model.Scope{Type: model.ScopeEpic, EpicID: "T001"}
	assert.True(t, ScopeContains(todo, scope, "T001"))
	assert.True(t, ScopeContains(todo, scope, "T002"))
	assert.False(t, ScopeContains(todo, scope, "T003"))
	assert.True(t, ScopeContains(todo, model.Scope{Type: model.ScopeGlobal}, "T003"))
}
