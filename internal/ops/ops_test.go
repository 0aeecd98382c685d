package ops

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/fsstore"
	"github.com/dsj7419/cleo/internal/model"
	"github.com/dsj7419/cleo/internal/store"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testEnv(t *testing.T) *Env {
	t.Helper()
	root := t.TempDir()
	paths := config.Paths{
		ProjectRoot: root,
		StateDir:    filepath.Join(root, config.StateDirName),
		GlobalDir:   filepath.Join(root, "global"),
	}
	require.NoError(t, paths.EnsureStateDir())

	cfg := config.Default()
	clock := model.FixedClock{T: testNow}
	fs := fsstore.New(fsstore.WithLockTimeout(cfg.LockTimeout()))
	acc := store.NewFileAccessor(fs, paths, clock)

	env, err := NewEnv(cfg, paths, acc, clock, zap.NewNop())
	require.NoError(t, err)

	seed := Dispatch(context.Background(), env, Request{Op: "init"})
	require.True(t, seed.Success, "init: %v", seed.Error)
	return env
}

func dispatch(t *testing.T, env *Env, op string, params map[string]any) Envelope {
	t.Helper()
	return Dispatch(context.Background(), env, Request{Op: op, Params: params})
}

func TestDispatchEnvelopeShape(t *testing.T) {
	env := testEnv(t)

	envl := dispatch(t, env, "version", nil)
	require.True(t, envl.Success)
	assert.Equal(t, envelopeSchema, envl.Schema)
	assert.Equal(t, "version", envl.Meta.Cmd)
	assert.Equal(t, Version, envl.Meta.Version)
	assert.Equal(t, testNow, envl.Meta.TS)
	assert.Nil(t, envl.Error)
}

func TestDispatchUnknownOpListsAlternatives(t *testing.T) {
	env := testEnv(t)

	envl := dispatch(t, env, "frobnicate", nil)
	require.False(t, envl.Success)
	require.NotNil(t, envl.Error)
	assert.Equal(t, model.ErrInvalidInput, envl.Error.Code)
	assert.Contains(t, envl.Error.Alternatives, "add")
	assert.Contains(t, envl.Error.Alternatives, "complete")
}

func TestAddCompleteArchiveFlow(t *testing.T) {
	env := testEnv(t)
	ctx := context.Background()

	added := dispatch(t, env, "add", map[string]any{"title": "Wire up the persistence layer"})
	require.True(t, added.Success, "add: %v", added.Error)
	task := added.Data.(*model.Task)
	assert.Equal(t, "T001", task.ID)

	done := dispatch(t, env, "complete", map[string]any{"id": "T001"})
	require.True(t, done.Success, "complete: %v", done.Error)

	archived := dispatch(t, env, "archive", map[string]any{"id": "T001"})
	require.True(t, archived.Success, "archive: %v", archived.Error)

	// Active document no longer knows the task; show falls through to the
	// archive.
	todo, err := env.Accessor.LoadTodo(ctx)
	require.NoError(t, err)
	assert.Nil(t, todo.FindTask("T001"))

	shown := dispatch(t, env, "show", map[string]any{"id": "T001"})
	require.True(t, shown.Success)
	assert.Equal(t, model.StatusDone, shown.Data.(*model.Task).Status)

	// Every mutation left an audit entry.
	entries, err := env.Audit.Read()
	require.NoError(t, err)
	var ops []string
	for _, e := range entries {
		ops = append(ops, e.Op)
	}
	assert.Contains(t, ops, "add")
	assert.Contains(t, ops, "complete")
	assert.Contains(t, ops, "archive")
}

func TestDryRunDoesNotPersist(t *testing.T) {
	env := testEnv(t)

	envl := Dispatch(context.Background(), env, Request{
		Op:     "add",
		DryRun: true,
		Params: map[string]any{"title": "Prototype the export path"},
	})
	require.True(t, envl.Success, "add: %v", envl.Error)

	todo, err := env.Accessor.LoadTodo(context.Background())
	require.NoError(t, err)
	assert.Empty(t, todo.Tasks)
}

func TestValidateReportsCleanTree(t *testing.T) {
	env := testEnv(t)

	dispatch(t, env, "add", map[string]any{"title": "Sketch the CLI surface"})
	envl := dispatch(t, env, "validate", nil)
	require.True(t, envl.Success, "validate: %v", envl.Error)
	report := envl.Data.(validationReport)
	assert.True(t, report.Valid)
}

func TestDoctorFixesDanglingDependency(t *testing.T) {
	env := testEnv(t)
	ctx := context.Background()

	dispatch(t, env, "add", map[string]any{"title": "Build the reconciler"})

	// Corrupt the document behind validation's back.
	todo, err := env.Accessor.LoadTodo(ctx)
	require.NoError(t, err)
	todo.Tasks[0].Depends = []string{"T999"}
	require.NoError(t, env.Accessor.SaveTodo(ctx, todo, func() error { return nil }))

	found := dispatch(t, env, "doctor", nil)
	require.True(t, found.Success)
	assert.False(t, found.Data.(map[string]any)["healthy"].(bool))

	fixed := dispatch(t, env, "doctor", map[string]any{"fix": true})
	require.True(t, fixed.Success, "doctor --fix: %v", fixed.Error)

	// The repair is reported, not silently applied.
	repairs := fixed.Data.(map[string]any)["findings"].([]doctorFinding)
	require.Len(t, repairs, 1)
	assert.Equal(t, "dependency-ref", repairs[0].Check)
	assert.True(t, repairs[0].Fixed)

	todo, err = env.Accessor.LoadTodo(ctx)
	require.NoError(t, err)
	assert.Empty(t, todo.Tasks[0].Depends)

	healthy := dispatch(t, env, "doctor", nil)
	require.True(t, healthy.Success)
	assert.True(t, healthy.Data.(map[string]any)["healthy"].(bool))
}

func TestBackupAndRestore(t *testing.T) {
	env := testEnv(t)
	ctx := context.Background()

	dispatch(t, env, "add", map[string]any{"title": "Capture the baseline state"})

	backed := dispatch(t, env, "backup", map[string]any{"tier": "safety"})
	require.True(t, backed.Success, "backup: %v", backed.Error)
	assert.Contains(t, backed.Data.(map[string]any)["backed"], config.TodoFileName)

	// Lose the second task, then restore the snapshot that never had it.
	dispatch(t, env, "add", map[string]any{"title": "Task that will be rolled back"})
	restored := dispatch(t, env, "restore", map[string]any{"file": config.TodoFileName, "tier": "safety"})
	require.True(t, restored.Success, "restore: %v", restored.Error)

	todo, err := env.Accessor.LoadTodo(ctx)
	require.NoError(t, err)
	require.Len(t, todo.Tasks, 1)
	assert.Equal(t, "Capture the baseline state", todo.Tasks[0].Title)
}

func TestRestoreUnknownTierBackupMissing(t *testing.T) {
	env := testEnv(t)

	envl := dispatch(t, env, "restore", map[string]any{"file": config.TodoFileName, "tier": "snapshot"})
	require.False(t, envl.Success)
	assert.Equal(t, model.ErrNotFound, envl.Error.Code)
}

func TestMigrateUpgradesSchemaVersions(t *testing.T) {
	env := testEnv(t)
	ctx := context.Background()

	// The accessor re-stamps the current schema version on every save, so a
	// legacy document has to be planted as raw bytes.
	legacyTodo := `{"version":"2.0","project":{"name":"demo"},"tasks":[]}`
	require.NoError(t, os.WriteFile(env.Paths.Todo(), []byte(legacyTodo), 0o644))
	legacyLog := `{"entries":[{"ts":"2026-03-14T11:00:00Z","op":"add","actor":"user","taskId":"T001"}]}`
	require.NoError(t, os.WriteFile(env.Paths.Log(), []byte(legacyLog), 0o644))

	envl := dispatch(t, env, "migrate", nil)
	require.True(t, envl.Success, "migrate: %v", envl.Error)
	migrated := envl.Data.(map[string]any)["migrated"]
	assert.Contains(t, migrated, config.TodoFileName)
	assert.Contains(t, migrated, config.LogFileName)

	todo, err := env.Accessor.LoadTodo(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.TodoSchemaVersion, todo.Version)

	// The wrapped log is now strict JSONL and kept its legacy entry.
	raw, err := os.ReadFile(env.Paths.Log())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"entries"`)
	entries, err := env.Audit.Read()
	require.NoError(t, err)
	var seen []string
	for _, e := range entries {
		seen = append(seen, e.Op)
	}
	assert.Contains(t, seen, "add")
	assert.Contains(t, seen, "migrate")

	// Migration-tier backups were taken before the write.
	backups, err := env.Store.ListBackups(env.Paths.BackupDir("migration"), config.TodoFileName)
	require.NoError(t, err)
	assert.NotEmpty(t, backups)

	again := dispatch(t, env, "migrate", nil)
	require.True(t, again.Success)
	assert.Equal(t, true, again.Data.(map[string]any)["upToDate"])
}

func TestDispatchRecoversFromHandlerPanic(t *testing.T) {
	register("panic-probe", func(ctx context.Context, env *Env, req Request) (any, error) {
		panic("boom")
	})
	defer delete(registry, "panic-probe")

	env := testEnv(t)
	envl := dispatch(t, env, "panic-probe", nil)
	require.False(t, envl.Success)
	assert.Equal(t, model.ErrInternal, envl.Error.Code)
}

func TestSessionFocusFlipsTaskActive(t *testing.T) {
	env := testEnv(t)
	ctx := context.Background()

	dispatch(t, env, "add", map[string]any{"title": "Stand up the scheduler"})

	started := dispatch(t, env, "session-start", map[string]any{"name": "sched work"})
	require.True(t, started.Success, "session-start: %v", started.Error)

	sessions, err := env.Accessor.LoadSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions.Sessions, 1)
	sid := sessions.Sessions[0].ID

	focused := dispatch(t, env, "focus-set", map[string]any{"sessionId": sid, "taskId": "T001"})
	require.True(t, focused.Success, "focus-set: %v", focused.Error)

	todo, err := env.Accessor.LoadTodo(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, todo.FindTask("T001").Status)
}

func TestStatsAndDashViews(t *testing.T) {
	env := testEnv(t)

	dispatch(t, env, "add", map[string]any{"title": "First unit of work"})
	dispatch(t, env, "add", map[string]any{"title": "Second unit of work", "depends": []any{"T001"}})

	stats := dispatch(t, env, "stats", nil)
	require.True(t, stats.Success, "stats: %v", stats.Error)
	assert.Equal(t, 2, stats.Data.(map[string]any)["active"])

	dash := dispatch(t, env, "dash", nil)
	require.True(t, dash.Success, "dash: %v", dash.Error)
	assert.Equal(t, "T001", dash.Data.(map[string]any)["next"])
}

func TestInitRegistersProjectGlobally(t *testing.T) {
	env := testEnv(t)

	data, err := os.ReadFile(env.Paths.Registry())
	require.NoError(t, err)
	assert.Contains(t, string(data), env.Paths.ProjectRoot)
}

func TestInitWarnsWithCauseWhenRegistryUnavailable(t *testing.T) {
	root := t.TempDir()
	// A regular file squats on the global directory path, so the registry
	// write cannot succeed. Init must still succeed and say why the registry
	// was skipped.
	blocked := filepath.Join(root, "global")
	require.NoError(t, os.WriteFile(blocked, []byte("not a directory"), 0o644))

	paths := config.Paths{
		ProjectRoot: root,
		StateDir:    filepath.Join(root, config.StateDirName),
		GlobalDir:   blocked,
	}
	require.NoError(t, paths.EnsureStateDir())

	core, logs := observer.New(zap.WarnLevel)
	cfg := config.Default()
	clock := model.FixedClock{T: testNow}
	fs := fsstore.New(fsstore.WithLockTimeout(cfg.LockTimeout()))
	acc := store.NewFileAccessor(fs, paths, clock)
	env, err := NewEnv(cfg, paths, acc, clock, zap.New(core))
	require.NoError(t, err)

	seed := Dispatch(context.Background(), env, Request{Op: "init"})
	require.True(t, seed.Success, "init: %v", seed.Error)

	warned := logs.FilterMessage("project not added to global registry").All()
	require.Len(t, warned, 1)
	assert.NotEmpty(t, warned[0].ContextMap()["error"])
}
