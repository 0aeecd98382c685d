package ops

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/fsstore"
	"github.com/dsj7419/cleo/internal/graph"
	"github.com/dsj7419/cleo/internal/model"
	"github.com/dsj7419/cleo/internal/validate"
)

func init() {
	register("init", opInit)
	register("validate", opValidate)
	register("doctor", opDoctor)
	register("migrate", opMigrate)
	register("backup", opBackup)
	register("restore", opRestore)
	register("roadmap", opRoadmap)
	register("dash", opDash)
	register("stats", opStats)
	register("version", opVersion)
}

func opInit(ctx context.Context, env *Env, req Request) (any, error) {
	if err := env.Paths.EnsureStateDir(); err != nil {
		return nil, model.AsError(err)
	}

	created := []string{}
	if _, err := os.Stat(env.Paths.Todo()); os.IsNotExist(err) {
		name := req.str("name")
		if name == "" {
			name = filepath.Base(env.Paths.ProjectRoot)
		}
		todo := model.NewTodoFile(name)
		if err := env.Accessor.SaveTodo(ctx, todo, func() error { return nil }); err != nil {
			return nil, err
		}
		created = append(created, config.TodoFileName)
	}
	if _, err := os.Stat(env.Paths.Archive()); os.IsNotExist(err) {
		if err := env.Accessor.SaveArchive(ctx, model.NewArchiveFile(), func() error { return nil }); err != nil {
			return nil, err
		}
		created = append(created, config.ArchiveFileName)
	}
	if _, err := os.Stat(env.Paths.Sessions()); os.IsNotExist(err) {
		if err := env.Accessor.SaveSessions(ctx, model.NewSessionsFile(), func() error { return nil }); err != nil {
			return nil, err
		}
		created = append(created, config.SessionsFileName)
	}

	if err := registerProject(env); err != nil {
		env.Logger.Warn("project not added to global registry", zap.Error(err))
	}
	return map[string]any{"stateDir": env.Paths.StateDir, "created": created}, nil
}

// validationReport aggregates the three document results.
type validationReport struct {
	Todo     *validate.Result `json:"todo"`
	Archive  *validate.Result `json:"archive"`
	Sessions *validate.Result `json:"sessions"`
	Valid    bool             `json:"valid"`
}

func opValidate(ctx context.Context, env *Env, req Request) (any, error) {
	todo, archive, sessions, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	now := env.Clock.Now()
	report := validationReport{
		Todo:     env.Validator.ValidateTodo(todo, archive, now),
		Archive:  env.Validator.ValidateArchive(archive, now),
		Sessions: env.Validator.ValidateSessions(sessions, todo, now),
	}
	report.Valid = report.Todo.Valid && report.Archive.Valid && report.Sessions.Valid
	return report, nil
}

// doctorFinding is one issue the doctor found, with what (if anything) was
// done about it.
type doctorFinding struct {
	Check   string `json:"check"`
	Detail  string `json:"detail"`
	Fixed   bool   `json:"fixed"`
	Fixable bool   `json:"fixable"`
}

func opDoctor(ctx context.Context, env *Env, req Request) (any, error) {
	fix := req.boolean("fix")
	todo, archive, sessions, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	var findings []doctorFinding
	dirty := false

	// Dangling parent references: orphan the child.
	for _, t := range todo.Tasks {
		if t.ParentID != "" && todo.FindTask(t.ParentID) == nil {
			f := doctorFinding{
				Check: "parent-ref", Fixable: true,
				Detail: t.ID + " names missing parent " + t.ParentID,
			}
			if fix {
				t.ParentID = ""
				f.Fixed = true
				dirty = true
			}
			findings = append(findings, f)
		}
	}

	// Dangling dependencies: drop the edge.
	for _, t := range todo.Tasks {
		var kept []string
		for _, dep := range t.Depends {
			if todo.FindTask(dep) == nil && archive.FindArchived(dep) == nil {
				f := doctorFinding{
					Check: "dependency-ref", Fixable: true,
					Detail: t.ID + " depends on missing task " + dep,
				}
				if fix {
					f.Fixed = true
					dirty = true
				} else {
					kept = append(kept, dep)
				}
				findings = append(findings, f)
				continue
			}
			kept = append(kept, dep)
		}
		if fix {
			t.Depends = kept
		}
	}

	// Unnormalized labels: renormalize.
	for _, t := range todo.Tasks {
		normalized := model.NormalizeLabels(t.Labels)
		if !equalSlices(t.Labels, normalized) {
			f := doctorFinding{Check: "labels", Fixable: true, Detail: t.ID + " labels not normalized"}
			if fix {
				t.Labels = normalized
				f.Fixed = true
				dirty = true
			}
			findings = append(findings, f)
		}
	}

	// Sessions pointing at vanished focus tasks: clear the focus.
	for _, s := range sessions.Sessions {
		if s.Focus.TaskID != "" && todo.FindTask(s.Focus.TaskID) == nil {
			f := doctorFinding{
				Check: "focus-ref", Fixable: true,
				Detail: s.ID + " focuses missing task " + s.Focus.TaskID,
			}
			if fix {
				if i := s.OpenFocusEntry(); i >= 0 {
					ts := env.Clock.Now()
					s.History[i].ClearedAt = &ts
				}
				s.Focus = model.Focus{}
				f.Fixed = true
				dirty = true
			}
			findings = append(findings, f)
		}
	}

	if fix && dirty && !req.DryRun {
		if err := saveTodo(ctx, env, req, todo, archive, "", nil, map[string]int{"findings": len(findings)}); err != nil {
			return nil, err
		}
		if err := saveSessions(ctx, env, req, sessions, todo, "", nil); err != nil {
			return nil, err
		}
	}
	return map[string]any{"findings": findings, "healthy": len(findings) == 0}, nil
}

// opMigrate upgrades on-disk documents to the current schema versions and
// normalizes a legacy-wrapper audit log into strict JSONL. Everything is
// backed up to the migration tier before the first write.
func opMigrate(ctx context.Context, env *Env, req Request) (any, error) {
	todo, archive, sessions, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	migrated := []string{}
	if todo.Version != model.TodoSchemaVersion {
		migrated = append(migrated, config.TodoFileName)
	}
	if archive.Version != model.ArchiveSchemaVersion {
		migrated = append(migrated, config.ArchiveFileName)
	}
	if sessions.Version != model.SessionsSchemaVersion {
		migrated = append(migrated, config.SessionsFileName)
	}

	// A legacy {"entries": [...]} audit log reads fine but should be flattened
	// so plain line-oriented tools work on it.
	logNeedsRewrite := false
	if data, rerr := os.ReadFile(env.Paths.Log()); rerr == nil {
		trimmed := strings.TrimSpace(string(data))
		logNeedsRewrite = strings.HasPrefix(trimmed, "{") && strings.Contains(trimmed, `"entries"`)
	}
	if logNeedsRewrite {
		migrated = append(migrated, config.LogFileName)
	}

	if len(migrated) == 0 {
		return map[string]any{"migrated": []string{}, "upToDate": true}, nil
	}
	if req.DryRun {
		return map[string]any{"wouldMigrate": migrated}, nil
	}

	dir := env.Paths.BackupDir("migration")
	for _, path := range []string{env.Paths.Todo(), env.Paths.Archive(), env.Paths.Sessions(), env.Paths.Log()} {
		if berr := env.Store.Backup(path, dir); berr != nil {
			return nil, model.AsError(berr)
		}
	}

	todo.Version = model.TodoSchemaVersion
	archive.Version = model.ArchiveSchemaVersion
	sessions.Version = model.SessionsSchemaVersion
	if err := saveTodo(ctx, env, req, todo, archive, "", nil, map[string]any{"migrated": migrated}); err != nil {
		return nil, err
	}
	if err := saveArchive(ctx, env, req, archive, ""); err != nil {
		return nil, err
	}
	if err := saveSessions(ctx, env, req, sessions, todo, "", nil); err != nil {
		return nil, err
	}

	if logNeedsRewrite {
		raw, rerr := fsstore.ReadLogEntries(env.Paths.Log())
		if rerr != nil {
			return nil, model.AsError(rerr)
		}
		entries := make([]any, len(raw))
		for i, r := range raw {
			entries[i] = r
		}
		if werr := env.Store.RewriteJSONL(ctx, env.Paths.Log(), entries); werr != nil {
			return nil, werr
		}
	}
	return map[string]any{"migrated": migrated, "backupDir": dir}, nil
}

// backup tiers: operational (implicit pre-save), safety (explicit), snapshot
// (before risky operations), migration (before schema upgrades).
var backupTiers = map[string]bool{"operational": true, "safety": true, "snapshot": true, "migration": true}

func opBackup(ctx context.Context, env *Env, req Request) (any, error) {
	tier := req.str("tier")
	if tier == "" {
		tier = "safety"
	}
	if !backupTiers[tier] {
		return nil, model.NewError(model.ErrInvalidInput, "unknown backup tier %q", tier).
			WithAlternatives("operational", "safety", "snapshot", "migration")
	}

	dir := env.Paths.BackupDir(tier)
	backed := []string{}
	for _, path := range []string{env.Paths.Todo(), env.Paths.Archive(), env.Paths.Sessions(), env.Paths.Log()} {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := env.Store.Backup(path, dir); err != nil {
			return nil, model.AsError(err)
		}
		backed = append(backed, filepath.Base(path))
	}
	return map[string]any{"tier": tier, "dir": dir, "backed": backed}, nil
}

func opRestore(ctx context.Context, env *Env, req Request) (any, error) {
	file, err := req.requireStr("file")
	if err != nil {
		return nil, err
	}
	tier := req.str("tier")
	if tier == "" {
		tier = "safety"
	}

	dir := env.Paths.BackupDir(tier)
	backups, err := env.Store.ListBackups(dir, file)
	if err != nil {
		return nil, model.AsError(err)
	}
	if len(backups) == 0 {
		return nil, model.NewError(model.ErrNotFound, "no %s backups for %s", tier, file)
	}

	name := req.str("backup")
	if name == "" {
		name = backups[len(backups)-1] // newest
	}
	live := filepath.Join(env.Paths.StateDir, file)
	if req.DryRun {
		return map[string]any{"wouldRestore": name, "to": live}, nil
	}
	if err := env.Store.RestoreBackup(filepath.Join(dir, name), live); err != nil {
		return nil, model.AsError(err)
	}
	if err := env.Audit.Record(ctx, env.Clock.Now(), req.Op, req.actor(), "", "", nil,
		map[string]string{"restored": name}); err != nil {
		return nil, err
	}
	return map[string]any{"restored": name, "to": live}, nil
}

// roadmapPhase is one row of the roadmap view.
type roadmapPhase struct {
	Phase    string            `json:"phase"`
	Status   model.PhaseStatus `json:"status"`
	Total    int               `json:"total"`
	Done     int               `json:"done"`
	Progress float64           `json:"progress"`
}

func opRoadmap(ctx context.Context, env *Env, req Request) (any, error) {
	todo, err := env.Accessor.LoadTodo(ctx)
	if err != nil {
		return nil, err
	}

	counts := map[string]*roadmapPhase{}
	for name, phase := range todo.Project.Phases {
		counts[name] = &roadmapPhase{Phase: name, Status: phase.Status}
	}
	for _, t := range todo.Tasks {
		row, ok := counts[t.Phase]
		if !ok {
			continue
		}
		row.Total++
		if t.Status == model.StatusDone {
			row.Done++
		}
	}

	out := make([]roadmapPhase, 0, len(counts))
	for _, row := range counts {
		if row.Total > 0 {
			row.Progress = float64(row.Done) / float64(row.Total)
		}
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		return todo.Project.PhaseOrder(out[i].Phase) < todo.Project.PhaseOrder(out[j].Phase)
	})
	return map[string]any{"currentPhase": todo.Project.CurrentPhase, "phases": out}, nil
}

func opDash(ctx context.Context, env *Env, req Request) (any, error) {
	todo, _, sessions, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	byStatus := map[model.Status]int{}
	for _, t := range todo.Tasks {
		byStatus[t.Status]++
	}
	g := graph.New(todo.Tasks)
	next := g.NextTask()
	nextID := ""
	if next != nil {
		nextID = next.ID
	}
	stale := 0
	for _, row := range graph.Staleness(todo.Tasks, env.Cfg, env.Clock.Now()) {
		if row.Class != graph.Fresh {
			stale++
		}
	}
	return map[string]any{
		"project":        todo.Project.Name,
		"tasksByStatus":  byStatus,
		"activeSessions": len(sessions.ActiveSessions()),
		"next":           nextID,
		"staleTasks":     stale,
		"criticalPath":   g.CriticalPath(),
	}, nil
}

func opStats(ctx context.Context, env *Env, req Request) (any, error) {
	todo, archive, _, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	byType := map[model.TaskType]int{}
	byPriority := map[model.Priority]int{}
	verified := 0
	for _, t := range todo.Tasks {
		byType[t.Type]++
		byPriority[t.Priority]++
		if t.Verification != nil && t.Verification.Passed(model.DefaultRequiredGates) {
			verified++
		}
	}
	auditCount, _ := env.Audit.Count()
	return map[string]any{
		"active":     len(todo.Tasks),
		"archived":   len(archive.Tasks),
		"byType":     byType,
		"byPriority": byPriority,
		"verified":   verified,
		"auditLog":   auditCount,
	}, nil
}

func opVersion(ctx context.Context, env *Env, req Request) (any, error) {
	return map[string]string{
		"version":        Version,
		"todoSchema":     model.TodoSchemaVersion,
		"archiveSchema":  model.ArchiveSchemaVersion,
		"sessionsSchema": model.SessionsSchemaVersion,
	}, nil
}

// registryEntry is one project known to the global registry.
type registryEntry struct {
	Root         string `json:"root"`
	Name         string `json:"name"`
	RegisteredAt string `json:"registeredAt"`
}

// registerProject upserts this project into the cross-project registry under
// the global directory. Registry failures never block init.
func registerProject(env *Env) error {
	path := env.Paths.Registry()
	var entries []registryEntry
	if _, err := env.Store.ReadJSON(path, &entries); err != nil {
		return err
	}
	name := filepath.Base(env.Paths.ProjectRoot)
	now := env.Clock.Now().UTC().Format("2006-01-02T15:04:05Z07:00")
	for i, e := range entries {
		if e.Root == env.Paths.ProjectRoot {
			entries[i].Name = name
			entries[i].RegisteredAt = now
			return env.Store.SaveJSON(context.Background(), path, entries, fsstore.SaveOptions{})
		}
	}
	entries = append(entries, registryEntry{Root: env.Paths.ProjectRoot, Name: name, RegisteredAt: now})
	return env.Store.SaveJSON(context.Background(), path, entries, fsstore.SaveOptions{})
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
