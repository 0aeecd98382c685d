// Package orchestrator decomposes an epic into dependency waves and spawns
// subagents against the ready wave with protocol-composed prompts. Returns
// flow back through RecordReturn, which appends the manifest entry, scores
// compliance, and advances the task lifecycle. Subagents that never return
// within the spawn deadline are reported blocked.
package orchestrator

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dsj7419/cleo/internal/compliance"
	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/fsstore"
	"github.com/dsj7419/cleo/internal/graph"
	"github.com/dsj7419/cleo/internal/metrics"
	"github.com/dsj7419/cleo/internal/model"
)

// Orchestrator drives the spawn loop for one project.
type Orchestrator struct {
	cfg       config.Config
	clock     model.Clock
	logger    *zap.Logger
	store     *fsstore.Store
	paths     config.Paths
	manifests *compliance.ManifestLog
	scorer    *compliance.Scorer
	recorder  *metrics.Recorder
}

// New constructs an Orchestrator. recorder may be nil when token tracking is
// not wired.
func New(cfg config.Config, paths config.Paths, store *fsstore.Store, clock model.Clock,
	recorder *metrics.Recorder, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:       cfg,
		clock:     clock,
		logger:    logger,
		store:     store,
		paths:     paths,
		manifests: compliance.NewManifestLog(store, paths),
		scorer:    compliance.NewScorer(store, paths, clock, logger),
		recorder:  recorder,
	}
}

// Manifests exposes the manifest log for the research operations.
func (o *Orchestrator) Manifests() *compliance.ManifestLog { return o.manifests }

// Scorer exposes the compliance scorer.
func (o *Orchestrator) Scorer() *compliance.Scorer { return o.scorer }

// subtree returns the epic's active descendants (the epic itself excluded)
// after checking the epic exists and is an epic.
func (o *Orchestrator) subtree(todo *model.TodoFile, epicID string) ([]*model.Task, error) {
	epic := todo.FindTask(epicID)
	if epic == nil {
		return nil, model.NewError(model.ErrNotFound, "epic %s not found", epicID)
	}
	if epic.Type != model.TypeEpic {
		return nil, model.NewError(model.ErrInvalidInput, "task %s is a %s, not an epic", epicID, epic.Type).
			WithField("epicId")
	}
	return todo.Descendants(epicID), nil
}

// Waves computes the dependency waves of the epic's subtree.
func (o *Orchestrator) Waves(todo *model.TodoFile, epicID string) ([][]string, error) {
	tasks, err := o.subtree(todo, epicID)
	if err != nil {
		return nil, err
	}
	return graph.New(tasks).ComputeWaves(), nil
}

// Ready returns wave 0: the tasks spawnable right now.
func (o *Orchestrator) Ready(todo *model.TodoFile, epicID string) ([]string, error) {
	waves, err := o.Waves(todo, epicID)
	if err != nil {
		return nil, err
	}
	if len(waves) == 0 {
		return nil, nil
	}
	return waves[0], nil
}

// Next picks the highest-leverage ready task in the epic's subtree, nil when
// nothing is ready.
func (o *Orchestrator) Next(todo *model.TodoFile, epicID string) (*model.Task, error) {
	tasks, err := o.subtree(todo, epicID)
	if err != nil {
		return nil, err
	}
	g := graph.New(tasks)
	recs := g.Analyze(&todo.Project, o.cfg.SizeStrategy)
	if len(recs) > 0 {
		return g.Task(recs[0].TaskID), nil
	}
	return g.NextTask(), nil
}

// spawnRecord is one row in the spawn stream, pairing each spawn with its
// return deadline.
type spawnRecord struct {
	TaskID       string       `json:"taskId"`
	EpicID       string       `json:"epicId"`
	Protocol     ProtocolKind `json:"protocol"`
	SpawnedAt    time.Time    `json:"spawnedAt"`
	Deadline     time.Time    `json:"deadline"`
	PromptTokens int          `json:"promptTokens"`
	Returned     bool         `json:"returned,omitempty"`
}

// SpawnResult is the composed spawn context handed to the subagent runner.
type SpawnResult struct {
	TaskID          string          `json:"taskId"`
	EpicID          string          `json:"epicId"`
	Protocol        ProtocolKind    `json:"protocol"`
	Prompt          string          `json:"prompt"`
	TokenResolution TokenResolution `json:"tokenResolution"`
	Deadline        time.Time       `json:"deadline"`
}

// Spawn composes the spawn prompt for one ready task and records the spawn.
// A prompt with unresolved tokens is never handed out.
func (o *Orchestrator) Spawn(ctx context.Context, todo *model.TodoFile, epicID, taskID string) (*SpawnResult, error) {
	tasks, err := o.subtree(todo, epicID)
	if err != nil {
		return nil, err
	}
	g := graph.New(tasks)
	t := g.Task(taskID)
	if t == nil {
		return nil, model.NewError(model.ErrNotFound, "task %s is not in epic %s", taskID, epicID)
	}
	if t.Status.Terminal() {
		return nil, model.NewError(model.ErrStateConflict, "task %s is %s and cannot be spawned", taskID, t.Status)
	}
	ready := false
	for _, id := range firstWave(g) {
		if id == taskID {
			ready = true
			break
		}
	}
	if !ready {
		return nil, model.NewError(model.ErrStateConflict,
			"task %s has unfinished dependencies", taskID).
			WithFix("spawn a wave-0 task, or complete the dependencies first")
	}

	now := o.clock.Now()
	prompt, kind, res := ComposePrompt(t, epicID, now)
	if !res.FullyResolved {
		return nil, model.NewError(model.ErrInternal,
			"spawn prompt for %s has unresolved tokens %v", taskID, res.Unresolved)
	}

	deadline := now.Add(time.Duration(o.cfg.SpawnDeadlineMinutes) * time.Minute)
	promptTokens := metrics.EstimateTokens(prompt)
	if err := o.store.AppendJSONL(ctx, o.paths.SpawnLog(), spawnRecord{
		TaskID: taskID, EpicID: epicID, Protocol: kind,
		SpawnedAt: now, Deadline: deadline, PromptTokens: promptTokens,
	}); err != nil {
		return nil, err
	}
	if err := o.recorder.RecordSpawn(ctx, taskID, promptTokens); err != nil {
		o.logger.Warn("spawn token event not recorded", zap.Error(err))
	}

	o.logger.Info("subagent spawned",
		zap.String("taskId", taskID),
		zap.String("protocol", string(kind)),
		zap.Time("deadline", deadline))
	return &SpawnResult{
		TaskID: taskID, EpicID: epicID, Protocol: kind,
		Prompt: prompt, TokenResolution: res, Deadline: deadline,
	}, nil
}

// SpawnWave composes spawn contexts for every wave-0 task concurrently.
// Results come back sorted by task id regardless of completion order.
func (o *Orchestrator) SpawnWave(ctx context.Context, todo *model.TodoFile, epicID string) ([]*SpawnResult, error) {
	ready, err := o.Ready(todo, epicID)
	if err != nil {
		return nil, err
	}

	results := make([]*SpawnResult, len(ready))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, taskID := range ready {
		eg.Go(func() error {
			r, serr := o.Spawn(egCtx, todo, epicID, taskID)
			if serr != nil {
				return serr
			}
			results[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].TaskID < results[j].TaskID })
	return results, nil
}

func firstWave(g *graph.Graph) []string {
	waves := g.ComputeWaves()
	if len(waves) == 0 {
		return nil
	}
	return waves[0]
}
