package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dsj7419/cleo/internal/compliance"
	"github.com/dsj7419/cleo/internal/fsstore"
	"github.com/dsj7419/cleo/internal/metrics"
	"github.com/dsj7419/cleo/internal/model"
)

// Return is one subagent's output handed back to the orchestrator. Manifest
// is nil when the subagent produced no entry.
type Return struct {
	TaskID   string
	Output   string
	Manifest *compliance.ManifestEntry
}

// ReturnResult is what RecordReturn did with the output.
type ReturnResult struct {
	Record     compliance.Record `json:"record"`
	NoteAdded  bool              `json:"noteAdded"`
	GateMarked bool              `json:"gateMarked"`
}

// RecordReturn appends the manifest entry, scores the return for compliance,
// and advances the task lifecycle: a passing return marks the implemented
// gate and notes the task; a failing one only notes the violation.
func (o *Orchestrator) RecordReturn(ctx context.Context, todo *model.TodoFile, ret Return) (*ReturnResult, error) {
	t := todo.FindTask(ret.TaskID)
	if t == nil {
		return nil, model.NewError(model.ErrNotFound, "task %s not found", ret.TaskID)
	}

	now := o.clock.Now()
	if ret.Manifest != nil {
		if ret.Manifest.ID == "" {
			filled := compliance.NewManifestEntry(now)
			filled.Title = ret.Manifest.Title
			filled.File = ret.Manifest.File
			filled.Topics = ret.Manifest.Topics
			filled.LinkedTasks = ret.Manifest.LinkedTasks
			filled.Status = ret.Manifest.Status
			if filled.Status == "" {
				filled.Status = compliance.ManifestPending
			}
			filled.FindingsSummary = ret.Manifest.FindingsSummary
			filled.KeyFindings = ret.Manifest.KeyFindings
			filled.AgentType = ret.Manifest.AgentType
			ret.Manifest = &filled
		}
		if err := o.manifests.Append(ctx, *ret.Manifest); err != nil {
			return nil, err
		}
	}

	rec := o.scorer.Score(ret.TaskID, ret.Manifest, ret.Output)
	if err := o.scorer.Append(ctx, rec); err != nil {
		return nil, err
	}
	if err := o.markReturned(ctx, ret.TaskID); err != nil {
		o.logger.Warn("spawn record not updated", zap.String("taskId", ret.TaskID), zap.Error(err))
	}
	if err := o.recorder.RecordReturn(ctx, ret.TaskID, metrics.EstimateTokens(ret.Output)); err != nil {
		o.logger.Warn("return token event not recorded", zap.Error(err))
	}

	res := &ReturnResult{Record: rec}
	if rec.Passed() {
		if t.Verification != nil {
			t.Verification.Gates[model.GateImplemented] = true
			t.Verification.Agents[model.GateImplemented] = agentIdentity(ret.Manifest)
			res.GateMarked = true
		}
		t.Notes = append(t.Notes, model.Note{TS: now, Text: "subagent return accepted, compliance clean"})
	} else {
		t.Notes = append(t.Notes, model.Note{
			TS: now, Text: "subagent return recorded with " + string(rec.Severity) + " severity violations",
		})
	}
	t.UpdatedAt = now
	res.NoteAdded = true
	return res, nil
}

func agentIdentity(entry *compliance.ManifestEntry) string {
	if entry == nil || entry.AgentType == "" {
		return "system"
	}
	return entry.AgentType
}

// markReturned flags the newest open spawn record for a task as returned.
func (o *Orchestrator) markReturned(ctx context.Context, taskID string) error {
	records, err := o.readSpawns()
	if err != nil {
		return err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].TaskID == taskID && !records[i].Returned {
			records[i].Returned = true
			return o.rewriteSpawns(ctx, records)
		}
	}
	return nil
}

// BlockedSpawn is one spawn whose subagent missed the return deadline.
type BlockedSpawn struct {
	TaskID    string    `json:"taskId"`
	EpicID    string    `json:"epicId"`
	SpawnedAt time.Time `json:"spawnedAt"`
	Deadline  time.Time `json:"deadline"`
}

// CheckBlocked reports spawns past their deadline with no return. The task
// stays in its prior state; each miss is logged as a violation once.
func (o *Orchestrator) CheckBlocked(ctx context.Context) ([]BlockedSpawn, error) {
	records, err := o.readSpawns()
	if err != nil {
		return nil, err
	}
	now := o.clock.Now()

	var blocked []BlockedSpawn
	changed := false
	for i := range records {
		r := &records[i]
		if r.Returned || now.Before(r.Deadline) {
			continue
		}
		blocked = append(blocked, BlockedSpawn{
			TaskID: r.TaskID, EpicID: r.EpicID, SpawnedAt: r.SpawnedAt, Deadline: r.Deadline,
		})
		rec := o.scorer.Score(r.TaskID, nil, "")
		if err := o.scorer.Append(ctx, rec); err != nil {
			return nil, err
		}
		o.logger.Warn("subagent missed return deadline",
			zap.String("taskId", r.TaskID),
			zap.Time("deadline", r.Deadline))
		// Marked returned so the same miss is not re-reported on every check.
		r.Returned = true
		changed = true
	}
	if changed {
		if err := o.rewriteSpawns(ctx, records); err != nil {
			return nil, err
		}
	}
	return blocked, nil
}

func (o *Orchestrator) readSpawns() ([]spawnRecord, error) {
	raw, err := fsstore.ReadLogEntries(o.paths.SpawnLog())
	if err != nil {
		return nil, err
	}
	return fsstore.DecodeLogEntries[spawnRecord](raw), nil
}

func (o *Orchestrator) rewriteSpawns(ctx context.Context, records []spawnRecord) error {
	entries := make([]any, len(records))
	for i, r := range records {
		entries[i] = r
	}
	return o.store.RewriteJSONL(ctx, o.paths.SpawnLog(), entries)
}
