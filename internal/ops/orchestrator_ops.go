package ops

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/dsj7419/cleo/internal/compliance"
	"github.com/dsj7419/cleo/internal/model"
	"github.com/dsj7419/cleo/internal/orchestrator"
)

func init() {
	register("orchestrator-ready", opOrchReady)
	register("orchestrator-next", opOrchNext)
	register("orchestrator-spawn", opOrchSpawn)
	register("orchestrator-spawn-wave", opOrchSpawnWave)
	register("orchestrator-return", opOrchReturn)
	register("orchestrator-blocked", opOrchBlocked)
	register("research-append", opResearchAppend)
	register("research-gaps", opResearchGaps)
	register("compliance-report", opComplianceReport)
}

func opOrchReady(ctx context.Context, env *Env, req Request) (any, error) {
	epicID, err := req.requireStr("epic")
	if err != nil {
		return nil, err
	}
	todo, err := env.Accessor.LoadTodo(ctx)
	if err != nil {
		return nil, err
	}
	return env.Orch.Ready(todo, epicID)
}

func opOrchNext(ctx context.Context, env *Env, req Request) (any, error) {
	epicID, err := req.requireStr("epic")
	if err != nil {
		return nil, err
	}
	todo, err := env.Accessor.LoadTodo(ctx)
	if err != nil {
		return nil, err
	}
	return env.Orch.Next(todo, epicID)
}

func opOrchSpawn(ctx context.Context, env *Env, req Request) (any, error) {
	epicID, err := req.requireStr("epic")
	if err != nil {
		return nil, err
	}
	taskID, err := req.requireStr("taskId")
	if err != nil {
		return nil, err
	}
	todo, err := env.Accessor.LoadTodo(ctx)
	if err != nil {
		return nil, err
	}
	return env.Orch.Spawn(ctx, todo, epicID, taskID)
}

func opOrchSpawnWave(ctx context.Context, env *Env, req Request) (any, error) {
	epicID, err := req.requireStr("epic")
	if err != nil {
		return nil, err
	}
	todo, err := env.Accessor.LoadTodo(ctx)
	if err != nil {
		return nil, err
	}
	return env.Orch.SpawnWave(ctx, todo, epicID)
}

func opOrchReturn(ctx context.Context, env *Env, req Request) (any, error) {
	taskID, err := req.requireStr("taskId")
	if err != nil {
		return nil, err
	}
	output, err := req.requireStr("output")
	if err != nil {
		return nil, err
	}
	todo, archive, _, err := loadAll(ctx, env)
	if err != nil {
		return nil, err
	}

	ret := orchestrator.Return{TaskID: taskID, Output: output}
	if m, ok := req.Params["manifest"].(map[string]any); ok {
		ret.Manifest = manifestFromParams(m)
	}
	res, err := env.Orch.RecordReturn(ctx, todo, ret)
	if err != nil {
		return nil, err
	}
	if err := saveTodo(ctx, env, req, todo, archive, taskID, nil, res.Record); err != nil {
		return nil, err
	}
	return res, nil
}

func manifestFromParams(m map[string]any) *compliance.ManifestEntry {
	str := func(key string) string {
		if v, ok := m[key].(string); ok {
			return v
		}
		return ""
	}
	slice := func(key string) []string {
		if v, ok := m[key].([]any); ok {
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			return out
		}
		if v, ok := m[key].([]string); ok {
			return v
		}
		return nil
	}
	return &compliance.ManifestEntry{
		ID:              str("id"),
		Title:           str("title"),
		File:            str("file"),
		Topics:          slice("topics"),
		LinkedTasks:     slice("linked_tasks"),
		Status:          compliance.ManifestStatus(str("status")),
		FindingsSummary: str("findings_summary"),
		KeyFindings:     slice("key_findings"),
		AgentType:       str("agent_type"),
	}
}

func opOrchBlocked(ctx context.Context, env *Env, req Request) (any, error) {
	return env.Orch.CheckBlocked(ctx)
}

func opResearchAppend(ctx context.Context, env *Env, req Request) (any, error) {
	m, ok := req.Params["manifest"].(map[string]any)
	if !ok {
		return nil, model.NewError(model.ErrInvalidInput, "missing required parameter %q", "manifest").
			WithField("manifest")
	}
	entry := manifestFromParams(m)
	if entry.ID == "" {
		filled := compliance.NewManifestEntry(env.Clock.Now())
		filled.Title = entry.Title
		filled.File = entry.File
		filled.Topics = entry.Topics
		filled.LinkedTasks = entry.LinkedTasks
		if entry.Status != "" {
			filled.Status = entry.Status
		}
		filled.FindingsSummary = entry.FindingsSummary
		filled.KeyFindings = entry.KeyFindings
		filled.AgentType = entry.AgentType
		entry = &filled
	}
	if err := env.Orch.Manifests().Append(ctx, *entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func opResearchGaps(ctx context.Context, env *Env, req Request) (any, error) {
	entries, err := env.Orch.Manifests().Read()
	if err != nil {
		return nil, err
	}

	corpusDir := req.str("docsDir")
	if corpusDir == "" {
		corpusDir = filepath.Join(env.Paths.ProjectRoot, "docs")
	}
	corpus := map[string]string{}
	_ = filepath.WalkDir(corpusDir, func(path string, d os.DirEntry, werr error) error {
		if werr != nil || d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".md") || strings.HasSuffix(path, ".txt") {
			if data, rerr := os.ReadFile(path); rerr == nil {
				corpus[path] = string(data)
			}
		}
		return nil
	})
	return compliance.AnalyzeGaps(entries, corpus), nil
}

func opComplianceReport(ctx context.Context, env *Env, req Request) (any, error) {
	records, err := env.Orch.Scorer().ReadRecords()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"events":   len(records),
		"passRate": compliance.PassRate(records),
		"records":  records,
	}, nil
}
