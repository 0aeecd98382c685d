package ops

import (
	"context"

	"github.com/dsj7419/cleo/internal/compliance"
	"github.com/dsj7419/cleo/internal/metrics"
	"github.com/dsj7419/cleo/internal/model"
)

func init() {
	register("metrics-summary", opMetricsSummary)
	register("metrics-sync", opMetricsSync)
	register("ab-test", opABTest)
}

func opMetricsSummary(ctx context.Context, env *Env, req Request) (any, error) {
	if !env.Recorder.Enabled() {
		return map[string]any{"trackTokens": false}, nil
	}

	events, err := env.Recorder.ReadEvents()
	if err != nil {
		return nil, err
	}
	sessions, err := env.Recorder.ReadSessionRecords()
	if err != nil {
		return nil, err
	}

	totals := map[metrics.EventType]int{}
	for _, ev := range events {
		totals[ev.Event] += ev.Tokens
	}
	consumed := 0
	deltas := 0
	for _, rec := range sessions {
		if rec.Kind == "delta" {
			consumed += rec.Consumed
			deltas++
		}
	}

	summary := map[string]any{
		"trackTokens":     true,
		"events":          len(events),
		"tokensByEvent":   totals,
		"sessionsTracked": deltas,
		"tokensConsumed":  consumed,
	}
	if env.Cfg.OtelMetricsDir != "" {
		if usage, ok, oerr := metrics.ReadOTelUsage(env.Cfg.OtelMetricsDir); oerr == nil && ok {
			summary["measured"] = usage
		}
	}
	return summary, nil
}

func opMetricsSync(ctx context.Context, env *Env, req Request) (any, error) {
	todo, err := env.Accessor.LoadTodo(ctx)
	if err != nil {
		return nil, err
	}
	records, err := env.Orch.Scorer().ReadRecords()
	if err != nil {
		return nil, err
	}
	project := todo.Project.Name
	if project == "" {
		project = env.Paths.ProjectRoot
	}
	n, err := env.Recorder.Sync(ctx, project, records)
	if err != nil {
		return nil, err
	}
	return map[string]any{"appended": n}, nil
}

func opABTest(ctx context.Context, env *Env, req Request) (any, error) {
	label, err := req.requireStr("label")
	if err != nil {
		return nil, err
	}
	cleoID, err := req.requireStr("cleoSessionId")
	if err != nil {
		return nil, err
	}
	baseID, err := req.requireStr("baselineSessionId")
	if err != nil {
		return nil, err
	}

	sessionsDoc, err := env.Accessor.LoadSessions(ctx)
	if err != nil {
		return nil, err
	}
	records, err := env.Recorder.ReadSessionRecords()
	if err != nil {
		return nil, err
	}
	compliances, err := env.Orch.Scorer().ReadRecords()
	if err != nil {
		return nil, err
	}

	sample := func(id string) (metrics.ABSample, error) {
		s := sessionsDoc.FindSession(id)
		if s == nil {
			return metrics.ABSample{}, model.NewError(model.ErrNotFound, "session %s not found", id)
		}
		if s.Status != model.SessionEnded {
			return metrics.ABSample{}, model.NewError(model.ErrStateConflict,
				"session %s has not ended; A/B comparison needs both arms complete", id)
		}
		out := metrics.ABSample{
			SessionID:          id,
			TasksCompleted:     len(s.TasksCompleted),
			ValidationPassRate: passRateFor(compliances, s.TasksCompleted),
		}
		for _, rec := range records {
			if rec.SessionID == id && rec.Kind == "delta" {
				out.Consumed = rec.Consumed
			}
		}
		return out, nil
	}

	cleo, err := sample(cleoID)
	if err != nil {
		return nil, err
	}
	baseline, err := sample(baseID)
	if err != nil {
		return nil, err
	}

	res := metrics.CompareAB(label, cleo, baseline, metrics.DefaultABThresholds, env.Clock.Now())
	if err := env.Recorder.RecordABTest(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// passRateFor is the fraction of compliance events on the given tasks that
// broke no rules.
func passRateFor(records []compliance.Record, taskIDs []string) float64 {
	inSet := map[string]bool{}
	for _, id := range taskIDs {
		inSet[id] = true
	}
	total, passes := 0, 0
	for _, rec := range records {
		if !inSet[rec.TaskID] {
			continue
		}
		total++
		if rec.Passed() {
			passes++
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(passes) / float64(total)
}
