package metrics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/fsstore"
	"github.com/dsj7419/cleo/internal/model"
)

// EventType tags a token-usage event.
type EventType string

const (
	EventSpawnPrompt  EventType = "SPAWN_PROMPT"
	EventSpawnReturn  EventType = "SPAWN_RETURN"
	EventSessionStart EventType = "SESSION_START"
	EventSessionEnd   EventType = "SESSION_END"
	EventEstimate     EventType = "ESTIMATE"
)

// Source says how a token count was obtained.
type Source string

const (
	SourceEstimated Source = "estimated"
	SourceOTel      Source = "otel"
)

// Event is one row in the TOKEN_USAGE stream.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Event     EventType `json:"event"`
	Tokens    int       `json:"tokens"`
	Source    Source    `json:"source"`
	TaskID    string    `json:"taskId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Project   string    `json:"project,omitempty"`
}

// SessionRecord is one row in the SESSIONS stream: a start or end snapshot,
// or a computed consumption delta.
type SessionRecord struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"sessionId"`
	Kind      string    `json:"kind"` // start | end | delta
	Usage     Usage     `json:"usage"`
	Consumed  int       `json:"consumed,omitempty"`
	Source    Source    `json:"source"`
	Project   string    `json:"project,omitempty"`
}

// Recorder appends metrics events. With tracking disabled every method is a
// cheap no-op that still succeeds.
type Recorder struct {
	store   *fsstore.Store
	logger  *zap.Logger
	paths   config.Paths
	clock   model.Clock
	enabled bool
	otelDir string
}

// NewRecorder constructs a Recorder honoring cfg.TrackTokens.
func NewRecorder(store *fsstore.Store, paths config.Paths, cfg config.Config, clock model.Clock, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:   store,
		logger:  logger,
		paths:   paths,
		clock:   clock,
		enabled: cfg.TrackTokens,
		otelDir: cfg.OtelMetricsDir,
	}
}

// Enabled reports whether tracking is on.
func (r *Recorder) Enabled() bool { return r != nil && r.enabled }

// RecordEvent appends one token-usage event.
func (r *Recorder) RecordEvent(ctx context.Context, ev Event) error {
	if !r.Enabled() {
		return nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.clock.Now()
	}
	return r.store.AppendJSONL(ctx, r.paths.TokenUsageLog(), ev)
}

// RecordSpawn logs the prompt tokens of one orchestrator spawn.
func (r *Recorder) RecordSpawn(ctx context.Context, taskID string, promptTokens int) error {
	return r.RecordEvent(ctx, Event{
		Event: EventSpawnPrompt, Tokens: promptTokens, Source: SourceEstimated, TaskID: taskID,
	})
}

// RecordReturn logs the output tokens of one subagent return.
func (r *Recorder) RecordReturn(ctx context.Context, taskID string, outputTokens int) error {
	return r.RecordEvent(ctx, Event{
		Event: EventSpawnReturn, Tokens: outputTokens, Source: SourceEstimated, TaskID: taskID,
	})
}

// snapshot reads measured usage when the OTel exporter is configured, else a
// zero estimated snapshot.
func (r *Recorder) snapshot() (Usage, Source) {
	if r.otelDir != "" {
		if usage, ok, err := ReadOTelUsage(r.otelDir); err == nil && ok {
			return usage, SourceOTel
		} else if err != nil {
			r.logger.Warn("otel export unreadable, falling back to estimates", zap.Error(err))
		}
	}
	return Usage{}, SourceEstimated
}

// SessionStart records the usage snapshot at session start.
func (r *Recorder) SessionStart(ctx context.Context, sessionID string) error {
	if !r.Enabled() {
		return nil
	}
	usage, source := r.snapshot()
	return r.store.AppendJSONL(ctx, r.paths.SessionMetricsLog(), SessionRecord{
		Timestamp: r.clock.Now(), SessionID: sessionID, Kind: "start", Usage: usage, Source: source,
	})
}

// SessionEnd records the end snapshot plus the consumed delta against the
// most recent start snapshot for the session.
func (r *Recorder) SessionEnd(ctx context.Context, sessionID string) error {
	if !r.Enabled() {
		return nil
	}
	usage, source := r.snapshot()
	now := r.clock.Now()
	if err := r.store.AppendJSONL(ctx, r.paths.SessionMetricsLog(), SessionRecord{
		Timestamp: now, SessionID: sessionID, Kind: "end", Usage: usage, Source: source,
	}); err != nil {
		return err
	}

	start, ok := r.lastStart(sessionID)
	if !ok {
		return nil
	}
	consumed := usage.Total() - start.Usage.Total()
	if consumed < 0 {
		consumed = 0
	}
	return r.store.AppendJSONL(ctx, r.paths.SessionMetricsLog(), SessionRecord{
		Timestamp: now, SessionID: sessionID, Kind: "delta", Usage: usage, Consumed: consumed, Source: source,
	})
}

func (r *Recorder) lastStart(sessionID string) (SessionRecord, bool) {
	records, err := r.ReadSessionRecords()
	if err != nil {
		return SessionRecord{}, false
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].SessionID == sessionID && records[i].Kind == "start" {
			return records[i], true
		}
	}
	return SessionRecord{}, false
}

// ReadEvents returns the TOKEN_USAGE stream.
func (r *Recorder) ReadEvents() ([]Event, error) {
	raw, err := fsstore.ReadLogEntries(r.paths.TokenUsageLog())
	if err != nil {
		return nil, err
	}
	return fsstore.DecodeLogEntries[Event](raw), nil
}

// ReadSessionRecords returns the SESSIONS stream.
func (r *Recorder) ReadSessionRecords() ([]SessionRecord, error) {
	raw, err := fsstore.ReadLogEntries(r.paths.SessionMetricsLog())
	if err != nil {
		return nil, err
	}
	return fsstore.DecodeLogEntries[SessionRecord](raw), nil
}
