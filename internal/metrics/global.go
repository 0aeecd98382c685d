package metrics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dsj7419/cleo/internal/compliance"
	"github.com/dsj7419/cleo/internal/fsstore"
)

// GlobalEntry is one row in the cross-project GLOBAL stream. Entries are
// deduplicated by (timestamp, sourceId), so re-running sync is idempotent.
type GlobalEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	SourceID  string          `json:"sourceId"`
	Project   string          `json:"project"`
	Kind      string          `json:"kind"` // compliance | session
	Payload   json.RawMessage `json:"payload"`
}

func (e GlobalEntry) dedupeKey() string {
	return e.Timestamp.UTC().Format(time.RFC3339Nano) + "|" + e.SourceID
}

// Sync rewrites this project's compliance and session entries into the
// global stream under the project label. Returns how many new entries were
// appended.
func (r *Recorder) Sync(ctx context.Context, project string, records []compliance.Record) (int, error) {
	if !r.Enabled() {
		return 0, nil
	}

	existing := map[string]bool{}
	if raw, err := fsstore.ReadLogEntries(r.paths.GlobalMetricsLog()); err == nil {
		for _, entry := range fsstore.DecodeLogEntries[GlobalEntry](raw) {
			existing[entry.dedupeKey()] = true
		}
	}

	var pending []GlobalEntry
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return 0, err
		}
		pending = append(pending, GlobalEntry{
			Timestamp: rec.Timestamp, SourceID: rec.SourceID,
			Project: project, Kind: "compliance", Payload: payload,
		})
	}

	sessions, err := r.ReadSessionRecords()
	if err != nil {
		return 0, err
	}
	for _, rec := range sessions {
		payload, err := json.Marshal(rec)
		if err != nil {
			return 0, err
		}
		pending = append(pending, GlobalEntry{
			Timestamp: rec.Timestamp, SourceID: rec.SessionID,
			Project: project, Kind: "session", Payload: payload,
		})
	}

	appended := 0
	for _, entry := range pending {
		if existing[entry.dedupeKey()] {
			continue
		}
		if err := r.store.AppendJSONL(ctx, r.paths.GlobalMetricsLog(), entry); err != nil {
			return appended, err
		}
		existing[entry.dedupeKey()] = true
		appended++
	}
	return appended, nil
}
