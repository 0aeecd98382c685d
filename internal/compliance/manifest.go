// Package compliance scores subagent returns against the manifest contract:
// every spawned subagent must append a manifest entry linking back to its
// spawning task and phrase its return in the required format. Scoring events
// feed the compliance stream; rule breaks additionally feed the violations
// stream.
package compliance

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/fsstore"
	"github.com/dsj7419/cleo/internal/model"
)

// ManifestStatus is the review state of a manifest entry.
type ManifestStatus string

const (
	ManifestPending  ManifestStatus = "pending"
	ManifestReview   ManifestStatus = "review"
	ManifestAccepted ManifestStatus = "accepted"
	ManifestRejected ManifestStatus = "rejected"
)

// ManifestEntry is one subagent output record in the manifest log.
type ManifestEntry struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	File            string         `json:"file"`
	Topics          []string       `json:"topics"`
	LinkedTasks     []string       `json:"linked_tasks"`
	Status          ManifestStatus `json:"status"`
	FindingsSummary string         `json:"findings_summary,omitempty"`
	KeyFindings     []string       `json:"key_findings,omitempty"`
	AgentType       string         `json:"agent_type"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// NewManifestEntry fills the generated fields of an entry.
func NewManifestEntry(now time.Time) ManifestEntry {
	return ManifestEntry{
		ID:        uuid.NewString(),
		Status:    ManifestPending,
		CreatedAt: now,
	}
}

// LinksTask reports whether the entry's linked_tasks names the task.
func (e ManifestEntry) LinksTask(taskID string) bool {
	for _, id := range e.LinkedTasks {
		if id == taskID {
			return true
		}
	}
	return false
}

// missingFields lists the required manifest fields the entry lacks. The
// findings requirement is satisfied by either findings_summary or
// key_findings.
func (e ManifestEntry) missingFields() []string {
	var missing []string
	if e.ID == "" {
		missing = append(missing, "id")
	}
	if e.Title == "" {
		missing = append(missing, "title")
	}
	if e.File == "" {
		missing = append(missing, "file")
	}
	if len(e.Topics) == 0 {
		missing = append(missing, "topics")
	}
	if len(e.LinkedTasks) == 0 {
		missing = append(missing, "linked_tasks")
	}
	if e.Status == "" {
		missing = append(missing, "status")
	}
	if e.FindingsSummary == "" && len(e.KeyFindings) == 0 {
		missing = append(missing, "findings_summary")
	}
	if e.AgentType == "" {
		missing = append(missing, "agent_type")
	}
	return missing
}

// ManifestLog reads and appends the manifest stream.
type ManifestLog struct {
	store *fsstore.Store
	path  string
}

// NewManifestLog opens the manifest stream for a project.
func NewManifestLog(store *fsstore.Store, paths config.Paths) *ManifestLog {
	return &ManifestLog{store: store, path: paths.ManifestLog()}
}

// Append writes one entry to the stream.
func (l *ManifestLog) Append(ctx context.Context, e ManifestEntry) error {
	return l.store.AppendJSONL(ctx, l.path, e)
}

// Read returns every entry in the stream, tolerating the legacy shapes.
func (l *ManifestLog) Read() ([]ManifestEntry, error) {
	raw, err := fsstore.ReadLogEntries(l.path)
	if err != nil {
		return nil, model.AsError(err)
	}
	return fsstore.DecodeLogEntries[ManifestEntry](raw), nil
}
