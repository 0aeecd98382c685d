// Package audit maintains the append-only JSONL log of every state-changing
// operation. Writers emit strict JSONL; the reader tolerates the two legacy
// shapes via the fsstore tolerant log reader.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dsj7419/cleo/internal/fsstore"
)

// Entry is one audit record. Before and After hold the relevant entity
// snapshots as raw JSON so the log is schema-agnostic across versions.
type Entry struct {
	TS        time.Time       `json:"ts"`
	Op        string          `json:"op"`
	Actor     string          `json:"actor"`
	TaskID    string          `json:"taskId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
}

// Log appends state-change entries to the audit stream.
type Log struct {
	store *fsstore.Store
	path  string
}

// NewLog binds an audit log to its file.
func NewLog(store *fsstore.Store, path string) *Log {
	return &Log{store: store, path: path}
}

// Append writes one entry. The audit write happens after the state write it
// describes; readers may briefly observe state one entry ahead of the log.
func (l *Log) Append(ctx context.Context, e Entry) error {
	return l.store.AppendJSONL(ctx, l.path, e)
}

// Record is a convenience that snapshots before/after values.
func (l *Log) Record(ctx context.Context, ts time.Time, op, actor, taskID, sessionID string, before, after any) error {
	e := Entry{TS: ts, Op: op, Actor: actor, TaskID: taskID, SessionID: sessionID}
	if before != nil {
		if raw, err := json.Marshal(before); err == nil {
			e.Before = raw
		}
	}
	if after != nil {
		if raw, err := json.Marshal(after); err == nil {
			e.After = raw
		}
	}
	return l.Append(ctx, e)
}

// Read returns every parseable entry in file order, accepting the strict
// JSONL form, the legacy {entries:[...]} wrapper, and the hybrid shape.
func (l *Log) Read() ([]Entry, error) {
	raw, err := fsstore.ReadLogEntries(l.path)
	if err != nil {
		return nil, err
	}
	return fsstore.DecodeLogEntries[Entry](raw), nil
}

// Count returns the number of parseable entries.
func (l *Log) Count() (int, error) {
	raw, err := fsstore.ReadLogEntries(l.path)
	if err != nil {
		return 0, err
	}
	return len(raw), nil
}
