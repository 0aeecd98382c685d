package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/dsj7419/cleo/internal/audit"
	"github.com/dsj7419/cleo/internal/model"
)

// Document names inside the embedded store.
const (
	docTodo     = "todo"
	docArchive  = "archive"
	docSessions = "sessions"
)

// SQLAccessor keeps the state documents as JSON payloads inside an embedded
// SQLite database. One document per row; the audit log is its own table.
// Serialization still goes through the same checksum envelope as the file
// back-end, so the two representations are interchangeable.
type SQLAccessor struct {
	db     *sql.DB
	clock  model.Clock
	logger *zap.Logger
}

// NewSQLAccessor opens (or creates) the database at path.
func NewSQLAccessor(path string, clock model.Clock, logger *zap.Logger) (*SQLAccessor, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Debug("set busy_timeout failed", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.Debug("set journal_mode=WAL failed", zap.Error(err))
	}
	// synchronous=NORMAL is safe under WAL and considerably faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logger.Debug("set synchronous=NORMAL failed", zap.Error(err))
	}

	a := &SQLAccessor{db: db, clock: clock, logger: logger}
	if err := a.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *SQLAccessor) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		name       TEXT PRIMARY KEY,
		version    TEXT NOT NULL,
		checksum   TEXT NOT NULL,
		payload    TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS log_entries (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		ts      TEXT NOT NULL,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_log_entries_ts ON log_entries(ts);
	`
	if _, err := a.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

func (a *SQLAccessor) loadDocument(ctx context.Context, name string, v any) (bool, error) {
	var payload string
	err := a.db.QueryRowContext(ctx,
		"SELECT payload FROM documents WHERE name = ?", name).Scan(&payload)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load document %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return false, fmt.Errorf("decode document %s: %w", name, err)
	}
	return true, nil
}

func (a *SQLAccessor) saveDocument(ctx context.Context, name, version, checksum string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", name, err)
	}
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO documents (name, version, checksum, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			version = excluded.version,
			checksum = excluded.checksum,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		name, version, checksum, string(payload), a.clock.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save document %s: %w", name, err)
	}
	return nil
}

// LoadTodo reads the active tasks document.
func (a *SQLAccessor) LoadTodo(ctx context.Context) (*model.TodoFile, error) {
	doc := model.NewTodoFile("")
	ok, err := a.loadDocument(ctx, docTodo, doc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return model.NewTodoFile(""), nil
	}
	if doc.Tasks == nil {
		doc.Tasks = []*model.Task{}
	}
	return doc, nil
}

// SaveTodo validates, stamps the envelope, and upserts the document row.
func (a *SQLAccessor) SaveTodo(ctx context.Context, doc *model.TodoFile, validate func() error) error {
	if validate != nil {
		if err := validate(); err != nil {
			return wrapValidation(err)
		}
	}
	doc.Version = model.TodoSchemaVersion
	if err := stampMeta(&doc.Meta, model.TodoSchemaVersion, a.clock, doc); err != nil {
		return err
	}
	return a.saveDocument(ctx, docTodo, doc.Version, doc.Meta.Checksum, doc)
}

// LoadArchive reads the archive document.
func (a *SQLAccessor) LoadArchive(ctx context.Context) (*model.ArchiveFile, error) {
	doc := model.NewArchiveFile()
	ok, err := a.loadDocument(ctx, docArchive, doc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return model.NewArchiveFile(), nil
	}
	if doc.Tasks == nil {
		doc.Tasks = []*model.Task{}
	}
	return doc, nil
}

// SaveArchive validates, stamps, and upserts.
func (a *SQLAccessor) SaveArchive(ctx context.Context, doc *model.ArchiveFile, validate func() error) error {
	if validate != nil {
		if err := validate(); err != nil {
			return wrapValidation(err)
		}
	}
	doc.Version = model.ArchiveSchemaVersion
	if err := stampMeta(&doc.Meta, model.ArchiveSchemaVersion, a.clock, doc); err != nil {
		return err
	}
	return a.saveDocument(ctx, docArchive, doc.Version, doc.Meta.Checksum, doc)
}

// LoadSessions reads the sessions document.
func (a *SQLAccessor) LoadSessions(ctx context.Context) (*model.SessionsFile, error) {
	doc := model.NewSessionsFile()
	ok, err := a.loadDocument(ctx, docSessions, doc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return model.NewSessionsFile(), nil
	}
	if doc.Sessions == nil {
		doc.Sessions = []*model.Session{}
	}
	return doc, nil
}

// SaveSessions validates, stamps, and upserts.
func (a *SQLAccessor) SaveSessions(ctx context.Context, doc *model.SessionsFile, validate func() error) error {
	if validate != nil {
		if err := validate(); err != nil {
			return wrapValidation(err)
		}
	}
	doc.Version = model.SessionsSchemaVersion
	if err := stampMeta(&doc.Meta, model.SessionsSchemaVersion, a.clock, doc); err != nil {
		return err
	}
	return a.saveDocument(ctx, docSessions, doc.Version, doc.Meta.Checksum, doc)
}

// AppendLog inserts one audit entry row.
func (a *SQLAccessor) AppendLog(ctx context.Context, e audit.Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode log entry: %w", err)
	}
	_, err = a.db.ExecContext(ctx,
		"INSERT INTO log_entries (ts, payload) VALUES (?, ?)",
		e.TS.Format(time.RFC3339), string(payload))
	if err != nil {
		return fmt.Errorf("append log entry: %w", err)
	}
	return nil
}

// ReadLog returns every audit entry in insertion order.
func (a *SQLAccessor) ReadLog() ([]audit.Entry, error) {
	rows, err := a.db.Query("SELECT payload FROM log_entries ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("read log entries: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e audit.Entry
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database handle.
func (a *SQLAccessor) Close() error { return a.db.Close() }

// wrapValidation upgrades plain errors from validators into the typed class.
func wrapValidation(err error) error {
	if _, ok := err.(*model.Error); ok {
		return err
	}
	return model.NewError(model.ErrValidation, "%s", err.Error()).Wrap(err)
}

// ensure interface compliance at compile time.
var (
	_ Accessor = (*SQLAccessor)(nil)
	_ Accessor = (*FileAccessor)(nil)
)
