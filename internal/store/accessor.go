// Package store is the data accessor layer: a uniform interface over the
// four state documents, hiding whether state lives in JSON files, in the
// embedded SQLite store, or in both. Every core operation takes an Accessor
// explicitly; nothing in this package is global.
package store

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/dsj7419/cleo/internal/audit"
	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/fsstore"
	"github.com/dsj7419/cleo/internal/model"
)

// Accessor loads and saves the state documents. Save methods run the
// supplied validator inside the write lock; a validator failure aborts the
// write untouched.
type Accessor interface {
	LoadTodo(ctx context.Context) (*model.TodoFile, error)
	SaveTodo(ctx context.Context, doc *model.TodoFile, validate func() error) error

	LoadArchive(ctx context.Context) (*model.ArchiveFile, error)
	SaveArchive(ctx context.Context, doc *model.ArchiveFile, validate func() error) error

	LoadSessions(ctx context.Context) (*model.SessionsFile, error)
	SaveSessions(ctx context.Context, doc *model.SessionsFile, validate func() error) error

	AppendLog(ctx context.Context, e audit.Entry) error
	ReadLog() ([]audit.Entry, error)

	Close() error
}

// Open builds the accessor selected by config. EngineAuto picks the dual
// back-end when a database file already exists and the plain file back-end
// otherwise.
func Open(paths config.Paths, cfg config.Config, clock model.Clock, logger *zap.Logger) (Accessor, error) {
	fs := fsstore.New(
		fsstore.WithLogger(logger.Named("fsstore")),
		fsstore.WithLockTimeout(cfg.LockTimeout()),
		fsstore.WithBackupRetention(cfg.BackupCopies),
	)

	engine := cfg.Engine
	if engine == config.EngineAuto || engine == "" {
		engine = config.EngineFile
		if _, err := os.Stat(paths.Database()); err == nil {
			engine = config.EngineDual
		}
	}

	fileAcc := NewFileAccessor(fs, paths, clock)
	switch engine {
	case config.EngineFile:
		return fileAcc, nil
	case config.EngineSQL:
		return NewSQLAccessor(paths.Database(), clock, logger.Named("sqlstore"))
	case config.EngineDual:
		sqlAcc, err := NewSQLAccessor(paths.Database(), clock, logger.Named("sqlstore"))
		if err != nil {
			return nil, err
		}
		return NewDualAccessor(fileAcc, sqlAcc, logger.Named("dualstore")), nil
	default:
		return nil, model.NewError(model.ErrInvalidInput, "unknown storage engine %q", engine).
			WithAlternatives("file", "sql", "dual", "auto")
	}
}

// stampMeta refreshes a document's integrity envelope in place. The checksum
// covers the document with the checksum field blanked.
func stampMeta(meta **model.Meta, schemaVersion string, clock model.Clock, doc any) error {
	if *meta == nil {
		*meta = &model.Meta{}
	}
	(*meta).SchemaVersion = schemaVersion
	(*meta).LastUpdated = clock.Now()
	(*meta).Checksum = ""
	sum, err := fsstore.ComputeChecksum(doc)
	if err != nil {
		return err
	}
	(*meta).Checksum = sum
	return nil
}

// verifyMeta checks a loaded document's checksum when one is present.
// Readers tolerate a missing envelope entirely.
func verifyMeta(meta *model.Meta, doc any, path string) error {
	if meta == nil || meta.Checksum == "" {
		return nil
	}
	want := meta.Checksum
	meta.Checksum = ""
	got, err := fsstore.ComputeChecksum(doc)
	meta.Checksum = want
	if err != nil {
		return err
	}
	if got != want {
		return model.NewError(model.ErrChecksumMismatch,
			"checksum mismatch in %s: stored %s, computed %s", path, want, got).
			WithFix("run `cleo validate --fix` to recompute, or `cleo restore` from a backup")
	}
	return nil
}
