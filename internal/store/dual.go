package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/dsj7419/cleo/internal/audit"
	"github.com/dsj7419/cleo/internal/model"
)

// DualAccessor writes to both back-ends and reads from the embedded store
// first, falling back to the files on failure. Divergence between the two is
// logged, never fatal: the files remain the recovery source of truth.
type DualAccessor struct {
	file   *FileAccessor
	sql    *SQLAccessor
	logger *zap.Logger
}

// NewDualAccessor combines the two back-ends.
func NewDualAccessor(file *FileAccessor, sqlAcc *SQLAccessor, logger *zap.Logger) *DualAccessor {
	return &DualAccessor{file: file, sql: sqlAcc, logger: logger}
}

// LoadTodo prefers the embedded store.
func (d *DualAccessor) LoadTodo(ctx context.Context) (*model.TodoFile, error) {
	doc, err := d.sql.LoadTodo(ctx)
	if err != nil {
		d.logger.Warn("embedded store read failed, falling back to file",
			zap.String("document", docTodo), zap.Error(err))
		return d.file.LoadTodo(ctx)
	}
	return doc, nil
}

// SaveTodo writes the file first (it carries the locks and backups), then
// mirrors into the embedded store. Validation runs exactly once, on the file
// write.
func (d *DualAccessor) SaveTodo(ctx context.Context, doc *model.TodoFile, validate func() error) error {
	if err := d.file.SaveTodo(ctx, doc, validate); err != nil {
		return err
	}
	if err := d.sql.SaveTodo(ctx, doc, nil); err != nil {
		d.logger.Warn("embedded store write failed, file is authoritative",
			zap.String("document", docTodo), zap.Error(err))
	}
	return nil
}

// LoadArchive prefers the embedded store.
func (d *DualAccessor) LoadArchive(ctx context.Context) (*model.ArchiveFile, error) {
	doc, err := d.sql.LoadArchive(ctx)
	if err != nil {
		d.logger.Warn("embedded store read failed, falling back to file",
			zap.String("document", docArchive), zap.Error(err))
		return d.file.LoadArchive(ctx)
	}
	return doc, nil
}

// SaveArchive mirrors the SaveTodo contract.
func (d *DualAccessor) SaveArchive(ctx context.Context, doc *model.ArchiveFile, validate func() error) error {
	if err := d.file.SaveArchive(ctx, doc, validate); err != nil {
		return err
	}
	if err := d.sql.SaveArchive(ctx, doc, nil); err != nil {
		d.logger.Warn("embedded store write failed, file is authoritative",
			zap.String("document", docArchive), zap.Error(err))
	}
	return nil
}

// LoadSessions prefers the embedded store.
func (d *DualAccessor) LoadSessions(ctx context.Context) (*model.SessionsFile, error) {
	doc, err := d.sql.LoadSessions(ctx)
	if err != nil {
		d.logger.Warn("embedded store read failed, falling back to file",
			zap.String("document", docSessions), zap.Error(err))
		return d.file.LoadSessions(ctx)
	}
	return doc, nil
}

// SaveSessions mirrors the SaveTodo contract.
func (d *DualAccessor) SaveSessions(ctx context.Context, doc *model.SessionsFile, validate func() error) error {
	if err := d.file.SaveSessions(ctx, doc, validate); err != nil {
		return err
	}
	if err := d.sql.SaveSessions(ctx, doc, nil); err != nil {
		d.logger.Warn("embedded store write failed, file is authoritative",
			zap.String("document", docSessions), zap.Error(err))
	}
	return nil
}

// AppendLog writes to both streams.
func (d *DualAccessor) AppendLog(ctx context.Context, e audit.Entry) error {
	if err := d.file.AppendLog(ctx, e); err != nil {
		return err
	}
	if err := d.sql.AppendLog(ctx, e); err != nil {
		d.logger.Warn("embedded store log append failed", zap.Error(err))
	}
	return nil
}

// ReadLog prefers the embedded store.
func (d *DualAccessor) ReadLog() ([]audit.Entry, error) {
	entries, err := d.sql.ReadLog()
	if err != nil {
		d.logger.Warn("embedded store log read failed, falling back to file", zap.Error(err))
		return d.file.ReadLog()
	}
	return entries, nil
}

// Close closes the embedded store.
func (d *DualAccessor) Close() error { return d.sql.Close() }

var _ Accessor = (*DualAccessor)(nil)
