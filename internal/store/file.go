package store

import (
	"context"

	"github.com/dsj7419/cleo/internal/audit"
	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/fsstore"
	"github.com/dsj7419/cleo/internal/model"
)

// FileAccessor keeps every document in its JSON file under the project state
// directory. This is the default back-end.
type FileAccessor struct {
	fs    *fsstore.Store
	paths config.Paths
	clock model.Clock
	log   *audit.Log
}

// NewFileAccessor constructs the file back-end.
func NewFileAccessor(fs *fsstore.Store, paths config.Paths, clock model.Clock) *FileAccessor {
	return &FileAccessor{
		fs:    fs,
		paths: paths,
		clock: clock,
		log:   audit.NewLog(fs, paths.Log()),
	}
}

// LoadTodo reads the active tasks document, synthesizing an empty one when
// the file does not exist yet.
func (a *FileAccessor) LoadTodo(ctx context.Context) (*model.TodoFile, error) {
	doc := model.NewTodoFile("")
	ok, err := a.fs.ReadJSON(a.paths.Todo(), doc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return model.NewTodoFile(""), nil
	}
	if doc.Tasks == nil {
		doc.Tasks = []*model.Task{}
	}
	if err := verifyMeta(doc.Meta, doc, a.paths.Todo()); err != nil {
		return nil, err
	}
	return doc, nil
}

// SaveTodo writes the active tasks document. Inside the lock it first checks
// that the file has not changed since this document was loaded (the loaded
// checksum must match the on-disk checksum), then runs the caller validator,
// then stamps a fresh integrity envelope.
func (a *FileAccessor) SaveTodo(ctx context.Context, doc *model.TodoFile, validate func() error) error {
	doc.Version = model.TodoSchemaVersion
	loadedChecksum := ""
	if doc.Meta != nil {
		loadedChecksum = doc.Meta.Checksum
	}
	return a.fs.SaveJSON(ctx, a.paths.Todo(), doc, fsstore.SaveOptions{
		BackupDir: a.paths.BackupDir("operational"),
		Validate: func() error {
			if err := a.checkStale(a.paths.Todo(), loadedChecksum); err != nil {
				return err
			}
			if validate != nil {
				if err := validate(); err != nil {
					return err
				}
			}
			return stampMeta(&doc.Meta, model.TodoSchemaVersion, a.clock, doc)
		},
	})
}

// LoadArchive reads the archive document, defaulting to empty.
func (a *FileAccessor) LoadArchive(ctx context.Context) (*model.ArchiveFile, error) {
	doc := model.NewArchiveFile()
	ok, err := a.fs.ReadJSON(a.paths.Archive(), doc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return model.NewArchiveFile(), nil
	}
	if doc.Tasks == nil {
		doc.Tasks = []*model.Task{}
	}
	if err := verifyMeta(doc.Meta, doc, a.paths.Archive()); err != nil {
		return nil, err
	}
	return doc, nil
}

// SaveArchive writes the archive document.
func (a *FileAccessor) SaveArchive(ctx context.Context, doc *model.ArchiveFile, validate func() error) error {
	doc.Version = model.ArchiveSchemaVersion
	loadedChecksum := ""
	if doc.Meta != nil {
		loadedChecksum = doc.Meta.Checksum
	}
	return a.fs.SaveJSON(ctx, a.paths.Archive(), doc, fsstore.SaveOptions{
		BackupDir: a.paths.BackupDir("operational"),
		Validate: func() error {
			if err := a.checkStale(a.paths.Archive(), loadedChecksum); err != nil {
				return err
			}
			if validate != nil {
				if err := validate(); err != nil {
					return err
				}
			}
			return stampMeta(&doc.Meta, model.ArchiveSchemaVersion, a.clock, doc)
		},
	})
}

// LoadSessions reads the sessions document, defaulting to empty.
func (a *FileAccessor) LoadSessions(ctx context.Context) (*model.SessionsFile, error) {
	doc := model.NewSessionsFile()
	ok, err := a.fs.ReadJSON(a.paths.Sessions(), doc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return model.NewSessionsFile(), nil
	}
	if doc.Sessions == nil {
		doc.Sessions = []*model.Session{}
	}
	if err := verifyMeta(doc.Meta, doc, a.paths.Sessions()); err != nil {
		return nil, err
	}
	return doc, nil
}

// SaveSessions writes the sessions document.
func (a *FileAccessor) SaveSessions(ctx context.Context, doc *model.SessionsFile, validate func() error) error {
	doc.Version = model.SessionsSchemaVersion
	loadedChecksum := ""
	if doc.Meta != nil {
		loadedChecksum = doc.Meta.Checksum
	}
	return a.fs.SaveJSON(ctx, a.paths.Sessions(), doc, fsstore.SaveOptions{
		BackupDir: a.paths.BackupDir("operational"),
		Validate: func() error {
			if err := a.checkStale(a.paths.Sessions(), loadedChecksum); err != nil {
				return err
			}
			if validate != nil {
				if err := validate(); err != nil {
					return err
				}
			}
			return stampMeta(&doc.Meta, model.SessionsSchemaVersion, a.clock, doc)
		},
	})
}

// AppendLog writes one audit entry.
func (a *FileAccessor) AppendLog(ctx context.Context, e audit.Entry) error {
	return a.log.Append(ctx, e)
}

// ReadLog returns the audit entries via the tolerant reader.
func (a *FileAccessor) ReadLog() ([]audit.Entry, error) {
	return a.log.Read()
}

// Close is a no-op for the file back-end.
func (a *FileAccessor) Close() error { return nil }

// checkStale compares the checksum this document was loaded with against the
// current on-disk checksum. Runs inside the file lock, so a mismatch means a
// concurrent writer got in between our load and save.
func (a *FileAccessor) checkStale(path, loadedChecksum string) error {
	if loadedChecksum == "" {
		return nil
	}
	var onDisk struct {
		Meta *model.Meta `json:"_meta"`
	}
	ok, err := a.fs.ReadJSON(path, &onDisk)
	if err != nil || !ok || onDisk.Meta == nil || onDisk.Meta.Checksum == "" {
		return nil
	}
	if onDisk.Meta.Checksum != loadedChecksum {
		return model.NewError(model.ErrChecksumMismatch,
			"%s changed since it was loaded (stale read)", path).
			WithFix("reload state and retry the operation")
	}
	return nil
}
