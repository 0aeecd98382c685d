// Package fsstore is the atomic file store every CLEO write funnels through.
// It provides JSON read/write with cross-process advisory locks, temp-file
// plus rename atomicity, timestamped backups, append-only JSONL, and SHA-256
// document checksums. Nothing above this package touches the filesystem for
// state.
package fsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/dsj7419/cleo/internal/model"
)

// DefaultLockTimeout bounds how long a writer waits for a file lock before
// failing with LOCK_FAILED.
const DefaultLockTimeout = 10 * time.Second

// DefaultBackupRetention is the per-tier backup count bound.
const DefaultBackupRetention = 10

// Store performs all disk I/O for the project state directory.
type Store struct {
	logger          *zap.Logger
	lockTimeout     time.Duration
	backupRetention int
	locks           *lockTable
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the component logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithLockTimeout overrides the lock wait bound.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithBackupRetention overrides the per-directory backup bound.
func WithBackupRetention(n int) Option {
	return func(s *Store) { s.backupRetention = n }
}

// New constructs a Store.
func New(opts ...Option) *Store {
	s := &Store{
		logger:          zap.NewNop(),
		lockTimeout:     DefaultLockTimeout,
		backupRetention: DefaultBackupRetention,
		locks:           newLockTable(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SaveOptions modifies a SaveJSON call.
type SaveOptions struct {
	// BackupDir, when set, receives a timestamped copy of the previous file
	// before it is replaced. Retention is bounded; oldest copies are evicted.
	BackupDir string

	// Validate runs on the value inside the lock, before anything is
	// written. A non-nil return aborts the save with VALIDATION_ERROR.
	Validate func() error
}

// ReadJSON loads path into v. Returns (false, nil) when the file is absent.
func (s *Store) ReadJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// ReadJSONRequired loads path into v, failing with NOT_FOUND when absent.
func (s *Store) ReadJSONRequired(path string, v any) error {
	ok, err := s.ReadJSON(path, v)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewError(model.ErrNotFound, "file not found: %s", path)
	}
	return nil
}

// SaveJSON writes v to path atomically: lock, validate, back up the previous
// file, serialize to a sibling temp file, fsync, rename. A failure anywhere
// before the rename leaves the previous file intact.
func (s *Store) SaveJSON(ctx context.Context, path string, v any, opts SaveOptions) (err error) {
	release, err := s.locks.acquire(ctx, path, s.lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	if opts.Validate != nil {
		if verr := opts.Validate(); verr != nil {
			if _, ok := verr.(*model.Error); ok {
				return verr
			}
			return model.NewError(model.ErrValidation, "%s", verr.Error()).Wrap(verr)
		}
	}

	if opts.BackupDir != "" {
		if berr := s.backupExisting(path, opts.BackupDir); berr != nil {
			s.logger.Warn("backup failed, continuing with write",
				zap.String("path", path), zap.Error(berr))
		}
	}

	// Deadline check at the last safe boundary before mutation.
	if derr := ctx.Err(); derr != nil {
		return model.NewError(model.ErrLockFailed, "deadline exceeded before write: %s", path).Wrap(derr)
	}

	return atomicWrite(path, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	})
}

// AppendJSONL appends one entry to a JSONL file atomically. The whole file is
// rewritten through the temp-and-rename path so a crash never leaves a torn
// tail: the file on disk is always a prefix of some previously valid file
// plus fully written lines.
func (s *Store) AppendJSONL(ctx context.Context, path string, entry any) error {
	release, err := s.locks.acquire(ctx, path, s.lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode log entry: %w", err)
	}

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if derr := ctx.Err(); derr != nil {
		return model.NewError(model.ErrLockFailed, "deadline exceeded before write: %s", path).Wrap(derr)
	}

	return atomicWrite(path, func(f *os.File) error {
		if len(existing) > 0 {
			if _, werr := f.Write(existing); werr != nil {
				return werr
			}
			if existing[len(existing)-1] != '\n' {
				if _, werr := f.Write([]byte("\n")); werr != nil {
					return werr
				}
			}
		}
		if _, werr := f.Write(line); werr != nil {
			return werr
		}
		_, werr := f.Write([]byte("\n"))
		return werr
	})
}

// RewriteJSONL atomically replaces a JSONL file with the given entries.
// Used by readers that need to update rows in place (a JSONL file has no
// random access); the rename keeps crash safety identical to AppendJSONL.
func (s *Store) RewriteJSONL(ctx context.Context, path string, entries []any) error {
	release, err := s.locks.acquire(ctx, path, s.lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	lines := make([][]byte, 0, len(entries))
	for _, e := range entries {
		line, merr := json.Marshal(e)
		if merr != nil {
			return fmt.Errorf("encode log entry: %w", merr)
		}
		lines = append(lines, line)
	}

	if derr := ctx.Err(); derr != nil {
		return model.NewError(model.ErrLockFailed, "deadline exceeded before write: %s", path).Wrap(derr)
	}

	return atomicWrite(path, func(f *os.File) error {
		for _, line := range lines {
			if _, werr := f.Write(line); werr != nil {
				return werr
			}
			if _, werr := f.Write([]byte("\n")); werr != nil {
				return werr
			}
		}
		return nil
	})
}

// atomicWrite serializes through write into a sibling temp file, fsyncs it,
// and renames it over path.
func atomicWrite(path string, write func(*os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer func() {
		// Best effort: never leave temp droppings behind on failure.
		_ = os.Remove(tmpName)
	}()

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpName, path, err)
	}
	return nil
}
