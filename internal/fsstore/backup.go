package fsstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// backupExisting copies the current contents of path into backupDir with a
// timestamped name, then trims the directory to the retention bound (oldest
// evicted first). A missing source file is not an error.
func (s *Store) backupExisting(path, backupDir string) error {
	src, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open for backup: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	stamp := sanitizeForFilename(time.Now().UTC().Format("2006-01-02T15:04:05.000Z"))
	name := fmt.Sprintf("%s.%s.bak", filepath.Base(path), stamp)
	dstPath := filepath.Join(backupDir, name)

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dstPath)
		return fmt.Errorf("copy backup: %w", err)
	}
	if err := dst.Sync(); err != nil {
		return fmt.Errorf("fsync backup: %w", err)
	}

	return s.pruneBackups(backupDir, filepath.Base(path))
}

// Backup takes an explicit timestamped copy of path into backupDir, subject
// to the same retention as the implicit pre-save backups.
func (s *Store) Backup(path, backupDir string) error {
	return s.backupExisting(path, backupDir)
}

// pruneBackups evicts the oldest backups of base beyond the retention bound.
// Idempotent and safe to interrupt.
func (s *Store) pruneBackups(backupDir, base string) error {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == ".bak" && len(e.Name()) > len(base) && e.Name()[:len(base)] == base {
			names = append(names, e.Name())
		}
	}
	if len(names) <= s.backupRetention {
		return nil
	}
	sort.Strings(names) // timestamped names sort oldest first
	for _, n := range names[:len(names)-s.backupRetention] {
		_ = os.Remove(filepath.Join(backupDir, n))
	}
	return nil
}

// RestoreBackup copies a named backup file over the live path after the
// caller has re-validated it. The copy goes through the atomic rename path.
func (s *Store) RestoreBackup(backupPath, livePath string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("read backup %s: %w", backupPath, err)
	}
	return atomicWrite(livePath, func(f *os.File) error {
		_, werr := f.Write(data)
		return werr
	})
}

// ListBackups returns backup filenames for base in backupDir, newest last.
func (s *Store) ListBackups(backupDir, base string) ([]string, error) {
	entries, err := os.ReadDir(backupDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".bak" && len(e.Name()) > len(base) && e.Name()[:len(base)] == base {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
