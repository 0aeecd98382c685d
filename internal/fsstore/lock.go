package fsstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/dsj7419/cleo/internal/model"
)

// lockRetryInterval is how often a blocked waiter re-attempts the flock.
const lockRetryInterval = 25 * time.Millisecond

// lockTable coordinates both tiers of locking: a per-path mutex serializing
// goroutines inside this process, and a gofrs/flock advisory lock serializing
// against other processes on the same project directory. Lock files sit next
// to the state file with a .lock suffix so the rename dance never disturbs
// the lock inode.
type lockTable struct {
	mu    sync.Mutex
	paths map[string]*pathLock
}

type pathLock struct {
	mu sync.Mutex
	fl *flock.Flock
}

func newLockTable() *lockTable {
	return &lockTable{paths: make(map[string]*pathLock)}
}

func (t *lockTable) get(path string) *pathLock {
	t.mu.Lock()
	defer t.mu.Unlock()
	pl, ok := t.paths[path]
	if !ok {
		pl = &pathLock{fl: flock.New(path + ".lock")}
		t.paths[path] = pl
	}
	return pl
}

// acquire takes both lock tiers for path, bounded by timeout and the caller's
// context. The returned release function must be called exactly once.
func (t *lockTable) acquire(ctx context.Context, path string, timeout time.Duration) (func(), error) {
	// The lock file sits beside the state file, and acquire runs before the
	// write ever touches the directory: the first save into a fresh project
	// (or the global dir) must create the parent here.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, model.NewError(model.ErrLockFailed,
			"could not create lock directory for %s", path).Wrap(err)
	}
	pl := t.get(path)

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// In-process tier first; respect the deadline while waiting.
	acquired := make(chan struct{})
	go func() {
		pl.mu.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-lockCtx.Done():
		// The goroutine will eventually take the mutex; hand it straight
		// back so the table stays consistent.
		go func() {
			<-acquired
			pl.mu.Unlock()
		}()
		return nil, model.NewError(model.ErrLockFailed, "timed out waiting for lock on %s", path)
	}

	ok, err := pl.fl.TryLockContext(lockCtx, lockRetryInterval)
	if err != nil || !ok {
		pl.mu.Unlock()
		e := model.NewError(model.ErrLockFailed, "could not acquire file lock on %s", path).
			WithFix("another cleo process may be writing; retry or raise lockTimeoutMs")
		if err != nil {
			e = e.Wrap(err)
		}
		return nil, e
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			_ = pl.fl.Unlock()
			pl.mu.Unlock()
		})
	}
	return release, nil
}

// LockOrder is the canonical multi-file lock order. Operations touching more
// than one state file must acquire locks in this order to avoid deadlock:
// tasks, archive, sessions, log.
var LockOrder = []string{"todo.json", "todo-archive.json", "sessions.json", "todo-log.jsonl"}
