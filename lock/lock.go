// Package lock implements the single-writer advisory lock described in
// spec §5: a cross-process flock on a well-known path inside the
// repository, blocking with caller-configurable timeout, zero meaning
// "fail immediately if held." It follows the flock usage and
// poll-with-timeout shape of cmd/bd's JSONLLock in the teacher pack, with
// an fsnotify-based wake-on-release fast path layered on top so a waiting
// writer doesn't sit on the full poll interval once the holder actually
// unlocks.
package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"

	"github.com/gitdb-project/gitdb/dberr"
)

// FileName is the lock file's name within the repository's control
// directory (<repo>/.gitdb/write.lock).
const FileName = "write.lock"

// pollInterval bounds how long Acquire can go between retries when no
// fsnotify watcher could be established on the lock file's directory.
const pollInterval = 25 * time.Millisecond

// Advisory is the repository's single-writer lock.
type Advisory struct {
	fl *flock.Flock
}

// Open builds the advisory lock for the repository rooted at repoDir. It
// does not acquire anything yet.
func Open(repoDir string) (*Advisory, error) {
	dir := filepath.Join(repoDir, ".gitdb")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lock: creating %s: %w", dir, err)
	}
	return &Advisory{fl: flock.New(filepath.Join(dir, FileName))}, nil
}

// Acquire blocks until the lock is held or timeout elapses. timeout == 0
// means fail immediately (ErrBusy) if the lock is currently held by
// another process.
func (a *Advisory) Acquire(ctx context.Context, timeout time.Duration) error {
	locked, err := a.fl.TryLock()
	if err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	if locked {
		return nil
	}
	if timeout == 0 {
		return dberr.ErrBusy
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	changed := a.watchForRelease(waitCtx)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		locked, err := a.fl.TryLock()
		if err != nil {
			return fmt.Errorf("lock: %w", err)
		}
		if locked {
			return nil
		}

		select {
		case <-waitCtx.Done():
			return fmt.Errorf("%w: timed out waiting for write lock after %s", dberr.ErrBusy, timeout)
		case <-changed:
		case <-ticker.C:
		}
	}
}

// Release drops the lock. Safe to call on an already-released lock.
func (a *Advisory) Release() error {
	if a.fl == nil {
		return nil
	}
	return a.fl.Unlock()
}

// watchForRelease returns a channel that fires (best-effort, once per
// matching event until ctx is done) when the lock file looks like it might
// have been released.
// If a watcher can't be established, the returned channel never fires and
// callers fall back to plain polling, matching the daemon watcher's
// fsnotify-with-polling-fallback pattern in the teacher pack.
func (a *Advisory) watchForRelease(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return out
	}
	dir := filepath.Dir(a.fl.Path())
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return out
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != a.fl.Path() {
					continue
				}
				if event.Op&(fsnotify.Remove|fsnotify.Write|fsnotify.Rename|fsnotify.Chmod) != 0 {
					select {
					case out <- struct{}{}:
					default:
					}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return out
}
