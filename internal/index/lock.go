package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	ferrors "github.com/Aman-CERP/fusesearch/internal/errors"
)

// FileLock is a cross-process exclusive lock held by index writers.
// Readers never take it.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates an unlocked lock on path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path, flock: flock.New(path)}
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.path }

// TryLock attempts to acquire the lock without blocking. It returns false
// when another writer holds it.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Acquire is TryLock that reports a held lock as ERR_202_INDEX_LOCKED.
func (l *FileLock) Acquire() error {
	ok, err := l.TryLock()
	if err != nil {
		return ferrors.New(ferrors.ErrCodeIndexLocked, "cannot lock index", err)
	}
	if !ok {
		return ferrors.New(ferrors.ErrCodeIndexLocked, "index is being written by another process", nil).
			WithDetail("lock", l.path).
			WithSuggestion("wait for the running index or serve process, then retry")
	}
	return nil
}

// Unlock releases the lock. It is safe to call on an unlocked FileLock.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// IsLocked reports whether this FileLock holds the lock.
func (l *FileLock) IsLocked() bool { return l.locked }
