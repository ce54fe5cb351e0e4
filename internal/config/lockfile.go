package config

import (
	"fmt"
	"os"

	"github.com/gofrs/flock"
)

// Lock is munged's startup mutual-exclusion guard: an advisory flock on
// LockFile, held for the life of the process, that keeps two daemons from
// fighting over the same socket and PID file. Unlock releases and removes
// the lock; it is safe to call once, typically via defer.
type Lock struct {
	fl   *flock.Flock
	path string
}

// AcquireLock takes an exclusive, non-blocking lock on path, creating it
// (and its parent directory, mode 0755) if necessary. A lock already held
// by another process returns ErrAlreadyRunning.
func AcquireLock(path string) (*Lock, error) {
	if err := os.MkdirAll(dirOf(path), 0o755); err != nil {
		return nil, fmt.Errorf("config: create lock dir: %w", err)
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("config: lock %s: %w", path, err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	return &Lock{fl: fl, path: path}, nil
}

// Unlock releases the lock and removes the lock file.
func (l *Lock) Unlock() error {
	if err := l.fl.Unlock(); err != nil {
		return err
	}
	return os.Remove(l.path)
}
