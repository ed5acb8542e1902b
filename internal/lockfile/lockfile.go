// Package lockfile provides the advisory file lock backing the
// one-operation-at-a-time guarantee. The lock is cross-process: a second
// instance of the tool (or the GUI) contending for an operation fails
// fast instead of queueing behind a running transaction.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLockHeld is returned when another process (or another invocation in
// this process) already holds the operation lock.
var ErrLockHeld = errors.New("operation lock already held")

// Lock is a held advisory lock. Release it on any terminal transition.
type Lock struct {
	f *os.File
}

// Acquire takes the exclusive lock non-blockingly. The lock file is
// created owner-only; its content is irrelevant, only the flock state
// matters.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := flockExclusiveNonBlock(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Lock{f: f}, nil
}

// Release drops the lock. Safe to call once per acquired lock.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := flockUnlock(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if err != nil {
		return err
	}
	return closeErr
}
