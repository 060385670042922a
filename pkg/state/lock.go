package state

import (
	"fmt"
	"path/filepath"

	errs "feedrelay/pkg/errors"

	"github.com/gofrs/flock"
)

// RunLock keeps a second feedrelay process from starting a sync while one is active
type RunLock struct {
	path string
	lock *flock.Flock
}

// NewRunLock creates a lock file in dir
func NewRunLock(dir string) *RunLock {
	path := filepath.Join(dir, "run.lock")
	return &RunLock{path: path, lock: flock.New(path)}
}

// Acquire takes the lock or returns ErrRunActive when another process holds it
func (l *RunLock) Acquire() error {
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return errs.ErrRunActive
	}
	return nil
}

// Release drops the lock
func (l *RunLock) Release() error {
	return l.lock.Unlock()
}

// Path returns the lock file path
func (l *RunLock) Path() string {
	return l.path
}
