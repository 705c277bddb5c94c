// Package runlock guards a replica directory against concurrent mirror
// runs. Two processes mirroring into the same replica would race each
// other's deletions, so every mutating command takes the lock first.
package runlock

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is the name of the lock file created in the replica root.
const LockFileName = "treemirror.lock"

// ErrLocked is returned when another process already holds the lock.
type ErrLocked struct {
	Path string
}

func (e *ErrLocked) Error() string {
	return fmt.Sprintf("replica is locked by another process (lock file: %s)", e.Path)
}

// RunLock holds an exclusive advisory lock on a replica directory.
type RunLock struct {
	fl *flock.Flock
}

// Acquire takes the replica lock without blocking. It returns *ErrLocked
// when the lock is held elsewhere. The lock file itself is left in place
// after release; only the advisory lock is dropped.
func Acquire(replicaRoot string) (*RunLock, error) {
	path := filepath.Join(replicaRoot, LockFileName)
	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire replica lock %s: %w", path, err)
	}
	if !locked {
		return nil, &ErrLocked{Path: path}
	}
	return &RunLock{fl: fl}, nil
}

// Release drops the advisory lock. Safe to call more than once.
func (l *RunLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}

// Path returns the lock file path.
func (l *RunLock) Path() string {
	return l.fl.Path()
}
