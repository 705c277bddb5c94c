package runlock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	replica := t.TempDir()

	lock, err := Acquire(replica)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(replica, LockFileName), lock.Path())

	// The lock file is created in the replica root.
	_, err = os.Stat(filepath.Join(replica, LockFileName))
	require.NoError(t, err)

	require.NoError(t, lock.Release())

	// Reacquiring after release works.
	lock2, err := Acquire(replica)
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}

func TestSecondAcquireFailsWhileHeld(t *testing.T) {
	replica := t.TempDir()

	lock, err := Acquire(replica)
	require.NoError(t, err)
	defer lock.Release()

	_, err = Acquire(replica)
	var locked *ErrLocked
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, filepath.Join(replica, LockFileName), locked.Path)
}

func TestReleaseIsNilSafe(t *testing.T) {
	var lock *RunLock
	assert.NoError(t, lock.Release())
	assert.NoError(t, (&RunLock{}).Release())
}

func TestErrLockedMessageNamesLockFile(t *testing.T) {
	err := &ErrLocked{Path: "/mnt/backup/" + LockFileName}
	assert.Contains(t, err.Error(), LockFileName)
}
