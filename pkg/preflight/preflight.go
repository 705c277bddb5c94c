// Package preflight provides validation checks that run before a mirror
// operation begins. The checks are designed to produce friendly errors for
// the common misconfigurations (missing source, unmounted replica drive)
// instead of letting the run fail halfway through with a raw syscall error.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/treemirror/treemirror/pkg/util"
)

// CheckSourceAccessible validates that the source path exists and is a directory.
func CheckSourceAccessible(srcPath string) error {
	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("source directory %s does not exist", srcPath)
		}
		return fmt.Errorf("cannot stat source directory %s: %w", srcPath, err)
	}

	if !srcInfo.IsDir() {
		return fmt.Errorf("source path %s is not a directory", srcPath)
	}
	return nil
}

// CheckReplicaAccessible performs pre-flight checks to ensure the replica
// target is usable. It provides more user-friendly errors than letting
// os.MkdirAll fail.
//
// The checks include:
//  1. On Windows, verifies that the drive or network share (e.g., "Z:",
//     "\\Server\Share") exists.
//  2. If the replica path exists, confirms it is a directory.
//  3. If the replica path does not exist, confirms its parent directory is
//     accessible.
//  4. On Unix, if the path looks like a mount point, it verifies the device
//     is actually mounted to prevent mirroring into a "ghost" directory on
//     the root filesystem.
func CheckReplicaAccessible(replicaPath string) error {
	if err := checkVolumeExists(replicaPath); err != nil {
		return err
	}

	info, err := os.Stat(replicaPath)
	if os.IsNotExist(err) {
		// Replica doesn't exist. Find the deepest existing ancestor and
		// validate that one: if /mnt/backup/replica doesn't exist, is
		// /mnt/backup mounted?
		ancestor := replicaPath
		for {
			parent := filepath.Dir(ancestor)
			if parent == ancestor {
				break // Hit root
			}
			if _, err := os.Stat(parent); err == nil {
				ancestor = parent
				break // Found the deepest directory that actually exists
			}
			ancestor = parent
		}

		if err := validateMountPoint(ancestor); err != nil {
			return err
		}

		// The ancestor exists and (if required) is a mount. The immediate
		// parent of the replica must still be accessible so MkdirAll won't
		// fail on its permissions.
		parentDir := filepath.Dir(replicaPath)
		if _, err := os.Stat(parentDir); os.IsNotExist(err) {
			return fmt.Errorf("replica path and its parent directory do not exist: %s", parentDir)
		} else if err != nil {
			return fmt.Errorf("cannot access parent directory %s: %w", parentDir, err)
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("cannot access replica path: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("replica path exists but is not a directory: %s", replicaPath)
	}

	return validateMountPoint(replicaPath)
}

// CheckReplicaWritable ensures the replica directory can be created and is
// writable by performing filesystem modifications.
func CheckReplicaWritable(replicaPath string) error {
	if err := os.MkdirAll(replicaPath, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create replica directory %s: %w", replicaPath, err)
	}

	// Perform a thorough write check by creating and deleting a temporary file.
	tempFile := filepath.Join(replicaPath, ".treemirror-writetest.tmp")
	f, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("replica directory %s is not writable: %w", replicaPath, err)
	}
	f.Close()
	_ = os.Remove(tempFile)
	return nil
}
