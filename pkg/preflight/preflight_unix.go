//go:build !windows

package preflight

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// mountRoots are the directories where external drives conventionally get
// mounted. Ghost detection only applies below these; a replica anywhere
// else on the system disk is assumed intentional.
var mountRoots = []string{"/mnt/", "/media/", "/Volumes/", "/run/media/"}

// checkVolumeExists is a no-op on Unix; volume semantics are a Windows concept.
func checkVolumeExists(path string) error {
	return nil
}

// validateMountPoint checks whether a path under a conventional mount root
// actually resides on a mounted device. An unmounted external drive leaves
// its mount directory behind on the system disk, and mirroring into that
// ghost directory would silently fill the root partition.
func validateMountPoint(path string) error {
	underMountRoot := false
	for _, root := range mountRoots {
		if strings.HasPrefix(path, root) {
			underMountRoot = true
			break
		}
	}
	if !underMountRoot {
		return nil
	}

	rootInfo, err := os.Stat("/")
	if err != nil {
		return fmt.Errorf("failed to stat root: %w", err)
	}
	rootStat, ok := rootInfo.Sys().(*unix.Stat_t)
	if !ok {
		return fmt.Errorf("unsupported platform for unix.Stat_t")
	}

	pathInfo, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat replica path: %w", err)
	}
	pathStat, ok := pathInfo.Sys().(*unix.Stat_t)
	if !ok {
		return fmt.Errorf("unsupported platform for unix.Stat_t")
	}

	// Same device ID as "/" means the mount directory is a leftover on the
	// system partition and the drive itself is absent.
	if pathStat.Dev == rootStat.Dev {
		return fmt.Errorf("path '%s' is on the root filesystem (system disk). "+
			"Ensure your external drive is mounted", path)
	}

	return nil
}
