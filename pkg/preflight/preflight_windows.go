//go:build windows

package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// checkVolumeExists verifies that the drive or network share root for a
// given path exists. For example, for "Z:\replica", it checks if "Z:\"
// exists. This is analogous to the Unix "ghost directory" check, ensuring
// the target volume is actually available.
func checkVolumeExists(path string) error {
	volume := filepath.VolumeName(path)
	if volume == "" {
		return nil // Not a path with a volume name (e.g., relative path), so nothing to check.
	}

	// Append the separator if it's missing (converts "C:" to "C:\").
	checkVol := volume
	if !strings.HasSuffix(checkVol, string(filepath.Separator)) {
		checkVol += string(filepath.Separator)
	}
	checkVol = filepath.Clean(checkVol)

	if _, err := os.Stat(checkVol); os.IsNotExist(err) {
		return fmt.Errorf("volume root does not exist: %s. Ensure the drive is connected", checkVol)
	}
	return nil
}

// validateMountPoint is a no-op on Windows; checkVolumeExists already
// covers missing drives.
func validateMountPoint(path string) error {
	return nil
}
