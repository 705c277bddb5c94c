// Package pathmap converts absolute paths under one root into the equivalent
// relative path keys under another root.
//
// Relative path keys are normalized to forward slashes so they can be used
// as stable map/set keys across platforms. They are NOT suitable for direct
// filesystem access; use Rebase to turn a key back into an OS-native
// absolute path first.
package pathmap

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned by Relativize when the full path does not
// resolve to a descendant of the root. This indicates a caller bug, not an
// I/O failure.
var ErrOutsideRoot = errors.New("path is outside the root")

// NormalizePath converts an OS-native path into the normalized key format
// (forward slashes).
func NormalizePath(path string) string {
	return filepath.ToSlash(path)
}

// Relativize computes the normalized relative path key of fullPath under
// rootPath. The root itself maps to ".".
func Relativize(rootPath, fullPath string) (string, error) {
	rel, err := filepath.Rel(rootPath, fullPath)
	if err != nil {
		return "", fmt.Errorf("could not relativize %s against %s: %w", fullPath, rootPath, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is not under %s", ErrOutsideRoot, fullPath, rootPath)
	}
	return NormalizePath(rel), nil
}

// Rebase joins a relative path key onto a new root, producing an OS-native
// absolute path. It is a pure join: it never touches the filesystem and
// performs no existence check.
func Rebase(relPathKey, newRoot string) string {
	if relPathKey == "." || relPathKey == "" {
		return newRoot
	}
	return filepath.Join(newRoot, filepath.FromSlash(relPathKey))
}

// Parent returns the normalized key of the parent of a relative path key.
// The parent of a top-level entry (and of "." itself) is ".".
func Parent(relPathKey string) string {
	// filepath.Dir can reintroduce OS-specific separators, so re-normalize.
	return NormalizePath(filepath.Dir(filepath.FromSlash(relPathKey)))
}

// Base returns the last element of a relative path key.
func Base(relPathKey string) string {
	return filepath.Base(filepath.FromSlash(relPathKey))
}

// Join joins a normalized parent key with a child name, keeping the result
// normalized. Joining onto "." yields the bare child name.
func Join(relPathKey, name string) string {
	if relPathKey == "." || relPathKey == "" {
		return name
	}
	return relPathKey + "/" + name
}
