package fsx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/treemirror/treemirror/pkg/pool"
	"github.com/treemirror/treemirror/pkg/util"
)

func join(dir, name string) string {
	return filepath.Join(dir, name)
}

// OS is the Provider backed by the real filesystem. Copies are written to a
// temporary file in the destination directory and renamed into place, so a
// crashed run never leaves a half-written file at the destination path.
type OS struct {
	bufPool *pool.BufferPool
}

// NewOS creates an OS provider with an I/O buffer pool of the given size in KB.
func NewOS(bufferSizeKB int) *OS {
	if bufferSizeKB <= 0 {
		bufferSizeKB = 256
	}
	return &OS{bufPool: pool.NewBufferPool(int64(bufferSizeKB) * 1024)}
}

// List returns the directory's entries. Symlinks and other non-regular,
// non-directory nodes are not part of the mirror model and are omitted.
func (o *OS) List(path string) ([]DirEntry, error) {
	dirEntries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	entries := make([]DirEntry, 0, len(dirEntries))
	for _, d := range dirEntries {
		switch {
		case d.IsDir():
			entries = append(entries, DirEntry{Name: d.Name(), Kind: KindDir})
		case d.Type().IsRegular():
			entries = append(entries, DirEntry{Name: d.Name(), Kind: KindFile})
		}
	}
	return entries, nil
}

// Exists reports whether a node of the given kind exists at path.
func (o *OS) Exists(path string, kind Kind) (bool, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	switch kind {
	case KindFile:
		return info.Mode().IsRegular(), nil
	case KindDir:
		return info.IsDir(), nil
	default:
		return true, nil
	}
}

// Open returns a reader over a file's contents.
func (o *OS) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// CopyFile copies src to dst atomically via a temporary file. Permissions are
// taken from the source with the owner-write bit forced, and the source
// modification time is carried over.
func (o *OS) CopyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", src, err)
	}
	defer in.Close()

	srcInfo, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source file %s: %w", src, err)
	}

	out, err := os.CreateTemp(filepath.Dir(dst), "treemirror-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", filepath.Dir(dst), err)
	}
	defer out.Close() // Ensure closed on error.

	tempPath := out.Name()
	// If the rename succeeds, tempPath is cleared and this becomes a no-op.
	defer func() {
		if tempPath != "" {
			os.Remove(tempPath)
		}
	}()

	// Pre-allocate file size to reduce fragmentation.
	if srcInfo.Size() > 0 {
		_ = out.Truncate(srcInfo.Size())
	}

	bufPtr := o.bufPool.Get()
	defer o.bufPool.Put(bufPtr)
	if _, err := io.CopyBuffer(out, in, *bufPtr); err != nil {
		return fmt.Errorf("failed to copy content from %s to %s: %w", src, tempPath, err)
	}

	if err := out.Chmod(util.WithUserWritePermission(srcInfo.Mode().Perm())); err != nil {
		return fmt.Errorf("failed to set permissions on temporary file %s: %w", tempPath, err)
	}

	// Close flushes to disk and MUST happen before Chtimes, since closing can
	// update the modification time.
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file %s: %w", tempPath, err)
	}

	if err := os.Chtimes(tempPath, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		return fmt.Errorf("failed to set timestamps on %s: %w", tempPath, err)
	}

	// os.Rename is atomic on POSIX and uses MoveFileEx with
	// MOVEFILE_REPLACE_EXISTING on Windows.
	if err := os.Rename(tempPath, dst); err != nil {
		return fmt.Errorf("failed to move %s into place at %s: %w", tempPath, dst, err)
	}
	tempPath = ""
	return nil
}

// Mkdir creates the directory and any missing parents.
func (o *OS) Mkdir(path string) error {
	return os.MkdirAll(path, util.UserWritableDirPerms)
}

// RemoveFile removes a single file.
func (o *OS) RemoveFile(path string) error {
	return os.Remove(path)
}

// RemoveDir removes a directory. os.Remove fails on non-empty directories,
// which is exactly the contract the reducer relies on.
func (o *OS) RemoveDir(path string) error {
	return os.Remove(path)
}

// ChildCount returns the number of direct children of a directory.
func (o *OS) ChildCount(path string) (int, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

var _ Provider = (*OS)(nil)
