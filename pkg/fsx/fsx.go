// Package fsx defines the filesystem provider consumed by the mirror core.
//
// The core decides which actions to take; the provider executes them. This
// split keeps the decision logic testable against the in-memory provider
// while the OS provider owns the low-level copy/remove primitives.
package fsx

import (
	"errors"
	"io"
)

// Kind identifies the type of a filesystem node.
type Kind int

const (
	// KindFile is a regular file.
	KindFile Kind = iota
	// KindDir is a directory.
	KindDir
	// KindAny matches either kind in existence queries.
	KindAny
)

var kindToString = map[Kind]string{KindFile: "file", KindDir: "directory", KindAny: "any"}

// String returns the string representation of a Kind.
func (k Kind) String() string {
	if s, ok := kindToString[k]; ok {
		return s
	}
	return "unknown_kind"
}

// DirEntry is one entry of a directory listing.
type DirEntry struct {
	Name string
	Kind Kind
}

// SkipDir signals Walk to skip the current directory's children.
var SkipDir = errors.New("skip this directory")

// Provider exposes the filesystem operations the mirror core depends on.
// Implementations must tolerate concurrent calls; the core guarantees that
// no two workers mutate the same path concurrently.
type Provider interface {
	// List returns the entries of a directory in unspecified order.
	List(path string) ([]DirEntry, error)

	// Exists reports whether a node of the given kind exists at path.
	// KindAny matches any node.
	Exists(path string, kind Kind) (bool, error)

	// Open returns a reader over a file's contents.
	Open(path string) (io.ReadCloser, error)

	// CopyFile copies a whole file from src to dst, replacing dst if present.
	// The parent directory of dst must already exist.
	CopyFile(src, dst string) error

	// Mkdir creates a directory at path, including missing parents.
	Mkdir(path string) error

	// RemoveFile removes a single file.
	RemoveFile(path string) error

	// RemoveDir removes a directory; it fails if the directory is non-empty.
	RemoveDir(path string) error

	// ChildCount returns the number of direct children of a directory.
	ChildCount(path string) (int, error)
}

// Walk traverses the tree rooted at root in pre-order, calling fn for every
// node including the root itself. Listing errors below the root are passed
// to fn as walkErr with the children skipped; fn may return SkipDir on a
// directory to prune its subtree, or any other error to abort the walk.
func Walk(p Provider, root string, fn func(path string, kind Kind, walkErr error) error) error {
	return walk(p, root, KindDir, fn)
}

func walk(p Provider, path string, kind Kind, fn func(path string, kind Kind, walkErr error) error) error {
	if err := fn(path, kind, nil); err != nil {
		if errors.Is(err, SkipDir) && kind == KindDir {
			return nil
		}
		return err
	}
	if kind != KindDir {
		return nil
	}

	entries, err := p.List(path)
	if err != nil {
		// Report the unreadable directory to fn and carry on with siblings.
		if ferr := fn(path, KindDir, err); ferr != nil && !errors.Is(ferr, SkipDir) {
			return ferr
		}
		return nil
	}
	for _, e := range entries {
		if err := walk(p, join(path, e.Name), e.Kind, fn); err != nil {
			return err
		}
	}
	return nil
}
