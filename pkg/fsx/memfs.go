package fsx

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

type memNode struct {
	kind Kind
	data []byte
}

// Mem is an in-memory Provider used to unit-test the mirror decision logic
// without touching a real filesystem. Paths are normalized to forward
// slashes internally so tests behave the same on every platform.
type Mem struct {
	mu    sync.Mutex
	nodes map[string]*memNode

	// FailHook, when set, is consulted before every operation. Returning a
	// non-nil error makes that operation fail; this is how tests inject
	// partial I/O failures.
	FailHook func(op, p string) error
}

// NewMem creates an empty in-memory provider.
func NewMem() *Mem {
	return &Mem{nodes: make(map[string]*memNode)}
}

func memKey(p string) string {
	return path.Clean(filepath.ToSlash(p))
}

func (m *Mem) fail(op, p string) error {
	if m.FailHook != nil {
		return m.FailHook(op, p)
	}
	return nil
}

// List returns the direct children of a directory.
func (m *Mem) List(p string) ([]DirEntry, error) {
	key := memKey(p)
	if err := m.fail("list", key); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[key]
	if !ok {
		return nil, &os.PathError{Op: "list", Path: p, Err: os.ErrNotExist}
	}
	if node.kind != KindDir {
		return nil, &os.PathError{Op: "list", Path: p, Err: fmt.Errorf("not a directory")}
	}

	var entries []DirEntry
	for k, n := range m.nodes {
		if path.Dir(k) == key && k != key {
			entries = append(entries, DirEntry{Name: path.Base(k), Kind: n.kind})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Exists reports whether a node of the given kind exists at path.
func (m *Mem) Exists(p string, kind Kind) (bool, error) {
	key := memKey(p)
	if err := m.fail("exists", key); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[key]
	if !ok {
		return false, nil
	}
	return kind == KindAny || node.kind == kind, nil
}

// Open returns a reader over a file's contents.
func (m *Mem) Open(p string) (io.ReadCloser, error) {
	key := memKey(p)
	if err := m.fail("open", key); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[key]
	if !ok || node.kind != KindFile {
		return nil, &os.PathError{Op: "open", Path: p, Err: os.ErrNotExist}
	}
	return io.NopCloser(bytes.NewReader(node.data)), nil
}

// CopyFile copies src to dst, replacing dst if present. The parent directory
// of dst must already exist, matching the OS provider's contract.
func (m *Mem) CopyFile(src, dst string) error {
	srcKey, dstKey := memKey(src), memKey(dst)
	if err := m.fail("copy", dstKey); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	srcNode, ok := m.nodes[srcKey]
	if !ok || srcNode.kind != KindFile {
		return &os.PathError{Op: "copy", Path: src, Err: os.ErrNotExist}
	}
	parent, ok := m.nodes[path.Dir(dstKey)]
	if !ok || parent.kind != KindDir {
		return &os.PathError{Op: "copy", Path: dst, Err: fmt.Errorf("parent directory does not exist")}
	}
	if existing, ok := m.nodes[dstKey]; ok && existing.kind == KindDir {
		return &os.PathError{Op: "copy", Path: dst, Err: fmt.Errorf("destination is a directory")}
	}
	m.nodes[dstKey] = &memNode{kind: KindFile, data: append([]byte(nil), srcNode.data...)}
	return nil
}

// Mkdir creates a directory and any missing parents.
func (m *Mem) Mkdir(p string) error {
	key := memKey(p)
	if err := m.fail("mkdir", key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mkdirAllLocked(key)
}

func (m *Mem) mkdirAllLocked(key string) error {
	if key == "/" || key == "." {
		m.nodes[key] = &memNode{kind: KindDir}
		return nil
	}
	if node, ok := m.nodes[key]; ok {
		if node.kind != KindDir {
			return &os.PathError{Op: "mkdir", Path: key, Err: fmt.Errorf("a file occupies this path")}
		}
		return nil
	}
	if parent := path.Dir(key); parent != key {
		if err := m.mkdirAllLocked(parent); err != nil {
			return err
		}
	}
	m.nodes[key] = &memNode{kind: KindDir}
	return nil
}

// RemoveFile removes a single file.
func (m *Mem) RemoveFile(p string) error {
	key := memKey(p)
	if err := m.fail("removefile", key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[key]
	if !ok || node.kind != KindFile {
		return &os.PathError{Op: "remove", Path: p, Err: os.ErrNotExist}
	}
	delete(m.nodes, key)
	return nil
}

// RemoveDir removes a directory; it fails if the directory is non-empty.
func (m *Mem) RemoveDir(p string) error {
	key := memKey(p)
	if err := m.fail("removedir", key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[key]
	if !ok || node.kind != KindDir {
		return &os.PathError{Op: "remove", Path: p, Err: os.ErrNotExist}
	}
	if m.childCountLocked(key) > 0 {
		return &os.PathError{Op: "remove", Path: p, Err: fmt.Errorf("directory not empty")}
	}
	delete(m.nodes, key)
	return nil
}

// ChildCount returns the number of direct children of a directory.
func (m *Mem) ChildCount(p string) (int, error) {
	key := memKey(p)
	if err := m.fail("childcount", key); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[key]
	if !ok || node.kind != KindDir {
		return 0, &os.PathError{Op: "childcount", Path: p, Err: os.ErrNotExist}
	}
	return m.childCountLocked(key), nil
}

func (m *Mem) childCountLocked(key string) int {
	count := 0
	for k := range m.nodes {
		if path.Dir(k) == key && k != key {
			count++
		}
	}
	return count
}

// --- test setup helpers ---

// WriteFile stores file contents, creating parent directories as needed.
func (m *Mem) WriteFile(p string, data []byte) error {
	key := memKey(p)
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.mkdirAllLocked(path.Dir(key)); err != nil {
		return err
	}
	if node, ok := m.nodes[key]; ok && node.kind == KindDir {
		return &os.PathError{Op: "write", Path: p, Err: fmt.Errorf("a directory occupies this path")}
	}
	m.nodes[key] = &memNode{kind: KindFile, data: append([]byte(nil), data...)}
	return nil
}

// ReadFile returns a file's contents.
func (m *Mem) ReadFile(p string) ([]byte, error) {
	key := memKey(p)
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[key]
	if !ok || node.kind != KindFile {
		return nil, &os.PathError{Op: "read", Path: p, Err: os.ErrNotExist}
	}
	return append([]byte(nil), node.data...), nil
}

// Paths returns every stored path under prefix, sorted, for assertions.
func (m *Mem) Paths(prefix string) []string {
	key := memKey(prefix)
	m.mu.Lock()
	defer m.mu.Unlock()

	var paths []string
	for k := range m.nodes {
		if k == key || strings.HasPrefix(k, key+"/") {
			paths = append(paths, k)
		}
	}
	sort.Strings(paths)
	return paths
}

var _ Provider = (*Mem)(nil)
