// Package fingerprint decides file content equality by cryptographic hash.
//
// Hashing full contents (instead of size+mtime heuristics) is a deliberate
// choice: it stays correct even when source modification times are
// unreliable, e.g. after a restore, at the cost of reading every
// pre-existing file once per run.
package fingerprint

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/treemirror/treemirror/pkg/fsx"
	"github.com/treemirror/treemirror/pkg/pool"
)

// ErrUnreadable wraps open/read failures while fingerprinting, e.g. a
// permission error or a file that disappeared mid-walk.
var ErrUnreadable = errors.New("file cannot be read")

// Fingerprint is an opaque fixed-size content hash. Two fingerprints are
// equal iff the hashed contents were bit-identical.
type Fingerprint [sha256.Size]byte

// String returns the hex form of the fingerprint.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%x", f[:])
}

// Equal reports whether two fingerprints are identical. This is not a
// security-sensitive comparison, so constant-time semantics are not needed.
func Equal(a, b Fingerprint) bool {
	return a == b
}

// Comparator computes content fingerprints through a filesystem provider.
// It is stateless apart from its buffer pool and safe for concurrent use.
type Comparator struct {
	provider fsx.Provider
	bufPool  *pool.BufferPool

	// BytesHashed, when set, is called with the number of bytes read for
	// each fingerprinted file. Used by the metrics layer.
	BytesHashed func(n int64)
}

// NewComparator creates a Comparator reading through the given provider with
// an I/O buffer pool of the given size in KB.
func NewComparator(provider fsx.Provider, bufferSizeKB int) *Comparator {
	if bufferSizeKB <= 0 {
		bufferSizeKB = 256
	}
	return &Comparator{
		provider: provider,
		bufPool:  pool.NewBufferPool(int64(bufferSizeKB) * 1024),
	}
}

// Fingerprint hashes the full contents of the file at path.
func (c *Comparator) Fingerprint(path string) (Fingerprint, error) {
	var fp Fingerprint

	r, err := c.provider.Open(path)
	if err != nil {
		return fp, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	defer r.Close()

	h := sha256.New()
	bufPtr := c.bufPool.Get()
	defer c.bufPool.Put(bufPtr)

	n, err := io.CopyBuffer(h, r, *bufPtr)
	if err != nil {
		return fp, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	if c.BytesHashed != nil {
		c.BytesHashed(n)
	}

	copy(fp[:], h.Sum(nil))
	return fp, nil
}
