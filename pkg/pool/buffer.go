// Package pool provides reusable byte buffers for file copying and hashing.
//
// sync.Pool caches allocated but unused objects for later reuse, relieving
// pressure on the garbage collector. Items are dropped during GC, which is
// fine for short-lived buffers.
package pool

import "sync"

// BufferPool hands out fixed-size byte slices.
type BufferPool struct {
	size int64
	pool sync.Pool
}

// NewBufferPool creates a pool of buffers of the given size in bytes.
func NewBufferPool(size int64) *BufferPool {
	return &BufferPool{
		size: size,
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, int(size))
				return &b
			},
		},
	}
}

// Size returns the buffer size this pool hands out.
func (p *BufferPool) Size() int64 {
	return p.size
}

// Get retrieves a buffer from the pool.
func (p *BufferPool) Get() *[]byte {
	bufPtr := p.pool.Get().(*[]byte)
	// Always reset len to cap before use, strictly for io.Read/Copy purposes.
	*bufPtr = (*bufPtr)[:cap(*bufPtr)]
	return bufPtr
}

// Put returns a buffer to the pool. Buffers of the wrong size are dropped.
func (p *BufferPool) Put(bufPtr *[]byte) {
	if bufPtr == nil || int64(cap(*bufPtr)) != p.size {
		return
	}
	*bufPtr = (*bufPtr)[:p.size]
	p.pool.Put(bufPtr)
}
