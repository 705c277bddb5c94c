package mirror

import "sync"

// DirQueue is the phase-local queue of replica directories discovered as
// orphans during the cleanup pass. Their deletion is deferred: a directory
// may contain children not yet visited in the same pass, or may only become
// empty after its own orphan children are removed.
//
// Appends are synchronized so concurrent collectors can feed one queue.
// Only the reducer removes entries, as directories become empty.
type DirQueue struct {
	mu   sync.Mutex
	keys []string
	seen map[string]struct{}
}

// NewDirQueue creates an empty queue.
func NewDirQueue() *DirQueue {
	return &DirQueue{seen: make(map[string]struct{})}
}

// Push appends a relative path key, ignoring duplicates.
func (q *DirQueue) Push(relPathKey string) {
	q.mu.Lock()
	if _, ok := q.seen[relPathKey]; !ok {
		q.seen[relPathKey] = struct{}{}
		q.keys = append(q.keys, relPathKey)
	}
	q.mu.Unlock()
}

// Remove deletes a key from the queue.
func (q *DirQueue) Remove(relPathKey string) {
	q.mu.Lock()
	if _, ok := q.seen[relPathKey]; ok {
		delete(q.seen, relPathKey)
		for i, k := range q.keys {
			if k == relPathKey {
				q.keys = append(q.keys[:i], q.keys[i+1:]...)
				break
			}
		}
	}
	q.mu.Unlock()
}

// Len returns the number of queued directories.
func (q *DirQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.keys)
}

// Keys returns a snapshot of the queued keys in insertion order.
func (q *DirQueue) Keys() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.keys...)
}
