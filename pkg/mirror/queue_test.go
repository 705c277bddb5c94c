package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirQueue(t *testing.T) {
	q := NewDirQueue()

	q.Push("a")
	q.Push("a/b")
	q.Push("a") // duplicate
	q.Push("c")

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []string{"a", "a/b", "c"}, q.Keys(), "keys must keep insertion order")

	q.Remove("a/b")
	assert.Equal(t, []string{"a", "c"}, q.Keys())

	q.Remove("missing") // no-op
	assert.Equal(t, 2, q.Len())

	// Re-pushing a removed key appends it again.
	q.Push("a/b")
	assert.Equal(t, []string{"a", "c", "a/b"}, q.Keys())
}

func TestDirQueueKeysIsSnapshot(t *testing.T) {
	q := NewDirQueue()
	q.Push("a")
	q.Push("b")

	keys := q.Keys()
	q.Remove("a")

	assert.Equal(t, []string{"a", "b"}, keys, "snapshot must not change after Remove")
	assert.Equal(t, []string{"b"}, q.Keys())
}
