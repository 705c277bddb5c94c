package sharded

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetBasics(t *testing.T) {
	s := NewSet()

	assert.False(t, s.Has("a"))
	s.Store("a")
	assert.True(t, s.Has("a"))
	assert.Equal(t, 1, s.Count())

	assert.False(t, s.LoadOrStore("b"), "first LoadOrStore must report not loaded")
	assert.True(t, s.LoadOrStore("b"), "second LoadOrStore must report loaded")

	s.Delete("a")
	assert.False(t, s.Has("a"))
	assert.ElementsMatch(t, []string{"b"}, s.Keys())
}

func TestSetConcurrentAccess(t *testing.T) {
	s := NewSet()
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("worker%d-key%d", w, i)
				s.Store(key)
				require.True(t, s.Has(key))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8*200, s.Count())
}

func TestMapBasics(t *testing.T) {
	m := NewMap[int]()

	_, ok := m.Load("a")
	assert.False(t, ok)

	m.Store("a", 1)
	m.Store("b", 2)
	v, ok := m.Load("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, m.Count())

	m.Delete("a")
	_, ok = m.Load("a")
	assert.False(t, ok)

	assert.Equal(t, map[string]int{"b": 2}, m.Items())
}

func TestMapRange(t *testing.T) {
	m := NewMap[string]()
	m.Store("x", "1")
	m.Store("y", "2")

	seen := map[string]string{}
	m.Range(func(key, value string) bool {
		seen[key] = value
		return true
	})
	assert.Equal(t, map[string]string{"x": "1", "y": "2"}, seen)

	// Early exit stops after the first item.
	calls := 0
	m.Range(func(key, value string) bool {
		calls++
		return false
	})
	assert.Equal(t, 1, calls)
}

func TestMapConcurrentAccess(t *testing.T) {
	m := NewMap[int]()
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				m.Store(fmt.Sprintf("worker%d-key%d", w, i), i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8*200, m.Count())
}
