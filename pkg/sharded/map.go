package sharded

import "sync"

type mapShard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// Map is a concurrent string-keyed map.
type Map[V any] struct {
	shards [numShards]mapShard[V]
}

// NewMap creates an empty concurrent map.
func NewMap[V any]() *Map[V] {
	m := &Map[V]{}
	for i := range m.shards {
		m.shards[i].items = make(map[string]V)
	}
	return m
}

// Store adds a key-value pair to the map.
func (m *Map[V]) Store(key string, value V) {
	shard := &m.shards[shardIndex(key)]
	shard.mu.Lock()
	shard.items[key] = value
	shard.mu.Unlock()
}

// Load retrieves the value for a key and whether it was present.
func (m *Map[V]) Load(key string) (V, bool) {
	shard := &m.shards[shardIndex(key)]
	shard.mu.RLock()
	value, ok := shard.items[key]
	shard.mu.RUnlock()
	return value, ok
}

// Delete removes a key from the map.
func (m *Map[V]) Delete(key string) {
	shard := &m.shards[shardIndex(key)]
	shard.mu.Lock()
	delete(shard.items, key)
	shard.mu.Unlock()
}

// Count returns the total number of entries.
func (m *Map[V]) Count() int {
	count := 0
	for i := range m.shards {
		shard := &m.shards[i]
		shard.mu.RLock()
		count += len(shard.items)
		shard.mu.RUnlock()
	}
	return count
}

// Items returns a snapshot of all key-value pairs.
func (m *Map[V]) Items() map[string]V {
	items := make(map[string]V, m.Count())
	for i := range m.shards {
		shard := &m.shards[i]
		shard.mu.RLock()
		for k, v := range shard.items {
			items[k] = v
		}
		shard.mu.RUnlock()
	}
	return items
}

// Range calls f for each key-value pair until f returns false.
// One shard is locked at a time; f must not modify the map.
func (m *Map[V]) Range(f func(key string, value V) bool) {
	for i := range m.shards {
		shard := &m.shards[i]
		shard.mu.RLock()
		for k, v := range shard.items {
			if !f(k, v) {
				shard.mu.RUnlock()
				return
			}
		}
		shard.mu.RUnlock()
	}
}
