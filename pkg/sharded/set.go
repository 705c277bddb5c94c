package sharded

import "sync"

type setShard struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

// Set is a concurrent string set.
type Set struct {
	shards [numShards]setShard
}

// NewSet creates an empty concurrent set.
func NewSet() *Set {
	s := &Set{}
	for i := range s.shards {
		s.shards[i].items = make(map[string]struct{})
	}
	return s
}

// Store adds a key to the set.
func (s *Set) Store(key string) {
	shard := &s.shards[shardIndex(key)]
	shard.mu.Lock()
	shard.items[key] = struct{}{}
	shard.mu.Unlock()
}

// Has reports whether a key is present.
func (s *Set) Has(key string) bool {
	shard := &s.shards[shardIndex(key)]
	shard.mu.RLock()
	_, ok := shard.items[key]
	shard.mu.RUnlock()
	return ok
}

// LoadOrStore ensures a key is present, returning true if it was already there.
func (s *Set) LoadOrStore(key string) (loaded bool) {
	shard := &s.shards[shardIndex(key)]
	shard.mu.Lock()
	_, loaded = shard.items[key]
	if !loaded {
		shard.items[key] = struct{}{}
	}
	shard.mu.Unlock()
	return loaded
}

// Delete removes a key from the set.
func (s *Set) Delete(key string) {
	shard := &s.shards[shardIndex(key)]
	shard.mu.Lock()
	delete(shard.items, key)
	shard.mu.Unlock()
}

// Count returns the total number of keys.
func (s *Set) Count() int {
	count := 0
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.RLock()
		count += len(shard.items)
		shard.mu.RUnlock()
	}
	return count
}

// Keys returns all keys in unspecified order.
func (s *Set) Keys() []string {
	keys := make([]string, 0, s.Count())
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.RLock()
		for k := range shard.items {
			keys = append(keys, k)
		}
		shard.mu.RUnlock()
	}
	return keys
}
