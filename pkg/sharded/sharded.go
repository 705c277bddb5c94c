// Package sharded provides lock-striped string-keyed collections for the
// concurrent sync pipeline. Keys are hashed with FNV-1a onto a power-of-two
// number of shards so contention stays low even with many workers touching
// paths in the same subtree.
package sharded

import "hash/fnv"

// numShards must be a power of 2 so the bitwise AND modulus works.
const numShards = 64

func shardIndex(key string) int {
	h := fnv.New32a()
	// Write never returns an error for FNV-1a.
	h.Write([]byte(key))
	return int(h.Sum32() & uint32(numShards-1))
}
