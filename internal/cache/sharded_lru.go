package cache

import (
	"hash/fnv"
	"time"
)

const defaultShardCount = 16

// Cache is the common interface for LRU and ShardedLRU caches.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Put(key K, value V)
	PutIf(key K, value V, keep func(existing, incoming V) bool) bool
	Delete(key K)
	Len() int
	Stats() (hits, misses int64)
}

// Compile-time check that LRU satisfies Cache.
var _ Cache[string, int] = (*LRU[string, int])(nil)

// ShardIndex maps key onto [0, n) with FNV-32a. The same function picks cache
// shards and reconcile workers, so a key always lands on the same partition.
func ShardIndex(key string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

// ShardedLRU distributes keys across multiple LRU shards to reduce lock contention.
// Shards are selected with ShardIndex on the string form of the key.
type ShardedLRU[K comparable, V any] struct {
	shards   []*LRU[K, V]
	keyToStr func(K) string
}

// NewShardedLRU creates a ShardedLRU with defaultShardCount shards.
// totalCapacity is distributed evenly across shards. keyFn converts
// a key to a string for shard selection via FNV-32a.
func NewShardedLRU[K comparable, V any](totalCapacity int, ttl time.Duration, keyFn func(K) string) *ShardedLRU[K, V] {
	return NewShardedLRUWithCount[K, V](totalCapacity, ttl, keyFn, defaultShardCount)
}

// NewShardedLRUWithCount creates a ShardedLRU with a specified shard count.
// totalCapacity is distributed evenly across shards.
func NewShardedLRUWithCount[K comparable, V any](totalCapacity int, ttl time.Duration, keyFn func(K) string, shardCount int) *ShardedLRU[K, V] {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	perShard := max(totalCapacity/shardCount, 1)

	shards := make([]*LRU[K, V], shardCount)
	for i := range shards {
		shards[i] = NewLRU[K, V](perShard, ttl)
	}
	return &ShardedLRU[K, V]{shards: shards, keyToStr: keyFn}
}

func (s *ShardedLRU[K, V]) shard(key K) *LRU[K, V] {
	return s.shards[ShardIndex(s.keyToStr(key), len(s.shards))]
}

// Get retrieves a value from the appropriate shard.
func (s *ShardedLRU[K, V]) Get(key K) (V, bool) {
	return s.shard(key).Get(key)
}

// Put adds or updates a value in the appropriate shard.
func (s *ShardedLRU[K, V]) Put(key K, value V) {
	s.shard(key).Put(key, value)
}

// PutIf stores value in the appropriate shard unless keep rejects it.
func (s *ShardedLRU[K, V]) PutIf(key K, value V, keep func(existing, incoming V) bool) bool {
	return s.shard(key).PutIf(key, value, keep)
}

// Delete removes key from the appropriate shard.
func (s *ShardedLRU[K, V]) Delete(key K) {
	s.shard(key).Delete(key)
}

// Len returns the total number of items across all shards.
func (s *ShardedLRU[K, V]) Len() int {
	total := 0
	for _, sh := range s.shards {
		total += sh.Len()
	}
	return total
}

// Stats returns aggregated hit and miss counts across all shards.
func (s *ShardedLRU[K, V]) Stats() (hits, misses int64) {
	for _, sh := range s.shards {
		h, m := sh.Stats()
		hits += h
		misses += m
	}
	return
}

// Compile-time check that ShardedLRU satisfies Cache.
var _ Cache[string, int] = (*ShardedLRU[string, int])(nil)
