package cache

import (
	"time"

	"github.com/emperorhan/fa-indexer/internal/domain/model"
)

// Versioned is a snapshot that knows the chain position it reflects.
type Versioned interface {
	Position() model.Position
}

// NotOlder is a PutIf keep function that refuses to replace a cached snapshot
// with one from an earlier chain position.
func NotOlder[V Versioned](existing, incoming V) bool {
	return !existing.Position().After(incoming.Position())
}

// SnapshotCache holds the latest known snapshot per key. Writers go through
// Offer so a late reader can never overwrite a fresher snapshot.
type SnapshotCache[V Versioned] struct {
	lru *ShardedLRU[string, V]
}

func NewSnapshotCache[V Versioned](capacity int, ttl time.Duration) *SnapshotCache[V] {
	return &SnapshotCache[V]{
		lru: NewShardedLRU[string, V](capacity, ttl, func(k string) string { return k }),
	}
}

func (c *SnapshotCache[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

// Offer stores v unless the cache already holds a newer snapshot for key.
func (c *SnapshotCache[V]) Offer(key string, v V) bool {
	return c.lru.PutIf(key, v, NotOlder[V])
}

func (c *SnapshotCache[V]) Invalidate(keys ...string) {
	for _, k := range keys {
		c.lru.Delete(k)
	}
}

func (c *SnapshotCache[V]) Len() int {
	return c.lru.Len()
}

func (c *SnapshotCache[V]) Stats() (hits, misses int64) {
	return c.lru.Stats()
}
