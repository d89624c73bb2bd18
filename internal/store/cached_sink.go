package store

import (
	"context"
	"time"

	"github.com/emperorhan/fa-indexer/internal/cache"
	"github.com/emperorhan/fa-indexer/internal/domain/model"
	"github.com/emperorhan/fa-indexer/internal/metrics"
)

const (
	cacheNameBalances = "balances"
	cacheNameMetadata = "metadata"
)

// CachedSink serves LoadState from version-aware snapshot caches and falls
// through to the wrapped Sink for misses. It assumes it is the only writer of
// the rows it caches.
type CachedSink struct {
	inner    Sink
	balances *cache.SnapshotCache[*model.CurrentBalance]
	metadata *cache.SnapshotCache[*model.AssetMetadata]
}

var _ Sink = (*CachedSink)(nil)

func NewCachedSink(inner Sink, capacity int, ttl time.Duration) *CachedSink {
	return &CachedSink{
		inner:    inner,
		balances: cache.NewSnapshotCache[*model.CurrentBalance](capacity, ttl),
		metadata: cache.NewSnapshotCache[*model.AssetMetadata](capacity, ttl),
	}
}

func (c *CachedSink) LoadState(ctx context.Context, keys StateKeys) (State, error) {
	st := State{
		Balances: make(map[string]*model.CurrentBalance, len(keys.StorageIDs)),
		Metadata: make(map[string]*model.AssetMetadata, len(keys.AssetTypes)),
	}

	var missing StateKeys
	for _, id := range keys.StorageIDs {
		if b, ok := c.balances.Get(id); ok {
			st.Balances[id] = b.Clone()
			continue
		}
		missing.StorageIDs = append(missing.StorageIDs, id)
	}
	for _, at := range keys.AssetTypes {
		if m, ok := c.metadata.Get(at); ok {
			st.Metadata[at] = m.Clone()
			continue
		}
		missing.AssetTypes = append(missing.AssetTypes, at)
	}

	metrics.CacheHits.WithLabelValues(cacheNameBalances).Add(float64(len(keys.StorageIDs) - len(missing.StorageIDs)))
	metrics.CacheMisses.WithLabelValues(cacheNameBalances).Add(float64(len(missing.StorageIDs)))
	metrics.CacheHits.WithLabelValues(cacheNameMetadata).Add(float64(len(keys.AssetTypes) - len(missing.AssetTypes)))
	metrics.CacheMisses.WithLabelValues(cacheNameMetadata).Add(float64(len(missing.AssetTypes)))

	if len(missing.StorageIDs) == 0 && len(missing.AssetTypes) == 0 {
		return st, nil
	}

	loaded, err := c.inner.LoadState(ctx, missing)
	if err != nil {
		return State{}, err
	}
	for id, b := range loaded.Balances {
		c.balances.Offer(id, b.Clone())
		st.Balances[id] = b
	}
	for at, m := range loaded.Metadata {
		c.metadata.Offer(at, m.Clone())
		st.Metadata[at] = m
	}
	return st, nil
}

// WriteBatch forwards to the wrapped sink. On success the written snapshots
// are offered to the caches; on failure their keys are evicted, since the
// outcome of a failed commit is unknown.
func (c *CachedSink) WriteBatch(ctx context.Context, w BatchWrite) (WriteResult, error) {
	res, err := c.inner.WriteBatch(ctx, w)
	if err != nil {
		for _, b := range w.Balances {
			c.balances.Invalidate(b.StorageID)
		}
		for _, m := range w.Metadata {
			c.metadata.Invalidate(m.AssetType)
		}
		return res, err
	}

	for _, b := range w.Balances {
		c.balances.Offer(b.StorageID, b.Clone())
	}
	for _, m := range w.Metadata {
		c.metadata.Offer(m.AssetType, m.Clone())
	}
	return res, nil
}

func (c *CachedSink) Checkpoint(ctx context.Context, processor string) (*model.ProcessorStatus, error) {
	return c.inner.Checkpoint(ctx, processor)
}

// Len reports the number of cached balance and metadata snapshots.
func (c *CachedSink) Len() (balances, metadata int) {
	return c.balances.Len(), c.metadata.Len()
}
