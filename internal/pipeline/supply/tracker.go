// Package supply records total-supply observations as an append-only ledger.
package supply

import (
	"sort"

	"github.com/emperorhan/fa-indexer/internal/domain/event"
	"github.com/emperorhan/fa-indexer/internal/domain/model"
)

// Record returns the supply snapshot described by ev, or nil when ev is not a
// supply observation.
func Record(ev *event.CanonicalEvent) *model.SupplySnapshot {
	if ev == nil || ev.Kind != event.KindSupply || ev.Supply == nil || ev.AssetKey() == "" {
		return nil
	}
	coinType := ev.AssetKey()
	return &model.SupplySnapshot{
		TransactionVersion:   ev.TransactionVersion,
		CoinTypeHash:         model.HashCoinType(coinType),
		CoinType:             coinType,
		Supply:               ev.Supply.Supply,
		TransactionTimestamp: ev.Timestamp,
		TransactionEpoch:     ev.Epoch,
	}
}

// RecordAll collects the snapshots of events. Observations sharing a key
// within the batch collapse to the one with the highest event index. The
// result is ordered by key.
func RecordAll(events []*event.CanonicalEvent) []model.SupplySnapshot {
	type entry struct {
		snap  *model.SupplySnapshot
		index int64
	}
	byKey := make(map[model.SupplyKey]entry)
	for _, ev := range events {
		snap := Record(ev)
		if snap == nil {
			continue
		}
		key := snap.Key()
		if prev, ok := byKey[key]; ok && prev.index > ev.EventIndex {
			continue
		}
		byKey[key] = entry{snap: snap, index: ev.EventIndex}
	}

	out := make([]model.SupplySnapshot, 0, len(byKey))
	for _, e := range byKey {
		out = append(out, *e.snap)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TransactionVersion != out[j].TransactionVersion {
			return out[i].TransactionVersion < out[j].TransactionVersion
		}
		return out[i].CoinTypeHash < out[j].CoinTypeHash
	})
	return out
}
