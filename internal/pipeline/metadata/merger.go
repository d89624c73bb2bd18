// Package metadata merges partial asset descriptions into one AssetMetadata
// row per asset type.
package metadata

import (
	"github.com/emperorhan/fa-indexer/internal/domain/event"
	"github.com/emperorhan/fa-indexer/internal/domain/model"
)

// Merge applies the fields ev carries on top of current and leaves every other
// field as it was. Events older than current are ignored; an event at the
// same position is re-applied, which is a no-op for a redelivery. Legacy
// supply observations live in the supply ledger only and do not touch the row.
func Merge(ev *event.CanonicalEvent, current *model.AssetMetadata) model.AssetMetadata {
	if !applies(ev) || (current != nil && current.Position().After(ev.Position())) {
		if current == nil {
			return model.AssetMetadata{}
		}
		return *current.Clone()
	}

	next := current.Clone()
	if next == nil {
		next = &model.AssetMetadata{AssetType: ev.AssetKey()}
	}

	if f := ev.Metadata; f != nil {
		if f.CreatorAddress != nil {
			next.CreatorAddress = *f.CreatorAddress
		}
		if f.Name != nil {
			next.Name = *f.Name
		}
		if f.Symbol != nil {
			next.Symbol = *f.Symbol
		}
		if f.Decimals != nil {
			next.Decimals = *f.Decimals
		}
		if f.IconURI != nil {
			next.IconURI = copyOf(*f.IconURI)
		}
		if f.ProjectURI != nil {
			next.ProjectURI = copyOf(*f.ProjectURI)
		}
		if f.SupplyAggregatorTableHandleV1 != nil {
			next.SupplyAggregatorTableHandleV1 = copyOf(*f.SupplyAggregatorTableHandleV1)
		}
		if f.SupplyAggregatorTableKeyV1 != nil {
			next.SupplyAggregatorTableKeyV1 = copyOf(*f.SupplyAggregatorTableKeyV1)
		}
		if f.IsTokenV2 != nil {
			next.IsTokenV2 = copyOf(*f.IsTokenV2)
		}
	}
	if s := ev.Supply; s != nil {
		next.SupplyV2 = copyOf(s.Supply)
		if s.Maximum != nil {
			next.MaximumV2 = copyOf(*s.Maximum)
		}
	}

	next.TokenStandard = ev.Standard.TokenStandard()
	next.LastTransactionVersion = ev.TransactionVersion
	next.LastEventIndex = ev.EventIndex
	next.LastTransactionTimestamp = ev.Timestamp
	return *next
}

func applies(ev *event.CanonicalEvent) bool {
	if ev == nil || ev.AssetKey() == "" {
		return false
	}
	switch ev.Kind {
	case event.KindMetadata:
		return ev.Metadata != nil
	case event.KindSupply:
		return ev.Standard == model.AssetStandardUnified && ev.Supply != nil
	}
	return false
}

// Result summarizes one MergeAll call.
type Result struct {
	Updated map[string]*model.AssetMetadata
	Stale   int
}

// MergeAll folds events into state in order. state is not modified.
func MergeAll(events []*event.CanonicalEvent, state map[string]*model.AssetMetadata) Result {
	res := Result{Updated: make(map[string]*model.AssetMetadata)}
	for _, ev := range events {
		if !applies(ev) {
			continue
		}
		key := ev.AssetKey()
		current, ok := res.Updated[key]
		if !ok {
			current = state[key]
		}
		if current != nil && current.Position().After(ev.Position()) {
			res.Stale++
			continue
		}
		merged := Merge(ev, current)
		res.Updated[key] = &merged
	}
	return res
}

func copyOf[T any](v T) *T {
	return &v
}
