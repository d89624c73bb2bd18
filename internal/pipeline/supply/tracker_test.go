package supply

import (
	"testing"
	"time"

	"github.com/emperorhan/fa-indexer/internal/domain/event"
	"github.com/emperorhan/fa-indexer/internal/domain/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func supplyEvent(version, index int64, coinType string, supply int64) *event.CanonicalEvent {
	return &event.CanonicalEvent{
		TransactionVersion: version,
		EventIndex:         index,
		Epoch:              3,
		Timestamp:          time.Unix(version, 0).UTC(),
		Standard:           model.AssetStandardLegacy,
		Kind:               event.KindSupply,
		AssetType:          ptr(coinType),
		Supply:             &event.SupplyFields{Supply: decimal.NewFromInt(supply)},
	}
}

func TestRecord(t *testing.T) {
	snap := Record(supplyEvent(100, 2, "0x1::aptos_coin::AptosCoin", 1_000_000))
	require.NotNil(t, snap)

	assert.Equal(t, int64(100), snap.TransactionVersion)
	assert.Equal(t, "0x1::aptos_coin::AptosCoin", snap.CoinType)
	assert.Equal(t, model.HashCoinType("0x1::aptos_coin::AptosCoin"), snap.CoinTypeHash)
	assert.Len(t, snap.CoinTypeHash, 64)
	assert.True(t, snap.Supply.Equal(decimal.NewFromInt(1_000_000)))
	assert.Equal(t, int64(3), snap.TransactionEpoch)
	assert.Equal(t, time.Unix(100, 0).UTC(), snap.TransactionTimestamp)
	assert.True(t, snap.InsertedAt.IsZero())
}

func TestRecord_NonSupplyEvents(t *testing.T) {
	assert.Nil(t, Record(nil))

	dep := supplyEvent(1, 0, "0x1::a::A", 1)
	dep.Kind = event.KindDeposit
	assert.Nil(t, Record(dep))

	noFields := supplyEvent(1, 0, "0x1::a::A", 1)
	noFields.Supply = nil
	assert.Nil(t, Record(noFields))

	noAsset := supplyEvent(1, 0, "0x1::a::A", 1)
	noAsset.AssetType = nil
	assert.Nil(t, Record(noAsset))
}

func TestRecord_Deterministic(t *testing.T) {
	ev := supplyEvent(7, 1, "0x1::a::A", 9)
	assert.Equal(t, Record(ev), Record(ev))
}

func TestRecordAll_CollapsesDuplicateKeys(t *testing.T) {
	out := RecordAll([]*event.CanonicalEvent{
		supplyEvent(10, 5, "0x1::a::A", 50),
		supplyEvent(10, 2, "0x1::a::A", 20),
		supplyEvent(10, 1, "0x1::b::B", 7),
		supplyEvent(9, 0, "0x1::a::A", 1),
		{Kind: event.KindDeposit},
	})

	require.Len(t, out, 3)
	assert.Equal(t, int64(9), out[0].TransactionVersion)

	byKey := map[model.SupplyKey]model.SupplySnapshot{}
	for _, s := range out {
		byKey[s.Key()] = s
	}
	a := byKey[model.SupplyKey{TransactionVersion: 10, CoinTypeHash: model.HashCoinType("0x1::a::A")}]
	assert.True(t, a.Supply.Equal(decimal.NewFromInt(50)), "higher event index wins")
}

func TestRecordAll_Empty(t *testing.T) {
	assert.Empty(t, RecordAll(nil))
}
