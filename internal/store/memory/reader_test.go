package memory

import (
	"context"
	"testing"

	"github.com/emperorhan/fa-indexer/internal/domain/model"
	"github.com/emperorhan/fa-indexer/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSink_GetBalancesByOwner(t *testing.T) {
	s := newSink()
	ctx := context.Background()

	other := bal("s3", 5, 0, 1)
	other.OwnerAddress = "0xb2"
	deleted := bal("s4", 5, 1, 0)
	deleted.IsDeleted = true
	second := bal("s1", 5, 2, 9)
	second.AssetType = "0xb"

	_, err := s.WriteBatch(ctx, store.BatchWrite{Balances: []*model.CurrentBalance{
		second, bal("s2", 5, 3, 4), other, deleted,
	}})
	require.NoError(t, err)

	got, err := s.GetBalancesByOwner(ctx, "0xa1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s2", got[0].StorageID, "ordered by asset type first")
	assert.Equal(t, "s1", got[1].StorageID)

	b, err := s.GetBalance(ctx, "s3")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "0xb2", b.OwnerAddress)

	missing, err := s.GetBalance(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSink_GetLatestSupply(t *testing.T) {
	s := newSink()
	ctx := context.Background()
	coin := "0x1::aptos_coin::AptosCoin"

	snap := func(version, supply int64) model.SupplySnapshot {
		return model.SupplySnapshot{
			TransactionVersion:   version,
			CoinTypeHash:         model.HashCoinType(coin),
			CoinType:             coin,
			Supply:               decimal.NewFromInt(supply),
			TransactionTimestamp: chainTS,
		}
	}
	_, err := s.WriteBatch(ctx, store.BatchWrite{Supply: []model.SupplySnapshot{snap(9, 900), snap(12, 1200), snap(10, 1000)}})
	require.NoError(t, err)

	latest, err := s.GetLatestSupply(ctx, coin)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(12), latest.TransactionVersion)
	assert.True(t, decimal.NewFromInt(1200).Equal(latest.Supply))

	none, err := s.GetLatestSupply(ctx, "0x1::other::Coin")
	require.NoError(t, err)
	assert.Nil(t, none)

	meta, err := s.GetAssetMetadata(ctx, coin)
	require.NoError(t, err)
	assert.Nil(t, meta)
}
