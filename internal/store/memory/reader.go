package memory

import (
	"context"
	"sort"

	"github.com/emperorhan/fa-indexer/internal/domain/model"
	"github.com/emperorhan/fa-indexer/internal/store"
)

var _ store.StateReader = (*Sink)(nil)

func (s *Sink) GetBalance(ctx context.Context, storageID string) (*model.CurrentBalance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, _ := s.Balance(storageID)
	return b, nil
}

// GetBalancesByOwner lists live balances of owner ordered like the postgres
// query: asset type, then storage id.
func (s *Sink) GetBalancesByOwner(ctx context.Context, owner string) ([]model.CurrentBalance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.CurrentBalance
	for _, b := range s.balances {
		if b.OwnerAddress == owner && !b.IsDeleted {
			out = append(out, *b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AssetType != out[j].AssetType {
			return out[i].AssetType < out[j].AssetType
		}
		return out[i].StorageID < out[j].StorageID
	})
	return out, nil
}

func (s *Sink) GetAssetMetadata(ctx context.Context, assetType string) (*model.AssetMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, _ := s.AssetMetadata(assetType)
	return m, nil
}

func (s *Sink) GetLatestSupply(ctx context.Context, coinType string) (*model.SupplySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hash := model.HashCoinType(coinType)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *model.SupplySnapshot
	for key, sn := range s.supply {
		if key.CoinTypeHash != hash {
			continue
		}
		if latest == nil || sn.TransactionVersion > latest.TransactionVersion {
			cp := sn
			latest = &cp
		}
	}
	return latest, nil
}
