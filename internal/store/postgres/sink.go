package postgres

import (
	"context"
	"fmt"

	"github.com/emperorhan/fa-indexer/internal/domain/model"
	"github.com/emperorhan/fa-indexer/internal/store"
)

var _ store.Sink = (*Sink)(nil)

// Sink reads snapshot state and commits batch output through the repositories
// on one database handle.
type Sink struct {
	db          *DB
	balances    store.BalanceRepository
	metadata    store.MetadataRepository
	activities  store.ActivityRepository
	supply      store.SupplyRepository
	checkpoints store.CheckpointRepository
}

func NewSink(db *DB) *Sink {
	return &Sink{
		db:          db,
		balances:    NewBalanceRepo(db),
		metadata:    NewMetadataRepo(db),
		activities:  NewActivityRepo(db),
		supply:      NewSupplyRepo(db),
		checkpoints: NewCheckpointRepo(db),
	}
}

// LoadState reads the snapshots named by keys outside any transaction. The
// position guards in WriteBatch keep a concurrent writer from being overwritten
// by older rows computed from this view.
func (s *Sink) LoadState(ctx context.Context, keys store.StateKeys) (store.State, error) {
	balances, err := s.balances.BulkGet(ctx, keys.StorageIDs)
	if err != nil {
		return store.State{}, fmt.Errorf("load balances: %w", err)
	}
	metadata, err := s.metadata.BulkGet(ctx, keys.AssetTypes)
	if err != nil {
		return store.State{}, fmt.Errorf("load metadata: %w", err)
	}
	return store.State{Balances: balances, Metadata: metadata}, nil
}

// WriteBatch commits every row of w and advances the processor checkpoint in
// one transaction.
func (s *Sink) WriteBatch(ctx context.Context, w store.BatchWrite) (store.WriteResult, error) {
	var res store.WriteResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if res.FungibleAssetActivities, err = s.activities.BulkInsertFungibleAssetTx(ctx, tx, w.FungibleAssetActivities); err != nil {
		return store.WriteResult{}, err
	}
	if res.TokenActivities, err = s.activities.BulkInsertTokenTx(ctx, tx, w.TokenActivities); err != nil {
		return store.WriteResult{}, err
	}
	if res.Balances, err = s.balances.BulkUpsertTx(ctx, tx, w.Balances); err != nil {
		return store.WriteResult{}, err
	}
	if res.BalanceHistory, err = s.balances.BulkInsertHistoryTx(ctx, tx, w.BalanceHistory); err != nil {
		return store.WriteResult{}, err
	}
	if res.Metadata, err = s.metadata.BulkUpsertTx(ctx, tx, w.Metadata); err != nil {
		return store.WriteResult{}, err
	}
	if res.Supply, err = s.supply.BulkUpsertTx(ctx, tx, w.Supply); err != nil {
		return store.WriteResult{}, err
	}
	if w.Processor != "" {
		if err := s.checkpoints.AdvanceTx(ctx, tx, w.Processor, w.EndVersion, w.LastTimestamp); err != nil {
			return store.WriteResult{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return store.WriteResult{}, fmt.Errorf("commit batch %s: %w", w.BatchID, err)
	}
	return res, nil
}

func (s *Sink) Checkpoint(ctx context.Context, processor string) (*model.ProcessorStatus, error) {
	return s.checkpoints.Get(ctx, processor)
}

var _ store.StateReader = (*Sink)(nil)

func (s *Sink) GetBalance(ctx context.Context, storageID string) (*model.CurrentBalance, error) {
	rows, err := s.balances.BulkGet(ctx, []string{storageID})
	if err != nil {
		return nil, err
	}
	return rows[storageID], nil
}

func (s *Sink) GetBalancesByOwner(ctx context.Context, owner string) ([]model.CurrentBalance, error) {
	return s.balances.GetByOwner(ctx, owner)
}

func (s *Sink) GetAssetMetadata(ctx context.Context, assetType string) (*model.AssetMetadata, error) {
	return s.metadata.Get(ctx, assetType)
}

func (s *Sink) GetLatestSupply(ctx context.Context, coinType string) (*model.SupplySnapshot, error) {
	return s.supply.Latest(ctx, coinType)
}
