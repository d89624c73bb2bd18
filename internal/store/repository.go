package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/emperorhan/fa-indexer/internal/domain/model"
)

// TxBeginner abstracts the ability to begin a database transaction.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// BalanceRepository provides access to current_balances.
type BalanceRepository interface {
	BulkGet(ctx context.Context, storageIDs []string) (map[string]*model.CurrentBalance, error)
	// BulkUpsertTx writes rows, skipping any row whose stored position is not
	// older than the row's own position. Returns the number of rows written.
	BulkUpsertTx(ctx context.Context, tx *sql.Tx, rows []*model.CurrentBalance) (int64, error)
	GetByOwner(ctx context.Context, owner string) ([]model.CurrentBalance, error)
	// BulkInsertHistoryTx appends balance history rows, ignoring rows whose
	// (transaction_version, event_index) is already present.
	BulkInsertHistoryTx(ctx context.Context, tx *sql.Tx, rows []model.BalanceChange) (int64, error)
}

// MetadataRepository provides access to asset_metadata.
type MetadataRepository interface {
	BulkGet(ctx context.Context, assetTypes []string) (map[string]*model.AssetMetadata, error)
	BulkUpsertTx(ctx context.Context, tx *sql.Tx, rows []*model.AssetMetadata) (int64, error)
	Get(ctx context.Context, assetType string) (*model.AssetMetadata, error)
}

// ActivityRepository provides access to the append-only activity tables.
// Inserts ignore rows whose primary key already exists.
type ActivityRepository interface {
	BulkInsertFungibleAssetTx(ctx context.Context, tx *sql.Tx, rows []model.FungibleAssetActivity) (int64, error)
	BulkInsertTokenTx(ctx context.Context, tx *sql.Tx, rows []model.TokenActivity) (int64, error)
}

// SupplyRepository provides access to the coin_supply ledger.
type SupplyRepository interface {
	BulkUpsertTx(ctx context.Context, tx *sql.Tx, rows []model.SupplySnapshot) (int64, error)
	Latest(ctx context.Context, coinType string) (*model.SupplySnapshot, error)
}

// CheckpointRepository provides access to processor_status.
type CheckpointRepository interface {
	Get(ctx context.Context, processor string) (*model.ProcessorStatus, error)
	// AdvanceTx moves the watermark forward; it never moves it back.
	AdvanceTx(ctx context.Context, tx *sql.Tx, processor string, version int64, txTimestamp *time.Time) error
}

// StateKeys names the snapshots a batch needs before reconciliation.
type StateKeys struct {
	StorageIDs []string
	AssetTypes []string
}

// State is the snapshot view a batch is reconciled against. Missing keys are
// absent from the maps.
type State struct {
	Balances map[string]*model.CurrentBalance
	Metadata map[string]*model.AssetMetadata
}

// BatchWrite is everything one batch produces. It is written atomically.
type BatchWrite struct {
	BatchID       string
	Processor     string
	EndVersion    int64
	LastTimestamp *time.Time

	FungibleAssetActivities []model.FungibleAssetActivity
	TokenActivities         []model.TokenActivity
	Balances                []*model.CurrentBalance
	BalanceHistory          []model.BalanceChange
	Metadata                []*model.AssetMetadata
	Supply                  []model.SupplySnapshot
}

// WriteResult reports how many rows each table actually changed.
type WriteResult struct {
	FungibleAssetActivities int64
	TokenActivities         int64
	Balances                int64
	BalanceHistory          int64
	Metadata                int64
	Supply                  int64
}

//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks github.com/emperorhan/fa-indexer/internal/store Sink

// Sink is the state store the ingester reconciles against and commits to.
type Sink interface {
	LoadState(ctx context.Context, keys StateKeys) (State, error)
	WriteBatch(ctx context.Context, w BatchWrite) (WriteResult, error)
	Checkpoint(ctx context.Context, processor string) (*model.ProcessorStatus, error)
}

// StateReader serves point reads of committed state. Missing rows are returned
// as nil without an error.
type StateReader interface {
	GetBalance(ctx context.Context, storageID string) (*model.CurrentBalance, error)
	GetBalancesByOwner(ctx context.Context, owner string) ([]model.CurrentBalance, error)
	GetAssetMetadata(ctx context.Context, assetType string) (*model.AssetMetadata, error)
	GetLatestSupply(ctx context.Context, coinType string) (*model.SupplySnapshot, error)
	Checkpoint(ctx context.Context, processor string) (*model.ProcessorStatus, error)
}
