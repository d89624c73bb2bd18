package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CurrentBalance is the latest-known projection of one asset-holding location.
// One row per storage_id; an owner may hold the same asset in several stores
// under the unified standard.
type CurrentBalance struct {
	StorageID                string          `db:"storage_id"`
	OwnerAddress             string          `db:"owner_address"`
	AssetType                string          `db:"asset_type"`
	IsPrimary                bool            `db:"is_primary"`
	IsFrozen                 bool            `db:"is_frozen"`
	IsDeleted                bool            `db:"is_deleted"`
	Amount                   decimal.Decimal `db:"amount"`
	LastTransactionVersion   int64           `db:"last_transaction_version"`
	LastEventIndex           int64           `db:"last_event_index"`
	LastTransactionTimestamp time.Time       `db:"last_transaction_timestamp"`
	TokenStandard            TokenStandard   `db:"token_standard"`
	InsertedAt               time.Time       `db:"inserted_at"`
}

// Position returns the (version, event index) coordinate of the last applied update.
func (b *CurrentBalance) Position() Position {
	return Position{TransactionVersion: b.LastTransactionVersion, EventIndex: b.LastEventIndex}
}

// Clone returns a copy that shares no mutable state with b.
func (b *CurrentBalance) Clone() *CurrentBalance {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

// BalanceChange is one row of the append-only balance history: the state of a
// store right after an applied update at (transaction_version, event_index).
type BalanceChange struct {
	TransactionVersion   int64           `db:"transaction_version"`
	EventIndex           int64           `db:"event_index"`
	StorageID            string          `db:"storage_id"`
	OwnerAddress         string          `db:"owner_address"`
	AssetType            string          `db:"asset_type"`
	IsPrimary            bool            `db:"is_primary"`
	IsFrozen             bool            `db:"is_frozen"`
	IsDeleted            bool            `db:"is_deleted"`
	Amount               decimal.Decimal `db:"amount"`
	TransactionTimestamp time.Time       `db:"transaction_timestamp"`
	TokenStandard        TokenStandard   `db:"token_standard"`
	InsertedAt           time.Time       `db:"inserted_at"`
}

// Change returns the history row for the update that produced b.
func (b *CurrentBalance) Change() BalanceChange {
	return BalanceChange{
		TransactionVersion:   b.LastTransactionVersion,
		EventIndex:           b.LastEventIndex,
		StorageID:            b.StorageID,
		OwnerAddress:         b.OwnerAddress,
		AssetType:            b.AssetType,
		IsPrimary:            b.IsPrimary,
		IsFrozen:             b.IsFrozen,
		IsDeleted:            b.IsDeleted,
		Amount:               b.Amount,
		TransactionTimestamp: b.LastTransactionTimestamp,
		TokenStandard:        b.TokenStandard,
	}
}

func (c *BalanceChange) Position() Position {
	return Position{TransactionVersion: c.TransactionVersion, EventIndex: c.EventIndex}
}
