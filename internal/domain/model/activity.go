package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FungibleAssetActivity is the immutable record of one fungible-asset event.
// Primary key: (transaction_version, event_index).
type FungibleAssetActivity struct {
	TransactionVersion   int64            `db:"transaction_version"`
	EventIndex           int64            `db:"event_index"`
	OwnerAddress         *string          `db:"owner_address"`
	StorageID            string           `db:"storage_id"`
	AssetType            *string          `db:"asset_type"`
	IsFrozen             *bool            `db:"is_frozen"`
	Amount               *decimal.Decimal `db:"amount"`
	Type                 string           `db:"type"`
	IsGasFee             bool             `db:"is_gas_fee"`
	GasFeePayerAddress   *string          `db:"gas_fee_payer_address"`
	IsTransactionSuccess bool             `db:"is_transaction_success"`
	EntryFunctionID      *string          `db:"entry_function_id_str"`
	BlockHeight          int64            `db:"block_height"`
	TokenStandard        TokenStandard    `db:"token_standard"`
	TransactionTimestamp time.Time        `db:"transaction_timestamp"`
	StorageRefundAmount  decimal.Decimal  `db:"storage_refund_amount"`
	InsertedAt           time.Time        `db:"inserted_at"`
}

// TokenActivity is the immutable record of one token-object event.
// Primary key: (transaction_version, event_index).
type TokenActivity struct {
	TransactionVersion   int64           `db:"transaction_version"`
	EventIndex           int64           `db:"event_index"`
	EventAccountAddress  string          `db:"event_account_address"`
	TokenDataID          string          `db:"token_data_id"`
	PropertyVersionV1    decimal.Decimal `db:"property_version_v1"`
	Type                 string          `db:"type"`
	FromAddress          *string         `db:"from_address"`
	ToAddress            *string         `db:"to_address"`
	TokenAmount          decimal.Decimal `db:"token_amount"`
	BeforeValue          *string         `db:"before_value"`
	AfterValue           *string         `db:"after_value"`
	EntryFunctionID      *string         `db:"entry_function_id_str"`
	TokenStandard        TokenStandard   `db:"token_standard"`
	IsFungibleV2         *bool           `db:"is_fungible_v2"`
	TransactionTimestamp time.Time       `db:"transaction_timestamp"`
	InsertedAt           time.Time       `db:"inserted_at"`
}

// ActivityKind discriminates the two activity tables.
type ActivityKind string

const (
	ActivityKindFungibleAsset ActivityKind = "fungible_asset"
	ActivityKindToken         ActivityKind = "token"
)

// ActivityRecord carries exactly one of FungibleAsset or Token.
type ActivityRecord struct {
	Kind          ActivityKind
	FungibleAsset *FungibleAssetActivity
	Token         *TokenActivity
}

// Position returns the primary-key coordinate of the record.
func (r ActivityRecord) Position() Position {
	switch r.Kind {
	case ActivityKindFungibleAsset:
		if r.FungibleAsset != nil {
			return Position{r.FungibleAsset.TransactionVersion, r.FungibleAsset.EventIndex}
		}
	case ActivityKindToken:
		if r.Token != nil {
			return Position{r.Token.TransactionVersion, r.Token.EventIndex}
		}
	}
	return Position{}
}
