package event

import (
	"time"

	"github.com/emperorhan/fa-indexer/internal/domain/model"
	"github.com/shopspring/decimal"
)

// Kind classifies what a canonical event does.
type Kind string

const (
	KindDeposit       Kind = "deposit"
	KindWithdraw      Kind = "withdraw"
	KindFrozen        Kind = "frozen"
	KindStoreWrite    Kind = "store_write"
	KindStoreDeleted  Kind = "store_deleted"
	KindMetadata      Kind = "metadata"
	KindSupply        Kind = "supply"
	KindGasFee        Kind = "gas_fee"
	KindTokenMint     Kind = "token_mint"
	KindTokenBurn     Kind = "token_burn"
	KindTokenTransfer Kind = "token_transfer"
	KindTokenMutation Kind = "token_mutation"
)

func (k Kind) String() string {
	return string(k)
}

// TouchesBalance reports whether events of this kind change a CurrentBalance.
// Gas fees are excluded: the charge is carried by the payer's store write.
func (k Kind) TouchesBalance() bool {
	switch k {
	case KindDeposit, KindWithdraw, KindFrozen, KindStoreWrite, KindStoreDeleted:
		return true
	}
	return false
}

// TouchesMetadata reports whether events of this kind feed AssetMetadata.
func (k Kind) TouchesMetadata() bool {
	return k == KindMetadata || k == KindSupply
}

// IsToken reports whether the kind describes a token-object operation.
func (k Kind) IsToken() bool {
	switch k {
	case KindTokenMint, KindTokenBurn, KindTokenTransfer, KindTokenMutation:
		return true
	}
	return false
}

// CanonicalEvent is the standard-independent form of one raw event.
// It is immutable once produced; optional fields are nil when the source
// event does not carry them.
type CanonicalEvent struct {
	TransactionVersion int64
	EventIndex         int64
	BlockHeight        int64
	Epoch              int64
	Timestamp          time.Time
	Standard           model.AssetStandard
	Kind               Kind
	Type               string // raw type tag, generic arguments stripped
	AccountAddress     string

	TransactionSuccess bool
	EntryFunctionID    *string

	StorageID    string
	OwnerAddress *string
	AssetType    *string
	IsFrozen     *bool
	IsPrimary    *bool

	// Amount is the unsigned magnitude of a deposit/withdraw/gas fee, or the
	// absolute balance of a store write.
	Amount *decimal.Decimal
	// Balance is the post-event balance when the source reports it alongside
	// a deposit or withdraw; it turns the event into an absolute update.
	Balance *decimal.Decimal

	GasFeePayer         *string
	StorageRefundAmount decimal.Decimal

	Metadata *MetadataFields
	Supply   *SupplyFields
	Token    *TokenFields
}

// MetadataFields is the subset of asset metadata an event knows about.
type MetadataFields struct {
	CreatorAddress                *string
	Name                          *string
	Symbol                        *string
	Decimals                      *int32
	IconURI                       *string
	ProjectURI                    *string
	SupplyAggregatorTableHandleV1 *string
	SupplyAggregatorTableKeyV1    *string
	IsTokenV2                     *bool
}

// SupplyFields carries a total-supply observation.
type SupplyFields struct {
	Supply  decimal.Decimal
	Maximum *decimal.Decimal
}

// TokenFields carries token-object specifics.
type TokenFields struct {
	TokenDataID       string
	PropertyVersionV1 decimal.Decimal
	FromAddress       *string
	ToAddress         *string
	Amount            decimal.Decimal
	BeforeValue       *string
	AfterValue        *string
	IsFungibleV2      *bool
}

// Position returns the ordering coordinate of the event.
func (e *CanonicalEvent) Position() model.Position {
	return model.Position{TransactionVersion: e.TransactionVersion, EventIndex: e.EventIndex}
}

// Delta returns the signed balance change of a deposit or withdraw and false
// for every other kind.
func (e *CanonicalEvent) Delta() (decimal.Decimal, bool) {
	if e.Amount == nil {
		return decimal.Zero, false
	}
	switch e.Kind {
	case KindDeposit:
		return *e.Amount, true
	case KindWithdraw:
		return e.Amount.Neg(), true
	}
	return decimal.Zero, false
}

// IsAbsolute reports whether the event states the post-event balance instead
// of a delta.
func (e *CanonicalEvent) IsAbsolute() bool {
	switch e.Kind {
	case KindStoreWrite:
		return e.Amount != nil
	case KindDeposit, KindWithdraw:
		return e.Balance != nil
	}
	return false
}

// AssetKey returns the asset type or "" when the event does not name one.
func (e *CanonicalEvent) AssetKey() string {
	if e.AssetType == nil {
		return ""
	}
	return *e.AssetType
}
