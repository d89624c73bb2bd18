// Package activity turns canonical events into immutable activity rows.
package activity

import (
	"github.com/emperorhan/fa-indexer/internal/domain/event"
	"github.com/emperorhan/fa-indexer/internal/domain/model"
	"github.com/shopspring/decimal"
)

// Build returns the activity rows for ev: none for pure state events, one in
// the common case, and two when a token event carries a fungible leg. The two
// rows of a bundled event live in different tables and share ev's position.
// Output depends on ev only.
func Build(ev *event.CanonicalEvent) []model.ActivityRecord {
	if ev == nil {
		return nil
	}
	switch ev.Kind {
	case event.KindDeposit, event.KindWithdraw, event.KindFrozen, event.KindGasFee:
		return []model.ActivityRecord{fungibleAsset(ev)}
	case event.KindTokenMint, event.KindTokenBurn, event.KindTokenTransfer, event.KindTokenMutation:
		if ev.Token == nil {
			return nil
		}
		records := []model.ActivityRecord{token(ev)}
		if hasFungibleLeg(ev) {
			records = append(records, fungibleAsset(ev))
		}
		return records
	}
	return nil
}

// Batch groups the activity rows of a batch by table, keeping event order.
type Batch struct {
	FungibleAsset []model.FungibleAssetActivity
	Token         []model.TokenActivity
}

// Len is the total number of rows.
func (b Batch) Len() int {
	return len(b.FungibleAsset) + len(b.Token)
}

// BuildBatch runs Build over events.
func BuildBatch(events []*event.CanonicalEvent) Batch {
	var out Batch
	for _, ev := range events {
		for _, rec := range Build(ev) {
			switch rec.Kind {
			case model.ActivityKindFungibleAsset:
				out.FungibleAsset = append(out.FungibleAsset, *rec.FungibleAsset)
			case model.ActivityKindToken:
				out.Token = append(out.Token, *rec.Token)
			}
		}
	}
	return out
}

func hasFungibleLeg(ev *event.CanonicalEvent) bool {
	return ev.Kind != event.KindTokenMutation && ev.AssetType != nil && ev.Amount != nil && ev.StorageID != ""
}

func fungibleAsset(ev *event.CanonicalEvent) model.ActivityRecord {
	row := &model.FungibleAssetActivity{
		TransactionVersion:   ev.TransactionVersion,
		EventIndex:           ev.EventIndex,
		OwnerAddress:         copyString(ev.OwnerAddress),
		StorageID:            ev.StorageID,
		AssetType:            copyString(ev.AssetType),
		Type:                 ev.Type,
		IsTransactionSuccess: ev.TransactionSuccess,
		EntryFunctionID:      copyString(ev.EntryFunctionID),
		BlockHeight:          ev.BlockHeight,
		TokenStandard:        ev.Standard.TokenStandard(),
		TransactionTimestamp: ev.Timestamp,
		StorageRefundAmount:  ev.StorageRefundAmount,
	}
	if ev.Kind == event.KindFrozen {
		row.IsFrozen = copyBool(ev.IsFrozen)
	} else {
		row.Amount = copyDecimal(ev.Amount)
	}
	if ev.Kind == event.KindGasFee {
		row.IsGasFee = true
		row.GasFeePayerAddress = copyString(ev.GasFeePayer)
	}
	return model.ActivityRecord{Kind: model.ActivityKindFungibleAsset, FungibleAsset: row}
}

func token(ev *event.CanonicalEvent) model.ActivityRecord {
	t := ev.Token
	row := &model.TokenActivity{
		TransactionVersion:   ev.TransactionVersion,
		EventIndex:           ev.EventIndex,
		EventAccountAddress:  ev.AccountAddress,
		TokenDataID:          t.TokenDataID,
		PropertyVersionV1:    t.PropertyVersionV1,
		Type:                 ev.Type,
		FromAddress:          copyString(t.FromAddress),
		ToAddress:            copyString(t.ToAddress),
		TokenAmount:          t.Amount,
		BeforeValue:          copyString(t.BeforeValue),
		AfterValue:           copyString(t.AfterValue),
		EntryFunctionID:      copyString(ev.EntryFunctionID),
		TokenStandard:        ev.Standard.TokenStandard(),
		IsFungibleV2:         copyBool(t.IsFungibleV2),
		TransactionTimestamp: ev.Timestamp,
	}
	return model.ActivityRecord{Kind: model.ActivityKindToken, Token: row}
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

func copyDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
