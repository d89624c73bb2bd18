package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetMetadata is the merged, latest-known description of an asset type.
// Fields arrive from several partial sources; a nil pointer means "never
// observed".
type AssetMetadata struct {
	AssetType                     string           `db:"asset_type"`
	CreatorAddress                string           `db:"creator_address"`
	Name                          string           `db:"name"`
	Symbol                        string           `db:"symbol"`
	Decimals                      int32            `db:"decimals"`
	IconURI                       *string          `db:"icon_uri"`
	ProjectURI                    *string          `db:"project_uri"`
	SupplyAggregatorTableHandleV1 *string          `db:"supply_aggregator_table_handle_v1"`
	SupplyAggregatorTableKeyV1    *string          `db:"supply_aggregator_table_key_v1"`
	SupplyV2                      *decimal.Decimal `db:"supply_v2"`
	MaximumV2                     *decimal.Decimal `db:"maximum_v2"`
	TokenStandard                 TokenStandard    `db:"token_standard"`
	IsTokenV2                     *bool            `db:"is_token_v2"`
	LastTransactionVersion        int64            `db:"last_transaction_version"`
	LastEventIndex                int64            `db:"last_event_index"`
	LastTransactionTimestamp      time.Time        `db:"last_transaction_timestamp"`
	InsertedAt                    time.Time        `db:"inserted_at"`
}

func (m *AssetMetadata) Position() Position {
	return Position{TransactionVersion: m.LastTransactionVersion, EventIndex: m.LastEventIndex}
}

// Clone deep-copies the pointer fields so the result can be mutated freely.
func (m *AssetMetadata) Clone() *AssetMetadata {
	if m == nil {
		return nil
	}
	c := *m
	c.IconURI = cloneString(m.IconURI)
	c.ProjectURI = cloneString(m.ProjectURI)
	c.SupplyAggregatorTableHandleV1 = cloneString(m.SupplyAggregatorTableHandleV1)
	c.SupplyAggregatorTableKeyV1 = cloneString(m.SupplyAggregatorTableKeyV1)
	c.SupplyV2 = cloneDecimal(m.SupplyV2)
	c.MaximumV2 = cloneDecimal(m.MaximumV2)
	if m.IsTokenV2 != nil {
		v := *m.IsTokenV2
		c.IsTokenV2 = &v
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
