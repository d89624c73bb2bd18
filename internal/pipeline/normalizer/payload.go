package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/emperorhan/fa-indexer/internal/pipeline/identity"
	"github.com/shopspring/decimal"
)

type coinTransferPayload struct {
	CoinType *string          `json:"coin_type"`
	Account  *string          `json:"account"`
	Amount   *decimal.Decimal `json:"amount"`
	Balance  *decimal.Decimal `json:"balance"`
}

type coinFreezePayload struct {
	CoinType *string `json:"coin_type"`
	Account  *string `json:"account"`
	Frozen   *bool   `json:"frozen"`
}

type coinStorePayload struct {
	CoinType *string          `json:"coin_type"`
	Account  *string          `json:"account"`
	Balance  *decimal.Decimal `json:"balance"`
	Coin     *struct {
		Value *decimal.Decimal `json:"value"`
	} `json:"coin"`
	Frozen *bool `json:"frozen"`
}

type coinInfoPayload struct {
	CoinType                    *string `json:"coin_type"`
	Name                        *string `json:"name"`
	Symbol                      *string `json:"symbol"`
	Decimals                    *int32  `json:"decimals"`
	SupplyAggregatorTableHandle *string `json:"supply_aggregator_table_handle"`
	SupplyAggregatorTableKey    *string `json:"supply_aggregator_table_key"`
}

type coinSupplyPayload struct {
	CoinType *string          `json:"coin_type"`
	Supply   *decimal.Decimal `json:"supply"`
}

type feeStatementPayload struct {
	Payer                 *string          `json:"payer"`
	Amount                *decimal.Decimal `json:"amount"`
	TotalChargeGasUnits   *decimal.Decimal `json:"total_charge_gas_units"`
	GasUnitPrice          *decimal.Decimal `json:"gas_unit_price"`
	StorageFeeRefundOctas *decimal.Decimal `json:"storage_fee_refund_octas"`
}

type faTransferPayload struct {
	Store    *string          `json:"store"`
	Amount   *decimal.Decimal `json:"amount"`
	Owner    *string          `json:"owner"`
	Metadata *string          `json:"metadata"`
	Balance  *decimal.Decimal `json:"balance"`
}

type faFrozenPayload struct {
	Store    *string `json:"store"`
	Frozen   *bool   `json:"frozen"`
	Owner    *string `json:"owner"`
	Metadata *string `json:"metadata"`
}

type faStorePayload struct {
	Store     *string          `json:"store"`
	Owner     *string          `json:"owner"`
	Metadata  *string          `json:"metadata"`
	Balance   *decimal.Decimal `json:"balance"`
	Frozen    *bool            `json:"frozen"`
	IsPrimary *bool            `json:"is_primary"`
}

type faStoreDeletionPayload struct {
	Store    *string `json:"store"`
	Owner    *string `json:"owner"`
	Metadata *string `json:"metadata"`
}

type faMetadataPayload struct {
	AssetType      *string `json:"asset_type"`
	CreatorAddress *string `json:"creator_address"`
	Name           *string `json:"name"`
	Symbol         *string `json:"symbol"`
	Decimals       *int32  `json:"decimals"`
	IconURI        *string `json:"icon_uri"`
	ProjectURI     *string `json:"project_uri"`
	IsTokenV2      *bool   `json:"is_token_v2"`
}

type faSupplyPayload struct {
	AssetType *string          `json:"asset_type"`
	Current   *decimal.Decimal `json:"current"`
	Maximum   *decimal.Decimal `json:"maximum"`
}

type tokenV1ID struct {
	Creator         *string          `json:"creator"`
	Collection      *string          `json:"collection"`
	Name            *string          `json:"name"`
	PropertyVersion *decimal.Decimal `json:"property_version"`
}

type tokenV1Payload struct {
	ID     *tokenV1ID       `json:"id"`
	Amount *decimal.Decimal `json:"amount"`
}

type tokenV2SupplyPayload struct {
	Token         *string          `json:"token"`
	Collection    *string          `json:"collection"`
	To            *string          `json:"to"`
	PreviousOwner *string          `json:"previous_owner"`
	AssetType     *string          `json:"asset_type"`
	Amount        *decimal.Decimal `json:"amount"`
	Store         *string          `json:"store"`
}

type objectTransferPayload struct {
	Object *string `json:"object"`
	From   *string `json:"from"`
	To     *string `json:"to"`
}

type tokenMutationPayload struct {
	TokenAddress     *string `json:"token_address"`
	MutatedFieldName *string `json:"mutated_field_name"`
	OldValue         *string `json:"old_value"`
	NewValue         *string `json:"new_value"`
}

// decodePayload unmarshals data into v. Unknown fields are tolerated since
// producers add fields over time.
func decodePayload(tag string, data json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return malformed(tag, "data", errMissing)
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return malformed(tag, "data", err)
	}
	return nil
}

func requireAmount(tag, field string, d *decimal.Decimal) (*decimal.Decimal, error) {
	if d == nil {
		return nil, malformed(tag, field, errMissing)
	}
	return optionalAmount(tag, field, d)
}

func optionalAmount(tag, field string, d *decimal.Decimal) (*decimal.Decimal, error) {
	if d == nil {
		return nil, nil
	}
	if d.IsNegative() {
		return nil, malformed(tag, field, errNegative)
	}
	v := *d
	return &v, nil
}

func requireAddress(tag, field string, s *string) (string, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return "", malformed(tag, field, errMissing)
	}
	addr, err := identity.StandardizeAddress(*s)
	if err != nil {
		return "", malformed(tag, field, err)
	}
	return addr, nil
}

func optionalAddress(tag, field string, s *string) (*string, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	addr, err := requireAddress(tag, field, s)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

// addressOr standardizes s, falling back to fallback when s is absent.
func addressOr(tag, field string, s *string, fallback string) (string, error) {
	if s != nil && strings.TrimSpace(*s) != "" {
		return requireAddress(tag, field, s)
	}
	return requireAddress(tag, field, &fallback)
}

func requireString(tag, field string, s *string) (string, error) {
	if s == nil {
		return "", malformed(tag, field, errMissing)
	}
	return *s, nil
}

// coinTypeOr resolves a legacy coin type from the payload, then from the
// generic argument of the tag.
func coinTypeOr(tag string, s *string, genericArg string) (string, error) {
	if s != nil && strings.TrimSpace(*s) != "" {
		return validCoinType(tag, strings.TrimSpace(*s))
	}
	if genericArg != "" {
		return validCoinType(tag, genericArg)
	}
	return "", malformed(tag, "coin_type", errMissing)
}

func validCoinType(tag, coinType string) (string, error) {
	if identity.CreatorOfCoinType(coinType) == "" {
		return "", malformed(tag, "coin_type", fmt.Errorf("not a type tag: %q", coinType))
	}
	return coinType, nil
}

func boolPtr(v bool) *bool {
	return &v
}

func strPtr(v string) *string {
	return &v
}
