package normalizer

import (
	"strings"

	"github.com/emperorhan/fa-indexer/internal/domain/event"
	"github.com/emperorhan/fa-indexer/internal/pipeline/identity"
	"github.com/shopspring/decimal"
)

// AptosCoinType is the asset gas fees are charged in.
const AptosCoinType = "0x1::aptos_coin::AptosCoin"

// decodeInput is what a decoder sees besides the event under construction.
type decodeInput struct {
	raw        event.RawEvent
	tag        string
	genericArg string
}

type decodeFunc func(in decodeInput, ev *event.CanonicalEvent) error

var decoders = map[DecoderName]decodeFunc{
	DecoderCoinTransfer:    decodeCoinTransfer,
	DecoderCoinFreeze:      decodeCoinFreeze,
	DecoderCoinStore:       decodeCoinStore,
	DecoderCoinInfo:        decodeCoinInfo,
	DecoderCoinSupply:      decodeCoinSupply,
	DecoderFeeStatement:    decodeFeeStatement,
	DecoderFATransfer:      decodeFATransfer,
	DecoderFAFrozen:        decodeFAFrozen,
	DecoderFAStore:         decodeFAStore,
	DecoderFAStoreDeletion: decodeFAStoreDeletion,
	DecoderFAMetadata:      decodeFAMetadata,
	DecoderFASupply:        decodeFASupply,
	DecoderTokenV1:         decodeTokenV1(tokenDirectionFromKind),
	DecoderTokenV1Deposit:  decodeTokenV1(tokenDirectionIn),
	DecoderTokenV1Withdraw: decodeTokenV1(tokenDirectionOut),
	DecoderTokenV2Supply:   decodeTokenV2Supply,
	DecoderObjectTransfer:  decodeObjectTransfer,
	DecoderTokenV2Mutation: decodeTokenV2Mutation,
}

// ---------------------------------------------------------------------------
// legacy coin
// ---------------------------------------------------------------------------

func decodeCoinTransfer(in decodeInput, ev *event.CanonicalEvent) error {
	var p coinTransferPayload
	if err := decodePayload(in.tag, in.raw.Data, &p); err != nil {
		return err
	}
	coinType, err := coinTypeOr(in.tag, p.CoinType, in.genericArg)
	if err != nil {
		return err
	}
	owner, err := addressOr(in.tag, "account", p.Account, in.raw.AccountAddress)
	if err != nil {
		return err
	}
	if ev.Amount, err = requireAmount(in.tag, "amount", p.Amount); err != nil {
		return err
	}
	if ev.Balance, err = optionalAmount(in.tag, "balance", p.Balance); err != nil {
		return err
	}
	setLegacyStore(ev, owner, coinType)
	return nil
}

func decodeCoinFreeze(in decodeInput, ev *event.CanonicalEvent) error {
	var p coinFreezePayload
	if err := decodePayload(in.tag, in.raw.Data, &p); err != nil {
		return err
	}
	coinType, err := coinTypeOr(in.tag, p.CoinType, in.genericArg)
	if err != nil {
		return err
	}
	owner, err := addressOr(in.tag, "account", p.Account, in.raw.AccountAddress)
	if err != nil {
		return err
	}
	if p.Frozen == nil {
		return malformed(in.tag, "frozen", errMissing)
	}
	ev.IsFrozen = boolPtr(*p.Frozen)
	setLegacyStore(ev, owner, coinType)
	return nil
}

func decodeCoinStore(in decodeInput, ev *event.CanonicalEvent) error {
	var p coinStorePayload
	if err := decodePayload(in.tag, in.raw.Data, &p); err != nil {
		return err
	}
	coinType, err := coinTypeOr(in.tag, p.CoinType, in.genericArg)
	if err != nil {
		return err
	}
	owner, err := addressOr(in.tag, "account", p.Account, in.raw.AccountAddress)
	if err != nil {
		return err
	}
	balance := p.Balance
	if balance == nil && p.Coin != nil {
		balance = p.Coin.Value
	}
	if ev.Amount, err = requireAmount(in.tag, "balance", balance); err != nil {
		return err
	}
	if p.Frozen != nil {
		ev.IsFrozen = boolPtr(*p.Frozen)
	}
	setLegacyStore(ev, owner, coinType)
	return nil
}

// setLegacyStore fills the identity of a coin store. A legacy owner holds
// exactly one store per coin type, which is therefore always primary.
func setLegacyStore(ev *event.CanonicalEvent, owner, coinType string) {
	ev.StorageID = identity.LegacyStorageID(owner, coinType)
	ev.OwnerAddress = strPtr(owner)
	ev.AssetType = strPtr(coinType)
	ev.IsPrimary = boolPtr(true)
}

func decodeCoinInfo(in decodeInput, ev *event.CanonicalEvent) error {
	var p coinInfoPayload
	if err := decodePayload(in.tag, in.raw.Data, &p); err != nil {
		return err
	}
	coinType, err := coinTypeOr(in.tag, p.CoinType, in.genericArg)
	if err != nil {
		return err
	}
	creator, err := identity.StandardizeAddress(identity.CreatorOfCoinType(coinType))
	if err != nil {
		return malformed(in.tag, "coin_type", err)
	}
	fields, err := requiredDescriptors(in.tag, p.Name, p.Symbol, p.Decimals)
	if err != nil {
		return err
	}
	fields.CreatorAddress = strPtr(creator)
	fields.SupplyAggregatorTableHandleV1 = p.SupplyAggregatorTableHandle
	fields.SupplyAggregatorTableKeyV1 = p.SupplyAggregatorTableKey
	ev.AssetType = strPtr(coinType)
	ev.Metadata = fields
	return nil
}

func decodeCoinSupply(in decodeInput, ev *event.CanonicalEvent) error {
	var p coinSupplyPayload
	if err := decodePayload(in.tag, in.raw.Data, &p); err != nil {
		return err
	}
	coinType, err := coinTypeOr(in.tag, p.CoinType, in.genericArg)
	if err != nil {
		return err
	}
	supply, err := requireAmount(in.tag, "supply", p.Supply)
	if err != nil {
		return err
	}
	ev.AssetType = strPtr(coinType)
	ev.Supply = &event.SupplyFields{Supply: *supply}
	return nil
}

// decodeFeeStatement turns a fee statement into a gas-fee activity on the
// payer's native coin store. The charged amount is either given directly or
// derived from gas units and unit price. The payer's balance already reflects
// the charge through its CoinStore write, so the fee is never applied as a
// delta.
func decodeFeeStatement(in decodeInput, ev *event.CanonicalEvent) error {
	var p feeStatementPayload
	if err := decodePayload(in.tag, in.raw.Data, &p); err != nil {
		return err
	}
	payer, err := addressOr(in.tag, "payer", p.Payer, in.raw.AccountAddress)
	if err != nil {
		return err
	}
	amount, err := optionalAmount(in.tag, "amount", p.Amount)
	if err != nil {
		return err
	}
	if amount == nil {
		units, err := requireAmount(in.tag, "total_charge_gas_units", p.TotalChargeGasUnits)
		if err != nil {
			return err
		}
		price, err := requireAmount(in.tag, "gas_unit_price", p.GasUnitPrice)
		if err != nil {
			return err
		}
		charged := units.Mul(*price)
		amount = &charged
	}
	refund, err := optionalAmount(in.tag, "storage_fee_refund_octas", p.StorageFeeRefundOctas)
	if err != nil {
		return err
	}
	if refund != nil {
		ev.StorageRefundAmount = *refund
	}
	setLegacyStore(ev, payer, AptosCoinType)
	ev.Amount = amount
	ev.GasFeePayer = strPtr(payer)
	return nil
}

// ---------------------------------------------------------------------------
// unified fungible asset
// ---------------------------------------------------------------------------

func decodeFATransfer(in decodeInput, ev *event.CanonicalEvent) error {
	var p faTransferPayload
	if err := decodePayload(in.tag, in.raw.Data, &p); err != nil {
		return err
	}
	if err := setUnifiedStore(in.tag, ev, p.Store, p.Owner, p.Metadata); err != nil {
		return err
	}
	var err error
	if ev.Amount, err = requireAmount(in.tag, "amount", p.Amount); err != nil {
		return err
	}
	if ev.Balance, err = optionalAmount(in.tag, "balance", p.Balance); err != nil {
		return err
	}
	return nil
}

func decodeFAFrozen(in decodeInput, ev *event.CanonicalEvent) error {
	var p faFrozenPayload
	if err := decodePayload(in.tag, in.raw.Data, &p); err != nil {
		return err
	}
	if err := setUnifiedStore(in.tag, ev, p.Store, p.Owner, p.Metadata); err != nil {
		return err
	}
	if p.Frozen == nil {
		return malformed(in.tag, "frozen", errMissing)
	}
	ev.IsFrozen = boolPtr(*p.Frozen)
	return nil
}

func decodeFAStore(in decodeInput, ev *event.CanonicalEvent) error {
	var p faStorePayload
	if err := decodePayload(in.tag, in.raw.Data, &p); err != nil {
		return err
	}
	if err := setUnifiedStore(in.tag, ev, p.Store, p.Owner, p.Metadata); err != nil {
		return err
	}
	var err error
	if ev.Amount, err = requireAmount(in.tag, "balance", p.Balance); err != nil {
		return err
	}
	if p.Frozen != nil {
		ev.IsFrozen = boolPtr(*p.Frozen)
	}
	if p.IsPrimary != nil {
		ev.IsPrimary = boolPtr(*p.IsPrimary)
	}
	return nil
}

func decodeFAStoreDeletion(in decodeInput, ev *event.CanonicalEvent) error {
	var p faStoreDeletionPayload
	if err := decodePayload(in.tag, in.raw.Data, &p); err != nil {
		return err
	}
	return setUnifiedStore(in.tag, ev, p.Store, p.Owner, p.Metadata)
}

// setUnifiedStore fills the identity of an object store; the store address is
// the storage id.
func setUnifiedStore(tag string, ev *event.CanonicalEvent, store, owner, metadata *string) error {
	storeAddr, err := requireAddress(tag, "store", store)
	if err != nil {
		return err
	}
	if ev.OwnerAddress, err = optionalAddress(tag, "owner", owner); err != nil {
		return err
	}
	if ev.AssetType, err = optionalAddress(tag, "metadata", metadata); err != nil {
		return err
	}
	ev.StorageID = storeAddr
	return nil
}

func decodeFAMetadata(in decodeInput, ev *event.CanonicalEvent) error {
	var p faMetadataPayload
	if err := decodePayload(in.tag, in.raw.Data, &p); err != nil {
		return err
	}
	assetType, err := addressOr(in.tag, "asset_type", p.AssetType, in.raw.AccountAddress)
	if err != nil {
		return err
	}
	fields, err := requiredDescriptors(in.tag, p.Name, p.Symbol, p.Decimals)
	if err != nil {
		return err
	}
	if fields.CreatorAddress, err = optionalAddress(in.tag, "creator_address", p.CreatorAddress); err != nil {
		return err
	}
	fields.IconURI = p.IconURI
	fields.ProjectURI = p.ProjectURI
	if p.IsTokenV2 != nil {
		fields.IsTokenV2 = boolPtr(*p.IsTokenV2)
	}
	ev.AssetType = strPtr(assetType)
	ev.Metadata = fields
	return nil
}

func requiredDescriptors(tag string, name, symbol *string, decimals *int32) (*event.MetadataFields, error) {
	n, err := requireString(tag, "name", name)
	if err != nil {
		return nil, err
	}
	s, err := requireString(tag, "symbol", symbol)
	if err != nil {
		return nil, err
	}
	if decimals == nil {
		return nil, malformed(tag, "decimals", errMissing)
	}
	if *decimals < 0 || *decimals > 255 {
		return nil, malformed(tag, "decimals", errOutOfRange)
	}
	d := *decimals
	return &event.MetadataFields{Name: strPtr(n), Symbol: strPtr(s), Decimals: &d}, nil
}

func decodeFASupply(in decodeInput, ev *event.CanonicalEvent) error {
	var p faSupplyPayload
	if err := decodePayload(in.tag, in.raw.Data, &p); err != nil {
		return err
	}
	assetType, err := addressOr(in.tag, "asset_type", p.AssetType, in.raw.AccountAddress)
	if err != nil {
		return err
	}
	current, err := requireAmount(in.tag, "current", p.Current)
	if err != nil {
		return err
	}
	maximum, err := optionalAmount(in.tag, "maximum", p.Maximum)
	if err != nil {
		return err
	}
	ev.AssetType = strPtr(assetType)
	ev.Supply = &event.SupplyFields{Supply: *current, Maximum: maximum}
	return nil
}

// ---------------------------------------------------------------------------
// tokens
// ---------------------------------------------------------------------------

type tokenDirection int

const (
	tokenDirectionFromKind tokenDirection = iota
	tokenDirectionIn
	tokenDirectionOut
)

func decodeTokenV1(dir tokenDirection) decodeFunc {
	return func(in decodeInput, ev *event.CanonicalEvent) error {
		var p tokenV1Payload
		if err := decodePayload(in.tag, in.raw.Data, &p); err != nil {
			return err
		}
		if p.ID == nil {
			return malformed(in.tag, "id", errMissing)
		}
		creator, err := requireAddress(in.tag, "id.creator", p.ID.Creator)
		if err != nil {
			return err
		}
		collection, err := requireString(in.tag, "id.collection", p.ID.Collection)
		if err != nil {
			return err
		}
		name, err := requireString(in.tag, "id.name", p.ID.Name)
		if err != nil {
			return err
		}
		amount, err := requireAmount(in.tag, "amount", p.Amount)
		if err != nil {
			return err
		}
		propertyVersion, err := optionalAmount(in.tag, "id.property_version", p.ID.PropertyVersion)
		if err != nil {
			return err
		}
		account, err := requireAddress(in.tag, "account_address", &in.raw.AccountAddress)
		if err != nil {
			return err
		}

		fields := &event.TokenFields{
			TokenDataID: identity.TokenDataID(creator, collection, name),
			Amount:      *amount,
		}
		if propertyVersion != nil {
			fields.PropertyVersionV1 = *propertyVersion
		}
		direction := dir
		if direction == tokenDirectionFromKind {
			direction = tokenDirectionIn
			if ev.Kind == event.KindTokenBurn {
				direction = tokenDirectionOut
			}
		}
		if direction == tokenDirectionIn {
			fields.ToAddress = strPtr(account)
		} else {
			fields.FromAddress = strPtr(account)
		}
		ev.Token = fields
		return nil
	}
}

// decodeTokenV2Supply handles collection mint and burn. When the payload also
// names an asset type and amount the token is fungible and the event carries
// a fungible-asset leg in Amount/AssetType/StorageID.
func decodeTokenV2Supply(in decodeInput, ev *event.CanonicalEvent) error {
	var p tokenV2SupplyPayload
	if err := decodePayload(in.tag, in.raw.Data, &p); err != nil {
		return err
	}
	token, err := requireAddress(in.tag, "token", p.Token)
	if err != nil {
		return err
	}
	fields := &event.TokenFields{TokenDataID: token, Amount: decimal.NewFromInt(1)}
	if ev.Kind == event.KindTokenBurn {
		if fields.FromAddress, err = optionalAddress(in.tag, "previous_owner", p.PreviousOwner); err != nil {
			return err
		}
	} else {
		if fields.ToAddress, err = optionalAddress(in.tag, "to", p.To); err != nil {
			return err
		}
	}

	amount, err := optionalAmount(in.tag, "amount", p.Amount)
	if err != nil {
		return err
	}
	assetType, err := optionalAddress(in.tag, "asset_type", p.AssetType)
	if err != nil {
		return err
	}
	if amount != nil {
		fields.Amount = *amount
	}
	if amount != nil && assetType != nil {
		store, err := optionalAddress(in.tag, "store", p.Store)
		if err != nil {
			return err
		}
		ev.StorageID = token
		if store != nil {
			ev.StorageID = *store
		}
		ev.AssetType = assetType
		ev.Amount = amount
		ev.OwnerAddress = fields.ToAddress
		if ev.Kind == event.KindTokenBurn {
			ev.OwnerAddress = fields.FromAddress
		}
		fields.IsFungibleV2 = boolPtr(true)
	}
	ev.Token = fields
	return nil
}

func decodeObjectTransfer(in decodeInput, ev *event.CanonicalEvent) error {
	var p objectTransferPayload
	if err := decodePayload(in.tag, in.raw.Data, &p); err != nil {
		return err
	}
	object, err := requireAddress(in.tag, "object", p.Object)
	if err != nil {
		return err
	}
	from, err := requireAddress(in.tag, "from", p.From)
	if err != nil {
		return err
	}
	to, err := requireAddress(in.tag, "to", p.To)
	if err != nil {
		return err
	}
	ev.Token = &event.TokenFields{
		TokenDataID: object,
		FromAddress: strPtr(from),
		ToAddress:   strPtr(to),
		Amount:      decimal.NewFromInt(1),
	}
	return nil
}

func decodeTokenV2Mutation(in decodeInput, ev *event.CanonicalEvent) error {
	var p tokenMutationPayload
	if err := decodePayload(in.tag, in.raw.Data, &p); err != nil {
		return err
	}
	token, err := requireAddress(in.tag, "token_address", p.TokenAddress)
	if err != nil {
		return err
	}
	field, err := requireString(in.tag, "mutated_field_name", p.MutatedFieldName)
	if err != nil {
		return err
	}
	if strings.TrimSpace(field) == "" {
		return malformed(in.tag, "mutated_field_name", errMissing)
	}
	ev.Token = &event.TokenFields{
		TokenDataID: token,
		BeforeValue: p.OldValue,
		AfterValue:  p.NewValue,
		Amount:      decimal.Zero,
	}
	return nil
}

// ---------------------------------------------------------------------------
// entry point
// ---------------------------------------------------------------------------

// Normalize converts one raw event. It returns (nil, nil) for events outside
// the indexed modules and a *Error for events that are in scope but cannot be
// decoded, or whose type tag is not an address::module::Name struct tag.
// The result depends on raw and the registry only.
func (r *Registry) Normalize(raw event.RawEvent) (*event.CanonicalEvent, error) {
	tag, ok := canonicalTag(raw.Type)
	if !ok {
		return nil, &Error{Kind: ErrKindUnknownEventType, Type: raw.Type, Err: errUnparseableTag}
	}
	entry, res := r.lookup(tag)
	switch res {
	case lookupOutOfScope:
		return nil, nil
	case lookupUnknown:
		return nil, unknownType(tag)
	}

	ev := &event.CanonicalEvent{
		TransactionVersion: raw.TransactionVersion,
		EventIndex:         raw.EventIndex,
		BlockHeight:        raw.TransactionBlockHeight,
		Epoch:              raw.TransactionEpoch,
		Timestamp:          raw.TransactionTimestamp,
		Standard:           entry.Standard,
		Kind:               entry.Kind,
		Type:               tag,
		AccountAddress:     strings.ToLower(strings.TrimSpace(raw.AccountAddress)),
		TransactionSuccess: raw.TransactionSuccess,
	}
	if addr, err := identity.StandardizeAddress(raw.AccountAddress); err == nil {
		ev.AccountAddress = addr
	}
	if raw.EntryFunctionID != "" {
		ev.EntryFunctionID = strPtr(raw.EntryFunctionID)
	}

	_, genericArg := identity.SplitTypeTag(raw.Type)
	in := decodeInput{raw: raw, tag: tag, genericArg: genericArg}
	if err := decoders[entry.Decoder](in, ev); err != nil {
		return nil, err
	}
	return ev, nil
}
