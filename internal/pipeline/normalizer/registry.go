package normalizer

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/emperorhan/fa-indexer/internal/domain/event"
	"github.com/emperorhan/fa-indexer/internal/domain/model"
	"github.com/emperorhan/fa-indexer/internal/pipeline/identity"
	"gopkg.in/yaml.v3"
)

// DecoderName selects the payload layout used to decode an event.
type DecoderName string

const (
	DecoderCoinTransfer    DecoderName = "coin_transfer"
	DecoderCoinFreeze      DecoderName = "coin_freeze"
	DecoderCoinStore       DecoderName = "coin_store"
	DecoderCoinInfo        DecoderName = "coin_info"
	DecoderCoinSupply      DecoderName = "coin_supply"
	DecoderFeeStatement    DecoderName = "fee_statement"
	DecoderFATransfer      DecoderName = "fa_transfer"
	DecoderFAFrozen        DecoderName = "fa_frozen"
	DecoderFAStore         DecoderName = "fa_store"
	DecoderFAStoreDeletion DecoderName = "fa_store_deletion"
	DecoderFAMetadata      DecoderName = "fa_metadata"
	DecoderFASupply        DecoderName = "fa_supply"
	DecoderTokenV1         DecoderName = "token_v1"
	DecoderTokenV1Deposit  DecoderName = "token_v1_deposit"
	DecoderTokenV1Withdraw DecoderName = "token_v1_withdraw"
	DecoderTokenV2Supply   DecoderName = "token_v2_supply"
	DecoderObjectTransfer  DecoderName = "object_transfer"
	DecoderTokenV2Mutation DecoderName = "token_v2_mutation"
)

// Entry maps one event type tag onto a canonical kind.
type Entry struct {
	Standard model.AssetStandard
	Kind     event.Kind
	Decoder  DecoderName
}

// Registry resolves raw event type tags. Tags are compared after generic
// arguments are stripped and the address part is shortened, so
// "0x0000…01::coin::DepositEvent<T>" and "0x1::coin::DepositEvent" match.
type Registry struct {
	modules map[string]struct{}
	entries map[string]Entry
	ignore  map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		modules: make(map[string]struct{}),
		entries: make(map[string]Entry),
		ignore:  make(map[string]struct{}),
	}
}

// DefaultRegistry returns a registry populated with the framework modules of
// both asset standards and of both token standards.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for tag, e := range defaultEntries {
		if err := r.Register(tag, e); err != nil {
			panic(err)
		}
	}
	for _, tag := range defaultIgnored {
		r.Ignore(tag)
	}
	return r
}

// Register adds tag and marks its module as indexed.
func (r *Registry) Register(tag string, e Entry) error {
	canonical, ok := canonicalTag(tag)
	if !ok {
		return fmt.Errorf("invalid event type tag %q", tag)
	}
	if !e.Standard.Valid() {
		return fmt.Errorf("event %q: invalid standard %q", tag, e.Standard)
	}
	if e.Decoder == "" {
		d, ok := defaultDecoders[decoderKey{e.Standard, e.Kind}]
		if !ok {
			return fmt.Errorf("event %q: no default decoder for %s/%s", tag, e.Standard, e.Kind)
		}
		e.Decoder = d
	}
	if _, ok := decoders[e.Decoder]; !ok {
		return fmt.Errorf("event %q: unknown decoder %q", tag, e.Decoder)
	}
	r.entries[canonical] = e
	r.modules[identity.ModuleOf(canonical)] = struct{}{}
	return nil
}

// RegisterModule marks every event of module ("address::module") as in scope,
// so unregistered names in it surface as unknown event types.
func (r *Registry) RegisterModule(module string) error {
	canonical, ok := canonicalTag(module + "::_")
	if !ok {
		return fmt.Errorf("invalid module %q", module)
	}
	r.modules[identity.ModuleOf(canonical)] = struct{}{}
	return nil
}

// Ignore drops tag silently even though its module is indexed.
func (r *Registry) Ignore(tag string) {
	if canonical, ok := canonicalTag(tag); ok {
		r.ignore[canonical] = struct{}{}
	}
}

// Modules returns the indexed modules in sorted order.
func (r *Registry) Modules() []string {
	out := make([]string, 0, len(r.modules))
	for m := range r.modules {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

type lookupResult int

const (
	lookupOutOfScope lookupResult = iota
	lookupUnknown
	lookupFound
)

func (r *Registry) lookup(canonical string) (Entry, lookupResult) {
	if _, ok := r.ignore[canonical]; ok {
		return Entry{}, lookupOutOfScope
	}
	if e, ok := r.entries[canonical]; ok {
		return e, lookupFound
	}
	if _, ok := r.modules[identity.ModuleOf(canonical)]; ok {
		return Entry{}, lookupUnknown
	}
	return Entry{}, lookupOutOfScope
}

// registryFile is the YAML override layout read from EVENT_REGISTRY_PATH.
type registryFile struct {
	Modules []string `yaml:"modules"`
	Events  []struct {
		Type     string `yaml:"type"`
		Standard string `yaml:"standard"`
		Kind     string `yaml:"kind"`
		Decoder  string `yaml:"decoder"`
	} `yaml:"events"`
	Ignore []string `yaml:"ignore"`
}

// LoadRegistry returns DefaultRegistry extended with the overrides in path.
// An empty path yields the default registry.
func LoadRegistry(path string) (*Registry, error) {
	r := DefaultRegistry()
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event registry: %w", err)
	}
	if err := r.Apply(data); err != nil {
		return nil, fmt.Errorf("apply event registry %s: %w", path, err)
	}
	return r, nil
}

// Apply merges a YAML override document into r.
func (r *Registry) Apply(data []byte) error {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	for _, m := range f.Modules {
		if err := r.RegisterModule(m); err != nil {
			return err
		}
	}
	for _, ev := range f.Events {
		e := Entry{
			Standard: model.AssetStandard(strings.ToLower(ev.Standard)),
			Kind:     event.Kind(strings.ToLower(ev.Kind)),
			Decoder:  DecoderName(ev.Decoder),
		}
		if err := r.Register(ev.Type, e); err != nil {
			return err
		}
	}
	for _, tag := range f.Ignore {
		r.Ignore(tag)
	}
	return nil
}

// canonicalTag strips generic arguments and shortens the address part of
// "address::module::Name". ok is false for anything else.
func canonicalTag(tag string) (string, bool) {
	base, _ := identity.SplitTypeTag(tag)
	parts := strings.Split(base, "::")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return "", false
	}
	addr := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(parts[0], "0x"), "0X"))
	if addr == "" || !identity.IsHexString(addr) {
		return "", false
	}
	addr = strings.TrimLeft(addr, "0")
	if addr == "" {
		addr = "0"
	}
	return "0x" + addr + "::" + parts[1] + "::" + parts[2], true
}

type decoderKey struct {
	standard model.AssetStandard
	kind     event.Kind
}

// defaultDecoders picks a decoder for override entries that do not name one.
var defaultDecoders = map[decoderKey]DecoderName{
	{model.AssetStandardLegacy, event.KindDeposit}:        DecoderCoinTransfer,
	{model.AssetStandardLegacy, event.KindWithdraw}:       DecoderCoinTransfer,
	{model.AssetStandardLegacy, event.KindFrozen}:         DecoderCoinFreeze,
	{model.AssetStandardLegacy, event.KindStoreWrite}:     DecoderCoinStore,
	{model.AssetStandardLegacy, event.KindMetadata}:       DecoderCoinInfo,
	{model.AssetStandardLegacy, event.KindSupply}:         DecoderCoinSupply,
	{model.AssetStandardLegacy, event.KindGasFee}:         DecoderFeeStatement,
	{model.AssetStandardLegacy, event.KindTokenMint}:      DecoderTokenV1,
	{model.AssetStandardLegacy, event.KindTokenBurn}:      DecoderTokenV1,
	{model.AssetStandardLegacy, event.KindTokenTransfer}:  DecoderTokenV1Deposit,
	{model.AssetStandardUnified, event.KindDeposit}:       DecoderFATransfer,
	{model.AssetStandardUnified, event.KindWithdraw}:      DecoderFATransfer,
	{model.AssetStandardUnified, event.KindFrozen}:        DecoderFAFrozen,
	{model.AssetStandardUnified, event.KindStoreWrite}:    DecoderFAStore,
	{model.AssetStandardUnified, event.KindStoreDeleted}:  DecoderFAStoreDeletion,
	{model.AssetStandardUnified, event.KindMetadata}:      DecoderFAMetadata,
	{model.AssetStandardUnified, event.KindSupply}:        DecoderFASupply,
	{model.AssetStandardUnified, event.KindTokenMint}:     DecoderTokenV2Supply,
	{model.AssetStandardUnified, event.KindTokenBurn}:     DecoderTokenV2Supply,
	{model.AssetStandardUnified, event.KindTokenTransfer}: DecoderObjectTransfer,
	{model.AssetStandardUnified, event.KindTokenMutation}: DecoderTokenV2Mutation,
}

var defaultEntries = map[string]Entry{
	// legacy coin
	"0x1::coin::CoinDeposit":   {model.AssetStandardLegacy, event.KindDeposit, DecoderCoinTransfer},
	"0x1::coin::DepositEvent":  {model.AssetStandardLegacy, event.KindDeposit, DecoderCoinTransfer},
	"0x1::coin::CoinWithdraw":  {model.AssetStandardLegacy, event.KindWithdraw, DecoderCoinTransfer},
	"0x1::coin::WithdrawEvent": {model.AssetStandardLegacy, event.KindWithdraw, DecoderCoinTransfer},
	"0x1::coin::FreezeEvent":   {model.AssetStandardLegacy, event.KindFrozen, DecoderCoinFreeze},
	"0x1::coin::CoinStore":     {model.AssetStandardLegacy, event.KindStoreWrite, DecoderCoinStore},
	"0x1::coin::CoinInfo":      {model.AssetStandardLegacy, event.KindMetadata, DecoderCoinInfo},
	"0x1::coin::CoinSupply":    {model.AssetStandardLegacy, event.KindSupply, DecoderCoinSupply},

	"0x1::transaction_fee::FeeStatement": {model.AssetStandardLegacy, event.KindGasFee, DecoderFeeStatement},

	// unified fungible asset
	"0x1::fungible_asset::Deposit":               {model.AssetStandardUnified, event.KindDeposit, DecoderFATransfer},
	"0x1::fungible_asset::DepositEvent":          {model.AssetStandardUnified, event.KindDeposit, DecoderFATransfer},
	"0x1::fungible_asset::Withdraw":              {model.AssetStandardUnified, event.KindWithdraw, DecoderFATransfer},
	"0x1::fungible_asset::WithdrawEvent":         {model.AssetStandardUnified, event.KindWithdraw, DecoderFATransfer},
	"0x1::fungible_asset::Frozen":                {model.AssetStandardUnified, event.KindFrozen, DecoderFAFrozen},
	"0x1::fungible_asset::FrozenEvent":           {model.AssetStandardUnified, event.KindFrozen, DecoderFAFrozen},
	"0x1::fungible_asset::FungibleStore":         {model.AssetStandardUnified, event.KindStoreWrite, DecoderFAStore},
	"0x1::fungible_asset::FungibleStoreDeletion": {model.AssetStandardUnified, event.KindStoreDeleted, DecoderFAStoreDeletion},
	"0x1::fungible_asset::Metadata":              {model.AssetStandardUnified, event.KindMetadata, DecoderFAMetadata},
	"0x1::fungible_asset::Supply":                {model.AssetStandardUnified, event.KindSupply, DecoderFASupply},
	"0x1::fungible_asset::ConcurrentSupply":      {model.AssetStandardUnified, event.KindSupply, DecoderFASupply},

	// legacy token
	"0x3::token::MintTokenEvent": {model.AssetStandardLegacy, event.KindTokenMint, DecoderTokenV1},
	"0x3::token::BurnTokenEvent": {model.AssetStandardLegacy, event.KindTokenBurn, DecoderTokenV1},
	"0x3::token::DepositEvent":   {model.AssetStandardLegacy, event.KindTokenTransfer, DecoderTokenV1Deposit},
	"0x3::token::WithdrawEvent":  {model.AssetStandardLegacy, event.KindTokenTransfer, DecoderTokenV1Withdraw},

	// unified token
	"0x4::collection::Mint":      {model.AssetStandardUnified, event.KindTokenMint, DecoderTokenV2Supply},
	"0x4::collection::MintEvent": {model.AssetStandardUnified, event.KindTokenMint, DecoderTokenV2Supply},
	"0x4::collection::Burn":      {model.AssetStandardUnified, event.KindTokenBurn, DecoderTokenV2Supply},
	"0x4::collection::BurnEvent": {model.AssetStandardUnified, event.KindTokenBurn, DecoderTokenV2Supply},
	"0x1::object::Transfer":      {model.AssetStandardUnified, event.KindTokenTransfer, DecoderObjectTransfer},
	"0x1::object::TransferEvent": {model.AssetStandardUnified, event.KindTokenTransfer, DecoderObjectTransfer},
	"0x4::token::Mutation":       {model.AssetStandardUnified, event.KindTokenMutation, DecoderTokenV2Mutation},
	"0x4::token::MutationEvent":  {model.AssetStandardUnified, event.KindTokenMutation, DecoderTokenV2Mutation},
}

// defaultIgnored are known, irrelevant names inside indexed modules.
var defaultIgnored = []string{
	"0x1::coin::PairCreation",
	"0x1::coin::CoinEventHandleDeletion",
	"0x1::coin::CoinConversionMap",
	"0x1::coin::MigrationFlag",
	"0x1::fungible_asset::Untransferable",
	"0x1::fungible_asset::DispatchFunctionStore",
	"0x1::object::ObjectCore",
	"0x1::object::ObjectGroup",
	"0x3::token::CreateCollectionEvent",
	"0x3::token::CreateTokenDataEvent",
	"0x3::token::MutateTokenPropertyMapEvent",
	"0x3::token::Collections",
	"0x3::token::TokenStore",
	"0x4::collection::Collection",
	"0x4::collection::Mutation",
	"0x4::collection::MutationEvent",
	"0x4::collection::ConcurrentSupply",
	"0x4::collection::FixedSupply",
	"0x4::collection::UnlimitedSupply",
	"0x4::token::Token",
	"0x4::token::TokenIdentifiers",
}
