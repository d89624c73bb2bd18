package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// StandardizeAddress
// ---------------------------------------------------------------------------

func TestStandardizeAddress(t *testing.T) {
	full := "0x" + strings.Repeat("0", 63) + "1"

	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "short form", input: "0x1", expected: full},
		{name: "missing prefix", input: "1", expected: full},
		{name: "uppercase prefix and digits", input: "0XAB", expected: "0x" + strings.Repeat("0", 62) + "ab"},
		{name: "surrounding whitespace", input: "  0x1 ", expected: full},
		{name: "already canonical", input: full, expected: full},
		{name: "empty", input: "", wantErr: true},
		{name: "prefix only", input: "0x", wantErr: true},
		{name: "non hex", input: "0xzz", wantErr: true},
		{name: "too long", input: "0x" + strings.Repeat("a", 65), wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := StandardizeAddress(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestLegacyStorageID_Deterministic(t *testing.T) {
	a := LegacyStorageID("0xa", "0x1::aptos_coin::AptosCoin")
	b := LegacyStorageID("0xa", "0x1::aptos_coin::AptosCoin")
	c := LegacyStorageID("0xb", "0x1::aptos_coin::AptosCoin")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "0x"))
	assert.Len(t, a, 66)
}

func TestTokenDataID_Deterministic(t *testing.T) {
	assert.Equal(t, TokenDataID("0x1", "col", "name"), TokenDataID("0x1", "col", "name"))
	assert.NotEqual(t, TokenDataID("0x1", "col", "a"), TokenDataID("0x1", "col", "b"))
}

func TestSplitTypeTag(t *testing.T) {
	tests := []struct {
		tag      string
		wantBase string
		wantArg  string
	}{
		{"0x1::coin::DepositEvent", "0x1::coin::DepositEvent", ""},
		{"0x1::coin::CoinStore<0x1::aptos_coin::AptosCoin>", "0x1::coin::CoinStore", "0x1::aptos_coin::AptosCoin"},
		{"0x1::coin::CoinInfo<0xabc::lp::LP<0x1::a::A, 0x2::b::B>>", "0x1::coin::CoinInfo", "0xabc::lp::LP<0x1::a::A, 0x2::b::B>"},
		{"0x1::m::Pair<0x1::a::A, 0x2::b::B>", "0x1::m::Pair", "0x1::a::A"},
		{"broken<", "broken<", ""},
	}

	for _, tc := range tests {
		t.Run(tc.tag, func(t *testing.T) {
			base, arg := SplitTypeTag(tc.tag)
			assert.Equal(t, tc.wantBase, base)
			assert.Equal(t, tc.wantArg, arg)
		})
	}
}

func TestModuleOf(t *testing.T) {
	assert.Equal(t, "0x1::coin", ModuleOf("0x1::coin::DepositEvent"))
	assert.Equal(t, "", ModuleOf("0x1::coin"))
	assert.Equal(t, "", ModuleOf("nonsense"))
	assert.Equal(t, "", ModuleOf("0x1::::X"))
}

func TestCreatorOfCoinType(t *testing.T) {
	assert.Equal(t, "0x1", CreatorOfCoinType("0x1::aptos_coin::AptosCoin"))
	assert.Equal(t, "", CreatorOfCoinType("AptosCoin"))
}
