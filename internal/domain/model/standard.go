package model

// AssetStandard tags which asset representation produced a record.
type AssetStandard string

const (
	// AssetStandardLegacy is the original coin-style balance representation.
	AssetStandardLegacy AssetStandard = "legacy"
	// AssetStandardUnified is the fungible-asset object representation with
	// primary/secondary stores and freeze semantics.
	AssetStandardUnified AssetStandard = "unified"
)

func (s AssetStandard) String() string {
	return string(s)
}

func (s AssetStandard) Valid() bool {
	return s == AssetStandardLegacy || s == AssetStandardUnified
}

// TokenStandard returns the persisted token_standard column value.
func (s AssetStandard) TokenStandard() TokenStandard {
	if s == AssetStandardUnified {
		return TokenStandardV2
	}
	return TokenStandardV1
}

// TokenStandard is the token_standard column value shared by every table.
type TokenStandard string

const (
	TokenStandardV1 TokenStandard = "v1"
	TokenStandardV2 TokenStandard = "v2"
)

func (s TokenStandard) String() string {
	return string(s)
}

// AssetStandard maps a persisted column value back to its standard.
func (s TokenStandard) AssetStandard() AssetStandard {
	if s == TokenStandardV2 {
		return AssetStandardUnified
	}
	return AssetStandardLegacy
}
