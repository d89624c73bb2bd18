package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// addressHexLen is the width of a fully padded account address without prefix.
const addressHexLen = 64

// StandardizeAddress normalises an account or object address into its
// canonical form so that different representations of the same address
// (short form, mixed case, missing 0x prefix) compare as equal. The result is
// lowercase, 0x-prefixed and left-padded to 32 bytes.
func StandardizeAddress(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	withoutPrefix := strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if withoutPrefix == "" {
		return "", fmt.Errorf("empty address %q", address)
	}
	if len(withoutPrefix) > addressHexLen {
		return "", fmt.Errorf("address %q longer than %d hex digits", address, addressHexLen)
	}
	if !IsHexString(withoutPrefix) {
		return "", fmt.Errorf("address %q is not hex", address)
	}
	return "0x" + strings.Repeat("0", addressHexLen-len(withoutPrefix)) + strings.ToLower(withoutPrefix), nil
}

// LegacyStorageID derives the storage identity of a coin-style balance, which
// has no on-chain object address of its own: one store per owner and coin type.
func LegacyStorageID(owner, coinType string) string {
	sum := sha256.Sum256([]byte(owner + "::" + coinType))
	return "0x" + hex.EncodeToString(sum[:])
}

// TokenDataID derives the identifier of a legacy token from its
// creator/collection/name triple.
func TokenDataID(creator, collection, name string) string {
	sum := sha256.Sum256([]byte(creator + "::" + collection + "::" + name))
	return "0x" + hex.EncodeToString(sum[:])
}

// SplitTypeTag separates a Move type tag into its base tag and its first
// generic argument, e.g. "0x1::coin::CoinStore<0x1::aptos_coin::AptosCoin>"
// yields ("0x1::coin::CoinStore", "0x1::aptos_coin::AptosCoin").
func SplitTypeTag(tag string) (base string, arg string) {
	tag = strings.TrimSpace(tag)
	open := strings.IndexByte(tag, '<')
	if open < 0 || !strings.HasSuffix(tag, ">") {
		return tag, ""
	}
	inner := tag[open+1 : len(tag)-1]
	depth := 0
	for i, ch := range inner {
		switch ch {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				inner = inner[:i]
				return tag[:open], strings.TrimSpace(inner)
			}
		}
	}
	return tag[:open], strings.TrimSpace(inner)
}

// ModuleOf returns the "address::module" prefix of a base type tag, or "" if
// the tag is not of the form address::module::Name.
func ModuleOf(baseTag string) string {
	parts := strings.Split(baseTag, "::")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return ""
	}
	return parts[0] + "::" + parts[1]
}

// CreatorOfCoinType returns the publishing address of a coin type.
func CreatorOfCoinType(coinType string) string {
	if i := strings.Index(coinType, "::"); i > 0 {
		return coinType[:i]
	}
	return ""
}

// IsHexString reports whether v consists solely of hexadecimal characters.
func IsHexString(v string) bool {
	for _, ch := range v {
		switch {
		case ch >= '0' && ch <= '9':
		case ch >= 'a' && ch <= 'f':
		case ch >= 'A' && ch <= 'F':
		default:
			return false
		}
	}
	return true
}
