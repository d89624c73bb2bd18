package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"
)

// SupplySnapshot is one append-only total-supply observation.
// Primary key: (transaction_version, coin_type_hash).
type SupplySnapshot struct {
	TransactionVersion   int64           `db:"transaction_version"`
	CoinTypeHash         string          `db:"coin_type_hash"`
	CoinType             string          `db:"coin_type"`
	Supply               decimal.Decimal `db:"supply"`
	TransactionTimestamp time.Time       `db:"transaction_timestamp"`
	TransactionEpoch     int64           `db:"transaction_epoch"`
	InsertedAt           time.Time       `db:"inserted_at"`
}

// SupplyKey is the natural key of a SupplySnapshot.
type SupplyKey struct {
	TransactionVersion int64
	CoinTypeHash       string
}

func (s *SupplySnapshot) Key() SupplyKey {
	return SupplyKey{TransactionVersion: s.TransactionVersion, CoinTypeHash: s.CoinTypeHash}
}

// HashCoinType returns the hex sha256 digest used to key long coin type strings.
func HashCoinType(coinType string) string {
	sum := sha256.Sum256([]byte(coinType))
	return hex.EncodeToString(sum[:])
}
