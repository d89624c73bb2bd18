package event

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestKindClassification(t *testing.T) {
	t.Parallel()

	balanceKinds := []Kind{KindDeposit, KindWithdraw, KindFrozen, KindStoreWrite, KindStoreDeleted}
	for _, k := range balanceKinds {
		assert.True(t, k.TouchesBalance(), k)
		assert.False(t, k.TouchesMetadata(), k)
	}
	assert.True(t, KindMetadata.TouchesMetadata())
	assert.True(t, KindSupply.TouchesMetadata())
	assert.False(t, KindGasFee.TouchesBalance(), "fee charge arrives through the store write")
	assert.True(t, KindTokenMint.IsToken())
	assert.False(t, KindDeposit.IsToken())
}

func TestCanonicalEventDelta(t *testing.T) {
	t.Parallel()

	amt := decimal.NewFromInt(30)

	d, ok := (&CanonicalEvent{Kind: KindDeposit, Amount: &amt}).Delta()
	assert.True(t, ok)
	assert.True(t, d.Equal(decimal.NewFromInt(30)))

	d, ok = (&CanonicalEvent{Kind: KindWithdraw, Amount: &amt}).Delta()
	assert.True(t, ok)
	assert.True(t, d.Equal(decimal.NewFromInt(-30)))

	_, ok = (&CanonicalEvent{Kind: KindStoreWrite, Amount: &amt}).Delta()
	assert.False(t, ok)

	_, ok = (&CanonicalEvent{Kind: KindGasFee, Amount: &amt}).Delta()
	assert.False(t, ok)

	_, ok = (&CanonicalEvent{Kind: KindDeposit}).Delta()
	assert.False(t, ok)
}

func TestCanonicalEventIsAbsolute(t *testing.T) {
	t.Parallel()

	amt := decimal.NewFromInt(1)
	assert.True(t, (&CanonicalEvent{Kind: KindStoreWrite, Amount: &amt}).IsAbsolute())
	assert.False(t, (&CanonicalEvent{Kind: KindDeposit, Amount: &amt}).IsAbsolute())
	assert.True(t, (&CanonicalEvent{Kind: KindDeposit, Amount: &amt, Balance: &amt}).IsAbsolute())
	assert.False(t, (&CanonicalEvent{Kind: KindFrozen}).IsAbsolute())
}
