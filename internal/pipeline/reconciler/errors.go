package reconciler

import (
	"errors"
	"fmt"

	"github.com/emperorhan/fa-indexer/internal/domain/model"
	"github.com/shopspring/decimal"
)

// ErrorKind classifies reconciliation outcomes that are reported but do not
// fail a batch.
type ErrorKind string

const (
	// StaleEvent: the event is not newer than the stored snapshot.
	StaleEvent ErrorKind = "stale_event"
	// NegativeBalance: a delta would have taken the balance below zero. The
	// update is applied with the amount clamped at zero.
	NegativeBalance ErrorKind = "negative_balance"
)

var (
	ErrStaleEvent      = errors.New("stale event")
	ErrNegativeBalance = errors.New("negative balance")
)

type ReconcileError struct {
	Kind      ErrorKind
	StorageID string
	Event     model.Position
	Current   model.Position
	// Computed is the unclamped result for NegativeBalance.
	Computed decimal.Decimal
}

func (e *ReconcileError) Error() string {
	switch e.Kind {
	case NegativeBalance:
		return fmt.Sprintf("negative balance for %s at %d/%d: computed %s, clamped to 0",
			e.StorageID, e.Event.TransactionVersion, e.Event.EventIndex, e.Computed)
	default:
		return fmt.Sprintf("stale event for %s: %d/%d not after %d/%d",
			e.StorageID, e.Event.TransactionVersion, e.Event.EventIndex,
			e.Current.TransactionVersion, e.Current.EventIndex)
	}
}

func (e *ReconcileError) Is(target error) bool {
	switch target {
	case ErrStaleEvent:
		return e.Kind == StaleEvent
	case ErrNegativeBalance:
		return e.Kind == NegativeBalance
	}
	return false
}
