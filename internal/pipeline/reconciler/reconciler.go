// Package reconciler folds balance-affecting events into CurrentBalance
// snapshots with last-write-wins ordering on (transaction_version, event_index).
package reconciler

import (
	"errors"

	"github.com/emperorhan/fa-indexer/internal/domain/event"
	"github.com/emperorhan/fa-indexer/internal/domain/model"
	"github.com/shopspring/decimal"
)

// Apply returns the snapshot that results from applying ev on top of current.
//
// Events that do not touch balances return current unchanged. An event that
// is not strictly after current (same version and index included) returns
// current unchanged with a StaleEvent error, which makes redelivery a no-op.
// A delta that would go negative is clamped at zero and reported as a
// NegativeBalance error alongside the applied row. current is never mutated.
func Apply(ev *event.CanonicalEvent, current *model.CurrentBalance) (*model.CurrentBalance, error) {
	if ev == nil || !ev.Kind.TouchesBalance() {
		return current, nil
	}
	if current != nil && !ev.Position().After(current.Position()) {
		return current, &ReconcileError{
			Kind:      StaleEvent,
			StorageID: current.StorageID,
			Event:     ev.Position(),
			Current:   current.Position(),
		}
	}

	next := current.Clone()
	if next == nil {
		next = &model.CurrentBalance{StorageID: ev.StorageID, Amount: decimal.Zero}
	}

	if ev.OwnerAddress != nil {
		next.OwnerAddress = *ev.OwnerAddress
	}
	if ev.AssetType != nil {
		next.AssetType = *ev.AssetType
	}
	if ev.IsPrimary != nil {
		next.IsPrimary = *ev.IsPrimary
	}
	if ev.IsFrozen != nil {
		next.IsFrozen = *ev.IsFrozen
	}
	next.TokenStandard = ev.Standard.TokenStandard()
	next.LastTransactionVersion = ev.TransactionVersion
	next.LastEventIndex = ev.EventIndex
	next.LastTransactionTimestamp = ev.Timestamp
	next.IsDeleted = false

	var rerr error
	switch {
	case ev.Kind == event.KindStoreDeleted:
		next.Amount = decimal.Zero
		next.IsDeleted = true
	case ev.IsAbsolute():
		if ev.Kind == event.KindStoreWrite {
			next.Amount = *ev.Amount
		} else {
			next.Amount = *ev.Balance
		}
	default:
		if delta, ok := ev.Delta(); ok {
			computed := next.Amount.Add(delta)
			if computed.IsNegative() {
				nerr := &ReconcileError{
					Kind:      NegativeBalance,
					StorageID: next.StorageID,
					Event:     ev.Position(),
					Computed:  computed,
				}
				if current != nil {
					nerr.Current = current.Position()
				}
				rerr = nerr
				computed = decimal.Zero
			}
			next.Amount = computed
		}
	}
	return next, rerr
}

// Result summarizes one Reconcile call.
type Result struct {
	// Updated holds the final snapshot of every storage id that changed.
	Updated map[string]*model.CurrentBalance
	// History holds one row per applied event, in application order.
	History  []model.BalanceChange
	Stale    int
	Negative []*ReconcileError
}

// Reconcile applies events in order on top of state. state is read but never
// modified; the caller persists Result.Updated. Events for storage ids not in
// state start from an empty snapshot.
func Reconcile(events []*event.CanonicalEvent, state map[string]*model.CurrentBalance) Result {
	res := Result{Updated: make(map[string]*model.CurrentBalance)}
	for _, ev := range events {
		if !ev.Kind.TouchesBalance() || ev.StorageID == "" {
			continue
		}
		current, ok := res.Updated[ev.StorageID]
		if !ok {
			current = state[ev.StorageID]
		}
		next, err := Apply(ev, current)
		if err != nil {
			var rerr *ReconcileError
			if errors.As(err, &rerr) {
				switch rerr.Kind {
				case StaleEvent:
					res.Stale++
					continue
				case NegativeBalance:
					res.Negative = append(res.Negative, rerr)
				}
			}
		}
		res.Updated[ev.StorageID] = next
		res.History = append(res.History, next.Change())
	}
	return res
}
