package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/emperorhan/fa-indexer/internal/store"
)

// verify checks every generated store against its expected final balance and
// the processor checkpoint against the last batch. All mismatches are reported.
func verify(ctx context.Context, reader store.StateReader, w workload) error {
	ids := make([]string, 0, len(w.Expected))
	for id := range w.Expected {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		want := w.Expected[id]
		got, err := reader.GetBalance(ctx, id)
		if err != nil {
			return fmt.Errorf("read balance %s: %w", id, err)
		}
		switch {
		case got == nil && !want.IsZero():
			errs = append(errs, fmt.Errorf("store %s: missing, want %s", id, want))
		case got == nil:
		case got.Amount.IsNegative():
			errs = append(errs, fmt.Errorf("store %s: negative balance %s", id, got.Amount))
		case !got.Amount.Equal(want):
			errs = append(errs, fmt.Errorf("store %s: balance %s, want %s", id, got.Amount, want))
		}
	}

	if n := len(w.Batches); n > 0 {
		wantVersion := w.Batches[n-1].EndVersion
		cp, err := reader.Checkpoint(ctx, processor)
		if err != nil {
			return fmt.Errorf("read checkpoint: %w", err)
		}
		if cp == nil || cp.LastSuccessVersion != wantVersion {
			errs = append(errs, fmt.Errorf("checkpoint: got %v, want %d", cp, wantVersion))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}
	fmt.Printf("Verification:    %d stores OK\n", len(ids))
	return nil
}
