package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/emperorhan/fa-indexer/internal/domain/event"
	"github.com/emperorhan/fa-indexer/internal/pipeline/identity"
	"github.com/shopspring/decimal"
)

const (
	loadTestMetadata = "0xfa"
	maxDeposit       = 1_000
)

var genesis = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type workload struct {
	Batches []event.RawBatch
	Events  int
	// Expected maps each standardized store address to its final balance.
	Expected map[string]decimal.Decimal
}

func storeAddress(i int) string { return fmt.Sprintf("0x%x", 0xb000+i) }
func ownerAddress(i int) string { return fmt.Sprintf("0x%x", 0xa000+i) }

// generateWorkload builds batches of unified-standard deposits and withdrawals
// spread over the given number of stores. A withdrawal never exceeds the
// store's running balance, so the expected totals hold when batches are
// delivered in order. The same seed always yields the same workload.
func generateWorkload(batches, batchSize, stores int, seed uint64) (workload, error) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	running := make([]int64, stores)
	w := workload{Expected: make(map[string]decimal.Decimal, stores)}

	version := int64(1)
	for b := 0; b < batches; b++ {
		batch := event.RawBatch{ID: fmt.Sprintf("load-%06d", b), StartVersion: version}
		for e := 0; e < batchSize; e++ {
			s := rng.IntN(stores)
			kind, amount := "Deposit", rng.Int64N(maxDeposit)+1
			if running[s] > 0 && rng.IntN(3) == 0 {
				kind, amount = "Withdraw", rng.Int64N(running[s])+1
				running[s] -= amount
			} else {
				running[s] += amount
			}

			ev, err := transferEvent(version, int64(e%2), kind, s, amount)
			if err != nil {
				return workload{}, err
			}
			batch.Events = append(batch.Events, ev)
			// Two events per transaction.
			if e%2 == 1 {
				version++
			}
		}
		batch.EndVersion = batch.Events[len(batch.Events)-1].TransactionVersion
		if version <= batch.EndVersion {
			version = batch.EndVersion + 1
		}
		w.Batches = append(w.Batches, batch)
		w.Events += len(batch.Events)
	}

	for s, amount := range running {
		addr, err := identity.StandardizeAddress(storeAddress(s))
		if err != nil {
			return workload{}, err
		}
		w.Expected[addr] = decimal.NewFromInt(amount)
	}
	return w, nil
}

func transferEvent(version, index int64, kind string, store int, amount int64) (event.RawEvent, error) {
	data, err := json.Marshal(map[string]any{
		"store":    storeAddress(store),
		"owner":    ownerAddress(store),
		"metadata": loadTestMetadata,
		"amount":   fmt.Sprint(amount),
	})
	if err != nil {
		return event.RawEvent{}, fmt.Errorf("marshal load event: %w", err)
	}
	return event.RawEvent{
		TransactionVersion:   version,
		EventIndex:           index,
		AccountAddress:       "0x0",
		Type:                 "0x1::fungible_asset::" + kind,
		Data:                 data,
		TransactionTimestamp: genesis.Add(time.Duration(version) * time.Second),
		TransactionSuccess:   true,
	}, nil
}
