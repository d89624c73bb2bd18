package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/emperorhan/fa-indexer/internal/domain/model"
	"github.com/emperorhan/fa-indexer/internal/store"
	"github.com/emperorhan/fa-indexer/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateWorkload_Deterministic(t *testing.T) {
	a, err := generateWorkload(5, 7, 3, 42)
	require.NoError(t, err)
	b, err := generateWorkload(5, 7, 3, 42)
	require.NoError(t, err)

	assert.Equal(t, a.Batches, b.Batches)
	assert.Equal(t, 35, a.Events)
	assert.Len(t, a.Expected, 3)
}

func TestGenerateWorkload_PositionsStrictlyIncrease(t *testing.T) {
	w, err := generateWorkload(6, 5, 4, 7)
	require.NoError(t, err)

	var last model.Position
	first := true
	for _, b := range w.Batches {
		assert.Equal(t, b.Events[0].TransactionVersion, b.StartVersion, b.ID)
		assert.Equal(t, b.Events[len(b.Events)-1].TransactionVersion, b.EndVersion, b.ID)
		for _, ev := range b.Events {
			pos := model.Position{TransactionVersion: ev.TransactionVersion, EventIndex: ev.EventIndex}
			if !first {
				require.True(t, pos.After(last), "%s: %+v not after %+v", b.ID, pos, last)
			}
			last, first = pos, false
		}
	}
}

func TestGenerateWorkload_NeverOverdraws(t *testing.T) {
	w, err := generateWorkload(20, 50, 5, 3)
	require.NoError(t, err)
	for id, amount := range w.Expected {
		assert.False(t, amount.IsNegative(), id)
	}
}

func TestRun_InMemoryVerifies(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := options{batches: 10, batchSize: 20, stores: 4, shards: 2, workers: 2, cacheSize: 64, seed: 9, verify: true}

	require.NoError(t, run(context.Background(), opts, logger))
}

func TestVerify_ReportsMismatch(t *testing.T) {
	w, err := generateWorkload(2, 4, 2, 1)
	require.NoError(t, err)

	sink := memory.New()
	var rows []*model.CurrentBalance
	for id := range w.Expected {
		rows = append(rows, &model.CurrentBalance{
			StorageID:              id,
			Amount:                 decimal.NewFromInt(123456789),
			LastTransactionVersion: 1,
		})
	}
	_, err = sink.WriteBatch(context.Background(), store.BatchWrite{Balances: rows})
	require.NoError(t, err)

	err = verify(context.Background(), sink, w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want")
	assert.Contains(t, err.Error(), "checkpoint")
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "postgres://indexer:xxxxx@db:5432/fa", redactURL("postgres://indexer:secret@db:5432/fa"))
	assert.Equal(t, "<unparseable>", redactURL("postgres://[::1"))
}
