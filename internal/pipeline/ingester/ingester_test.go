package ingester

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/emperorhan/fa-indexer/internal/alert"
	"github.com/emperorhan/fa-indexer/internal/domain/event"
	"github.com/emperorhan/fa-indexer/internal/domain/model"
	"github.com/emperorhan/fa-indexer/internal/store"
	"github.com/emperorhan/fa-indexer/internal/store/memory"
	storemocks "github.com/emperorhan/fa-indexer/internal/store/mocks"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	testStore = "0x00000000000000000000000000000000000000000000000000000000000000aa"
	testOwner = "0x00000000000000000000000000000000000000000000000000000000000000b1"
	testAsset = "0x000000000000000000000000000000000000000000000000000000000000000a"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingAcker struct {
	mu     sync.Mutex
	tokens []string
	err    error
}

func (a *recordingAcker) Ack(_ context.Context, token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens = append(a.tokens, token)
	return a.err
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (a *recordingAlerter) Send(_ context.Context, al alert.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, al)
	return nil
}

func ptr[T any](v T) *T { return &v }

func balanceEvent(kind event.Kind, version, index, amount int64) *event.CanonicalEvent {
	return &event.CanonicalEvent{
		TransactionVersion: version,
		EventIndex:         index,
		BlockHeight:        version / 2,
		Timestamp:          time.Date(2024, 1, 1, 0, 0, int(version), 0, time.UTC),
		Standard:           model.AssetStandardUnified,
		Kind:               kind,
		Type:               "0x1::fungible_asset::" + string(kind),
		TransactionSuccess: true,
		StorageID:          testStore,
		OwnerAddress:       ptr(testOwner),
		AssetType:          ptr(testAsset),
		Amount:             ptr(decimal.NewFromInt(amount)),
	}
}

func batchOf(id string, events ...*event.CanonicalEvent) event.NormalizedBatch {
	b := event.NormalizedBatch{ID: id, AckToken: "ack-" + id, Events: events}
	for i, ev := range events {
		if i == 0 || ev.TransactionVersion < b.StartVersion {
			b.StartVersion = ev.TransactionVersion
		}
		if ev.TransactionVersion > b.EndVersion {
			b.EndVersion = ev.TransactionVersion
		}
	}
	return b
}

func newTestIngester(sink store.Sink, opts ...Option) *Ingester {
	base := []Option{WithProcessor("fa"), WithRetryConfig(3, 0, 0)}
	ing := New(sink, nil, testLogger(), append(base, opts...)...)
	ing.newID = func() string { return "batch-uuid" }
	return ing
}

func TestProcess_OutOfOrderDelivery(t *testing.T) {
	events := []*event.CanonicalEvent{
		balanceEvent(event.KindDeposit, 10, 0, 100),
		balanceEvent(event.KindWithdraw, 12, 0, 30),
		balanceEvent(event.KindDeposit, 11, 0, 5),
	}

	t.Run("one batch", func(t *testing.T) {
		sink := memory.New()
		ing := newTestIngester(sink, WithShards(4))

		res, err := ing.Process(context.Background(), batchOf("b1", events...))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Stale)

		got, ok := sink.Balance(testStore)
		require.True(t, ok)
		assert.True(t, decimal.NewFromInt(70).Equal(got.Amount), "got %s", got.Amount)
		assert.Equal(t, int64(12), got.LastTransactionVersion)
	})

	t.Run("separate batches", func(t *testing.T) {
		sink := memory.New()
		ing := newTestIngester(sink)
		for i, ev := range events {
			_, err := ing.Process(context.Background(), batchOf(string(rune('a'+i)), ev))
			require.NoError(t, err)
		}

		got, ok := sink.Balance(testStore)
		require.True(t, ok)
		assert.True(t, decimal.NewFromInt(70).Equal(got.Amount), "got %s", got.Amount)
		assert.Equal(t, int64(12), got.LastTransactionVersion)
		assert.Len(t, sink.FungibleAssetActivities(), 3, "stale events still get activity rows")
	})
}

func TestProcess_RedeliveryIsIdempotent(t *testing.T) {
	sink := memory.New()
	ing := newTestIngester(sink)
	batch := batchOf("b1",
		balanceEvent(event.KindDeposit, 20, 0, 50),
		balanceEvent(event.KindWithdraw, 20, 1, 20),
	)

	first, err := ing.Process(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Written.FungibleAssetActivities)
	assert.Equal(t, int64(1), first.Written.Balances)
	assert.Equal(t, int64(2), first.Written.BalanceHistory)

	second, err := ing.Process(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, store.WriteResult{}, second.Written)
	assert.Equal(t, 2, second.Stale)

	got, _ := sink.Balance(testStore)
	assert.True(t, decimal.NewFromInt(30).Equal(got.Amount))
	assert.Equal(t, int64(1), got.LastEventIndex)
}

func TestProcess_NegativeBalanceAlerts(t *testing.T) {
	sink := memory.New()
	alerter := &recordingAlerter{}
	ing := newTestIngester(sink, WithAlerter(alerter))

	res, err := ing.Process(context.Background(), batchOf("b1",
		balanceEvent(event.KindDeposit, 1, 0, 20),
		balanceEvent(event.KindWithdraw, 2, 0, 30),
	))
	require.NoError(t, err)
	require.Len(t, res.Negative, 1)

	got, _ := sink.Balance(testStore)
	assert.True(t, got.Amount.IsZero())

	require.Len(t, alerter.alerts, 1)
	assert.Equal(t, alert.AlertTypeNegativeBalance, alerter.alerts[0].Type)
	assert.Equal(t, testStore, alerter.alerts[0].Key)
	assert.Equal(t, "-10", alerter.alerts[0].Fields["computed"])
}

func TestProcess_WritesAllTablesAndCheckpoint(t *testing.T) {
	sink := memory.New()
	acker := &recordingAcker{}
	ing := newTestIngester(sink, WithAcker(acker))

	supplyEv := &event.CanonicalEvent{
		TransactionVersion: 31, EventIndex: 0, Epoch: 3,
		Timestamp: time.Date(2024, 1, 1, 0, 0, 31, 0, time.UTC),
		Standard:  model.AssetStandardUnified, Kind: event.KindSupply,
		AssetType: ptr(testAsset),
		Supply:    &event.SupplyFields{Supply: decimal.NewFromInt(1000), Maximum: ptr(decimal.NewFromInt(5000))},
	}
	metaEv := &event.CanonicalEvent{
		TransactionVersion: 30, EventIndex: 1,
		Timestamp: time.Date(2024, 1, 1, 0, 0, 30, 0, time.UTC),
		Standard:  model.AssetStandardUnified, Kind: event.KindMetadata,
		AssetType: ptr(testAsset),
		Metadata:  &event.MetadataFields{Name: ptr("Test"), Symbol: ptr("TST"), Decimals: ptr(int32(6))},
	}
	batch := batchOf("b1", balanceEvent(event.KindDeposit, 30, 0, 7), metaEv, supplyEv)

	res, err := ing.Process(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, "batch-uuid", res.BatchID)
	assert.Equal(t, "b1", res.SourceBatchID)

	md, ok := sink.AssetMetadata(testAsset)
	require.True(t, ok)
	assert.Equal(t, "TST", md.Symbol)
	require.NotNil(t, md.SupplyV2)
	assert.True(t, decimal.NewFromInt(1000).Equal(*md.SupplyV2))

	require.Len(t, sink.Supply(), 1)

	cp, err := sink.Checkpoint(context.Background(), "fa")
	require.NoError(t, err)
	assert.Equal(t, int64(31), cp.LastSuccessVersion)
	require.NotNil(t, cp.LastTransactionTimestamp)
	assert.Equal(t, supplyEv.Timestamp, *cp.LastTransactionTimestamp)

	assert.Equal(t, []string{"ack-b1"}, acker.tokens)
}

func TestProcess_RollbackBatchIsAbandoned(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := storemocks.NewMockSink(ctrl)
	acker := &recordingAcker{}
	ing := newTestIngester(sink, WithAcker(acker))

	batch := batchOf("b1", balanceEvent(event.KindDeposit, 1, 0, 1))
	batch.Rollback = true

	res, err := ing.Process(context.Background(), batch)
	require.NoError(t, err)
	assert.True(t, res.Abandoned)
	assert.Equal(t, []string{"ack-b1"}, acker.tokens)
}

func TestProcess_RetriesTransientWriteFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := storemocks.NewMockSink(ctrl)
	ing := newTestIngester(sink)

	batch := batchOf("b1", balanceEvent(event.KindDeposit, 5, 0, 10))
	wantKeys := store.StateKeys{StorageIDs: []string{testStore}}

	gomock.InOrder(
		sink.EXPECT().LoadState(gomock.Any(), wantKeys).Return(store.State{}, nil),
		sink.EXPECT().WriteBatch(gomock.Any(), gomock.Any()).Return(store.WriteResult{}, &pq.Error{Code: "40P01"}),
		sink.EXPECT().LoadState(gomock.Any(), wantKeys).Return(store.State{}, nil),
		sink.EXPECT().WriteBatch(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, w store.BatchWrite) (store.WriteResult, error) {
				assert.Equal(t, "batch-uuid", w.BatchID)
				assert.Equal(t, "fa", w.Processor)
				assert.Equal(t, int64(5), w.EndVersion)
				require.Len(t, w.Balances, 1)
				assert.True(t, decimal.NewFromInt(10).Equal(w.Balances[0].Amount))
				require.Len(t, w.FungibleAssetActivities, 1)
				assert.Empty(t, w.TokenActivities)
				return store.WriteResult{FungibleAssetActivities: 1, Balances: 1}, nil
			}),
	)

	res, err := ing.Process(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Written.Balances)
}

func TestProcess_TerminalFailureIsNotAcked(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := storemocks.NewMockSink(ctrl)
	acker := &recordingAcker{}

	var hookErr error
	ing := newTestIngester(sink, WithAcker(acker), WithResultHook(func(_ BatchResult, err error) { hookErr = err }))

	sink.EXPECT().LoadState(gomock.Any(), gomock.Any()).Return(store.State{}, nil).Times(1)
	sink.EXPECT().WriteBatch(gomock.Any(), gomock.Any()).Return(store.WriteResult{}, &pq.Error{Code: "23514"}).Times(1)

	_, err := ing.Process(context.Background(), batchOf("b1", balanceEvent(event.KindDeposit, 5, 0, 10)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminal_failure")
	assert.Equal(t, err, hookErr)
	assert.Empty(t, acker.tokens)
}

func TestProcess_LoadStateFailureRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := storemocks.NewMockSink(ctrl)
	ing := newTestIngester(sink, WithRetryConfig(2, 0, 0))

	sink.EXPECT().LoadState(gomock.Any(), gomock.Any()).Return(store.State{}, context.DeadlineExceeded).Times(2)

	_, err := ing.Process(context.Background(), batchOf("b1", balanceEvent(event.KindDeposit, 5, 0, 10)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transient_recovery_exhausted")
}

func TestProcess_AckFailureIsNotFatal(t *testing.T) {
	sink := memory.New()
	acker := &recordingAcker{err: errors.New("redis down")}
	ing := newTestIngester(sink, WithAcker(acker))

	_, err := ing.Process(context.Background(), batchOf("b1", balanceEvent(event.KindDeposit, 5, 0, 10)))
	require.NoError(t, err)
	assert.Len(t, acker.tokens, 1)
}

func TestReconcileSharded_MatchesSingleShard(t *testing.T) {
	var events []*event.CanonicalEvent
	for i := int64(0); i < 40; i++ {
		ev := balanceEvent(event.KindDeposit, 100+i, 0, i+1)
		ev.StorageID = testStore[:len(testStore)-2] + string(rune('a'+i%8)) + "0"
		events = append(events, ev)
	}

	single := newTestIngester(memory.New(), WithShards(1))
	sharded := newTestIngester(memory.New(), WithShards(5))

	a, _, err := single.reconcileSharded(context.Background(), events, store.State{})
	require.NoError(t, err)
	b, _, err := sharded.reconcileSharded(context.Background(), events, store.State{})
	require.NoError(t, err)

	require.Len(t, b.Updated, 8)
	assert.Equal(t, sortedBalances(a.Updated), sortedBalances(b.Updated))
	assert.Equal(t, a.History, b.History)
}

func TestRun_StopsOnClosedChannelAndFailure(t *testing.T) {
	t.Run("closed channel", func(t *testing.T) {
		ch := make(chan event.NormalizedBatch)
		close(ch)
		ing := New(memory.New(), ch, testLogger())
		assert.NoError(t, ing.Run(context.Background()))
	})

	t.Run("failed batch", func(t *testing.T) {
		sink := memory.New()
		sink.FailNextWrite(errors.New("disk full"))
		ch := make(chan event.NormalizedBatch, 1)
		ch <- batchOf("b1", balanceEvent(event.KindDeposit, 1, 0, 1))
		ing := New(sink, ch, testLogger(), WithRetryConfig(1, 0, 0))

		err := ing.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "batch=b1")
	})
}

func TestCollectKeys_Deduplicates(t *testing.T) {
	meta := &event.CanonicalEvent{Kind: event.KindMetadata, AssetType: ptr(testAsset)}
	keys := collectKeys([]*event.CanonicalEvent{
		balanceEvent(event.KindDeposit, 1, 0, 1),
		balanceEvent(event.KindWithdraw, 1, 1, 1),
		meta,
		meta,
		{Kind: event.KindGasFee, StorageID: "0xfee"},
	})
	assert.Equal(t, []string{testStore}, keys.StorageIDs)
	assert.Equal(t, []string{testAsset}, keys.AssetTypes)
}

func TestProcess_HigherEventIndexWins(t *testing.T) {
	sink := memory.New()
	ing := newTestIngester(sink)

	later := balanceEvent(event.KindStoreWrite, 20, 1, 9)
	earlier := balanceEvent(event.KindStoreWrite, 20, 0, 4)

	_, err := ing.Process(context.Background(), batchOf("b1", later))
	require.NoError(t, err)
	res, err := ing.Process(context.Background(), batchOf("b2", earlier))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stale)

	got, _ := sink.Balance(testStore)
	assert.True(t, decimal.NewFromInt(9).Equal(got.Amount))
	assert.Equal(t, int64(1), got.LastEventIndex)
}

func TestProcess_StandardUpgradeKeepsOwner(t *testing.T) {
	sink := memory.New()
	ing := newTestIngester(sink)

	legacy := balanceEvent(event.KindStoreWrite, 5, 0, 100)
	legacy.Standard = model.AssetStandardLegacy
	unified := balanceEvent(event.KindDeposit, 6, 0, 1)
	unified.OwnerAddress = nil

	_, err := ing.Process(context.Background(), batchOf("b1", legacy))
	require.NoError(t, err)
	_, err = ing.Process(context.Background(), batchOf("b2", unified))
	require.NoError(t, err)

	got, _ := sink.Balance(testStore)
	assert.Equal(t, model.TokenStandardV2, got.TokenStandard)
	assert.Equal(t, testOwner, got.OwnerAddress)
	assert.True(t, decimal.NewFromInt(101).Equal(got.Amount))
}

func TestProcess_GasFeeLeavesBalanceToStoreWrite(t *testing.T) {
	sink := memory.New()
	ing := newTestIngester(sink)

	fee := balanceEvent(event.KindGasFee, 11, 0, 40)
	fee.Standard = model.AssetStandardLegacy
	fee.GasFeePayer = ptr(testOwner)
	opening := balanceEvent(event.KindStoreWrite, 10, 0, 1000)
	opening.Standard = model.AssetStandardLegacy

	_, err := ing.Process(context.Background(), batchOf("b1", opening))
	require.NoError(t, err)
	_, err = ing.Process(context.Background(), batchOf("b2", fee))
	require.NoError(t, err)

	got, ok := sink.Balance(testStore)
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(1000).Equal(got.Amount), "got %s", got.Amount)
	assert.Equal(t, int64(10), got.LastTransactionVersion)

	acts := sink.FungibleAssetActivities()
	require.Len(t, acts, 2)
	assert.True(t, acts[1].IsGasFee)
	require.NotNil(t, acts[1].GasFeePayerAddress)
	assert.Equal(t, testOwner, *acts[1].GasFeePayerAddress)

	// The charge lands with the payer's store write in the same transaction.
	closing := balanceEvent(event.KindStoreWrite, 11, 1, 960)
	closing.Standard = model.AssetStandardLegacy
	_, err = ing.Process(context.Background(), batchOf("b3", closing))
	require.NoError(t, err)

	got, _ = sink.Balance(testStore)
	assert.True(t, decimal.NewFromInt(960).Equal(got.Amount), "got %s", got.Amount)
}

func TestProcess_RecordsBalanceHistoryAcrossShards(t *testing.T) {
	const otherStore = "0x00000000000000000000000000000000000000000000000000000000000000ab"
	sink := memory.New()
	ing := newTestIngester(sink, WithShards(4))

	other := balanceEvent(event.KindDeposit, 40, 1, 9)
	other.StorageID = otherStore
	_, err := ing.Process(context.Background(), batchOf("b1",
		balanceEvent(event.KindDeposit, 40, 0, 100),
		other,
		balanceEvent(event.KindWithdraw, 41, 0, 25),
		balanceEvent(event.KindDeposit, 39, 0, 1), // stale
	))
	require.NoError(t, err)

	history := sink.BalanceHistory(testStore)
	require.Len(t, history, 2)
	assert.Equal(t, model.Position{TransactionVersion: 40, EventIndex: 0}, history[0].Position())
	assert.True(t, decimal.NewFromInt(100).Equal(history[0].Amount))
	assert.Equal(t, model.Position{TransactionVersion: 41, EventIndex: 0}, history[1].Position())
	assert.True(t, decimal.NewFromInt(75).Equal(history[1].Amount))

	require.Len(t, sink.BalanceHistory(otherStore), 1)
}
