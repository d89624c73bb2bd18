package ingester

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/emperorhan/fa-indexer/internal/alert"
	"github.com/emperorhan/fa-indexer/internal/cache"
	"github.com/emperorhan/fa-indexer/internal/domain/event"
	"github.com/emperorhan/fa-indexer/internal/domain/model"
	"github.com/emperorhan/fa-indexer/internal/metrics"
	"github.com/emperorhan/fa-indexer/internal/pipeline/activity"
	"github.com/emperorhan/fa-indexer/internal/pipeline/metadata"
	"github.com/emperorhan/fa-indexer/internal/pipeline/reconciler"
	"github.com/emperorhan/fa-indexer/internal/pipeline/retry"
	"github.com/emperorhan/fa-indexer/internal/pipeline/supply"
	"github.com/emperorhan/fa-indexer/internal/store"
	"github.com/emperorhan/fa-indexer/internal/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	defaultProcessRetryMaxAttempts = 3
	defaultRetryDelayInitial       = 100 * time.Millisecond
	defaultRetryDelayMax           = 1 * time.Second
	defaultShards                  = 4

	stageProcessBatch = "ingester.process_batch"
)

// Acker hands a batch back to its source once it is committed or abandoned.
type Acker interface {
	Ack(ctx context.Context, token string) error
}

// BatchResult is what one committed (or abandoned) batch produced.
type BatchResult struct {
	BatchID       string
	SourceBatchID string
	StartVersion  int64
	EndVersion    int64
	Abandoned     bool
	Events        int
	EventErrors   []event.EventError
	Stale         int
	Negative      []*reconciler.ReconcileError
	Written       store.WriteResult
	Duration      time.Duration
}

// Ingester is the single writer. It fans each normalized batch out to the
// activity builder, the sharded balance reconciler and metadata merger, and
// the supply tracker, then commits everything through the sink at once.
type Ingester struct {
	sink         store.Sink
	normalizedCh <-chan event.NormalizedBatch
	acker        Acker
	alerter      alert.Alerter
	processor    string
	shards       int
	retry        retry.Policy
	onResult     func(BatchResult, error)
	newID        func() string
	logger       *slog.Logger
	tracer       trace.Tracer
}

type Option func(*Ingester)

func WithProcessor(name string) Option {
	return func(ing *Ingester) {
		ing.processor = name
	}
}

// WithShards sets how many workers reconcile a batch in parallel. Keys are
// assigned to workers by hash so each key is owned by exactly one worker.
func WithShards(n int) Option {
	return func(ing *Ingester) {
		ing.shards = n
	}
}

func WithRetryConfig(maxAttempts int, delayInitial, delayMax time.Duration) Option {
	return func(ing *Ingester) {
		ing.retry.MaxAttempts = maxAttempts
		ing.retry.InitialDelay = delayInitial
		ing.retry.MaxDelay = delayMax
	}
}

func WithAcker(a Acker) Option {
	return func(ing *Ingester) {
		ing.acker = a
	}
}

func WithAlerter(a alert.Alerter) Option {
	return func(ing *Ingester) {
		ing.alerter = a
	}
}

// WithResultHook is called after every batch with its outcome.
func WithResultHook(fn func(BatchResult, error)) Option {
	return func(ing *Ingester) {
		ing.onResult = fn
	}
}

func New(sink store.Sink, normalizedCh <-chan event.NormalizedBatch, logger *slog.Logger, opts ...Option) *Ingester {
	ing := &Ingester{
		sink:         sink,
		normalizedCh: normalizedCh,
		alerter:      alert.NoopAlerter{},
		processor:    "default",
		shards:       defaultShards,
		retry: retry.Policy{
			MaxAttempts:  defaultProcessRetryMaxAttempts,
			InitialDelay: defaultRetryDelayInitial,
			MaxDelay:     defaultRetryDelayMax,
		},
		newID:  uuid.NewString,
		logger: logger.With("component", "ingester"),
		tracer: tracing.Tracer("ingester"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ing)
		}
	}
	if ing.shards < 1 {
		ing.shards = 1
	}
	ing.retry.OnRetry = func(attempt int, d retry.Decision, err error) {
		metrics.IngesterRetries.WithLabelValues(ing.processor).Inc()
		ing.logger.Warn("process batch attempt failed; retrying",
			"stage", stageProcessBatch,
			"classification", d.Class,
			"classification_reason", d.Reason,
			"attempt", attempt,
			"max_attempts", ing.retry.MaxAttempts,
			"error", err,
		)
	}
	return ing
}

// Run consumes normalized batches until the channel closes or ctx is done.
// A batch that cannot be committed stops the ingester; the process restarts
// from the last checkpoint and the source redelivers the batch.
func (ing *Ingester) Run(ctx context.Context) error {
	ing.logger.Info("ingester started", "shards", ing.shards)
	defer ing.logger.Info("ingester stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-ing.normalizedCh:
			if !ok {
				return nil
			}
			if _, err := ing.Process(ctx, batch); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("ingester process batch failed: batch=%s: %w", batch.ID, err)
			}
		}
	}
}

// Process commits one normalized batch and acknowledges it to the source.
func (ing *Ingester) Process(ctx context.Context, batch event.NormalizedBatch) (res BatchResult, err error) {
	start := time.Now()
	res = BatchResult{
		BatchID:       ing.newID(),
		SourceBatchID: batch.ID,
		StartVersion:  batch.StartVersion,
		EndVersion:    batch.EndVersion,
		Events:        len(batch.Events),
		EventErrors:   batch.Errors,
	}

	spanCtx, span := ing.tracer.Start(ctx, "ingester.processBatch",
		trace.WithAttributes(tracing.BatchAttributes(ing.processor, res.BatchID, batch.StartVersion, batch.EndVersion, len(batch.Events))...),
	)
	defer func() {
		res.Duration = time.Since(start)
		tracing.EndSpan(span, err)
		metrics.IngesterLatency.WithLabelValues(ing.processor).Observe(res.Duration.Seconds())
		if err != nil {
			metrics.IngesterErrors.WithLabelValues(ing.processor).Inc()
			ing.logger.Error("process batch failed", "batch_id", res.BatchID, "source_batch_id", batch.ID, "error", err)
		}
		if ing.onResult != nil {
			ing.onResult(res, err)
		}
	}()

	if batch.Rollback {
		res.Abandoned = true
		metrics.IngesterBatchesAbandoned.WithLabelValues(ing.processor).Inc()
		ing.logger.Warn("abandoning batch flagged for rollback",
			"batch_id", res.BatchID,
			"source_batch_id", batch.ID,
			"start_version", batch.StartVersion,
			"end_version", batch.EndVersion,
		)
		ing.ack(spanCtx, batch)
		return res, nil
	}

	var out output
	err = ing.retry.Do(spanCtx, stageProcessBatch, func(ctx context.Context) error {
		var perr error
		out, perr = ing.processOnce(ctx, res.BatchID, batch)
		return perr
	})
	if err != nil {
		return res, err
	}

	res.Stale = out.stale
	res.Negative = out.negative
	res.Written = out.written
	ing.recordCommitted(spanCtx, res, out)
	ing.ack(spanCtx, batch)
	return res, nil
}

type output struct {
	written  store.WriteResult
	stale    int
	staleMD  int
	negative []*reconciler.ReconcileError
}

// processOnce loads state, derives every row and writes them. It is the unit
// that is retried: a retry reloads state so it never builds on a rolled-back
// write.
func (ing *Ingester) processOnce(ctx context.Context, batchID string, batch event.NormalizedBatch) (output, error) {
	keys := collectKeys(batch.Events)
	state, err := ing.sink.LoadState(ctx, keys)
	if err != nil {
		return output{}, fmt.Errorf("load state: %w", err)
	}

	balances, mds, err := ing.reconcileSharded(ctx, batch.Events, state)
	if err != nil {
		return output{}, err
	}
	acts := activity.BuildBatch(batch.Events)

	w := store.BatchWrite{
		BatchID:                 batchID,
		Processor:               ing.processor,
		EndVersion:              batch.EndVersion,
		LastTimestamp:           lastTimestamp(batch.Events),
		FungibleAssetActivities: acts.FungibleAsset,
		TokenActivities:         acts.Token,
		Balances:                sortedBalances(balances.Updated),
		BalanceHistory:          balances.History,
		Metadata:                sortedMetadata(mds.Updated),
		Supply:                  supply.RecordAll(batch.Events),
	}

	written, err := ing.sink.WriteBatch(ctx, w)
	if err != nil {
		return output{}, fmt.Errorf("write batch: %w", err)
	}
	return output{
		written:  written,
		stale:    balances.Stale,
		staleMD:  mds.Stale,
		negative: balances.Negative,
	}, nil
}

// reconcileSharded partitions events by key hash and runs the reconciler and
// merger per shard. Shards own disjoint keys and only read the shared state.
func (ing *Ingester) reconcileSharded(ctx context.Context, events []*event.CanonicalEvent, state store.State) (reconciler.Result, metadata.Result, error) {
	balanceShards := make([][]*event.CanonicalEvent, ing.shards)
	metadataShards := make([][]*event.CanonicalEvent, ing.shards)
	for _, ev := range events {
		if ev.Kind.TouchesBalance() && ev.StorageID != "" {
			i := cache.ShardIndex(ev.StorageID, ing.shards)
			balanceShards[i] = append(balanceShards[i], ev)
		}
		if ev.Kind.TouchesMetadata() && ev.AssetKey() != "" {
			i := cache.ShardIndex(ev.AssetKey(), ing.shards)
			metadataShards[i] = append(metadataShards[i], ev)
		}
	}

	balanceResults := make([]reconciler.Result, ing.shards)
	metadataResults := make([]metadata.Result, ing.shards)

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < ing.shards; i++ {
		if len(balanceShards[i]) == 0 && len(metadataShards[i]) == 0 {
			continue
		}
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			balanceResults[i] = reconciler.Reconcile(balanceShards[i], state.Balances)
			metadataResults[i] = metadata.MergeAll(metadataShards[i], state.Metadata)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return reconciler.Result{}, metadata.Result{}, err
	}

	balances := reconciler.Result{Updated: make(map[string]*model.CurrentBalance)}
	mds := metadata.Result{Updated: make(map[string]*model.AssetMetadata)}
	for i := 0; i < ing.shards; i++ {
		for k, v := range balanceResults[i].Updated {
			balances.Updated[k] = v
		}
		balances.History = append(balances.History, balanceResults[i].History...)
		balances.Stale += balanceResults[i].Stale
		balances.Negative = append(balances.Negative, balanceResults[i].Negative...)

		for k, v := range metadataResults[i].Updated {
			mds.Updated[k] = v
		}
		mds.Stale += metadataResults[i].Stale
	}
	sort.Slice(balances.History, func(a, b int) bool {
		return balances.History[b].Position().After(balances.History[a].Position())
	})
	sort.Slice(balances.Negative, func(a, b int) bool {
		return balances.Negative[b].Event.After(balances.Negative[a].Event)
	})
	return balances, mds, nil
}

func (ing *Ingester) recordCommitted(ctx context.Context, res BatchResult, out output) {
	p := ing.processor
	metrics.IngesterBatchesCommitted.WithLabelValues(p).Inc()
	metrics.IngesterActivitiesWritten.WithLabelValues(p, "fungible_asset_activities").Add(float64(out.written.FungibleAssetActivities))
	metrics.IngesterActivitiesWritten.WithLabelValues(p, "token_activities").Add(float64(out.written.TokenActivities))
	metrics.IngesterSnapshotsUpserted.WithLabelValues(p, "current_balances").Add(float64(out.written.Balances))
	metrics.IngesterActivitiesWritten.WithLabelValues(p, "fungible_asset_balances").Add(float64(out.written.BalanceHistory))
	metrics.IngesterSnapshotsUpserted.WithLabelValues(p, "asset_metadata").Add(float64(out.written.Metadata))
	metrics.IngesterSupplyRows.WithLabelValues(p).Add(float64(out.written.Supply))
	if out.stale > 0 {
		metrics.IngesterStaleEvents.WithLabelValues(p, "balance").Add(float64(out.stale))
	}
	if out.staleMD > 0 {
		metrics.IngesterStaleEvents.WithLabelValues(p, "metadata").Add(float64(out.staleMD))
	}
	metrics.PipelineLastCommittedVersion.WithLabelValues(p).Set(float64(res.EndVersion))

	for _, neg := range out.negative {
		metrics.IngesterNegativeBalances.WithLabelValues(p).Inc()
		ing.logger.Warn("balance floored at zero",
			"batch_id", res.BatchID,
			"storage_id", neg.StorageID,
			"transaction_version", neg.Event.TransactionVersion,
			"event_index", neg.Event.EventIndex,
			"computed", neg.Computed.String(),
		)
		if err := ing.alerter.Send(ctx, negativeBalanceAlert(p, neg)); err != nil {
			ing.logger.Warn("negative balance alert failed", "storage_id", neg.StorageID, "error", err)
		}
	}

	ing.logger.Debug("batch committed",
		"batch_id", res.BatchID,
		"source_batch_id", res.SourceBatchID,
		"start_version", res.StartVersion,
		"end_version", res.EndVersion,
		"events", res.Events,
		"event_errors", len(res.EventErrors),
		"fa_activities", out.written.FungibleAssetActivities,
		"token_activities", out.written.TokenActivities,
		"balances", out.written.Balances,
		"balance_history", out.written.BalanceHistory,
		"metadata", out.written.Metadata,
		"supply", out.written.Supply,
		"stale", out.stale,
	)
}

// ack failures are not fatal: the source redelivers and the replay is a no-op.
func (ing *Ingester) ack(ctx context.Context, batch event.NormalizedBatch) {
	if ing.acker == nil || batch.AckToken == "" {
		return
	}
	if err := ing.acker.Ack(ctx, batch.AckToken); err != nil {
		ing.logger.Warn("ack batch failed", "source_batch_id", batch.ID, "error", err)
	}
}

func negativeBalanceAlert(processor string, neg *reconciler.ReconcileError) alert.Alert {
	return alert.Alert{
		Type:      alert.AlertTypeNegativeBalance,
		Processor: processor,
		Key:       neg.StorageID,
		Title:     "Balance floored at zero",
		Message:   neg.Error(),
		Fields: map[string]string{
			"storage_id":          neg.StorageID,
			"transaction_version": strconv.FormatInt(neg.Event.TransactionVersion, 10),
			"event_index":         strconv.FormatInt(neg.Event.EventIndex, 10),
			"computed":            neg.Computed.String(),
		},
	}
}

func collectKeys(events []*event.CanonicalEvent) store.StateKeys {
	var keys store.StateKeys
	seenStorage := make(map[string]struct{})
	seenAsset := make(map[string]struct{})
	for _, ev := range events {
		if ev.Kind.TouchesBalance() && ev.StorageID != "" {
			if _, ok := seenStorage[ev.StorageID]; !ok {
				seenStorage[ev.StorageID] = struct{}{}
				keys.StorageIDs = append(keys.StorageIDs, ev.StorageID)
			}
		}
		if ev.Kind.TouchesMetadata() && ev.AssetKey() != "" {
			if _, ok := seenAsset[ev.AssetKey()]; !ok {
				seenAsset[ev.AssetKey()] = struct{}{}
				keys.AssetTypes = append(keys.AssetTypes, ev.AssetKey())
			}
		}
	}
	return keys
}

// lastTimestamp is the chain timestamp of the newest event in the batch.
func lastTimestamp(events []*event.CanonicalEvent) *time.Time {
	var newest *event.CanonicalEvent
	for _, ev := range events {
		if newest == nil || ev.Position().After(newest.Position()) {
			newest = ev
		}
	}
	if newest == nil {
		return nil
	}
	ts := newest.Timestamp
	return &ts
}

func sortedBalances(m map[string]*model.CurrentBalance) []*model.CurrentBalance {
	out := make([]*model.CurrentBalance, 0, len(m))
	for _, b := range m {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StorageID < out[j].StorageID })
	return out
}

func sortedMetadata(m map[string]*model.AssetMetadata) []*model.AssetMetadata {
	out := make([]*model.AssetMetadata, 0, len(m))
	for _, md := range m {
		out = append(out, md)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetType < out[j].AssetType })
	return out
}
