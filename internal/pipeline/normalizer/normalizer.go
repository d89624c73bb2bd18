package normalizer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/emperorhan/fa-indexer/internal/domain/event"
	"github.com/emperorhan/fa-indexer/internal/metrics"
	"github.com/emperorhan/fa-indexer/internal/tracing"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Normalizer receives RawBatches, converts every event through the registry
// and produces NormalizedBatches. Batches are forwarded in the order they were
// received; events inside a batch are converted in parallel.
type Normalizer struct {
	registry     *Registry
	rawBatchCh   <-chan event.RawBatch
	normalizedCh chan<- event.NormalizedBatch
	workerCount  int
	processor    string
	logger       *slog.Logger
	tracer       trace.Tracer
}

type Option func(*Normalizer)

// WithProcessor sets the processor label used for metrics and spans.
func WithProcessor(name string) Option {
	return func(n *Normalizer) {
		n.processor = name
	}
}

func New(
	registry *Registry,
	rawBatchCh <-chan event.RawBatch,
	normalizedCh chan<- event.NormalizedBatch,
	workerCount int,
	logger *slog.Logger,
	opts ...Option,
) *Normalizer {
	if workerCount < 1 {
		workerCount = 1
	}
	n := &Normalizer{
		registry:     registry,
		rawBatchCh:   rawBatchCh,
		normalizedCh: normalizedCh,
		workerCount:  workerCount,
		processor:    "default",
		logger:       logger.With("component", "normalizer"),
		tracer:       tracing.Tracer("normalizer"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Normalizer) Run(ctx context.Context) error {
	n.logger.Info("normalizer started", "workers", n.workerCount, "modules", n.registry.Modules())
	defer n.logger.Info("normalizer stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-n.rawBatchCh:
			if !ok {
				return nil
			}
			normalized := n.NormalizeBatch(ctx, batch)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case n.normalizedCh <- normalized:
			}
		}
	}
}

type normalizeResult struct {
	ev  *event.CanonicalEvent
	err error
}

// NormalizeBatch converts every event of batch. Output events keep input
// order; per-event failures are collected in Errors and never fail the batch.
// Rollback batches pass through without conversion.
func (n *Normalizer) NormalizeBatch(ctx context.Context, batch event.RawBatch) event.NormalizedBatch {
	start := time.Now()
	_, span := n.tracer.Start(ctx, "normalizer.processBatch",
		trace.WithAttributes(tracing.BatchAttributes(n.processor, batch.ID, batch.StartVersion, batch.EndVersion, len(batch.Events))...),
	)
	defer span.End()

	out := event.NormalizedBatch{
		ID:           batch.ID,
		StartVersion: batch.StartVersion,
		EndVersion:   batch.EndVersion,
		Rollback:     batch.Rollback,
		AckToken:     batch.AckToken,
	}
	if batch.Rollback || len(batch.Events) == 0 {
		metrics.NormalizerBatchesProcessed.WithLabelValues(n.processor).Inc()
		return out
	}

	results := make([]normalizeResult, len(batch.Events))
	chunk := (len(batch.Events) + n.workerCount - 1) / n.workerCount

	var g errgroup.Group
	g.SetLimit(n.workerCount)
	for lo := 0; lo < len(batch.Events); lo += chunk {
		hi := min(lo+chunk, len(batch.Events))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				ev, err := n.registry.Normalize(batch.Events[i])
				results[i] = normalizeResult{ev: ev, err: err}
			}
			return nil
		})
	}
	_ = g.Wait()

	out.Events = make([]*event.CanonicalEvent, 0, len(batch.Events))
	for i, res := range results {
		raw := batch.Events[i]
		switch {
		case res.err != nil:
			kind := "internal"
			var nerr *Error
			if errors.As(res.err, &nerr) {
				kind = string(nerr.Kind)
			}
			n.logger.Warn("skip event",
				"batch_id", batch.ID,
				"transaction_version", raw.TransactionVersion,
				"event_index", raw.EventIndex,
				"type", raw.Type,
				"error", res.err,
			)
			metrics.NormalizerErrors.WithLabelValues(n.processor, kind).Inc()
			out.Errors = append(out.Errors, event.EventError{
				TransactionVersion: raw.TransactionVersion,
				EventIndex:         raw.EventIndex,
				Type:               raw.Type,
				Err:                res.err,
			})
		case res.ev == nil:
			out.Skipped++
		default:
			metrics.NormalizerEvents.WithLabelValues(n.processor, res.ev.Standard.String(), res.ev.Kind.String()).Inc()
			out.Events = append(out.Events, res.ev)
		}
	}

	if out.Skipped > 0 {
		metrics.NormalizerSkipped.WithLabelValues(n.processor).Add(float64(out.Skipped))
	}
	metrics.NormalizerBatchesProcessed.WithLabelValues(n.processor).Inc()
	metrics.NormalizerLatency.WithLabelValues(n.processor).Observe(time.Since(start).Seconds())

	n.logger.Debug("batch normalized",
		"batch_id", batch.ID,
		"start_version", batch.StartVersion,
		"end_version", batch.EndVersion,
		"events", len(out.Events),
		"skipped", out.Skipped,
		"errors", len(out.Errors),
	)
	return out
}
