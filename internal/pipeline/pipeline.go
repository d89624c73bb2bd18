package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/emperorhan/fa-indexer/internal/alert"
	"github.com/emperorhan/fa-indexer/internal/domain/event"
	"github.com/emperorhan/fa-indexer/internal/metrics"
	"github.com/emperorhan/fa-indexer/internal/pipeline/ingester"
	"github.com/emperorhan/fa-indexer/internal/pipeline/normalizer"
	"github.com/emperorhan/fa-indexer/internal/pipeline/retry"
	"github.com/emperorhan/fa-indexer/internal/store"
	"golang.org/x/sync/errgroup"
)

const channelDepthInterval = 5 * time.Second

// ErrSourceExhausted is returned by a Source that will never produce another
// batch. The pipeline drains what it has read and stops cleanly.
var ErrSourceExhausted = errors.New("source exhausted")

// Source delivers raw batches. A batch stays unacknowledged until the
// ingester has committed or abandoned it.
type Source interface {
	Next(ctx context.Context) (event.RawBatch, error)
	Ack(ctx context.Context, token string) error
}

// Rewinder is implemented by sources that can redeliver every batch that was
// read but not acknowledged. The pipeline rewinds before each restart.
type Rewinder interface {
	Rewind()
}

type Config struct {
	Processor         string
	NormalizerWorkers int
	ReconcileShards   int
	ChannelBufferSize int

	RetryMaxAttempts  int
	RetryDelayInitial time.Duration
	RetryDelayMax     time.Duration

	// MaxRestarts bounds consecutive in-process restarts after a failed run.
	// Zero returns the first failure to the caller.
	MaxRestarts         int
	RestartDelayInitial time.Duration
	RestartDelayMax     time.Duration

	Alerter alert.Alerter
}

// Pipeline wires source -> normalizer -> ingester for one processor.
type Pipeline struct {
	cfg      Config
	source   Source
	sink     store.Sink
	registry *normalizer.Registry
	health   *Health
	alerter  alert.Alerter
	backoff  retry.Policy
	logger   *slog.Logger

	// commits counts batches committed over the pipeline's lifetime.
	commits atomic.Int64
}

func New(cfg Config, source Source, sink store.Sink, registry *normalizer.Registry, logger *slog.Logger) *Pipeline {
	if cfg.Processor == "" {
		cfg.Processor = "default"
	}
	if cfg.ChannelBufferSize < 0 {
		cfg.ChannelBufferSize = 0
	}
	if registry == nil {
		registry = normalizer.DefaultRegistry()
	}
	alerter := cfg.Alerter
	if alerter == nil {
		alerter = alert.NoopAlerter{}
	}
	return &Pipeline{
		cfg:      cfg,
		source:   source,
		sink:     sink,
		registry: registry,
		health:   NewHealth(cfg.Processor),
		alerter:  alerter,
		backoff: retry.Policy{
			InitialDelay: cfg.RestartDelayInitial,
			MaxDelay:     cfg.RestartDelayMax,
		},
		logger: logger.With("component", "pipeline", "processor", cfg.Processor),
	}
}

func (p *Pipeline) Processor() string { return p.cfg.Processor }

func (p *Pipeline) Health() *Health { return p.health }

// Run processes batches until ctx is done or the source is exhausted. A
// failed run is restarted with fresh channels after the source is rewound;
// committed batches replay as no-ops.
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.health.SetStatus(HealthStatusStopped)

	restarts := 0
	for {
		committedBefore := p.commits.Load()
		err := p.runOnce(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A run that made progress starts a new failure streak.
		if p.commits.Load() > committedBefore {
			restarts = 0
		}

		p.reportFailure(ctx, err, restarts)
		if restarts >= p.cfg.MaxRestarts {
			return err
		}
		restarts++

		delay := p.backoff.Delay(restarts)
		p.logger.Warn("restarting pipeline", "restart", restarts, "max_restarts", p.cfg.MaxRestarts, "delay", delay)
		if err := retry.SleepContext(ctx, delay); err != nil {
			return err
		}
		if r, ok := p.source.(Rewinder); ok {
			r.Rewind()
		}
	}
}

func (p *Pipeline) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v\n%s", r, debug.Stack())
		}
	}()
	return p.runPipeline(ctx)
}

// runPipeline builds every stage and channel fresh so a restart starts clean.
func (p *Pipeline) runPipeline(ctx context.Context) error {
	rawCh := make(chan event.RawBatch, p.cfg.ChannelBufferSize)
	normalizedCh := make(chan event.NormalizedBatch, p.cfg.ChannelBufferSize)

	norm := normalizer.New(p.registry, rawCh, normalizedCh, p.cfg.NormalizerWorkers, p.logger,
		normalizer.WithProcessor(p.cfg.Processor),
	)
	ingest := ingester.New(p.sink, normalizedCh, p.logger,
		ingester.WithProcessor(p.cfg.Processor),
		ingester.WithShards(p.cfg.ReconcileShards),
		ingester.WithRetryConfig(p.cfg.RetryMaxAttempts, p.cfg.RetryDelayInitial, p.cfg.RetryDelayMax),
		ingester.WithAcker(p.source),
		ingester.WithAlerter(p.alerter),
		ingester.WithResultHook(p.observeBatch),
	)

	p.logger.Info("pipeline starting",
		"normalizer_workers", p.cfg.NormalizerWorkers,
		"reconcile_shards", p.cfg.ReconcileShards,
		"channel_buffer", p.cfg.ChannelBufferSize,
	)

	g, gCtx := errgroup.WithContext(ctx)

	// Channel depth sampling for the PipelineChannelDepth gauge. It stops with
	// the ingester so a drained source ends the group.
	ingestDone := make(chan struct{})
	g.Go(func() error {
		ticker := time.NewTicker(channelDepthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ingestDone:
				return nil
			case <-ticker.C:
				metrics.PipelineChannelDepth.WithLabelValues(p.cfg.Processor, "raw_batch").Set(float64(len(rawCh)))
				metrics.PipelineChannelDepth.WithLabelValues(p.cfg.Processor, "normalized").Set(float64(len(normalizedCh)))
			}
		}
	})

	g.Go(func() error {
		defer close(rawCh)
		return p.readSource(gCtx, rawCh)
	})
	g.Go(func() error {
		defer close(normalizedCh)
		return norm.Run(gCtx)
	})
	g.Go(func() error {
		defer close(ingestDone)
		return ingest.Run(gCtx)
	})

	return g.Wait()
}

func (p *Pipeline) readSource(ctx context.Context, out chan<- event.RawBatch) error {
	for {
		batch, err := p.source.Next(ctx)
		if errors.Is(err, ErrSourceExhausted) {
			p.logger.Info("source exhausted")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read source: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- batch:
		}
	}
}

// observeBatch runs after every batch the ingester finishes. Failures are
// accounted for once the run stops, in reportFailure.
func (p *Pipeline) observeBatch(res ingester.BatchResult, err error) {
	if err != nil {
		return
	}
	p.commits.Add(1)
	p.health.RecordLatency(res.Duration)
	if p.health.RecordSuccess(res.EndVersion) {
		p.logger.Info("pipeline recovered", "end_version", res.EndVersion)
		p.sendAlert(context.Background(), alert.Alert{
			Type:      alert.AlertTypeRecovery,
			Processor: p.cfg.Processor,
			Title:     "Pipeline recovered",
			Message:   "batches are committing again",
			Fields:    map[string]string{"end_version": strconv.FormatInt(res.EndVersion, 10)},
		})
	}
}

func (p *Pipeline) reportFailure(ctx context.Context, err error, restarts int) {
	p.logger.Error("pipeline run failed", "error", err, "restarts", restarts)
	p.sendAlert(ctx, alert.Alert{
		Type:      alert.AlertTypePipelineFailure,
		Processor: p.cfg.Processor,
		Title:     "Pipeline run failed",
		Message:   err.Error(),
		Fields:    map[string]string{"restarts": strconv.Itoa(restarts)},
	})
	if p.health.RecordFailure() {
		p.sendAlert(ctx, alert.Alert{
			Type:      alert.AlertTypeUnhealthy,
			Processor: p.cfg.Processor,
			Title:     "Pipeline unhealthy",
			Message:   err.Error(),
		})
	}
}

func (p *Pipeline) sendAlert(ctx context.Context, a alert.Alert) {
	if err := p.alerter.Send(ctx, a); err != nil {
		p.logger.Warn("send alert failed", "type", a.Type, "error", err)
	}
}
