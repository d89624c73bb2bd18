package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emperorhan/fa-indexer/internal/admin"
	"github.com/emperorhan/fa-indexer/internal/alert"
	"github.com/emperorhan/fa-indexer/internal/circuitbreaker"
	"github.com/emperorhan/fa-indexer/internal/config"
	"github.com/emperorhan/fa-indexer/internal/metrics"
	"github.com/emperorhan/fa-indexer/internal/pipeline"
	"github.com/emperorhan/fa-indexer/internal/pipeline/normalizer"
	"github.com/emperorhan/fa-indexer/internal/store"
	"github.com/emperorhan/fa-indexer/internal/store/memory"
	"github.com/emperorhan/fa-indexer/internal/store/postgres"
	redispkg "github.com/emperorhan/fa-indexer/internal/store/redis"
	"github.com/emperorhan/fa-indexer/internal/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName = "fa-indexer"

	dbPoolExhaustionRatio = 0.8
)

type dbStatsProvider interface {
	Stats() sql.DBStats
}

type dbPoolStatsGauges struct {
	open         prometheus.Gauge
	inUse        prometheus.Gauge
	idle         prometheus.Gauge
	waitCount    prometheus.Gauge
	waitDuration prometheus.Gauge
}

func collectDBPoolStats(db dbStatsProvider, gauges dbPoolStatsGauges) (stats sql.DBStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("db pool stats collection panicked: %v", r)
		}
	}()
	if db == nil {
		return sql.DBStats{}, fmt.Errorf("db stats provider is nil")
	}

	stats = db.Stats()
	gauges.open.Set(float64(stats.OpenConnections))
	gauges.inUse.Set(float64(stats.InUse))
	gauges.idle.Set(float64(stats.Idle))
	gauges.waitCount.Set(float64(stats.WaitCount))
	gauges.waitDuration.Set(stats.WaitDuration.Seconds())
	return stats, nil
}

// dbPoolExhaustionAlert reports whether more than 80% of a bounded pool is in use.
func dbPoolExhaustionAlert(processor string, stats sql.DBStats) (alert.Alert, bool) {
	if stats.MaxOpenConnections <= 0 {
		return alert.Alert{}, false
	}
	usage := float64(stats.InUse) / float64(stats.MaxOpenConnections)
	if usage <= dbPoolExhaustionRatio {
		return alert.Alert{}, false
	}
	return alert.Alert{
		Type:      alert.AlertTypeDBPool,
		Processor: processor,
		Title:     "DB connection pool near exhaustion",
		Message:   fmt.Sprintf("Pool usage: %d/%d (%.0f%%)", stats.InUse, stats.MaxOpenConnections, usage*100),
	}, true
}

func startDBPoolStatsPump(ctx context.Context, db dbStatsProvider, intervalMS int, processor string, alerter alert.Alerter, logger *slog.Logger) {
	if db == nil || intervalMS <= 0 {
		return
	}

	gauges := dbPoolStatsGauges{
		open:         metrics.DBPoolOpen,
		inUse:        metrics.DBPoolInUse,
		idle:         metrics.DBPoolIdle,
		waitCount:    metrics.DBPoolWaitCount,
		waitDuration: metrics.DBPoolWaitDurationSeconds,
	}

	sample := func() {
		stats, err := collectDBPoolStats(db, gauges)
		if err != nil {
			logger.Warn("failed to collect db pool stats", "error", err)
			return
		}
		if a, ok := dbPoolExhaustionAlert(processor, stats); ok && alerter != nil {
			if err := alerter.Send(ctx, a); err != nil {
				logger.Warn("db pool alert failed", "error", err)
			}
		}
	}

	ticker := time.NewTicker(time.Duration(intervalMS) * time.Millisecond)
	go func() {
		defer ticker.Stop()
		sample()
		for {
			select {
			case <-ctx.Done():
				logger.Info("db pool stats sampler stopped", "cause", "context_done")
				return
			case <-ticker.C:
				sample()
			}
		}
	}()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func buildAlerter(cfg config.AlertConfig, logger *slog.Logger) alert.Alerter {
	if cfg.WebhookURL == "" {
		return alert.NoopAlerter{}
	}
	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:             "alert_webhook",
		FailureThreshold: cfg.BreakerFailureThreshold,
		Cooldown:         cfg.BreakerCooldown,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return alert.NewCooldownAlerter(cfg.Cooldown, logger, alert.NewWebhookAlerter(cfg.WebhookURL, alert.WithBreaker(breaker)))
}

// stateStore is the opened state backend: the pipeline sink, a reader for the
// admin API, and pool stats when the backend has a connection pool.
type stateStore struct {
	sink   store.Sink
	reader store.StateReader
	stats  dbStatsProvider
	close  func()
}

// buildStore opens the configured state store. On error nothing is left open.
func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stateStore, error) {
	st := &stateStore{close: func() {}}
	switch cfg.Store.Backend {
	case config.StoreBackendMemory:
		logger.Warn("using in-memory store; state is lost on exit")
		mem := memory.New()
		st.sink, st.reader = mem, mem
	case config.StoreBackendPostgres:
		db, err := postgres.New(postgres.Config{
			URL:                cfg.DB.URL,
			MaxOpenConns:       cfg.DB.MaxOpenConns,
			MaxIdleConns:       cfg.DB.MaxIdleConns,
			ConnMaxLifetime:    cfg.DB.ConnMaxLifetime,
			StatementTimeoutMS: cfg.DB.StatementTimeoutMS,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := db.RunMigrations(ctx, cfg.DB.MigrationsDir); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("connected to database", "migrations_dir", cfg.DB.MigrationsDir)
		pg := postgres.NewSink(db)
		st.sink, st.reader, st.stats = pg, pg, db.DB
		st.close = func() { db.Close() }
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}

	if cfg.Cache.Size > 0 {
		st.sink = store.NewCachedSink(st.sink, cfg.Cache.Size, cfg.Cache.TTL)
	}
	return st, nil
}

// newAdminHandler wraps the admin routes with access logging outside rate
// limiting, so throttled requests are logged too.
func newAdminHandler(srv *admin.Server, limiter *admin.RateLimiter, logger *slog.Logger) http.Handler {
	return admin.AccessLog(logger, limiter.Wrap(srv.Handler()))
}

type healthReporter interface {
	Snapshot() pipeline.HealthSnapshot
	Ready() bool
}

func newHealthMux(health healthReporter, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		if !health.Ready() {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(health.Snapshot()); err != nil {
			logger.Warn("failed to write readiness response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// runHTTPServer serves handler on port until ctx is done.
func runHTTPServer(ctx context.Context, name string, port int, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("http server shutdown error", "server", name, "error", err)
		}
	}()

	logger.Info("http server started", "server", name, "port", port)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTracing, err := tracing.Init(ctx, serviceName, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.OTLPInsecure, cfg.Telemetry.SampleRatio)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	if cfg.Telemetry.OTLPEndpoint != "" {
		logger.Info("tracing enabled", "endpoint", cfg.Telemetry.OTLPEndpoint, "sample_ratio", cfg.Telemetry.SampleRatio)
	}

	registry, err := normalizer.LoadRegistry(cfg.Pipeline.EventRegistryPath)
	if err != nil {
		return err
	}

	st, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	processor := cfg.Pipeline.ProcessorName
	if cp, err := st.sink.Checkpoint(ctx, processor); err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	} else if cp != nil {
		logger.Info("resuming processor", "processor", processor, "last_success_version", cp.LastSuccessVersion)
	}

	stream, err := redispkg.NewStream(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer stream.Close()

	source := redispkg.NewSource(stream.Client(), redispkg.SourceConfig{
		Processor: processor,
		Stream:    cfg.Source.Stream,
		Group:     cfg.Source.Group,
		Consumer:  cfg.Source.Consumer,
		StartID:   cfg.Source.StartID,
		Block:     cfg.Source.Block,
		ReadRPS:   cfg.Source.ReadRPS,
		ReadBurst: cfg.Source.ReadBurst,
	}, logger)
	if err := source.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("prepare source: %w", err)
	}

	alerter := buildAlerter(cfg.Alert, logger)
	p := pipeline.New(pipeline.Config{
		Processor:           processor,
		NormalizerWorkers:   cfg.Pipeline.NormalizerWorkers,
		ReconcileShards:     cfg.Pipeline.ReconcileShards,
		ChannelBufferSize:   cfg.Pipeline.ChannelBufferSize,
		RetryMaxAttempts:    cfg.Ingest.RetryMaxAttempts,
		RetryDelayInitial:   cfg.Ingest.RetryDelayInitial,
		RetryDelayMax:       cfg.Ingest.RetryDelayMax,
		MaxRestarts:         cfg.Pipeline.MaxRestarts,
		RestartDelayInitial: cfg.Pipeline.RestartDelayInitial,
		RestartDelayMax:     cfg.Pipeline.RestartDelayMax,
		Alerter:             alerter,
	}, source, st.sink, registry, logger)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runHTTPServer(gCtx, "health", cfg.Server.HealthPort, newHealthMux(p.Health(), logger), logger)
	})
	if cfg.Server.AdminPort > 0 {
		limiter := admin.NewRateLimiter(cfg.Server.AdminRateLimitRPS, cfg.Server.AdminRateLimitBurst, logger)
		defer limiter.Stop()
		adminSrv := admin.NewServer(processor, st.reader, logger, admin.WithHealthReporter(p.Health()))
		g.Go(func() error {
			return runHTTPServer(gCtx, "admin", cfg.Server.AdminPort, newAdminHandler(adminSrv, limiter, logger), logger)
		})
		logger.Info("admin API enabled", "port", cfg.Server.AdminPort)
	}
	g.Go(func() error {
		return p.Run(gCtx)
	})
	startDBPoolStatsPump(gCtx, st.stats, cfg.DB.PoolStatsIntervalMS, processor, alerter, logger)

	return g.Wait()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	logger.Info("starting fa-indexer",
		"processor", cfg.Pipeline.ProcessorName,
		"store_backend", cfg.Store.Backend,
		"source_stream", cfg.Source.Stream,
		"source_group", cfg.Source.Group,
		"source_consumer", cfg.Source.Consumer,
		"normalizer_workers", cfg.Pipeline.NormalizerWorkers,
		"reconcile_shards", cfg.Pipeline.ReconcileShards,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("indexer exited with error", "error", err)
		stop()
		os.Exit(1)
	}
	logger.Info("indexer shut down gracefully")
}
