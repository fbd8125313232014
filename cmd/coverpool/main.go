package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"CoverPool/internal/config"
	"CoverPool/internal/engine"
	"CoverPool/internal/ingestion"
	"CoverPool/internal/observability"
	"CoverPool/internal/oracle"
	"CoverPool/internal/persistence"
	"CoverPool/internal/projection"
	"CoverPool/internal/query"
	"CoverPool/internal/server"
	"CoverPool/internal/token"
)

const replayBatchSize = 1000

func main() {
	logger := observability.NewLogger("coverpool")
	logger.Info().Msg("coverpool starting")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("postgres ping")
	}
	logger.Info().Msg("postgres connected")

	migrator := persistence.NewMigrator(db, cfg.MigrationsDir, logger)
	if err := migrator.Up(ctx); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Engine wiring ---
	persistChan := make(chan engine.Output, cfg.PersistChanSize)
	projectionChan := make(chan engine.Output, cfg.ProjectionChanSize)

	oracleCache := oracle.NewCacheClient(cfg.OracleAssets, cfg.OracleMaxAgeSeconds)

	// The in-memory transferer holds no funds at boot: wallets are seeded
	// from COVER_DEV_WALLETS and topped up through the admin faucet. A real
	// custody integration replaces this wiring and drops the faucet.
	transfer := token.NewMemoryTransferer()
	for account, amount := range cfg.DevWallets {
		transfer.Mint(account, amount)
		logger.Info().Str("account", account.String()).Uint64("amount", amount).Msg("seeded dev wallet")
	}

	eng := engine.NewEngine(engine.Config{
		Oracle:         oracleCache,
		Transfer:       transfer,
		Params:         cfg.Params,
		VoteScope:      cfg.VoteScope,
		PersistChan:    persistChan,
		ProjectionChan: projectionChan,
		DBChecker:      persistence.NewPostgresIdempotencyChecker(db),
		LRUCapacity:    cfg.IdempotencyLRUCapacity,
		Logger:         logger,
		Metrics:        metrics,
	})

	// --- Recovery: snapshot restore + event replay ---
	snapMgr := persistence.NewSnapshotManager(db)
	if err := recoverState(ctx, eng, snapMgr, logger, metrics); err != nil {
		logger.Fatal().Err(err).Msg("recovery")
	}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()

	if err := ingestion.EnsureStreams(ctx, js, logger); err != nil {
		logger.Fatal().Err(err).Msg("ensure nats streams")
	}

	quoteChan := make(chan ingestion.RawQuote, 4096)
	subscriber := ingestion.NewNATSSubscriber(js, quoteChan, logger)
	if err := subscriber.Subscribe(ctx); err != nil {
		logger.Fatal().Err(err).Msg("nats subscribe")
	}

	publishChan := make(chan engine.Output, cfg.ProjectionChanSize)
	projWorkerChan := make(chan engine.Output, cfg.ProjectionChanSize)

	// --- Services ---
	queryService := query.NewQueryService(db, metrics)
	httpSrv := server.New(server.Config{
		Engine:     eng,
		Queries:    queryService,
		Oracle:     oracleCache,
		Health:     healthChecker,
		Faucet:     transfer,
		AdminToken: cfg.AdminToken,
		Logger:     logger,
		Metrics:    metrics,
	})

	errChan := make(chan error, 8)

	// 1. Persistence worker: the only consumer of the blocking channel.
	persistWorker := persistence.NewPersistenceWorker(db, persistChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout, logger, metrics)
	go persistWorker.Run(ctx)

	// 2. Fan-out: projection outputs feed both the projection worker and
	// the outbound publisher. Both sides are best-effort.
	go fanOutProjections(ctx, projectionChan, projWorkerChan, publishChan, metrics)

	// 3. Projection worker
	projWorker := projection.NewProjectionWorker(db, projWorkerChan, logger, metrics)
	go func() {
		errChan <- projWorker.Run(ctx)
	}()

	// 4. Outbound event publisher
	publisher := ingestion.NewOutboundPublisher(js, publishChan, logger)
	go func() {
		errChan <- publisher.Run(ctx)
	}()

	// 5. Price feed: NATS quotes into the oracle cache.
	priceFeed := ingestion.NewPriceFeed(oracleCache, quoteChan, logger, metrics)
	go func() {
		errChan <- priceFeed.Run(ctx)
	}()

	// 6. HTTP server
	apiServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpSrv.Router(),
	}
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	// 7. Metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metricsHandler(),
	}
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	// 8. Scheduled expiry sweeps
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SweepSchedule, func() {
		if expired := eng.SweepExpired(); expired > 0 {
			logger.Info().Int("expired", expired).Msg("expiry sweep")
		}
	}); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.SweepSchedule).Msg("bad sweep schedule")
	}
	scheduler.Start()

	// 9. Periodic snapshots
	go runPeriodicSnapshots(ctx, eng, snapMgr, cfg.SnapshotInterval, logger, metrics)

	// 10. Channel depth gauges
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.SetChannelMetrics("persist", len(persistChan), cap(persistChan))
				metrics.SetChannelMetrics("projection", len(projectionChan), cap(projectionChan))
				metrics.SetChannelMetrics("quotes", len(quoteChan), cap(quoteChan))
				metrics.SetChannelMetrics("publish", len(publishChan), cap(publishChan))
			}
		}
	}()

	healthChecker.SetReady(true)
	logger.Info().
		Int64("sequence", eng.Sequence()).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("coverpool ready")

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	// --- Graceful shutdown: stop intake, flush, final snapshot ---
	healthChecker.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	apiServer.Shutdown(shutdownCtx)
	metricsServer.Shutdown(shutdownCtx)
	subscriber.Stop()
	<-scheduler.Stop().Done()

	cancel()
	close(persistChan)
	close(projectionChan)

	// Workers flush on ctx cancel; give them a moment before snapshotting.
	time.Sleep(500 * time.Millisecond)

	if err := takeSnapshot(shutdownCtx, eng, snapMgr, metrics); err != nil {
		logger.Error().Err(err).Msg("final snapshot")
	} else {
		logger.Info().Msg("final snapshot saved")
	}

	logger.Info().Msg("coverpool shutdown complete")
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// recoverState restores the latest verified snapshot and replays the
// event log from there to the head. Any chain break or hash divergence
// aborts startup.
func recoverState(
	ctx context.Context,
	eng *engine.Engine,
	snapMgr *persistence.SnapshotManager,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) error {
	start := time.Now()
	fromSequence := int64(1)

	snap, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if snap != nil {
		state, err := snap.ToEngineState()
		if err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		eng.RestoreFromSnapshot(state)
		fromSequence = snap.Sequence + 1
		logger.Info().Int64("sequence", snap.Sequence).Msg("snapshot restored")
	} else {
		logger.Info().Msg("no snapshot found, cold start")
	}

	replayed := 0
	for {
		rows, err := snapMgr.LoadEventsFrom(ctx, fromSequence, replayBatchSize)
		if err != nil {
			return fmt.Errorf("load events from %d: %w", fromSequence, err)
		}
		if len(rows) == 0 {
			break
		}
		for i := range rows {
			env, err := rows[i].ToEnvelope()
			if err != nil {
				return fmt.Errorf("decode event %d: %w", rows[i].Sequence, err)
			}
			if err := eng.ApplyEnvelope(env); err != nil {
				return err
			}
		}
		fromSequence = rows[len(rows)-1].Sequence + 1
		replayed += len(rows)
	}

	if metrics != nil {
		metrics.ReplayDuration.Set(time.Since(start).Seconds())
	}
	logger.Info().
		Int("replayed", replayed).
		Int64("sequence", eng.Sequence()).
		Dur("elapsed", time.Since(start)).
		Msg("recovery complete")
	return nil
}

// runPeriodicSnapshots takes a snapshot whenever the engine has advanced
// at least interval events past the last one.
func runPeriodicSnapshots(
	ctx context.Context,
	eng *engine.Engine,
	snapMgr *persistence.SnapshotManager,
	interval int64,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	lastSnapSeq, err := snapMgr.GetLatestSequence(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("latest snapshot sequence")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if eng.Sequence()-lastSnapSeq < interval {
				continue
			}
			if err := takeSnapshot(ctx, eng, snapMgr, metrics); err != nil {
				logger.Error().Err(err).Msg("periodic snapshot")
				continue
			}
			lastSnapSeq = eng.Sequence() - 1
			logger.Info().Int64("sequence", lastSnapSeq).Msg("snapshot taken")
		}
	}
}

func takeSnapshot(
	ctx context.Context,
	eng *engine.Engine,
	snapMgr *persistence.SnapshotManager,
	metrics *observability.Metrics,
) error {
	start := time.Now()

	state := eng.CreateSnapshotState()
	data := persistence.FromEngineState(state, time.Now().UTC())

	size, err := snapMgr.SaveSnapshot(ctx, data)
	if err != nil {
		return err
	}
	// The state came straight from the live engine, not from a restore
	// path, so it is trusted for recovery immediately.
	if err := snapMgr.MarkVerified(ctx, data.Sequence); err != nil {
		return err
	}

	if metrics != nil {
		metrics.SnapshotTaken.Inc()
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		metrics.SnapshotSizeBytes.Set(float64(size))
		metrics.SnapshotLastSeq.Set(float64(data.Sequence))
	}
	return nil
}

// fanOutProjections feeds each projection output to the projection
// worker and the outbound publisher. Neither side may block the other:
// full receivers drop, and the projection worker catches up from the
// event log while outbound consumers re-read via JetStream.
func fanOutProjections(
	ctx context.Context,
	in <-chan engine.Output,
	projOut chan<- engine.Output,
	publishOut chan<- engine.Output,
	metrics *observability.Metrics,
) {
	defer close(projOut)
	defer close(publishOut)

	for {
		select {
		case <-ctx.Done():
			return
		case out, ok := <-in:
			if !ok {
				return
			}
			select {
			case projOut <- out:
			default:
				if metrics != nil {
					metrics.ProjectionDrops.WithLabelValues("projection").Inc()
				}
			}
			select {
			case publishOut <- out:
			default:
				if metrics != nil {
					metrics.PublishDrops.Inc()
				}
			}
		}
	}
}
