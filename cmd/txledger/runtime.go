package main

import (
	"TxLedger/internal/config"
	"TxLedger/internal/ingestion"
	"TxLedger/internal/ledger"
	"TxLedger/internal/observability"
	"TxLedger/internal/persistence"
	"TxLedger/internal/pipeline"
	"TxLedger/internal/projection"
	"TxLedger/internal/query"
	"context"
	"database/sql"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// runtime holds the process-wide collaborators shared by subcommands.
type runtime struct {
	cfg     config.Config
	runID   uuid.UUID
	logger  zerolog.Logger
	metrics *observability.Metrics
	health  *observability.HealthChecker
	store   *ledger.Store

	nc *nats.Conn
	js jetstream.JetStream
	db *sql.DB
}

// newRuntime builds the logger, metrics and optional metrics server. The
// returned context ends on SIGINT or SIGTERM.
func newRuntime(parent context.Context, cfg config.Config) (context.Context, *runtime, func()) {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)

	runID := uuid.New()
	base := observability.NewBaseLogger(os.Stderr, observability.ParseLogLevel(cfg.LogLevel)).
		With().Str("run_id", runID.String()).Logger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rt := &runtime{
		cfg:     cfg,
		runID:   runID,
		logger:  base,
		metrics: observability.NewMetrics(reg),
		health:  observability.NewHealthChecker(),
		store:   ledger.NewStore(),
	}

	// The metrics server outlives the signal context so the final state
	// stays scrapeable until the process exits.
	srvCtx, stopSrv := context.WithCancel(context.WithoutCancel(parent))
	if cfg.MetricsAddr != "" {
		logger := observability.Component(base, "metrics")
		mux := observability.NewMux(reg, rt.health)
		query.NewLiveHandler(rt.store, observability.Component(base, "query")).Register(mux)
		go func() {
			if err := observability.Serve(srvCtx, cfg.MetricsAddr, mux, logger); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	cleanup := func() {
		stopSrv()
		stop()
		if rt.nc != nil {
			rt.nc.Drain()
		}
		if rt.db != nil {
			rt.db.Close()
		}
	}
	return ctx, rt, cleanup
}

func (rt *runtime) component(name string) zerolog.Logger {
	return observability.Component(rt.logger, name)
}

func (rt *runtime) connectNATS() (jetstream.JetStream, error) {
	if rt.js != nil {
		return rt.js, nil
	}
	nc, js, err := ingestion.ConnectNATS(rt.cfg.NATSURL, rt.component("nats"))
	if err != nil {
		return nil, err
	}
	rt.nc, rt.js = nc, js
	return js, nil
}

func (rt *runtime) openDB(ctx context.Context) (*sql.DB, error) {
	if rt.db != nil {
		return rt.db, nil
	}
	db, err := persistence.Open(ctx, rt.cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	rt.db = db
	return db, nil
}

// sinks returns stdout CSV plus whichever optional sinks are configured.
func (rt *runtime) sinks(ctx context.Context, stdout io.Writer) ([]projection.Sink, error) {
	sinks := []projection.Sink{projection.NewCSVSink(stdout)}

	if rt.cfg.PostgresDSN != "" {
		db, err := rt.openDB(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := persistence.NewMigrator(db, rt.cfg.MigrationsDir, rt.component("migrate")).Up(ctx); err != nil {
			return nil, err
		}
		sinks = append(sinks, persistence.NewAccountWriter(db, rt.runID, persistence.DefaultBatchSize))
	}

	if rt.cfg.NATSOutputSubject != "" {
		js, err := rt.connectNATS()
		if err != nil {
			return nil, err
		}
		if err := projection.EnsureOutputStream(ctx, js, rt.cfg.NATSOutputStream, rt.cfg.NATSOutputSubject); err != nil {
			return nil, err
		}
		sinks = append(sinks, projection.NewNATSSink(js, rt.cfg.NATSOutputSubject, rt.runID.String()))
	}

	return sinks, nil
}

func (rt *runtime) run(ctx context.Context, src ingestion.Source, sinks []projection.Sink) error {
	_, err := pipeline.Run(ctx, src, pipeline.Options{
		QueueDepth: rt.cfg.QueueDepth,
		Store:      rt.store,
		Logger:     rt.logger,
		Metrics:    rt.metrics,
		Health:     rt.health,
		Sinks:      sinks,
	})
	if err != nil {
		rt.component("main").Error().Err(err).Msg("run failed")
	}
	return err
}
