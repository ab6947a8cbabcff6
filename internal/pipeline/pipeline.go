package pipeline

import (
	"TxLedger/internal/core"
	"TxLedger/internal/dispatch"
	"TxLedger/internal/ingestion"
	"TxLedger/internal/ledger"
	"TxLedger/internal/observability"
	"TxLedger/internal/projection"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Options wires the collaborators of one run. Metrics, Health and Store may
// be nil; a nil Store gets a fresh one.
type Options struct {
	QueueDepth int
	Store      *ledger.Store
	Logger     zerolog.Logger
	Metrics    *observability.Metrics
	Health     *observability.HealthChecker
	Sinks      []projection.Sink
}

// Result summarises a finished run.
type Result struct {
	Accounts     []ledger.Account
	Read         int64
	DecodeErrors int64
	Dispatch     dispatch.Stats
	Duration     time.Duration
}

// Run consumes src until it is exhausted or ctx ends, applies every event,
// then writes the final balances to the sinks.
//
// Ending ctx only stops intake: events already handed to workers are still
// applied, and the projection is still written.
func Run(ctx context.Context, src ingestion.Source, opts Options) (*Result, error) {
	start := time.Now()
	logger := observability.Component(opts.Logger, "pipeline")

	store := opts.Store
	if store == nil {
		store = ledger.NewStore()
	}
	engine := core.NewEngine(store, observability.Component(opts.Logger, "engine"), opts.Metrics)
	d := dispatch.New(engine, opts.QueueDepth, observability.Component(opts.Logger, "dispatch"), opts.Metrics)

	setPhase(opts.Health, observability.PhaseConsuming)
	res := &Result{}
	readErr := consume(ctx, src, d, res, logger, opts.Metrics)
	setPhase(opts.Health, observability.PhaseDraining)
	defer setPhase(opts.Health, observability.PhaseDone)

	closeErr := d.Close()
	res.Dispatch = d.Stats()
	if readErr != nil {
		return res, readErr
	}
	if closeErr != nil {
		return res, fmt.Errorf("join workers: %w", closeErr)
	}

	res.Accounts = projection.Project(store)

	// Output is written even when intake was cut short by ctx.
	outCtx := context.WithoutCancel(ctx)
	pub := projection.NewPublisher(observability.Component(opts.Logger, "projection"), opts.Metrics, opts.Sinks...)
	if err := pub.Publish(outCtx, res.Accounts); err != nil {
		return res, err
	}

	res.Duration = time.Since(start)
	logger.Info().
		Int64("events_read", res.Read).
		Int64("decode_errors", res.DecodeErrors).
		Int64("applied", res.Dispatch.Applied).
		Int64("rejected", res.Dispatch.Rejected).
		Int64("dropped", res.Dispatch.Dropped).
		Int("clients", res.Dispatch.Workers).
		Int("accounts", len(res.Accounts)).
		Dur("duration", res.Duration).
		Msg("run complete")

	return res, nil
}

func setPhase(h *observability.HealthChecker, p observability.Phase) {
	if h != nil {
		h.SetPhase(p)
	}
}

func consume(
	ctx context.Context,
	src ingestion.Source,
	d *dispatch.Dispatcher,
	res *Result,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) error {
	for {
		evt, err := src.Next(ctx)
		if err != nil {
			if de, ok := ingestion.AsDecodeError(err); ok {
				res.Read++
				res.DecodeErrors++
				if metrics != nil {
					metrics.EventsRead.Inc()
					metrics.DecodeErrors.WithLabelValues(string(de.Kind)).Inc()
				}
				logger.Warn().
					Str("kind", string(de.Kind)).
					Int64("position", de.Position).
					Err(de.Err).
					Msg("skipping malformed record")
				continue
			}
			if ingestion.IsEndOfStream(err) {
				return nil
			}
			if ctx.Err() != nil {
				logger.Info().Err(ctx.Err()).Msg("intake stopped")
				return nil
			}
			return fmt.Errorf("read source: %w", err)
		}

		res.Read++
		if metrics != nil {
			metrics.EventsRead.Inc()
		}

		if err := d.Submit(ctx, evt); err != nil {
			switch {
			case errors.Is(err, dispatch.ErrWorkerGone):
				continue
			case ctx.Err() != nil:
				logger.Info().Err(ctx.Err()).Msg("intake stopped")
				return nil
			default:
				return fmt.Errorf("submit %s: %w", evt, err)
			}
		}
	}
}
