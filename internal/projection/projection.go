package projection

import (
	"TxLedger/internal/ledger"
	"TxLedger/internal/observability"
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Sink receives the final account records, ordered by client id.
type Sink interface {
	Write(ctx context.Context, accounts []ledger.Account) error
}

// Named sinks report a label for logs and metrics.
type Named interface {
	Name() string
}

// Project snapshots every account ordered by client id. Call it only after
// the dispatcher has been closed; nothing mutates the store afterwards.
// It panics if any account breaks the balance identity.
func Project(store *ledger.Store) []ledger.Account {
	accounts := store.Accounts.Snapshot()
	if err := ledger.ValidateAll(accounts); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}
	return accounts
}

// Publisher hands one projection to a set of sinks.
type Publisher struct {
	sinks   []Sink
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewPublisher(logger zerolog.Logger, metrics *observability.Metrics, sinks ...Sink) *Publisher {
	return &Publisher{
		sinks:   sinks,
		logger:  logger,
		metrics: metrics,
	}
}

// Publish writes accounts to every sink. A failing sink does not stop the
// others; all failures are returned joined.
func (p *Publisher) Publish(ctx context.Context, accounts []ledger.Account) error {
	if p.metrics != nil {
		p.metrics.AccountsProjected.Set(float64(len(accounts)))
	}

	var errs []error
	for _, sink := range p.sinks {
		name := sinkName(sink)
		if err := sink.Write(ctx, accounts); err != nil {
			p.logger.Error().Err(err).Str("sink", name).Msg("sink write failed")
			if p.metrics != nil {
				p.metrics.SinkErrors.WithLabelValues(name).Inc()
			}
			errs = append(errs, fmt.Errorf("sink %s: %w", name, err))
			continue
		}
		p.logger.Debug().Str("sink", name).Int("accounts", len(accounts)).Msg("projection written")
	}
	return errors.Join(errs...)
}

func sinkName(s Sink) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}
