package dispatch

import (
	"TxLedger/internal/core"
	"TxLedger/internal/event"
	"TxLedger/internal/observability"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultQueueDepth is the per-client queue capacity used when none is configured.
const DefaultQueueDepth = 50

var (
	// ErrClosed is returned by Submit after Close has been called.
	ErrClosed = errors.New("dispatcher closed")
	// ErrWorkerGone is returned by Submit when the client's worker has stopped.
	// The event is dropped.
	ErrWorkerGone = errors.New("client worker gone")
)

// Applier applies one event. A returned error wrapping core.ErrRejected is a
// business rejection and the worker keeps going; any other error stops the
// client's worker.
type Applier interface {
	Apply(evt event.Transaction) error
}

// Stats counts what happened to submitted events.
type Stats struct {
	Submitted int64
	Applied   int64
	Rejected  int64
	Dropped   int64
	Workers   int
}

type worker struct {
	client event.ClientID
	queue  chan event.Transaction
	done   chan struct{}
}

// Dispatcher fans events out to one sequential worker per client. Events for
// the same client are applied in submission order; different clients run in
// parallel. A full client queue blocks Submit.
type Dispatcher struct {
	applier    Applier
	queueDepth int
	logger     zerolog.Logger
	metrics    *observability.Metrics

	mu       sync.Mutex
	workers  map[event.ClientID]*worker
	closed   bool
	inflight sync.WaitGroup
	group    errgroup.Group

	submitted atomic.Int64
	applied   atomic.Int64
	rejected  atomic.Int64
	dropped   atomic.Int64
}

func New(applier Applier, queueDepth int, logger zerolog.Logger, metrics *observability.Metrics) *Dispatcher {
	if queueDepth < 1 {
		queueDepth = DefaultQueueDepth
	}
	return &Dispatcher{
		applier:    applier,
		queueDepth: queueDepth,
		logger:     logger,
		metrics:    metrics,
		workers:    make(map[event.ClientID]*worker),
	}
}

// Submit hands evt to its client's worker, starting the worker on first use.
// It blocks while the client's queue is full and returns ctx.Err() if ctx
// ends first.
func (d *Dispatcher) Submit(ctx context.Context, evt event.Transaction) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.drop(evt, "closed")
		return ErrClosed
	}
	w, ok := d.workers[evt.Client]
	if !ok {
		w = d.spawn(evt.Client)
	}
	d.inflight.Add(1)
	d.mu.Unlock()
	defer d.inflight.Done()

	d.submitted.Add(1)

	select {
	case <-w.done:
		d.drop(evt, "worker_gone")
		return ErrWorkerGone
	default:
	}

	select {
	case w.queue <- evt:
		return nil
	default:
	}

	start := time.Now()
	select {
	case w.queue <- evt:
		if d.metrics != nil {
			d.metrics.EnqueueWait.Observe(time.Since(start).Seconds())
		}
		return nil
	case <-w.done:
		d.drop(evt, "worker_gone")
		return ErrWorkerGone
	case <-ctx.Done():
		d.drop(evt, "cancelled")
		return ctx.Err()
	}
}

// spawn must be called with d.mu held.
func (d *Dispatcher) spawn(client event.ClientID) *worker {
	w := &worker{
		client: client,
		queue:  make(chan event.Transaction, d.queueDepth),
		done:   make(chan struct{}),
	}
	d.workers[client] = w

	if d.metrics != nil {
		d.metrics.WorkersActive.Inc()
		d.metrics.WorkersTotal.Inc()
	}
	d.logger.Debug().Uint16("client", uint16(client)).Msg("worker started")

	d.group.Go(func() error {
		return d.run(w)
	})
	return w
}

func (d *Dispatcher) run(w *worker) error {
	defer close(w.done)
	if d.metrics != nil {
		defer d.metrics.WorkersActive.Dec()
	}

	for evt := range w.queue {
		err := d.applier.Apply(evt)
		switch {
		case err == nil:
			d.applied.Add(1)
		case errors.Is(err, core.ErrRejected):
			d.rejected.Add(1)
		default:
			d.logger.Error().Err(err).
				Uint16("client", uint16(w.client)).
				Uint32("tx", uint32(evt.Tx)).
				Msg("worker stopped")
			return fmt.Errorf("client %d: %w", w.client, err)
		}
	}
	return nil
}

func (d *Dispatcher) drop(evt event.Transaction, reason string) {
	d.dropped.Add(1)
	if d.metrics != nil {
		d.metrics.EventsDropped.WithLabelValues(reason).Inc()
	}
	d.logger.Warn().
		Str("type", evt.Type.String()).
		Uint16("client", uint16(evt.Client)).
		Uint32("tx", uint32(evt.Tx)).
		Str("reason", reason).
		Msg("event dropped")
}

// Close stops intake, lets every worker drain its queue and waits for all of
// them. It returns the first worker failure, if any. Events left in the queue
// of a failed worker are counted as dropped.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	d.mu.Unlock()

	d.inflight.Wait()

	for _, w := range d.workers {
		close(w.queue)
	}
	err := d.group.Wait()

	for _, w := range d.workers {
		for evt := range w.queue {
			d.drop(evt, "worker_gone")
		}
	}

	d.logger.Debug().Int("workers", len(d.workers)).Msg("all workers joined")
	return err
}

// Stats returns a snapshot of the event counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	workers := len(d.workers)
	d.mu.Unlock()

	return Stats{
		Submitted: d.submitted.Load(),
		Applied:   d.applied.Load(),
		Rejected:  d.rejected.Load(),
		Dropped:   d.dropped.Load(),
		Workers:   workers,
	}
}
