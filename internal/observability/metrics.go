package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the transaction engine.
type Metrics struct {
	// --- Ingestion ---
	EventsRead   prometheus.Counter
	DecodeErrors *prometheus.CounterVec

	// --- Core Processing ---
	EventsApplied  *prometheus.CounterVec
	EventsRejected *prometheus.CounterVec
	ApplyDuration  *prometheus.HistogramVec

	// --- Dispatcher ---
	WorkersActive prometheus.Gauge
	WorkersTotal  prometheus.Counter
	EventsDropped *prometheus.CounterVec
	EnqueueWait   prometheus.Histogram

	// --- Projection ---
	AccountsProjected prometheus.Gauge
	SinkErrors        *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer for the process-wide /metrics endpoint
// and a fresh prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		// Ingestion
		EventsRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "txledger_events_read_total",
			Help: "Records pulled from the event source, including malformed ones",
		}),

		DecodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "txledger_decode_errors_total",
			Help: "Malformed records skipped at the ingestion boundary",
		}, []string{"kind"}),

		// Core Processing
		EventsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "txledger_events_applied_total",
			Help: "Events successfully applied by the rule engine",
		}, []string{"event_type"}),

		EventsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "txledger_events_rejected_total",
			Help: "Events rejected by a business rule",
		}, []string{"event_type", "reason"}),

		ApplyDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "txledger_apply_duration_seconds",
			Help:    "Time to apply a single event",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		// Dispatcher
		WorkersActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "txledger_workers_active",
			Help: "Per-client workers currently running",
		}),

		WorkersTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "txledger_workers_started_total",
			Help: "Per-client workers started since process start",
		}),

		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "txledger_events_dropped_total",
			Help: "Events the dispatcher could not hand to a worker",
		}, []string{"reason"}),

		EnqueueWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "txledger_enqueue_wait_seconds",
			Help:    "Time the producer spent blocked on a full client queue",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
		}),

		// Projection
		AccountsProjected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "txledger_accounts_projected",
			Help: "Accounts in the final projection",
		}),

		SinkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "txledger_sink_errors_total",
			Help: "Failures writing the final projection",
		}, []string{"sink"}),
	}
}
