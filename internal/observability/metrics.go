package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for MarginlyLedger.
type Metrics struct {
	// --- Intent processing ---
	IntentsEncoded  *prometheus.CounterVec
	IntentsRejected *prometheus.CounterVec
	EncodeDuration  *prometheus.HistogramVec
	IngestToEncode  *prometheus.HistogramVec

	// --- Chain reads ---
	RPCCalls      *prometheus.CounterVec
	RPCErrors     *prometheus.CounterVec
	RPCDuration   *prometheus.HistogramVec
	RPCRetries    prometheus.Counter
	SnapshotBlock prometheus.Gauge

	// --- Channel & Backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupTier2Duration    prometheus.Histogram

	// --- Persistence ---
	PersistIntentsWritten prometheus.Counter
	PersistBatchSize      prometheus.Histogram
	PersistBatchDur       prometheus.Histogram
	PersistErrors         *prometheus.CounterVec

	// --- Previews & API ---
	PreviewsServed *prometheus.CounterVec
	QueryRequests  *prometheus.CounterVec
	QueryDuration  *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on reg, or on the default
// registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}
	rpcBuckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

	return &Metrics{
		IntentsEncoded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marginly_intents_encoded_total",
			Help: "Intents encoded into execute calldata",
		}, []string{"call_type"}),

		IntentsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marginly_intents_rejected_total",
			Help: "Intents rejected (duplicate, validation, arithmetic)",
		}, []string{"action", "reason"}),

		EncodeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marginly_encode_duration_seconds",
			Help:    "Time to encode a single intent",
			Buckets: latencyBuckets,
		}, []string{"action"}),

		IngestToEncode: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marginly_ingest_to_encode_seconds",
			Help:    "Intent receive to encode complete",
			Buckets: latencyBuckets,
		}, []string{"source"}),

		RPCCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marginly_rpc_calls_total",
			Help: "Pool view calls issued",
		}, []string{"method"}),

		RPCErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marginly_rpc_errors_total",
			Help: "Pool view calls failed after retries",
		}, []string{"method"}),

		RPCDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marginly_rpc_duration_seconds",
			Help:    "Pool view call latency including retries",
			Buckets: rpcBuckets,
		}, []string{"method"}),

		RPCRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "marginly_rpc_retries_total",
			Help: "Pool view call retries",
		}),

		SnapshotBlock: f.NewGauge(prometheus.GaugeOpts{
			Name: "marginly_snapshot_block",
			Help: "Block number of the last pool snapshot",
		}),

		ChannelSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marginly_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marginly_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "marginly_publish_drops_total",
			Help: "Encoded intents dropped due to full publish channel",
		}),

		PersistBackpressure: f.NewCounter(prometheus.CounterOpts{
			Name: "marginly_persist_backpressure_total",
			Help: "Times the engine blocked on the persist channel",
		}),

		IdempotencyDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marginly_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"tier"}),

		DedupLRUSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "marginly_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupTier2Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "marginly_dedup_tier2_duration_seconds",
			Help:    "Postgres dedup lookup latency",
			Buckets: latencyBuckets,
		}),

		PersistIntentsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "marginly_persist_intents_written_total",
			Help: "Encoded intents written to Postgres",
		}),

		PersistBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "marginly_persist_batch_size",
			Help:    "Intents per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "marginly_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marginly_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PreviewsServed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marginly_previews_served_total",
			Help: "Position previews computed",
		}, []string{"position_type"}),

		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marginly_query_requests_total",
			Help: "API requests",
		}, []string{"method", "status"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marginly_query_duration_seconds",
			Help:    "API latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method"}),
	}
}

// SetChannelMetrics updates channel occupancy metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
}
