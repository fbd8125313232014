package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for CoverPool.
type Metrics struct {
	// --- Engine processing ---
	EngineEventsApplied  *prometheus.CounterVec
	EngineEventsRejected *prometheus.CounterVec
	EngineEventDuration  *prometheus.HistogramVec
	EngineJournals       *prometheus.CounterVec
	EngineStateHashDur   prometheus.Histogram
	EngineSequence       prometheus.Gauge

	// --- Pool & policy state ---
	PoolBalance    prometheus.Gauge
	PoolShares     prometheus.Gauge
	PoolCoverage   prometheus.Gauge
	PoolClaimsPaid prometheus.Gauge
	PoliciesActive prometheus.Gauge
	ProposalsOpen  prometheus.Gauge
	SweepRuns      prometheus.Counter
	SweepExpired   prometheus.Counter

	// --- Channel & backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     *prometheus.CounterVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter
	DedupTier2Duration    prometheus.Histogram

	// --- Price feed ---
	OracleQuotes         *prometheus.CounterVec
	OracleRejectedQuotes *prometheus.CounterVec
	OracleQuoteAge       *prometheus.GaugeVec
	FeedPullLatency      *prometheus.HistogramVec

	// --- Persistence ---
	PersistEventsWritten   prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchSize       prometheus.Histogram
	PersistBatchDur        prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistRetry           prometheus.Counter
	PersistLastSequence    prometheus.Gauge

	// --- Projections ---
	ProjectionUpdateDur *prometheus.HistogramVec

	// --- Snapshot & replay ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge
	ReplayEventsTotal prometheus.Counter
	ReplayDuration    prometheus.Gauge

	// --- HTTP API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	feedBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		EngineEventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_engine_events_applied_total",
			Help: "Events successfully applied by the engine",
		}, []string{"event_type"}),

		EngineEventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_engine_events_rejected_total",
			Help: "Commands rejected (dedup, validation, funds)",
		}, []string{"event_type", "reason"}),

		EngineEventDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cover_engine_event_apply_duration_seconds",
			Help:    "Time to apply a single operation in the engine",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		EngineJournals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_engine_journals_generated_total",
			Help: "Journal entries generated",
		}, []string{"journal_type"}),

		EngineStateHashDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cover_engine_state_hash_duration_seconds",
			Help:    "Time to compute state hash",
			Buckets: latencyBuckets,
		}),

		EngineSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cover_engine_sequence",
			Help: "Current global sequence number",
		}),

		PoolBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cover_pool_balance",
			Help: "Current pool balance (quote units)",
		}),

		PoolShares: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cover_pool_total_shares",
			Help: "Outstanding LP shares",
		}),

		PoolCoverage: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cover_pool_total_coverage",
			Help: "Outstanding coverage written against the pool",
		}),

		PoolClaimsPaid: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cover_pool_claims_paid",
			Help: "Lifetime claims paid (quote units)",
		}),

		PoliciesActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cover_policies_active",
			Help: "Currently active policies",
		}),

		ProposalsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cover_claim_proposals_open",
			Help: "Claim proposals awaiting finalization",
		}),

		SweepRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_expiry_sweep_runs_total",
			Help: "Expiry sweep executions",
		}),

		SweepExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_expiry_sweep_expired_total",
			Help: "Policies lapsed by the sweep",
		}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cover_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cover_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cover_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_projection_drops_total",
			Help: "Events dropped due to full projection channel",
		}, []string{"projection"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_persist_backpressure_total",
			Help: "Times the engine blocked on the persist channel",
		}),

		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"event_type", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cover_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupLRUEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_dedup_lru_evictions_total",
			Help: "LRU evictions",
		}),

		DedupTier2Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cover_dedup_tier2_duration_seconds",
			Help:    "Postgres dedup lookup latency",
			Buckets: latencyBuckets,
		}),

		OracleQuotes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_oracle_quotes_total",
			Help: "Price quotes accepted from the feed",
		}, []string{"asset"}),

		OracleRejectedQuotes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_oracle_rejected_quotes_total",
			Help: "Price quotes rejected (unsupported, malformed, out of order)",
		}, []string{"asset", "reason"}),

		OracleQuoteAge: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cover_oracle_quote_age_seconds",
			Help: "Age of the newest quote per asset",
		}, []string{"asset"}),

		FeedPullLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cover_feed_pull_latency_seconds",
			Help:    "NATS pull request latency",
			Buckets: feedBuckets,
		}, []string{"subject"}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistJournalsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_persist_journals_written_total",
			Help: "Journal entries written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cover_persist_batch_size",
			Help:    "Events per write batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cover_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cover_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		ProjectionUpdateDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cover_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"projection"}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cover_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotSizeBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cover_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cover_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		ReplayEventsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_replay_events_total",
			Help: "Events replayed on startup",
		}),

		ReplayDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cover_replay_duration_seconds",
			Help: "Total replay time",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_query_requests_total",
			Help: "API requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cover_query_duration_seconds",
			Help:    "API latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_query_errors_total",
			Help: "API errors",
		}, []string{"endpoint", "code"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
