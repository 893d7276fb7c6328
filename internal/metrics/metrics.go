package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics of the chart engine.
type Metrics struct {
	// Ingestion
	BarsTotal    *prometheus.CounterVec // labels: result=appended|replaced|merged
	BarsRejected *prometheus.CounterVec // labels: reason=out_of_session|stale|invalid
	IngestDur    prometheus.Histogram
	LastBarLag   prometheus.Gauge

	// Series and datasets
	SeriesCount      prometheus.Gauge
	DatasetsActive   *prometheus.GaugeVec // labels: scope=configured|adhoc
	AdhocEvictions   prometheus.Counter
	DatasetRecompute prometheus.Histogram

	// Backpressure
	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name

	// Feed
	PELMessagesReclaimed prometheus.Counter

	// Publishing
	PublishDur               prometheus.Histogram
	PublishErrors            prometheus.Counter
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter
	RedisBufferDrops         prometheus.Counter

	// Snapshots
	SnapshotsTotal *prometheus.CounterVec // labels: store, result=ok|error

	// API and streaming
	APIRateLimited prometheus.Counter
	WSClients      prometheus.Gauge

	// Session
	MarketState prometheus.Gauge // 0=closed, 1=open
}

// NewMetrics creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BarsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chart_bars_total",
			Help: "Bars accepted into a series, by result",
		}, []string{"result"}),
		BarsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chart_bars_rejected_total",
			Help: "Bars rejected on ingestion, by reason",
		}, []string{"reason"}),
		IngestDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chart_ingest_duration_seconds",
			Help:    "Latency of one bar ingestion including dataset recomputation",
			Buckets: []float64{0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		LastBarLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chart_last_bar_lag_seconds",
			Help: "Lag between the latest bar's period start and its ingestion",
		}),

		SeriesCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chart_series",
			Help: "Number of series held in memory",
		}),
		DatasetsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chart_datasets",
			Help: "Attached datasets, by scope",
		}, []string{"scope"}),
		AdhocEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chart_adhoc_dataset_evictions_total",
			Help: "Ad-hoc datasets detached after their idle TTL",
		}),
		DatasetRecompute: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chart_dataset_attach_duration_seconds",
			Help:    "Full computation latency when a dataset is attached",
			Buckets: prometheus.DefBuckets,
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chart_fanout_drops_total",
			Help: "Updates dropped by the fan-out per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chart_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),

		PELMessagesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chart_pel_messages_reclaimed_total",
			Help: "Feed messages reclaimed from dead consumers via XCLAIM",
		}),

		PublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chart_publish_duration_seconds",
			Help:    "Redis publish pipeline latency",
			Buckets: prometheus.DefBuckets,
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chart_publish_errors_total",
			Help: "Failed Redis publish pipelines",
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chart_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chart_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chart_redis_buffered_writes_total",
			Help: "Updates buffered locally while the Redis circuit was open",
		}),
		RedisBufferDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chart_redis_buffer_drops_total",
			Help: "Buffered updates dropped because the buffer was full",
		}),

		SnapshotsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chart_snapshots_total",
			Help: "Series snapshots written, by store and result",
		}, []string{"store", "result"}),

		APIRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chart_api_rate_limited_total",
			Help: "API requests rejected by the rate limiter",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chart_ws_clients",
			Help: "Connected WebSocket clients",
		}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chart_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
	}

	reg.MustRegister(
		m.BarsTotal,
		m.BarsRejected,
		m.IngestDur,
		m.LastBarLag,
		m.SeriesCount,
		m.DatasetsActive,
		m.AdhocEvictions,
		m.DatasetRecompute,
		m.FanoutDropsTotal,
		m.ChannelSaturationPct,
		m.PELMessagesReclaimed,
		m.PublishDur,
		m.PublishErrors,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.RedisBufferDrops,
		m.SnapshotsTotal,
		m.APIRateLimited,
		m.WSClients,
		m.MarketState,
	)

	return m
}
