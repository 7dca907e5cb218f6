package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Source calls
	// ============================================
	SourceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_source_requests_total",
			Help: "Total number of source quote calls by outcome",
		},
		[]string{"source", "status"},
	)

	SourceLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregator_source_latency_seconds",
			Help:    "Source quote call latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"source"},
	)

	SourceRoutesReturned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_source_routes_total",
			Help: "Total number of routes returned by each source",
		},
		[]string{"source"},
	)

	SourceHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aggregator_source_healthy",
			Help: "Source health (1=healthy, 0=unhealthy)",
		},
		[]string{"source"},
	)

	SourceCircuitOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aggregator_source_circuit_open",
			Help: "Source circuit state (1=open, 0=closed)",
		},
		[]string{"source"},
	)

	SourceConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aggregator_source_consecutive_failures",
			Help: "Consecutive failures per source",
		},
		[]string{"source"},
	)

	SourceQualityScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aggregator_source_quality_score",
			Help: "Rolling quality score per source (0..1)",
		},
		[]string{"source"},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_rate_limit_rejections_total",
			Help: "Source calls skipped by the rate limiter",
		},
		[]string{"source"},
	)

	// ============================================
	// Quote pipeline
	// ============================================
	QuoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_quote_requests_total",
			Help: "Total number of quote requests by result",
		},
		[]string{"result"},
	)

	QuoteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aggregator_quote_duration_seconds",
		Help:    "End-to-end quote request duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	PolicyRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_policy_rejections_total",
			Help: "Routes removed by the policy engine",
		},
		[]string{"reason"},
	)

	SnapshotsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aggregator_snapshots_active",
		Help: "Number of route snapshots held in memory",
	})

	SnapshotValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_snapshot_validations_total",
			Help: "Execution snapshot validations by result",
		},
		[]string{"result"},
	)

	ExecutionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_execution_requests_total",
			Help: "Execution payload requests by provider and result",
		},
		[]string{"provider", "result"},
	)

	// ============================================
	// HTTP / NATS
	// ============================================
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregator_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aggregator_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_events_published_total",
			Help: "Events published to NATS by subject and result",
		},
		[]string{"subject", "result"},
	)
)

// BoolGauge converts a flag to a gauge value.
func BoolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
