package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazythumb_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lazythumb_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lazythumb_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Cache store metrics
var (
	CacheQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazythumb_cache_queries_total",
			Help: "Total number of cache store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	CacheQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lazythumb_cache_query_duration_seconds",
			Help:    "Cache store operation duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"backend", "operation"},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lazythumb_cache_hits_total",
			Help: "Total number of thumbnail cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lazythumb_cache_misses_total",
			Help: "Total number of thumbnail cache misses",
		},
	)

	CacheWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazythumb_cache_write_failures_total",
			Help: "Thumbnail cache writes that did not persist",
		},
		[]string{"reason"}, // "quota", "error"
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lazythumb_cache_entries",
			Help: "Number of thumbnails in the cache store",
		},
	)

	CacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lazythumb_cache_size_bytes",
			Help: "Total payload bytes held by the cache store",
		},
	)

	CacheQuotaBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lazythumb_cache_quota_bytes",
			Help: "Configured cache store quota in bytes (0 = unlimited)",
		},
	)
)

// Session metrics
var (
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lazythumb_sessions_active",
			Help: "Number of currently mounted surfaces",
		},
	)

	SessionsMountedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lazythumb_sessions_mounted_total",
			Help: "Total number of surfaces mounted",
		},
	)

	SessionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazythumb_session_outcomes_total",
			Help: "Terminal outcome of capture sessions",
		},
		[]string{"outcome"},
	)

	SessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lazythumb_session_duration_seconds",
			Help:    "Time from mount to terminal outcome",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"outcome"},
	)

	VisibilityReportsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lazythumb_visibility_reports_total",
			Help: "Intersection entries reported by clients",
		},
	)

	GateFiresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lazythumb_visibility_gate_fires_total",
			Help: "Visibility gates that fired",
		},
	)
)

// Frame extractor metrics
var (
	ExtractorRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazythumb_extractor_runs_total",
			Help: "Frame extractor runs by terminal state",
		},
		[]string{"state"},
	)

	ExtractorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lazythumb_extractor_duration_seconds",
			Help:    "Frame extractor run duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 15},
		},
		[]string{"state"},
	)

	ExtractorInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lazythumb_extractor_in_flight",
			Help: "Frame extractor runs currently holding a decoding context",
		},
	)

	ExtractorSeekFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lazythumb_extractor_seek_fallbacks_total",
			Help: "Seeks that timed out and captured the currently decoded frame",
		},
	)

	ExtractorRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lazythumb_extractor_retries_total",
			Help: "Zero-dimension captures that triggered a play burst and retry",
		},
	)

	DecoderCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lazythumb_decoder_command_duration_seconds",
			Help:    "Decoder backend command duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"backend", "command"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lazythumb_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
