// Package metrics provides Prometheus instrumentation for lazythumb.
//
// All metrics are prefixed with "lazythumb_" and registered on the default
// registry through promauto, so importing the package is enough to expose
// them on /metrics.
//
// # Metric Categories
//
// ## HTTP Metrics
//   - HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight
//
// ## Cache Store Metrics
//   - CacheQueryTotal / CacheQueryDuration: per operation (get, put, delete, stats)
//   - CacheHits / CacheMisses: lookups performed by capture sessions
//   - CacheWriteFailures: best-effort writes that did not persist, by reason
//   - CacheEntries / CacheSizeBytes: sampled by the Collector
//
// ## Session Metrics
//   - SessionsActive: mounted surfaces
//   - SessionOutcomes: terminal outcome per session (poster, cache_hit,
//     captured, failed, abandoned)
//   - SessionDuration: mount to terminal outcome
//   - GateFiresTotal / VisibilityReportsTotal
//
// ## Frame Extractor Metrics
//   - ExtractorRunsTotal: terminal state per run (captured, timed_out, errored)
//   - ExtractorDuration, ExtractorInFlight
//   - ExtractorSeekFallbacks: seeks that gave up waiting and captured anyway
//   - ExtractorRetries: zero-dimension frames that triggered the play burst
//   - DecoderCommandDuration: ffprobe/ffmpeg/browser command latency
//
// Call InitializeMetrics once at startup so every label combination is
// exported from the first scrape.
package metrics
