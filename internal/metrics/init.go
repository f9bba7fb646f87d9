package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics(cacheBackend, decoderBackend string) {
	for _, op := range []string{"get", "put", "delete", "stats"} {
		CacheQueryTotal.WithLabelValues(cacheBackend, op, "success")
		CacheQueryTotal.WithLabelValues(cacheBackend, op, "error")
		CacheQueryDuration.WithLabelValues(cacheBackend, op)
	}

	for _, reason := range []string{"quota", "error"} {
		CacheWriteFailures.WithLabelValues(reason)
	}

	for _, outcome := range []string{"poster", "cache_hit", "captured", "failed", "abandoned"} {
		SessionOutcomes.WithLabelValues(outcome)
		SessionDuration.WithLabelValues(outcome)
	}

	for _, state := range []string{"captured", "timed_out", "errored"} {
		ExtractorRunsTotal.WithLabelValues(state)
		ExtractorDuration.WithLabelValues(state)
	}

	for _, cmd := range []string{"load", "seek", "play", "frame"} {
		DecoderCommandDuration.WithLabelValues(decoderBackend, cmd)
	}
}
