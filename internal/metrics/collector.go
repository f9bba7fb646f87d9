package metrics

import (
	"time"

	"lazythumb/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// StatsProviderFunc adapts a function to StatsProvider.
type StatsProviderFunc func() Stats

// GetStats implements StatsProvider.
func (f StatsProviderFunc) GetStats() Stats {
	return f()
}

// Stats holds the sampled gauges
type Stats struct {
	CacheEntries   int64
	CacheBytes     int64
	CacheQuota     int64
	ActiveSessions int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	CacheEntries.Set(float64(stats.CacheEntries))
	CacheSizeBytes.Set(float64(stats.CacheBytes))
	CacheQuotaBytes.Set(float64(stats.CacheQuota))
	SessionsActive.Set(float64(stats.ActiveSessions))

	logging.Debug("Metrics collected: cache entries=%d bytes=%d, sessions=%d",
		stats.CacheEntries, stats.CacheBytes, stats.ActiveSessions)
}
