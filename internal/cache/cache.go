package cache

import (
	"context"
	"errors"
	"time"

	"lazythumb/internal/metrics"
)

var (
	// ErrNotFound is returned by Get when no entry exists for the URL.
	ErrNotFound = errors.New("cache: entry not found")
	// ErrQuotaExceeded is returned by Put when the payload does not fit.
	ErrQuotaExceeded = errors.New("cache: quota exceeded")
)

// Result is a cached thumbnail.
type Result struct {
	SourceURL   string    `json:"sourceUrl"`
	Payload     string    `json:"payload"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Stats summarises a store's contents.
type Stats struct {
	Entries    int64 `json:"entries"`
	TotalBytes int64 `json:"totalBytes"`
	QuotaBytes int64 `json:"quotaBytes"`
}

// Store is a key-value store from media URL to thumbnail payload.
// Implementations are safe for concurrent use; concurrent Puts for the same
// URL are last-write-wins.
type Store interface {
	Get(ctx context.Context, url string) (Result, error)
	Put(ctx context.Context, url, payload string) error
	Delete(ctx context.Context, url string) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// fits reports whether replacing an entry of oldSize with newSize keeps used
// within quota. A quota of 0 or less means unlimited.
func fits(quota, used, oldSize, newSize int64) bool {
	if quota <= 0 {
		return true
	}
	return used-oldSize+newSize <= quota
}

// observe records one store operation.
func observe(backend, operation string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, ErrNotFound) {
		status = "error"
	}
	metrics.CacheQueryTotal.WithLabelValues(backend, operation, status).Inc()
	metrics.CacheQueryDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}

var now = time.Now
