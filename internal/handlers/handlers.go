package handlers

import (
	"time"

	"lazythumb/internal/cache"
	"lazythumb/internal/capture"
	"lazythumb/internal/media"
)

// Handlers serves the HTTP API.
type Handlers struct {
	surfaces *capture.Manager
	cache    cache.Store
	sources  media.SourcePolicy
	started  time.Time
}

// New creates the handlers over a surface manager and the cache store it
// shares. Media and poster URLs submitted by clients must pass sources.
func New(manager *capture.Manager, store cache.Store, sources media.SourcePolicy) *Handlers {
	return &Handlers{
		surfaces: manager,
		cache:    store,
		sources:  sources,
		started:  time.Now(),
	}
}
