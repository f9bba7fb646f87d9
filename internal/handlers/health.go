package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"lazythumb/internal/cache"
	"lazythumb/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// healthTimeout bounds the cache probe behind health and readiness.
const healthTimeout = 2 * time.Second

// HealthResponse contains the health check response
type HealthResponse struct {
	Status         string       `json:"status"`
	Ready          bool         `json:"ready"`
	Version        string       `json:"version"`
	Uptime         string       `json:"uptime"`
	ActiveSurfaces int          `json:"activeSurfaces"`
	Cache          *cache.Stats `json:"cache,omitempty"`
	CacheError     string       `json:"cacheError,omitempty"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

func (h *Handlers) probeCache(ctx context.Context) (cache.Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	return h.cache.Stats(ctx)
}

// HealthCheck returns the health status of the service. An unreachable cache
// degrades the service without failing it: surfaces fall back to extraction.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:         statusHealthy,
		Ready:          true,
		Version:        startup.Version,
		Uptime:         time.Since(h.started).Round(time.Second).String(),
		ActiveSurfaces: h.surfaces.Active(),
		GoVersion:      runtime.Version(),
		NumCPU:         runtime.NumCPU(),
		NumGoroutine:   runtime.NumGoroutine(),
	}

	if stats, err := h.probeCache(r.Context()); err != nil {
		response.Status = statusDegraded
		response.CacheError = err.Error()
	} else {
		response.Cache = &stats
	}

	writeJSONStatusCode(w, response, http.StatusOK)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the cache answers.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if _, err := h.probeCache(r.Context()); err != nil {
		writeJSONStatusCode(w, map[string]string{"status": "not_ready"}, http.StatusServiceUnavailable)
		return
	}
	writeJSONStatusCode(w, map[string]string{"status": "ready"}, http.StatusOK)
}
