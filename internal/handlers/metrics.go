package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler serves the lazythumb_* collectors and Go runtime metrics
// from the default registry. main mounts it on the separate metrics port.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.Handler()
}
