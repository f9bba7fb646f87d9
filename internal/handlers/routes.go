package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Register mounts every route on router.
func (h *Handlers) Register(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	router.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/surfaces", h.CreateSurface).Methods(http.MethodPost)
	api.HandleFunc("/surfaces/{id}", h.GetSurface).Methods(http.MethodGet)
	api.HandleFunc("/surfaces/{id}", h.DeleteSurface).Methods(http.MethodDelete)
	api.HandleFunc("/surfaces/{id}/intersections", h.ReportIntersection).Methods(http.MethodPost)
	api.HandleFunc("/surfaces/{id}/generate", h.GenerateSurface).Methods(http.MethodPost)
	api.HandleFunc("/surfaces/{id}/poster", h.GetPoster).Methods(http.MethodGet)

	api.HandleFunc("/thumbnails", h.GetThumbnail).Methods(http.MethodGet)
	api.HandleFunc("/thumbnails", h.DeleteThumbnail).Methods(http.MethodDelete)
	api.HandleFunc("/thumbnails/stats", h.GetCacheStats).Methods(http.MethodGet)
}
