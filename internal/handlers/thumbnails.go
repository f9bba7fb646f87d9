package handlers

import (
	"errors"
	"net/http"

	"lazythumb/internal/cache"
	"lazythumb/internal/logging"
	"lazythumb/internal/media"
)

// GetThumbnail looks up ?url= in the cache. With ?format=image the JPEG is
// returned instead of the JSON record.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeJSONError(w, "url is required", http.StatusBadRequest)
		return
	}

	res, err := h.cache.Get(r.Context(), url)
	if errors.Is(err, cache.ErrNotFound) {
		writeJSONError(w, "thumbnail not cached", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("cache lookup for %s: %v", url, err)
		writeJSONError(w, "cache unavailable", http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("format") != "image" {
		writeJSONStatusCode(w, res, http.StatusOK)
		return
	}

	data, mime, err := media.ParseDataURI(res.Payload)
	if err != nil {
		logging.Warn("cached payload for %s is not a data URI: %v", url, err)
		writeJSONError(w, "cached payload is not an image", http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logging.Debug("write thumbnail for %s: %v", url, err)
	}
}

// DeleteThumbnail invalidates the cache entry for ?url=. Removing an absent
// entry succeeds.
func (h *Handlers) DeleteThumbnail(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeJSONError(w, "url is required", http.StatusBadRequest)
		return
	}
	if err := h.cache.Delete(r.Context(), url); err != nil {
		logging.Error("cache delete for %s: %v", url, err)
		writeJSONError(w, "cache unavailable", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCacheStats reports cache usage against the quota.
func (h *Handlers) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cache.Stats(r.Context())
	if err != nil {
		logging.Error("cache stats: %v", err)
		writeJSONError(w, "cache unavailable", http.StatusInternalServerError)
		return
	}
	writeJSONStatusCode(w, stats, http.StatusOK)
}
