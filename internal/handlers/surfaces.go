package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"lazythumb/internal/capture"
	"lazythumb/internal/logging"
	"lazythumb/internal/media"
	"lazythumb/internal/metrics"
	"lazythumb/internal/visibility"
)

// maxWait caps the ?wait= long poll on GetSurface.
const maxWait = 30 * time.Second

// MountRequest is the body of POST /api/surfaces.
type MountRequest struct {
	URL            string `json:"url"`
	ExternalPoster string `json:"externalPoster,omitempty"`
}

// SurfaceResponse is a snapshot plus what the surface renders. The payload
// is carried by view.src.
type SurfaceResponse struct {
	capture.Snapshot
	View capture.ViewModel `json:"view"`
}

func surfaceResponse(s capture.Snapshot) SurfaceResponse {
	view := capture.View(s)
	s.Payload = ""
	return SurfaceResponse{Snapshot: s, View: view}
}

// CreateSurface mounts a surface for a media reference.
func (h *Handlers) CreateSurface(w http.ResponseWriter, r *http.Request) {
	var req MountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	req.ExternalPoster = strings.TrimSpace(req.ExternalPoster)
	if req.URL == "" {
		writeJSONError(w, "url is required", http.StatusBadRequest)
		return
	}
	if err := h.sources.Check(req.URL); err != nil {
		logging.Debug("rejected media url %q: %v", req.URL, err)
		writeJSONError(w, "url must be an http or https URL on an allowed host", http.StatusBadRequest)
		return
	}
	if req.ExternalPoster != "" {
		if err := h.sources.Check(req.ExternalPoster); err != nil {
			logging.Debug("rejected poster url %q: %v", req.ExternalPoster, err)
			writeJSONError(w, "externalPoster must be an http or https URL on an allowed host", http.StatusBadRequest)
			return
		}
	}

	s, err := h.surfaces.Mount(capture.MediaReference{
		URL:            req.URL,
		ExternalPoster: req.ExternalPoster,
	}, nil)
	if errors.Is(err, capture.ErrClosed) {
		writeJSONError(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		logging.Error("mount %s: %v", req.URL, err)
		writeJSONError(w, "failed to mount surface", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Location", "/api/surfaces/"+s.ID())
	writeJSONStatusCode(w, surfaceResponse(s.Snapshot()), http.StatusCreated)
}

// GetSurface returns a surface snapshot. With ?wait=<duration> it blocks
// until the surface reaches a terminal state, the wait elapses or the
// client goes away.
func (h *Handlers) GetSurface(w http.ResponseWriter, r *http.Request) {
	s, ok := h.surfaces.Get(mux.Vars(r)["id"])
	if !ok {
		writeJSONError(w, "surface not found", http.StatusNotFound)
		return
	}

	if v := r.URL.Query().Get("wait"); v != "" {
		wait, err := time.ParseDuration(v)
		if err != nil || wait < 0 {
			writeJSONError(w, "invalid wait duration", http.StatusBadRequest)
			return
		}
		if wait > maxWait {
			wait = maxWait
		}
		timer := time.NewTimer(wait)
		select {
		case <-s.Done():
		case <-timer.C:
		case <-r.Context().Done():
		}
		timer.Stop()
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSONStatusCode(w, surfaceResponse(s.Snapshot()), http.StatusOK)
}

// IntersectionReport is the body of POST /api/surfaces/{id}/intersections.
// A target that does not intersect the viewport has a ratio of 0 and must
// say how far away it is, so distance is required whenever ratio is 0 or
// absent.
type IntersectionReport struct {
	Ratio    *float64 `json:"ratio"`
	Distance *float64 `json:"distance"`
}

// entry validates the report.
func (rep IntersectionReport) entry() (visibility.Entry, error) {
	var e visibility.Entry
	if rep.Ratio != nil {
		e.Ratio = *rep.Ratio
	}
	if rep.Distance != nil {
		e.Distance = *rep.Distance
	}
	switch {
	case e.Ratio < 0 || e.Ratio > 1:
		return e, errors.New("ratio must be within [0, 1]")
	case e.Distance < 0:
		return e, errors.New("distance must not be negative")
	case e.Ratio == 0 && rep.Distance == nil:
		return e, errors.New("distance is required when ratio is 0")
	}
	return e, nil
}

// ReportIntersection feeds one intersection entry for the surface into the
// viewport.
func (h *Handlers) ReportIntersection(w http.ResponseWriter, r *http.Request) {
	var rep IntersectionReport
	if err := decodeJSON(w, r, &rep); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	entry, err := rep.entry()
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !h.surfaces.Report(mux.Vars(r)["id"], entry) {
		writeJSONError(w, "surface not found", http.StatusNotFound)
		return
	}
	metrics.VisibilityReportsTotal.Inc()
	w.WriteHeader(http.StatusNoContent)
}

// GenerateSurface re-requests generation. It is a no-op unless the surface
// has not started.
func (h *Handlers) GenerateSurface(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.surfaces.Generate(id) {
		writeJSONError(w, "surface not found", http.StatusNotFound)
		return
	}
	s, ok := h.surfaces.Get(id)
	if !ok {
		writeJSONError(w, "surface not found", http.StatusNotFound)
		return
	}
	writeJSONStatusCode(w, surfaceResponse(s.Snapshot()), http.StatusAccepted)
}

// GetPoster renders the surface as an image: the generated JPEG, a redirect
// to the external poster, or the placeholder.
func (h *Handlers) GetPoster(w http.ResponseWriter, r *http.Request) {
	s, ok := h.surfaces.Get(mux.Vars(r)["id"])
	if !ok {
		writeJSONError(w, "surface not found", http.StatusNotFound)
		return
	}

	snap := s.Snapshot()
	view := capture.View(snap)
	if view.Kind != capture.KindThumbnail {
		writePlaceholder(w)
		return
	}

	if snap.Source == capture.SourcePoster {
		if err := h.sources.Check(view.Src); err != nil {
			logging.Warn("surface %s has an unusable poster: %v", snap.ID, err)
			writePlaceholder(w)
			return
		}
		http.Redirect(w, r, view.Src, http.StatusFound)
		return
	}

	data, mime, err := media.ParseDataURI(view.Src)
	if err != nil {
		logging.Warn("surface %s has an unreadable payload: %v", snap.ID, err)
		writePlaceholder(w)
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logging.Debug("write poster for %s: %v", snap.ID, err)
	}
}

// DeleteSurface unmounts a surface and abandons any work in flight.
func (h *Handlers) DeleteSurface(w http.ResponseWriter, r *http.Request) {
	if !h.surfaces.Unmount(mux.Vars(r)["id"]) {
		writeJSONError(w, "surface not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
