package handlers

import (
	"net/http"

	"lazythumb/internal/logging"
)

// placeholderSVG is the neutral 16:9 frame with a play overlay shown until a
// thumbnail resolves, and for good when none does.
const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="480" height="270" viewBox="0 0 480 270">` +
	`<rect width="480" height="270" fill="#2b2b2b"/>` +
	`<circle cx="240" cy="135" r="36" fill="#000" fill-opacity="0.5"/>` +
	`<path d="M228 115 L260 135 L228 155 Z" fill="#fff"/>` +
	`</svg>`

func writePlaceholder(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(placeholderSVG)); err != nil {
		logging.Debug("write placeholder: %v", err)
	}
}
