package server

import (
	"encoding/json"
	"image"
	"log/slog"
	"net/http"

	"github.com/disintegration/imaging"
)

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writePNG sends img as an uncached PNG
func writePNG(w http.ResponseWriter, img image.Image) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		slog.Error("Failed to encode PNG", "error", err)
	}
}
