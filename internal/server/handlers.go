// Package server exposes pipeline output to renderers over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoshard/internal/animator"
	"github.com/woozymasta/geoshard/internal/preview"
)

const etagCap = 64

// Routes registers all handlers on a new mux.
func (s *ServerContext) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/collection", s.HandleCollection)
	mux.HandleFunc("GET /api/trace", s.HandleTrace)
	mux.HandleFunc("POST /api/route/start", s.HandleRouteStart)
	mux.HandleFunc("POST /api/route/stop", s.HandleRouteStop)
	mux.HandleFunc("GET /api/markers", s.HandleMarkers)
	mux.HandleFunc("GET /api/preview.webp", s.HandlePreview)
	mux.HandleFunc("GET /merged.json", s.HandleArtifact)
	return mux
}

// HandleCollection serves the renderable collection.
// The optional tolerance query parameter overrides the configured one.
func (s *ServerContext) HandleCollection(w http.ResponseWriter, r *http.Request) {
	tolerance, ok := s.tolerance(w, r)
	if !ok {
		return
	}

	rc, err := s.Renderable(r.Context(), tolerance)
	if err != nil {
		s.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	// Ignoring error as we cannot handle client disconnects
	_ = json.NewEncoder(w).Encode(rc)
}

// HandleTrace serves the animator snapshot.
func (s *ServerContext) HandleTrace(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Animator.Snapshot())
}

// HandleRouteStart (re)starts the configured route.
// trace=continue keeps the previous trace, anything else starts fresh.
func (s *ServerContext) HandleRouteStart(w http.ResponseWriter, r *http.Request) {
	mode, err := animator.ParseTraceMode(r.URL.Query().Get("trace"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// the run outlives the request
	err = s.Animator.Start(context.Background(), s.Config.Animation.Route, mode)
	switch {
	case errors.Is(err, animator.ErrRunning):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, animator.ErrInvalidConfig):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case err != nil:
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, s.Animator.Snapshot())
}

// HandleRouteStop cancels the running route.
func (s *ServerContext) HandleRouteStop(w http.ResponseWriter, r *http.Request) {
	s.Animator.Stop()
	writeJSON(w, http.StatusOK, s.Animator.Snapshot())
}

// HandleMarkers serves the marker icon configuration.
func (s *ServerContext) HandleMarkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Config.Markers)
}

// HandlePreview renders the renderable collection and trace as WebP.
func (s *ServerContext) HandlePreview(w http.ResponseWriter, r *http.Request) {
	tolerance, ok := s.tolerance(w, r)
	if !ok {
		return
	}

	rc, err := s.Renderable(r.Context(), tolerance)
	if err != nil {
		s.fail(w, err)
		return
	}

	opts := preview.DefaultOptions()
	img, err := preview.Render(rc, s.Animator.Snapshot().Trace, opts)
	if errors.Is(err, preview.ErrEmpty) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/webp")
	w.Header().Set("Cache-Control", "no-cache")
	if err := preview.Encode(w, img, opts.Quality); err != nil {
		log.Error().Err(err).Msg("Failed to encode preview")
	}
}

// HandleArtifact serves the raw merged artifact.
func (s *ServerContext) HandleArtifact(w http.ResponseWriter, r *http.Request) {
	if !s.serveFile(w, r, s.ArtifactPath, "application/geo+json") {
		http.NotFound(w, r)
	}
}

func (s *ServerContext) tolerance(w http.ResponseWriter, r *http.Request) (float64, bool) {
	raw := r.URL.Query().Get("tolerance")
	if raw == "" {
		return s.Config.Render.Tolerance, true
	}

	t, err := strconv.ParseFloat(raw, 64)
	if err != nil || t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		http.Error(w, "tolerance must be a non-negative number", http.StatusBadRequest)
		return 0, false
	}
	return t, true
}

func (s *ServerContext) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "merged artifact not found", http.StatusServiceUnavailable)
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	log.Error().Err(err).Msg("Request failed")
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// serveFile tries to serve a file from disk with ETag generation.
// It returns true if the file was found and served (or 304).
func (s *ServerContext) serveFile(w http.ResponseWriter, r *http.Request, path string, contentType string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	buf := make([]byte, 0, etagCap)
	buf = append(buf, '"')
	buf = strconv.AppendInt(buf, info.Size(), 16)
	buf = append(buf, '-')
	buf = strconv.AppendInt(buf, info.ModTime().UnixNano(), 16)
	buf = append(buf, '"')
	etag := string(buf)

	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	http.ServeFile(w, r, path)
	return true
}
