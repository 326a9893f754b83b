package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/couchcryptid/storm-radar-overlay/internal/domain"
	"github.com/couchcryptid/storm-radar-overlay/internal/radar"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 1 << 16

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Engine.Snapshot(r.Context())
	if err != nil {
		s.engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	s.respondWithState(w, r, s.deps.Engine.Load(r.Context()))
}

func (s *Server) handleShowFrame(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "frame index must be an integer")
		return
	}

	accepted, err := s.deps.Engine.ShowFrame(r.Context(), index)
	if err != nil {
		s.engineError(w, err)
		return
	}
	if !accepted {
		writeJSON(w, http.StatusConflict, map[string]any{
			"accepted": false,
			"error":    "frame out of range or transition in progress",
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "index": index})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.respondWithState(w, r, s.deps.Engine.Start(r.Context()))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.respondWithState(w, r, s.deps.Engine.Stop(r.Context()))
}

func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request) {
	var b domain.Bounds
	if !decodeBody(w, r, &b) {
		return
	}
	if !b.Valid() {
		writeError(w, http.StatusBadRequest, "viewport must satisfy west < east and south < north within lon/lat range")
		return
	}
	s.respondWithState(w, r, s.deps.Engine.SetViewport(r.Context(), b))
}

type overlayRequest struct {
	Visible *bool `json:"visible"`
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	var req overlayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Visible == nil {
		writeError(w, http.StatusBadRequest, `"visible" is required`)
		return
	}
	s.respondWithState(w, r, s.deps.Engine.SetOverlayVisible(r.Context(), *req.Visible))
}

func (s *Server) handleLayers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"layers": s.deps.Layers.Layers()})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tiers": s.deps.Cache.Stats()})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, _ *http.Request) {
	if err := s.deps.Cache.ClearAll(); err != nil {
		s.logger.Error("cache clear failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("cache cleared")
	writeJSON(w, http.StatusOK, map[string]any{"tiers": s.deps.Cache.Stats()})
}

// respondWithState answers a command with the resulting engine state.
func (s *Server) respondWithState(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.engineError(w, err)
		return
	}
	s.handleState(w, r)
}

func (s *Server) engineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, radar.ErrNoFrames), errors.Is(err, radar.ErrAnimationDisabled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, radar.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("engine command failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
