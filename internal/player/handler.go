package player

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const jsonContentType = "application/json"

// Handler exposes the playback engine's control surface over HTTP using go-chi.
type Handler struct {
	engine *Engine
	log    *slog.Logger
}

// NewHandler returns a Handler over the given engine.
func NewHandler(engine *Engine, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{engine: engine, log: log}
}

// stateResponse is the body returned by the playback endpoints.
type stateResponse struct {
	State           PlaybackState `json:"state"`
	ActiveResources int           `json:"active_resources"`
}

// seekRequest is the body for POST /playback/seek.
type seekRequest struct {
	PositionMs float64 `json:"position_ms"`
}

// Play handles POST /playback/play.
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Play(); err != nil {
		h.log.Info("play rejected", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusConflict)
		return
	}
	h.writeState(w)
}

// Pause handles POST /playback/pause.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	h.engine.Pause()
	h.writeState(w)
}

// Toggle handles POST /playback/toggle.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Toggle(); err != nil {
		h.log.Info("toggle rejected", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusConflict)
		return
	}
	h.writeState(w)
}

// Seek handles POST /playback/seek. Body: { "position_ms": 12000 }.
func (h *Handler) Seek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid seek body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.engine.SeekTo(req.PositionMs); err != nil {
		h.log.Info("seek rejected", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusConflict)
		return
	}
	h.writeState(w)
}

// GetState handles GET /playback/state.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	h.writeState(w)
}

// GetResources handles GET /playback/resources: snapshots of every live
// decode resource, for diagnostics.
func (h *Handler) GetResources(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", jsonContentType)
	_ = json.NewEncoder(w).Encode(h.engine.Resources())
}

// SetTimeline handles PUT /timeline. Body: a JSON array of clips.
func (h *Handler) SetTimeline(w http.ResponseWriter, r *http.Request) {
	var clips []Clip
	if err := json.NewDecoder(r.Body).Decode(&clips); err != nil {
		h.log.Debug("invalid timeline body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.engine.SetTimeline(clips); err != nil {
		if errors.Is(err, ErrInvalidTimeline) {
			h.log.Info("timeline rejected", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		h.log.Error("set timeline failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h.log.Info("timeline replaced", slog.Int("clips", len(clips)))
	w.WriteHeader(http.StatusNoContent)
}

// ClipReady handles GET /clips/{clip_id}/ready.
func (h *Handler) ClipReady(w http.ResponseWriter, r *http.Request) {
	clipID := ClipID(chi.URLParam(r, "clip_id"))
	if clipID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ready, err := h.engine.IsClipReady(clipID)
	if err != nil {
		if errors.Is(err, ErrUnknownClip) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.Error("clip ready check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", jsonContentType)
	_ = json.NewEncoder(w).Encode(map[string]bool{"ready": ready})
}

func (h *Handler) writeState(w http.ResponseWriter) {
	w.Header().Set("Content-Type", jsonContentType)
	_ = json.NewEncoder(w).Encode(stateResponse{
		State:           h.engine.State(),
		ActiveResources: h.engine.ActiveResourceCount(),
	})
}
