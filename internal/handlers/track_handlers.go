package handlers

import (
	"net/http"

	"purple-player/internal/models"
	"purple-player/internal/services"
	"purple-player/pkg/response"

	"github.com/go-chi/chi/v5"
)

type TrackHandlers struct {
	trackService *services.TrackService
}

func NewTrackHandlers(trackService *services.TrackService) *TrackHandlers {
	return &TrackHandlers{trackService: trackService}
}

func (h *TrackHandlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListTracks)
	r.Post("/", h.AddTrack)
	r.Get("/top", h.TopTrack)
	r.Delete("/{trackId}", h.DeleteTrack)
	return r
}

func (h *TrackHandlers) ListTracks(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	tracks, err := h.trackService.ListTracks(r.Context(), userID)
	if err != nil {
		writeError(w, err, "fetch tracks")
		return
	}
	response.JSON(w, http.StatusOK, tracks)
}

// TopTrack answers with the most recent track, or null when there is none.
func (h *TrackHandlers) TopTrack(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	track, err := h.trackService.TopTrack(r.Context(), userID)
	if err != nil {
		writeError(w, err, "fetch top song")
		return
	}
	response.JSON(w, http.StatusOK, track)
}

func (h *TrackHandlers) AddTrack(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.AddTrackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	track, err := h.trackService.AddTrack(r.Context(), userID, &req)
	if err != nil {
		writeError(w, err, "add track")
		return
	}
	response.JSON(w, http.StatusCreated, track)
}

func (h *TrackHandlers) DeleteTrack(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	trackID := chi.URLParam(r, "trackId")
	if err := h.trackService.DeleteTrack(r.Context(), userID, trackID); err != nil {
		writeError(w, err, "delete track")
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"message": "Track deleted", "trackId": trackID})
}
