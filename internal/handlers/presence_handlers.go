package handlers

import (
	"net/http"

	"purple-player/internal/models"
	"purple-player/internal/presence"
	"purple-player/pkg/response"

	"github.com/go-chi/chi/v5"
)

type PresenceHandlers struct {
	tracker *presence.Tracker
}

func NewPresenceHandlers(tracker *presence.Tracker) *PresenceHandlers {
	return &PresenceHandlers{tracker: tracker}
}

func (h *PresenceHandlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/heartbeat", h.Heartbeat)
	r.Put("/offline", h.Offline)
	r.Put("/listening", h.Listening)
	r.Get("/online", h.Online)
	r.Get("/status/{email}", h.Status)
	return r
}

func (h *PresenceHandlers) Heartbeat(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.tracker.Heartbeat(r.Context(), userID); err != nil {
		writeError(w, err, "record heartbeat")
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *PresenceHandlers) Offline(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.tracker.MarkOffline(r.Context(), userID); err != nil {
		writeError(w, err, "mark offline")
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *PresenceHandlers) Listening(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.ListeningRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.tracker.UpdateListening(r.Context(), userID, req.SongTitle, req.SongArtist)
	if err != nil {
		writeError(w, err, "update listening status")
		return
	}
	response.JSON(w, http.StatusOK, user)
}

// Online lists the caller's group members, most recently seen first.
func (h *PresenceHandlers) Online(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	members, err := h.tracker.UserGroupPresence(r.Context(), userID)
	if err != nil {
		writeError(w, err, "load online users")
		return
	}
	response.JSON(w, http.StatusOK, members)
}

func (h *PresenceHandlers) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	status, err := h.tracker.Status(r.Context(), userID, chi.URLParam(r, "email"))
	if err != nil {
		writeError(w, err, "load user status")
		return
	}
	response.JSON(w, http.StatusOK, status)
}
