package handlers

import (
	"net/http"

	"purple-player/internal/models"
	"purple-player/internal/presence"
	"purple-player/internal/services"
	"purple-player/pkg/response"

	"github.com/go-chi/chi/v5"
)

type GroupHandlers struct {
	groupService *services.GroupService
	tracker      *presence.Tracker
}

func NewGroupHandlers(groupService *services.GroupService, tracker *presence.Tracker) *GroupHandlers {
	return &GroupHandlers{
		groupService: groupService,
		tracker:      tracker,
	}
}

func (h *GroupHandlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.CreateGroup)
	r.Post("/join", h.JoinGroup)
	r.Post("/leave", h.LeaveGroup)
	r.Get("/members", h.MyGroup)
	r.Get("/{groupId}", h.GetGroup)
	return r
}

func (h *GroupHandlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.CreateGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	group, err := h.groupService.CreateGroup(r.Context(), userID, &req)
	if err != nil {
		writeError(w, err, "create group")
		return
	}
	response.JSON(w, http.StatusCreated, group)
}

func (h *GroupHandlers) JoinGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.JoinGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	group, err := h.groupService.JoinGroup(r.Context(), userID, req.Code)
	if err != nil {
		writeError(w, err, "join group")
		return
	}
	response.JSON(w, http.StatusOK, group)
}

func (h *GroupHandlers) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	deleted, err := h.groupService.LeaveGroup(r.Context(), userID)
	if err != nil {
		writeError(w, err, "leave group")
		return
	}

	message := "Left group successfully"
	if deleted {
		message = "Left group successfully. The group was deleted because it had no members left."
	}
	response.JSON(w, http.StatusOK, models.LeaveGroupResponse{Message: message, GroupDeleted: deleted})
}

// MyGroup returns the caller's group with its members' presence.
func (h *GroupHandlers) MyGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	groupID, err := h.groupService.UserGroupID(r.Context(), userID)
	if err != nil {
		writeError(w, err, "load group")
		return
	}
	if groupID == "" {
		writeError(w, services.ErrNotInGroup, "load group")
		return
	}

	h.writeGroup(w, r, userID, groupID)
}

func (h *GroupHandlers) GetGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	h.writeGroup(w, r, userID, chi.URLParam(r, "groupId"))
}

func (h *GroupHandlers) writeGroup(w http.ResponseWriter, r *http.Request, userID, groupID string) {
	details, err := h.groupService.GroupInfo(r.Context(), userID, groupID, h.tracker)
	if err != nil {
		writeError(w, err, "load group")
		return
	}
	response.JSON(w, http.StatusOK, details)
}
