package handlers

import (
	"net/http"

	"purple-player/internal/models"
	"purple-player/internal/services"
	"purple-player/pkg/response"

	"github.com/go-chi/chi/v5"
)

type UserHandlers struct {
	userService *services.UserService
}

func NewUserHandlers(userService *services.UserService) *UserHandlers {
	return &UserHandlers{userService: userService}
}

func (h *UserHandlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/me", h.GetProfile)
	r.Delete("/me", h.DeleteAccount)
	r.Put("/me/profile", h.UpdateProfile)
	r.Put("/me/password", h.ChangePassword)
	return r
}

func (h *UserHandlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	user, err := h.userService.GetProfile(r.Context(), userID)
	if err != nil {
		writeError(w, err, "load profile")
		return
	}
	response.JSON(w, http.StatusOK, user)
}

func (h *UserHandlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.userService.UpdateProfile(r.Context(), userID, &req)
	if err != nil {
		writeError(w, err, "update profile")
		return
	}
	response.JSON(w, http.StatusOK, user)
}

func (h *UserHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.userService.ChangePassword(r.Context(), userID, &req); err != nil {
		writeError(w, err, "change password")
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully"})
}

func (h *UserHandlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.DeleteAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.userService.DeleteAccount(r.Context(), userID, req.Password); err != nil {
		writeError(w, err, "delete account")
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"message": "Account deleted"})
}
