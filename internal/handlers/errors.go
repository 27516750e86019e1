package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"purple-player/internal/auth"
	"purple-player/internal/database"
	"purple-player/internal/services"
	"purple-player/pkg/logger"
	"purple-player/pkg/middleware"
	"purple-player/pkg/response"
)

const maxBodyBytes = 5 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
	}
	return userID, ok
}

// writeError maps service and store errors onto HTTP responses. Anything
// unrecognised is logged and reported as a 500.
func writeError(w http.ResponseWriter, err error, action string) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		response.Error(w, http.StatusBadRequest, verr.Code, verr.Message)
	case errors.Is(err, database.ErrNotFound):
		response.NotFound(w, "Resource not found")
	case errors.Is(err, database.ErrUserExists):
		response.Error(w, http.StatusConflict, "user_exists", "An account with this email already exists")
	case errors.Is(err, auth.ErrInvalidCredentials):
		response.Error(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
	case errors.Is(err, services.ErrWrongPassword):
		response.Error(w, http.StatusUnauthorized, "incorrect_password", "Password is incorrect")
	case errors.Is(err, services.ErrAlreadyInGroup):
		response.Error(w, http.StatusConflict, "already_in_group", "You are already in a group. Leave first.")
	case errors.Is(err, services.ErrNotInGroup):
		response.Error(w, http.StatusBadRequest, "not_in_group", "You are not in a group")
	case errors.Is(err, services.ErrInvalidGroupCode):
		response.Error(w, http.StatusNotFound, "invalid_group_code", "Invalid group code")
	case errors.Is(err, services.ErrForbidden):
		response.Forbidden(w, "You are not allowed to do that")
	default:
		logger.Error("Failed to %s: %v", action, err)
		response.InternalError(w, "Failed to "+action)
	}
}
