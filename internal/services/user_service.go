package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"purple-player/internal/database"
	"purple-player/internal/models"
	"purple-player/pkg/logger"
)

type UserService struct {
	db     database.Database
	groups *GroupService
}

func NewUserService(db database.Database, groups *GroupService) *UserService {
	return &UserService{db: db, groups: groups}
}

func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	return s.db.GetUserByID(ctx, userID)
}

func (s *UserService) UpdateProfile(ctx context.Context, userID string, req *models.UpdateProfileRequest) (*models.User, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("name_required", "Name is required")
	}
	return s.db.UpdateProfile(ctx, userID, name, req.Avatar)
}

func (s *UserService) ChangePassword(ctx context.Context, userID string, req *models.ChangePasswordRequest) error {
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return invalid("password_required", "Current and new password are required")
	}
	if err := ValidatePassword(req.NewPassword); err != nil {
		return err
	}

	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !CheckPassword(user.PasswordHash, req.CurrentPassword) {
		return ErrWrongPassword
	}

	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.db.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	logger.Info("Password changed for user %s", userID)
	return nil
}

// DeleteAccount verifies the password, hands the group over if needed, then
// removes the user's tracks and the user.
func (s *UserService) DeleteAccount(ctx context.Context, userID, password string) error {
	if password == "" {
		return invalid("password_required", "Password is required")
	}
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return ErrWrongPassword
	}

	if user.GroupID != "" {
		if _, err := s.groups.LeaveGroup(ctx, userID); err != nil && !errors.Is(err, ErrNotInGroup) {
			return err
		}
	}
	if err := s.db.DeleteTracksByUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete tracks: %w", err)
	}
	if err := s.db.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	logger.Info("Deleted account %s", userID)
	return nil
}
