package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"purple-player/internal/database"
	"purple-player/internal/models"
	"purple-player/pkg/logger"

	"github.com/google/uuid"
)

const (
	groupCodeLength   = 16
	groupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	groupCodeAttempts = 5
	maxGroupNameLen   = 60
)

// PresenceSource reports presence for the members of a group.
type PresenceSource interface {
	GroupPresence(ctx context.Context, groupID string) ([]models.MemberPresence, error)
}

// GroupService owns group bookkeeping and answers the membership questions
// the presence tracker and the socket router ask.
type GroupService struct {
	db  database.Database
	now func() time.Time
}

func NewGroupService(db database.Database) *GroupService {
	return &GroupService{db: db, now: time.Now}
}

func (s *GroupService) CreateGroup(ctx context.Context, userID string, req *models.CreateGroupRequest) (*models.GroupResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("group_name_required", "Group name required")
	}
	if len(name) > maxGroupNameLen {
		return nil, invalid("group_name_too_long", fmt.Sprintf("group name must be at most %d characters", maxGroupNameLen))
	}

	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.GroupID != "" {
		return nil, ErrAlreadyInGroup
	}

	group := &models.Group{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
	}
	for attempt := 0; attempt < groupCodeAttempts; attempt++ {
		group.Code, err = GenerateGroupCode()
		if err != nil {
			return nil, err
		}
		err = s.db.CreateGroup(ctx, group, userID, s.now())
		if !errors.Is(err, database.ErrGroupCodeTaken) {
			break
		}
		logger.Warn("Group code collision on attempt %d, retrying", attempt+1)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	logger.Info("Group %s (%s) created by %s", group.ID, group.Code, userID)
	return &models.GroupResponse{
		Group:        *group,
		Role:         models.RoleAdmin,
		MembersCount: 1,
		Message:      "Group created successfully! Share code to invite others.",
	}, nil
}

func (s *GroupService) JoinGroup(ctx context.Context, userID, code string) (*models.GroupResponse, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, invalid("group_code_required", "Group code required")
	}

	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.GroupID != "" {
		return nil, ErrAlreadyInGroup
	}

	group, err := s.db.GetGroupByCode(ctx, code)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidGroupCode
		}
		return nil, err
	}

	if err := s.db.AddGroupMember(ctx, group.ID, userID, models.RoleMember, s.now()); err != nil {
		return nil, fmt.Errorf("failed to join group: %w", err)
	}
	members, err := s.db.ListGroupMembers(ctx, group.ID)
	if err != nil {
		return nil, err
	}

	logger.Info("User %s joined group %s", userID, group.ID)
	return &models.GroupResponse{
		Group:        *group,
		Role:         models.RoleMember,
		MembersCount: len(members),
		Message:      "Successfully joined group: " + group.Name,
	}, nil
}

// LeaveGroup removes the user from their group and reports whether the
// group was deleted because nobody was left.
func (s *GroupService) LeaveGroup(ctx context.Context, userID string) (bool, error) {
	groupID, err := s.UserGroupID(ctx, userID)
	if err != nil {
		return false, err
	}
	if groupID == "" {
		return false, ErrNotInGroup
	}

	deleted, err := s.db.RemoveGroupMember(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return false, ErrNotInGroup
		}
		return false, fmt.Errorf("failed to leave group: %w", err)
	}
	if deleted {
		logger.Info("Group %s deleted after last member %s left", groupID, userID)
	} else {
		logger.Info("User %s left group %s", userID, groupID)
	}
	return deleted, nil
}

func (s *GroupService) GroupMembers(ctx context.Context, groupID string) ([]*models.GroupMember, error) {
	return s.db.ListGroupMembers(ctx, groupID)
}

// UserGroupID returns the user's group id, or "" for solo users.
func (s *GroupService) UserGroupID(ctx context.Context, userID string) (string, error) {
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.GroupID, nil
}

func (s *GroupService) IsMember(ctx context.Context, userID, groupID string) (bool, error) {
	if userID == "" || groupID == "" {
		return false, nil
	}
	groupOfUser, err := s.UserGroupID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return groupOfUser == groupID, nil
}

// GroupInfo returns the group with its members' presence. Only members may
// look at a group.
func (s *GroupService) GroupInfo(ctx context.Context, viewerID, groupID string, presence PresenceSource) (*models.GroupDetails, error) {
	ok, err := s.IsMember(ctx, viewerID, groupID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}

	group, err := s.db.GetGroupByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	members, err := presence.GroupPresence(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return &models.GroupDetails{
		Group:        *group,
		Members:      members,
		TotalMembers: len(members),
	}, nil
}

// GenerateGroupCode returns a random 16 character invite code.
func GenerateGroupCode() (string, error) {
	var sb strings.Builder
	sb.Grow(groupCodeLength)
	limit := big.NewInt(int64(len(groupCodeAlphabet)))
	for i := 0; i < groupCodeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate group code: %w", err)
		}
		sb.WriteByte(groupCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}
