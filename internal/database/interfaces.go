package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"purple-player/internal/models"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUserExists is returned when registering an email that is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrGroupCodeTaken is returned when a generated group code collides.
	ErrGroupCodeTaken = errors.New("group code already taken")
	// ErrAlreadyInGroup is returned when adding a user who already belongs to a group.
	ErrAlreadyInGroup = errors.New("user is already in a group")
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, id, name, avatar string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	StartSession(ctx context.Context, id, sessionID string, at time.Time) error
	DeleteUser(ctx context.Context, id string) error
}

type GroupRepository interface {
	CreateGroup(ctx context.Context, group *models.Group, adminID string, at time.Time) error
	GetGroupByID(ctx context.Context, id string) (*models.Group, error)
	GetGroupByCode(ctx context.Context, code string) (*models.Group, error)
	AddGroupMember(ctx context.Context, groupID, userID, role string, at time.Time) error
	// RemoveGroupMember drops the membership and clears the user's group
	// fields. An emptied group is deleted; a group left without an admin gets
	// its earliest member promoted.
	RemoveGroupMember(ctx context.Context, groupID, userID string) (groupDeleted bool, err error)
	ListGroupMembers(ctx context.Context, groupID string) ([]*models.GroupMember, error)
	IncrementGroupSongs(ctx context.Context, groupID string) error
}

type TrackRepository interface {
	CreateTrack(ctx context.Context, track *models.Track) error
	GetTrackByID(ctx context.Context, id string) (*models.Track, error)
	ListTracks(ctx context.Context, scope TrackScope, limit int) ([]*models.Track, error)
	DeleteTrack(ctx context.Context, id string) error
	DeleteTracksByUser(ctx context.Context, userID string) error
}

// TrackScope selects a group playlist or, when GroupID is empty, the solo
// tracks of UserID.
type TrackScope struct {
	GroupID string
	UserID  string
}

type PresenceRepository interface {
	TouchPresence(ctx context.Context, userID string, at time.Time) error
	SetOffline(ctx context.Context, userID string, at time.Time) error
	SetListening(ctx context.Context, userID, listening, song string, at time.Time) (*models.User, error)
	MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error)
	ListUsersByIDs(ctx context.Context, ids []string) ([]*models.User, error)
}

type Database interface {
	UserRepository
	GroupRepository
	TrackRepository
	PresenceRepository
	Migrate(ctx context.Context) error
	Close() error
}

// Open picks the backend from the URL scheme: postgres:// and postgresql://
// go to Postgres, sqlite://, file: and :memory: to the embedded SQLite store.
func Open(ctx context.Context, url string, maxConns int) (Database, error) {
	switch {
	case strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "file:"), strings.HasPrefix(url, ":memory:"):
		db, err := NewSQLiteDB(url)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		db, err := NewPostgresDB(ctx, url, maxConns)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
}
