package presence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"purple-player/internal/database"
	"purple-player/internal/metrics"
	"purple-player/internal/models"
	"purple-player/pkg/logger"
)

// DefaultStaleAfter is one missed 30s heartbeat.
const DefaultStaleAfter = 30 * time.Second

// Store is the slice of the database the tracker reads and writes.
type Store interface {
	TouchPresence(ctx context.Context, userID string, at time.Time) error
	SetOffline(ctx context.Context, userID string, at time.Time) error
	SetListening(ctx context.Context, userID, listening, song string, at time.Time) (*models.User, error)
	MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error)
	ListUsersByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Directory resolves users to groups and groups to their members.
type Directory interface {
	UserGroupID(ctx context.Context, userID string) (string, error)
	GroupMembers(ctx context.Context, groupID string) ([]*models.GroupMember, error)
}

// Tracker keeps per-user online state fresh from heartbeats. isOnline is a
// cached value: it is only corrected by the sweep that runs before each read.
type Tracker struct {
	store      Store
	directory  Directory
	staleAfter time.Duration
	now        func() time.Time
	metrics    *metrics.Metrics
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithStaleAfter(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.staleAfter = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

func NewTracker(store Store, directory Directory, opts ...Option) *Tracker {
	t := &Tracker{
		store:      store,
		directory:  directory,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) StaleAfter() time.Duration {
	return t.staleAfter
}

// Heartbeat marks the user online as of now.
func (t *Tracker) Heartbeat(ctx context.Context, userID string) error {
	if err := t.store.TouchPresence(ctx, userID, t.now()); err != nil {
		return err
	}
	t.metrics.IncHeartbeat()
	return nil
}

// MarkOffline clears the online flag and stamps lastSeen. Calling it again
// only moves lastSeen forward.
func (t *Tracker) MarkOffline(ctx context.Context, userID string) error {
	return t.store.SetOffline(ctx, userID, t.now())
}

func (t *Tracker) UpdateListening(ctx context.Context, userID, title, artist string) (*models.User, error) {
	title = strings.TrimSpace(title)
	return t.store.SetListening(ctx, userID, ListeningLabel(title, artist), title, t.now())
}

// SweepStale demotes every online user whose last heartbeat is older than
// the threshold and reports how many were demoted.
func (t *Tracker) SweepStale(ctx context.Context) (int64, error) {
	n, err := t.store.MarkStaleOffline(ctx, t.now().Add(-t.staleAfter))
	if err != nil {
		return 0, fmt.Errorf("sweep stale presence: %w", err)
	}
	if n > 0 {
		logger.Debug("Marked %d stale users offline", n)
		t.metrics.AddSweptOffline(n)
	}
	return n, nil
}

// GroupPresence reports presence for exactly the members the directory
// lists for groupID, most recently seen first.
func (t *Tracker) GroupPresence(ctx context.Context, groupID string) ([]models.MemberPresence, error) {
	if _, err := t.SweepStale(ctx); err != nil {
		return nil, err
	}

	members, err := t.directory.GroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []models.MemberPresence{}, nil
	}

	byID := make(map[string]*models.GroupMember, len(members))
	ids := make([]string, 0, len(members))
	for _, m := range members {
		byID[m.UserID] = m
		ids = append(ids, m.UserID)
	}

	users, err := t.store.ListUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]models.MemberPresence, 0, len(users))
	for _, u := range users {
		member, ok := byID[u.ID]
		if !ok {
			continue
		}
		result = append(result, models.MemberPresence{
			UserID:             u.ID,
			Name:               u.Name,
			Email:              u.Email,
			Avatar:             u.Avatar,
			IsOnline:           u.IsOnline,
			CurrentlyListening: u.CurrentlyListening,
			LastSeen:           u.LastSeen,
			Role:               member.Role,
			JoinedAt:           member.JoinedAt,
		})
	}
	return result, nil
}

// UserGroupPresence is GroupPresence for the caller's own group. Solo users
// get an empty list.
func (t *Tracker) UserGroupPresence(ctx context.Context, userID string) ([]models.MemberPresence, error) {
	groupID, err := t.directory.UserGroupID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if groupID == "" {
		if _, err := t.SweepStale(ctx); err != nil {
			return nil, err
		}
		return []models.MemberPresence{}, nil
	}
	return t.GroupPresence(ctx, groupID)
}

// Status reports one user's presence. Details are only visible to the user
// themselves and to members of the same group. Outsiders and unknown emails
// read offline.
func (t *Tracker) Status(ctx context.Context, viewerID, email string) (*models.UserStatus, error) {
	if _, err := t.SweepStale(ctx); err != nil {
		return nil, err
	}

	target, err := t.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return &models.UserStatus{IsOnline: false}, nil
		}
		return nil, err
	}

	if target.ID != viewerID {
		viewerGroup, err := t.directory.UserGroupID(ctx, viewerID)
		if err != nil {
			return nil, err
		}
		if viewerGroup == "" || viewerGroup != target.GroupID {
			return &models.UserStatus{IsOnline: false}, nil
		}
	}

	lastSeen := target.LastSeen
	return &models.UserStatus{
		UserID:             target.ID,
		Name:               target.Name,
		Avatar:             target.Avatar,
		IsOnline:           target.IsOnline,
		CurrentlyListening: target.CurrentlyListening,
		LastListenedSong:   target.LastListenedSong,
		LastSeen:           &lastSeen,
	}, nil
}

// ListeningLabel formats what a user is playing as "title - artist".
func ListeningLabel(title, artist string) string {
	title = strings.TrimSpace(title)
	artist = strings.TrimSpace(artist)
	switch {
	case title == "":
		return ""
	case artist == "":
		return title
	default:
		return title + " - " + artist
	}
}
