package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"purple-player/internal/database"
	"purple-player/internal/models"
	"purple-player/pkg/logger"

	"github.com/google/uuid"
)

var trackURLPattern = regexp.MustCompile(`(?i)^https?://`)

type TrackService struct {
	db  database.Database
	now func() time.Time
}

func NewTrackService(db database.Database) *TrackService {
	return &TrackService{db: db, now: time.Now}
}

// ListTracks returns the playlist the user sees: their group's tracks, or
// their own solo tracks, newest first.
func (s *TrackService) ListTracks(ctx context.Context, userID string) ([]*models.Track, error) {
	scope, err := s.scopeFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	tracks, err := s.db.ListTracks(ctx, scope, 0)
	if err != nil {
		return nil, err
	}
	if tracks == nil {
		tracks = []*models.Track{}
	}
	return tracks, nil
}

// TopTrack returns the most recent track in the user's scope, or nil.
func (s *TrackService) TopTrack(ctx context.Context, userID string) (*models.Track, error) {
	scope, err := s.scopeFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	tracks, err := s.db.ListTracks(ctx, scope, 1)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, nil
	}
	return tracks[0], nil
}

func (s *TrackService) AddTrack(ctx context.Context, userID string, req *models.AddTrackRequest) (*models.Track, error) {
	if req.URL == "" || !trackURLPattern.MatchString(req.URL) {
		return nil, invalid("invalid_url", "Please provide a valid URL starting with http:// or https://")
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, invalid("title_required", "Song title is required")
	}
	artist := strings.TrimSpace(req.Artist)
	if artist == "" {
		return nil, invalid("artist_required", "Artist name is required")
	}

	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	track := &models.Track{
		ID:        uuid.NewString(),
		Title:     title,
		Artist:    artist,
		Source:    req.Source,
		URL:       req.URL,
		Cover:     req.Cover,
		Message:   strings.TrimSpace(req.Message),
		AddedBy:   user.ID,
		GroupID:   user.GroupID,
		CreatedAt: s.now(),
	}
	if err := s.db.CreateTrack(ctx, track); err != nil {
		return nil, err
	}
	if track.GroupID != "" {
		if err := s.db.IncrementGroupSongs(ctx, track.GroupID); err != nil {
			logger.Warn("Failed to bump song count for group %s: %v", track.GroupID, err)
		}
	}

	logger.Info("Track %s %q by %q added by %s", track.ID, title, artist, userID)
	return s.db.GetTrackByID(ctx, track.ID)
}

// DeleteTrack removes a track. Only the user who added it may do so.
func (s *TrackService) DeleteTrack(ctx context.Context, userID, trackID string) error {
	track, err := s.db.GetTrackByID(ctx, trackID)
	if err != nil {
		return err
	}
	if track.AddedBy != userID {
		logger.Warn("User %s tried to delete track %s added by %s", userID, trackID, track.AddedBy)
		return ErrForbidden
	}
	if err := s.db.DeleteTrack(ctx, trackID); err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}
	return nil
}

func (s *TrackService) scopeFor(ctx context.Context, userID string) (database.TrackScope, error) {
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return database.TrackScope{}, err
	}
	return database.TrackScope{GroupID: user.GroupID, UserID: user.ID}, nil
}
