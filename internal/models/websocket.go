package models

import (
	"encoding/json"
	"time"
)

type EventName string

const (
	EventJoinGroup      EventName = "join-group"
	EventTrackAdded     EventName = "track:added"
	EventTrackRemoved   EventName = "track:removed"
	EventPlaylistUpdate EventName = "playlist:update"
	EventError          EventName = "error"
)

const (
	PlaylistTrackAdded   = "track-added"
	PlaylistTrackRemoved = "track-removed"
)

// Frame is the envelope for every websocket message in either direction.
type Frame struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinGroupPayload struct {
	UserID  string `json:"userId"`
	GroupID string `json:"groupId"`
}

type TrackAddedPayload struct {
	GroupID string          `json:"groupId"`
	Track   json.RawMessage `json:"track"`
	UserID  string          `json:"userId"`
}

type TrackRemovedPayload struct {
	GroupID string `json:"groupId"`
	TrackID string `json:"trackId"`
	UserID  string `json:"userId"`
}

type PlaylistUpdate struct {
	Event     string          `json:"event"`
	Track     json.RawMessage `json:"track,omitempty"`
	TrackID   string          `json:"trackId,omitempty"`
	AddedBy   string          `json:"addedBy,omitempty"`
	RemovedBy string          `json:"removedBy,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// NewFrame marshals data into a frame ready to be written to a socket.
func NewFrame(event EventName, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}
