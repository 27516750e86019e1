package models

import "time"

type Track struct {
	ID        string     `json:"_id"`
	Title     string     `json:"title"`
	Artist    string     `json:"artist"`
	Source    string     `json:"source,omitempty"`
	URL       string     `json:"url"`
	Cover     string     `json:"cover,omitempty"`
	Message   string     `json:"message,omitempty"`
	AddedBy   string     `json:"-"`
	Adder     *TrackUser `json:"addedBy,omitempty"`
	GroupID   string     `json:"groupId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// TrackUser is the public slice of the user who added a track.
type TrackUser struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type AddTrackRequest struct {
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	Source  string `json:"source,omitempty"`
	URL     string `json:"url"`
	Cover   string `json:"cover,omitempty"`
	Message string `json:"message,omitempty"`
}
