package models

import "time"

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type User struct {
	ID                 string     `json:"_id"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	PasswordHash       string     `json:"-"`
	Avatar             string     `json:"avatar,omitempty"`
	SessionID          string     `json:"sessionId,omitempty"`
	IsGroupMode        bool       `json:"isGroupMode"`
	GroupID            string     `json:"groupId,omitempty"`
	GroupRole          string     `json:"groupRole,omitempty"`
	JoinedGroupAt      *time.Time `json:"joinedGroupAt,omitempty"`
	IsOnline           bool       `json:"isOnline"`
	LastSeen           time.Time  `json:"lastSeen"`
	CurrentlyListening string     `json:"currentlyListening,omitempty"`
	LastListenedSong   string     `json:"lastListenedSong,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Avatar   string `json:"avatar,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type UpdateProfileRequest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type DeleteAccountRequest struct {
	Password string `json:"password"`
}

type ListeningRequest struct {
	SongTitle  string `json:"songTitle"`
	SongArtist string `json:"songArtist"`
}

// MemberPresence is what a group member sees about another member.
type MemberPresence struct {
	UserID             string    `json:"userId"`
	Name               string    `json:"name"`
	Email              string    `json:"email,omitempty"`
	Avatar             string    `json:"avatar,omitempty"`
	IsOnline           bool      `json:"isOnline"`
	CurrentlyListening string    `json:"currentlyListening,omitempty"`
	LastSeen           time.Time `json:"lastSeen"`
	Role               string    `json:"role"`
	JoinedAt           time.Time `json:"joinedAt"`
}

type UserStatus struct {
	UserID             string     `json:"userId,omitempty"`
	Name               string     `json:"name,omitempty"`
	Avatar             string     `json:"avatar,omitempty"`
	IsOnline           bool       `json:"isOnline"`
	CurrentlyListening string     `json:"currentlyListening,omitempty"`
	LastListenedSong   string     `json:"lastListenedSong,omitempty"`
	LastSeen           *time.Time `json:"lastSeen"`
}
