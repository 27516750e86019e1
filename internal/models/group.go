package models

import "time"

type Group struct {
	ID            string    `json:"groupId"`
	Name          string    `json:"groupName"`
	Code          string    `json:"groupCode"`
	Description   string    `json:"description,omitempty"`
	TotalSongs    int       `json:"totalSongs"`
	TotalMessages int       `json:"totalMessages"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// GroupMember is a membership row as the directory knows it.
type GroupMember struct {
	UserID   string    `json:"userId"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

type CreateGroupRequest struct {
	Name        string `json:"groupName"`
	Description string `json:"description,omitempty"`
}

type JoinGroupRequest struct {
	Code string `json:"groupCode"`
}

type GroupResponse struct {
	Group
	Role         string `json:"groupRole,omitempty"`
	MembersCount int    `json:"membersCount"`
	Message      string `json:"message,omitempty"`
}

type GroupDetails struct {
	Group
	Members      []MemberPresence `json:"members"`
	TotalMembers int              `json:"totalMembers"`
}

type LeaveGroupResponse struct {
	Message      string `json:"message"`
	GroupDeleted bool   `json:"groupDeleted"`
}
