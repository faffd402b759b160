package domain

import "time"

// RoomType distinguishes the three kinds of message destinations.
type RoomType string

const (
	RoomPublic  RoomType = "public"
	RoomGroup   RoomType = "group"
	RoomPrivate RoomType = "private"
)

// Room is a named destination for messages. Membership is owned by the
// room manager; Room itself is immutable after creation.
type Room struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       RoomType  `json:"type"`
	OwnerID    string    `json:"owner_id,omitempty"`
	MaxMembers int       `json:"max_members"`
	CreatedAt  time.Time `json:"created_at"`
}
