package domain

import "time"

// MessageType tags the payload kind of a chat message.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageSystem MessageType = "system"
	// MessageFile carries a file reference by id only; the core never
	// inspects file bytes.
	MessageFile MessageType = "file"
)

// Message is an immutable chat record. The durable id and timestamp are
// assigned by the persistence store before any fan-out begins.
type Message struct {
	ID         string      `json:"id"`
	SenderID   string      `json:"sender_id"`
	SenderName string      `json:"sender_name"`
	RoomID     string      `json:"room_id"`
	Type       MessageType `json:"type"`
	Body       string      `json:"body"`
	CreatedAt  time.Time   `json:"created_at"`
}
