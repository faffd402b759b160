package store

import (
	"time"

	"github.com/ogas1024/chat-room/internal/domain"
)

// MessageModel is the GORM model for the messages table.
type MessageModel struct {
	ID         string    `gorm:"type:varchar(36);primaryKey"`
	SenderID   string    `gorm:"type:varchar(36);index;not null"`
	SenderName string    `gorm:"type:varchar(50);not null"`
	RoomID     string    `gorm:"type:varchar(64);index:idx_room_created;not null"`
	Kind       string    `gorm:"type:varchar(16);not null"`
	Body       string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"index:idx_room_created;not null"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts MessageModel to a domain Message.
func (m *MessageModel) ToDomain() domain.Message {
	return domain.Message{
		ID:         m.ID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		RoomID:     m.RoomID,
		Type:       domain.MessageType(m.Kind),
		Body:       m.Body,
		CreatedAt:  m.CreatedAt,
	}
}

// MessageToModel converts a domain Message to its GORM model.
func MessageToModel(msg *domain.Message) *MessageModel {
	return &MessageModel{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		RoomID:     msg.RoomID,
		Kind:       string(msg.Type),
		Body:       msg.Body,
		CreatedAt:  msg.CreatedAt,
	}
}
