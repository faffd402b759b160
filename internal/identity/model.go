package identity

import (
	"time"

	"github.com/ogas1024/chat-room/internal/domain"
	"github.com/ogas1024/chat-room/pkg/database"
)

// UserModel is the GORM model for the users table. The password hash
// never leaves this package.
type UserModel struct {
	ID           string               `gorm:"type:varchar(36);primaryKey"`
	Username     string               `gorm:"type:varchar(50);uniqueIndex;not null"`
	PasswordHash string               `gorm:"type:varchar(100);not null"`
	Roles        database.StringArray `gorm:"type:text"`
	CreatedAt    time.Time            `gorm:"autoCreateTime"`
}

// TableName specifies the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts UserModel to a domain User.
func (m *UserModel) ToDomain() *domain.User {
	return &domain.User{
		ID:       m.ID,
		Username: m.Username,
		Roles:    []string(m.Roles),
	}
}
