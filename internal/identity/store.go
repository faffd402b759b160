// Package identity is the identity collaborator: it owns user records
// and credential verification. The chat core only ever sees domain.User
// values; hashing is an implementation detail of this package.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ogas1024/chat-room/internal/domain"
	"github.com/ogas1024/chat-room/pkg/log"
)

// Store verifies credentials and manages user records.
type Store struct {
	db *gorm.DB
}

// NewStore creates a GORM-backed identity store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the users table.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&UserModel{})
}

// Register creates a new user with a hashed credential.
func (s *Store) Register(ctx context.Context, username, password string) (*domain.User, error) {
	if username == "" || password == "" {
		return nil, domain.ErrInvalidContent
	}

	exists, err := s.Exists(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrDuplicateUser
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash credential: %w", err)
	}

	model := &UserModel{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUsername, username).Msg("failed to create user")
		return nil, fmt.Errorf("create user: %w", err)
	}
	return model.ToDomain(), nil
}

// Authenticate verifies a username/credential pair. A bad username and
// a bad password are indistinguishable to the caller.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	var model UserModel
	err := s.db.WithContext(ctx).First(&model, "username = ?", username).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAuthentication
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}

	if !verifyPassword(password, model.PasswordHash) {
		return nil, domain.ErrAuthentication
	}
	return model.ToDomain(), nil
}

// Exists reports whether a username is taken.
func (s *Store) Exists(ctx context.Context, username string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&UserModel{}).Where("username = ?", username).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return count > 0, nil
}

// Lookup fetches a user by id.
func (s *Store) Lookup(ctx context.Context, userID string) (*domain.User, error) {
	var model UserModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}
	return model.ToDomain(), nil
}
