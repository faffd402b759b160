package identity

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ogas1024/chat-room/internal/domain"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	s := NewStore(db)
	if err := s.Migrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return s
}

func TestStore_RegisterAndAuthenticate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	user, err := s.Register(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.ID == "" || user.Username != "alice" {
		t.Fatalf("Register() = %+v, want alice with an id", user)
	}

	t.Run("correct password", func(t *testing.T) {
		got, err := s.Authenticate(ctx, "alice", "s3cret")
		if err != nil {
			t.Fatalf("Authenticate() error = %v", err)
		}
		if got.ID != user.ID {
			t.Errorf("Authenticate() id = %s, want %s", got.ID, user.ID)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := s.Authenticate(ctx, "alice", "nope")
		if !errors.Is(err, domain.ErrAuthentication) {
			t.Fatalf("expected ErrAuthentication, got %v", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := s.Authenticate(ctx, "nobody", "s3cret")
		if !errors.Is(err, domain.ErrAuthentication) {
			t.Fatalf("expected ErrAuthentication, got %v", err)
		}
	})
}

func TestStore_RegisterDuplicate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.Register(ctx, "alice", "pw"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	_, err := s.Register(ctx, "alice", "other")
	if !errors.Is(err, domain.ErrDuplicateUser) {
		t.Fatalf("expected ErrDuplicateUser, got %v", err)
	}
}

func TestStore_Exists(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "alice")
	if err != nil || ok {
		t.Fatalf("Exists() = %v, %v; want false, nil", ok, err)
	}

	s.Register(ctx, "alice", "pw")
	ok, err = s.Exists(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("Exists() = %v, %v; want true, nil", ok, err)
	}
}

func TestStore_Lookup(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	user, _ := s.Register(ctx, "alice", "pw")

	got, err := s.Lookup(ctx, user.ID)
	if err != nil || got.Username != "alice" {
		t.Fatalf("Lookup() = %+v, %v; want alice", got, err)
	}

	_, err = s.Lookup(ctx, "missing")
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
