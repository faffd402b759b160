package store

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ogas1024/chat-room/internal/domain"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *GormRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	repo := NewGormRepository(db)
	if err := repo.Migrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return repo
}

func TestRepository_Save(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	msg := &domain.Message{
		SenderID:   "u1",
		SenderName: "alice",
		RoomID:     "general",
		Type:       domain.MessageText,
		Body:       "hi",
	}
	if err := repo.Save(ctx, msg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if msg.ID == "" {
		t.Error("Save() did not assign a durable id")
	}
	if msg.CreatedAt.IsZero() {
		t.Error("Save() did not assign a timestamp")
	}

	got, _, err := repo.History(ctx, "general", 10, "")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 1 || got[0].Body != "hi" || got[0].SenderName != "alice" {
		t.Errorf("History() = %+v, want the saved message", got)
	}
}

func TestRepository_HistoryPagination(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		msg := &domain.Message{
			SenderID:   "u1",
			SenderName: "alice",
			RoomID:     "general",
			Type:       domain.MessageText,
			Body:       fmt.Sprintf("msg-%d", i),
		}
		if err := repo.Save(ctx, msg); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	// Latest page.
	page1, hasMore, err := repo.History(ctx, "general", 2, "")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(page1) != 2 || !hasMore {
		t.Fatalf("History() = %d msgs, hasMore=%v; want 2, true", len(page1), hasMore)
	}
	if page1[0].Body != "msg-3" || page1[1].Body != "msg-4" {
		t.Errorf("latest page = [%s, %s], want [msg-3, msg-4]", page1[0].Body, page1[1].Body)
	}

	// Older page via cursor.
	page2, hasMore, err := repo.History(ctx, "general", 2, page1[0].ID)
	if err != nil {
		t.Fatalf("History() with cursor error = %v", err)
	}
	if len(page2) != 2 || !hasMore {
		t.Fatalf("cursor page = %d msgs, hasMore=%v; want 2, true", len(page2), hasMore)
	}
	if page2[0].Body != "msg-1" || page2[1].Body != "msg-2" {
		t.Errorf("cursor page = [%s, %s], want [msg-1, msg-2]", page2[0].Body, page2[1].Body)
	}

	// Final page.
	page3, hasMore, err := repo.History(ctx, "general", 2, page2[0].ID)
	if err != nil {
		t.Fatalf("History() final page error = %v", err)
	}
	if len(page3) != 1 || hasMore {
		t.Fatalf("final page = %d msgs, hasMore=%v; want 1, false", len(page3), hasMore)
	}
}

func TestRepository_HistoryRoomIsolation(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	for _, room := range []string{"a", "b", "a"} {
		msg := &domain.Message{SenderID: "u1", SenderName: "alice", RoomID: room, Type: domain.MessageText, Body: "x"}
		if err := repo.Save(ctx, msg); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	got, _, err := repo.History(ctx, "a", 10, "")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("History(a) = %d msgs, want 2", len(got))
	}
}
