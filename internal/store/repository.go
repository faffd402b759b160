// Package store persists chat messages. The router treats it as an
// opaque collaborator: persistence success is the sender's success
// criterion, and the durable id and timestamp come from here.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ogas1024/chat-room/internal/domain"
	"github.com/ogas1024/chat-room/pkg/log"
)

// Repository persists and reads back chat messages.
type Repository interface {
	// Save assigns the message its durable id and timestamp and writes
	// it. The message is mutated in place.
	Save(ctx context.Context, msg *domain.Message) error
	// History returns up to limit messages of a room in ascending time
	// order, ending just before beforeID when set. hasMore reports
	// whether older messages remain.
	History(ctx context.Context, roomID string, limit int, beforeID string) (msgs []domain.Message, hasMore bool, err error)
}

const defaultHistoryLimit = 50

// GormRepository implements Repository using GORM.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a GORM-based message repository.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Migrate creates the messages table.
func (r *GormRepository) Migrate() error {
	return r.db.AutoMigrate(&MessageModel{})
}

func (r *GormRepository) Save(ctx context.Context, msg *domain.Message) error {
	msg.ID = uuid.New().String()
	msg.CreatedAt = time.Now().UTC()

	model := MessageToModel(msg)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, msg.RoomID).Msg("failed to save message")
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

func (r *GormRepository) History(ctx context.Context, roomID string, limit int, beforeID string) ([]domain.Message, bool, error) {
	if limit < 1 || limit > 200 {
		limit = defaultHistoryLimit
	}

	query := r.db.WithContext(ctx).Model(&MessageModel{}).Where("room_id = ?", roomID)

	if beforeID != "" {
		var anchor MessageModel
		err := r.db.WithContext(ctx).First(&anchor, "id = ?", beforeID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, false, domain.ErrInvalidContent
			}
			return nil, false, fmt.Errorf("resolve history cursor: %w", err)
		}
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)",
			anchor.CreatedAt, anchor.CreatedAt, anchor.ID)
	}

	// Fetch limit+1 newest-first to learn whether older messages remain.
	var models []MessageModel
	if err := query.Order("created_at DESC, id DESC").Limit(limit + 1).Find(&models).Error; err != nil {
		return nil, false, fmt.Errorf("load history: %w", err)
	}

	hasMore := len(models) > limit
	if hasMore {
		models = models[:limit]
	}

	// Reverse into ascending order for replay.
	msgs := make([]domain.Message, len(models))
	for i, model := range models {
		msgs[len(models)-1-i] = model.ToDomain()
	}
	return msgs, hasMore, nil
}
