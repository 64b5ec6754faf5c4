package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/casaviva/decora-backend/internal/logger"
	"github.com/casaviva/decora-backend/internal/types"
)

type ChatMessageRepo interface {
	Create(ctx context.Context, tx *gorm.DB, msg *types.ChatMessage) (*types.ChatMessage, error)
	ListByProject(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) ([]*types.ChatMessage, error)
}

type chatMessageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatMessageRepo(db *gorm.DB, baseLog *logger.Logger) ChatMessageRepo {
	return &chatMessageRepo{db: db, log: baseLog.With("repo", "ChatMessageRepo")}
}

func (cr *chatMessageRepo) Create(ctx context.Context, tx *gorm.DB, msg *types.ChatMessage) (*types.ChatMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	if err := transaction.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

func (cr *chatMessageRepo) ListByProject(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) ([]*types.ChatMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	var results []*types.ChatMessage
	if err := transaction.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
