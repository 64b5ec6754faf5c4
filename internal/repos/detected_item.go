package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/casaviva/decora-backend/internal/logger"
	"github.com/casaviva/decora-backend/internal/types"
)

type DetectedItemRepo interface {
	Create(ctx context.Context, tx *gorm.DB, item *types.DetectedItem) (*types.DetectedItem, error)
	GetByID(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (*types.DetectedItem, error)
	ListByProject(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) ([]*types.DetectedItem, error)
	UpdateSuggestions(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, suggestions datatypes.JSON) error
	UpdateSelection(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, productID uuid.UUID) error
	UpdateFeedback(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, feedback string) error
	UpdateCompositeURL(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, url string) error
}

type detectedItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDetectedItemRepo(db *gorm.DB, baseLog *logger.Logger) DetectedItemRepo {
	return &detectedItemRepo{db: db, log: baseLog.With("repo", "DetectedItemRepo")}
}

func (ir *detectedItemRepo) Create(ctx context.Context, tx *gorm.DB, item *types.DetectedItem) (*types.DetectedItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = ir.db
	}
	if err := transaction.WithContext(ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

func (ir *detectedItemRepo) GetByID(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (*types.DetectedItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = ir.db
	}
	var item types.DetectedItem
	if err := transaction.WithContext(ctx).
		Where("id = ?", itemID).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (ir *detectedItemRepo) ListByProject(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) ([]*types.DetectedItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = ir.db
	}
	var results []*types.DetectedItem
	if err := transaction.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (ir *detectedItemRepo) UpdateSuggestions(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, suggestions datatypes.JSON) error {
	transaction := tx
	if transaction == nil {
		transaction = ir.db
	}
	return transaction.WithContext(ctx).
		Model(&types.DetectedItem{}).
		Where("id = ?", itemID).
		Update("suggestions", suggestions).Error
}

func (ir *detectedItemRepo) UpdateSelection(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, productID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = ir.db
	}
	return transaction.WithContext(ctx).
		Model(&types.DetectedItem{}).
		Where("id = ?", itemID).
		Update("selected_product_id", productID).Error
}

func (ir *detectedItemRepo) UpdateFeedback(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, feedback string) error {
	transaction := tx
	if transaction == nil {
		transaction = ir.db
	}
	return transaction.WithContext(ctx).
		Model(&types.DetectedItem{}).
		Where("id = ?", itemID).
		Update("feedback", feedback).Error
}

func (ir *detectedItemRepo) UpdateCompositeURL(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, url string) error {
	transaction := tx
	if transaction == nil {
		transaction = ir.db
	}
	return transaction.WithContext(ctx).
		Model(&types.DetectedItem{}).
		Where("id = ?", itemID).
		Update("composite_image_url", url).Error
}
