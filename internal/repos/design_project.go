package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/casaviva/decora-backend/internal/logger"
	"github.com/casaviva/decora-backend/internal/types"
)

type DesignProjectRepo interface {
	Create(ctx context.Context, tx *gorm.DB, project *types.DesignProject) (*types.DesignProject, error)
	GetByID(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) (*types.DesignProject, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.DesignProject, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, projectID uuid.UUID, status string) error
	UpdateFinalRender(ctx context.Context, tx *gorm.DB, projectID uuid.UUID, renderURL string) error
	ResetForSubmission(ctx context.Context, tx *gorm.DB, projectID uuid.UUID, photoURL string) error
}

type designProjectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDesignProjectRepo(db *gorm.DB, baseLog *logger.Logger) DesignProjectRepo {
	return &designProjectRepo{db: db, log: baseLog.With("repo", "DesignProjectRepo")}
}

func (pr *designProjectRepo) Create(ctx context.Context, tx *gorm.DB, project *types.DesignProject) (*types.DesignProject, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	if err := transaction.WithContext(ctx).Create(project).Error; err != nil {
		return nil, err
	}
	return project, nil
}

func (pr *designProjectRepo) GetByID(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) (*types.DesignProject, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	var project types.DesignProject
	if err := transaction.WithContext(ctx).
		Where("id = ?", projectID).
		First(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

func (pr *designProjectRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.DesignProject, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	var results []*types.DesignProject
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (pr *designProjectRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, projectID uuid.UUID, status string) error {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	return transaction.WithContext(ctx).
		Model(&types.DesignProject{}).
		Where("id = ?", projectID).
		Update("status", status).Error
}

func (pr *designProjectRepo) UpdateFinalRender(ctx context.Context, tx *gorm.DB, projectID uuid.UUID, renderURL string) error {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	return transaction.WithContext(ctx).
		Model(&types.DesignProject{}).
		Where("id = ?", projectID).
		Update("final_render_url", renderURL).Error
}

// ResetForSubmission points the project at a new source photo and restarts
// the lifecycle. Detected items from the previous submission are removed so
// the new pipeline starts clean.
func (pr *designProjectRepo) ResetForSubmission(ctx context.Context, tx *gorm.DB, projectID uuid.UUID, photoURL string) error {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	return transaction.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		if err := inner.
			Where("project_id = ?", projectID).
			Delete(&types.DetectedItem{}).Error; err != nil {
			return err
		}
		return inner.
			Model(&types.DesignProject{}).
			Where("id = ?", projectID).
			Updates(map[string]any{
				"source_photo_url": photoURL,
				"final_render_url": "",
				"status":           types.ProjectStatusProcessing,
			}).Error
	})
}
