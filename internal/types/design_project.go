package types

import (
	"time"

	"github.com/google/uuid"
)

// DesignProject lifecycle statuses. Transitions are monotonic within one
// submission; only a fresh photo submission may reset to processing.
const (
	ProjectStatusProcessing          = "processing"
	ProjectStatusErrorVision         = "error_vision"
	ProjectStatusAwaitingSelection   = "awaiting_selection"
	ProjectStatusProcessedNoItems    = "processed_no_items"
	ProjectStatusSuggestionsProvided = "suggestions_provided"
	ProjectStatusRenderingFinal      = "rendering_final"
	ProjectStatusCompleted           = "completed"
	ProjectStatusFailed              = "failed"
)

var projectStatusRank = map[string]int{
	ProjectStatusProcessing:          0,
	ProjectStatusErrorVision:         1,
	ProjectStatusAwaitingSelection:   1,
	ProjectStatusProcessedNoItems:    1,
	ProjectStatusSuggestionsProvided: 2,
	ProjectStatusRenderingFinal:      3,
	ProjectStatusCompleted:           4,
	ProjectStatusFailed:              4,
}

// CanTransitionStatus reports whether moving from one status to another
// respects the forward-only state machine. A move back to processing is
// allowed because it models a brand-new submission.
func CanTransitionStatus(from, to string) bool {
	if to == ProjectStatusProcessing {
		return true
	}
	fromRank, ok := projectStatusRank[from]
	if !ok {
		return true
	}
	toRank, ok := projectStatusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

type DesignProject struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;index;column:user_id" json:"user_id"`
	SourcePhotoURL string    `gorm:"not null;column:source_photo_url" json:"source_photo_url"`
	FinalRenderURL string    `gorm:"column:final_render_url" json:"final_render_url,omitempty"`
	Status         string    `gorm:"not null;default:processing;column:status" json:"status"`
	CreatedAt      time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (DesignProject) TableName() string {
	return "design_project"
}
