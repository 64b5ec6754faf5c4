package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	FeedbackLiked    = "liked"
	FeedbackDisliked = "disliked"
)

// SuggestionSlot is one of the up-to-three persisted suggestions on a
// DetectedItem. Stored inside the suggestions JSON column.
type SuggestionSlot struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	ImageURL    string    `json:"image_url"`
	Score       float64   `json:"score"`
	Sources     []string  `json:"sources,omitempty"`
}

type DetectedItem struct {
	ID                uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProjectID         uuid.UUID      `gorm:"type:uuid;not null;index;column:project_id" json:"project_id"`
	Name              string         `gorm:"not null;column:name" json:"name"`
	Description       string         `gorm:"column:description" json:"description"`
	BoundingBox       datatypes.JSON `gorm:"column:bounding_box" json:"bounding_box"`
	Suggestions       datatypes.JSON `gorm:"column:suggestions" json:"suggestions"`
	SelectedProductID *uuid.UUID     `gorm:"type:uuid;column:selected_product_id" json:"selected_product_id,omitempty"`
	Feedback          string         `gorm:"column:feedback" json:"feedback,omitempty"`
	CompositeImageURL string         `gorm:"column:composite_image_url" json:"composite_image_url,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (DetectedItem) TableName() string {
	return "detected_item"
}
