package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Product struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerID      uuid.UUID `gorm:"type:uuid;not null;index;column:owner_id" json:"owner_id"`
	Name         string    `gorm:"not null;column:name" json:"name"`
	Category     string    `gorm:"column:category;index" json:"category"`
	Description  string    `gorm:"column:description" json:"description"`
	ImageURL     string    `gorm:"column:image_url" json:"image_url"`
	SearchText   string    `gorm:"column:search_text" json:"-"`
	HasEmbedding bool      `gorm:"not null;default:false;column:has_embedding" json:"has_embedding"`
	CreatedAt    time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Product) TableName() string {
	return "product"
}

// BuildSearchText is the lexical-search-ready representation the FTS
// tsvector is maintained over.
func (p *Product) BuildSearchText() string {
	parts := []string{p.Name, p.Category, p.Description}
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return strings.Join(out, " ")
}
