package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

type ChatMessage struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index;column:project_id" json:"project_id"`
	Role      string    `gorm:"not null;column:role" json:"role"`
	Content   string    `gorm:"not null;column:content" json:"content"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ChatMessage) TableName() string {
	return "chat_message"
}
