package types

import (
	"time"

	"github.com/google/uuid"
)

type UserToken struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index;column:user_id" json:"user_id"`
	TokenHash string    `gorm:"not null;column:token_hash" json:"-"`
	ExpiresAt time.Time `gorm:"not null;column:expires_at" json:"expires_at"`
	Revoked   bool      `gorm:"not null;default:false;column:revoked" json:"revoked"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (UserToken) TableName() string {
	return "user_token"
}
