package entity

import (
	"time"

	"github.com/google/uuid"
)

// User is the persisted account record. Email is stored lowercased so the
// unique index is effectively case-insensitive. The password hash and the
// reset token fields never leave the service layer.
type User struct {
	ID       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Username string    `gorm:"type:varchar(100);not null"`
	Email    string    `gorm:"type:varchar(255);uniqueIndex;not null"`

	PasswordHash string `gorm:"type:text;not null"`

	Verified bool `gorm:"not null;default:false"`
	Admin    bool `gorm:"not null;default:false"`
	Active   bool `gorm:"not null;default:true"`

	// Both set or both unset; cleared together when a reset is consumed.
	ResetTokenHash   *string `gorm:"type:text;index"`
	ResetTokenExpiry *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Role returns the role string carried in session tokens.
func (u *User) Role() string {
	if u.Admin {
		return "admin"
	}
	return "user"
}
