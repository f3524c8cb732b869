package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AuditAction string

const (
	AuditRegistered         AuditAction = "registered"
	AuditLoginSuccess       AuditAction = "login_success"
	AuditLoginFailed        AuditAction = "login_failed"
	AuditEmailVerified      AuditAction = "email_verified"
	AuditVerificationResent AuditAction = "verification_resent"
	AuditResetRequested     AuditAction = "reset_requested"
	AuditPasswordReset      AuditAction = "password_reset"
	AuditNotifyFailed       AuditAction = "notification_failed"
)

// AuditLog is an append-only trail of security-relevant account events.
type AuditLog struct {
	ID uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`

	UserID *uuid.UUID `gorm:"type:uuid;index"`
	User   *User      `gorm:"constraint:OnDelete:SET NULL"`

	IPAddress *string     `gorm:"type:varchar(45)"`
	Action    AuditAction `gorm:"type:varchar(40);not null"`

	Metadata datatypes.JSON

	CreatedAt time.Time
}
