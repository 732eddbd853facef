package data

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/lk2023060901/pentestgpt-backend/internal/auth"
	"gorm.io/gorm"
)

// BackupCodesJSON stores hashed MFA recovery codes as jsonb.
type BackupCodesJSON []auth.BackupCode

func (j *BackupCodesJSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

func (j BackupCodesJSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// UserPO is the gorm model backing accounts.
type UserPO struct {
	ID            string `gorm:"type:uuid;primarykey"`
	Name          string `gorm:"size:100;not null"`
	Email         string `gorm:"size:255;not null;uniqueIndex:idx_users_email,where:deleted_at IS NULL"`
	EmailVerified bool   `gorm:"not null;default:false"`

	PasswordHash string `gorm:"size:255"`

	RefreshToken          *string `gorm:"size:512"`
	RefreshTokenExpiresAt *time.Time

	TwoFactorEnabled     bool            `gorm:"not null;default:false"`
	TwoFactorSecret      *string         `gorm:"size:32"`
	TwoFactorBackupCodes BackupCodesJSON `gorm:"type:jsonb"`

	LastLoginAt         *time.Time
	LastLoginIP         *string `gorm:"size:45"`
	FailedLoginAttempts int     `gorm:"not null;default:0"`
	LockedUntil         *time.Time

	EmailVerificationToken     *string `gorm:"size:64;index:idx_users_email_verification_token,where:email_verification_token IS NOT NULL"`
	EmailVerificationExpiresAt *time.Time

	PasswordResetToken     *string `gorm:"size:64;index:idx_users_password_reset_token,where:password_reset_token IS NOT NULL"`
	PasswordResetExpiresAt *time.Time

	GoogleID *string `gorm:"size:64;index:idx_users_google_id,where:google_id IS NOT NULL"`

	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (UserPO) TableName() string {
	return "users"
}
