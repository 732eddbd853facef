package models

import (
	"time"

	"gorm.io/gorm"
)

// Chat is the GORM model for the chats table.
type Chat struct {
	ID        string         `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string         `gorm:"type:uuid;not null;index" json:"user_id"`
	Title     string         `gorm:"type:varchar(255);not null;default:''" json:"title"`
	Model     string         `gorm:"type:varchar(100)" json:"model,omitempty"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name
func (Chat) TableName() string {
	return "chats"
}
