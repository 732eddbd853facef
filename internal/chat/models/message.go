package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Message is the GORM model for the messages table. The ID is assigned
// by the caller before streaming starts so the UI can reference the
// message mid-stream.
type Message struct {
	ID              string      `gorm:"primaryKey;type:uuid" json:"id"`
	ChatID          string      `gorm:"type:uuid;not null;index" json:"chat_id"`
	Role            string      `gorm:"type:varchar(20);not null" json:"role"` // user | assistant
	Content         string      `gorm:"type:text;not null" json:"content"`
	Citations       StringSlice `gorm:"type:jsonb" json:"citations,omitempty"`
	ThinkingText    *string     `gorm:"type:text" json:"thinking_text,omitempty"`
	ThinkingSeconds *int        `gorm:"type:integer" json:"thinking_seconds,omitempty"`
	FinishReason    string      `gorm:"type:varchar(50)" json:"finish_reason,omitempty"`
	Model           string      `gorm:"type:varchar(100)" json:"model,omitempty"`
	TokenCount      *int        `gorm:"type:integer" json:"token_count,omitempty"`
	CreatedAt       time.Time   `gorm:"not null;index" json:"created_at"`
}

// TableName specifies the table name
func (Message) TableName() string {
	return "messages"
}

// StringSlice is a custom type for []string stored as JSONB
type StringSlice []string

// Scan implements sql.Scanner interface
func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, s)
}

// Value implements driver.Valuer interface
func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}
