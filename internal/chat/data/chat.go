package data

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/lk2023060901/pentestgpt-backend/internal/chat/biz"
	"github.com/lk2023060901/pentestgpt-backend/internal/chat/models"
)

// ChatRepo implements the chat repository using GORM
type ChatRepo struct {
	db *gorm.DB
}

// NewChatRepo creates a new chat repository
func NewChatRepo(db *gorm.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// Create creates a new chat
func (r *ChatRepo) Create(ctx context.Context, chat *biz.Chat) error {
	model := chatToModel(chat)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}
	chat.CreatedAt = model.CreatedAt
	chat.UpdatedAt = model.UpdatedAt
	return nil
}

// GetByID retrieves a chat by ID
func (r *ChatRepo) GetByID(ctx context.Context, id string) (*biz.Chat, error) {
	var model models.Chat
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, biz.ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return chatToDomain(&model), nil
}

// ListByUser lists all chats for a user, most recently updated first
func (r *ChatRepo) ListByUser(ctx context.Context, userID string) ([]*biz.Chat, error) {
	var modelList []models.Chat
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&modelList).Error; err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}

	chats := make([]*biz.Chat, 0, len(modelList))
	for i := range modelList {
		chats = append(chats, chatToDomain(&modelList[i]))
	}
	return chats, nil
}

// UpdateTitle sets the chat title
func (r *ChatRepo) UpdateTitle(ctx context.Context, id, title string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Chat{}).
		Where("id = ?", id).
		Update("title", title)
	if result.Error != nil {
		return fmt.Errorf("failed to update chat title: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return biz.ErrChatNotFound
	}
	return nil
}

// Delete soft-deletes a chat
func (r *ChatRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Chat{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete chat: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return biz.ErrChatNotFound
	}
	return nil
}

func chatToModel(c *biz.Chat) *models.Chat {
	return &models.Chat{
		ID:        c.ID,
		UserID:    c.UserID,
		Title:     c.Title,
		Model:     c.Model,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func chatToDomain(m *models.Chat) *biz.Chat {
	return &biz.Chat{
		ID:        m.ID,
		UserID:    m.UserID,
		Title:     m.Title,
		Model:     m.Model,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
