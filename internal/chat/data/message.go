package data

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lk2023060901/pentestgpt-backend/internal/chat/biz"
	"github.com/lk2023060901/pentestgpt-backend/internal/chat/models"
)

// MessageRepo implements the message repository using GORM
type MessageRepo struct {
	db *gorm.DB
}

// NewMessageRepo creates a new message repository
func NewMessageRepo(db *gorm.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create inserts a message. Inserts with an ID that already exists are
// ignored, so finalization writes keyed on a pre-generated ID stay
// exactly-once even if retried.
func (r *MessageRepo) Create(ctx context.Context, message *biz.Message) error {
	model := messageToModel(message)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now()
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	message.CreatedAt = model.CreatedAt
	return nil
}

// GetByID retrieves a message by ID
func (r *MessageRepo) GetByID(ctx context.Context, id string) (*biz.Message, error) {
	var model models.Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, biz.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return messageToDomain(&model), nil
}

// ListByChat returns one page of a chat's messages in conversation
// order (oldest first) using keyset pagination on (created_at, id).
func (r *MessageRepo) ListByChat(ctx context.Context, chatID string, limit int, cursor string) (*biz.MessagePage, error) {
	query := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC, id ASC").
		Limit(limit + 1)

	if cursor != "" {
		after, err := decodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		query = query.Where("(created_at, id) > (?, ?)", after.createdAt, after.id)
	}

	var modelList []models.Message
	if err := query.Find(&modelList).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return buildPage(modelList, limit), nil
}

// SearchByUser returns one page of the user's messages whose content
// matches the query, newest first. The match is a case-insensitive
// substring match across all of the user's chats.
func (r *MessageRepo) SearchByUser(ctx context.Context, userID, query string, limit int, cursor string) (*biz.MessagePage, error) {
	pattern := "%" + escapeLike(query) + "%"
	dbQuery := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Joins("JOIN chats ON chats.id = messages.chat_id").
		Where("chats.user_id = ? AND chats.deleted_at IS NULL", userID).
		Where("messages.content ILIKE ?", pattern).
		Order("messages.created_at DESC, messages.id DESC").
		Limit(limit + 1)

	if cursor != "" {
		before, err := decodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		dbQuery = dbQuery.Where("(messages.created_at, messages.id) < (?, ?)", before.createdAt, before.id)
	}

	var modelList []models.Message
	if err := dbQuery.Find(&modelList).Error; err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	return buildPage(modelList, limit), nil
}

func buildPage(modelList []models.Message, limit int) *biz.MessagePage {
	hasMore := len(modelList) > limit
	if hasMore {
		modelList = modelList[:limit]
	}

	page := &biz.MessagePage{Messages: make([]*biz.Message, 0, len(modelList))}
	for i := range modelList {
		page.Messages = append(page.Messages, messageToDomain(&modelList[i]))
	}
	if hasMore {
		last := modelList[len(modelList)-1]
		page.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}
	return page
}

type messageCursor struct {
	createdAt time.Time
	id        string
}

func encodeCursor(createdAt time.Time, id string) string {
	raw := strconv.FormatInt(createdAt.UnixNano(), 10) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

var errBadCursor = errors.New("invalid cursor")

func decodeCursor(cursor string) (*messageCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, errBadCursor
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return nil, errBadCursor
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, errBadCursor
	}
	return &messageCursor{createdAt: time.Unix(0, nanos), id: parts[1]}, nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

func messageToModel(m *biz.Message) *models.Message {
	return &models.Message{
		ID:              m.ID,
		ChatID:          m.ChatID,
		Role:            m.Role,
		Content:         m.Content,
		Citations:       models.StringSlice(m.Citations),
		ThinkingText:    m.ThinkingText,
		ThinkingSeconds: m.ThinkingSeconds,
		FinishReason:    m.FinishReason,
		Model:           m.Model,
		TokenCount:      m.TokenCount,
		CreatedAt:       m.CreatedAt,
	}
}

func messageToDomain(m *models.Message) *biz.Message {
	return &biz.Message{
		ID:              m.ID,
		ChatID:          m.ChatID,
		Role:            m.Role,
		Content:         m.Content,
		Citations:       []string(m.Citations),
		ThinkingText:    m.ThinkingText,
		ThinkingSeconds: m.ThinkingSeconds,
		FinishReason:    m.FinishReason,
		Model:           m.Model,
		TokenCount:      m.TokenCount,
		CreatedAt:       m.CreatedAt,
	}
}
