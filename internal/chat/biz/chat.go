package biz

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrChatNotFound    = errors.New("chat not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotChatOwner    = errors.New("chat does not belong to user")
)

// DefaultPageSize is used when the client does not specify numItems.
const DefaultPageSize = 20

// MaxPageSize caps numItems.
const MaxPageSize = 100

// Chat is a conversation owned by one user.
type Chat struct {
	ID        string
	UserID    string
	Title     string
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one turn in a chat. Assistant messages carry the fields
// written by the streaming finalizer.
type Message struct {
	ID              string
	ChatID          string
	Role            string
	Content         string
	Citations       []string
	ThinkingText    *string
	ThinkingSeconds *int
	FinishReason    string
	Model           string
	TokenCount      *int
	CreatedAt       time.Time
}

// MessagePage is one page of messages plus the cursor for the next
// page. NextCursor is empty when there are no more results.
type MessagePage struct {
	Messages   []*Message
	NextCursor string
}

// ChatRepo is the chat persistence interface.
type ChatRepo interface {
	Create(ctx context.Context, chat *Chat) error
	GetByID(ctx context.Context, id string) (*Chat, error)
	ListByUser(ctx context.Context, userID string) ([]*Chat, error)
	UpdateTitle(ctx context.Context, id, title string) error
	Delete(ctx context.Context, id string) error
}

// MessageRepo is the message persistence interface. Create must be
// idempotent on the message ID: a second write with the same ID is a
// no-op, which is what makes finalization safe to key on a
// pre-generated assistant message ID.
type MessageRepo interface {
	Create(ctx context.Context, message *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	ListByChat(ctx context.Context, chatID string, limit int, cursor string) (*MessagePage, error)
	SearchByUser(ctx context.Context, userID, query string, limit int, cursor string) (*MessagePage, error)
}

// ChatUseCase implements chat and message operations.
type ChatUseCase struct {
	chatRepo    ChatRepo
	messageRepo MessageRepo
}

// NewChatUseCase creates a new chat use case
func NewChatUseCase(chatRepo ChatRepo, messageRepo MessageRepo) *ChatUseCase {
	return &ChatUseCase{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
	}
}

// CreateChat creates a chat row. The ID may be pre-generated by the
// caller (the stream handler allocates it before the first write).
func (uc *ChatUseCase) CreateChat(ctx context.Context, userID, chatID, title, model string) (*Chat, error) {
	if chatID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}
		chatID = id.String()
	}

	chat := &Chat{
		ID:     chatID,
		UserID: userID,
		Title:  title,
		Model:  model,
	}
	if err := uc.chatRepo.Create(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// GetChat returns the chat if it exists and belongs to userID.
func (uc *ChatUseCase) GetChat(ctx context.Context, userID, chatID string) (*Chat, error) {
	chat, err := uc.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.UserID != userID {
		return nil, ErrNotChatOwner
	}
	return chat, nil
}

// ListChats returns all chats for a user, most recent first.
func (uc *ChatUseCase) ListChats(ctx context.Context, userID string) ([]*Chat, error) {
	return uc.chatRepo.ListByUser(ctx, userID)
}

// SetChatTitle sets a title without ownership check. Used by stream
// finalization, which already runs on behalf of the chat owner.
func (uc *ChatUseCase) SetChatTitle(ctx context.Context, chatID, title string) error {
	return uc.chatRepo.UpdateTitle(ctx, chatID, title)
}

// UpdateChatTitle sets the chat title after ownership check.
func (uc *ChatUseCase) UpdateChatTitle(ctx context.Context, userID, chatID, title string) error {
	if _, err := uc.GetChat(ctx, userID, chatID); err != nil {
		return err
	}
	return uc.chatRepo.UpdateTitle(ctx, chatID, title)
}

// DeleteChat soft-deletes a chat after ownership check.
func (uc *ChatUseCase) DeleteChat(ctx context.Context, userID, chatID string) error {
	if _, err := uc.GetChat(ctx, userID, chatID); err != nil {
		return err
	}
	return uc.chatRepo.Delete(ctx, chatID)
}

// SaveMessage persists one message. Safe to call twice with the same
// message ID; the second call is a no-op.
func (uc *ChatUseCase) SaveMessage(ctx context.Context, message *Message) error {
	if message.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		message.ID = id.String()
	}
	return uc.messageRepo.Create(ctx, message)
}

// ListMessages returns a page of messages for a chat the user owns.
func (uc *ChatUseCase) ListMessages(ctx context.Context, userID, chatID string, numItems int, cursor string) (*MessagePage, error) {
	if _, err := uc.GetChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return uc.messageRepo.ListByChat(ctx, chatID, clampPageSize(numItems), cursor)
}

// SearchMessages returns a page of the user's messages whose content
// matches the query, newest first.
func (uc *ChatUseCase) SearchMessages(ctx context.Context, userID, query string, numItems int, cursor string) (*MessagePage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return &MessagePage{Messages: []*Message{}}, nil
	}
	return uc.messageRepo.SearchByUser(ctx, userID, query, clampPageSize(numItems), cursor)
}

// GetMessage returns one message after chat ownership check.
func (uc *ChatUseCase) GetMessage(ctx context.Context, userID, messageID string) (*Message, error) {
	message, err := uc.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := uc.GetChat(ctx, userID, message.ChatID); err != nil {
		return nil, err
	}
	return message, nil
}

func clampPageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}
