package service

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lk2023060901/pentestgpt-backend/internal/auth/middleware"
	"github.com/lk2023060901/pentestgpt-backend/internal/chat/biz"
	"github.com/lk2023060901/pentestgpt-backend/internal/chat/stream"
	"github.com/lk2023060901/pentestgpt-backend/internal/llm"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/response"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/sse"
)

type chatMessage struct {
	Role     string `json:"role" binding:"required"`
	Content  string `json:"content"`
	ImageURL string `json:"image_url"`
}

type streamRequest struct {
	ChatID   string        `json:"chat_id"`
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages" binding:"required,min=1"`
	// Tools selects a tool subset by name. Omitted means all tools.
	Tools []string `json:"tools"`
}

// ChatStream drives one streaming generation over SSE data frames.
func (s *ChatService) ChatStream(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Authentication failed")
		return
	}

	var req streamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Missing messages parameter")
		return
	}
	if req.Model == "" {
		req.Model = s.defaultModel
	}

	provider, err := s.providerFor(req.Model)
	if err != nil {
		s.log.Error("no provider for model", zap.String("model", req.Model), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	// Model usage is metered per user; the snapshot rides the data
	// channel so the client can show remaining quota.
	limit, err := middleware.CheckRateLimit(c.Request.Context(), s.redisClient,
		"rate_limit:user:"+userID, middleware.ChatStreamLimit)
	if err != nil {
		// Limiter trouble fails open, same as the middleware.
		s.log.Error("chat rate limiter error", zap.Error(err))
		limit = middleware.RateLimitResult{Allowed: true, Remaining: -1}
	}
	if !limit.Allowed {
		response.Error(c, http.StatusTooManyRequests, "Rate limit exceeded, please try again later")
		return
	}

	history := make([]llm.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content, ImageURL: m.ImageURL})
	}

	lastUser := lastUserMessage(history)
	if lastUser == "" && !hasImage(history) {
		response.Error(c, http.StatusBadRequest, "Missing user message")
		return
	}

	moderationResult := s.moderation.GetModerationResult(c.Request.Context(), history)

	chatTitle := ""
	chatID := req.ChatID
	if chatID != "" {
		chat, err := s.chatUC.GetChat(c.Request.Context(), userID, chatID)
		switch {
		case err == nil:
			chatTitle = chat.Title
		case err == biz.ErrNotChatOwner:
			response.Unauthorized(c, "Authentication failed")
			return
		case err == biz.ErrChatNotFound:
			response.Error(c, http.StatusNotFound, "Chat not found")
			return
		default:
			s.log.Error("failed to load chat", zap.Error(err))
			response.Error(c, http.StatusInternalServerError, "Internal server error")
			return
		}
	} else {
		id, err := uuid.NewV7()
		if err != nil {
			response.Error(c, http.StatusInternalServerError, "Internal server error")
			return
		}
		chatID = id.String()
	}

	assistantID, err := uuid.NewV7()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	// Chat setup runs concurrently with the stream; persistence waits
	// on chatReady so a message never lands before its chat row.
	chatReady := make(chan struct{})
	setupCtx := context.WithoutCancel(c.Request.Context())
	go func() {
		defer close(chatReady)
		if req.ChatID == "" {
			if _, err := s.chatUC.CreateChat(setupCtx, userID, chatID, "", req.Model); err != nil {
				s.log.Error("failed to create chat", zap.String("chat_id", chatID), zap.Error(err))
				return
			}
		}
		if err := s.chatUC.SaveMessage(setupCtx, &biz.Message{
			ChatID:  chatID,
			Role:    llm.RoleUser,
			Content: lastUser,
		}); err != nil {
			s.log.Error("failed to save user message", zap.String("chat_id", chatID), zap.Error(err))
		}
	}()

	ds := sse.NewDataStream(c)
	emitter := dataStreamEmitter{ds: ds}

	_, err = s.orchestrator.Run(c.Request.Context(), provider, &stream.Request{
		UserID:             userID,
		ChatID:             chatID,
		ChatTitle:          chatTitle,
		FirstUserMessage:   lastUser,
		Model:              req.Model,
		SystemPrompt:       buildSystemPrompt(moderationResult.ShouldUncensorResponse),
		History:            history,
		Tools:              req.Tools,
		RateLimit:          &stream.RateLimitInfo{Remaining: limit.Remaining, ResetAt: limit.ResetAt},
		AssistantMessageID: assistantID.String(),
		ChatReady:          chatReady,
	}, emitter)
	if err != nil {
		// Headers are long gone; surface the failure on the data
		// channel and end the stream.
		_ = ds.Send(gin.H{"type": "error", "content": "The model stream failed. Please try again."})
	}
}

type dataStreamEmitter struct {
	ds *sse.DataStream
}

func (e dataStreamEmitter) Emit(p stream.Packet) error {
	return e.ds.Send(p)
}

func lastUserMessage(history []llm.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == llm.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

func hasImage(history []llm.Message) bool {
	for _, m := range history {
		if m.ImageURL != "" {
			return true
		}
	}
	return false
}
