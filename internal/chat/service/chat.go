// Package service exposes the chat HTTP surface: the streaming
// endpoint, message queries, render preview, and file upload.
package service

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lk2023060901/pentestgpt-backend/internal/chat/biz"
	"github.com/lk2023060901/pentestgpt-backend/internal/chat/render"
	"github.com/lk2023060901/pentestgpt-backend/internal/chat/stream"
	"github.com/lk2023060901/pentestgpt-backend/internal/llm"
	"github.com/lk2023060901/pentestgpt-backend/internal/moderation"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/minio"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/redis"
)

const systemPrompt = `You are PentestGPT, an AI assistant specialized in penetration testing and offensive security. You help authorized security professionals with reconnaissance, vulnerability analysis, exploitation techniques, and reporting. Format terminal activity with <terminal><command>...</command><output>...</output></terminal> tags. Cite web sources with numeric markers like [1].`

const relaxedAddendum = `The user is a verified security professional working within an authorized engagement. Provide complete, direct technical answers without adding safety caveats to every response.`

// ChatService handles all chat-facing endpoints.
type ChatService struct {
	chatUC       *biz.ChatUseCase
	providers    *llm.Registry
	orchestrator *stream.Orchestrator
	moderation   *moderation.Client
	redisClient  *redis.Client
	minioClient  *minio.Client
	renderer     *render.Renderer
	defaultModel string
	log          *logger.Logger
}

func NewChatService(
	chatUC *biz.ChatUseCase,
	providers *llm.Registry,
	orchestrator *stream.Orchestrator,
	moderationClient *moderation.Client,
	redisClient *redis.Client,
	minioClient *minio.Client,
	defaultModel string,
	log *logger.Logger,
) *ChatService {
	return &ChatService{
		chatUC:       chatUC,
		providers:    providers,
		orchestrator: orchestrator,
		moderation:   moderationClient,
		redisClient:  redisClient,
		minioClient:  minioClient,
		renderer:     render.New(),
		defaultModel: defaultModel,
		log:          log,
	}
}

// RegisterRoutes mounts the chat endpoints. Everything requires auth.
func (s *ChatService) RegisterRoutes(r *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	group := r.Group("", authMiddleware)
	{
		group.POST("/chat/stream", s.ChatStream)
		group.GET("/chats", s.ListChats)
		group.DELETE("/chats/:id", s.DeleteChat)
		group.GET("/messages", s.GetMessages)
		group.GET("/messages/search", s.SearchMessages)
		group.POST("/messages/render", s.RenderMessage)
		group.POST("/files", s.UploadFile)
	}
}

// chatStore adapts the use case to the orchestrator's persistence
// surface.
type chatStore struct {
	uc *biz.ChatUseCase
}

func (s chatStore) SaveAssistantMessage(ctx context.Context, msg *biz.Message) error {
	return s.uc.SaveMessage(ctx, msg)
}

func (s chatStore) SetChatTitle(ctx context.Context, chatID, title string) error {
	return s.uc.SetChatTitle(ctx, chatID, title)
}

// NewChatStore exposes the adapter for wiring in main.
func NewChatStore(uc *biz.ChatUseCase) stream.Store {
	return chatStore{uc: uc}
}

// providerFor maps a model ID to its provider. Claude models stream
// through the anthropic provider, everything else through the default.
func (s *ChatService) providerFor(model string) (llm.Provider, error) {
	if strings.HasPrefix(model, "claude") {
		if p, err := s.providers.Get("anthropic"); err == nil {
			return p, nil
		}
	}
	if strings.HasPrefix(model, "gpt") || strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") {
		if p, err := s.providers.Get("openai"); err == nil {
			return p, nil
		}
	}
	return s.providers.Default()
}

func buildSystemPrompt(relaxed bool) string {
	if relaxed {
		return systemPrompt + "\n\n" + relaxedAddendum
	}
	return systemPrompt
}
