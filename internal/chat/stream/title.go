package stream

import (
	"context"
	"strings"
	"time"

	"github.com/lk2023060901/pentestgpt-backend/internal/llm"
)

// TitleGenerator produces a short chat title from the first user
// message.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, userMessage string) (string, error)
}

const titlePrompt = "Generate a concise title (at most 6 words) for a conversation that starts with the following message. Reply with the title only, no quotes."

const titleTimeout = 15 * time.Second

// LLMTitleGenerator generates titles with a cheap completion call.
type LLMTitleGenerator struct {
	provider llm.Provider
	model    string
}

func NewLLMTitleGenerator(provider llm.Provider, model string) *LLMTitleGenerator {
	return &LLMTitleGenerator{provider: provider, model: model}
}

func (g *LLMTitleGenerator) GenerateTitle(ctx context.Context, userMessage string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	if len(userMessage) > 500 {
		userMessage = userMessage[:500]
	}

	title, err := g.provider.Complete(ctx, llm.ChatRequest{
		Model:     g.model,
		System:    titlePrompt,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: userMessage}},
		MaxTokens: 50,
	})
	if err != nil {
		return "", err
	}

	title = strings.TrimSpace(title)
	title = strings.Trim(title, `"'`)
	if len(title) > 100 {
		title = title[:100]
	}
	return title, nil
}
