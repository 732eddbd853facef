// Package llm defines the provider-neutral chat streaming contract.
package llm

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrMissingAPIKey = errors.New("API key is required")
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of a conversation. Assistant turns may carry tool
// calls; tool turns answer them via ToolCallID.
type Message struct {
	Role       string
	Content    string
	ImageURL   string // data URL, at most one per message
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolDefinition advertises a callable tool to the model.
type ToolDefinition struct {
	Name        string
	Description string
	// Parameters is a JSON schema object.
	Parameters json.RawMessage
}

// ChatRequest is a provider-neutral completion request.
type ChatRequest struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	Tools       []ToolDefinition
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Config is the per-provider connection configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Minute
	}
	return nil
}
