// Package openai implements llm.Provider on top of the go-openai client.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/lk2023060901/pentestgpt-backend/internal/llm"
)

type Provider struct {
	config *llm.Config
	client *goopenai.Client
}

func New(config *llm.Config) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	clientCfg := goopenai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientCfg.BaseURL = config.BaseURL
	}

	return &Provider{
		config: config,
		client: goopenai.NewClientWithConfig(clientCfg),
	}, nil
}

func (p *Provider) Name() string {
	return "openai"
}

func (p *Provider) Stream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	events := make(chan llm.StreamEvent, 16)

	go func() {
		defer close(events)
		defer stream.Close()

		// tool call arguments arrive fragmented, keyed by index
		type pendingTool struct {
			id   string
			name string
			args string
		}
		pendingTools := make(map[int]*pendingTool)
		var toolOrder []int

		flushTools := func() {
			for _, idx := range toolOrder {
				t := pendingTools[idx]
				args := t.args
				if args == "" {
					args = "{}"
				}
				events <- llm.ToolCall{
					ID:        t.id,
					Name:      t.name,
					Arguments: json.RawMessage(args),
				}
			}
			pendingTools = make(map[int]*pendingTool)
			toolOrder = nil
		}

		var usage *llm.Usage

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				flushTools()
				events <- llm.Finish{Reason: llm.FinishStop, Usage: usage}
				return
			}
			if err != nil {
				events <- llm.StreamError{Err: fmt.Errorf("openai: read stream: %w", err)}
				return
			}

			if chunk.Usage != nil {
				usage = &llm.Usage{
					PromptTokens:     chunk.Usage.PromptTokens,
					CompletionTokens: chunk.Usage.CompletionTokens,
					TotalTokens:      chunk.Usage.TotalTokens,
				}
			}

			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]

			if choice.Delta.ReasoningContent != "" {
				events <- llm.ReasoningDelta{Text: choice.Delta.ReasoningContent}
			}
			if choice.Delta.Content != "" {
				events <- llm.TextDelta{Text: choice.Delta.Content}
			}

			for _, tc := range choice.Delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				t, ok := pendingTools[idx]
				if !ok {
					t = &pendingTool{}
					pendingTools[idx] = t
					toolOrder = append(toolOrder, idx)
				}
				if tc.ID != "" {
					t.id = tc.ID
				}
				if tc.Function.Name != "" {
					t.name = tc.Function.Name
				}
				t.args += tc.Function.Arguments
			}

			if choice.FinishReason != "" {
				flushTools()
				events <- llm.Finish{
					Reason: convertFinishReason(choice.FinishReason),
					Usage:  usage,
				}
				return
			}
		}
	}()

	return events, nil
}

func (p *Provider) Complete(ctx context.Context, req llm.ChatRequest) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req, false))
	if err != nil {
		return "", fmt.Errorf("openai: completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *Provider) buildRequest(req llm.ChatRequest, stream bool) goopenai.ChatCompletionRequest {
	out := goopenai.ChatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
		Stream:      stream,
	}
	if out.Model == "" {
		out.Model = p.config.Model
	}
	if stream {
		out.StreamOptions = &goopenai.StreamOptions{IncludeUsage: true}
	}

	if req.System != "" {
		out.Messages = append(out.Messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, convertMessage(msg))
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}

	return out
}

func convertMessage(msg llm.Message) goopenai.ChatCompletionMessage {
	out := goopenai.ChatCompletionMessage{
		Role:       msg.Role,
		ToolCallID: msg.ToolCallID,
	}

	if msg.ImageURL != "" {
		parts := []goopenai.ChatMessagePart{
			{
				Type: goopenai.ChatMessagePartTypeImageURL,
				ImageURL: &goopenai.ChatMessageImageURL{
					URL: msg.ImageURL,
				},
			},
		}
		if msg.Content != "" {
			parts = append(parts, goopenai.ChatMessagePart{
				Type: goopenai.ChatMessagePartTypeText,
				Text: msg.Content,
			})
		}
		out.MultiContent = parts
	} else {
		out.Content = msg.Content
	}

	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, goopenai.ToolCall{
			ID:   tc.ID,
			Type: goopenai.ToolTypeFunction,
			Function: goopenai.FunctionCall{
				Name:      tc.Name,
				Arguments: string(tc.Arguments),
			},
		})
	}

	return out
}

func convertFinishReason(reason goopenai.FinishReason) llm.FinishReason {
	switch reason {
	case goopenai.FinishReasonStop:
		return llm.FinishStop
	case goopenai.FinishReasonLength:
		return llm.FinishMaxTokens
	case goopenai.FinishReasonToolCalls, goopenai.FinishReasonFunctionCall:
		return llm.FinishToolCalls
	case goopenai.FinishReasonContentFilter:
		return llm.FinishFilter
	default:
		return llm.FinishStop
	}
}
