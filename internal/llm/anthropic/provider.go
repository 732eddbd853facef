// Package anthropic implements llm.Provider over the Anthropic Messages
// API, including thinking blocks and tool use.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lk2023060901/pentestgpt-backend/internal/llm"
)

const defaultBaseURL = "https://api.anthropic.com"

type Provider struct {
	config *llm.Config
	client *http.Client
}

func New(config *llm.Config) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	return &Provider{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

func (p *Provider) Name() string {
	return "anthropic"
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
	// Temperature is a pointer so 0 survives for deterministic calls.
	Temperature *float64        `json:"temperature,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Tools       []anthropicTool `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`

	// image
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicStreamEvent struct {
	Type         string             `json:"type"`
	Index        int                `json:"index,omitempty"`
	Delta        *anthropicDelta    `json:"delta,omitempty"`
	Message      *anthropicResponse `json:"message,omitempty"`
	ContentBlock *anthropicContent  `json:"content_block,omitempty"`
	Usage        *anthropicUsage    `json:"usage,omitempty"`
}

type anthropicDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

// Stream runs a streaming completion against /v1/messages.
func (p *Provider) Stream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	body, err := p.buildRequest(req, true)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.config.BaseURL+"/v1/messages", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}

	p.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("anthropic: API error %d: %s", resp.StatusCode, string(errBody))
	}

	events := make(chan llm.StreamEvent, 16)

	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var finishReason string
		var usage *llm.Usage

		// tool_use blocks stream their input as partial JSON keyed by
		// content block index
		type pendingTool struct {
			id   string
			name string
			args strings.Builder
		}
		pendingTools := make(map[int]*pendingTool)

		for scanner.Scan() {
			line := scanner.Text()
			if line == "" || strings.HasPrefix(line, "event: ") {
				continue
			}
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")

			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				events <- llm.StreamError{Err: fmt.Errorf("anthropic: unmarshal event: %w", err)}
				return
			}

			switch event.Type {
			case "content_block_start":
				if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
					pendingTools[event.Index] = &pendingTool{
						id:   event.ContentBlock.ID,
						name: event.ContentBlock.Name,
					}
				}

			case "content_block_delta":
				if event.Delta == nil {
					continue
				}
				switch event.Delta.Type {
				case "text_delta":
					if event.Delta.Text != "" {
						events <- llm.TextDelta{Text: event.Delta.Text}
					}
				case "thinking_delta":
					if event.Delta.Thinking != "" {
						events <- llm.ReasoningDelta{Text: event.Delta.Thinking}
					}
				case "input_json_delta":
					if t, ok := pendingTools[event.Index]; ok {
						t.args.WriteString(event.Delta.PartialJSON)
					}
				}

			case "content_block_stop":
				if t, ok := pendingTools[event.Index]; ok {
					args := t.args.String()
					if args == "" {
						args = "{}"
					}
					events <- llm.ToolCall{
						ID:        t.id,
						Name:      t.name,
						Arguments: json.RawMessage(args),
					}
					delete(pendingTools, event.Index)
				}

			case "message_delta":
				if event.Delta != nil && event.Delta.StopReason != "" {
					finishReason = event.Delta.StopReason
				}
				if event.Usage != nil {
					usage = &llm.Usage{
						PromptTokens:     event.Usage.InputTokens,
						CompletionTokens: event.Usage.OutputTokens,
						TotalTokens:      event.Usage.InputTokens + event.Usage.OutputTokens,
					}
				}

			case "message_stop":
				events <- llm.Finish{
					Reason: convertStopReason(finishReason),
					Usage:  usage,
				}
				return

			case "error":
				events <- llm.StreamError{Err: fmt.Errorf("anthropic: stream error: %s", data)}
				return
			}
		}

		if err := scanner.Err(); err != nil {
			events <- llm.StreamError{Err: fmt.Errorf("anthropic: read stream: %w", err)}
		}
	}()

	return events, nil
}

// Complete runs a blocking completion and returns the joined text blocks.
func (p *Provider) Complete(ctx context.Context, req llm.ChatRequest) (string, error) {
	body, err := p.buildRequest(req, false)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.config.BaseURL+"/v1/messages", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("anthropic: create request: %w", err)
	}

	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("anthropic: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic: API error %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("anthropic: unmarshal response: %w", err)
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

func (p *Provider) buildRequest(req llm.ChatRequest, stream bool) ([]byte, error) {
	out := &anthropicRequest{
		Model:     req.Model,
		System:    req.System,
		MaxTokens: req.MaxTokens,
		Stream:    stream,
	}

	if out.Model == "" {
		out.Model = p.config.Model
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = 4096
	}
	if req.Temperature != 0 {
		t := req.Temperature
		out.Temperature = &t
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.Parameters,
		})
	}

	for _, msg := range req.Messages {
		converted, err := convertMessage(msg)
		if err != nil {
			return nil, err
		}
		if msg.Role == llm.RoleSystem {
			// a system turn inside the history overrides req.System
			out.System = msg.Content
			continue
		}
		out.Messages = append(out.Messages, converted)
	}

	return json.Marshal(out)
}

func convertMessage(msg llm.Message) (anthropicMessage, error) {
	role := msg.Role
	var blocks []anthropicContent

	switch msg.Role {
	case llm.RoleTool:
		// tool results travel as user turns
		role = "user"
		blocks = append(blocks, anthropicContent{
			Type:      "tool_result",
			ToolUseID: msg.ToolCallID,
			Content:   msg.Content,
		})

	case llm.RoleAssistant:
		if msg.Content != "" {
			blocks = append(blocks, anthropicContent{Type: "text", Text: msg.Content})
		}
		for _, tc := range msg.ToolCalls {
			input := tc.Arguments
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			blocks = append(blocks, anthropicContent{
				Type:  "tool_use",
				ID:    tc.ID,
				Name:  tc.Name,
				Input: input,
			})
		}

	default:
		if msg.ImageURL != "" {
			source, err := parseDataURL(msg.ImageURL)
			if err != nil {
				return anthropicMessage{}, err
			}
			blocks = append(blocks, anthropicContent{Type: "image", Source: source})
		}
		if msg.Content != "" {
			blocks = append(blocks, anthropicContent{Type: "text", Text: msg.Content})
		}
	}

	raw, err := json.Marshal(blocks)
	if err != nil {
		return anthropicMessage{}, err
	}
	return anthropicMessage{Role: role, Content: raw}, nil
}

// parseDataURL splits "data:image/png;base64,<data>" into an API source.
func parseDataURL(url string) (*anthropicImageSource, error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return nil, fmt.Errorf("anthropic: image must be a data URL")
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("anthropic: malformed data URL")
	}
	mediaType := strings.TrimSuffix(meta, ";base64")

	return &anthropicImageSource{
		Type:      "base64",
		MediaType: mediaType,
		Data:      data,
	}, nil
}

func convertStopReason(reason string) llm.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return llm.FinishStop
	case "max_tokens":
		return llm.FinishMaxTokens
	case "tool_use":
		return llm.FinishToolCalls
	case "refusal":
		return llm.FinishFilter
	default:
		return llm.FinishStop
	}
}
