// Package moderation decides whether response constraints may be
// relaxed for a conversation. It fails closed: any error, missing
// configuration, or unqualified input yields "no relaxation".
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/pentestgpt-backend/internal/llm"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/logger"
)

const (
	// charLimit caps how much text is sent to the classifier.
	charLimit = 1000

	// minMessageLength is the threshold a user turn must exceed to be
	// worth classifying.
	minMessageLength = 10

	// maxUserTurns bounds the backward scan for a candidate turn.
	maxUserTurns = 3

	minModerationLevel = 0.1
	maxModerationLevel = 0.98

	defaultModel   = "omni-moderation-latest"
	defaultBaseURL = "https://api.openai.com/v1"
)

// forbiddenCategories always block relaxation when flagged, regardless
// of score.
var forbiddenCategories = map[string]struct{}{
	"sexual":                {},
	"sexual/minors":         {},
	"hate":                  {},
	"hate/threatening":      {},
	"harassment":            {},
	"harassment/threatening": {},
	"self-harm":             {},
	"self-harm/intent":      {},
	"self-harm/instruction": {},
	"violence":              {},
	"violence/graphic":      {},
}

// Result is the single policy decision this package produces.
type Result struct {
	ShouldUncensorResponse bool
}

// Config for the moderation client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client calls the OpenAI moderation endpoint. A client with no API
// key is valid and always answers "no relaxation".
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	log        *logger.Logger
}

func New(cfg *Config, log *logger.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// GetModerationResult classifies the most recent substantial user turn
// and maps the category scores to a relax/no-relax decision. It never
// returns an error.
func (c *Client) GetModerationResult(ctx context.Context, messages []llm.Message) Result {
	if c.apiKey == "" {
		return Result{ShouldUncensorResponse: false}
	}

	target := findTargetMessage(messages)
	if target == nil {
		return Result{ShouldUncensorResponse: false}
	}

	resp, err := c.classify(ctx, prepareInput(target))
	if err != nil {
		c.log.Warn("moderation call failed", zap.Error(err))
		return Result{ShouldUncensorResponse: false}
	}
	if len(resp.Results) == 0 {
		return Result{ShouldUncensorResponse: false}
	}

	result := resp.Results[0]
	level := moderationLevel(result.CategoryScores)
	return Result{ShouldUncensorResponse: shouldUncensor(level, result.Categories)}
}

// findTargetMessage scans user turns newest-first, at most maxUserTurns
// of them, returning the first whose text exceeds minMessageLength.
func findTargetMessage(messages []llm.Message) *llm.Message {
	checked := 0
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role != llm.RoleUser {
			continue
		}
		checked++
		if len(msg.Content) > minMessageLength {
			return &msg
		}
		if checked >= maxUserTurns {
			break
		}
	}
	return nil
}

type moderationInputPart struct {
	Type     string             `json:"type"`
	Text     string             `json:"text,omitempty"`
	ImageURL *moderationImage   `json:"image_url,omitempty"`
}

type moderationImage struct {
	URL string `json:"url"`
}

// prepareInput caps the text at charLimit and keeps at most one
// attached image. Text-only turns submit a plain string.
func prepareInput(msg *llm.Message) interface{} {
	text := msg.Content
	if len(text) > charLimit {
		text = text[:charLimit]
	}
	if msg.ImageURL == "" {
		return text
	}
	parts := make([]moderationInputPart, 0, 2)
	if text != "" {
		parts = append(parts, moderationInputPart{Type: "text", Text: text})
	}
	parts = append(parts, moderationInputPart{Type: "image_url", ImageURL: &moderationImage{URL: msg.ImageURL}})
	return parts
}

type moderationRequest struct {
	Model string      `json:"model"`
	Input interface{} `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		Flagged        bool               `json:"flagged"`
		Categories     map[string]bool    `json:"categories"`
		CategoryScores map[string]float64 `json:"category_scores"`
	} `json:"results"`
}

func (c *Client) classify(ctx context.Context, input interface{}) (*moderationResponse, error) {
	body, err := json.Marshal(moderationRequest{Model: c.model, Input: input})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/moderations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("moderation API returned %d: %s", resp.StatusCode, data)
	}

	var parsed moderationResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode moderation response: %w", err)
	}
	return &parsed, nil
}

// moderationLevel is the maximum category score clamped to [0, 1].
func moderationLevel(scores map[string]float64) float64 {
	max := 0.0
	for _, score := range scores {
		if score > max {
			max = score
		}
	}
	if max > 1 {
		max = 1
	}
	return max
}

func shouldUncensor(level float64, categories map[string]bool) bool {
	for category, flagged := range categories {
		if !flagged {
			continue
		}
		if _, forbidden := forbiddenCategories[category]; forbidden {
			return false
		}
	}
	return level >= minModerationLevel && level <= maxModerationLevel
}
