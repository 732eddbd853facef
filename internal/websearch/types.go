// Package websearch provides web search for the chat tool loop.
package websearch

import (
	"errors"
	"fmt"
)

var ErrMissingAPIKey = errors.New("websearch: API key is required")

// SearchRequest is a provider-neutral search query.
type SearchRequest struct {
	Query       string   `json:"query"`
	MaxResults  int      `json:"max_results,omitempty"`
	SearchDepth string   `json:"search_depth,omitempty"` // "basic" or "advanced"
	Domains     []string `json:"domains,omitempty"`
}

// SearchResult is a single hit.
type SearchResult struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Content     string  `json:"content"`
	Score       float32 `json:"score,omitempty"`
	PublishedAt string  `json:"published_at,omitempty"`
}

// SearchResponse is the normalized provider answer.
type SearchResponse struct {
	Query    string          `json:"query"`
	Results  []*SearchResult `json:"results"`
	Took     int64           `json:"took"` // milliseconds
	Provider string          `json:"provider"`
}

// ProviderError wraps a provider failure with enough context to log.
type ProviderError struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("websearch %s [%s]: %s: %v", e.Provider, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("websearch %s [%s]: %s", e.Provider, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
