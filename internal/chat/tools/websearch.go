package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lk2023060901/pentestgpt-backend/internal/llm"
	"github.com/lk2023060901/pentestgpt-backend/internal/websearch"
)

const webSearchToolName = "webSearch"

// WebSearchTool lets the model search the web. Result URLs become
// citations on the assistant message.
type WebSearchTool struct {
	provider   websearch.Provider
	maxResults int
}

func NewWebSearchTool(provider websearch.Provider, maxResults int) *WebSearchTool {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &WebSearchTool{provider: provider, maxResults: maxResults}
}

func (t *WebSearchTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        webSearchToolName,
		Description: "Search the web for current information. Use for CVEs, tool documentation, and recent security advisories.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "The search query"}
			},
			"required": ["query"]
		}`),
	}
}

type webSearchArgs struct {
	Query string `json:"query"`
}

type webSearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

func (t *WebSearchTool) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	var parsed webSearchArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil, fmt.Errorf("webSearch: bad arguments: %w", err)
	}
	if parsed.Query == "" {
		return nil, fmt.Errorf("webSearch: query is required")
	}

	resp, err := t.provider.Search(ctx, &websearch.SearchRequest{
		Query:      parsed.Query,
		MaxResults: t.maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("webSearch: %w", err)
	}

	results := make([]webSearchResult, 0, len(resp.Results))
	citations := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, webSearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
		})
		citations = append(citations, r.URL)
	}

	content, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("webSearch: marshal results: %w", err)
	}

	return &Result{
		Content:   string(content),
		Citations: citations,
	}, nil
}
