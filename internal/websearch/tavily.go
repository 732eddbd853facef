package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const tavilyDefaultHost = "https://api.tavily.com"

type tavilyProvider struct {
	cfg    *Config
	client *http.Client
	host   string
}

func newTavilyProvider(cfg *Config) *tavilyProvider {
	host := cfg.APIHost
	if host == "" {
		host = tavilyDefaultHost
	}
	return &tavilyProvider{
		cfg:    cfg,
		client: newHTTPClient(cfg.Timeout),
		host:   host,
	}
}

func (p *tavilyProvider) Name() string {
	return "tavily"
}

type tavilyRequest struct {
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth,omitempty"`
	MaxResults     int      `json:"max_results,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	IncludeAnswer  bool     `json:"include_answer,omitempty"`
}

type tavilyResponse struct {
	Results []struct {
		Title         string  `json:"title"`
		URL           string  `json:"url"`
		Content       string  `json:"content"`
		Score         float32 `json:"score"`
		PublishedDate string  `json:"published_date,omitempty"`
	} `json:"results"`
	Query string `json:"query"`
}

func (p *tavilyProvider) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	tavilyReq := tavilyRequest{
		Query:          req.Query,
		SearchDepth:    req.SearchDepth,
		MaxResults:     req.MaxResults,
		IncludeDomains: req.Domains,
		IncludeAnswer:  false,
	}
	if tavilyReq.MaxResults == 0 {
		tavilyReq.MaxResults = p.cfg.MaxResults
	}
	if tavilyReq.MaxResults == 0 {
		tavilyReq.MaxResults = 10
	}
	if tavilyReq.SearchDepth == "" {
		tavilyReq.SearchDepth = "basic"
	}

	reqBody, err := json.Marshal(tavilyReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.host+"/search", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := doWithRetry(ctx, p.client, httpReq, p.cfg.MaxRetries)
	if err != nil {
		return nil, &ProviderError{
			Provider: p.Name(),
			Code:     "REQUEST_FAILED",
			Message:  "failed to execute request",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &ProviderError{
			Provider: p.Name(),
			Code:     fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:  string(body),
		}
	}

	var tavilyResp tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tavilyResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	results := make([]*SearchResult, len(tavilyResp.Results))
	for i, r := range tavilyResp.Results {
		results[i] = &SearchResult{
			Title:       r.Title,
			URL:         r.URL,
			Content:     r.Content,
			Score:       r.Score,
			PublishedAt: r.PublishedDate,
		}
	}

	return &SearchResponse{
		Query:    req.Query,
		Results:  results,
		Took:     time.Since(startTime).Milliseconds(),
		Provider: p.Name(),
	}, nil
}
