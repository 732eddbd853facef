package websearch

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Provider executes search queries against one search backend.
type Provider interface {
	Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error)
	Name() string
}

// Config configures a search provider.
type Config struct {
	Provider   string
	APIKey     string
	APIHost    string
	MaxResults int
	Timeout    time.Duration
	MaxRetries int
}

// New builds the provider named in cfg.Provider. Tavily is the default.
func New(cfg *Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	switch cfg.Provider {
	case "", "tavily":
		return newTavilyProvider(cfg), nil
	default:
		return nil, fmt.Errorf("websearch: unknown provider %q", cfg.Provider)
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// doWithRetry runs the request with exponential backoff on transport
// errors. HTTP error statuses are the caller's problem.
func doWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		resp, err := client.Do(req.WithContext(ctx))
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if i < maxRetries-1 {
			backoff := time.Duration(1<<uint(i)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", maxRetries, lastErr)
}
