package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(&Config{Provider: "tavily"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = New(&Config{Provider: "bing", APIKey: "k"})
	assert.Error(t, err)

	p, err := New(&Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "tavily", p.Name())
}

func TestTavilySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nmap stealth scan", req.Query)
		assert.Equal(t, 5, req.MaxResults)

		fmt.Fprint(w, `{
			"query": "nmap stealth scan",
			"results": [
				{"title": "Nmap docs", "url": "https://nmap.org/book", "content": "SYN scan...", "score": 0.97},
				{"title": "Cheatsheet", "url": "https://example.com", "content": "flags", "score": 0.5}
			]
		}`)
	}))
	defer srv.Close()

	p, err := New(&Config{APIKey: "test-key", APIHost: srv.URL})
	require.NoError(t, err)

	resp, err := p.Search(context.Background(), &SearchRequest{
		Query:      "nmap stealth scan",
		MaxResults: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, "tavily", resp.Provider)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "Nmap docs", resp.Results[0].Title)
	assert.Equal(t, "https://nmap.org/book", resp.Results[0].URL)
}

func TestTavilySearch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"detail":"invalid api key"}`)
	}))
	defer srv.Close()

	p, err := New(&Config{APIKey: "bad-key", APIHost: srv.URL})
	require.NoError(t, err)

	_, err = p.Search(context.Background(), &SearchRequest{Query: "anything"})
	require.Error(t, err)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "HTTP_401", perr.Code)
}
