package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/pentestgpt-backend/internal/websearch"
)

type fakeSearch struct {
	resp *websearch.SearchResponse
	err  error
	got  *websearch.SearchRequest
}

func (f *fakeSearch) Search(ctx context.Context, req *websearch.SearchRequest) (*websearch.SearchResponse, error) {
	f.got = req
	return f.resp, f.err
}

func (f *fakeSearch) Name() string { return "fake" }

func TestWebSearchTool(t *testing.T) {
	search := &fakeSearch{
		resp: &websearch.SearchResponse{
			Results: []*websearch.SearchResult{
				{Title: "A", URL: "https://a.example", Content: "alpha"},
				{Title: "B", URL: "https://b.example", Content: "beta"},
			},
		},
	}

	tool := NewWebSearchTool(search, 5)
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"xz backdoor"}`))
	require.NoError(t, err)

	assert.Equal(t, "xz backdoor", search.got.Query)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, res.Citations)

	var results []webSearchResult
	require.NoError(t, json.Unmarshal([]byte(res.Content), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "alpha", results[0].Content)
}

func TestWebSearchTool_EmptyQuery(t *testing.T) {
	tool := NewWebSearchTool(&fakeSearch{}, 5)
	_, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestBrowserTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Advisory</title><script>alert(1)</script></head>`+
			`<body><h1>CVE details</h1><p>A serious bug.</p></body></html>`)
	}))
	defer srv.Close()

	tool := NewBrowserTool(5 * time.Second)
	res, err := tool.Execute(context.Background(), json.RawMessage(fmt.Sprintf(`{"url":%q}`, srv.URL)))
	require.NoError(t, err)

	assert.Equal(t, []string{srv.URL}, res.Citations)

	var page browserPage
	require.NoError(t, json.Unmarshal([]byte(res.Content), &page))
	assert.Equal(t, "Advisory", page.Title)
	assert.Contains(t, page.Content, "CVE details")
	assert.NotContains(t, page.Content, "alert(1)")
}

func TestBrowserTool_RejectsNonHTTP(t *testing.T) {
	tool := NewBrowserTool(time.Second)
	_, err := tool.Execute(context.Background(), json.RawMessage(`{"url":"file:///etc/passwd"}`))
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	search := NewWebSearchTool(&fakeSearch{resp: &websearch.SearchResponse{}}, 3)
	browser := NewBrowserTool(time.Second)
	reg := NewRegistry(search, browser)

	defs := reg.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "webSearch", defs[0].Name)
	assert.Equal(t, "browser", defs[1].Name)

	_, err := reg.Execute(context.Background(), "nope", nil)
	assert.Error(t, err)
}
