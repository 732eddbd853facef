package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/lk2023060901/pentestgpt-backend/internal/llm"
)

const (
	browserToolName = "browser"
	// maxPageBytes caps how much of a page is fed to the model.
	maxPageBytes = 64 * 1024
)

var (
	titleRe  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe  = regexp.MustCompile(`[ \t]+`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
)

// BrowserTool fetches a page and returns its text for the model. The
// fetched URL becomes a citation.
type BrowserTool struct {
	client *http.Client
}

func NewBrowserTool(timeout time.Duration) *BrowserTool {
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &BrowserTool{
		client: &http.Client{Timeout: timeout},
	}
}

func (t *BrowserTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        browserToolName,
		Description: "Fetch a web page and read its text content. Use to follow up on search results.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url": {"type": "string", "description": "The http or https URL to open"}
			},
			"required": ["url"]
		}`),
	}
}

type browserArgs struct {
	URL string `json:"url"`
}

type browserPage struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (t *BrowserTool) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	var parsed browserArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil, fmt.Errorf("browser: bad arguments: %w", err)
	}
	if !strings.HasPrefix(parsed.URL, "http://") && !strings.HasPrefix(parsed.URL, "https://") {
		return nil, fmt.Errorf("browser: only http and https URLs are supported")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", parsed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("browser: create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; PentestGPT/1.0)")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("browser: fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("browser: page returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("browser: read body: %w", err)
	}

	page := browserPage{
		URL:     parsed.URL,
		Title:   extractTitle(body),
		Content: extractText(body),
	}

	content, err := json.Marshal(page)
	if err != nil {
		return nil, fmt.Errorf("browser: marshal page: %w", err)
	}

	return &Result{
		Content:   string(content),
		Citations: []string{parsed.URL},
	}, nil
}

func extractTitle(html []byte) string {
	m := titleRe.FindSubmatch(html)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(string(m[1]))
}

// extractText strips markup and collapses whitespace. Crude, but good
// enough for model consumption.
func extractText(html []byte) string {
	text := scriptRe.ReplaceAll(html, nil)
	text = tagRe.ReplaceAll(text, []byte("\n"))
	text = spaceRe.ReplaceAll(text, []byte(" "))
	text = blankRe.ReplaceAll(text, []byte("\n\n"))
	return strings.TrimSpace(string(text))
}
