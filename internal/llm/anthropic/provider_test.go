package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/pentestgpt-backend/internal/llm"
)

func sseServer(t *testing.T, events []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
		}
	}))
}

func collect(t *testing.T, ch <-chan llm.StreamEvent) []llm.StreamEvent {
	t.Helper()
	var out []llm.StreamEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func newTestProvider(t *testing.T, baseURL string) *Provider {
	t.Helper()
	p, err := New(&llm.Config{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "claude-test",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return p
}

func TestStream_TextAndThinking(t *testing.T) {
	srv := sseServer(t, []string{
		`{"type":"message_start","message":{"id":"msg_1","model":"claude-test"}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"thinking"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"analyzing target"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"text"}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"Run nmap"}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":" first."}}`,
		`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"input_tokens":10,"output_tokens":5}}`,
		`{"type":"message_stop"}`,
	})
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	ch, err := p.Stream(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "scan the host"}},
	})
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 4)

	assert.Equal(t, llm.ReasoningDelta{Text: "analyzing target"}, events[0])
	assert.Equal(t, llm.TextDelta{Text: "Run nmap"}, events[1])
	assert.Equal(t, llm.TextDelta{Text: " first."}, events[2])

	finish, ok := events[3].(llm.Finish)
	require.True(t, ok)
	assert.Equal(t, llm.FinishStop, finish.Reason)
	require.NotNil(t, finish.Usage)
	assert.Equal(t, 15, finish.Usage.TotalTokens)
}

func TestStream_ToolUse(t *testing.T) {
	srv := sseServer(t, []string{
		`{"type":"message_start","message":{"id":"msg_2","model":"claude-test"}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"webSearch"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"query\":"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"\"CVE-2024-3094\"}"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","delta":{"stop_reason":"tool_use"}}`,
		`{"type":"message_stop"}`,
	})
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	ch, err := p.Stream(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "look up the xz backdoor"}},
	})
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 2)

	call, ok := events[0].(llm.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "toolu_1", call.ID)
	assert.Equal(t, "webSearch", call.Name)
	assert.JSONEq(t, `{"query":"CVE-2024-3094"}`, string(call.Arguments))

	finish, ok := events[1].(llm.Finish)
	require.True(t, ok)
	assert.Equal(t, llm.FinishToolCalls, finish.Reason)
}

func TestStream_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"type":"rate_limit_error"}}`)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	_, err := p.Stream(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestConvertMessage_ToolResult(t *testing.T) {
	msg, err := convertMessage(llm.Message{
		Role:       llm.RoleTool,
		ToolCallID: "toolu_1",
		Content:    `{"results":[]}`,
	})
	require.NoError(t, err)

	assert.Equal(t, "user", msg.Role)
	assert.JSONEq(t,
		`[{"type":"tool_result","tool_use_id":"toolu_1","content":"{\"results\":[]}"}]`,
		string(msg.Content))
}

func TestParseDataURL(t *testing.T) {
	src, err := parseDataURL("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/png", src.MediaType)
	assert.Equal(t, "aGVsbG8=", src.Data)
	assert.Equal(t, "base64", src.Type)

	_, err = parseDataURL("https://example.com/x.png")
	assert.Error(t, err)
}
