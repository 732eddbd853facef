package moderation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/pentestgpt-backend/internal/llm"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/logger"
)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	log, err := logger.New(nil)
	require.NoError(t, err)
	return New(&Config{APIKey: "test-key", BaseURL: baseURL}, log)
}

func moderationServer(t *testing.T, scores map[string]float64, categories map[string]bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/moderations", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"flagged": true, "categories": categories, "category_scores": scores},
			},
		})
	}))
}

func userMsg(content string) llm.Message {
	return llm.Message{Role: llm.RoleUser, Content: content}
}

func TestGetModerationResult_ScoreInBandUncensors(t *testing.T) {
	srv := moderationServer(t, map[string]float64{"violence": 0.5}, map[string]bool{})
	defer srv.Close()

	res := testClient(t, srv.URL).GetModerationResult(context.Background(),
		[]llm.Message{userMsg("how do I exploit this buffer overflow")})
	assert.True(t, res.ShouldUncensorResponse)
}

func TestGetModerationResult_ForbiddenCategoryBlocks(t *testing.T) {
	srv := moderationServer(t,
		map[string]float64{"hate/threatening": 0.5},
		map[string]bool{"hate/threatening": true})
	defer srv.Close()

	res := testClient(t, srv.URL).GetModerationResult(context.Background(),
		[]llm.Message{userMsg("some clearly long enough message")})
	assert.False(t, res.ShouldUncensorResponse)
}

func TestGetModerationResult_NonForbiddenFlagDoesNotBlock(t *testing.T) {
	srv := moderationServer(t,
		map[string]float64{"illicit": 0.6},
		map[string]bool{"illicit": true})
	defer srv.Close()

	res := testClient(t, srv.URL).GetModerationResult(context.Background(),
		[]llm.Message{userMsg("write me a port scanner in python")})
	assert.True(t, res.ShouldUncensorResponse)
}

func TestGetModerationResult_BandEdges(t *testing.T) {
	cases := []struct {
		score float64
		want  bool
	}{
		{0.05, false},
		{0.1, true},
		{0.98, true},
		{0.99, false},
	}
	for _, tc := range cases {
		srv := moderationServer(t, map[string]float64{"violence": tc.score}, map[string]bool{})
		res := testClient(t, srv.URL).GetModerationResult(context.Background(),
			[]llm.Message{userMsg("a message that is long enough")})
		assert.Equal(t, tc.want, res.ShouldUncensorResponse, "score %v", tc.score)
		srv.Close()
	}
}

func TestGetModerationResult_FailsClosedOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	res := testClient(t, srv.URL).GetModerationResult(context.Background(),
		[]llm.Message{userMsg("a message that is long enough")})
	assert.False(t, res.ShouldUncensorResponse)
}

func TestGetModerationResult_NoAPIKeySkipsCall(t *testing.T) {
	log, err := logger.New(nil)
	require.NoError(t, err)
	client := New(&Config{}, log)

	res := client.GetModerationResult(context.Background(),
		[]llm.Message{userMsg("a message that is long enough")})
	assert.False(t, res.ShouldUncensorResponse)
}

func TestGetModerationResult_NoQualifyingTurnSkipsCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	// All user turns are at or under the 10-char threshold.
	res := testClient(t, srv.URL).GetModerationResult(context.Background(), []llm.Message{
		userMsg("short"),
		{Role: llm.RoleAssistant, Content: "a long enough assistant reply does not count"},
		userMsg("also tiny"),
	})
	assert.False(t, res.ShouldUncensorResponse)
	assert.False(t, called)
}

func TestFindTargetMessage_ChecksAtMostThreeUserTurns(t *testing.T) {
	messages := []llm.Message{
		userMsg("this is the oldest and long enough message"),
		userMsg("tiny 1"),
		userMsg("tiny 2"),
		userMsg("tiny 3"),
	}
	assert.Nil(t, findTargetMessage(messages))

	messages = []llm.Message{
		userMsg("tiny 1"),
		userMsg("this one is long enough to qualify"),
		userMsg("tiny 2"),
	}
	target := findTargetMessage(messages)
	require.NotNil(t, target)
	assert.Equal(t, "this one is long enough to qualify", target.Content)
}

func TestPrepareInput_TruncatesAndKeepsOneImage(t *testing.T) {
	long := strings.Repeat("a", 2000)
	input := prepareInput(&llm.Message{Role: llm.RoleUser, Content: long})
	text, ok := input.(string)
	require.True(t, ok)
	assert.Len(t, text, charLimit)

	input = prepareInput(&llm.Message{
		Role:     llm.RoleUser,
		Content:  "describe this screenshot",
		ImageURL: "data:image/png;base64,xxxx",
	})
	parts, ok := input.([]moderationInputPart)
	require.True(t, ok)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, "image_url", parts[1].Type)
	assert.Equal(t, "data:image/png;base64,xxxx", parts[1].ImageURL.URL)
}
