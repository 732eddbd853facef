package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/pentestgpt-backend/internal/chat/biz"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/logger"
)

type fakeChatRepo struct {
	chats map[string]*biz.Chat
}

func (r *fakeChatRepo) Create(ctx context.Context, chat *biz.Chat) error {
	r.chats[chat.ID] = chat
	return nil
}

func (r *fakeChatRepo) GetByID(ctx context.Context, id string) (*biz.Chat, error) {
	chat, ok := r.chats[id]
	if !ok {
		return nil, biz.ErrChatNotFound
	}
	return chat, nil
}

func (r *fakeChatRepo) ListByUser(ctx context.Context, userID string) ([]*biz.Chat, error) {
	var out []*biz.Chat
	for _, c := range r.chats {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeChatRepo) UpdateTitle(ctx context.Context, id, title string) error {
	if chat, ok := r.chats[id]; ok {
		chat.Title = title
		return nil
	}
	return biz.ErrChatNotFound
}

func (r *fakeChatRepo) Delete(ctx context.Context, id string) error {
	delete(r.chats, id)
	return nil
}

type fakeMessageRepo struct {
	messages map[string][]*biz.Message
}

func (r *fakeMessageRepo) Create(ctx context.Context, m *biz.Message) error {
	for _, existing := range r.messages[m.ChatID] {
		if existing.ID == m.ID {
			return nil
		}
	}
	r.messages[m.ChatID] = append(r.messages[m.ChatID], m)
	return nil
}

func (r *fakeMessageRepo) GetByID(ctx context.Context, id string) (*biz.Message, error) {
	for _, msgs := range r.messages {
		for _, m := range msgs {
			if m.ID == id {
				return m, nil
			}
		}
	}
	return nil, biz.ErrMessageNotFound
}

func (r *fakeMessageRepo) ListByChat(ctx context.Context, chatID string, limit int, cursor string) (*biz.MessagePage, error) {
	return &biz.MessagePage{Messages: r.messages[chatID]}, nil
}

func (r *fakeMessageRepo) SearchByUser(ctx context.Context, userID, query string, limit int, cursor string) (*biz.MessagePage, error) {
	return &biz.MessagePage{Messages: []*biz.Message{}}, nil
}

func testRouter(t *testing.T, authenticated bool) (*gin.Engine, *fakeChatRepo, *fakeMessageRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	chatRepo := &fakeChatRepo{chats: make(map[string]*biz.Chat)}
	messageRepo := &fakeMessageRepo{messages: make(map[string][]*biz.Message)}
	log, err := logger.New(nil)
	require.NoError(t, err)

	svc := &ChatService{
		chatUC: biz.NewChatUseCase(chatRepo, messageRepo),
		log:    log,
	}

	authMw := func(c *gin.Context) {
		if authenticated {
			c.Set("user_id", "user-1")
		}
		c.Next()
	}

	router := gin.New()
	svc.RegisterRoutes(router.Group("/api/v1"), authMw)
	return router, chatRepo, messageRepo
}

type errorBody struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func TestGetMessages_MissingChatID(t *testing.T) {
	router, _, _ := testRouter(t, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Missing chat_id parameter", body.Error)
	assert.Equal(t, http.StatusBadRequest, body.Status)
}

func TestGetMessages_Unauthenticated(t *testing.T) {
	router, _, _ := testRouter(t, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages?chat_id=c1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusUnauthorized, body.Status)
}

func TestGetMessages_OtherUsersChatIsUnauthorized(t *testing.T) {
	router, chatRepo, _ := testRouter(t, true)
	chatRepo.chats["c1"] = &biz.Chat{ID: "c1", UserID: "someone-else"}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages?chat_id=c1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetMessages_ReturnsPage(t *testing.T) {
	router, chatRepo, messageRepo := testRouter(t, true)
	chatRepo.chats["c1"] = &biz.Chat{ID: "c1", UserID: "user-1"}
	messageRepo.messages["c1"] = []*biz.Message{
		{ID: "m1", ChatID: "c1", Role: "user", Content: "hello"},
		{ID: "m2", ChatID: "c1", Role: "assistant", Content: "hi"},
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages?chat_id=c1&numItems=20", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body pageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Page, 2)
	assert.True(t, body.IsDone)
	assert.Empty(t, body.ContinueCursor)
}

func TestSearchMessages_MissingQuery(t *testing.T) {
	router, _, _ := testRouter(t, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages/search", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Missing query parameter", body.Error)
}

func TestSearchMessages_OK(t *testing.T) {
	router, _, _ := testRouter(t, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages/search?query=nmap", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
