package service

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lk2023060901/pentestgpt-backend/internal/auth/middleware"
	"github.com/lk2023060901/pentestgpt-backend/internal/chat/biz"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/response"
)

// pageResponse mirrors the client's pagination contract.
type pageResponse struct {
	Page           []*biz.Message `json:"page"`
	IsDone         bool           `json:"isDone"`
	ContinueCursor string         `json:"continueCursor"`
}

// GetMessages returns one page of a chat's messages.
// GET /api/v1/messages?chat_id=...&numItems=...&cursor=...
func (s *ChatService) GetMessages(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Authentication failed")
		return
	}

	chatID := c.Query("chat_id")
	if chatID == "" {
		response.Error(c, http.StatusBadRequest, "Missing chat_id parameter")
		return
	}

	numItems := 0
	if raw := c.Query("numItems"); raw != "" {
		numItems, _ = strconv.Atoi(raw)
	}

	page, err := s.chatUC.ListMessages(c.Request.Context(), userID, chatID, numItems, c.Query("cursor"))
	if err != nil {
		s.writeMessageError(c, err)
		return
	}
	c.JSON(http.StatusOK, pageResponse{
		Page:           page.Messages,
		IsDone:         page.NextCursor == "",
		ContinueCursor: page.NextCursor,
	})
}

// SearchMessages searches across all of the user's chats.
// GET /api/v1/messages/search?query=...&cursor=...
func (s *ChatService) SearchMessages(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Authentication failed")
		return
	}

	query := c.Query("query")
	if query == "" {
		response.Error(c, http.StatusBadRequest, "Missing query parameter")
		return
	}

	page, err := s.chatUC.SearchMessages(c.Request.Context(), userID, query, biz.DefaultPageSize, c.Query("cursor"))
	if err != nil {
		s.writeMessageError(c, err)
		return
	}
	c.JSON(http.StatusOK, pageResponse{
		Page:           page.Messages,
		IsDone:         page.NextCursor == "",
		ContinueCursor: page.NextCursor,
	})
}

// ListChats returns the user's chats, most recently updated first.
// GET /api/v1/chats
func (s *ChatService) ListChats(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Authentication failed")
		return
	}

	chats, err := s.chatUC.ListChats(c.Request.Context(), userID)
	if err != nil {
		s.writeMessageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// DeleteChat removes a chat and leaves its messages unreachable.
// DELETE /api/v1/chats/:id
func (s *ChatService) DeleteChat(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Authentication failed")
		return
	}

	if err := s.chatUC.DeleteChat(c.Request.Context(), userID, c.Param("id")); err != nil {
		s.writeMessageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *ChatService) writeMessageError(c *gin.Context, err error) {
	switch err {
	case biz.ErrNotChatOwner:
		response.Unauthorized(c, "Authentication failed")
	case biz.ErrChatNotFound:
		response.Error(c, http.StatusNotFound, "Chat not found")
	default:
		s.log.Error("message query failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "Internal server error")
	}
}
