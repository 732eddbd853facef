package service

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lk2023060901/pentestgpt-backend/internal/auth/middleware"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/response"
)

type renderRequest struct {
	Content   string   `json:"content"`
	Citations []string `json:"citations"`
}

// RenderMessage parses stored message content into typed blocks and
// renders text blocks to HTML, with citation markers linked.
// POST /api/v1/messages/render
func (s *ChatService) RenderMessage(c *gin.Context) {
	if _, ok := middleware.GetUserID(c); !ok {
		response.Unauthorized(c, "Authentication failed")
		return
	}

	var req renderRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Content == "" {
		response.Error(c, http.StatusBadRequest, "Missing content parameter")
		return
	}

	blocks, err := s.renderer.RenderMessage(req.Content, req.Citations)
	if err != nil {
		s.log.Error("failed to render message", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocks": blocks})
}
