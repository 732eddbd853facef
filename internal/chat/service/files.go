package service

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lk2023060901/pentestgpt-backend/internal/auth/middleware"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/response"
)

// maxUploadSize caps chat attachments at 20 MB.
const maxUploadSize = 20 << 20

const presignExpiry = 24 * time.Hour

// UploadFile stores a chat attachment and returns its object key plus
// a presigned URL.
// POST /api/v1/files (multipart, field "file")
func (s *ChatService) UploadFile(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Authentication failed")
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, "Missing file parameter")
		return
	}
	if header.Size > maxUploadSize {
		response.Error(c, http.StatusBadRequest, "File too large")
		return
	}

	file, err := header.Open()
	if err != nil {
		s.log.Error("failed to open upload", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	defer file.Close()

	id, err := uuid.NewV7()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	objectKey := fmt.Sprintf("chat-uploads/%s/%s%s", userID, id.String(), filepath.Ext(header.Filename))

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := s.minioClient.PutObject(c.Request.Context(), objectKey, file, header.Size, contentType)
	if err != nil {
		s.log.Error("failed to store upload",
			zap.String("object_key", objectKey),
			zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	url, err := s.minioClient.PresignedGetObject(c.Request.Context(), objectKey, presignExpiry)
	if err != nil {
		s.log.Error("failed to presign upload", zap.String("object_key", objectKey), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"object_key":   objectKey,
		"url":          url.String(),
		"size":         info.Size,
		"content_type": contentType,
	})
}
