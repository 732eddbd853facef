package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/pentestgpt-backend/internal/pkg/errors"
)

// Response is the envelope for successful API responses
type Response struct {
	Code    int         `json:"code"`              // Business code (0 means success)
	Message string      `json:"message,omitempty"` // Optional message
	Data    interface{} `json:"data"`              // Payload (may be an empty object)
}

// ErrorBody is the envelope for error responses: {"error": ..., "status": ...}
type ErrorBody struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// Success writes a 200 response with data
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusOK, Response{
		Code: apperrors.Success,
		Data: data,
	})
}

// Created writes a 201 response with data
func Created(c *gin.Context, data interface{}) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusCreated, Response{
		Code: apperrors.Success,
		Data: data,
	})
}

// Error writes an error response in the {error, status} shape
func Error(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, ErrorBody{
		Error:  message,
		Status: httpStatus,
	})
}

// HandleError writes an error response derived from a coded application error.
// Server-side detail is never leaked; 5xx answers carry a generic message.
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	code := apperrors.ExtractCode(err)
	status := apperrors.GetHTTPStatus(code)
	msg := apperrors.GetMessage(code)
	if apperrors.IsServerError(code) {
		msg = "Internal server error"
	}
	Error(c, status, msg)
}

// BadRequest writes a 400 error
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// Unauthorized writes a 401 error
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

// Forbidden writes a 403 error
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message)
}

// NotFound writes a 404 error
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

// InternalError writes a 500 error with a generic message
func InternalError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}
