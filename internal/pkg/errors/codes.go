package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

// Error codes for different modules
const (
	// Success
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrUnauthorized    = 1003
	ErrForbidden       = 1004
	ErrConflict        = 1005
	ErrTooManyRequests = 1006
	ErrBadRequest      = 1007
	ErrServiceUnavail  = 1008

	// Auth errors (2000-2999)
	ErrAuthInvalidCredentials = 2000
	ErrAuthUserNotFound       = 2001
	ErrAuthEmailExists        = 2002
	ErrAuthAccountLocked      = 2003
	ErrAuthInvalid2FA         = 2004
	ErrAuthInvalidToken       = 2005
	ErrAuthTokenExpired       = 2006
	ErrAuthWeakPassword       = 2007

	// Chat errors (3000-3999)
	ErrChatNotFound      = 3000
	ErrChatUnauthorized  = 3001
	ErrChatInvalidInput  = 3002
	ErrMessageNotFound   = 3003
	ErrStreamUnavailable = 3004

	// Model/provider errors (4000-4999)
	ErrProviderNotConfigured = 4000
	ErrProviderUnavailable   = 4001
	ErrModelNotSupported     = 4002

	// File errors (5000-5999)
	ErrFileInvalidType = 5000
	ErrFileTooLarge    = 5001
	ErrFileStorage     = 5002
)

// codeMap maps error codes to their details
var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	// Common errors
	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrUnauthorized:    {ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	ErrForbidden:       {ErrForbidden, http.StatusForbidden, "Forbidden"},
	ErrConflict:        {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrTooManyRequests: {ErrTooManyRequests, http.StatusTooManyRequests, "Too many requests"},
	ErrBadRequest:      {ErrBadRequest, http.StatusBadRequest, "Bad request"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},

	// Auth errors
	ErrAuthInvalidCredentials: {ErrAuthInvalidCredentials, http.StatusUnauthorized, "Invalid email or password"},
	ErrAuthUserNotFound:       {ErrAuthUserNotFound, http.StatusNotFound, "User not found"},
	ErrAuthEmailExists:        {ErrAuthEmailExists, http.StatusConflict, "Email already exists"},
	ErrAuthAccountLocked:      {ErrAuthAccountLocked, http.StatusForbidden, "Account locked due to too many failed attempts"},
	ErrAuthInvalid2FA:         {ErrAuthInvalid2FA, http.StatusUnauthorized, "Invalid 2FA code"},
	ErrAuthInvalidToken:       {ErrAuthInvalidToken, http.StatusUnauthorized, "Invalid or expired token"},
	ErrAuthTokenExpired:       {ErrAuthTokenExpired, http.StatusUnauthorized, "Token expired"},
	ErrAuthWeakPassword:       {ErrAuthWeakPassword, http.StatusBadRequest, "Password is too weak"},

	// Chat errors
	ErrChatNotFound:      {ErrChatNotFound, http.StatusNotFound, "Chat not found"},
	ErrChatUnauthorized:  {ErrChatUnauthorized, http.StatusForbidden, "Unauthorized access to chat"},
	ErrChatInvalidInput:  {ErrChatInvalidInput, http.StatusBadRequest, "Invalid chat input"},
	ErrMessageNotFound:   {ErrMessageNotFound, http.StatusNotFound, "Message not found"},
	ErrStreamUnavailable: {ErrStreamUnavailable, http.StatusServiceUnavailable, "Streaming not available"},

	// Model/provider errors
	ErrProviderNotConfigured: {ErrProviderNotConfigured, http.StatusInternalServerError, "Model provider not configured"},
	ErrProviderUnavailable:   {ErrProviderUnavailable, http.StatusBadGateway, "Model provider unavailable"},
	ErrModelNotSupported:     {ErrModelNotSupported, http.StatusBadRequest, "Model not supported"},

	// File errors
	ErrFileInvalidType: {ErrFileInvalidType, http.StatusBadRequest, "Unsupported file type"},
	ErrFileTooLarge:    {ErrFileTooLarge, http.StatusBadRequest, "File size exceeds limit"},
	ErrFileStorage:     {ErrFileStorage, http.StatusInternalServerError, "Storage operation failed"},
}

// GetCode returns the Code for a given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns HTTP status for a given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the message for a given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsSuccess checks if the code represents success
func IsSuccess(code int) bool {
	return code == Success
}

// IsClientError checks if the code represents a client error (4xx)
func IsClientError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 400 && status < 500
}

// IsServerError checks if the code represents a server error (5xx)
func IsServerError(code int) bool {
	return GetHTTPStatus(code) >= 500
}

// FormatError formats an error message with code
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
