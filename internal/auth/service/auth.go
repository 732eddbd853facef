package service

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/pentestgpt-backend/internal/auth"
	"github.com/lk2023060901/pentestgpt-backend/internal/auth/biz"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/redis"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/response"
	"go.uber.org/zap"
)

const (
	oauthStateTTL       = 10 * time.Minute
	oauthStateKeyPrefix = "oauth2:google:state:"
)

// AuthService exposes the authentication HTTP API.
type AuthService struct {
	authUC      *biz.AuthUseCase
	googleOAuth *auth.GoogleOAuth
	redisClient *redis.Client
	logger      *logger.Logger
}

func NewAuthService(authUC *biz.AuthUseCase, googleOAuth *auth.GoogleOAuth, redisClient *redis.Client, log *logger.Logger) *AuthService {
	return &AuthService{
		authUC:      authUC,
		googleOAuth: googleOAuth,
		redisClient: redisClient,
		logger:      log,
	}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

func (s *AuthService) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := s.authUC.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if err == biz.ErrEmailAlreadyExists {
			response.Error(c, http.StatusConflict, "email already registered")
			return
		}

		s.logger.Error("failed to register user", zap.Error(err), zap.String("email", req.Email))
		response.InternalError(c)
		return
	}

	response.Created(c, gin.H{
		"user_id": user.ID,
		"email":   user.Email,
		"message": "registered, please verify your email",
	})
}

type LoginRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"remember_me"`
}

func (s *AuthService) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ip := c.ClientIP()

	result, err := s.authUC.Login(c.Request.Context(), req.Email, req.Password, ip, req.RememberMe)
	if err != nil {
		s.logger.Warn("login failed",
			zap.Error(err),
			zap.String("email", req.Email),
			zap.String("ip", ip))

		switch err {
		case biz.ErrInvalidCredentials:
			response.Unauthorized(c, "invalid email or password")
		case biz.ErrAccountLocked:
			response.Forbidden(c, "account locked, try again in 15 minutes")
		default:
			response.InternalError(c)
		}
		return
	}

	data := gin.H{
		"require_2fa": result.Require2FA,
	}
	if result.Require2FA {
		data["pending_auth_id"] = result.PendingAuthID
	} else {
		data["tokens"] = result.Tokens
	}

	response.Success(c, data)
}

type Verify2FARequest struct {
	PendingAuthID string `json:"pending_auth_id" binding:"required"`
	Code          string `json:"code" binding:"required"`
}

func (s *AuthService) Verify2FA(c *gin.Context) {
	var req Verify2FARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := s.authUC.Verify2FA(c.Request.Context(), req.PendingAuthID, req.Code)
	if err != nil {
		s.logger.Warn("2FA verification failed",
			zap.Error(err),
			zap.String("pending_auth_id", req.PendingAuthID))

		switch err {
		case biz.ErrPendingAuthNotFound, biz.ErrPendingAuthExpired:
			response.NotFound(c, "verification session expired, please log in again")
		case biz.ErrTooManyAttempts:
			response.Error(c, http.StatusTooManyRequests, "too many verification attempts, please log in again")
		case biz.ErrInvalid2FACode:
			response.Unauthorized(c, "invalid verification code")
		default:
			response.InternalError(c)
		}
		return
	}

	response.Success(c, gin.H{
		"tokens": result.Tokens,
	})
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (s *AuthService) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	tokens, err := s.authUC.RefreshAccessToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if err == biz.ErrInvalidToken {
			response.Unauthorized(c, "refresh token invalid or expired")
			return
		}

		s.logger.Warn("token refresh failed", zap.Error(err))
		response.InternalError(c)
		return
	}

	response.Success(c, tokens)
}

type VerifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

func (s *AuthService) VerifyEmail(c *gin.Context) {
	var req VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := s.authUC.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		if err == biz.ErrInvalidToken {
			response.BadRequest(c, "verification link invalid or expired")
			return
		}
		s.logger.Error("email verification failed", zap.Error(err))
		response.InternalError(c)
		return
	}

	response.Success(c, gin.H{"message": "email verified"})
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ForgotPassword always answers 200 so account existence cannot be probed.
func (s *AuthService) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := s.authUC.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		s.logger.Error("password reset request failed", zap.Error(err), zap.String("email", req.Email))
	}

	response.Success(c, gin.H{"message": "if the account exists, a reset email has been sent"})
}

type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

func (s *AuthService) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := s.authUC.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		if err == biz.ErrInvalidToken {
			response.BadRequest(c, "reset link invalid or expired")
			return
		}
		s.logger.Error("password reset failed", zap.Error(err))
		response.InternalError(c)
		return
	}

	response.Success(c, gin.H{"message": "password updated, please log in"})
}

// GoogleAuthURL starts the Google sign-in flow. The state is parked in
// Redis to block forged callbacks.
func (s *AuthService) GoogleAuthURL(c *gin.Context) {
	if s.googleOAuth == nil {
		response.Error(c, http.StatusNotImplemented, "Google sign-in not configured")
		return
	}

	state, err := auth.GenerateRandomToken(16)
	if err != nil {
		response.InternalError(c)
		return
	}

	if err := s.redisClient.Set(c.Request.Context(), oauthStateKeyPrefix+state, "valid", oauthStateTTL); err != nil {
		s.logger.Error("failed to store oauth state", zap.Error(err))
		response.InternalError(c)
		return
	}

	response.Success(c, gin.H{
		"auth_url": s.googleOAuth.AuthURL(state),
	})
}

// GoogleCallback finishes the Google sign-in flow.
func (s *AuthService) GoogleCallback(c *gin.Context) {
	if s.googleOAuth == nil {
		response.Error(c, http.StatusNotImplemented, "Google sign-in not configured")
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		response.BadRequest(c, "missing code or state")
		return
	}

	ctx := c.Request.Context()
	stateKey := oauthStateKeyPrefix + state
	if _, err := s.redisClient.Get(ctx, stateKey); err != nil {
		response.Unauthorized(c, "invalid or expired sign-in state")
		return
	}
	_, _ = s.redisClient.Del(ctx, stateKey)

	profile, err := s.googleOAuth.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("google code exchange failed", zap.Error(err))
		response.Unauthorized(c, "Google sign-in failed")
		return
	}

	result, err := s.authUC.LoginWithGoogle(ctx, profile.ID, profile.Email, profile.Name, c.ClientIP())
	if err != nil {
		s.logger.Error("google login failed", zap.Error(err), zap.String("email", profile.Email))
		response.InternalError(c)
		return
	}

	response.Success(c, gin.H{
		"require_2fa": false,
		"tokens":      result.Tokens,
	})
}

func (s *AuthService) Enable2FA(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "unauthorized")
		return
	}

	setup, err := s.authUC.Enable2FA(c.Request.Context(), userID.(string))
	if err != nil {
		s.logger.Error("failed to enable 2FA", zap.Error(err), zap.String("user_id", userID.(string)))
		response.InternalError(c)
		return
	}

	response.Success(c, gin.H{
		"secret":       setup.Secret,
		"qr_code_url":  "/api/v1/auth/2fa/qrcode",
		"backup_codes": setup.BackupCodes,
	})
}

func (s *AuthService) GetQRCode(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "unauthorized")
		return
	}

	setup, err := s.authUC.Enable2FA(c.Request.Context(), userID.(string))
	if err != nil {
		s.logger.Error("failed to get QR code", zap.Error(err))
		response.InternalError(c)
		return
	}

	c.Data(http.StatusOK, "image/png", setup.QRCode)
}

type Confirm2FARequest struct {
	Code string `json:"code" binding:"required,len=6"`
}

func (s *AuthService) Confirm2FA(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req Confirm2FARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := s.authUC.Confirm2FA(c.Request.Context(), userID.(string), req.Code); err != nil {
		if err == biz.ErrInvalid2FACode {
			response.Unauthorized(c, "invalid verification code")
			return
		}

		s.logger.Warn("2FA confirmation failed", zap.Error(err), zap.String("user_id", userID.(string)))
		response.InternalError(c)
		return
	}

	response.Success(c, gin.H{"message": "2FA enabled"})
}

type Disable2FARequest struct {
	Code string `json:"code" binding:"required,len=6"`
}

func (s *AuthService) Disable2FA(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req Disable2FARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := s.authUC.Disable2FA(c.Request.Context(), userID.(string), req.Code); err != nil {
		if err == biz.ErrInvalid2FACode {
			response.Unauthorized(c, "invalid verification code")
			return
		}

		s.logger.Warn("2FA disable failed", zap.Error(err), zap.String("user_id", userID.(string)))
		response.InternalError(c)
		return
	}

	response.Success(c, gin.H{"message": "2FA disabled"})
}

// RegisterRoutes wires public and authenticated auth endpoints.
func (s *AuthService) RegisterRoutes(r *gin.RouterGroup, authMiddleware gin.HandlerFunc, loginLimiter gin.HandlerFunc, registerLimiter gin.HandlerFunc) {
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", registerLimiter, s.Register)
		authGroup.POST("/login", loginLimiter, s.Login)
		authGroup.POST("/2fa/verify", loginLimiter, s.Verify2FA)
		authGroup.POST("/refresh", s.RefreshToken)
		authGroup.POST("/verify-email", s.VerifyEmail)
		authGroup.POST("/forgot-password", loginLimiter, s.ForgotPassword)
		authGroup.POST("/reset-password", loginLimiter, s.ResetPassword)
		authGroup.GET("/google", s.GoogleAuthURL)
		authGroup.GET("/google/callback", s.GoogleCallback)

		protected := authGroup.Group("")
		protected.Use(authMiddleware)
		{
			protected.POST("/2fa/enable", s.Enable2FA)
			protected.GET("/2fa/qrcode", s.GetQRCode)
			protected.POST("/2fa/confirm", s.Confirm2FA)
			protected.POST("/2fa/disable", s.Disable2FA)
		}
	}
}
