package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/pentestgpt-backend/internal/auth"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailAlreadyExists  = errors.New("email already exists")
	ErrAccountLocked       = errors.New("account is locked due to too many failed login attempts")
	ErrInvalid2FACode      = errors.New("invalid 2FA code")
	ErrEmailNotVerified    = errors.New("email not verified")
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrPendingAuthNotFound = errors.New("pending auth not found or expired")
	ErrPendingAuthExpired  = errors.New("pending auth expired")
	ErrTooManyAttempts     = errors.New("too many verification attempts")
)

// User is the account model used by authentication flows.
type User struct {
	ID                         string // UUID v7
	Name                       string
	Email                      string
	PasswordHash               string
	EmailVerified              bool
	TwoFactorEnabled           bool
	TwoFactorSecret            *string
	TwoFactorBackupCodes       []auth.BackupCode
	FailedLoginAttempts        int
	LockedUntil                *time.Time
	LastLoginAt                *time.Time
	LastLoginIP                *string
	RefreshToken               *string
	RefreshTokenExpiresAt      *time.Time
	EmailVerificationToken     *string
	EmailVerificationExpiresAt *time.Time
	PasswordResetToken         *string
	PasswordResetExpiresAt     *time.Time
	GoogleID                   *string
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

// UserRepo is the persistence boundary for accounts.
type UserRepo interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByRefreshToken(ctx context.Context, refreshToken string) (*User, error)
	GetByPasswordResetToken(ctx context.Context, token string) (*User, error)
	GetByEmailVerificationToken(ctx context.Context, token string) (*User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*User, error)
	Update(ctx context.Context, user *User) error
	IncrementFailedLogins(ctx context.Context, userID string) error
	ResetFailedLogins(ctx context.Context, userID string) error
	LockAccount(ctx context.Context, userID string, duration time.Duration) error
}

// Mailer sends account emails. Implemented by the email service.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, token string) error
	SendEmailVerification(ctx context.Context, to, token string) error
}

// AuthUseCase implements registration, login, MFA and credential recovery.
type AuthUseCase struct {
	userRepo        UserRepo
	pendingAuthRepo PendingAuthRepo
	jwtManager      *auth.JWTManager
	totpManager     *auth.TOTPManager
	mailer          Mailer
}

func NewAuthUseCase(userRepo UserRepo, pendingAuthRepo PendingAuthRepo, jwtManager *auth.JWTManager, totpManager *auth.TOTPManager, mailer Mailer) *AuthUseCase {
	return &AuthUseCase{
		userRepo:        userRepo,
		pendingAuthRepo: pendingAuthRepo,
		jwtManager:      jwtManager,
		totpManager:     totpManager,
		mailer:          mailer,
	}
}

// Register creates an account and queues a verification email.
func (uc *AuthUseCase) Register(ctx context.Context, name, email, password string) (*User, error) {
	existingUser, err := uc.userRepo.GetByEmail(ctx, email)
	if err == nil && existingUser != nil {
		return nil, ErrEmailAlreadyExists
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	verificationToken, err := auth.GenerateRandomToken(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification token: %w", err)
	}

	// UUID v7 keeps ids time ordered
	userID := uuid.Must(uuid.NewV7()).String()

	expiresAt := time.Now().Add(24 * time.Hour)

	user := &User{
		ID:                         userID,
		Name:                       name,
		Email:                      email,
		PasswordHash:               string(passwordHash),
		EmailVerified:              false,
		EmailVerificationToken:     &verificationToken,
		EmailVerificationExpiresAt: &expiresAt,
		CreatedAt:                  time.Now(),
		UpdatedAt:                  time.Now(),
	}

	if err := uc.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	if uc.mailer != nil {
		if err := uc.mailer.SendEmailVerification(ctx, email, verificationToken); err != nil {
			// registration succeeded, the user can request another email
			return user, nil
		}
	}

	return user, nil
}

// Login verifies the password. When MFA is enabled it parks the session
// as a pending auth and the caller must follow up with Verify2FA.
func (uc *AuthUseCase) Login(ctx context.Context, email, password, ip string, rememberMe bool) (*LoginResult, error) {
	user, err := uc.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if user.LockedUntil != nil && user.LockedUntil.After(time.Now()) {
		return nil, ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		uc.userRepo.IncrementFailedLogins(ctx, user.ID)

		// lock for 15 minutes after 5 failures
		if user.FailedLoginAttempts+1 >= 5 {
			uc.userRepo.LockAccount(ctx, user.ID, 15*time.Minute)
		}

		return nil, ErrInvalidCredentials
	}

	if user.TwoFactorEnabled {
		pendingAuth := NewPendingAuth(user.ID, user.Email, ip)
		if err := uc.pendingAuthRepo.Create(ctx, pendingAuth); err != nil {
			return nil, fmt.Errorf("failed to create pending auth: %w", err)
		}

		return &LoginResult{
			Require2FA:    true,
			PendingAuthID: pendingAuth.ID,
			UserID:        user.ID,
		}, nil
	}

	return uc.generateTokens(ctx, user, ip, rememberMe)
}

// Verify2FA completes a pending login with a TOTP code or a backup code.
func (uc *AuthUseCase) Verify2FA(ctx context.Context, pendingAuthID, code string) (*LoginResult, error) {
	pendingAuth, err := uc.pendingAuthRepo.Get(ctx, pendingAuthID)
	if err != nil {
		if err == ErrPendingAuthNotFound || err == ErrPendingAuthExpired {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get pending auth: %w", err)
	}

	if pendingAuth.Attempts >= MaxVerifyAttempts {
		_ = uc.pendingAuthRepo.Delete(ctx, pendingAuthID)
		return nil, ErrTooManyAttempts
	}

	user, err := uc.userRepo.GetByID(ctx, pendingAuth.UserID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	if !user.TwoFactorEnabled || user.TwoFactorSecret == nil {
		return nil, ErrInvalid2FACode
	}

	if uc.totpManager.ValidateCode(*user.TwoFactorSecret, code) {
		_ = uc.pendingAuthRepo.Delete(ctx, pendingAuthID)
		return uc.generateTokens(ctx, user, pendingAuth.IP, false)
	}

	index, valid, err := auth.VerifyBackupCode(user.TwoFactorBackupCodes, code)
	if err != nil {
		return nil, err
	}

	if valid {
		auth.MarkBackupCodeAsUsed(user.TwoFactorBackupCodes, index, &pendingAuth.IP)
		user.UpdatedAt = time.Now()
		if err := uc.userRepo.Update(ctx, user); err != nil {
			return nil, err
		}

		_ = uc.pendingAuthRepo.Delete(ctx, pendingAuthID)
		return uc.generateTokens(ctx, user, pendingAuth.IP, false)
	}

	_ = uc.pendingAuthRepo.IncrementAttempts(ctx, pendingAuthID)
	uc.userRepo.IncrementFailedLogins(ctx, user.ID)
	return nil, ErrInvalid2FACode
}

// RefreshAccessToken exchanges a valid refresh token for a new access token.
func (uc *AuthUseCase) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	user, err := uc.userRepo.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if user.RefreshTokenExpiresAt == nil || user.RefreshTokenExpiresAt.Before(time.Now()) {
		return nil, ErrInvalidToken
	}

	accessToken, err := uc.jwtManager.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(auth.AccessTokenDuration.Seconds()),
	}, nil
}

// VerifyEmail marks the account verified when the token matches.
func (uc *AuthUseCase) VerifyEmail(ctx context.Context, token string) error {
	user, err := uc.userRepo.GetByEmailVerificationToken(ctx, token)
	if err != nil {
		return ErrInvalidToken
	}

	if user.EmailVerificationExpiresAt == nil || user.EmailVerificationExpiresAt.Before(time.Now()) {
		return ErrInvalidToken
	}

	user.EmailVerified = true
	user.EmailVerificationToken = nil
	user.EmailVerificationExpiresAt = nil
	user.UpdatedAt = time.Now()

	return uc.userRepo.Update(ctx, user)
}

// RequestPasswordReset issues a reset token and emails it. Always
// succeeds from the caller's perspective so accounts cannot be probed.
func (uc *AuthUseCase) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := uc.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil
	}

	token, err := auth.GenerateRandomToken(32)
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	expiresAt := time.Now().Add(1 * time.Hour)
	user.PasswordResetToken = &token
	user.PasswordResetExpiresAt = &expiresAt
	user.UpdatedAt = time.Now()

	if err := uc.userRepo.Update(ctx, user); err != nil {
		return err
	}

	if uc.mailer != nil {
		return uc.mailer.SendPasswordReset(ctx, user.Email, token)
	}
	return nil
}

// ResetPassword sets a new password for a valid reset token and
// invalidates existing sessions.
func (uc *AuthUseCase) ResetPassword(ctx context.Context, token, newPassword string) error {
	user, err := uc.userRepo.GetByPasswordResetToken(ctx, token)
	if err != nil {
		return ErrInvalidToken
	}

	if user.PasswordResetExpiresAt == nil || user.PasswordResetExpiresAt.Before(time.Now()) {
		return ErrInvalidToken
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user.PasswordHash = string(passwordHash)
	user.PasswordResetToken = nil
	user.PasswordResetExpiresAt = nil
	user.RefreshToken = nil
	user.RefreshTokenExpiresAt = nil
	user.UpdatedAt = time.Now()

	return uc.userRepo.Update(ctx, user)
}

// LoginWithGoogle signs in or provisions an account from a verified
// Google profile.
func (uc *AuthUseCase) LoginWithGoogle(ctx context.Context, googleID, email, name, ip string) (*LoginResult, error) {
	user, err := uc.userRepo.GetByGoogleID(ctx, googleID)
	if err != nil {
		// link by email if the account already exists
		user, err = uc.userRepo.GetByEmail(ctx, email)
		if err == nil {
			user.GoogleID = &googleID
		} else {
			user = &User{
				ID:            uuid.Must(uuid.NewV7()).String(),
				Name:          name,
				Email:         email,
				EmailVerified: true,
				GoogleID:      &googleID,
				CreatedAt:     time.Now(),
				UpdatedAt:     time.Now(),
			}
			if err := uc.userRepo.Create(ctx, user); err != nil {
				return nil, err
			}
			return uc.generateTokens(ctx, user, ip, false)
		}
	}

	return uc.generateTokens(ctx, user, ip, false)
}

// Enable2FA provisions a TOTP secret, QR code and backup codes. The
// secret stays inactive until Confirm2FA sees a valid code.
func (uc *AuthUseCase) Enable2FA(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	secret, otpURL, err := uc.totpManager.GenerateSecret(user.Email)
	if err != nil {
		return nil, err
	}

	qrCode, err := uc.totpManager.GenerateQRCode(otpURL, 256)
	if err != nil {
		return nil, err
	}

	plainCodes, backupCodes, err := auth.GenerateBackupCodes(auth.BackupCodeCount)
	if err != nil {
		return nil, err
	}

	user.TwoFactorSecret = &secret
	user.TwoFactorBackupCodes = backupCodes
	user.TwoFactorEnabled = false
	user.UpdatedAt = time.Now()

	if err := uc.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	return &TwoFactorSetup{
		Secret:      secret,
		QRCode:      qrCode,
		BackupCodes: plainCodes,
	}, nil
}

// Confirm2FA activates MFA after the user proves they hold the secret.
func (uc *AuthUseCase) Confirm2FA(ctx context.Context, userID string, code string) error {
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		return ErrUserNotFound
	}

	if user.TwoFactorSecret == nil {
		return errors.New("2FA not initialized")
	}

	if !uc.totpManager.ValidateCode(*user.TwoFactorSecret, code) {
		return ErrInvalid2FACode
	}

	user.TwoFactorEnabled = true
	user.UpdatedAt = time.Now()

	return uc.userRepo.Update(ctx, user)
}

// Disable2FA turns off MFA after validating a current code.
func (uc *AuthUseCase) Disable2FA(ctx context.Context, userID string, code string) error {
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		return ErrUserNotFound
	}

	if !user.TwoFactorEnabled || user.TwoFactorSecret == nil {
		return errors.New("2FA not enabled")
	}

	if !uc.totpManager.ValidateCode(*user.TwoFactorSecret, code) {
		return ErrInvalid2FACode
	}

	user.TwoFactorEnabled = false
	user.TwoFactorSecret = nil
	user.TwoFactorBackupCodes = nil
	user.UpdatedAt = time.Now()

	return uc.userRepo.Update(ctx, user)
}

func (uc *AuthUseCase) generateTokens(ctx context.Context, user *User, ip string, rememberMe bool) (*LoginResult, error) {
	accessToken, err := uc.jwtManager.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	refreshToken, err := uc.jwtManager.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	tokenDuration := auth.RefreshTokenDuration
	if rememberMe {
		tokenDuration = 90 * 24 * time.Hour
	}

	expiresAt := time.Now().Add(tokenDuration)
	user.RefreshToken = &refreshToken
	user.RefreshTokenExpiresAt = &expiresAt

	now := time.Now()
	user.LastLoginAt = &now
	user.LastLoginIP = &ip
	user.FailedLoginAttempts = 0
	user.UpdatedAt = now

	if err := uc.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	return &LoginResult{
		Require2FA: false,
		UserID:     user.ID,
		Tokens: &TokenPair{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresIn:    int(auth.AccessTokenDuration.Seconds()),
		},
	}, nil
}

// LoginResult is the outcome of a login attempt. When Require2FA is set
// the caller must present PendingAuthID with a code.
type LoginResult struct {
	Require2FA    bool
	PendingAuthID string
	UserID        string
	Tokens        *TokenPair
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// TwoFactorSetup is returned once at provisioning time. Backup codes are
// never shown again.
type TwoFactorSetup struct {
	Secret      string
	QRCode      []byte
	BackupCodes []string
}
