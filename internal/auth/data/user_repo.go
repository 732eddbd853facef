package data

import (
	"context"
	"time"

	"github.com/lk2023060901/pentestgpt-backend/internal/auth"
	"github.com/lk2023060901/pentestgpt-backend/internal/auth/biz"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/database"
	"gorm.io/gorm"
)

// AuthUserRepo is the gorm-backed implementation of biz.UserRepo.
type AuthUserRepo struct {
	db *database.DB
}

func NewAuthUserRepo(db *database.DB) biz.UserRepo {
	return &AuthUserRepo{db: db}
}

func (r *AuthUserRepo) Create(ctx context.Context, user *biz.User) error {
	po := r.toUserPO(user)
	if err := r.db.WithContext(ctx).GetDB().Create(po).Error; err != nil {
		return err
	}
	user.ID = po.ID
	return nil
}

func (r *AuthUserRepo) GetByID(ctx context.Context, id string) (*biz.User, error) {
	return r.getBy(ctx, "id = ?", id)
}

func (r *AuthUserRepo) GetByEmail(ctx context.Context, email string) (*biz.User, error) {
	return r.getBy(ctx, "email = ?", email)
}

func (r *AuthUserRepo) GetByRefreshToken(ctx context.Context, refreshToken string) (*biz.User, error) {
	user, err := r.getBy(ctx, "refresh_token = ?", refreshToken)
	if err == biz.ErrUserNotFound {
		return nil, biz.ErrInvalidToken
	}
	return user, err
}

func (r *AuthUserRepo) GetByPasswordResetToken(ctx context.Context, token string) (*biz.User, error) {
	user, err := r.getBy(ctx, "password_reset_token = ?", token)
	if err == biz.ErrUserNotFound {
		return nil, biz.ErrInvalidToken
	}
	return user, err
}

func (r *AuthUserRepo) GetByEmailVerificationToken(ctx context.Context, token string) (*biz.User, error) {
	user, err := r.getBy(ctx, "email_verification_token = ?", token)
	if err == biz.ErrUserNotFound {
		return nil, biz.ErrInvalidToken
	}
	return user, err
}

func (r *AuthUserRepo) GetByGoogleID(ctx context.Context, googleID string) (*biz.User, error) {
	return r.getBy(ctx, "google_id = ?", googleID)
}

func (r *AuthUserRepo) getBy(ctx context.Context, query string, arg interface{}) (*biz.User, error) {
	var po UserPO
	if err := r.db.WithContext(ctx).GetDB().
		Where(query+" AND deleted_at IS NULL", arg).
		First(&po).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrUserNotFound
		}
		return nil, err
	}
	return r.toBizUser(&po), nil
}

// Update writes the full row. Select("*") is needed so cleared pointer
// fields, like a consumed reset token, are persisted as NULL.
func (r *AuthUserRepo) Update(ctx context.Context, user *biz.User) error {
	po := r.toUserPO(user)
	return r.db.WithContext(ctx).GetDB().
		Model(&UserPO{}).
		Where("id = ?", user.ID).
		Select("*").
		Omit("id", "created_at", "deleted_at").
		Updates(po).Error
}

func (r *AuthUserRepo) IncrementFailedLogins(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).GetDB().
		Model(&UserPO{}).
		Where("id = ?", userID).
		UpdateColumn("failed_login_attempts", gorm.Expr("failed_login_attempts + 1")).Error
}

func (r *AuthUserRepo) ResetFailedLogins(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).GetDB().
		Model(&UserPO{}).
		Where("id = ?", userID).
		Update("failed_login_attempts", 0).Error
}

func (r *AuthUserRepo) LockAccount(ctx context.Context, userID string, duration time.Duration) error {
	lockedUntil := time.Now().Add(duration)
	return r.db.WithContext(ctx).GetDB().
		Model(&UserPO{}).
		Where("id = ?", userID).
		Update("locked_until", lockedUntil).Error
}

func (r *AuthUserRepo) toUserPO(user *biz.User) *UserPO {
	if user == nil {
		return nil
	}

	return &UserPO{
		ID:                         user.ID,
		Name:                       user.Name,
		Email:                      user.Email,
		PasswordHash:               user.PasswordHash,
		EmailVerified:              user.EmailVerified,
		RefreshToken:               user.RefreshToken,
		RefreshTokenExpiresAt:      user.RefreshTokenExpiresAt,
		TwoFactorEnabled:           user.TwoFactorEnabled,
		TwoFactorSecret:            user.TwoFactorSecret,
		TwoFactorBackupCodes:       BackupCodesJSON(user.TwoFactorBackupCodes),
		LastLoginAt:                user.LastLoginAt,
		LastLoginIP:                user.LastLoginIP,
		FailedLoginAttempts:        user.FailedLoginAttempts,
		LockedUntil:                user.LockedUntil,
		EmailVerificationToken:     user.EmailVerificationToken,
		EmailVerificationExpiresAt: user.EmailVerificationExpiresAt,
		PasswordResetToken:         user.PasswordResetToken,
		PasswordResetExpiresAt:     user.PasswordResetExpiresAt,
		GoogleID:                   user.GoogleID,
		CreatedAt:                  user.CreatedAt,
		UpdatedAt:                  user.UpdatedAt,
	}
}

func (r *AuthUserRepo) toBizUser(po *UserPO) *biz.User {
	if po == nil {
		return nil
	}

	return &biz.User{
		ID:                         po.ID,
		Name:                       po.Name,
		Email:                      po.Email,
		PasswordHash:               po.PasswordHash,
		EmailVerified:              po.EmailVerified,
		TwoFactorEnabled:           po.TwoFactorEnabled,
		TwoFactorSecret:            po.TwoFactorSecret,
		TwoFactorBackupCodes:       []auth.BackupCode(po.TwoFactorBackupCodes),
		FailedLoginAttempts:        po.FailedLoginAttempts,
		LockedUntil:                po.LockedUntil,
		LastLoginAt:                po.LastLoginAt,
		LastLoginIP:                po.LastLoginIP,
		RefreshToken:               po.RefreshToken,
		RefreshTokenExpiresAt:      po.RefreshTokenExpiresAt,
		EmailVerificationToken:     po.EmailVerificationToken,
		EmailVerificationExpiresAt: po.EmailVerificationExpiresAt,
		PasswordResetToken:         po.PasswordResetToken,
		PasswordResetExpiresAt:     po.PasswordResetExpiresAt,
		GoogleID:                   po.GoogleID,
		CreatedAt:                  po.CreatedAt,
		UpdatedAt:                  po.UpdatedAt,
	}
}
