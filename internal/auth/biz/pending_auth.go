package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/pentestgpt-backend/internal/pkg/redis"
)

const (
	PendingAuthTTL       = 5 * time.Minute
	MaxVerifyAttempts    = 3
	PendingAuthKeyPrefix = "pending_auth:"
)

// PendingAuth is a password-verified login parked in Redis until the
// user supplies a second factor.
type PendingAuth struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	IP        string    `json:"ip"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type PendingAuthRepo interface {
	Create(ctx context.Context, auth *PendingAuth) error
	Get(ctx context.Context, id string) (*PendingAuth, error)
	IncrementAttempts(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type RedisPendingAuthRepo struct {
	client *redis.Client
}

func NewRedisPendingAuthRepo(client *redis.Client) PendingAuthRepo {
	return &RedisPendingAuthRepo{
		client: client,
	}
}

func (r *RedisPendingAuthRepo) Create(ctx context.Context, auth *PendingAuth) error {
	data, err := json.Marshal(auth)
	if err != nil {
		return fmt.Errorf("failed to marshal pending auth: %w", err)
	}

	key := PendingAuthKeyPrefix + auth.ID
	return r.client.Set(ctx, key, string(data), PendingAuthTTL)
}

func (r *RedisPendingAuthRepo) Get(ctx context.Context, id string) (*PendingAuth, error) {
	key := PendingAuthKeyPrefix + id

	data, err := r.client.Get(ctx, key)
	if err != nil {
		if redis.IsNil(err) {
			return nil, ErrPendingAuthNotFound
		}
		return nil, fmt.Errorf("failed to get pending auth: %w", err)
	}

	var auth PendingAuth
	if err := json.Unmarshal([]byte(data), &auth); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending auth: %w", err)
	}

	// explicit expiry check in case the Redis TTL lagged
	if time.Now().After(auth.ExpiresAt) {
		_ = r.Delete(ctx, id)
		return nil, ErrPendingAuthExpired
	}

	return &auth, nil
}

func (r *RedisPendingAuthRepo) IncrementAttempts(ctx context.Context, id string) error {
	auth, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	auth.Attempts++

	if auth.Attempts >= MaxVerifyAttempts {
		return r.Delete(ctx, id)
	}

	return r.Create(ctx, auth)
}

func (r *RedisPendingAuthRepo) Delete(ctx context.Context, id string) error {
	key := PendingAuthKeyPrefix + id
	_, err := r.client.Del(ctx, key)
	return err
}

func NewPendingAuth(userID string, email, ip string) *PendingAuth {
	now := time.Now()
	return &PendingAuth{
		ID:        uuid.New().String(),
		UserID:    userID,
		Email:     email,
		IP:        ip,
		Attempts:  0,
		CreatedAt: now,
		ExpiresAt: now.Add(PendingAuthTTL),
	}
}
