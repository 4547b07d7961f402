package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const loginAttemptPrefix = "auth:login_failures:"

// LoginAttemptRepository counts credential checks per email inside a window.
type LoginAttemptRepository interface {
	// Reserve counts one attempt and returns the total inside the window.
	// Callers reserve before verifying credentials so concurrent attempts
	// each observe a distinct count.
	Reserve(ctx context.Context, email string) (int64, error)
	Reset(ctx context.Context, email string) error
}

type loginAttemptRepository struct {
	client *redis.Client
	window time.Duration
}

// NewLoginAttemptRepository returns a Redis-backed counter. Each reservation
// restarts the window, so the counter clears only after window of quiet.
func NewLoginAttemptRepository(client *redis.Client, window time.Duration) LoginAttemptRepository {
	return &loginAttemptRepository{client: client, window: window}
}

func (r *loginAttemptRepository) Reserve(ctx context.Context, email string) (int64, error) {
	key := loginAttemptPrefix + email

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (r *loginAttemptRepository) Reset(ctx context.Context, email string) error {
	return r.client.Del(ctx, loginAttemptPrefix+email).Err()
}
