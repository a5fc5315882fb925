package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultMaxAttempts = 10
	defaultWindow      = 15 * time.Minute
)

// LoginLimiter throttles repeated failed logins per username, backed
// by Redis. Key format: login_attempts:<username>
type LoginLimiter struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
}

// NewLoginLimiter creates a LoginLimiter. Non-positive maxAttempts or
// window fall back to the defaults.
func NewLoginLimiter(client *redis.Client, maxAttempts int, window time.Duration) *LoginLimiter {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &LoginLimiter{client: client, maxAttempts: maxAttempts, window: window}
}

// TooManyAttempts reports whether the username has exhausted its
// failed-attempt budget for the current window.
func (l *LoginLimiter) TooManyAttempts(ctx context.Context, username string) (bool, error) {
	n, err := l.client.Get(ctx, l.key(username)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("login limiter get: %w", err)
	}
	return n >= l.maxAttempts, nil
}

// RecordFailure increments the counter and refreshes the window.
func (l *LoginLimiter) RecordFailure(ctx context.Context, username string) error {
	pipe := l.client.TxPipeline()
	pipe.Incr(ctx, l.key(username))
	pipe.Expire(ctx, l.key(username), l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("login limiter incr: %w", err)
	}
	return nil
}

// Reset clears the counter after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, username string) error {
	return l.client.Del(ctx, l.key(username)).Err()
}

func (l *LoginLimiter) key(username string) string {
	return "login_attempts:" + username
}
