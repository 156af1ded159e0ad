package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLoginLocked is returned while an email has too many recent failed logins.
var ErrLoginLocked = errors.New("too many failed login attempts, try again later")

// LoginLimiter counts failed logins per email in Redis. A nil client
// disables limiting.
type LoginLimiter struct {
	client   redis.Cmdable
	attempts int
	window   time.Duration
}

// NewLoginLimiter allows attempts failures per window before locking.
func NewLoginLimiter(client redis.Cmdable, attempts int, window time.Duration) *LoginLimiter {
	return &LoginLimiter{client: client, attempts: attempts, window: window}
}

func loginKey(email string) string {
	return "ratelimit:login:" + strings.ToLower(email)
}

// Check returns ErrLoginLocked once the failure count reaches the limit.
func (l *LoginLimiter) Check(ctx context.Context, email string) error {
	if l == nil || l.client == nil || l.attempts <= 0 {
		return nil
	}

	count, err := l.client.Get(ctx, loginKey(email)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("check login rate limit: %w", err)
	}
	if count >= l.attempts {
		return ErrLoginLocked
	}
	return nil
}

// RecordFailure increments the failure counter and refreshes its window.
func (l *LoginLimiter) RecordFailure(ctx context.Context, email string) error {
	if l == nil || l.client == nil {
		return nil
	}

	pipe := l.client.TxPipeline()
	pipe.Incr(ctx, loginKey(email))
	pipe.Expire(ctx, loginKey(email), l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record failed login: %w", err)
	}
	return nil
}

// Clear resets the counter after a successful login.
func (l *LoginLimiter) Clear(ctx context.Context, email string) error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Del(ctx, loginKey(email)).Err()
}
