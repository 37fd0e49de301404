package users

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginLimiter counts failed logins per key and locks the key once the
// configured number of failures is reached
type LoginLimiter interface {
	// Allowed reports whether another attempt may be made for key
	Allowed(ctx context.Context, key string) (bool, error)

	// Fail records a failed attempt for key
	Fail(ctx context.Context, key string) error

	// Reset clears the failure count for key
	Reset(ctx context.Context, key string) error
}

type attemptWindow struct {
	count     int
	expiresAt time.Time
}

// MemoryLimiter is a process-local LoginLimiter
type MemoryLimiter struct {
	maxAttempts int
	window      time.Duration
	now         func() time.Time

	mu       sync.Mutex
	attempts map[string]*attemptWindow
}

// NewMemoryLimiter creates an in-memory limiter
func NewMemoryLimiter(maxAttempts int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
		attempts:    make(map[string]*attemptWindow),
	}
}

// Allowed implements LoginLimiter
func (l *MemoryLimiter) Allowed(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.attempts[key]
	if !ok {
		return true, nil
	}
	if l.now().After(entry.expiresAt) {
		delete(l.attempts, key)
		return true, nil
	}
	return entry.count < l.maxAttempts, nil
}

// Fail implements LoginLimiter
func (l *MemoryLimiter) Fail(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.attempts[key]
	if !ok || now.After(entry.expiresAt) {
		l.attempts[key] = &attemptWindow{count: 1, expiresAt: now.Add(l.window)}
		return nil
	}
	entry.count++
	return nil
}

// Reset implements LoginLimiter
func (l *MemoryLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.attempts, key)
	return nil
}

// RedisLimiter shares login failure counts between processes through Redis
type RedisLimiter struct {
	client      redis.Cmdable
	maxAttempts int
	window      time.Duration
	prefix      string
}

// NewRedisLimiter creates a Redis-backed limiter
func NewRedisLimiter(client redis.Cmdable, maxAttempts int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:      client,
		maxAttempts: maxAttempts,
		window:      window,
		prefix:      "memchat:login:",
	}
}

func (l *RedisLimiter) key(key string) string {
	return l.prefix + key
}

// Allowed implements LoginLimiter
func (l *RedisLimiter) Allowed(ctx context.Context, key string) (bool, error) {
	count, err := l.client.Get(ctx, l.key(key)).Int()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return true, nil
		}
		return false, fmt.Errorf("failed to read login attempts: %w", err)
	}
	return count < l.maxAttempts, nil
}

// Fail implements LoginLimiter. The window starts at the first failure.
func (l *RedisLimiter) Fail(ctx context.Context, key string) error {
	k := l.key(key)
	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return fmt.Errorf("failed to set login attempt expiry: %w", err)
		}
	}
	return nil
}

// Reset implements LoginLimiter
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset login attempts: %w", err)
	}
	return nil
}

var _ LoginLimiter = (*MemoryLimiter)(nil)
var _ LoginLimiter = (*RedisLimiter)(nil)
