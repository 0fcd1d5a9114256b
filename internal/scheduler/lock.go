package scheduler

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker grants a key to at most one holder until ttl passes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// NoopLocker always grants the lock. Used when no Redis is configured.
type NoopLocker struct{}

// Acquire implements Locker.
func (NoopLocker) Acquire(context.Context, string, time.Duration) (bool, error) { return true, nil }

// RedisLocker takes locks with SET NX PX. The lock is never released early:
// it marks the window as done for every instance until it expires.
type RedisLocker struct {
	Client *redis.Client
	holder string
}

// NewRedisLocker connects lazily to the Redis at url (redis://...).
func NewRedisLocker(url string) (*RedisLocker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisLocker{Client: redis.NewClient(opt), holder: holderID()}, nil
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.Client.SetNX(ctx, key, l.holder, ttl).Result()
}

// Close releases the client's connections.
func (l *RedisLocker) Close() error { return l.Client.Close() }

func holderID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return host + ":" + strconv.Itoa(os.Getpid())
}
