// Package lock provides the short-lived exclusive locks used to keep
// duplicate conclusion triggers from racing the same extraction call.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/insightloop/insightloop/config"
)

// RedisLocker implements interview.Locker over redis SETNX with a TTL.
type RedisLocker struct {
	rdb *redis.Client
}

// NewRedisLocker connects to redis and verifies the connection.
func NewRedisLocker(ctx context.Context, cfg config.RedisConfig) (*RedisLocker, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr(), Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed (%s): %w", cfg.Addr(), err)
	}
	return &RedisLocker{rdb: rdb}, nil
}

// Acquire takes the lock, reporting false when another holder has it.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, key, "1", ttl).Result()
}

// Release drops the lock early; expiry covers crashed holders.
func (l *RedisLocker) Release(ctx context.Context, key string) {
	_ = l.rdb.Del(ctx, key).Err()
}

// Close releases the underlying client.
func (l *RedisLocker) Close() error { return l.rdb.Close() }
