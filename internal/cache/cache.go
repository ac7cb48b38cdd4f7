// Package cache publishes ingestion progress to Redis.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultProgressTTL bounds how long a finished chat's progress stays readable.
const DefaultProgressTTL = 24 * time.Hour

// Progress is the last checkpoint reported for a chat.
type Progress struct {
	Percent   int       `json:"percent"`
	Stage     string    `json:"stage"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cache is the progress channel. Implementations must be safe for concurrent use.
type Cache interface {
	Ping(ctx context.Context) error
	SetProgress(ctx context.Context, chatID uuid.UUID, p Progress, ttl time.Duration) error
	GetProgress(ctx context.Context, chatID uuid.UUID) (Progress, bool, error)
	ClearProgress(ctx context.Context, chatID uuid.UUID) error
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

// NewRedisCacheFromClient wraps an existing client, so the queue and the
// progress channel can share one connection pool.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Client returns the underlying Redis client.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) SetProgress(ctx context.Context, chatID uuid.UUID, p Progress, ttl time.Duration) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	key := ProgressKey(chatID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key,
		fieldPercent, p.Percent,
		fieldStage, p.Stage,
		fieldUpdatedAt, p.UpdatedAt.Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return nil
}

func (c *RedisCache) GetProgress(ctx context.Context, chatID uuid.UUID) (Progress, bool, error) {
	vals, err := c.client.HGetAll(ctx, ProgressKey(chatID)).Result()
	if err != nil {
		return Progress{}, false, err
	}
	if len(vals) == 0 {
		return Progress{}, false, nil
	}

	pct, err := strconv.Atoi(vals[fieldPercent])
	if err != nil {
		return Progress{}, false, fmt.Errorf("malformed progress for chat %s: %w", chatID, err)
	}
	p := Progress{Percent: pct, Stage: vals[fieldStage]}
	if ts, err := time.Parse(time.RFC3339Nano, vals[fieldUpdatedAt]); err == nil {
		p.UpdatedAt = ts
	}
	return p, true, nil
}

func (c *RedisCache) ClearProgress(ctx context.Context, chatID uuid.UUID) error {
	return c.client.Del(ctx, ProgressKey(chatID)).Err()
}
