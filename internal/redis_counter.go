package internal

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pangalink/config"
)

const redisKeyPrefix = "pangalink:"

// RedisCounter keeps transaction counters in Redis with INCR.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(conf *config.Config) (*RedisCounter, error) {
	if !conf.Redis.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCounter{client: client}, nil
}

// NewRedisCounterWithClient wraps an existing client.
func NewRedisCounterWithClient(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Increment(ctx context.Context, key string) (int64, error) {
	value, err := c.client.Incr(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return value, nil
}

func (c *RedisCounter) Reset(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

func (c *RedisCounter) Close() error {
	return c.client.Close()
}
