// File: utils/cache.go
package utils

import (
	"context"
	"fmt"
	"time"

	"unmute/config"

	"github.com/go-redis/redis/v8"
)

// InitRedis connects the Redis client backing the redis document store.
func InitRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisStoreDB,
	})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis (store): %w", err)
	}
	return client, nil
}
