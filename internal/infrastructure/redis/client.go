package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/skybridge/bookingd/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
)

// NewClient connects to redis and verifies the connection before returning.
// Redis backs the settlement stream, driver locks, and rotation locks, so a
// dead connection at startup is fatal rather than degraded.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	})

	maxRetries := cfg.ConnectRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	retryDelay := cfg.ConnectRetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		select {
		case <-ctx.Done():
			client.Close()
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * retryDelay):
		}
	}

	client.Close()
	return nil, fmt.Errorf("failed to connect to Redis after %d retries: %w", maxRetries, lastErr)
}
