package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisClient holds sessions and rate limit counters.
type RedisClient struct {
	Client *redis.Client
	log    *logrus.Logger
}

func NewRedis(ctx context.Context, url string, log *logrus.Logger) (*RedisClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info("Connected to Redis")
	return &RedisClient{Client: client, log: log}, nil
}

func (c *RedisClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (c *RedisClient) Close() {
	if c.Client == nil {
		return
	}
	if err := c.Client.Close(); err != nil {
		c.log.WithError(err).Error("Error closing Redis client")
		return
	}
	c.log.Info("Redis client closed")
}
