package db

import (
	"context"
	"fmt"

	"github.com/jobboard/campaign-portal/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func redisOptions(cfg *config.Config) (*redis.Options, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	if cfg.RedisPoolSize > 0 {
		opts.PoolSize = cfg.RedisPoolSize
	}
	return opts, nil
}

// NewRedisClient connects the client shared by pub/sub, rate limiting, the
// sweep lock and session revocation.
func NewRedisClient(ctx context.Context, cfg *config.Config, log *zap.Logger) (*redis.Client, error) {
	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}

	log.Info("redis connected", zap.String("addr", opts.Addr), zap.Int("db", opts.DB), zap.Int("pool_size", opts.PoolSize))
	return client, nil
}
