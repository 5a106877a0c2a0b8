package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jobboard/campaign-portal/internal/config"
	"go.uber.org/zap"
)

// poolConfig applies the configured sizing to a parsed DSN. MinConns never
// exceeds MaxConns.
func poolConfig(cfg *config.Config) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse POSTGRES_DSN: %w", err)
	}

	if cfg.PostgresMaxConns > 0 {
		pc.MaxConns = cfg.PostgresMaxConns
	}
	pc.MinConns = min(cfg.PostgresMinConns, pc.MaxConns)
	if cfg.PostgresConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.PostgresConnLifetime
	}
	pc.MaxConnIdleTime = 5 * time.Minute
	return pc, nil
}

func NewPostgresPool(ctx context.Context, cfg *config.Config, log *zap.Logger) (*pgxpool.Pool, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres %s/%s: %w", pc.ConnConfig.Host, pc.ConnConfig.Database, err)
	}

	log.Info("postgres pool created",
		zap.String("host", pc.ConnConfig.Host),
		zap.String("database", pc.ConnConfig.Database),
		zap.Int32("max_conns", pc.MaxConns),
		zap.Int32("min_conns", pc.MinConns))
	return pool, nil
}
