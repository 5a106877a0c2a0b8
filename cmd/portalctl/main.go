package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jobboard/campaign-portal/internal/config"
	"github.com/jobboard/campaign-portal/internal/db"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "portalctl",
	Short: "Operate the campaign portal",
	Long: `Administrative commands for the campaign portal.

Available subcommands:
  migrate    - Apply pending schema migrations
  seed       - Create or update tenants, cs users and agencies from a YAML file
  magic-link - Issue a sign-in link without sending email
  sweep      - Run one reminder and escalation sweep`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(migrateCmd, seedCmd, magicLinkCmd, sweepCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env holds the connections every subcommand needs.
type env struct {
	cfg  *config.Config
	log  *zap.Logger
	pool *pgxpool.Pool
	rdb  *redis.Client
}

func newLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// connect opens postgres, and redis when withRedis is set.
func connect(ctx context.Context, withRedis bool) (*env, func(), error) {
	log := newLogger()
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	pool, err := db.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	e := &env{cfg: cfg, log: log, pool: pool}
	cleanup := func() {
		pool.Close()
		if e.rdb != nil {
			_ = e.rdb.Close()
		}
		_ = log.Sync()
	}

	if withRedis {
		rdb, err := db.NewRedisClient(ctx, cfg, log)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		e.rdb = rdb
	}
	return e, cleanup, nil
}
