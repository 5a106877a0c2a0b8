package db

import (
	"testing"
	"time"

	"github.com/jobboard/campaign-portal/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfig(t *testing.T) {
	tests := []struct {
		name         string
		max, min     int32
		wantMax      int32
		wantMin      int32
		wantLifetime time.Duration
	}{
		{"configured", 8, 2, 8, 2, 10 * time.Minute},
		{"min capped by max", 4, 10, 4, 4, 10 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := poolConfig(&config.Config{
				PostgresDSN:          "postgres://u:p@db.internal:5432/portal",
				PostgresMaxConns:     tt.max,
				PostgresMinConns:     tt.min,
				PostgresConnLifetime: 10 * time.Minute,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantMax, pc.MaxConns)
			assert.Equal(t, tt.wantMin, pc.MinConns)
			assert.Equal(t, tt.wantLifetime, pc.MaxConnLifetime)
			assert.Equal(t, "portal", pc.ConnConfig.Database)
		})
	}
}

func TestPoolConfigRejectsBadDSN(t *testing.T) {
	_, err := poolConfig(&config.Config{PostgresDSN: "postgres://%zz"})
	assert.Error(t, err)
}

func TestRedisOptions(t *testing.T) {
	opts, err := redisOptions(&config.Config{RedisURL: "redis://cache:6380/3", RedisPoolSize: 25})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 25, opts.PoolSize)
}
