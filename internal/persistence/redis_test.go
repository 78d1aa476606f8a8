package persistence

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusdesk/appeal-service/internal/config"
)

func TestRedisPrefixAndPing(t *testing.T) {
	srv := miniredis.RunT(t)
	r := NewRedis(context.Background(), config.RedisConfig{Addr: srv.Addr(), KeyPrefix: "appeals:"}, zap.NewNop())
	defer r.Close()

	assert.Equal(t, "appeals:rl:", r.Prefix("rl"))
	require.NoError(t, r.Ping(context.Background()))

	srv.Close()
	assert.Error(t, r.Ping(context.Background()))
}

func TestNilStoresReportNotConfigured(t *testing.T) {
	var r *Redis
	var p *Postgres
	assert.Error(t, r.Ping(context.Background()))
	assert.Error(t, p.Ping(context.Background()))
}

func TestNewPostgresRequiresDSN(t *testing.T) {
	_, err := NewPostgres(context.Background(), config.PostgresConfig{}, zap.NewNop())
	assert.EqualError(t, err, "POSTGRES_DSN is required")
}
