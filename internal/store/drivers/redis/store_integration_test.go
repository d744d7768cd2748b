//go:build integration

package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aussiebroadwan/splatauth/internal/store"
	redisstore "github.com/aussiebroadwan/splatauth/internal/store/drivers/redis"
	"github.com/aussiebroadwan/splatauth/pkg/cryptox"
	"github.com/aussiebroadwan/splatauth/pkg/tokens"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer starts a Redis server and returns its URL.
func setupRedisContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func TestRedisStore(t *testing.T) {
	url := setupRedisContainer(t)
	ctx := context.Background()

	sealer, err := cryptox.NewSealer("redis-test-passphrase")
	require.NoError(t, err)

	s, err := redisstore.NewStore(url, "test:", sealer)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.ApplyMigrations())

	now := time.Now()
	require.NoError(t, s.SaveToken(ctx, tokens.Record{Kind: tokens.KindSession, Value: "session-1", IssuedAt: now}))
	require.NoError(t, s.SaveToken(ctx, tokens.Record{Kind: tokens.KindBullet, Value: "bullet-1", IssuedAt: now}))

	records, err := s.LoadTokens(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	rec, err := s.GetToken(ctx, tokens.KindBullet)
	require.NoError(t, err)
	require.Equal(t, "bullet-1", rec.Value)
	require.Equal(t, now.UnixMilli(), rec.IssuedAt.UnixMilli())

	// Values are sealed and derived keys expire with their token
	raw, err := s.Client().HGet(ctx, "test:tokens:bullet_token", "value").Result()
	require.NoError(t, err)
	require.NotContains(t, raw, "bullet-1")

	ttl, err := s.Client().TTL(ctx, "test:tokens:bullet_token").Result()
	require.NoError(t, err)
	require.InDelta(t, tokens.BulletTTL.Seconds(), ttl.Seconds(), 5)

	ttl, err = s.Client().TTL(ctx, "test:tokens:session_token").Result()
	require.NoError(t, err)
	require.Equal(t, time.Duration(-1), ttl, "session key has no expiry")

	require.NoError(t, s.DeleteTokens(ctx, tokens.KindGToken, tokens.KindBullet))
	_, err = s.GetToken(ctx, tokens.KindBullet)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedisStoreExpiredTokenIsGone(t *testing.T) {
	url := setupRedisContainer(t)
	ctx := context.Background()

	sealer, err := cryptox.NewSealer("redis-test-passphrase")
	require.NoError(t, err)
	s, err := redisstore.NewStore(url, "", sealer)
	require.NoError(t, err)
	defer s.Close()

	// Issued long enough ago that the key expires on write
	old := time.Now().Add(-tokens.GTokenTTL - time.Minute)
	require.NoError(t, s.SaveToken(ctx, tokens.Record{Kind: tokens.KindGToken, Value: "stale", IssuedAt: old}))

	_, err = s.GetToken(ctx, tokens.KindGToken)
	require.ErrorIs(t, err, store.ErrNotFound)
}
