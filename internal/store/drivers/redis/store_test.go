package redis_test

import (
	"testing"

	"github.com/aussiebroadwan/splatauth/internal/store"
	redisstore "github.com/aussiebroadwan/splatauth/internal/store/drivers/redis"
	"github.com/aussiebroadwan/splatauth/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestNewStoreValidation(t *testing.T) {
	t.Parallel()

	sealer, err := cryptox.NewSealer("passphrase")
	require.NoError(t, err)

	_, err = redisstore.NewStore("redis://localhost:6379/0", "", nil)
	require.ErrorIs(t, err, store.ErrNoSealer)

	_, err = redisstore.NewStore("not a url", "", sealer)
	require.ErrorContains(t, err, "failed to parse redis url")

	s, err := redisstore.NewStore("redis://localhost:6379/0", "", sealer)
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Close())
}
