package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/splatauth/pkg/errx"
	"github.com/aussiebroadwan/splatauth/pkg/ftoken"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, StoreMemory, cfg.StoreDriver)
	require.Equal(t, ftoken.DefaultProviders(), cfg.FTokenURLs)
	require.Equal(t, 1, cfg.Retries)
	require.Equal(t, 15*time.Second, cfg.Timeout)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "splatauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store: sqlite
database_file: /var/lib/splatauth/tokens.db
store_passphrase: from-file
ftoken_urls:
  - https://f.example/one
  - https://f.example/two
timeout: 30s
session_token: session-from-file
`), 0o600))

	t.Setenv(ConfigFileEnv, path)
	t.Setenv("SPLATAUTH_STORE_PASSPHRASE", "from-env")
	t.Setenv(EnvSessionToken, "session-from-env")
	t.Setenv("SPLATAUTH_RETRIES", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, StoreSQLite, cfg.StoreDriver)
	require.Equal(t, "/var/lib/splatauth/tokens.db", cfg.DatabaseFile)
	require.Equal(t, []string{"https://f.example/one", "https://f.example/two"}, cfg.FTokenURLs)
	require.Equal(t, 30*time.Second, cfg.Timeout)
	require.Equal(t, "from-env", cfg.StorePassphrase)
	require.Equal(t, "session-from-env", cfg.SessionToken)
	require.Equal(t, 3, cfg.Retries)

	// Flags win over both
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--store", "redis", "--ftoken-url", "https://f.example/only"}))
	require.Equal(t, StoreRedis, cfg.StoreDriver)
	require.Equal(t, []string{"https://f.example/only"}, cfg.FTokenURLs)
	require.Equal(t, "/var/lib/splatauth/tokens.db", cfg.DatabaseFile)
}

func TestLoadConfigBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [unclosed"), 0o600))
	t.Setenv(ConfigFileEnv, path)

	_, err := LoadConfig()
	require.ErrorContains(t, err, "failed to parse config file")

	t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = LoadConfig()
	require.ErrorContains(t, err, "failed to read config file")
}

func TestGetEnvListOrDefault(t *testing.T) {
	t.Setenv("SPLATAUTH_FTOKEN_URLS", " https://a.example/f , ,https://b.example/f")
	require.Equal(t, []string{"https://a.example/f", "https://b.example/f"},
		getEnvListOrDefault("SPLATAUTH_FTOKEN_URLS", nil))

	t.Setenv("SPLATAUTH_FTOKEN_URLS", " , ")
	require.Equal(t, []string{"fallback"}, getEnvListOrDefault("SPLATAUTH_FTOKEN_URLS", []string{"fallback"}))
}

func TestGetEnvDurationOrDefault(t *testing.T) {
	t.Setenv("SPLATAUTH_HTTP_TIMEOUT", "45")
	require.Equal(t, 45*time.Second, getEnvDurationOrDefault("SPLATAUTH_HTTP_TIMEOUT", time.Second))

	t.Setenv("SPLATAUTH_HTTP_TIMEOUT", "2m")
	require.Equal(t, 2*time.Minute, getEnvDurationOrDefault("SPLATAUTH_HTTP_TIMEOUT", time.Second))

	t.Setenv("SPLATAUTH_HTTP_TIMEOUT", "soon")
	require.Equal(t, time.Second, getEnvDurationOrDefault("SPLATAUTH_HTTP_TIMEOUT", time.Second))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown store", func(c *Config) { c.StoreDriver = "postgres" }},
		{"sqlite without passphrase", func(c *Config) { c.StoreDriver = StoreSQLite }},
		{"redis without passphrase", func(c *Config) { c.StoreDriver = StoreRedis }},
		{"no providers", func(c *Config) { c.FTokenURLs = nil }},
		{"negative retries", func(c *Config) { c.Retries = -1 }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			require.ErrorIs(t, cfg.Validate(), errx.ErrConfiguration)
		})
	}
}
