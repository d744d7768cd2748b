package app

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/splatauth/pkg/errx"
	"github.com/aussiebroadwan/splatauth/pkg/ftoken"
	"github.com/aussiebroadwan/splatauth/pkg/httpx"
	"github.com/aussiebroadwan/splatauth/pkg/nso"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Environment variables holding token seeds.
const (
	EnvSessionToken = "SN3S_SESSION_TOKEN"
	EnvGToken       = "SN3S_GTOKEN"
	EnvBulletToken  = "SN3S_BULLET_TOKEN"
)

// ConfigFileEnv names the optional YAML config file.
const ConfigFileEnv = "SPLATAUTH_CONFIG"

// Config is read from, in increasing precedence: defaults, the YAML file named
// by SPLATAUTH_CONFIG, environment variables, command-line flags.
type Config struct {
	SessionToken string `yaml:"session_token"` // Optional: seed session token (SN3S_SESSION_TOKEN)
	GToken       string `yaml:"gtoken"`        // Optional: seed gtoken (SN3S_GTOKEN)
	BulletToken  string `yaml:"bullet_token"`  // Optional: seed bullet token (SN3S_BULLET_TOKEN)

	UserAgent  string        `yaml:"user_agent"`  // Browser user agent for authorize and SplatNet calls
	Language   string        `yaml:"language"`    // Optional: Accept-Language for SplatNet (default: account language)
	FTokenURLs []string      `yaml:"ftoken_urls"` // Attestation providers in fallback order
	Retries    int           `yaml:"retries"`     // Extra attempts per provider (default: 1)
	Timeout    time.Duration `yaml:"timeout"`     // HTTP timeout per request (default: 15s)

	RefreshInterval time.Duration `yaml:"refresh_interval"` // How often `refresh` checks the tokens (default: 1m)
	RefreshMargin   time.Duration `yaml:"refresh_margin"`   // Regenerate this long before expiry (default: 10m)

	StoreDriver     string `yaml:"store"`            // memory, sqlite or redis (default: memory)
	DatabaseFile    string `yaml:"database_file"`    // SQLite file (default: ./splatauth.db)
	RedisURL        string `yaml:"redis_url"`        // Redis URL (default: redis://localhost:6379/0)
	RedisPrefix     string `yaml:"redis_prefix"`     // Key prefix (default: splatauth:)
	StorePassphrase string `yaml:"store_passphrase"` // Required for sqlite and redis: seals tokens at rest

	AttestationLimit httpx.RateLimitConfig `yaml:"-"`
	Endpoints        nso.Endpoints         `yaml:"-"` // Nintendo endpoints, replaced in tests

	Env       string `yaml:"env"`        // Environment (dev, prod) (default: prod)
	LogLevel  string `yaml:"log_level"`  // Log level (debug, info, warn, error) (default: warn)
	LogFormat string `yaml:"log_format"` // Log format (json, text) (default: text)
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		UserAgent:        nso.DefaultUserAgent,
		FTokenURLs:       ftoken.DefaultProviders(),
		Retries:          1,
		Timeout:          15 * time.Second,
		RefreshInterval:  time.Minute,
		RefreshMargin:    10 * time.Minute,
		StoreDriver:      StoreMemory,
		DatabaseFile:     "splatauth.db",
		RedisURL:         "redis://localhost:6379/0",
		RedisPrefix:      "splatauth:",
		AttestationLimit: httpx.AttestationLimit,
		Endpoints:        nso.DefaultEndpoints(),
		Env:              "prod",
		LogLevel:         "warn",
		LogFormat:        "text",
	}
}

// LoadConfig reads the YAML file named by SPLATAUTH_CONFIG, if any, and then
// the environment.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.SessionToken = getEnvOrDefault(EnvSessionToken, cfg.SessionToken)
	cfg.GToken = getEnvOrDefault(EnvGToken, cfg.GToken)
	cfg.BulletToken = getEnvOrDefault(EnvBulletToken, cfg.BulletToken)
	cfg.UserAgent = getEnvOrDefault("SPLATAUTH_USER_AGENT", cfg.UserAgent)
	cfg.Language = getEnvOrDefault("SPLATAUTH_LANGUAGE", cfg.Language)
	cfg.FTokenURLs = getEnvListOrDefault("SPLATAUTH_FTOKEN_URLS", cfg.FTokenURLs)
	cfg.Retries = getEnvIntOrDefault("SPLATAUTH_RETRIES", cfg.Retries)
	cfg.Timeout = getEnvDurationOrDefault("SPLATAUTH_HTTP_TIMEOUT", cfg.Timeout)
	cfg.RefreshInterval = getEnvDurationOrDefault("SPLATAUTH_REFRESH_INTERVAL", cfg.RefreshInterval)
	cfg.RefreshMargin = getEnvDurationOrDefault("SPLATAUTH_REFRESH_MARGIN", cfg.RefreshMargin)
	cfg.StoreDriver = getEnvOrDefault("SPLATAUTH_STORE", cfg.StoreDriver)
	cfg.DatabaseFile = getEnvOrDefault("SPLATAUTH_DATABASE_FILE", cfg.DatabaseFile)
	cfg.RedisURL = getEnvOrDefault("SPLATAUTH_REDIS_URL", cfg.RedisURL)
	cfg.RedisPrefix = getEnvOrDefault("SPLATAUTH_REDIS_PREFIX", cfg.RedisPrefix)
	cfg.StorePassphrase = getEnvOrDefault("SPLATAUTH_STORE_PASSPHRASE", cfg.StorePassphrase)
	cfg.AttestationLimit = httpx.ParseRateLimitFromEnv("ATTESTATION", cfg.AttestationLimit)
	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// BindFlags registers flags that override c when parsed.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.StoreDriver, "store", c.StoreDriver, "token store: memory, sqlite or redis")
	fs.StringVar(&c.DatabaseFile, "db", c.DatabaseFile, "sqlite database file")
	fs.StringVar(&c.RedisURL, "redis-url", c.RedisURL, "redis server url")
	fs.StringSliceVar(&c.FTokenURLs, "ftoken-url", c.FTokenURLs, "attestation provider, repeat for fallbacks")
	fs.IntVar(&c.Retries, "retries", c.Retries, "extra attempts per attestation provider")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "http timeout per request")
	fs.DurationVar(&c.RefreshInterval, "refresh-interval", c.RefreshInterval, "how often refresh checks the tokens")
	fs.DurationVar(&c.RefreshMargin, "refresh-margin", c.RefreshMargin, "regenerate this long before expiry")
	fs.StringVar(&c.UserAgent, "user-agent", c.UserAgent, "browser user agent")
	fs.StringVar(&c.Language, "language", c.Language, "Accept-Language for SplatNet")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: json or text")
}

// Validate reports the first configuration problem.
func (c Config) Validate() error {
	if !slices.Contains([]string{StoreMemory, StoreSQLite, StoreRedis}, c.StoreDriver) {
		return errx.Configuration("unknown store %q (memory, sqlite, redis)", c.StoreDriver)
	}
	if c.StoreDriver != StoreMemory && c.StorePassphrase == "" {
		return errx.Configuration("SPLATAUTH_STORE_PASSPHRASE is required for the %s store", c.StoreDriver)
	}
	if len(c.FTokenURLs) == 0 {
		return errx.Configuration("at least one f-token url is required")
	}
	if c.Retries < 0 {
		return errx.Configuration("retries must not be negative")
	}
	if c.Timeout <= 0 {
		return errx.Configuration("timeout must be positive")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "30s", "1m")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}

// getEnvListOrDefault splits a comma separated value, dropping empty items.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
