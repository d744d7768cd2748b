package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aussiebroadwan/splatauth/internal/events"
	"github.com/aussiebroadwan/splatauth/internal/store"
	"github.com/aussiebroadwan/splatauth/internal/store/drivers/redis"
	"github.com/aussiebroadwan/splatauth/internal/store/drivers/sqlite"
	"github.com/aussiebroadwan/splatauth/pkg/cryptox"
	"github.com/aussiebroadwan/splatauth/pkg/exchange"
	"github.com/aussiebroadwan/splatauth/pkg/ftoken"
	"github.com/aussiebroadwan/splatauth/pkg/httpx"
	"github.com/aussiebroadwan/splatauth/pkg/nso"
	"github.com/aussiebroadwan/splatauth/pkg/slogx"
	"github.com/aussiebroadwan/splatauth/pkg/tokens"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application holds the token set and everything needed to regenerate it.
type Application struct {
	cfg    Config
	logger *slog.Logger

	nso       *nso.Client
	exchanger *exchange.Exchanger
	tokens    *tokens.Store

	// db is nil for the memory driver. redis is set alongside it for the
	// redis driver so the event stream can share its connection.
	db    store.Store
	redis *redis.Store

	pubsub    message.Publisher
	publisher *events.Publisher
}

// New creates an Application: persisted tokens are restored and SN3S_*
// seeds installed on top.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "splatauth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initClients(); err != nil {
		return nil, err
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initEvents(); err != nil {
		_ = app.Close()
		return nil, err
	}

	opts := []tokens.Option{tokens.WithNotifier(app.publisher)}
	if app.db != nil {
		opts = append(opts, tokens.WithRepository(app.db))
	}
	app.tokens = tokens.NewStore(app.exchanger, opts...)

	ctx := app.context(context.Background())
	if err := app.tokens.Restore(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	if err := app.seed(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}

	return app, nil
}

func (app *Application) initClients() error {
	transport := slogx.NewTransport(http.DefaultTransport, app.logger)

	app.nso = nso.NewClient()
	app.nso.Endpoints = app.cfg.Endpoints
	app.nso.HTTPClient = &http.Client{Timeout: app.cfg.Timeout, Transport: transport}
	app.nso.UserAgent = app.cfg.UserAgent
	app.nso.Language = app.cfg.Language
	app.nso.Logger = app.logger

	attester := ftoken.NewClient("splatauth/" + BuildVersion)
	attester.HTTPClient = &http.Client{
		Timeout:   app.cfg.Timeout,
		Transport: httpx.NewRateLimitedTransport(transport, app.cfg.AttestationLimit),
	}

	exchanger, err := exchange.New(app.nso, attester, app.cfg.FTokenURLs, exchange.WithRetries(app.cfg.Retries))
	if err != nil {
		return err
	}
	app.exchanger = exchanger
	return nil
}

// initDatabase opens the configured driver. The memory driver keeps no
// store at all.
func (app *Application) initDatabase() error {
	if app.cfg.StoreDriver == StoreMemory {
		return nil
	}

	sealer, err := cryptox.NewSealer(app.cfg.StorePassphrase)
	if err != nil {
		return fmt.Errorf("failed to create sealer: %w", err)
	}

	var db store.Store
	switch app.cfg.StoreDriver {
	case StoreSQLite:
		dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
		s, err := sqlite.NewStore(dsn, sealer)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		db = s

	case StoreRedis:
		s, err := redis.NewStore(app.cfg.RedisURL, app.cfg.RedisPrefix, sealer)
		if err != nil {
			return fmt.Errorf("failed to open redis: %w", err)
		}
		db, app.redis = s, s
	}

	if err := db.Ping(context.Background()); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to reach %s store: %w", app.cfg.StoreDriver, err)
	}
	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	app.db = db
	app.logger.Debug("token store ready", slog.String("driver", app.cfg.StoreDriver))
	return nil
}

// initEvents publishes to Redis streams when tokens live in Redis, so other
// processes sharing the store hear about regenerations. Otherwise events
// stay in process.
func (app *Application) initEvents() error {
	if app.redis != nil {
		pub, err := events.NewRedisStreamPublisher(app.redis.Client(), app.logger)
		if err != nil {
			return fmt.Errorf("failed to create event publisher: %w", err)
		}
		app.pubsub = pub
	} else {
		app.pubsub = events.NewGoChannel(app.logger)
	}

	app.publisher = events.NewPublisher(app.pubsub)
	return nil
}

// seed installs SN3S_* tokens that differ from what the store already holds.
func (app *Application) seed(ctx context.Context) error {
	seeds := []struct {
		kind  tokens.Kind
		value string
	}{
		{tokens.KindSession, app.cfg.SessionToken},
		{tokens.KindGToken, app.cfg.GToken},
		{tokens.KindBullet, app.cfg.BulletToken},
	}

	for _, seed := range seeds {
		if seed.value == "" {
			continue
		}
		if current, ok := app.tokens.Peek(seed.kind); ok && current.Value() == seed.value {
			continue
		}
		if _, err := app.tokens.Set(ctx, seed.kind, seed.value, time.Time{}); err != nil {
			return fmt.Errorf("failed to seed %s: %w", seed.kind, err)
		}
	}
	return nil
}

func (app *Application) context(ctx context.Context) context.Context {
	return slogx.WithContext(ctx, app.logger)
}

// Tokens returns the token store.
func (app *Application) Tokens() *tokens.Store {
	return app.tokens
}

// Close releases the store and the event publisher.
func (app *Application) Close() error {
	var errs []error
	if app.publisher != nil {
		errs = append(errs, app.publisher.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	return errors.Join(errs...)
}
