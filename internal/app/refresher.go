package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/splatauth/pkg/tokens"
)

// tokenSource is the part of *tokens.Store the refresher drives.
type tokenSource interface {
	Peek(kind tokens.Kind) (tokens.Token, bool)
	Regenerate(ctx context.Context, kind tokens.Kind) (tokens.Token, error)
}

// Refresher periodically regenerates derived tokens that are missing or
// about to expire, so readers sharing the store never wait on a mint.
type Refresher struct {
	Tokens   tokenSource
	Logger   *slog.Logger
	Interval time.Duration
	// Margin is how long before expiry a token is regenerated.
	Margin time.Duration

	now func() time.Time

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRefresher creates a refresher. A non-positive interval defaults to one
// minute and a non-positive margin to ten minutes.
func NewRefresher(src tokenSource, logger *slog.Logger, interval, margin time.Duration) *Refresher {
	if interval <= 0 {
		interval = time.Minute
	}
	if margin <= 0 {
		margin = 10 * time.Minute
	}

	return &Refresher{
		Tokens:   src,
		Logger:   logger,
		Interval: interval,
		Margin:   margin,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop to shut it down.
func (r *Refresher) Start(ctx context.Context) {
	go r.run(ctx)
	r.Logger.Info("token refresher started", "interval", r.Interval, "margin", r.Margin)
}

// Stop shuts down the worker and waits for an in-progress refresh.
func (r *Refresher) Stop() {
	close(r.stopCh)
	<-r.doneCh
	r.Logger.Info("token refresher stopped")
}

func (r *Refresher) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	// Refresh immediately on startup
	r.refresh(ctx)

	for {
		select {
		case <-ticker.C:
			r.refresh(ctx)
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// refresh regenerates the gtoken and then the bullet token when due. A
// failure is logged and retried on the next tick.
func (r *Refresher) refresh(ctx context.Context) int {
	if _, ok := r.Tokens.Peek(tokens.KindSession); !ok {
		r.Logger.Warn("no session token, skipping refresh")
		return 0
	}

	var refreshed int
	for _, kind := range []tokens.Kind{tokens.KindGToken, tokens.KindBullet} {
		if !r.due(kind) {
			continue
		}
		if _, err := r.Tokens.Regenerate(ctx, kind); err != nil {
			r.Logger.Error("failed to refresh token", "kind", kind.String(), "error", err)
			continue
		}
		refreshed++
	}

	if refreshed > 0 {
		r.Logger.Info("tokens refreshed", "count", refreshed)
	}
	return refreshed
}

func (r *Refresher) due(kind tokens.Kind) bool {
	t, ok := r.Tokens.Peek(kind)
	if !ok {
		return true
	}
	if t.ExpiresAt().IsZero() {
		return false
	}
	return !r.now().Add(r.Margin).Before(t.ExpiresAt())
}

// Run keeps the token set fresh until ctx is cancelled.
func (app *Application) Run(ctx context.Context) error {
	ctx = app.context(ctx)

	refresher := NewRefresher(app.tokens, app.logger, app.cfg.RefreshInterval, app.cfg.RefreshMargin)
	refresher.Start(ctx)

	<-ctx.Done()
	app.logger.Info("shutdown signal received")
	refresher.Stop()
	return nil
}
