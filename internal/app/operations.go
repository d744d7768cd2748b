package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/splatauth/internal/events"
	"github.com/aussiebroadwan/splatauth/pkg/errx"
	"github.com/aussiebroadwan/splatauth/pkg/nso"
	"github.com/aussiebroadwan/splatauth/pkg/tokens"
)

// RedirectReader shows loginURL to the user and returns the redirect URI
// they copied from the browser.
type RedirectReader func(ctx context.Context, loginURL string) (string, error)

// Login runs the device login and stores the resulting session token.
// Derived tokens from a previous session are dropped.
func (app *Application) Login(ctx context.Context, read RedirectReader) (tokens.Token, error) {
	ctx = app.context(ctx)

	req, err := app.nso.GenerateLoginURL(ctx, "")
	if err != nil {
		return tokens.Token{}, fmt.Errorf("failed to prepare login: %w", err)
	}

	redirect, err := read(ctx, req.URL)
	if err != nil {
		return tokens.Token{}, fmt.Errorf("failed to read redirect uri: %w", err)
	}

	code, err := nso.ExtractSessionTokenCode(redirect)
	if err != nil {
		return tokens.Token{}, err
	}

	session, err := app.nso.ExchangeCodeForSessionToken(ctx, code, req.State.Verifier)
	if err != nil {
		return tokens.Token{}, err
	}

	t, err := app.tokens.Set(ctx, tokens.KindSession, session, time.Time{})
	if err != nil {
		return tokens.Token{}, err
	}

	if claims, err := nso.ParseSessionClaims(session); err == nil {
		app.logger.Info("logged in",
			slog.String("fingerprint", t.Fingerprint()),
			slog.Time("expires_at", claims.ExpiresAt),
		)
	}
	return t, nil
}

// Token returns a valid token of kind, regenerating it when it is missing
// or expired, or always when force is set.
func (app *Application) Token(ctx context.Context, kind tokens.Kind, force bool) (tokens.Token, error) {
	ctx = app.context(ctx)
	if force {
		return app.tokens.Regenerate(ctx, kind)
	}
	return app.tokens.Get(ctx, kind)
}

// TokenStatus describes one stored token without its value.
type TokenStatus struct {
	Kind        tokens.Kind
	Present     bool
	Expired     bool
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Fingerprint string
}

// Status reports every kind in dependency order. Nothing is regenerated.
func (app *Application) Status(now time.Time) []TokenStatus {
	var out []TokenStatus
	for _, kind := range tokens.Kinds() {
		st := TokenStatus{Kind: kind, Expired: true}
		if t, ok := app.tokens.Peek(kind); ok {
			st.Present = true
			st.Expired = t.IsExpired(now)
			st.IssuedAt = t.IssuedAt()
			st.ExpiresAt = t.ExpiresAt()
			st.Fingerprint = t.Fingerprint()
		}
		out = append(out, st)
	}
	return out
}

// WriteStatus prints Status as aligned text.
func WriteStatus(w io.Writer, statuses []TokenStatus, now time.Time) error {
	for _, st := range statuses {
		var line string
		switch {
		case !st.Present:
			line = "missing"
		case st.ExpiresAt.IsZero():
			line = fmt.Sprintf("valid     %s  no expiry", st.Fingerprint)
		case st.Expired:
			line = fmt.Sprintf("expired   %s  %s ago", st.Fingerprint, now.Sub(st.ExpiresAt).Truncate(time.Second))
		default:
			line = fmt.Sprintf("valid     %s  expires in %s", st.Fingerprint, st.ExpiresAt.Sub(now).Truncate(time.Second))
		}
		if _, err := fmt.Fprintf(w, "%-13s %s\n", st.Kind, line); err != nil {
			return err
		}
	}
	return nil
}

var envNames = map[tokens.Kind]string{
	tokens.KindSession: EnvSessionToken,
	tokens.KindGToken:  EnvGToken,
	tokens.KindBullet:  EnvBulletToken,
}

// Env writes shell export lines for a valid token of every kind,
// regenerating as needed. The bullet token is resolved first so the printed
// gtoken is the one it was minted from.
func (app *Application) Env(ctx context.Context, w io.Writer) error {
	ctx = app.context(ctx)
	if _, err := app.tokens.Get(ctx, tokens.KindBullet); err != nil {
		return err
	}

	for _, kind := range tokens.Kinds() {
		t, err := app.tokens.Get(ctx, kind)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "export %s=%s\n", envNames[kind], shellQuote(t.Value())); err != nil {
			return err
		}
	}
	return nil
}

// shellQuote wraps s in single quotes for POSIX shells.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Watch calls fn for every token event published by processes sharing the
// redis store, until ctx is cancelled.
func (app *Application) Watch(ctx context.Context, fn func(events.TokenRefreshed)) error {
	if app.redis == nil {
		return errx.Configuration("watch needs the redis store")
	}

	subscriber, err := events.NewRedisStreamSubscriber(app.redis.Client(), "", app.logger)
	if err != nil {
		return fmt.Errorf("failed to create event subscriber: %w", err)
	}
	defer subscriber.Close()

	return events.Watch(app.context(ctx), subscriber, fn)
}
