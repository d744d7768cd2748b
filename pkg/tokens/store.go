package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/splatauth/pkg/errx"
	"github.com/aussiebroadwan/splatauth/pkg/exchange"
	"github.com/aussiebroadwan/splatauth/pkg/idx"
	"github.com/aussiebroadwan/splatauth/pkg/slogx"
)

var (
	// ErrNoSession is returned when a token is requested or installed while
	// no session token is present. Session tokens only come from a login.
	ErrNoSession = fmt.Errorf("%w: no session token, log in first", errx.ErrConfiguration)

	// ErrSessionChanged is returned when the session token was replaced
	// while a derived token was being regenerated from the old one.
	ErrSessionChanged = errors.New("session token changed during regeneration")

	errSessionRegenerate = fmt.Errorf("%w: session tokens cannot be regenerated", errx.ErrConfiguration)
)

// Regenerator mints derived tokens; *exchange.Exchanger implements it.
type Regenerator interface {
	MintGToken(ctx context.Context, sessionToken string) (*exchange.Grant, error)
	MintBulletToken(ctx context.Context, grant *exchange.Grant) (string, error)
}

// Record is the persisted form of a token.
type Record struct {
	Kind     Kind
	Value    string
	IssuedAt time.Time
}

// Repository persists tokens across processes. Implementations live in
// internal/store.
type Repository interface {
	LoadTokens(ctx context.Context) ([]Record, error)
	SaveToken(ctx context.Context, rec Record) error
	DeleteTokens(ctx context.Context, kinds ...Kind) error
}

// Event describes a regenerated token. It never carries the value.
type Event struct {
	RegenID     string
	Kind        Kind
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Fingerprint string
}

// Notifier is told about every successful regeneration.
type Notifier interface {
	TokenRefreshed(ctx context.Context, ev Event) error
}

// Store holds the token set. Get regenerates a derived token when it is
// missing or expired; at most one regeneration per kind is in flight.
//
// Lock order: bullet regeneration lock, then gtoken regeneration lock, then
// the set lock. The set lock is never held while a token is being minted.
type Store struct {
	regen    Regenerator
	repo     Repository
	notifier Notifier
	now      func() time.Time

	gtokenMu sync.Mutex
	bulletMu sync.Mutex

	mu     sync.RWMutex
	tokens map[Kind]Token
	// grant is the exchange context of the current gtoken, nil when the
	// gtoken was installed from outside.
	grant *exchange.Grant
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for issue times and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRepository persists every change to repo.
func WithRepository(repo Repository) Option {
	return func(s *Store) { s.repo = repo }
}

// WithNotifier reports regenerations to n.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// NewStore creates an empty store that regenerates through regen.
func NewStore(regen Regenerator, opts ...Option) *Store {
	s := &Store{
		regen:  regen,
		now:    time.Now,
		tokens: make(map[Kind]Token, len(Kinds())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ============================================================================
// Reads
// ============================================================================

// Peek returns the stored token of kind without regenerating it.
func (s *Store) Peek(kind Kind) (Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[kind]
	return t, ok
}

// Expired reports whether the token of kind is missing or expired.
func (s *Store) Expired(kind Kind) bool {
	t, ok := s.Peek(kind)
	return !ok || t.IsExpired(s.now())
}

// Get returns a valid token of kind, regenerating it and, for the bullet
// token, its gtoken first when needed.
func (s *Store) Get(ctx context.Context, kind Kind) (Token, error) {
	switch kind {
	case KindSession:
		t, ok := s.Peek(KindSession)
		if !ok {
			return Token{}, ErrNoSession
		}
		return t, nil

	case KindGToken:
		t, _, err := s.gtoken(ctx, false, false)
		return t, err

	case KindBullet:
		return s.bullet(ctx, false)

	default:
		return Token{}, fmt.Errorf("%w %d", ErrUnknownKind, int(kind))
	}
}

// Regenerate mints a new token of kind even if the current one is valid.
func (s *Store) Regenerate(ctx context.Context, kind Kind) (Token, error) {
	switch kind {
	case KindSession:
		return Token{}, errSessionRegenerate

	case KindGToken:
		t, _, err := s.gtoken(ctx, true, false)
		return t, err

	case KindBullet:
		return s.bullet(ctx, true)

	default:
		return Token{}, fmt.Errorf("%w %d", ErrUnknownKind, int(kind))
	}
}

// ============================================================================
// Writes
// ============================================================================

// Set installs value as the token of kind. A zero issuedAt means now.
//
// A new session token drops the gtoken and bullet token derived from the
// previous one. A gtoken or bullet token can only be installed while a
// session token is present.
func (s *Store) Set(ctx context.Context, kind Kind, value string, issuedAt time.Time) (Token, error) {
	if issuedAt.IsZero() {
		issuedAt = s.now()
	}

	t, err := NewToken(kind, value, issuedAt)
	if err != nil {
		return Token{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, hasSession := s.tokens[KindSession]
	if kind != KindSession && !hasSession {
		return Token{}, ErrNoSession
	}

	if s.repo != nil {
		if kind == KindSession && hasSession && current.Value() != value {
			if err := s.repo.DeleteTokens(ctx, KindGToken, KindBullet); err != nil {
				return Token{}, fmt.Errorf("failed to drop derived tokens: %w", err)
			}
		}
		if err := s.repo.SaveToken(ctx, recordOf(t)); err != nil {
			return Token{}, fmt.Errorf("failed to persist %s: %w", kind, err)
		}
	}

	switch kind {
	case KindSession:
		if hasSession && current.Value() != value {
			delete(s.tokens, KindGToken)
			delete(s.tokens, KindBullet)
			s.grant = nil
		}
	case KindGToken:
		s.grant = nil
	}
	s.tokens[kind] = t

	slogx.FromContext(ctx).Debug("token installed",
		slog.String("kind", kind.String()),
		slog.String("fingerprint", t.Fingerprint()),
	)
	return t, nil
}

// Restore loads persisted tokens. Derived tokens without a session token are
// ignored.
func (s *Store) Restore(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	records, err := s.repo.LoadTokens(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tokens: %w", err)
	}

	loaded := make(map[Kind]Token, len(records))
	for _, rec := range records {
		t, err := NewToken(rec.Kind, rec.Value, rec.IssuedAt)
		if err != nil {
			slogx.FromContext(ctx).Warn("skipping persisted token", slog.Any("error", err))
			continue
		}
		loaded[rec.Kind] = t
	}
	if _, ok := loaded[KindSession]; !ok {
		delete(loaded, KindGToken)
		delete(loaded, KindBullet)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for kind, t := range loaded {
		s.tokens[kind] = t
	}
	if _, ok := loaded[KindGToken]; ok {
		s.grant = nil
	}
	return nil
}

// ============================================================================
// Regeneration
// ============================================================================

// gtoken returns a valid gtoken. With needGrant it also requires the
// exchange context, regenerating a gtoken that was installed from outside.
func (s *Store) gtoken(ctx context.Context, force, needGrant bool) (Token, *exchange.Grant, error) {
	if !force {
		if t, grant, ok := s.currentGToken(needGrant); ok {
			return t, grant, nil
		}
	}

	s.gtokenMu.Lock()
	defer s.gtokenMu.Unlock()

	// Another caller may have finished while we waited
	if !force {
		if t, grant, ok := s.currentGToken(needGrant); ok {
			return t, grant, nil
		}
	}

	session, ok := s.Peek(KindSession)
	if !ok {
		return Token{}, nil, ErrNoSession
	}

	ctx, regenID := s.beginRegen(ctx, KindGToken, force)

	grant, err := s.regen.MintGToken(ctx, session.Value())
	if err != nil {
		slogx.FromContext(ctx).Error("gtoken regeneration failed", slog.Any("error", err))
		return Token{}, nil, fmt.Errorf("failed to regenerate gtoken: %w", err)
	}

	t, err := NewToken(KindGToken, grant.GToken, s.now())
	if err != nil {
		return Token{}, nil, fmt.Errorf("failed to regenerate gtoken: %w", err)
	}

	if err := s.commit(ctx, session, t, func() { s.grant = grant }); err != nil {
		return Token{}, nil, err
	}
	s.finishRegen(ctx, regenID, t)
	return t, grant, nil
}

func (s *Store) currentGToken(needGrant bool) (Token, *exchange.Grant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[KindGToken]
	if !ok || t.IsExpired(s.now()) {
		return Token{}, nil, false
	}
	if needGrant && s.grant == nil {
		return Token{}, nil, false
	}
	return t, s.grant, true
}

func (s *Store) bullet(ctx context.Context, force bool) (Token, error) {
	if !force {
		if t, ok := s.Peek(KindBullet); ok && !t.IsExpired(s.now()) {
			return t, nil
		}
	}

	s.bulletMu.Lock()
	defer s.bulletMu.Unlock()

	if !force {
		if t, ok := s.Peek(KindBullet); ok && !t.IsExpired(s.now()) {
			return t, nil
		}
	}

	session, ok := s.Peek(KindSession)
	if !ok {
		return Token{}, ErrNoSession
	}

	_, grant, err := s.gtoken(ctx, false, true)
	if err != nil {
		return Token{}, err
	}

	ctx, regenID := s.beginRegen(ctx, KindBullet, force)

	value, err := s.regen.MintBulletToken(ctx, grant)
	if err != nil {
		slogx.FromContext(ctx).Error("bullet token regeneration failed", slog.Any("error", err))
		return Token{}, fmt.Errorf("failed to regenerate bullet token: %w", err)
	}

	t, err := NewToken(KindBullet, value, s.now())
	if err != nil {
		return Token{}, fmt.Errorf("failed to regenerate bullet token: %w", err)
	}

	if err := s.commit(ctx, session, t, nil); err != nil {
		return Token{}, err
	}
	s.finishRegen(ctx, regenID, t)
	return t, nil
}

// commit installs a regenerated token, unless the session it was derived
// from has been replaced in the meantime.
func (s *Store) commit(ctx context.Context, session, t Token, also func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.tokens[KindSession]; !ok || current.Value() != session.Value() {
		return ErrSessionChanged
	}

	s.tokens[t.Kind()] = t
	if also != nil {
		also()
	}

	if s.repo != nil {
		// The token is valid either way; a later Restore just mints again
		if err := s.repo.SaveToken(ctx, recordOf(t)); err != nil {
			slogx.FromContext(ctx).Warn("failed to persist regenerated token",
				slog.String("kind", t.Kind().String()),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

func (s *Store) beginRegen(ctx context.Context, kind Kind, force bool) (context.Context, idx.ID) {
	regenID := idx.New()
	ctx = slogx.WithRegenID(ctx, regenID.String())

	reason := "missing"
	if force {
		reason = "forced"
	} else if t, ok := s.Peek(kind); ok && t.IsExpired(s.now()) {
		reason = "expired"
	} else if ok {
		reason = "no_grant"
	}

	slogx.FromContext(ctx).Info("regenerating token",
		slog.String("kind", kind.String()),
		slog.String("reason", reason),
	)
	return ctx, regenID
}

func (s *Store) finishRegen(ctx context.Context, regenID idx.ID, t Token) {
	log := slogx.FromContext(ctx)
	log.Info("token regenerated",
		slog.String("kind", t.Kind().String()),
		slog.String("fingerprint", t.Fingerprint()),
		slog.Time("expires_at", t.ExpiresAt()),
	)

	if s.notifier == nil {
		return
	}
	err := s.notifier.TokenRefreshed(ctx, Event{
		RegenID:     regenID.String(),
		Kind:        t.Kind(),
		IssuedAt:    t.IssuedAt(),
		ExpiresAt:   t.ExpiresAt(),
		Fingerprint: t.Fingerprint(),
	})
	if err != nil {
		log.Warn("failed to publish token event", slog.Any("error", err))
	}
}

func recordOf(t Token) Record {
	return Record{Kind: t.Kind(), Value: t.Value(), IssuedAt: t.IssuedAt()}
}
