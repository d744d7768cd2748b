// Package tokens keeps the session token and the tokens derived from it,
// regenerating derived tokens on demand.
package tokens

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/splatauth/pkg/cryptox"
	"github.com/aussiebroadwan/splatauth/pkg/errx"
)

// Kind identifies one token of the set. The set is closed.
type Kind int

const (
	KindSession Kind = iota + 1
	KindGToken
	KindBullet
)

// Token lifetimes. A session token has no lifetime.
const (
	GTokenTTL = 23400 * time.Second
	BulletTTL = 7200 * time.Second
)

// ErrUnknownKind is returned for a kind outside the closed set.
var ErrUnknownKind = fmt.Errorf("%w: unknown token kind", errx.ErrConfiguration)

// Kinds lists every kind in dependency order.
func Kinds() []Kind {
	return []Kind{KindSession, KindGToken, KindBullet}
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return k >= KindSession && k <= KindBullet
}

func (k Kind) String() string {
	switch k {
	case KindSession:
		return "session_token"
	case KindGToken:
		return "gtoken"
	case KindBullet:
		return "bullet_token"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// TTL returns the lifetime of tokens of kind k. Zero means the token does
// not expire.
func (k Kind) TTL() time.Duration {
	switch k {
	case KindGToken:
		return GTokenTTL
	case KindBullet:
		return BulletTTL
	default:
		return 0
	}
}

// ParseKind maps a name to a Kind. Both the short and the long names are
// accepted, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "session", "session_token":
		return KindSession, nil
	case "gtoken", "g_token":
		return KindGToken, nil
	case "bullet", "bullet_token":
		return KindBullet, nil
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownKind, s)
}

// Token is an immutable token value. A refreshed token is a new Token.
type Token struct {
	kind      Kind
	value     string
	issuedAt  time.Time
	expiresAt time.Time // zero for tokens that never expire
}

// NewToken builds a token of kind issued at issuedAt. Its expiry follows from
// the kind's TTL.
func NewToken(kind Kind, value string, issuedAt time.Time) (Token, error) {
	if !kind.Valid() {
		return Token{}, fmt.Errorf("%w %d", ErrUnknownKind, int(kind))
	}
	if value == "" {
		return Token{}, errors.New("token value is empty")
	}

	t := Token{kind: kind, value: value, issuedAt: issuedAt}
	if ttl := kind.TTL(); ttl > 0 {
		t.expiresAt = issuedAt.Add(ttl)
	}
	return t, nil
}

func (t Token) Kind() Kind           { return t.kind }
func (t Token) Value() string        { return t.value }
func (t Token) IssuedAt() time.Time  { return t.issuedAt }
func (t Token) ExpiresAt() time.Time { return t.expiresAt }

// IsZero reports whether t is the zero Token.
func (t Token) IsZero() bool { return t.value == "" }

// IsExpired reports whether t is expired at now. A token is expired from its
// expiry instant onwards.
func (t Token) IsExpired(now time.Time) bool {
	if t.expiresAt.IsZero() {
		return false
	}
	return !now.Before(t.expiresAt)
}

// Fingerprint identifies the token value in logs.
func (t Token) Fingerprint() string {
	return cryptox.FingerprintToken(t.value)
}

// String never includes the token value.
func (t Token) String() string {
	if t.IsZero() {
		return t.kind.String() + "(empty)"
	}
	return t.kind.String() + "(" + t.Fingerprint() + ")"
}
