package tokens_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/splatauth/pkg/errx"
	"github.com/aussiebroadwan/splatauth/pkg/tokens"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	t.Parallel()

	tests := map[string]tokens.Kind{
		"session":       tokens.KindSession,
		"session_token": tokens.KindSession,
		"gtoken":        tokens.KindGToken,
		"GTOKEN":        tokens.KindGToken,
		"bullet":        tokens.KindBullet,
		" bullet_token": tokens.KindBullet,
	}
	for in, want := range tests {
		got, err := tokens.ParseKind(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got)
	}

	for _, in := range []string{"", "refresh", "session-token"} {
		_, err := tokens.ParseKind(in)
		require.ErrorIs(t, err, tokens.ErrUnknownKind)
		require.ErrorIs(t, err, errx.ErrConfiguration)
	}
}

func TestKindTTL(t *testing.T) {
	t.Parallel()

	require.Equal(t, 23400*time.Second, tokens.KindGToken.TTL())
	require.Equal(t, 7200*time.Second, tokens.KindBullet.TTL())
	require.Zero(t, tokens.KindSession.TTL())

	require.False(t, tokens.Kind(0).Valid())
	require.False(t, tokens.Kind(4).Valid())
	require.Equal(t, "kind(4)", tokens.Kind(4).String())
}

func TestTokenExpiry(t *testing.T) {
	t.Parallel()

	issued := time.Unix(1700000000, 0)

	tests := []struct {
		name string
		kind tokens.Kind
		at   time.Duration
		want bool
	}{
		{"gtoken just before expiry", tokens.KindGToken, 23399 * time.Second, false},
		{"gtoken at expiry", tokens.KindGToken, 23400 * time.Second, true},
		{"gtoken after expiry", tokens.KindGToken, 23401 * time.Second, true},
		{"bullet just before expiry", tokens.KindBullet, 7199 * time.Second, false},
		{"bullet at expiry", tokens.KindBullet, 7200 * time.Second, true},
		{"bullet at issue time", tokens.KindBullet, 0, false},
		{"session far future", tokens.KindSession, 100 * 365 * 24 * time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tok, err := tokens.NewToken(tt.kind, "value", issued)
			require.NoError(t, err)
			require.Equal(t, tt.want, tok.IsExpired(issued.Add(tt.at)))
		})
	}
}

func TestNewToken(t *testing.T) {
	t.Parallel()

	issued := time.Unix(1700000000, 0)

	tok, err := tokens.NewToken(tokens.KindBullet, "bullet-value", issued)
	require.NoError(t, err)
	require.Equal(t, tokens.KindBullet, tok.Kind())
	require.Equal(t, "bullet-value", tok.Value())
	require.Equal(t, issued, tok.IssuedAt())
	require.Equal(t, issued.Add(2*time.Hour), tok.ExpiresAt())
	require.NotContains(t, tok.String(), "bullet-value")

	session, err := tokens.NewToken(tokens.KindSession, "session-value", issued)
	require.NoError(t, err)
	require.True(t, session.ExpiresAt().IsZero())

	_, err = tokens.NewToken(tokens.KindGToken, "", issued)
	require.Error(t, err)

	_, err = tokens.NewToken(tokens.Kind(9), "v", issued)
	require.ErrorIs(t, err, tokens.ErrUnknownKind)
}
