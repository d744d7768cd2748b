package nso

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the registered claims of a session token. The token is
// signed by Nintendo; the signature is not checked here, the claims only
// drive local decisions such as skipping a refresh that cannot succeed.
type SessionClaims struct {
	Subject   string
	ExpiresAt time.Time // zero when the token carries no exp
}

// ParseSessionClaims reads the claims of a session token without verifying
// its signature.
func ParseSessionClaims(sessionToken string) (*SessionClaims, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(sessionToken, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse session token: %w", err)
	}

	out := &SessionClaims{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// SessionExpired reports whether sessionToken is a JWT whose exp is at or
// before now. Opaque tokens are never considered expired.
func SessionExpired(sessionToken string, now time.Time) bool {
	claims, err := ParseSessionClaims(sessionToken)
	if err != nil || claims.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(claims.ExpiresAt)
}
