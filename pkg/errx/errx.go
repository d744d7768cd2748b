// Package errx defines the error kinds shared by the login, attestation and
// exchange packages. Callers classify failures with errors.Is against the
// sentinel kinds; the concrete *ResponseError carries the endpoint and the
// upstream status for diagnostics.
package errx

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// Error kinds
// ============================================================================

var (
	// ErrIdentityProvider reports a non-200 or otherwise rejected response
	// from a Nintendo accounts, platform or SplatNet endpoint.
	ErrIdentityProvider = errors.New("identity provider error")

	// ErrAttestation reports a failed or malformed call to an f-token
	// attestation provider.
	ErrAttestation = errors.New("attestation error")

	// ErrMalformedResponse reports a response that decoded but lacked an
	// expected key, or a redirect URI without the expected structure.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrConfiguration reports missing or invalid local configuration, such
	// as an absent session token or an empty provider list.
	ErrConfiguration = errors.New("configuration error")
)

// ============================================================================
// ResponseError
// ============================================================================

// ResponseError describes a failure returned by a remote endpoint.
type ResponseError struct {
	// Kind is one of the sentinel kinds above.
	Kind error

	// Endpoint is the URL (or provider base URL) that produced the error.
	Endpoint string

	// StatusCode is the HTTP status, 0 when the failure was not an HTTP status.
	StatusCode int

	// Description is a short human readable reason.
	Description string
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Endpoint != "" {
		b.WriteString(" from ")
		b.WriteString(e.Endpoint)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Description != "" {
		b.WriteString(": ")
		b.WriteString(e.Description)
	}
	return b.String()
}

// Unwrap returns the error kind so errors.Is matches the sentinels.
func (e *ResponseError) Unwrap() error { return e.Kind }

// Status builds an error for an unexpected HTTP status. The body is
// truncated so large HTML error pages do not flood logs.
func Status(kind error, endpoint string, status int, body []byte) *ResponseError {
	return &ResponseError{
		Kind:        kind,
		Endpoint:    endpoint,
		StatusCode:  status,
		Description: truncate(strings.TrimSpace(string(body)), 256),
	}
}

// MissingKey builds a malformed-response error for an absent JSON key.
func MissingKey(endpoint, key string) *ResponseError {
	return &ResponseError{
		Kind:        ErrMalformedResponse,
		Endpoint:    endpoint,
		Description: fmt.Sprintf("missing key %q", key),
	}
}

// Configuration builds a configuration error with the given reason.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether err belongs to one of the kinds the exchanger
// retries against an attestation provider.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrAttestation) ||
		errors.Is(err, ErrIdentityProvider) ||
		errors.Is(err, ErrMalformedResponse)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
