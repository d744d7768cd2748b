package nso

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/splatauth/pkg/cryptox"
	"github.com/aussiebroadwan/splatauth/pkg/errx"
	"github.com/aussiebroadwan/splatauth/pkg/httpx"
)

// sessionTokenCodePrefix precedes the code in the redirect URI fragment.
const sessionTokenCodePrefix = "session_token_code="

// LoginState is the per-attempt PKCE material. Create a new one for every
// login; a state or verifier must never be reused.
type LoginState struct {
	// State is 36 random bytes, base64url encoded (48 chars).
	State string
	// Verifier is 32 random bytes, base64url encoded without padding (43 chars).
	Verifier string
	// Challenge is base64url(SHA-256(Verifier)) without padding.
	Challenge string
}

// NewLoginState generates fresh state and verifier values.
func NewLoginState() (*LoginState, error) {
	state, err := cryptox.GenerateToken(cryptox.TokenSize288)
	if err != nil {
		return nil, fmt.Errorf("failed to generate login state: %w", err)
	}

	verifier, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	return &LoginState{
		State:     state,
		Verifier:  verifier,
		Challenge: Challenge(verifier),
	}, nil
}

// Challenge returns the S256 PKCE challenge for verifier.
func Challenge(verifier string) string {
	return cryptox.S256(verifier)
}

// LoginRequest is the result of GenerateLoginURL.
type LoginRequest struct {
	// URL is the page to open in a browser.
	URL string
	// State must be kept until the code has been exchanged.
	State *LoginState
}

// AuthorizeURL builds the authorize URL for state without touching the
// network.
func (c *Client) AuthorizeURL(state *LoginState) string {
	params := url.Values{}
	params.Set("state", state.State)
	params.Set("redirect_uri", RedirectURI)
	params.Set("client_id", ClientID)
	params.Set("scope", Scope)
	params.Set("response_type", "session_token_code")
	params.Set("session_token_code_challenge", state.Challenge)
	params.Set("session_token_code_challenge_method", "S256")
	params.Set("theme", "login_form")

	return joinURL(c.Endpoints.Accounts, "/connect/1.0.0/authorize") + "?" + params.Encode()
}

// GenerateLoginURL prepares a new LoginState, requests the authorize page
// and returns the URL the provider settled on after redirects.
//
// An empty userAgent uses the client's browser user agent.
func (c *Client) GenerateLoginURL(ctx context.Context, userAgent string) (*LoginRequest, error) {
	state, err := NewLoginState()
	if err != nil {
		return nil, err
	}

	authorize := joinURL(c.Endpoints.Accounts, "/connect/1.0.0/authorize")
	resp, err := c.doRequest(ctx, http.MethodGet, c.AuthorizeURL(state), nil, map[string]string{
		"User-Agent":                c.userAgent(userAgent),
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8",
		"Cache-Control":             "max-age=0",
		"Upgrade-Insecure-Requests": "1",
		"DNT":                       "1",
	})
	if err != nil {
		return nil, err
	}

	body, err := httpx.ReadBody(resp)
	if err != nil {
		return nil, &errx.ResponseError{Kind: errx.ErrIdentityProvider, Endpoint: authorize, Description: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errx.Status(errx.ErrIdentityProvider, authorize, resp.StatusCode, body)
	}

	return &LoginRequest{
		URL:   resp.Request.URL.String(),
		State: state,
	}, nil
}

// ExtractSessionTokenCode returns the session token code from the
// npf71b963c1b7b6d119://auth#... redirect URI. The code is the second
// &-separated component with its "session_token_code=" prefix removed; a
// URI of any other shape is rejected as malformed.
func ExtractSessionTokenCode(redirectURI string) (string, error) {
	parts := strings.Split(strings.TrimSpace(redirectURI), "&")
	if len(parts) < 2 {
		return "", &errx.ResponseError{
			Kind:        errx.ErrMalformedResponse,
			Endpoint:    RedirectURI,
			Description: "redirect uri has no session_token_code component",
		}
	}

	code, ok := strings.CutPrefix(parts[1], sessionTokenCodePrefix)
	if !ok || code == "" {
		return "", &errx.ResponseError{
			Kind:        errx.ErrMalformedResponse,
			Endpoint:    RedirectURI,
			Description: "second redirect uri component is not a session_token_code",
		}
	}

	return code, nil
}
