package nso

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/splatauth/pkg/errx"
)

const sessionTokenGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer-session-token"

// ExchangeCodeForSessionToken trades the session token code from the
// redirect URI, plus the verifier of the same LoginState, for a session
// token.
func (c *Client) ExchangeCodeForSessionToken(ctx context.Context, code, verifier string) (string, error) {
	if code == "" || verifier == "" {
		return "", errx.Configuration("session token code and verifier are required")
	}

	data := url.Values{}
	data.Set("client_id", ClientID)
	data.Set("session_token_code", code)
	data.Set("session_token_code_verifier", verifier)

	endpoint := joinURL(c.Endpoints.Accounts, "/connect/1.0.0/api/session_token")
	resp, err := c.doRequest(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()), map[string]string{
		"User-Agent":      fmt.Sprintf("OnlineLounge/%s NASDKAPI Android", c.AppVersion(ctx)),
		"Accept-Language": "en-US",
		"Accept":          "application/json",
		"Content-Type":    "application/x-www-form-urlencoded",
	})
	if err != nil {
		return "", err
	}

	var out struct {
		SessionToken string `json:"session_token"`
	}
	if err := decodeJSON(endpoint, resp, &out, http.StatusOK); err != nil {
		return "", err
	}
	if out.SessionToken == "" {
		return "", errx.MissingKey(endpoint, "session_token")
	}

	return out.SessionToken, nil
}

// ExchangeSessionToken uses the JWT-bearer session token grant to obtain a
// user access token and ID token.
func (c *Client) ExchangeSessionToken(ctx context.Context, sessionToken string) (*UserAccess, error) {
	if sessionToken == "" {
		return nil, errx.Configuration("session token is required")
	}

	payload, err := json.Marshal(map[string]string{
		"client_id":     ClientID,
		"session_token": sessionToken,
		"grant_type":    sessionTokenGrantType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode token request: %w", err)
	}

	endpoint := joinURL(c.Endpoints.Accounts, "/connect/1.0.0/api/token")
	resp, err := c.doRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload), map[string]string{
		"User-Agent":   "Dalvik/2.1.0 (Linux; U; Android 7.1.2)",
		"Accept":       "application/json",
		"Content-Type": "application/json",
	})
	if err != nil {
		return nil, err
	}

	var out UserAccess
	if err := decodeJSON(endpoint, resp, &out, http.StatusOK); err != nil {
		return nil, err
	}

	switch {
	case out.AccessToken == "":
		return nil, errx.MissingKey(endpoint, "access_token")
	case out.IDToken == "":
		return nil, errx.MissingKey(endpoint, "id_token")
	}

	return &out, nil
}

// FetchUserProfile reads the Nintendo Account profile with a user access
// token.
func (c *Client) FetchUserProfile(ctx context.Context, accessToken string) (*UserProfile, error) {
	endpoint := joinURL(c.Endpoints.AccountsAPI, "/2.0.0/users/me")
	resp, err := c.doRequest(ctx, http.MethodGet, endpoint, nil, map[string]string{
		"User-Agent":    "NASDKAPI; Android",
		"Accept":        "application/json",
		"Authorization": "Bearer " + accessToken,
	})
	if err != nil {
		return nil, err
	}

	var out UserProfile
	if err := decodeJSON(endpoint, resp, &out, http.StatusOK); err != nil {
		return nil, err
	}

	required := []struct{ key, value string }{
		{"id", out.ID},
		{"language", out.Language},
		{"birthday", out.Birthday},
		{"country", out.Country},
	}
	for _, field := range required {
		if field.value == "" {
			return nil, errx.MissingKey(endpoint, field.key)
		}
	}

	return &out, nil
}
