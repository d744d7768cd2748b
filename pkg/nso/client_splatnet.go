package nso

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/splatauth/pkg/errx"
	"github.com/aussiebroadwan/splatauth/pkg/httpx"
)

// MintBulletToken asks SplatNet 3 for a bullet token, authenticating with
// the web service token as the _gtoken cookie. The profile's language and
// country must match the Nintendo Account.
func (c *Client) MintBulletToken(ctx context.Context, webServiceToken string, profile *UserProfile) (string, error) {
	if webServiceToken == "" || profile == nil {
		return "", errx.Configuration("bullet token needs a web service token and a profile")
	}

	endpoint := joinURL(c.Endpoints.SplatNet, "/api/bullet_tokens")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	lang := profile.Language
	if c.Language != "" {
		lang = c.Language
	}
	req.Header.Set("Accept-Language", lang)
	req.Header.Set("User-Agent", c.userAgent(""))
	req.Header.Set("X-Web-View-Ver", c.WebViewVersion(ctx))
	req.Header.Set("X-NACOUNTRY", profile.Country)
	req.Header.Set("Origin", c.Endpoints.SplatNet)
	req.Header.Set("X-Requested-With", "com.nintendo.znca")
	req.AddCookie(&http.Cookie{Name: "_gtoken", Value: webServiceToken})
	req.AddCookie(&http.Cookie{Name: "_dnt", Value: "1"})

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &errx.ResponseError{
			Kind:        errx.ErrIdentityProvider,
			Endpoint:    endpoint,
			Description: fmt.Sprintf("failed to send request: %v", err),
		}
	}

	body, err := httpx.ReadBody(resp)
	if err != nil {
		return "", &errx.ResponseError{Kind: errx.ErrIdentityProvider, Endpoint: endpoint, Description: err.Error()}
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusNoContent:
		return "", bulletError(endpoint, resp.StatusCode, "user not registered, play at least one online match first")
	case http.StatusUnauthorized:
		return "", bulletError(endpoint, resp.StatusCode, "invalid game web token")
	case http.StatusForbidden:
		return "", bulletError(endpoint, resp.StatusCode, "obsolete web view version")
	default:
		return "", errx.Status(errx.ErrIdentityProvider, endpoint, resp.StatusCode, body)
	}

	var out struct {
		BulletToken string `json:"bulletToken"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &errx.ResponseError{
			Kind:        errx.ErrMalformedResponse,
			Endpoint:    endpoint,
			StatusCode:  resp.StatusCode,
			Description: fmt.Sprintf("failed to decode response: %v", err),
		}
	}
	if out.BulletToken == "" {
		return "", errx.MissingKey(endpoint, "bulletToken")
	}

	return out.BulletToken, nil
}

func bulletError(endpoint string, status int, description string) error {
	return &errx.ResponseError{
		Kind:        errx.ErrIdentityProvider,
		Endpoint:    endpoint,
		StatusCode:  status,
		Description: description,
	}
}
