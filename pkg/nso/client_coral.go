package nso

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/splatauth/pkg/errx"
	"github.com/aussiebroadwan/splatauth/pkg/ftoken"
)

// coralResponse is the envelope every api-lp1.znc.srv.nintendo.net endpoint
// answers with. A non-zero status means the call was refused even when the
// HTTP status is 200.
type coralResponse[T any] struct {
	Status       int    `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	Result       *T     `json:"result"`
}

type accountLoginParameter struct {
	F          string           `json:"f"`
	Language   string           `json:"language"`
	NABirthday string           `json:"naBirthday"`
	NACountry  string           `json:"naCountry"`
	NAIDToken  string           `json:"naIdToken"`
	RequestID  string           `json:"requestId"`
	Timestamp  ftoken.Timestamp `json:"timestamp"`
}

type accountLoginResult struct {
	User *struct {
		ID json.Number `json:"id"`
	} `json:"user"`
	WebAPIServerCredential *struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int    `json:"expiresIn"`
	} `json:"webApiServerCredential"`
}

type webServiceTokenParameter struct {
	F                 string           `json:"f"`
	ID                int64            `json:"id"`
	RegistrationToken string           `json:"registrationToken"`
	RequestID         string           `json:"requestId"`
	Timestamp         ftoken.Timestamp `json:"timestamp"`
}

type webServiceTokenResult struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
}

func (c *Client) coralHeaders(ctx context.Context) map[string]string {
	version := c.AppVersion(ctx)
	return map[string]string{
		"X-Platform":       "Android",
		"X-ProductVersion": version,
		"Content-Type":     "application/json; charset=utf-8",
		"User-Agent":       fmt.Sprintf("com.nintendo.znca/%s(Android/7.1.2)", version),
	}
}

// postCoral sends {"parameter": parameter} and decodes the result envelope.
func postCoral[T any](ctx context.Context, c *Client, path string, headers map[string]string, parameter any) (*T, error) {
	payload, err := json.Marshal(map[string]any{"parameter": parameter})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := joinURL(c.Endpoints.Coral, path)
	resp, err := c.doRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload), headers)
	if err != nil {
		return nil, err
	}

	var out coralResponse[T]
	if err := decodeJSON(endpoint, resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	if out.Status != 0 {
		return nil, &errx.ResponseError{
			Kind:        errx.ErrIdentityProvider,
			Endpoint:    endpoint,
			StatusCode:  http.StatusOK,
			Description: fmt.Sprintf("status %d: %s", out.Status, out.ErrorMessage),
		}
	}
	if out.Result == nil {
		return nil, errx.MissingKey(endpoint, "result")
	}

	return out.Result, nil
}

// AccountLogin signs in to the platform with the NA ID token and a step-1
// attestation. The returned credential is the gtoken; its CoralUserID is
// needed for step-2 attestation.
func (c *Client) AccountLogin(ctx context.Context, p AccountLoginParams) (*WebAPICredential, error) {
	if p.Profile == nil || p.Attestation == nil {
		return nil, errx.Configuration("account login needs a profile and an attestation")
	}

	result, err := postCoral[accountLoginResult](ctx, c, "/v3/Account/Login", c.coralHeaders(ctx), accountLoginParameter{
		F:          p.Attestation.F,
		Language:   p.Profile.Language,
		NABirthday: p.Profile.Birthday,
		NACountry:  p.Profile.Country,
		NAIDToken:  p.IDToken,
		RequestID:  p.Attestation.RequestID,
		Timestamp:  p.Attestation.Timestamp,
	})
	if err != nil {
		return nil, err
	}

	endpoint := joinURL(c.Endpoints.Coral, "/v3/Account/Login")
	switch {
	case result.WebAPIServerCredential == nil || result.WebAPIServerCredential.AccessToken == "":
		return nil, errx.MissingKey(endpoint, "result.webApiServerCredential.accessToken")
	case result.User == nil || result.User.ID == "":
		return nil, errx.MissingKey(endpoint, "result.user.id")
	}

	return &WebAPICredential{
		AccessToken: result.WebAPIServerCredential.AccessToken,
		ExpiresIn:   result.WebAPIServerCredential.ExpiresIn,
		CoralUserID: result.User.ID.String(),
	}, nil
}

// GetWebServiceToken exchanges the web API credential and a step-2
// attestation for the SplatNet 3 web service token.
func (c *Client) GetWebServiceToken(ctx context.Context, p WebServiceTokenParams) (string, error) {
	if p.Credential == "" || p.Attestation == nil {
		return "", errx.Configuration("web service token needs a credential and an attestation")
	}

	headers := c.coralHeaders(ctx)
	headers["Authorization"] = "Bearer " + p.Credential

	result, err := postCoral[webServiceTokenResult](ctx, c, "/v2/Game/GetWebServiceToken", headers, webServiceTokenParameter{
		F:                 p.Attestation.F,
		ID:                SplatNetServiceID,
		RegistrationToken: p.Credential,
		RequestID:         p.Attestation.RequestID,
		Timestamp:         p.Attestation.Timestamp,
	})
	if err != nil {
		return "", err
	}
	if result.AccessToken == "" {
		return "", errx.MissingKey(joinURL(c.Endpoints.Coral, "/v2/Game/GetWebServiceToken"), "result.accessToken")
	}

	return result.AccessToken, nil
}
