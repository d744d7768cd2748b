// Package ftoken talks to the third-party "f" attestation services (imink,
// nxapi-znca-api) that produce the integrity blob Nintendo requires when
// exchanging an identity token for platform credentials.
package ftoken

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/splatauth/pkg/errx"
	"github.com/aussiebroadwan/splatauth/pkg/httpx"
)

const (
	// IminkURL is the imink f-token endpoint.
	IminkURL = "https://api.imink.app/f"
	// NXAPIURL is the nxapi-znca-api f-token endpoint.
	NXAPIURL = "https://nxapi-znca-api.fancy.org.uk/api/znca/f"
)

// DefaultProviders is the ordered fallback list used when none is configured.
func DefaultProviders() []string {
	return []string{IminkURL, NXAPIURL}
}

// Client calls attestation providers. It holds no per-request state.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
}

// NewClient creates a client that identifies itself with userAgent.
func NewClient(userAgent string) *Client {
	return &Client{
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		UserAgent: userAgent,
	}
}

// Attest requests an attestation blob from the provider at providerURL.
//
// Any transport failure, non-200 status, undecodable body, or missing
// f/request_id/timestamp key is reported as errx.ErrAttestation naming the
// provider. A step-2 call without a coral user id is a configuration error
// and makes no request.
func (c *Client) Attest(ctx context.Context, providerURL string, p Params) (*Result, error) {
	if p.Step != StepLogin && p.Step != StepWebService {
		return nil, errx.Configuration("unknown attestation step %d", p.Step)
	}
	if p.Step == StepWebService && p.CoralUserID == "" {
		return nil, errx.Configuration("coral user id is required for attestation step 2")
	}

	payload, err := json.Marshal(request{
		Token:       p.Token,
		HashMethod:  p.Step,
		NAID:        p.NAID,
		CoralUserID: p.CoralUserID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode attestation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, providerURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("X-znca-Platform", "Android")
	req.Header.Set("X-znca-Version", p.AppVersion)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &errx.ResponseError{
			Kind:        errx.ErrAttestation,
			Endpoint:    providerURL,
			Description: fmt.Sprintf("failed to send request: %v", err),
		}
	}

	body, err := httpx.ReadBody(resp)
	if err != nil {
		return nil, &errx.ResponseError{Kind: errx.ErrAttestation, Endpoint: providerURL, Description: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errx.Status(errx.ErrAttestation, providerURL, resp.StatusCode, body)
	}

	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &errx.ResponseError{
			Kind:        errx.ErrAttestation,
			Endpoint:    providerURL,
			StatusCode:  resp.StatusCode,
			Description: fmt.Sprintf("failed to decode response: %v", err),
		}
	}

	switch {
	case out.Error != "":
		return nil, &errx.ResponseError{
			Kind:        errx.ErrAttestation,
			Endpoint:    providerURL,
			StatusCode:  resp.StatusCode,
			Description: out.Error + " " + out.ErrorDescription,
		}
	case out.F == nil || *out.F == "":
		return nil, missing(providerURL, "f")
	case out.RequestID == nil:
		return nil, missing(providerURL, "request_id")
	case out.Timestamp == nil:
		return nil, missing(providerURL, "timestamp")
	}

	return &Result{
		F:         *out.F,
		RequestID: *out.RequestID,
		Timestamp: *out.Timestamp,
	}, nil
}

func missing(providerURL, key string) error {
	return &errx.ResponseError{
		Kind:        errx.ErrAttestation,
		Endpoint:    providerURL,
		Description: fmt.Sprintf("missing key %q", key),
	}
}
