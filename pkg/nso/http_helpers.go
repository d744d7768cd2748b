package nso

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/aussiebroadwan/splatauth/pkg/errx"
	"github.com/aussiebroadwan/splatauth/pkg/httpx"
)

// doRequest performs an HTTP request with the client's HTTP client. Transport
// failures are reported as identity provider errors so the exchanger treats
// a flaky Nintendo endpoint like any other rejected call; a done context is
// returned as is.
func (c *Client) doRequest(
	ctx context.Context,
	method, endpoint string,
	body io.Reader,
	headers map[string]string,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &errx.ResponseError{
			Kind:        errx.ErrIdentityProvider,
			Endpoint:    endpoint,
			Description: fmt.Sprintf("failed to send request: %v", err),
		}
	}

	return resp, nil
}

// decodeJSON reads the response, requires expectedStatus, and decodes the
// body into target.
func decodeJSON(endpoint string, resp *http.Response, target any, expectedStatus int) error {
	body, err := httpx.ReadBody(resp)
	if err != nil {
		return &errx.ResponseError{Kind: errx.ErrIdentityProvider, Endpoint: endpoint, Description: err.Error()}
	}

	if resp.StatusCode != expectedStatus {
		return errx.Status(errx.ErrIdentityProvider, endpoint, resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return &errx.ResponseError{
			Kind:        errx.ErrMalformedResponse,
			Endpoint:    endpoint,
			StatusCode:  resp.StatusCode,
			Description: fmt.Sprintf("failed to decode response: %v", err),
		}
	}

	return nil
}
