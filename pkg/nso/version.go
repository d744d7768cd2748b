package nso

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/splatauth/pkg/httpx"
	"github.com/aussiebroadwan/splatauth/pkg/retry"
	"golang.org/x/mod/semver"
	"golang.org/x/net/html"
)

const (
	// FallbackAppVersion is reported when the App Store lookup fails.
	FallbackAppVersion = "2.7.0"

	// FallbackWebViewVersion is reported when the web view data file cannot
	// be read.
	FallbackWebViewVersion = "6.0.0-9f87c815"

	// appVersionClass marks the "Version X.Y.Z" label on the listing page.
	appVersionClass = "whats-new__latest__version"
)

var errVersionLookup = errors.New("version lookup failed")

// AppVersion returns the current Nintendo Switch Online app version. The
// first call scrapes the App Store listing (three tries); the result, or
// FallbackAppVersion if every try failed, is reused for the client's
// lifetime. It never fails.
func (c *Client) AppVersion(ctx context.Context) string {
	c.versionMu.Lock()
	defer c.versionMu.Unlock()

	if c.appVersion != "" {
		return c.appVersion
	}

	version, err := retry.Do(ctx, retry.Policy{
		Attempts: 3,
		On:       []error{errVersionLookup},
		OnFailure: func(attempt int, err error) {
			c.logger().Debug("app version lookup failed", "attempt", attempt, "error", err)
		},
	}, c.scrapeAppVersion)
	if err != nil {
		c.logger().Warn("failed to get app version from app store, using fallback",
			"fallback", FallbackAppVersion,
			"error", err,
		)
		if ctx.Err() != nil {
			// Try again next time rather than pinning the fallback
			return FallbackAppVersion
		}
		version = FallbackAppVersion
	}

	c.appVersion = version
	return version
}

func (c *Client) scrapeAppVersion(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoints.AppStore, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent(""))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errVersionLookup, err)
	}

	body, err := httpx.ReadBody(resp)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errVersionLookup, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: app store returned status %d", errVersionLookup, resp.StatusCode)
	}

	return parseAppVersion(bytes.NewReader(body))
}

// parseAppVersion finds the element carrying appVersionClass and returns the
// X.Y.Z version in its text.
func parseAppVersion(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)

	depth := 0
	var text strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return "", fmt.Errorf("%w: version label not found", errVersionLookup)

		case html.StartTagToken:
			if depth > 0 {
				depth++
				continue
			}
			if hasClass(z, appVersionClass) {
				depth = 1
			}

		case html.EndTagToken:
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				return extractVersion(text.String())
			}

		case html.TextToken:
			if depth > 0 {
				text.Write(z.Text())
			}
		}
	}
}

func hasClass(z *html.Tokenizer, class string) bool {
	_, hasAttr := z.TagName()
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		if string(key) != "class" {
			continue
		}
		for _, c := range strings.Fields(string(val)) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func extractVersion(label string) (string, error) {
	for _, field := range strings.Fields(label) {
		if strings.Count(field, ".") == 2 && semver.IsValid("v"+field) {
			return field, nil
		}
	}
	return "", fmt.Errorf("%w: no version in label %q", errVersionLookup, label)
}

// WebViewVersion returns the SplatNet 3 web view version sent as
// X-Web-View-Ver. It is read once from the imink data file and cached; on
// failure FallbackWebViewVersion is used.
func (c *Client) WebViewVersion(ctx context.Context) string {
	c.versionMu.Lock()
	defer c.versionMu.Unlock()

	if c.webViewVersion != "" {
		return c.webViewVersion
	}

	version, err := c.fetchWebViewVersion(ctx)
	if err != nil {
		c.logger().Warn("failed to get web view version, using fallback",
			"fallback", FallbackWebViewVersion,
			"error", err,
		)
		if ctx.Err() != nil {
			return FallbackWebViewVersion
		}
		version = FallbackWebViewVersion
	}

	c.webViewVersion = version
	return version
}

func (c *Client) fetchWebViewVersion(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoints.WebViewData, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	body, err := httpx.ReadBody(resp)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("web view data returned status %d", resp.StatusCode)
	}

	var out struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Version == "" {
		return "", fmt.Errorf("web view data has no version")
	}

	return out.Version, nil
}
