package httpx

import (
	"fmt"
	"io"
	"net/http"
)

// MaxBodySize caps how much of a response body is read. Token endpoints
// answer with a few KiB; the App Store page is the largest thing fetched.
const MaxBodySize = 4 << 20

// ReadBody reads and closes resp.Body, up to MaxBodySize bytes.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}
