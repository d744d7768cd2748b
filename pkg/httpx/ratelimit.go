package httpx

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// AttestationLimit throttles calls to each f-token provider. The providers
// are community run and ask clients to stay well below this.
// Override with: RATELIMIT_ATTESTATION_REQUESTS, RATELIMIT_ATTESTATION_WINDOW_SEC, RATELIMIT_ATTESTATION_BURST
var AttestationLimit = RateLimitConfig{
	RequestsPerWindow: 10,
	Window:            time.Minute,
	Burst:             4,
}

func init() {
	AttestationLimit = ParseRateLimitFromEnv("ATTESTATION", AttestationLimit)
}

// ParseRateLimitFromEnv reads rate limit configuration from environment variables.
// Environment variables follow the pattern: RATELIMIT_{prefix}_{field}
// For example: RATELIMIT_ATTESTATION_REQUESTS, RATELIMIT_ATTESTATION_WINDOW_SEC, RATELIMIT_ATTESTATION_BURST
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	config := defaultConfig

	if val := os.Getenv("RATELIMIT_" + prefix + "_REQUESTS"); val != "" {
		if requests, err := strconv.Atoi(val); err == nil && requests > 0 {
			config.RequestsPerWindow = requests
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_WINDOW_SEC"); val != "" {
		if windowSec, err := strconv.Atoi(val); err == nil && windowSec > 0 {
			config.Window = time.Duration(windowSec) * time.Second
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_BURST"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil && burst > 0 {
			config.Burst = burst
		}
	}

	return config
}

// RateLimitedTransport is an http.RoundTripper that keeps one token bucket
// per destination host. Requests block until the bucket allows them or the
// request context is done.
type RateLimitedTransport struct {
	Base http.RoundTripper

	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewRateLimitedTransport wraps base (http.DefaultTransport when nil).
func NewRateLimitedTransport(base http.RoundTripper, config RateLimitConfig) *RateLimitedTransport {
	if base == nil {
		base = http.DefaultTransport
	}

	// Calculate rate per second from requests per window
	ratePerSecond := float64(config.RequestsPerWindow) / config.Window.Seconds()

	return &RateLimitedTransport{
		Base:  base,
		rate:  rate.Limit(ratePerSecond),
		burst: config.Burst,
	}
}

// getLimiter retrieves or creates the limiter for host.
func (t *RateLimitedTransport) getLimiter(host string) *rate.Limiter {
	if limiter, ok := t.limiters.Load(host); ok {
		return limiter.(*rate.Limiter)
	}

	actual, _ := t.limiters.LoadOrStore(host, rate.NewLimiter(t.rate, t.burst))
	return actual.(*rate.Limiter)
}

func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.getLimiter(req.URL.Host).Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit wait for %s: %w", req.URL.Host, err)
	}
	return t.Base.RoundTrip(req)
}
