// Package httpx is the outbound HTTP boundary: a JSON client with DNS
// caching, bounded retries with exponential backoff, and per-host circuit
// breakers shared by every remote source.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/dnscache"
)

// Client performs JSON GETs against remote APIs. The zero value is not
// usable; construct with NewClient.
type Client struct {
	hc         *http.Client
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
	breakers   *Breakers
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client, replacing the DNS-cached
// default transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.hc = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithMaxRetries sets the maximum retry attempts for transient failures.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBaseDelay sets the base delay for exponential backoff.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = d
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.hc.Timeout = d
	}
}

// NewClient creates a new Client with the given options.
func NewClient(opts ...Option) *Client {
	// DNS cache with 5 minute refresh interval
	resolver := &dnscache.Resolver{}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			resolver.Refresh(true)
		}
	}()

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	c := &Client{
		hc: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					host, port, err := net.SplitHostPort(addr)
					if err != nil {
						return nil, err
					}
					ips, err := resolver.LookupHost(ctx, host)
					if err != nil {
						return nil, err
					}
					for _, ip := range ips {
						conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
						if err == nil {
							return conn, nil
						}
					}
					return nil, fmt.Errorf("failed to dial any resolved IP")
				},
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		userAgent:  "matrixgen/1.0",
		maxRetries: 3,
		baseDelay:  500 * time.Millisecond,
		breakers:   NewBreakers(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPClient exposes the underlying client for SDKs that build their own
// requests.
func (c *Client) HTTPClient() *http.Client {
	return c.hc
}

// BreakerStates reports the current circuit breaker state per host.
func (c *Client) BreakerStates() map[string]string {
	return c.breakers.States()
}

// GetJSON fetches rawURL and decodes the response body into out. Transient
// failures (429, 5xx) are retried; a 404 returns ErrNotFound immediately.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any) error {
	return c.Do(ctx, hostOf(rawURL), func() error {
		return c.getJSON(ctx, rawURL, out)
	})
}

// Do runs fn under the circuit breaker for host, retrying transient
// failures with exponential backoff. A NotFound outcome counts as a
// healthy response for the breaker: it proves the host is answering, and
// missing packages are routine.
func (c *Client) Do(ctx context.Context, host string, fn func() error) error {
	br := c.breakers.get(host)
	if !br.Ready() {
		return fmt.Errorf("circuit breaker open for %s: %w", host, ErrUpstreamDown)
	}

	err := c.retry(ctx, fn)
	if err == nil || errors.Is(err, ErrNotFound) {
		br.Success()
	} else {
		br.Fail()
	}
	return err
}

func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff with 10% jitter to prevent thundering herd
			delay := c.baseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			delay += time.Duration(float64(delay) * (rand.Float64() * 0.1))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		// Retry on rate limit and server errors; everything else
		// (not found, decode failures, request construction) is final.
		if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamDown) {
			continue
		}
		return err
	}

	return lastErr
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("fetching: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil

	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound

	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited

	case resp.StatusCode >= 500:
		return ErrUpstreamDown

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &HTTPError{StatusCode: resp.StatusCode, URL: rawURL, Body: string(body)}
	}
}

// hostOf extracts the host from a URL for circuit breaker grouping.
func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		// Fallback to simple truncation
		if len(rawURL) > 50 {
			return rawURL[:50]
		}
		return rawURL
	}
	return parsed.Host
}
