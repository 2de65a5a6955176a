// CLAUDE:SUMMARY Design-file API client: fetches node trees and published component metadata over the Figma-shaped REST API.
// Package designfiles reads design files (Figma-shaped API): the full node
// tree of a file, a Markdown inventory of its pages, and the published
// component metadata. It never renders anything; the point is giving text
// tools a way to see what a design contains.
package designfiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/passerelle/guard"
	"github.com/hazyhaar/passerelle/upstream"
)

const (
	// maxFileBytes bounds a file response. Node trees for big design files
	// run to several megabytes of JSON.
	maxFileBytes = 20 << 20

	errExcerptLimit = 1024
)

// ErrNotFound is returned when a file key does not resolve.
var ErrNotFound = errors.New("designfiles: file not found")

// ErrInvalidInput is returned when a request fails field validation.
var ErrInvalidInput = errors.New("designfiles: invalid input")

// ErrPermissionDenied is returned when the API rejects the token or the
// token cannot see the file.
var ErrPermissionDenied = errors.New("designfiles: permission denied")

// Client is a read-only design-file API client.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	timeout   time.Duration
	logger    *slog.Logger
	transport http.RoundTripper
}

// WithTimeout sets the overall per-request timeout. Default 60s; node
// trees are large.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger. Default slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTransport overrides the HTTP transport. Tests use it to bypass the
// middleware chain.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *clientConfig) { c.transport = rt }
}

// NewClient builds a design-file client authenticated with a personal
// access token. All calls are reads, so the transport retries transient
// failures behind a circuit breaker.
func NewClient(cfg *Config, token string, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidInput)
	}
	cfg.defaults()
	if err := guard.ValidateToken(token); err != nil {
		return nil, fmt.Errorf("designfiles: %w", err)
	}
	if err := guard.ValidateBaseURL(cfg.BaseURL, cfg.AllowPrivateNetworks); err != nil {
		return nil, fmt.Errorf("designfiles: base URL: %w", err)
	}

	cc := &clientConfig{
		timeout: 60 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(cc)
	}

	rt := cc.transport
	if rt == nil {
		breaker := upstream.NewCircuitBreaker()
		rt = upstream.Chain(
			upstream.Logging(cc.logger),
			upstream.Headers(map[string]string{
				"User-Agent":    "passerelle/1.0",
				"X-Figma-Token": token,
			}),
			upstream.Retry(2, 250*time.Millisecond, cc.logger),
			upstream.Breaker(breaker, "designfiles"),
		)(nil)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpc:   upstream.NewClient(cc.timeout, rt),
		logger:  cc.logger,
	}, nil
}

func (c *Client) fileURL(key string, segments ...string) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString("/v1/files/")
	b.WriteString(url.PathEscape(key))
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("designfiles: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("designfiles: GET: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("get", resp); err != nil {
		return err
	}
	data, err := guard.LimitedReadAll(resp.Body, maxFileBytes)
	if err != nil {
		return fmt.Errorf("designfiles: read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("designfiles: decode response: %w", err)
	}
	return nil
}

func checkStatus(op string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: API returned status %d", ErrPermissionDenied, resp.StatusCode)
	default:
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errExcerptLimit))
		return &upstream.StatusError{
			Backend: "designfiles",
			Op:      op,
			Status:  resp.StatusCode,
			Excerpt: strings.TrimSpace(string(excerpt)),
		}
	}
}
