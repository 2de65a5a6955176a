// CLAUDE:SUMMARY Management-API client for the message broker: authenticated read-only REST calls with retry and a circuit breaker.
// Package broker inspects the message broker through its management REST
// API: cluster overview, per-vhost queue listings, and a requeueing peek at
// queue heads. Everything here is read-only; Peek explicitly requeues, so
// inspection never consumes a message.
package broker

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

const errExcerptLimit = 1024

// ErrNotFound is returned when the broker reports a missing vhost or queue.
var ErrNotFound = errors.New("broker: not found")

// ErrInvalidInput is returned when a request fails field validation.
var ErrInvalidInput = errors.New("broker: invalid input")

// ErrPermissionDenied is returned when the broker rejects the credentials.
var ErrPermissionDenied = errors.New("broker: permission denied")

// Client is a read-only client for one broker's management API.
type Client struct {
	baseURL string
	vhosts  []string
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

// WithTimeout sets the overall per-request timeout. Default 15s;
// management calls are small.
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

// NewClient builds a management-API client with the configured username and
// the given password. All calls are reads, so the transport retries
// transient failures and trips a breaker when the broker goes dark.
func NewClient(cfg *Config, password string, opts ...Option) (*Client, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidInput)
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	cfg.defaults()

	cc := &clientConfig{
		timeout: 15 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(cc)
	}

	if err := guard.ValidateBaseURL(cfg.BaseURL, cfg.AllowPrivateNetworks); err != nil {
		return nil, fmt.Errorf("broker: base URL: %w", err)
	}

	rt := cc.transport
	if rt == nil {
		breaker := upstream.NewCircuitBreaker()
		rt = upstream.Chain(
			upstream.Logging(cc.logger),
			upstream.Headers(map[string]string{"User-Agent": "passerelle/1.0"}),
			upstream.BasicAuth(cfg.Username, password),
			upstream.Retry(2, 250*time.Millisecond, cc.logger),
			upstream.Breaker(breaker, "broker"),
		)(nil)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		vhosts:  append([]string(nil), cfg.VHosts...),
		httpc:   upstream.NewClient(cc.timeout, rt),
		logger:  cc.logger,
	}, nil
}

// apiURL builds {base}/api/{segments...} with each segment path-escaped;
// the root vhost "/" becomes %2F.
func (c *Client) apiURL(segments ...string) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString("/api")
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("broker: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("broker: GET: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("get", resp); err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

func decodeJSON(resp *http.Response, out any) error {
	data, err := guard.LimitedReadAll(resp.Body, guard.MaxResponseBody)
	if err != nil {
		return fmt.Errorf("broker: read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("broker: decode response: %w", err)
	}
	return nil
}

func checkStatus(op string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, resp.Request.URL.Path)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: broker returned status %d", ErrPermissionDenied, resp.StatusCode)
	default:
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errExcerptLimit))
		return &upstream.StatusError{
			Backend: "broker",
			Op:      op,
			Status:  resp.StatusCode,
			Excerpt: strings.TrimSpace(string(excerpt)),
		}
	}
}
