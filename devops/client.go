// CLAUDE:SUMMARY REST client for the DevOps platform: PAT auth, versioned API URLs, shared status-to-error mapping.
// Package devops talks to the enterprise DevOps platform: wiki pages with
// conditional writes, work items, and work-item comments. One Client serves
// one organization; wiki access is scoped per project and wiki through
// WikiStore, which implements the wikisync.PageStore boundary.
package devops

import (
	"bytes"
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

// apiVersion pins the platform REST contract this client is written
// against.
const apiVersion = "7.1"

const errExcerptLimit = 1024

// ErrNotFound is returned when the platform reports a missing resource
// outside the wiki path (work items, comments).
var ErrNotFound = errors.New("devops: resource not found")

// ErrInvalidInput is returned when a request fails field validation.
var ErrInvalidInput = errors.New("devops: invalid input")

// ErrPermissionDenied is returned when the platform rejects the token for
// a non-wiki resource. Wiki calls map the same statuses to the wikisync
// taxonomy instead.
var ErrPermissionDenied = errors.New("devops: permission denied")

// Client is a REST client for one DevOps organization.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	timeout      time.Duration
	logger       *slog.Logger
	allowPrivate bool
	transport    http.RoundTripper
}

// WithTimeout sets the overall per-request timeout. Default 30s.
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

// WithPublicOnly rejects base URLs that resolve to private address space.
// Off by default: the platform normally lives on the intranet.
func WithPublicOnly() Option {
	return func(c *clientConfig) { c.allowPrivate = false }
}

// WithTransport overrides the HTTP transport. Tests use it to point the
// client at fakes without rebuilding the middleware chain.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *clientConfig) { c.transport = rt }
}

// NewClient builds a client for the organization at baseURL, authenticating
// every call with the personal access token. The wiki path carries no retry
// middleware on purpose: the only retry against wiki writes is the conflict
// recovery one layer up, which keeps its call budget exact.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		timeout:      30 * time.Second,
		logger:       slog.Default(),
		allowPrivate: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if err := guard.ValidateBaseURL(baseURL, cfg.allowPrivate); err != nil {
		return nil, fmt.Errorf("devops: base URL: %w", err)
	}
	if err := guard.ValidateToken(token); err != nil {
		return nil, fmt.Errorf("devops: token: %w", err)
	}

	rt := cfg.transport
	if rt == nil {
		rt = upstream.Chain(
			upstream.Logging(cfg.logger),
			upstream.Headers(map[string]string{"User-Agent": "passerelle/1.0"}),
			upstream.BasicAuth("", token),
		)(nil)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   upstream.NewClient(cfg.timeout, rt),
		logger:  cfg.logger,
	}, nil
}

// apiURL builds {base}/{project}/_apis/{segments...}?{query}&api-version=N.
func (c *Client) apiURL(project string, query url.Values, segments ...string) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteByte('/')
	b.WriteString(url.PathEscape(project))
	b.WriteString("/_apis")
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", apiVersion)
	b.WriteByte('?')
	b.WriteString(query.Encode())
	return b.String()
}

// do sends one request with an optional JSON body and returns the raw
// response. Callers own status handling and must close the body.
func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, header http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("devops: new request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("devops: %s: %w", method, err)
	}
	return resp, nil
}

// decodeJSON drains the response body into out, bounded by the guard limit.
func decodeJSON(resp *http.Response, out any) error {
	data, err := guard.LimitedReadAll(resp.Body, guard.MaxResponseBody)
	if err != nil {
		return fmt.Errorf("devops: read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("devops: decode response: %w", err)
	}
	return nil
}

// statusError turns an unexpected response into a typed error carrying a
// bounded body excerpt.
func statusError(op string, resp *http.Response) error {
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errExcerptLimit))
	return &upstream.StatusError{
		Backend: "devops",
		Op:      op,
		Status:  resp.StatusCode,
		Excerpt: strings.TrimSpace(string(excerpt)),
	}
}
