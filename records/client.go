// CLAUDE:SUMMARY REST client for the records platform: metadata reads, gated metadata updates, raw content download.
// Package records talks to the enterprise records platform: fetch record
// metadata, update metadata fields behind a write gate, and pull raw record
// content so it can be turned into readable text for agents.
package records

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
	"sync"
	"time"

	"github.com/hazyhaar/passerelle/guard"
	"github.com/hazyhaar/passerelle/upstream"
)

// maxContentBytes caps record content downloads. Records are documents,
// not datasets; anything larger needs a different pipeline.
const maxContentBytes int64 = 10 << 20

const errExcerptLimit = 1024

// ErrNotFound is returned when the platform reports a missing record.
var ErrNotFound = errors.New("records: record not found")

// ErrInvalidInput is returned when a request fails field validation.
var ErrInvalidInput = errors.New("records: invalid input")

// ErrPermissionDenied is returned when the platform rejects the token, or
// when metadata writes are disabled in configuration.
var ErrPermissionDenied = errors.New("records: permission denied")

// Record is one platform record: stable ID, display title, and the raw
// metadata field map as the platform returns it.
type Record struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Fields      map[string]any `json:"fields"`
	ContentType string         `json:"content_type,omitempty"`
	Size        int64          `json:"size,omitempty"`
	ModifiedAt  string         `json:"modified_at,omitempty"`
}

// Client is a REST client for one records platform instance.
type Client struct {
	baseURL   string
	httpc     *http.Client
	logger    *slog.Logger
	extractor *Extractor

	mu            sync.RWMutex
	writesEnabled bool
}

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	timeout   time.Duration
	logger    *slog.Logger
	transport http.RoundTripper
}

// WithTimeout sets the overall per-request timeout. Default 60s; content
// downloads can be slow.
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

// NewClient builds a client for the platform named in cfg, authenticating
// with the bearer token. The transport retries transient failures and trips
// a circuit breaker when the platform goes dark; all calls here are either
// reads or idempotent metadata puts, so retries are safe.
func NewClient(cfg *Config, token string, opts ...Option) (*Client, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidInput)
	}

	cc := &clientConfig{
		timeout: 60 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(cc)
	}

	if err := guard.ValidateBaseURL(cfg.BaseURL, cfg.AllowPrivateNetworks); err != nil {
		return nil, fmt.Errorf("records: base URL: %w", err)
	}
	if err := guard.ValidateToken(token); err != nil {
		return nil, fmt.Errorf("records: token: %w", err)
	}

	rt := cc.transport
	if rt == nil {
		breaker := upstream.NewCircuitBreaker()
		rt = upstream.Chain(
			upstream.Logging(cc.logger),
			upstream.Headers(map[string]string{
				"User-Agent":    "passerelle/1.0",
				"Authorization": "Bearer " + token,
			}),
			upstream.Retry(2, 250*time.Millisecond, cc.logger),
			upstream.Breaker(breaker, "records"),
		)(nil)
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		httpc:         upstream.NewClient(cc.timeout, rt),
		logger:        cc.logger,
		extractor:     NewExtractor(),
		writesEnabled: cfg.WritesEnabled,
	}, nil
}

// SetWritesEnabled flips the metadata write gate. Safe for concurrent use;
// the config watcher calls this on reload.
func (c *Client) SetWritesEnabled(enabled bool) {
	c.mu.Lock()
	c.writesEnabled = enabled
	c.mu.Unlock()
}

func (c *Client) checkWritesEnabled() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.writesEnabled {
		return fmt.Errorf("%w: metadata writes are disabled in configuration", ErrPermissionDenied)
	}
	return nil
}

func (c *Client) recordURL(id string, segments ...string) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString("/api/records/")
	b.WriteString(url.PathEscape(id))
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// GetRecord fetches one record's metadata.
func (c *Client) GetRecord(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: record id is required", ErrInvalidInput)
	}

	resp, err := c.do(ctx, http.MethodGet, c.recordURL(id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus("get record", resp, id); err != nil {
		return nil, err
	}
	var rec Record
	if err := decodeJSON(resp, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateMetadata patches metadata fields on a record and returns the
// updated record. Gated; the platform merges the given fields over the
// existing ones.
func (c *Client) UpdateMetadata(ctx context.Context, id string, fields map[string]any) (*Record, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: record id is required", ErrInvalidInput)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: at least one field is required", ErrInvalidInput)
	}
	if err := c.checkWritesEnabled(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return nil, fmt.Errorf("records: encode fields: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPatch, c.recordURL(id), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus("update metadata", resp, id); err != nil {
		return nil, err
	}
	var rec Record
	if err := decodeJSON(resp, &rec); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "record metadata updated", "record_id", id, "fields", len(fields))
	return &rec, nil
}

// FetchContent downloads the raw record content and reports its media type.
func (c *Client) FetchContent(ctx context.Context, id string) ([]byte, string, error) {
	if id == "" {
		return nil, "", fmt.Errorf("%w: record id is required", ErrInvalidInput)
	}

	resp, err := c.do(ctx, http.MethodGet, c.recordURL(id, "content"), nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if err := c.checkStatus("fetch content", resp, id); err != nil {
		return nil, "", err
	}

	data, err := guard.LimitedReadAll(resp.Body, maxContentBytes)
	if err != nil {
		return nil, "", fmt.Errorf("records: read content of %s: %w", id, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// ExtractRecord downloads record content and turns it into readable text.
func (c *Client) ExtractRecord(ctx context.Context, id string) (*Extraction, error) {
	data, contentType, err := c.FetchContent(ctx, id)
	if err != nil {
		return nil, err
	}
	ext, err := c.extractor.Extract(data, contentType)
	if err != nil {
		return nil, fmt.Errorf("records: extract %s: %w", id, err)
	}
	c.logger.DebugContext(ctx, "record content extracted",
		"record_id", id, "format", ext.Format, "bytes", len(ext.Text),
		"completeness", ext.Completeness)
	return ext, nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("records: new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json, */*")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("records: %s: %w", method, err)
	}
	return resp, nil
}

func decodeJSON(resp *http.Response, out any) error {
	data, err := guard.LimitedReadAll(resp.Body, guard.MaxResponseBody)
	if err != nil {
		return fmt.Errorf("records: read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("records: decode response: %w", err)
	}
	return nil
}

func (c *Client) checkStatus(op string, resp *http.Response, id string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: backend returned status %d on %s", ErrPermissionDenied, resp.StatusCode, op)
	default:
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errExcerptLimit))
		return &upstream.StatusError{
			Backend: "records",
			Op:      op,
			Status:  resp.StatusCode,
			Excerpt: strings.TrimSpace(string(excerpt)),
		}
	}
}
