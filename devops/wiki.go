// CLAUDE:SUMMARY Wiki page adapter: GET with includeContent and response ETag, PUT with If-Match, 412 mapped to the conflict error.
package devops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hazyhaar/passerelle/wikisync"
)

// WikiStore reads and writes pages of one wiki in one project. It
// implements wikisync.PageStore: reads deliver the page version as the
// response ETag, writes condition on it with If-Match, and the backend's
// precondition-failed status becomes wikisync.ErrConflict.
type WikiStore struct {
	c       *Client
	project string
	wikiID  string
}

// WikiStore scopes the client to one project and wiki.
func (c *Client) WikiStore(project, wikiID string) *WikiStore {
	return &WikiStore{c: c, project: project, wikiID: wikiID}
}

// Resolve implements wikisync.StoreResolver on the client.
func (c *Client) Resolve(project, wikiID string) wikisync.PageStore {
	return c.WikiStore(project, wikiID)
}

// wikiPage is the body of a page read.
type wikiPage struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (s *WikiStore) pagesURL(path string, includeContent bool) string {
	q := url.Values{}
	q.Set("path", path)
	if includeContent {
		q.Set("includeContent", "true")
	}
	return s.c.apiURL(s.project, q, "wiki", "wikis", s.wikiID, "pages")
}

// Fetch reads the page at the canonical path. The version token is the
// response ETag, carried byte-for-byte: the backend, not this client,
// defines its shape.
func (s *WikiStore) Fetch(ctx context.Context, path string) (*wikisync.Snapshot, error) {
	resp, err := s.c.do(ctx, http.MethodGet, s.pagesURL(path, true), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s (wiki %s)", wikisync.ErrPageMissing, path, s.wikiID)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: backend returned status %d reading %s", wikisync.ErrPermissionDenied, resp.StatusCode, path)
	default:
		return nil, statusError("fetch page", resp)
	}

	version := resp.Header.Get("ETag")
	if version == "" {
		return nil, fmt.Errorf("devops: page read for %s returned no ETag; conditional writes are impossible", path)
	}

	var page wikiPage
	if err := decodeJSON(resp, &page); err != nil {
		return nil, err
	}
	return &wikisync.Snapshot{Path: path, Content: page.Content, Version: version}, nil
}

// Write stores new content for the page, conditioned on expectedVersion via
// If-Match. A precondition failure maps to wikisync.ErrConflict so the
// caller can decide to replay; nothing here retries.
func (s *WikiStore) Write(ctx context.Context, path, content, expectedVersion string) (string, error) {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return "", fmt.Errorf("devops: encode page: %w", err)
	}

	header := http.Header{}
	if expectedVersion != "" {
		header.Set("If-Match", expectedVersion)
	}

	resp, err := s.c.do(ctx, http.MethodPut, s.pagesURL(path, false), body, header)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
	case resp.StatusCode == http.StatusPreconditionFailed:
		return "", fmt.Errorf("%w: page %s changed since it was read", wikisync.ErrConflict, path)
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s (wiki %s)", wikisync.ErrPageMissing, path, s.wikiID)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: backend returned status %d writing %s", wikisync.ErrPermissionDenied, resp.StatusCode, path)
	default:
		return "", statusError("write page", resp)
	}

	newVersion := resp.Header.Get("ETag")
	if newVersion == "" {
		return "", fmt.Errorf("devops: page write for %s returned no ETag", path)
	}
	return newVersion, nil
}
