// CLAUDE:SUMMARY Work-item operations: get, create, comment, and field updates submitted as RFC 6902 patches computed from the current state.
package devops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/wI2L/jsondiff"
)

// WorkItem is one tracker item: numeric ID, revision, and the raw field
// map keyed by the platform's reference names.
type WorkItem struct {
	ID     int            `json:"id"`
	Rev    int            `json:"rev"`
	Fields map[string]any `json:"fields"`
	URL    string         `json:"url,omitempty"`
}

// WorkItemComment is one discussion entry on a work item.
type WorkItemComment struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// patchContentType is the media type the platform requires for RFC 6902
// patch documents.
const patchContentType = "application/json-patch+json"

// GetWorkItem fetches one work item with all fields.
func (c *Client) GetWorkItem(ctx context.Context, project string, id int) (*WorkItem, error) {
	if project == "" {
		return nil, fmt.Errorf("%w: project is required", ErrInvalidInput)
	}
	if id <= 0 {
		return nil, fmt.Errorf("%w: work item id must be positive", ErrInvalidInput)
	}

	u := c.apiURL(project, nil, "wit", "workitems", strconv.Itoa(id))
	resp, err := c.do(ctx, http.MethodGet, u, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkWorkItemStatus("get work item", resp, id); err != nil {
		return nil, err
	}
	var item WorkItem
	if err := decodeJSON(resp, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateWorkItem creates a work item of the given type. The field map is
// turned into the add-operations patch the platform expects by diffing an
// empty field set against the requested one.
func (c *Client) CreateWorkItem(ctx context.Context, project, itemType string, fields map[string]any) (*WorkItem, error) {
	if project == "" {
		return nil, fmt.Errorf("%w: project is required", ErrInvalidInput)
	}
	if itemType == "" {
		return nil, fmt.Errorf("%w: work item type is required", ErrInvalidInput)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: at least one field is required", ErrInvalidInput)
	}

	patch, err := fieldsPatch(map[string]any{}, fields)
	if err != nil {
		return nil, err
	}

	u := c.apiURL(project, nil, "wit", "workitems", "$"+itemType)
	header := http.Header{}
	header.Set("Content-Type", patchContentType)
	resp, err := c.do(ctx, http.MethodPost, u, patch, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkWorkItemStatus("create work item", resp, 0); err != nil {
		return nil, err
	}
	var item WorkItem
	if err := decodeJSON(resp, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateWorkItem applies field changes to a work item. The current item is
// fetched first, the changes are merged over its fields (a nil value
// removes the field), and the difference is submitted as an RFC 6902
// patch. When the merge changes nothing, no write is issued and the
// current item is returned as-is.
func (c *Client) UpdateWorkItem(ctx context.Context, project string, id int, changes map[string]any) (*WorkItem, error) {
	if len(changes) == 0 {
		return nil, fmt.Errorf("%w: at least one field change is required", ErrInvalidInput)
	}

	current, err := c.GetWorkItem(ctx, project, id)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(current.Fields)+len(changes))
	for k, v := range current.Fields {
		merged[k] = v
	}
	for k, v := range changes {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}

	patch, err := fieldsPatch(current.Fields, merged)
	if err != nil {
		return nil, err
	}
	if patch == nil {
		c.logger.DebugContext(ctx, "work item update is a no-op", "id", id)
		return current, nil
	}

	u := c.apiURL(project, nil, "wit", "workitems", strconv.Itoa(id))
	header := http.Header{}
	header.Set("Content-Type", patchContentType)
	resp, err := c.do(ctx, http.MethodPatch, u, patch, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkWorkItemStatus("update work item", resp, id); err != nil {
		return nil, err
	}
	var item WorkItem
	if err := decodeJSON(resp, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// AddWorkItemComment posts a comment on a work item.
func (c *Client) AddWorkItemComment(ctx context.Context, project string, id int, text string) (*WorkItemComment, error) {
	if project == "" {
		return nil, fmt.Errorf("%w: project is required", ErrInvalidInput)
	}
	if id <= 0 {
		return nil, fmt.Errorf("%w: work item id must be positive", ErrInvalidInput)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: comment text is required", ErrInvalidInput)
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("devops: encode comment: %w", err)
	}

	u := c.apiURL(project, nil, "wit", "workItems", strconv.Itoa(id), "comments")
	resp, err := c.do(ctx, http.MethodPost, u, body, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkWorkItemStatus("add comment", resp, id); err != nil {
		return nil, err
	}
	var comment WorkItemComment
	if err := decodeJSON(resp, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// fieldsPatch computes the RFC 6902 patch turning one field set into
// another, both wrapped under a fields object so operation paths come out
// as /fields/<name> with pointer escaping handled by the library. A nil
// return means the sets are identical.
func fieldsPatch(oldFields, newFields map[string]any) ([]byte, error) {
	oldDoc, err := json.Marshal(map[string]any{"fields": oldFields})
	if err != nil {
		return nil, fmt.Errorf("devops: encode fields: %w", err)
	}
	newDoc, err := json.Marshal(map[string]any{"fields": newFields})
	if err != nil {
		return nil, fmt.Errorf("devops: encode fields: %w", err)
	}

	patch, err := jsondiff.CompareJSON(oldDoc, newDoc)
	if err != nil {
		return nil, fmt.Errorf("devops: compute field patch: %w", err)
	}
	if len(patch) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("devops: encode field patch: %w", err)
	}
	return data, nil
}

// checkWorkItemStatus maps non-2xx statuses on work-item calls.
func (c *Client) checkWorkItemStatus(op string, resp *http.Response, id int) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		if id > 0 {
			return fmt.Errorf("%w: work item %d", ErrNotFound, id)
		}
		return fmt.Errorf("%w: %s", ErrNotFound, op)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: backend returned status %d on %s", ErrPermissionDenied, resp.StatusCode, op)
	default:
		return statusError(op, resp)
	}
}
