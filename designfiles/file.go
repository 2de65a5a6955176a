// CLAUDE:SUMMARY Typed design-file node tree (document, pages, frames, children) and the fetch operations over it.
package designfiles

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Node kinds the inventory cares about. The API emits more; unknown kinds
// still parse, they just carry children and a name.
const (
	NodeDocument  = "DOCUMENT"
	NodePage      = "CANVAS"
	NodeFrame     = "FRAME"
	NodeComponent = "COMPONENT"
	NodeInstance  = "INSTANCE"
	NodeText      = "TEXT"
)

// File is a design file's node tree plus its component index.
type File struct {
	Name         string               `json:"name"`
	Version      string               `json:"version"`
	LastModified time.Time            `json:"lastModified"`
	Document     Node                 `json:"document"`
	Components   map[string]Component `json:"components"`
}

// Node is one node in the tree. Characters is set on text nodes,
// ComponentID on component instances.
type Node struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Characters  string `json:"characters,omitempty"`
	ComponentID string `json:"componentId,omitempty"`
	Children    []Node `json:"children,omitempty"`
}

// Component is the in-file metadata of a component definition.
type Component struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ComponentMeta is one published component from the components endpoint.
type ComponentMeta struct {
	Key         string `json:"key"`
	NodeID      string `json:"node_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GetFile fetches a file's full node tree.
func (c *Client) GetFile(ctx context.Context, key string) (*File, error) {
	if err := guardKey(key); err != nil {
		return nil, err
	}
	var f File
	if err := c.getJSON(ctx, c.fileURL(key), &f); err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "fetched design file",
		slog.String("key", key),
		slog.String("name", f.Name),
		slog.Int("pages", len(f.Document.Children)))
	return &f, nil
}

// ListComponents fetches the published components of a file, sorted by
// name so repeated calls diff cleanly.
func (c *Client) ListComponents(ctx context.Context, key string) ([]ComponentMeta, error) {
	if err := guardKey(key); err != nil {
		return nil, err
	}
	var resp struct {
		Meta struct {
			Components []ComponentMeta `json:"components"`
		} `json:"meta"`
	}
	if err := c.getJSON(ctx, c.fileURL(key, "components"), &resp); err != nil {
		return nil, err
	}
	comps := resp.Meta.Components
	sort.Slice(comps, func(i, j int) bool { return comps[i].Name < comps[j].Name })
	return comps, nil
}

func guardKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: file key is required", ErrInvalidInput)
	}
	return nil
}
