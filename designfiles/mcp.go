package designfiles

import (
	"context"
	"encoding/json"

	"github.com/hazyhaar/passerelle/kit"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the design-file tools on an MCP server. Both are
// read-only, so neither is audited.
func (c *Client) RegisterMCP(srv *mcp.Server) {
	c.registerGet(srv)
	c.registerComponents(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (c *Client) registerGet(srv *mcp.Server) {
	type req struct {
		FileKey string `json:"file_key"`
	}

	tool := &mcp.Tool{
		Name:        "designfile_get",
		Description: "Fetch a design file and summarize its pages, frames, component instances and text as Markdown",
		InputSchema: inputSchema(map[string]any{
			"file_key": map[string]any{"type": "string", "description": "Design file key from its URL"},
		}, []string{"file_key"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		f, err := c.GetFile(ctx, p.FileKey)
		if err != nil {
			return nil, err
		}
		return Summarize(f), nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (c *Client) registerComponents(srv *mcp.Server) {
	type req struct {
		FileKey string `json:"file_key"`
	}

	tool := &mcp.Tool{
		Name:        "designfile_components",
		Description: "List the published components of a design file with keys and descriptions",
		InputSchema: inputSchema(map[string]any{
			"file_key": map[string]any{"type": "string", "description": "Design file key from its URL"},
		}, []string{"file_key"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return c.ListComponents(ctx, p.FileKey)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
