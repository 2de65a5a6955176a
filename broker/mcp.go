package broker

import (
	"context"
	"encoding/json"

	"github.com/hazyhaar/passerelle/kit"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the broker tools on an MCP server. All three are
// read-only, so none of them goes through the audit trail.
func (c *Client) RegisterMCP(srv *mcp.Server) {
	c.registerOverview(srv)
	c.registerQueues(srv)
	c.registerPeek(srv)
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

func (c *Client) registerOverview(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "broker_overview",
		Description: "Get the message broker's cluster summary: version, queue totals, connection counts",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return c.GetOverview(ctx)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if len(r.Params.Arguments) > 0 {
			if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (c *Client) registerQueues(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "broker_queues",
		Description: "List every queue on the configured vhosts with depth and consumer counts",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return c.Queues(ctx)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if len(r.Params.Arguments) > 0 {
			if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (c *Client) registerPeek(srv *mcp.Server) {
	type req struct {
		VHost string `json:"vhost"`
		Queue string `json:"queue"`
		Count int    `json:"count"`
	}

	tool := &mcp.Tool{
		Name:        "broker_peek",
		Description: "Read messages from the head of a queue without consuming them; messages are requeued",
		InputSchema: inputSchema(map[string]any{
			"vhost": map[string]any{"type": "string", "description": "Virtual host, e.g. \"/\""},
			"queue": map[string]any{"type": "string", "description": "Queue name"},
			"count": map[string]any{"type": "integer", "description": "Messages to read; default 10, max 50"},
		}, []string{"vhost", "queue"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return c.Peek(ctx, p.VHost, p.Queue, p.Count)
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
