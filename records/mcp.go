package records

import (
	"context"
	"encoding/json"

	"github.com/hazyhaar/passerelle/audit"
	"github.com/hazyhaar/passerelle/idgen"
	"github.com/hazyhaar/passerelle/kit"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the records tools on an MCP server. The metadata
// update lands in the audit trail when auditor is set.
func (c *Client) RegisterMCP(srv *mcp.Server, auditor *audit.SQLiteLogger) {
	c.registerGet(srv)
	c.registerUpdate(srv, auditor)
	c.registerExtract(srv)
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
		RecordID string `json:"record_id"`
	}

	tool := &mcp.Tool{
		Name:        "records_get",
		Description: "Get a record's metadata from the records platform",
		InputSchema: inputSchema(map[string]any{
			"record_id": map[string]any{"type": "string", "description": "Record identifier"},
		}, []string{"record_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return c.GetRecord(ctx, p.RecordID)
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

type updateMetadataRequest struct {
	RecordID string         `json:"record_id"`
	Fields   map[string]any `json:"fields"`
}

// AuditTarget identifies the updated record. The records platform has no
// project dimension.
func (r *updateMetadataRequest) AuditTarget() (project, target string) {
	return "", r.RecordID
}

func (c *Client) registerUpdate(srv *mcp.Server, auditor *audit.SQLiteLogger) {
	tool := &mcp.Tool{
		Name:        "records_update",
		Description: "Update metadata fields on a record; requires writes to be enabled",
		InputSchema: inputSchema(map[string]any{
			"record_id": map[string]any{"type": "string", "description": "Record identifier"},
			"fields":    map[string]any{"type": "object", "description": "Metadata field names to values"},
		}, []string{"record_id", "fields"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*updateMetadataRequest)
		return c.UpdateMetadata(ctx, p.RecordID, p.Fields)
	}
	if auditor != nil {
		endpoint = kit.Chain(
			kit.RequestID(idgen.Default),
			audit.Middleware(auditor, "records_update"),
		)(endpoint)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p updateMetadataRequest
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (c *Client) registerExtract(srv *mcp.Server) {
	type req struct {
		RecordID string `json:"record_id"`
	}

	tool := &mcp.Tool{
		Name:        "records_extract",
		Description: "Download a record's content and extract readable text (HTML, PDF, plain text)",
		InputSchema: inputSchema(map[string]any{
			"record_id": map[string]any{"type": "string", "description": "Record identifier"},
		}, []string{"record_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return c.ExtractRecord(ctx, p.RecordID)
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
