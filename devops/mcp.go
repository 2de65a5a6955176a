package devops

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/hazyhaar/passerelle/audit"
	"github.com/hazyhaar/passerelle/idgen"
	"github.com/hazyhaar/passerelle/kit"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the work-item tools on an MCP server. Mutating
// tools land in the audit trail when auditor is set.
func (c *Client) RegisterMCP(srv *mcp.Server, auditor *audit.SQLiteLogger) {
	c.registerWorkItemGet(srv)
	c.registerWorkItemCreate(srv, auditor)
	c.registerWorkItemUpdate(srv, auditor)
	c.registerWorkItemComment(srv, auditor)
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

// audited wraps a mutating endpoint with request-ID stamping and the audit
// trail.
func audited(auditor *audit.SQLiteLogger, action string, endpoint kit.Endpoint) kit.Endpoint {
	if auditor == nil {
		return endpoint
	}
	return kit.Chain(
		kit.RequestID(idgen.Default),
		audit.Middleware(auditor, action),
	)(endpoint)
}

func (c *Client) registerWorkItemGet(srv *mcp.Server) {
	type req struct {
		Project string `json:"project"`
		ID      int    `json:"id"`
	}

	tool := &mcp.Tool{
		Name:        "workitem_get",
		Description: "Get a work item with all fields",
		InputSchema: inputSchema(map[string]any{
			"project": map[string]any{"type": "string", "description": "Project name"},
			"id":      map[string]any{"type": "integer", "description": "Work item ID"},
		}, []string{"project", "id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return c.GetWorkItem(ctx, p.Project, p.ID)
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

type createWorkItemRequest struct {
	Project string         `json:"project"`
	Type    string         `json:"type"`
	Fields  map[string]any `json:"fields"`
}

// AuditTarget identifies the created item's project and type.
func (r *createWorkItemRequest) AuditTarget() (project, target string) {
	return r.Project, r.Type
}

func (c *Client) registerWorkItemCreate(srv *mcp.Server, auditor *audit.SQLiteLogger) {
	tool := &mcp.Tool{
		Name:        "workitem_create",
		Description: "Create a work item with the given type and fields",
		InputSchema: inputSchema(map[string]any{
			"project": map[string]any{"type": "string", "description": "Project name"},
			"type":    map[string]any{"type": "string", "description": "Work item type, e.g. Task or Bug"},
			"fields":  map[string]any{"type": "object", "description": "Field reference names to values"},
		}, []string{"project", "type", "fields"}),
	}

	endpoint := audited(auditor, "workitem_create", func(ctx context.Context, r any) (any, error) {
		p := r.(*createWorkItemRequest)
		return c.CreateWorkItem(ctx, p.Project, p.Type, p.Fields)
	})

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p createWorkItemRequest
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

type updateWorkItemRequest struct {
	Project string         `json:"project"`
	ID      int            `json:"id"`
	Fields  map[string]any `json:"fields"`
}

// AuditTarget identifies the updated item.
func (r *updateWorkItemRequest) AuditTarget() (project, target string) {
	return r.Project, "#" + strconv.Itoa(r.ID)
}

func (c *Client) registerWorkItemUpdate(srv *mcp.Server, auditor *audit.SQLiteLogger) {
	tool := &mcp.Tool{
		Name:        "workitem_update",
		Description: "Update work item fields; a null value removes the field",
		InputSchema: inputSchema(map[string]any{
			"project": map[string]any{"type": "string", "description": "Project name"},
			"id":      map[string]any{"type": "integer", "description": "Work item ID"},
			"fields":  map[string]any{"type": "object", "description": "Field reference names to new values"},
		}, []string{"project", "id", "fields"}),
	}

	endpoint := audited(auditor, "workitem_update", func(ctx context.Context, r any) (any, error) {
		p := r.(*updateWorkItemRequest)
		return c.UpdateWorkItem(ctx, p.Project, p.ID, p.Fields)
	})

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p updateWorkItemRequest
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

type commentWorkItemRequest struct {
	Project string `json:"project"`
	ID      int    `json:"id"`
	Text    string `json:"text"`
}

// AuditTarget identifies the commented item.
func (r *commentWorkItemRequest) AuditTarget() (project, target string) {
	return r.Project, "#" + strconv.Itoa(r.ID)
}

func (c *Client) registerWorkItemComment(srv *mcp.Server, auditor *audit.SQLiteLogger) {
	tool := &mcp.Tool{
		Name:        "workitem_comment",
		Description: "Add a comment to a work item",
		InputSchema: inputSchema(map[string]any{
			"project": map[string]any{"type": "string", "description": "Project name"},
			"id":      map[string]any{"type": "integer", "description": "Work item ID"},
			"text":    map[string]any{"type": "string", "description": "Comment text"},
		}, []string{"project", "id", "text"}),
	}

	endpoint := audited(auditor, "workitem_comment", func(ctx context.Context, r any) (any, error) {
		p := r.(*commentWorkItemRequest)
		return c.AddWorkItemComment(ctx, p.Project, p.ID, p.Text)
	})

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p commentWorkItemRequest
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
