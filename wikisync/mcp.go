package wikisync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/passerelle/audit"
	"github.com/hazyhaar/passerelle/idgen"
	"github.com/hazyhaar/passerelle/kit"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the wiki tools on an MCP server. Mutating tools are
// wrapped with request-ID stamping and the audit trail when auditor is set.
func (svc *Service) RegisterMCP(srv *mcp.Server, auditor *audit.SQLiteLogger) {
	svc.registerUpdateContent(srv, auditor)
	svc.registerGetPage(srv)
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

// updateContentResponse is the wire shape of a successful replacement.
type updateContentResponse struct {
	Success     bool   `json:"success"`
	Diff        string `json:"diff"`
	Occurrences int    `json:"occurrences"`
	Version     string `json:"version"`
	Message     string `json:"message"`
}

// AuditDetail records the rendered diff in the audit trail.
func (r *updateContentResponse) AuditDetail() string {
	return r.Diff
}

func (svc *Service) registerUpdateContent(srv *mcp.Server, auditor *audit.SQLiteLogger) {
	tool := &mcp.Tool{
		Name:        "wiki_update_content",
		Description: "Replace text in a wiki page. Fails if the text is absent or ambiguous; resolves concurrent edits with a single conditional-write retry.",
		InputSchema: inputSchema(map[string]any{
			"project":     map[string]any{"type": "string", "description": "Project name (must be on the allow-list)"},
			"wiki_id":     map[string]any{"type": "string", "description": "Wiki identifier"},
			"path":        map[string]any{"type": "string", "description": "Page path, canonical or search-result form"},
			"old_text":    map[string]any{"type": "string", "description": "Exact text to replace"},
			"new_text":    map[string]any{"type": "string", "description": "Replacement text"},
			"replace_all": map[string]any{"type": "boolean", "description": "Replace every occurrence instead of requiring a unique match"},
			"description": map[string]any{"type": "string", "description": "Optional note recorded in the audit trail"},
		}, []string{"project", "wiki_id", "path", "old_text", "new_text"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*UpdateRequest)
		res, err := svc.UpdateContent(ctx, p)
		if err != nil {
			return nil, err
		}
		msg := fmt.Sprintf("replaced %d occurrence", res.Occurrences)
		if res.Occurrences != 1 {
			msg += "s"
		}
		return &updateContentResponse{
			Success:     true,
			Diff:        res.Diff,
			Occurrences: res.Occurrences,
			Version:     res.Version,
			Message:     msg,
		}, nil
	}

	if auditor != nil {
		endpoint = kit.Chain(
			kit.RequestID(idgen.Default),
			audit.Middleware(auditor, "wiki_update_content"),
		)(endpoint)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p UpdateRequest
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerGetPage(srv *mcp.Server) {
	type req struct {
		Project string `json:"project"`
		WikiID  string `json:"wiki_id"`
		Path    string `json:"path"`
	}

	tool := &mcp.Tool{
		Name:        "wiki_get_page",
		Description: "Get a wiki page's current content and version token",
		InputSchema: inputSchema(map[string]any{
			"project": map[string]any{"type": "string", "description": "Project name (must be on the allow-list)"},
			"wiki_id": map[string]any{"type": "string", "description": "Wiki identifier"},
			"path":    map[string]any{"type": "string", "description": "Page path, canonical or search-result form"},
		}, []string{"project", "wiki_id", "path"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.GetPage(ctx, p.Project, p.WikiID, p.Path)
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
