// Package e2e tests the assembled passerelle server end to end.
//
// These tests verify that the packages compose correctly when wired the way
// cmd/passerelle wires them: the devops client in front of a scripted HTTP
// wiki backend, the wikisync core and its policy gates on top, every tool
// registered on one MCP server, and a real client session driving it over
// in-memory transports with the audit trail recording underneath.
package e2e

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/passerelle/audit"
	"github.com/hazyhaar/passerelle/dbopen"
	"github.com/hazyhaar/passerelle/devops"
	"github.com/hazyhaar/passerelle/kit"
	"github.com/hazyhaar/passerelle/wikisync"
)

const e2eToken = "pat-e2e-0123456789abcdef"

var testImpl = &mcp.Implementation{Name: "passerelle-e2e", Version: "0.0.1"}

// --- scripted wiki backend ---

// wikiBackend serves one wiki page the way the real backend does: reads
// carry the version as an ETag, writes are conditioned on If-Match and
// rejected with 412 when stale. raceOnFirstWrite makes a concurrent edit
// slip in between the first read and the first write.
type wikiBackend struct {
	mu      sync.Mutex
	content string
	version int

	gets, puts  int
	lastGetPath string

	raceOnFirstWrite bool
	raced            bool
}

func newWikiBackend(content string) *wikiBackend {
	return &wikiBackend{content: content, version: 1}
}

func (b *wikiBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			b.gets++
			b.lastGetPath = r.URL.Query().Get("path")
			w.Header().Set("ETag", strconv.Itoa(b.version))
			json.NewEncoder(w).Encode(map[string]string{
				"path":    b.lastGetPath,
				"content": b.content,
			})
		case http.MethodPut:
			b.puts++
			if b.raceOnFirstWrite && !b.raced {
				b.raced = true
				b.content = "Reviewed-By: someone-else\n" + b.content
				b.version++
				w.WriteHeader(http.StatusPreconditionFailed)
				return
			}
			if r.Header.Get("If-Match") != strconv.Itoa(b.version) {
				w.WriteHeader(http.StatusPreconditionFailed)
				return
			}
			var body struct {
				Content string `json:"content"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			b.content = body.Content
			b.version++
			w.Header().Set("ETag", strconv.Itoa(b.version))
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func (b *wikiBackend) state() (content string, gets, puts int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.content, b.gets, b.puts
}

// --- harness ---

// newSession assembles the production wiring against the given backend and
// returns a connected MCP client session plus the audit trail it writes to.
// The server context carries an actor, as cmd/passerelle stamps one from
// the environment.
func newSession(t *testing.T, backendURL string, writesEnabled bool) (*mcp.ClientSession, *audit.SQLiteLogger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	client, err := devops.NewClient(backendURL, e2eToken, devops.WithLogger(logger))
	if err != nil {
		t.Fatalf("devops client: %v", err)
	}

	auditor := audit.NewSQLiteLogger(dbopen.OpenMemory(t), audit.WithLogger(logger))
	if err := auditor.Init(); err != nil {
		t.Fatalf("audit init: %v", err)
	}
	t.Cleanup(func() { auditor.Close() })

	svc, err := wikisync.New(client, &wikisync.Config{
		AllowedProjects: []string{"Platform"},
		WritesEnabled:   writesEnabled,
	}, logger)
	if err != nil {
		t.Fatalf("wikisync service: %v", err)
	}

	srv := mcp.NewServer(testImpl, nil)
	svc.RegisterMCP(srv, auditor)
	client.RegisterMCP(srv, auditor)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := kit.WithActor(context.Background(), "e2e-suite")
	go func() { _ = srv.Run(ctx, serverT) }()

	session, err := mcp.NewClient(testImpl, nil).Connect(context.Background(), clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session, auditor
}

// callTool invokes an MCP tool and returns the text payload, failing the
// test on transport or tool errors.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s): tool error: %v", name, err)
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): content is %T, want TextContent", name, result.Content[0])
	}
	return text.Text
}

// callToolErr invokes an MCP tool expecting it to fail and returns the
// tool error the client sees.
func callToolErr(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) error {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	toolErr := result.GetError()
	if toolErr == nil {
		t.Fatalf("CallTool(%s): expected a tool error", name)
	}
	return toolErr
}

// auditRows flushes the trail and returns what it recorded.
func auditRows(t *testing.T, auditor *audit.SQLiteLogger) []audit.Entry {
	t.Helper()
	auditor.Close()
	entries, err := auditor.Recent(context.Background(), 50)
	if err != nil {
		t.Fatalf("audit recent: %v", err)
	}
	return entries
}

func updateArgs(oldText, newText string) map[string]any {
	return map[string]any{
		"project":  "Platform",
		"wiki_id":  "ops.wiki",
		"path":     "/Runbooks/Deploy",
		"old_text": oldText,
		"new_text": newText,
	}
}

type updateResponse struct {
	Success     bool   `json:"success"`
	Diff        string `json:"diff"`
	Occurrences int    `json:"occurrences"`
	Version     string `json:"version"`
	Message     string `json:"message"`
}

// --- E2E: happy path ---

// WHAT: a wiki_update_content call travels client -> MCP server -> wikisync
// -> devops client -> HTTP backend and back, and lands in the audit trail.
// WHY: this is the production path; every seam between the packages is
// crossed exactly once.
func TestE2E_UpdateHappyPath(t *testing.T) {
	backend := newWikiBackend("# Deploy\n\nCurrent release: v1.4.2\n\nEscalate to #ops on failure.\n")
	httpSrv := httptest.NewServer(backend.handler())
	defer httpSrv.Close()

	session, auditor := newSession(t, httpSrv.URL, true)

	// Step 1: replace the release marker through the tool.
	text := callTool(t, session, "wiki_update_content", updateArgs("v1.4.2", "v1.4.3"))

	var resp updateResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("decode response: %v\n%s", err, text)
	}
	if !resp.Success {
		t.Fatal("expected success")
	}
	if resp.Occurrences != 1 {
		t.Errorf("occurrences = %d, want 1", resp.Occurrences)
	}
	if resp.Version != "2" {
		t.Errorf("version = %q, want %q", resp.Version, "2")
	}
	if !strings.Contains(resp.Diff, "- Current release: v1.4.2") ||
		!strings.Contains(resp.Diff, "+ Current release: v1.4.3") {
		t.Errorf("diff missing changed lines:\n%s", resp.Diff)
	}

	// Step 2: the backend holds the new content after one read and one write.
	content, gets, puts := backend.state()
	if gets != 1 || puts != 1 {
		t.Errorf("backend saw %d reads and %d writes, want 1 and 1", gets, puts)
	}
	if !strings.Contains(content, "v1.4.3") || strings.Contains(content, "v1.4.2") {
		t.Errorf("backend content not updated:\n%s", content)
	}

	// Step 3: the mutation is in the trail with its parameters and diff.
	entries := auditRows(t, auditor)
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Action != "wiki_update_content" || e.Status != "success" {
		t.Errorf("audit action/status = %q/%q", e.Action, e.Status)
	}
	if e.Project != "Platform" || e.Target != "/Runbooks/Deploy" {
		t.Errorf("audit project/target = %q/%q", e.Project, e.Target)
	}
	if e.Actor != "e2e-suite" {
		t.Errorf("audit actor = %q, want %q", e.Actor, "e2e-suite")
	}
	if e.RequestID == "" {
		t.Error("audit entry has no request ID")
	}
	if !strings.Contains(e.Parameters, `"old_text":"v1.4.2"`) {
		t.Errorf("audit parameters = %s", e.Parameters)
	}
	if !strings.Contains(e.Detail, "+ Current release: v1.4.3") {
		t.Errorf("audit detail missing diff:\n%s", e.Detail)
	}
}

// --- E2E: ambiguity and replace_all ---

// WHAT: a search text with two occurrences is rejected with a tool error
// naming the count, and the same edit goes through with replace_all.
// WHY: the refusal must reach the MCP client as an actionable message, and
// the page must stay untouched until the caller decides.
func TestE2E_AmbiguousThenReplaceAll(t *testing.T) {
	backend := newWikiBackend("On failure retry the job.\nIf it fails again retry the job.\n")
	httpSrv := httptest.NewServer(backend.handler())
	defer httpSrv.Close()

	session, _ := newSession(t, httpSrv.URL, true)

	// Step 1: the ambiguous request is refused before anything is written.
	toolErr := callToolErr(t, session, "wiki_update_content", updateArgs("retry the job", "re-run the job"))
	if !strings.Contains(toolErr.Error(), "occurs 2 times") ||
		!strings.Contains(toolErr.Error(), "replace_all") {
		t.Errorf("tool error = %q", toolErr.Error())
	}
	if _, gets, puts := backend.state(); gets != 1 || puts != 0 {
		t.Errorf("backend saw %d reads and %d writes after refusal, want 1 and 0", gets, puts)
	}

	// Step 2: replace_all applies the same edit to both occurrences.
	args := updateArgs("retry the job", "re-run the job")
	args["replace_all"] = true
	text := callTool(t, session, "wiki_update_content", args)

	var resp updateResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Occurrences != 2 {
		t.Errorf("occurrences = %d, want 2", resp.Occurrences)
	}

	content, gets, puts := backend.state()
	if gets != 2 || puts != 1 {
		t.Errorf("backend saw %d reads and %d writes, want 2 and 1", gets, puts)
	}
	if strings.Count(content, "re-run the job") != 2 || strings.Contains(content, "retry the job") {
		t.Errorf("backend content:\n%s", content)
	}
}

// --- E2E: conflict recovery ---

// WHAT: a concurrent edit between read and write is absorbed by one replay;
// the caller sees success and both edits survive on the page.
// WHY: conditional-write recovery is the core promise of the update tool,
// and it has to hold across the full stack, not just in the unit tests.
func TestE2E_ConflictRetry(t *testing.T) {
	backend := newWikiBackend("owner: alice\nstate: pending\n")
	backend.raceOnFirstWrite = true
	httpSrv := httptest.NewServer(backend.handler())
	defer httpSrv.Close()

	session, auditor := newSession(t, httpSrv.URL, true)

	text := callTool(t, session, "wiki_update_content", updateArgs("state: pending", "state: done"))

	var resp updateResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// Read at 1, conflicting edit bumps to 2, replay reads 2 and writes 3.
	if resp.Version != "3" {
		t.Errorf("version = %q, want %q", resp.Version, "3")
	}

	content, gets, puts := backend.state()
	if gets != 2 || puts != 2 {
		t.Errorf("backend saw %d reads and %d writes, want 2 and 2", gets, puts)
	}
	if !strings.Contains(content, "Reviewed-By: someone-else") {
		t.Errorf("concurrent edit lost:\n%s", content)
	}
	if !strings.Contains(content, "state: done") || strings.Contains(content, "state: pending") {
		t.Errorf("replacement not applied:\n%s", content)
	}

	// One call, one trail entry; the recovered conflict is not an error.
	entries := auditRows(t, auditor)
	if len(entries) != 1 || entries[0].Status != "success" {
		t.Fatalf("audit entries = %+v, want one success", entries)
	}
}

// --- E2E: policy gates ---

// WHAT: the allow-list and the write gate refuse before any backend I/O,
// and both refusals are recorded as errors in the trail.
// WHY: a misconfigured or disabled deployment must not leak a single
// request to the backend, and operators need to see the refusals.
func TestE2E_PolicyGates(t *testing.T) {
	backend := newWikiBackend("anything\n")
	httpSrv := httptest.NewServer(backend.handler())
	defer httpSrv.Close()

	session, auditor := newSession(t, httpSrv.URL, false)

	// Step 1: a project outside the allow-list is named together with what
	// is permitted.
	args := updateArgs("anything", "something")
	args["project"] = "Marketing"
	toolErr := callToolErr(t, session, "wiki_update_content", args)
	if !strings.Contains(toolErr.Error(), `"Marketing" is not allowed`) ||
		!strings.Contains(toolErr.Error(), "Platform") {
		t.Errorf("tool error = %q", toolErr.Error())
	}

	// Step 2: an allowed project still hits the write gate.
	toolErr = callToolErr(t, session, "wiki_update_content", updateArgs("anything", "something"))
	if !strings.Contains(toolErr.Error(), "writes are disabled") {
		t.Errorf("tool error = %q", toolErr.Error())
	}

	// Step 3: neither refusal reached the backend.
	if _, gets, puts := backend.state(); gets != 0 || puts != 0 {
		t.Errorf("backend saw %d reads and %d writes, want none", gets, puts)
	}

	entries := auditRows(t, auditor)
	if len(entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Action != "wiki_update_content" || e.Status != "error" || e.Error == "" {
			t.Errorf("audit entry = %+v, want recorded error", e)
		}
	}
}

// --- E2E: reads and tool inventory ---

// WHAT: wiki_get_page returns content and version, normalizing a
// search-result path, and works with writes disabled.
// WHY: reads are how callers locate text before editing; they must not be
// blocked by the write gate, and path normalization has to happen before
// the backend sees the path.
func TestE2E_GetPageNormalizesPath(t *testing.T) {
	backend := newWikiBackend("status: green\n")
	httpSrv := httptest.NewServer(backend.handler())
	defer httpSrv.Close()

	session, _ := newSession(t, httpSrv.URL, false)

	text := callTool(t, session, "wiki_get_page", map[string]any{
		"project": "Platform",
		"wiki_id": "ops.wiki",
		"path":    "/Team-Docs/Status.md",
	})

	var page struct {
		Path    string `json:"path"`
		Content string `json:"content"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal([]byte(text), &page); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if page.Path != "/Team Docs/Status" {
		t.Errorf("path = %q, want %q", page.Path, "/Team Docs/Status")
	}
	if page.Content != "status: green\n" || page.Version != "1" {
		t.Errorf("content/version = %q/%q", page.Content, page.Version)
	}

	backend.mu.Lock()
	lastPath := backend.lastGetPath
	backend.mu.Unlock()
	if lastPath != "/Team Docs/Status" {
		t.Errorf("backend saw path %q, want the canonical form", lastPath)
	}
}

// WHAT: one server session exposes the wiki tools and the work item tools.
// WHY: cmd/passerelle registers both packages on the same server; a tool
// silently missing from the inventory is invisible to every client.
func TestE2E_ToolInventory(t *testing.T) {
	backend := newWikiBackend("anything\n")
	httpSrv := httptest.NewServer(backend.handler())
	defer httpSrv.Close()

	session, _ := newSession(t, httpSrv.URL, true)

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	found := make(map[string]bool, len(res.Tools))
	for _, tool := range res.Tools {
		found[tool.Name] = true
	}
	for _, name := range []string{
		"wiki_update_content", "wiki_get_page",
		"workitem_get", "workitem_create", "workitem_update", "workitem_comment",
	} {
		if !found[name] {
			t.Errorf("tool %q not registered", name)
		}
	}
}
