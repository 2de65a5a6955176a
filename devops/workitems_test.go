package devops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hazyhaar/passerelle/upstream"
)

type patchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

func decodePatch(t *testing.T, r *http.Request) map[string]patchOp {
	t.Helper()
	var ops []patchOp
	if err := json.NewDecoder(r.Body).Decode(&ops); err != nil {
		t.Fatalf("decode patch: %v", err)
	}
	byPath := make(map[string]patchOp, len(ops))
	for _, op := range ops {
		byPath[op.Path] = op
	}
	return byPath
}

func TestGetWorkItem(t *testing.T) {
	// WHAT: Fetches one item by ID and surfaces the raw field map.
	// WHY: Field reference names vary per process template; the client
	// must not reshape or filter them.

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Team Platform/_apis/wit/workitems/42" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		if r.URL.Query().Get("api-version") != "7.1" {
			t.Errorf("api-version: got %q", r.URL.Query().Get("api-version"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":  42,
			"rev": 3,
			"fields": map[string]any{
				"System.Title": "Fix login redirect",
				"System.State": "Active",
			},
		})
	}))
	defer srv.Close()

	item, err := newTestClient(t, srv).GetWorkItem(context.Background(), "Team Platform", 42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if item.ID != 42 || item.Rev != 3 {
		t.Errorf("item: id=%d rev=%d", item.ID, item.Rev)
	}
	if item.Fields["System.Title"] != "Fix login redirect" {
		t.Errorf("title field: got %v", item.Fields["System.Title"])
	}
}

func TestCreateWorkItem(t *testing.T) {
	// WHAT: Create posts an RFC 6902 patch of add operations to the
	// $-typed route with the patch media type.
	// WHY: The platform rejects plain JSON bodies on this endpoint; the
	// patch shape is the contract.

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s, want POST", r.Method)
		}
		if r.URL.Path != "/Platform/_apis/wit/workitems/$Task" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json-patch+json" {
			t.Errorf("content type: got %q", ct)
		}

		ops := decodePatch(t, r)
		if len(ops) != 2 {
			t.Errorf("ops: got %d, want 2", len(ops))
		}
		title, ok := ops["/fields/System.Title"]
		if !ok || title.Op != "add" || title.Value != "Wire up staging deploy" {
			t.Errorf("title op: %+v", title)
		}
		if desc, ok := ops["/fields/System.Description"]; !ok || desc.Op != "add" {
			t.Errorf("description op: %+v", desc)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"id": 101, "rev": 1,
			"fields": map[string]any{"System.Title": "Wire up staging deploy"},
		})
	}))
	defer srv.Close()

	item, err := newTestClient(t, srv).CreateWorkItem(context.Background(), "Platform", "Task", map[string]any{
		"System.Title":       "Wire up staging deploy",
		"System.Description": "Pipeline stage plus smoke test.",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if item.ID != 101 {
		t.Errorf("id: got %d, want 101", item.ID)
	}
}

func TestUpdateWorkItem(t *testing.T) {
	// WHAT: Update reads the current item, merges the changes, and submits
	// only the difference: a replace, a remove for the nil value, an add.
	// WHY: Minimal patches keep the revision history readable and avoid
	// clobbering fields the caller never mentioned.

	var patches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"id": 7, "rev": 2,
				"fields": map[string]any{
					"System.Title": "Old title",
					"System.State": "Active",
				},
			})
		case http.MethodPatch:
			patches++
			if r.URL.Path != "/Platform/_apis/wit/workitems/7" {
				t.Errorf("patch path: got %q", r.URL.Path)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json-patch+json" {
				t.Errorf("content type: got %q", ct)
			}

			ops := decodePatch(t, r)
			if len(ops) != 3 {
				t.Errorf("ops: got %d, want 3", len(ops))
			}
			if op := ops["/fields/System.Title"]; op.Op != "replace" || op.Value != "New title" {
				t.Errorf("title op: %+v", op)
			}
			if op := ops["/fields/System.State"]; op.Op != "remove" {
				t.Errorf("state op: %+v", op)
			}
			if op := ops["/fields/System.Tags"]; op.Op != "add" || op.Value != "sync" {
				t.Errorf("tags op: %+v", op)
			}

			json.NewEncoder(w).Encode(map[string]any{
				"id": 7, "rev": 3,
				"fields": map[string]any{"System.Title": "New title", "System.Tags": "sync"},
			})
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer srv.Close()

	item, err := newTestClient(t, srv).UpdateWorkItem(context.Background(), "Platform", 7, map[string]any{
		"System.Title": "New title",
		"System.State": nil,
		"System.Tags":  "sync",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if patches != 1 {
		t.Errorf("patches: got %d, want 1", patches)
	}
	if item.Rev != 3 {
		t.Errorf("rev: got %d, want 3", item.Rev)
	}
}

func TestUpdateWorkItem_NoOp(t *testing.T) {
	// WHAT: Changes matching the current state issue no PATCH at all.
	// WHY: An empty patch would still burn a revision and spam the item
	// history with non-changes.

	var patches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"id": 7, "rev": 2,
				"fields": map[string]any{"System.Title": "Same title"},
			})
		case http.MethodPatch:
			patches++
			t.Error("no PATCH expected for a no-op update")
		}
	}))
	defer srv.Close()

	item, err := newTestClient(t, srv).UpdateWorkItem(context.Background(), "Platform", 7, map[string]any{
		"System.Title": "Same title",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if patches != 0 {
		t.Errorf("patches: got %d, want 0", patches)
	}
	if item.ID != 7 || item.Rev != 2 {
		t.Errorf("item: id=%d rev=%d, want current item back unchanged", item.ID, item.Rev)
	}
}

func TestAddWorkItemComment(t *testing.T) {
	// WHAT: Comments post plain JSON to the comments route.
	// WHY: Unlike item bodies, comments are not patch documents.

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Platform/_apis/wit/workItems/7/comments" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Text != "Deployed to staging, smoke tests green." {
			t.Errorf("text: got %q", body.Text)
		}
		json.NewEncoder(w).Encode(map[string]any{"id": 55, "text": body.Text})
	}))
	defer srv.Close()

	comment, err := newTestClient(t, srv).AddWorkItemComment(context.Background(), "Platform", 7,
		"Deployed to staging, smoke tests green.")
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	if comment.ID != 55 {
		t.Errorf("id: got %d, want 55", comment.ID)
	}
}

func TestWorkItem_StatusMapping(t *testing.T) {
	// WHAT: Non-wiki statuses map to the package sentinels, everything
	// unexpected to a typed status error.
	// WHY: Work items and wiki pages have separate taxonomies; a missing
	// item is not a missing page.

	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"unauthorized", http.StatusUnauthorized, ErrPermissionDenied},
		{"forbidden", http.StatusForbidden, ErrPermissionDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).GetWorkItem(context.Background(), "Platform", 42)
			if !errors.Is(err, tc.want) {
				t.Errorf("status %d: got %v, want %v", tc.status, err, tc.want)
			}
		})
	}

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv).GetWorkItem(context.Background(), "Platform", 42)
		var se *upstream.StatusError
		if !errors.As(err, &se) {
			t.Fatalf("got %v, want *upstream.StatusError", err)
		}
		if se.Status != http.StatusTooManyRequests {
			t.Errorf("status: got %d", se.Status)
		}
	})
}

func TestWorkItem_InputValidation(t *testing.T) {
	// WHAT: Bad inputs fail before any request leaves the client.
	// WHY: The backend's 400s are opaque; local validation gives the
	// caller a typed error and saves a round trip.

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request: %s %s", r.Method, r.URL)
	}))
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	cases := []struct {
		name string
		call func() error
	}{
		{"get without project", func() error { _, err := c.GetWorkItem(ctx, "", 1); return err }},
		{"get with zero id", func() error { _, err := c.GetWorkItem(ctx, "Platform", 0); return err }},
		{"create without type", func() error {
			_, err := c.CreateWorkItem(ctx, "Platform", "", map[string]any{"System.Title": "t"})
			return err
		}},
		{"create without fields", func() error {
			_, err := c.CreateWorkItem(ctx, "Platform", "Task", nil)
			return err
		}},
		{"update without changes", func() error {
			_, err := c.UpdateWorkItem(ctx, "Platform", 1, nil)
			return err
		}},
		{"comment without text", func() error {
			_, err := c.AddWorkItemComment(ctx, "Platform", 1, "")
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.call(); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("got %v, want ErrInvalidInput", err)
			}
		})
	}
}
