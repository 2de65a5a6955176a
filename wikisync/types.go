// CLAUDE:SUMMARY Core wiki sync types: Snapshot, PageStore boundary, StoreResolver, request/result shapes.
package wikisync

import "context"

// Snapshot is one read of a wiki page: its canonical path, full content,
// and the opaque version token the backend issued for that read. A snapshot
// is built fresh on every fetch and discarded after one use; nothing caches
// it across calls.
type Snapshot struct {
	Path    string
	Content string
	Version string
}

// PageStore is the backend boundary the replacer drives. Write must be
// conditional on expectedVersion and must return ErrConflict when the page
// has moved on, never silently overwrite. Implementations return
// ErrPageMissing when the page does not exist and ErrPermissionDenied when
// the backend refuses the credentials; anything else propagates as a
// transport failure.
type PageStore interface {
	// Fetch reads the page at the canonical path and returns a fresh
	// snapshot. The version token in the snapshot is opaque: it is carried
	// to the next Write unchanged and never parsed.
	Fetch(ctx context.Context, path string) (*Snapshot, error)

	// Write stores new content for the page, conditioned on the version the
	// content was computed from. It returns the backend's new version token.
	Write(ctx context.Context, path, content, expectedVersion string) (string, error)
}

// StoreResolver scopes a PageStore to one project and wiki. Tool calls name
// the project and wiki per invocation; the resolver hands back a store bound
// to that pair.
type StoreResolver interface {
	Resolve(project, wikiID string) PageStore
}

// StoreResolverFunc adapts a function to StoreResolver.
type StoreResolverFunc func(project, wikiID string) PageStore

func (f StoreResolverFunc) Resolve(project, wikiID string) PageStore {
	return f(project, wikiID)
}

// LineHit is one occurrence of a search text: the 1-based line number and
// the text of that line.
type LineHit struct {
	Line int    `json:"line"`
	Text string `json:"text"`
}

// UpdateRequest asks for one literal text replacement on one wiki page.
type UpdateRequest struct {
	Project    string `json:"project"`
	WikiID     string `json:"wiki_id"`
	Path       string `json:"path"`
	OldText    string `json:"old_text"`
	NewText    string `json:"new_text"`
	ReplaceAll bool   `json:"replace_all"`
	// Description is an optional caller note, recorded in the audit trail.
	Description string `json:"description,omitempty"`
}

// AuditTarget identifies the page for audit logging.
func (r *UpdateRequest) AuditTarget() (project, target string) {
	return r.Project, r.Path
}

// UpdateResult is the outcome of a successful replacement. It is fully
// populated or not produced at all.
type UpdateResult struct {
	Diff        string `json:"diff"`
	Occurrences int    `json:"occurrences"`
	Version     string `json:"version"`
}

// Page is a read-only view of a wiki page, returned by GetPage.
type Page struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Version string `json:"version"`
}
