// CLAUDE:SUMMARY Service orchestrator for wiki text replacement: scope and write gates, fetch, match, substitute, conditional write with one conflict retry.
// Package wikisync performs targeted text replacement on enterprise wiki
// pages for HOROS agents: fetch the current page, verify the search text is
// present and unambiguous, substitute, and write back conditioned on the
// version read. Lost updates are prevented by the backend's conditional
// write; a version conflict is recovered once by replaying the same
// substitution against freshly fetched content.
//
// Usage:
//
//	svc, _ := wikisync.New(resolver, &wikisync.Config{
//		AllowedProjects: []string{"Platform"},
//		WritesEnabled:   true,
//	}, logger)
//	res, err := svc.UpdateContent(ctx, &wikisync.UpdateRequest{...})
package wikisync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

const (
	maxPathLen = 2048
	maxTextLen = 512 * 1024
)

// Service is the wiki sync orchestrator. Construct it explicitly at process
// start and pass it where needed; it holds no hidden global state.
type Service struct {
	stores StoreResolver
	logger *slog.Logger
	config *Config

	mu            sync.RWMutex
	allowed       map[string]string // lowercased name -> as configured
	writesEnabled bool
}

// New creates a wiki sync Service.
func New(stores StoreResolver, cfg *Config, logger *slog.Logger) (*Service, error) {
	if stores == nil {
		return nil, fmt.Errorf("%w: store resolver is required", ErrInvalidInput)
	}
	if cfg == nil {
		cfg = defaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	svc := &Service{
		stores: stores,
		logger: logger,
		config: cfg,
	}
	svc.SetAllowedProjects(cfg.AllowedProjects)
	svc.SetWritesEnabled(cfg.WritesEnabled)
	return svc, nil
}

// SetAllowedProjects replaces the project allow-list. Matching is
// case-insensitive. Safe for concurrent use; the config watcher calls this
// on reload.
func (svc *Service) SetAllowedProjects(projects []string) {
	allowed := make(map[string]string, len(projects))
	for _, p := range projects {
		if p != "" {
			allowed[strings.ToLower(p)] = p
		}
	}
	svc.mu.Lock()
	svc.allowed = allowed
	svc.mu.Unlock()
}

// SetWritesEnabled flips the write gate. Safe for concurrent use.
func (svc *Service) SetWritesEnabled(enabled bool) {
	svc.mu.Lock()
	svc.writesEnabled = enabled
	svc.mu.Unlock()
}

// AllowedProjects returns the current allow-list, sorted, in the spelling
// it was configured with.
func (svc *Service) AllowedProjects() []string {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	out := make([]string, 0, len(svc.allowed))
	for _, p := range svc.allowed {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// WritesEnabled reports whether mutating operations are currently allowed.
func (svc *Service) WritesEnabled() bool {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.writesEnabled
}

// checkProject validates the project against the allow-list.
func (svc *Service) checkProject(project string) error {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	if _, ok := svc.allowed[strings.ToLower(project)]; ok {
		return nil
	}
	allowed := make([]string, 0, len(svc.allowed))
	for _, p := range svc.allowed {
		allowed = append(allowed, p)
	}
	sort.Strings(allowed)
	return &ProjectNotAllowedError{Project: project, Allowed: allowed}
}

// checkWritesEnabled validates the write gate.
func (svc *Service) checkWritesEnabled() error {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	if !svc.writesEnabled {
		return fmt.Errorf("%w: content writes are disabled in configuration", ErrPermissionDenied)
	}
	return nil
}

// validateUpdateRequest validates an update's fields before any I/O.
func validateUpdateRequest(r *UpdateRequest) error {
	if r.Project == "" {
		return fmt.Errorf("%w: project is required", ErrInvalidInput)
	}
	if r.WikiID == "" {
		return fmt.Errorf("%w: wiki_id is required", ErrInvalidInput)
	}
	if r.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidInput)
	}
	if len(r.Path) > maxPathLen {
		return fmt.Errorf("%w: path exceeds %d characters", ErrInvalidInput, maxPathLen)
	}
	if r.OldText == "" {
		return fmt.Errorf("%w: old_text is required", ErrInvalidInput)
	}
	if r.OldText == r.NewText {
		return fmt.Errorf("%w: old_text and new_text are identical", ErrNoChange)
	}
	if len(r.OldText) > maxTextLen || len(r.NewText) > maxTextLen {
		return fmt.Errorf("%w: replacement text exceeds %d bytes", ErrInvalidInput, maxTextLen)
	}
	return nil
}

// UpdateContent performs one literal text replacement on a wiki page.
//
// Validation, the project allow-list and the write gate are checked before
// any network call. The page is then fetched fresh, the search text is
// required to be present and (unless ReplaceAll) unique, the substitution
// is computed in memory and written back conditioned on the fetched
// version. A version conflict triggers exactly one retry: re-fetch,
// re-match and re-substitute the original old/new text against the fresh
// content, write again. A second conflict reaches the caller. Worst case is
// two reads and two writes.
func (svc *Service) UpdateContent(ctx context.Context, req *UpdateRequest) (*UpdateResult, error) {
	if err := validateUpdateRequest(req); err != nil {
		return nil, err
	}
	if err := svc.checkProject(req.Project); err != nil {
		return nil, err
	}
	if err := svc.checkWritesEnabled(); err != nil {
		return nil, err
	}

	path := NormalizePagePath(req.Path)
	store := svc.stores.Resolve(req.Project, req.WikiID)

	result, err := svc.replaceOnce(ctx, store, path, req)
	if errors.Is(err, ErrConflict) {
		svc.logger.InfoContext(ctx, "version conflict, replaying against fresh content",
			"project", req.Project, "path", path)
		result, err = svc.replaceOnce(ctx, store, path, req)
	}
	if err != nil {
		return nil, err
	}

	svc.logger.InfoContext(ctx, "wiki content updated",
		"project", req.Project,
		"path", path,
		"occurrences", result.Occurrences,
		"version", result.Version)
	return result, nil
}

// replaceOnce runs one fetch-match-substitute-write cycle. The write is
// conditioned on the version of the snapshot fetched in this same cycle: a
// retry must never reuse a stale version.
func (svc *Service) replaceOnce(ctx context.Context, store PageStore, path string, req *UpdateRequest) (*UpdateResult, error) {
	snap, err := store.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}

	report := Locate(snap.Content, req.OldText)
	if report.Count == 0 {
		return nil, &TextNotFoundError{
			SearchText: req.OldText,
			Excerpt:    excerpt(snap.Content, svc.config.ExcerptLimit),
		}
	}
	if report.Count > 1 && !req.ReplaceAll {
		return nil, &AmbiguousMatchError{
			SearchText: req.OldText,
			Hits:       boundHits(report.Hits, svc.config.MaxListedHits, svc.config.MaxHitLineLen),
			Total:      report.Count,
		}
	}

	newContent := strings.Replace(snap.Content, req.OldText, req.NewText, 1)
	occurrences := 1
	if req.ReplaceAll {
		newContent = strings.ReplaceAll(snap.Content, req.OldText, req.NewText)
		occurrences = report.Count
	}
	if newContent == snap.Content {
		return nil, fmt.Errorf("%w: replacing %q with %q leaves the page as it is", ErrNoChange, req.OldText, req.NewText)
	}

	newVersion, err := store.Write(ctx, path, newContent, snap.Version)
	if err != nil {
		return nil, err
	}

	return &UpdateResult{
		Diff:        RenderDiff(snap.Content, newContent, req.OldText),
		Occurrences: occurrences,
		Version:     newVersion,
	}, nil
}

// GetPage fetches a wiki page's current content and version.
func (svc *Service) GetPage(ctx context.Context, project, wikiID, path string) (*Page, error) {
	if project == "" {
		return nil, fmt.Errorf("%w: project is required", ErrInvalidInput)
	}
	if wikiID == "" {
		return nil, fmt.Errorf("%w: wiki_id is required", ErrInvalidInput)
	}
	if path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidInput)
	}
	if err := svc.checkProject(project); err != nil {
		return nil, err
	}

	p := NormalizePagePath(path)
	snap, err := svc.stores.Resolve(project, wikiID).Fetch(ctx, p)
	if err != nil {
		return nil, err
	}
	return &Page{Path: p, Content: snap.Content, Version: snap.Version}, nil
}
