// CLAUDE:SUMMARY Error taxonomy for wiki content sync: typed match/scope/conflict failures discriminated with errors.Is/As, never by message.
package wikisync

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput is returned when a request fails field validation.
var ErrInvalidInput = errors.New("wikisync: invalid input")

// ErrPermissionDenied is returned when writes are disabled by configuration
// or the backend rejects the caller's credentials.
var ErrPermissionDenied = errors.New("wikisync: permission denied")

// ErrConflict is returned by a PageStore write when the page version no
// longer matches the version the content was read at. The replacer recovers
// from it once; a second conflict reaches the caller.
var ErrConflict = errors.New("wikisync: version conflict")

// ErrPageMissing is returned by a PageStore fetch when the page does not
// exist in the target wiki.
var ErrPageMissing = errors.New("wikisync: page not found")

// ErrNoChange is returned when a substitution produces content identical to
// what the page already holds. Nothing is written.
var ErrNoChange = errors.New("wikisync: replacement produces no change")

// ProjectNotAllowedError is returned when a request names a project outside
// the configured allow-list. Checked before any network call.
type ProjectNotAllowedError struct {
	Project string
	Allowed []string
}

func (e *ProjectNotAllowedError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("wikisync: project %q is not allowed (allow-list is empty)", e.Project)
	}
	return fmt.Sprintf("wikisync: project %q is not allowed; permitted: %s",
		e.Project, strings.Join(e.Allowed, ", "))
}

// TextNotFoundError is returned when the search text does not occur in the
// fetched page. Excerpt carries a bounded slice of the actual content so the
// caller can see what the page really says.
type TextNotFoundError struct {
	SearchText string
	Excerpt    string
}

func (e *TextNotFoundError) Error() string {
	return fmt.Sprintf("wikisync: text %q not found in page; current content begins: %q",
		e.SearchText, e.Excerpt)
}

// AmbiguousMatchError is returned when the search text occurs more than once
// and the caller did not ask to replace all occurrences. Hits is bounded;
// Total carries the full occurrence count.
type AmbiguousMatchError struct {
	SearchText string
	Hits       []LineHit
	Total      int
}

func (e *AmbiguousMatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "wikisync: text %q occurs %d times; use replace_all or narrow the search text. Matches:",
		e.SearchText, e.Total)
	for _, h := range e.Hits {
		fmt.Fprintf(&b, " line %d: %q;", h.Line, h.Text)
	}
	if e.Total > len(e.Hits) {
		fmt.Fprintf(&b, " and %d more", e.Total-len(e.Hits))
	}
	return strings.TrimSuffix(b.String(), ";")
}
