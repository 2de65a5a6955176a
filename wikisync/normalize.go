// CLAUDE:SUMMARY Wiki path normalization: strip .md suffix, dashes to spaces, then decode %2D escapes back to literal dashes.
// CLAUDE:EXPORTS NormalizePagePath
package wikisync

import "strings"

// NormalizePagePath converts a wiki page path from its search-result form
// (dash-separated, .md suffix, literal dashes escaped as %2D) to the
// canonical form the backend's read and write endpoints expect
// (space-separated, no suffix, literal dashes restored).
//
// The three steps run in this exact order: the dash-to-space pass must not
// see the literal dashes, so those stay encoded as %2D until the final
// decode. Canonical input passes through unchanged as long as it carries no
// %2D tokens, so applying the function at every boundary is safe regardless
// of which form the caller supplied.
//
// The mapping is lossy for names where a literal dash was already decoded:
// once a dash and a separator have both become plain text there is no
// marker left to tell them apart. Callers hold the search-result form
// precisely to avoid that.
func NormalizePagePath(path string) string {
	p := strings.TrimSuffix(path, ".md")
	p = strings.ReplaceAll(p, "-", " ")
	p = strings.ReplaceAll(p, "%2D", "-")
	p = strings.ReplaceAll(p, "%2d", "-")
	return p
}
