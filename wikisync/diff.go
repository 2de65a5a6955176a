// CLAUDE:SUMMARY Line-level before/after rendering of a replacement: one hunk per changed line, with line number.
// CLAUDE:EXPORTS RenderDiff
package wikisync

import (
	"fmt"
	"strings"
)

// RenderDiff renders the lines a replacement touched: for every line of
// oldContent containing searchText, one hunk with the 1-based line number,
// the original line prefixed "-" and the same-numbered line of newContent
// prefixed "+". Line granularity only. A replacement whose new text spans a
// different number of lines shifts everything below it, which is out of
// reach for this renderer; targeted single-line edits are what it is for.
func RenderDiff(oldContent, newContent, searchText string) string {
	if searchText == "" {
		return ""
	}
	oldLines := strings.Split(oldContent, "\n")
	newLines := strings.Split(newContent, "\n")

	var b strings.Builder
	for i, line := range oldLines {
		if !strings.Contains(line, searchText) {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Line %d:\n- %s", i+1, line)
		if i < len(newLines) {
			fmt.Fprintf(&b, "\n+ %s", newLines[i])
		}
	}
	return b.String()
}
