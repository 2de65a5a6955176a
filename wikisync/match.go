// CLAUDE:SUMMARY Exact substring occurrence scan: count plus per-line hit locations, and the bounded excerpt used in not-found errors.
// CLAUDE:EXPORTS Locate, MatchReport
package wikisync

import (
	"strings"
	"unicode/utf8"
)

// MatchReport is the outcome of scanning content for a search text.
type MatchReport struct {
	// Count is the number of non-overlapping exact occurrences.
	Count int
	// Hits locates each occurrence by the line its first character falls on.
	// Two occurrences on one line produce two hits with the same line number.
	Hits []LineHit
}

// Locate scans content for exact, literal occurrences of searchText.
// Regex metacharacters have no special meaning. An empty searchText
// reports zero occurrences.
func Locate(content, searchText string) MatchReport {
	if searchText == "" {
		return MatchReport{}
	}

	var report MatchReport
	lines := strings.Split(content, "\n")

	offset := 0
	for {
		i := strings.Index(content[offset:], searchText)
		if i < 0 {
			break
		}
		at := offset + i
		line := 1 + strings.Count(content[:at], "\n")
		report.Count++
		report.Hits = append(report.Hits, LineHit{
			Line: line,
			Text: lines[line-1],
		})
		offset = at + len(searchText)
	}
	return report
}

// boundHits caps a hit list for error payloads, truncating each line's text
// so a single long line cannot blow up the message.
func boundHits(hits []LineHit, maxHits, maxLineLen int) []LineHit {
	if len(hits) > maxHits {
		hits = hits[:maxHits]
	}
	out := make([]LineHit, len(hits))
	for i, h := range hits {
		h.Text = truncateRunes(h.Text, maxLineLen)
		out[i] = h
	}
	return out
}

// excerpt returns the head of content, bounded to limit bytes without
// splitting a multi-byte rune, with an ellipsis when truncated.
func excerpt(content string, limit int) string {
	if len(content) <= limit {
		return content
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}

// truncateRunes bounds s to at most n runes.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
