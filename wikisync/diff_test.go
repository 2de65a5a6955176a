package wikisync

import (
	"strings"
	"testing"
)

func TestRenderDiff_SingleHunk(t *testing.T) {
	// WHAT: A one-line replacement renders one hunk with line number,
	// removed line and added line.
	// WHY: The diff is the caller's audit record of what actually changed.
	oldContent := "Last Verified: November 5, 2025\nEnvironment: Dev"
	newContent := "Last Verified: November 10, 2025\nEnvironment: Dev"

	got := RenderDiff(oldContent, newContent, "November 5, 2025")
	want := "Line 1:\n- Last Verified: November 5, 2025\n+ Last Verified: November 10, 2025"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderDiff_ThreeHunks(t *testing.T) {
	// WHAT: Replacing all occurrences across three lines renders three
	// hunks.
	oldContent := strings.Join([]string{
		"# Sprint Checklist",
		"- TODO deploy service",
		"- done: schema migration",
		"",
		"- TODO update runbook",
		"- reviewed by ops",
		"",
		"## Notes",
		"TODO schedule retro",
	}, "\n")
	newContent := strings.ReplaceAll(oldContent, "TODO", "DONE")

	got := RenderDiff(oldContent, newContent, "TODO")
	if n := strings.Count(got, "Line "); n != 3 {
		t.Fatalf("hunks = %d, want 3\n%s", n, got)
	}
	for _, want := range []string{"Line 2:", "Line 5:", "Line 9:", "- TODO deploy service", "+ DONE deploy service"} {
		if !strings.Contains(got, want) {
			t.Errorf("diff missing %q:\n%s", want, got)
		}
	}
}

func TestRenderDiff_NoMatches(t *testing.T) {
	// WHAT: No line contains the search text, nothing is rendered.
	if got := RenderDiff("a\nb", "a\nb", "zzz"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestRenderDiff_LastLineWithoutNewline(t *testing.T) {
	// WHAT: A match on the final, unterminated line still renders.
	got := RenderDiff("first\nlast old", "first\nlast new", "old")
	want := "Line 2:\n- last old\n+ last new"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}
