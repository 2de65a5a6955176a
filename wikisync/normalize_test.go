package wikisync

import "testing"

func TestNormalizePagePath_SearchResultForm(t *testing.T) {
	// WHAT: Full conversion of a search-result path: suffix stripped, dashes
	// to spaces, %2D escapes restored to literal dashes.
	// WHY: Search results hand back this form; the backend only accepts the
	// canonical one.
	got := NormalizePagePath("/Release-Notes/Release_002-[Online-Joining]-%2D-Go%2DLive-Check-List.md")
	want := "/Release Notes/Release_002 [Online Joining] - Go-Live Check List"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizePagePath_StripsSuffix(t *testing.T) {
	// WHAT: A trailing .md suffix is removed; one in the middle is not.
	// WHY: Only the content-type extension is decoration; interior dots are
	// part of the name.
	cases := []struct {
		input string
		want  string
	}{
		{"/Docs/Setup.md", "/Docs/Setup"},
		{"/Docs/v1.md/notes.md", "/Docs/v1.md/notes"},
		{"/Docs/Setup", "/Docs/Setup"},
	}
	for _, tc := range cases {
		if got := NormalizePagePath(tc.input); got != tc.want {
			t.Errorf("NormalizePagePath(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestNormalizePagePath_DashesToSpaces(t *testing.T) {
	// WHAT: Every dash becomes a space.
	// WHY: The search-result form uses dashes where the canonical name has
	// spaces.
	got := NormalizePagePath("/Team-Docs/Sprint-Review")
	if got != "/Team Docs/Sprint Review" {
		t.Errorf("got %q, want %q", got, "/Team Docs/Sprint Review")
	}
}

func TestNormalizePagePath_DecodesLiteralDashCaseInsensitive(t *testing.T) {
	// WHAT: %2D and %2d both decode to a literal dash.
	// WHY: Percent-encoding is case-insensitive; both spellings occur.
	cases := []struct {
		input string
		want  string
	}{
		{"Go%2DLive", "Go-Live"},
		{"Go%2dLive", "Go-Live"},
	}
	for _, tc := range cases {
		if got := NormalizePagePath(tc.input); got != tc.want {
			t.Errorf("NormalizePagePath(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestNormalizePagePath_EscapesSurviveDashPass(t *testing.T) {
	// WHAT: %2D tokens pass through the dash-to-space step untouched and
	// only then become dashes.
	// WHY: Running the decode first would let the dash pass destroy the
	// literal dashes it just restored; the step order is load-bearing.
	got := NormalizePagePath("A%2DB-C.md")
	if got != "A-B C" {
		t.Errorf("got %q, want %q", got, "A-B C")
	}
}

func TestNormalizePagePath_CanonicalFixedPoint(t *testing.T) {
	// WHAT: Canonical paths without escape tokens pass through unchanged,
	// and a second application changes nothing.
	// WHY: The function runs at every boundary regardless of which form the
	// caller supplied, so canonical input must be a fixed point.
	cases := []string{
		"/Release Notes/Sprint Review",
		"Home",
		"/Team/Standup Notes",
		"",
	}
	for _, s := range cases {
		once := NormalizePagePath(s)
		if once != s {
			t.Errorf("NormalizePagePath(%q) = %q, want unchanged", s, once)
		}
		if twice := NormalizePagePath(once); twice != once {
			t.Errorf("NormalizePagePath applied twice on %q: %q != %q", s, twice, once)
		}
	}
}

func TestNormalizePagePath_Idempotent(t *testing.T) {
	// WHAT: Re-normalizing an already-normalized dash-free path is a no-op.
	// WHY: The canonical output carries no suffix and no separator dashes,
	// so the first two steps find nothing the second time through.
	input := "/Wiki-Pages/Deployment-Guide.md"
	once := NormalizePagePath(input)
	twice := NormalizePagePath(once)
	if twice != once {
		t.Errorf("second application changed the result: %q != %q", twice, once)
	}
}
