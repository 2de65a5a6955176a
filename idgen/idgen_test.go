package idgen

import (
	"sort"
	"strings"
	"testing"
)

func TestNanoID(t *testing.T) {
	for _, length := range []int{4, 8, 16, 32} {
		id := NanoID(length)()
		if len(id) != length {
			t.Errorf("NanoID(%d) produced %q (length %d)", length, id, len(id))
		}
		for _, c := range id {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')) {
				t.Errorf("NanoID(%d): character %q outside base-36 alphabet in %q", length, c, id)
			}
		}
	}
}

func TestNanoID_NoCollisions(t *testing.T) {
	gen := NanoID(12)
	seen := make(map[string]struct{}, 2000)
	for i := 0; i < 2000; i++ {
		id := gen()
		if _, dup := seen[id]; dup {
			t.Fatalf("collision after %d IDs: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestUUIDv7_Canonical(t *testing.T) {
	id := UUIDv7()()
	if len(id) != 36 || strings.Count(id, "-") != 4 {
		t.Fatalf("not a canonical UUID: %q", id)
	}
	if id[14] != '7' {
		t.Fatalf("version nibble = %c, want 7 (%q)", id[14], id)
	}
}

// Audit entry IDs double as a secondary sort key, so consecutive IDs from
// one process must compare in creation order.
func TestUUIDv7_Monotonic(t *testing.T) {
	gen := UUIDv7()
	ids := make([]string, 256)
	for i := range ids {
		ids[i] = gen()
	}
	if !sort.StringsAreSorted(ids) {
		t.Fatal("UUIDv7 sequence is not monotonically increasing")
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("req_", NanoID(8))()
	if !strings.HasPrefix(id, "req_") || len(id) != len("req_")+8 {
		t.Fatalf("Prefixed ID = %q", id)
	}
}

func TestDefaultParses(t *testing.T) {
	id := New()
	got, err := Parse(id)
	if err != nil {
		t.Fatalf("Parse(New()) = %v", err)
	}
	if got != id {
		t.Fatalf("Parse round trip: got %q, want %q", got, id)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"", "req_abc123", "0190-not-a-uuid"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", s)
		}
	}
}
