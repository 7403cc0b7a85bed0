package idgen

import (
	"sort"
	"strings"
	"testing"
)

func TestUUIDv7_Unique(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := gen()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestUUIDv7_Sortable(t *testing.T) {
	// WHAT: consecutive IDs sort in creation order.
	// WHY: imports are listed newest-last by primary key.
	gen := UUIDv7()
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = gen()
	}
	if !sort.StringsAreSorted(ids) {
		t.Fatal("UUIDv7 ids are not time-ordered")
	}
}

func TestPrefixed(t *testing.T) {
	id := Import()
	if !strings.HasPrefix(id, "imp_") {
		t.Fatalf("Import() = %q", id)
	}
	if _, err := Parse(id); err != nil {
		t.Fatalf("Parse(%q): %v", id, err)
	}
	if got := Prefixed("x-", func() string { return "1" })(); got != "x-1" {
		t.Fatalf("Prefixed = %q", got)
	}
}

func TestParse(t *testing.T) {
	if _, err := Parse(New()); err != nil {
		t.Fatal(err)
	}
	for _, bad := range []string{"", "imp_nope", "not-a-uuid"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q) succeeded", bad)
		}
	}
}
