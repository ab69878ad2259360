package cmd

import (
	"regexp"
	"testing"
)

var uuidV7 = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestNewSnapshotIDIsUUIDv7(t *testing.T) {
	id, err := newSnapshotID()
	if err != nil {
		t.Fatalf("newSnapshotID: %v", err)
	}
	if !uuidV7.MatchString(id) {
		t.Fatalf("snapshot id is not a v7 UUID: %q", id)
	}
}

func TestNewSnapshotIDUniqueAndSortable(t *testing.T) {
	prev := ""
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		id, err := newSnapshotID()
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("duplicate snapshot id generated: %q", id)
		}
		seen[id] = true
		if prev != "" && id <= prev {
			t.Fatalf("expected increasing lexical order: %q then %q", prev, id)
		}
		prev = id
	}
}
