package realtime

import (
	"reflect"
	"testing"
)

func TestPresence_MarkPresentIsIdempotent(t *testing.T) {
	p := NewPresence()
	p.MarkPresent("u1")
	once := p.Snapshot()

	p.MarkPresent("u1")
	twice := p.Snapshot()

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("expected identical snapshots, got %v and %v", once, twice)
	}
	if len(twice) != 1 || twice[0] != "u1" {
		t.Fatalf("unexpected snapshot: %v", twice)
	}
}

func TestPresence_MarkAbsentIsIdempotent(t *testing.T) {
	p := NewPresence()
	p.MarkPresent("u1")
	p.MarkAbsent("u1")
	p.MarkAbsent("u1") // removing a non-member must not panic

	if got := p.Snapshot(); len(got) != 0 {
		t.Fatalf("expected empty snapshot, got %v", got)
	}
}

func TestPresence_SnapshotIsSorted(t *testing.T) {
	p := NewPresence()
	for _, id := range []string{"u3", "u1", "u2"} {
		p.MarkPresent(id)
	}

	want := []string{"u1", "u2", "u3"}
	if got := p.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
