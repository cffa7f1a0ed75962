package realtime

import "testing"

func TestRegistry_ResolveReturnsMostRecentRegistration(t *testing.T) {
	reg := NewRegistry()
	first := newFakeConn()
	second := newFakeConn()

	reg.Register("u1", first)
	if got := reg.Resolve([]string{"u1"})[0]; got != first {
		t.Fatal("expected first connection after initial register")
	}

	// A second connection from the same user overwrites the first without
	// the first disconnecting.
	reg.Register("u1", second)
	if got := reg.Resolve([]string{"u1"})[0]; got != second {
		t.Fatal("expected second connection after overwrite")
	}

	reg.Unregister("u1")
	if got := reg.Resolve([]string{"u1"})[0]; got != nil {
		t.Fatal("expected nil after unregister")
	}
}

func TestRegistry_ResolvePreservesOrderAndDuplicates(t *testing.T) {
	reg := NewRegistry()
	c1 := newFakeConn()
	c2 := newFakeConn()
	reg.Register("u1", c1)
	reg.Register("u2", c2)

	conns := reg.Resolve([]string{"u2", "u1", "u2", "u3"})
	if len(conns) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(conns))
	}
	if conns[0] != c2 || conns[1] != c1 || conns[2] != c2 {
		t.Error("resolve did not preserve input order")
	}
	if conns[3] != nil {
		t.Error("expected nil for never-registered user")
	}
}

func TestRegistry_UnregisterUnknownIsNoop(t *testing.T) {
	reg := NewRegistry()
	reg.Unregister("u1") // must not panic

	if n := reg.Count(); n != 0 {
		t.Fatalf("expected empty registry, got %d", n)
	}
}

func TestRegistry_UnregisterAfterOverwriteDropsUserEntirely(t *testing.T) {
	reg := NewRegistry()
	first := newFakeConn()
	second := newFakeConn()

	reg.Register("u1", first)
	reg.Register("u1", second)

	// Disconnect of the second connection removes the user's only binding,
	// even though the first connection's handle is technically still live.
	reg.Unregister("u1")
	if got := reg.Resolve([]string{"u1"})[0]; got != nil {
		t.Fatal("expected user fully unregistered")
	}
}

func TestRegistry_ConnsSnapshot(t *testing.T) {
	reg := NewRegistry()
	reg.Register("u1", newFakeConn())
	reg.Register("u2", newFakeConn())

	if got := len(reg.Conns()); got != 2 {
		t.Fatalf("expected 2 connections, got %d", got)
	}
	if reg.Count() != 2 {
		t.Fatalf("expected count 2, got %d", reg.Count())
	}
}
