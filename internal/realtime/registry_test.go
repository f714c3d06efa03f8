// internal/realtime/registry_test.go
package realtime

import "testing"

func TestRegistryOpenIdentifyClose(t *testing.T) {
	reg := NewRegistry()

	connID := reg.Open(&fakeSender{}, "")
	if connID == "" {
		t.Fatal("expected a connection id")
	}
	if reg.IsOnline("alice") {
		t.Error("user should not be online before identify")
	}

	first, err := reg.Identify(connID, "alice")
	if err != nil {
		t.Fatalf("identify failed: %v", err)
	}
	if !first {
		t.Error("first connection should report the online boundary")
	}
	if !reg.IsOnline("alice") {
		t.Error("user should be online after identify")
	}

	userID, last := reg.Close(connID)
	if userID != "alice" || !last {
		t.Errorf("expected (alice, true), got (%s, %v)", userID, last)
	}
	if reg.IsOnline("alice") {
		t.Error("user should be offline after closing last connection")
	}
}

func TestRegistryIdentifyIdempotent(t *testing.T) {
	reg := NewRegistry()
	connID := reg.Open(&fakeSender{}, "")

	if _, err := reg.Identify(connID, "alice"); err != nil {
		t.Fatalf("identify failed: %v", err)
	}

	// Same user again: no-op, not a boundary.
	first, err := reg.Identify(connID, "alice")
	if err != nil {
		t.Errorf("re-identify to same user should succeed, got %v", err)
	}
	if first {
		t.Error("re-identify must not report the online boundary again")
	}
}

func TestRegistryIdentityFixedOnceSet(t *testing.T) {
	reg := NewRegistry()
	connID := reg.Open(&fakeSender{}, "")

	if _, err := reg.Identify(connID, "alice"); err != nil {
		t.Fatalf("identify failed: %v", err)
	}

	if _, err := reg.Identify(connID, "mallory"); err != ErrInvalidState {
		t.Errorf("rebinding to a different user should return ErrInvalidState, got %v", err)
	}
	if conns := reg.ConnectionsFor("mallory"); len(conns) != 0 {
		t.Errorf("mallory should have no connections, got %d", len(conns))
	}
	if !reg.IsOnline("alice") {
		t.Error("alice should remain online")
	}
}

func TestRegistryIdentifyPinnedSubject(t *testing.T) {
	reg := NewRegistry()
	connID := reg.Open(&fakeSender{}, "alice")

	if _, err := reg.Identify(connID, "mallory"); err != ErrNotAuthorized {
		t.Errorf("claiming another identity should return ErrNotAuthorized, got %v", err)
	}
	if _, err := reg.Identify(connID, "alice"); err != nil {
		t.Errorf("claiming the pinned identity should succeed, got %v", err)
	}
}

func TestRegistryMultipleConnections(t *testing.T) {
	reg := NewRegistry()

	c1 := reg.Open(&fakeSender{}, "")
	c2 := reg.Open(&fakeSender{}, "")

	first, _ := reg.Identify(c1, "alice")
	if !first {
		t.Error("c1 should be the online boundary")
	}
	first, _ = reg.Identify(c2, "alice")
	if first {
		t.Error("c2 should not be a boundary")
	}

	if got := len(reg.ConnectionsFor("alice")); got != 2 {
		t.Fatalf("expected 2 connections, got %d", got)
	}

	// Closing one of two must not report last.
	if _, last := reg.Close(c1); last {
		t.Error("closing a non-last connection must not report last")
	}
	if _, last := reg.Close(c2); !last {
		t.Error("closing the final connection must report last")
	}
}

func TestRegistryCloseUnknownConn(t *testing.T) {
	reg := NewRegistry()

	userID, last := reg.Close("no-such-conn")
	if userID != "" || last {
		t.Errorf("closing unknown conn should be a no-op, got (%s, %v)", userID, last)
	}
}

func TestRegistryCloseUnidentifiedConn(t *testing.T) {
	reg := NewRegistry()
	connID := reg.Open(&fakeSender{}, "")

	userID, last := reg.Close(connID)
	if userID != "" || last {
		t.Errorf("closing unidentified conn should report no user, got (%s, %v)", userID, last)
	}
	if reg.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections, got %d", reg.ConnectionCount())
	}
}

func TestRegistryConnectionsForUnknownUser(t *testing.T) {
	reg := NewRegistry()
	if conns := reg.ConnectionsFor("ghost"); len(conns) != 0 {
		t.Errorf("expected empty set for unknown user, got %v", conns)
	}
}

func TestRegistrySendToUserClosesFailedConn(t *testing.T) {
	reg := NewRegistry()

	good := &fakeSender{}
	bad := &fakeSender{failSend: true}

	c1 := reg.Open(good, "")
	c2 := reg.Open(bad, "")
	reg.Identify(c1, "alice")
	reg.Identify(c2, "alice")

	delivered := reg.SendToUser("alice", NewStatusChangeMessage("bob", true))
	if delivered != 1 {
		t.Errorf("expected 1 delivery, got %d", delivered)
	}
	if !bad.closed {
		t.Error("failed connection should be closed")
	}
	if good.closed {
		t.Error("healthy connection must not be closed")
	}
}
