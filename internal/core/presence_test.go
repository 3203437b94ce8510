package core

import "testing"

func TestPresenceRegisterIdempotent(t *testing.T) {
	p := NewPresence()

	if !p.Register(1, "c1") {
		t.Fatalf("first connection should be an offline->online transition")
	}
	if p.Register(1, "c1") {
		t.Fatalf("re-registering the same connection is not a transition")
	}
	if p.Register(1, "c2") {
		t.Fatalf("second connection of an online user is not a transition")
	}
	if !p.IsOnline(1) {
		t.Fatalf("user should be online")
	}
	if got := len(p.Connections(1)); got != 2 {
		t.Fatalf("expected 2 connections, got %d", got)
	}
}

func TestPresenceOfflineOnLastDeregister(t *testing.T) {
	p := NewPresence()
	p.Register(1, "c1")
	p.Register(1, "c2")

	if p.Deregister(1, "c1") {
		t.Fatalf("user still has a connection, not a transition")
	}
	if !p.Deregister(1, "c2") {
		t.Fatalf("last connection gone, expected online->offline transition")
	}
	if p.IsOnline(1) {
		t.Fatalf("user should be offline")
	}
	if _, ok := p.LastSeen(1); !ok {
		t.Fatalf("expected last-seen timestamp after going offline")
	}

	// Deregistering again is a no-op.
	if p.Deregister(1, "c2") {
		t.Fatalf("double deregister must not report a transition")
	}
}

func TestPresenceOnlineUsers(t *testing.T) {
	p := NewPresence()
	p.Register(1, "c1")
	p.Register(2, "c2")
	p.Register(2, "c3")

	online := p.OnlineUsers()
	if len(online) != 2 {
		t.Fatalf("expected 2 online users, got %v", online)
	}
	if p.IsOnline(3) {
		t.Fatalf("unknown user reported online")
	}
}
