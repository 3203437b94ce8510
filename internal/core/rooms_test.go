package core

import "testing"

func TestRoomsJoinLeave(t *testing.T) {
	r := NewRooms()
	a := NewClient("a", 1, "alice", 4)
	b := NewClient("b", 2, "bob", 4)

	if !r.Join(1, a) {
		t.Fatalf("first join should report newly added")
	}
	if r.Join(1, a) {
		t.Fatalf("second join of the same connection should be a no-op")
	}
	r.Join(1, b)

	if got := len(r.Members(1)); got != 2 {
		t.Fatalf("expected 2 members, got %d", got)
	}
	if !r.Contains(1, a) {
		t.Fatalf("a should be a member")
	}

	r.Leave(1, a)
	r.Leave(1, a) // idempotent
	if r.Contains(1, a) {
		t.Fatalf("a should have left")
	}

	r.Leave(1, b)
	if got := len(r.Members(1)); got != 0 {
		t.Fatalf("expected empty room, got %d members", got)
	}
	// Leaving an unknown room is a no-op, not an error.
	r.Leave(42, a)
}

func TestRoomsRemoveClientFromAll(t *testing.T) {
	r := NewRooms()
	a := NewClient("a", 1, "alice", 4)
	b := NewClient("b", 2, "bob", 4)

	r.Join(1, a)
	r.Join(2, a)
	r.Join(1, b)

	r.RemoveClient(a)

	if r.Contains(1, a) || r.Contains(2, a) {
		t.Fatalf("a should be removed from every room")
	}
	if !r.Contains(1, b) {
		t.Fatalf("b must be unaffected")
	}
	if got := len(r.Members(2)); got != 0 {
		t.Fatalf("empty room entry should be pruned, got %d members", got)
	}
}
