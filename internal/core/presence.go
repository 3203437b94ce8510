package core

import "time"

// Presence is the authoritative in-memory record of which user identities
// currently have at least one open connection. It is owned by the hub and
// mutated only from the hub goroutine, so it carries no lock. Reads taken
// through the hub are point-in-time snapshots: a connection may drop right
// after a query returns, which is acceptable and expected.
type Presence struct {
	conns    map[int64]map[string]struct{}
	lastSeen map[int64]time.Time
}

// NewPresence constructs an empty presence registry.
func NewPresence() *Presence {
	return &Presence{
		conns:    make(map[int64]map[string]struct{}),
		lastSeen: make(map[int64]time.Time),
	}
}

// Register adds a connection under the identity. Idempotent for the same
// connection id. Returns true when the identity transitions offline -> online.
func (p *Presence) Register(userID int64, connID string) bool {
	set, ok := p.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		p.conns[userID] = set
	}
	cameOnline := len(set) == 0
	set[connID] = struct{}{}
	return cameOnline
}

// Deregister removes one connection from the identity's set. Idempotent.
// Returns true when the identity transitions online -> offline, in which case
// the last-seen timestamp is recorded.
func (p *Presence) Deregister(userID int64, connID string) bool {
	set, ok := p.conns[userID]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}
	delete(set, connID)
	if len(set) > 0 {
		return false
	}
	delete(p.conns, userID)
	p.lastSeen[userID] = time.Now()
	return true
}

// IsOnline reports whether the identity has at least one open connection.
func (p *Presence) IsOnline(userID int64) bool {
	return len(p.conns[userID]) > 0
}

// OnlineUsers returns the identities currently online.
func (p *Presence) OnlineUsers() []int64 {
	users := make([]int64, 0, len(p.conns))
	for userID := range p.conns {
		users = append(users, userID)
	}
	return users
}

// Connections returns the connection ids open for the identity.
func (p *Presence) Connections(userID int64) []string {
	set := p.conns[userID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// LastSeen returns when the identity last went offline, if known.
func (p *Presence) LastSeen(userID int64) (time.Time, bool) {
	ts, ok := p.lastSeen[userID]
	return ts, ok
}
