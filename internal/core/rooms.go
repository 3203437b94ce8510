package core

// Rooms tracks, per chat, which connections should receive fan-out for that
// chat. Entries are transient: membership is rebuilt by clients rejoining
// after reconnect. Owned by the hub, mutated only from the hub goroutine.
type Rooms struct {
	members map[int64]map[*Client]struct{}
}

// NewRooms constructs an empty membership table.
func NewRooms() *Rooms {
	return &Rooms{members: make(map[int64]map[*Client]struct{})}
}

// Join subscribes the connection to the chat. Returns false when the
// connection was already a member (a repeated join is a no-op).
func (r *Rooms) Join(chatID int64, c *Client) bool {
	set, ok := r.members[chatID]
	if !ok {
		set = make(map[*Client]struct{})
		r.members[chatID] = set
	}
	if _, exists := set[c]; exists {
		return false
	}
	set[c] = struct{}{}
	return true
}

// Leave unsubscribes the connection from the chat. No error if absent;
// an empty chat entry is dropped.
func (r *Rooms) Leave(chatID int64, c *Client) {
	set, ok := r.members[chatID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.members, chatID)
	}
}

// Contains reports whether the connection is subscribed to the chat.
func (r *Rooms) Contains(chatID int64, c *Client) bool {
	_, ok := r.members[chatID][c]
	return ok
}

// Members returns the connections currently subscribed to the chat.
func (r *Rooms) Members(chatID int64) []*Client {
	set := r.members[chatID]
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	return clients
}

// RemoveClient drops the connection from every chat it belonged to.
// Called on disconnect, before any presence broadcast.
func (r *Rooms) RemoveClient(c *Client) {
	for chatID, set := range r.members {
		if _, ok := set[c]; !ok {
			continue
		}
		delete(set, c)
		if len(set) == 0 {
			delete(r.members, chatID)
		}
	}
}
