package core

// Client is one live connection as seen by the core layer. A user with
// several tabs or devices has several Clients sharing one UserID.
type Client struct {
	// ID is the connection identifier, unique per transport connection.
	ID string
	// UserID is the identity bound at authentication, immutable for the
	// connection's life.
	UserID   int64
	Username string

	Commands chan *Command
	Events   chan *Event

	// done is closed by the hub when the client is unregistered.
	done chan struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(id string, userID int64, username string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 16
	}
	return &Client{
		ID:       id,
		UserID:   userID,
		Username: username,
		Commands: make(chan *Command, buffer),
		Events:   make(chan *Event, buffer),
		done:     make(chan struct{}),
	}
}
