package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinChat subscribes the connection to a chat's fan-out.
	CommandJoinChat CommandKind = iota
	// CommandLeaveChat unsubscribes the connection from a chat.
	CommandLeaveChat
	// CommandSendMessage delivers a chat message to chat participants.
	CommandSendMessage
	// CommandTyping relays an ephemeral typing indicator.
	CommandTyping
)

// Command represents an action requested by a client.
type Command struct {
	Kind   CommandKind
	ChatID int64

	// Body is the message text for CommandSendMessage.
	Body string
	// Ref is an optional client correlation token echoed back on the
	// originating connection's copy of the delivered message. Never stored.
	Ref string

	// IsTyping is the typing state for CommandTyping.
	IsTyping bool
}
