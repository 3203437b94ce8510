package core

import (
	"github.com/tandemtalk/server/internal/callengine"
	"github.com/tandemtalk/server/internal/store"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventReceiveMessage delivers a persisted chat message to chat members.
	EventReceiveMessage EventKind = iota
	// EventHistory delivers recent messages to a client upon joining a chat.
	EventHistory
	// EventUsersOnline delivers the current online-user snapshot after a
	// presence transition.
	EventUsersOnline
	// EventUserTyping relays a typing indicator to chat members.
	EventUserTyping
	// EventChatPreview updates the denormalized last-message snapshot on
	// listing screens.
	EventChatPreview
	// EventChatCreated notifies a user that a chat now exists for them.
	EventChatCreated
	// EventError notifies a client about a rejected operation.
	EventError

	// EventCallIncoming notifies the callee of an incoming call.
	EventCallIncoming
	// EventCallAccepted notifies the initiator that the call was accepted and
	// carries join credentials.
	EventCallAccepted
	// EventCallRejected notifies the initiator that the call was rejected.
	EventCallRejected
	// EventCallEnded notifies both participants that the call has ended.
	EventCallEnded
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind   EventKind
	ChatID int64

	// Message is set for EventReceiveMessage.
	Message *store.Message
	// Ref carries the sender's correlation token; set only on the copy
	// delivered to the originating connection.
	Ref string

	// Messages is set for EventHistory.
	Messages []*store.Message

	// UserIDs is the online snapshot for EventUsersOnline.
	UserIDs []int64

	// UserID/Username/IsTyping are set for EventUserTyping.
	UserID   int64
	Username string
	IsTyping bool

	// Preview is set for EventChatPreview.
	Preview *store.ChatSnapshot

	// Call is set for call events.
	Call *CallEvent

	// Error is set for EventError.
	Error *CoreError
}

// CallEvent holds data specific to call events.
type CallEvent struct {
	CallID       string
	ChatID       int64
	FromUserID   int64
	FromUsername string
	Reason       string
	// JoinInfo carries media credentials on EventCallAccepted.
	JoinInfo *callengine.JoinInfo
	CreatedAt int64 // Unix timestamp
}
