// Package proto defines the wire protocol: a closed set of tagged payloads
// exchanged over the WebSocket connection. Payload shapes are validated at the
// transport boundary before dispatch.
package proto

import "encoding/json"

// Inbound is the envelope for frames coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeJoinChat    = "join_chat"
	InboundTypeLeaveChat   = "leave_chat"
	InboundTypeSendMessage = "send_message"
	InboundTypeTyping      = "typing"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventReceiveMessage    = "receive_message"
	EventHistory           = "history"
	EventUsersOnline       = "users_online"
	EventUserTyping        = "user_typing"
	EventUpdateChatPreview = "update_chat_preview"
	EventChatCreated       = "chat_created"
	EventCallIncoming      = "call_incoming"
	EventCallAccepted      = "call_accepted"
	EventCallRejected      = "call_rejected"
	EventCallEnded         = "call_ended"
)

// JoinChatData subscribes the connection to a chat's fan-out.
type JoinChatData struct {
	ChatID int64 `json:"chat_id"`
}

// SendMessageData is a chat message from the client. Ref is an optional
// correlation token echoed back to the originating connection; it is never
// the stored message identifier.
type SendMessageData struct {
	ChatID  int64  `json:"chat_id"`
	Content string `json:"content"`
	Ref     string `json:"ref,omitempty"`
}

// TypingData is an ephemeral typing signal.
type TypingData struct {
	ChatID   int64 `json:"chat_id"`
	IsTyping bool  `json:"is_typing"`
}

// Outbound is the envelope for frames sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// MessagePayload is a persisted message as seen on the wire.
type MessagePayload struct {
	ID       int64  `json:"id"`
	ChatID   int64  `json:"chat_id"`
	SenderID int64  `json:"sender_id"`
	Content  string `json:"content"`
	Read     bool   `json:"read,omitempty"`
	TS       int64  `json:"ts"`
}

// EventReceiveMessageData is the fan-out of a persisted message.
type EventReceiveMessageData struct {
	ChatID  int64          `json:"chat_id"`
	Message MessagePayload `json:"message"`
	Ref     string         `json:"ref,omitempty"`
}

// EventHistoryData delivers recent messages on join.
type EventHistoryData struct {
	ChatID   int64            `json:"chat_id"`
	Messages []MessagePayload `json:"messages"`
}

// EventUsersOnlineData is the presence snapshot.
type EventUsersOnlineData struct {
	UserIDs []int64 `json:"user_ids"`
}

// EventUserTypingData relays a typing signal.
type EventUserTypingData struct {
	ChatID   int64  `json:"chat_id"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

// EventChatPreviewData is the denormalized listing update.
type EventChatPreviewData struct {
	ChatID      int64  `json:"chat_id"`
	LastMessage string `json:"last_message"`
	SenderID    int64  `json:"sender_id"`
	TS          int64  `json:"ts"`
}

// EventChatCreatedData notifies a user a chat now exists for them.
type EventChatCreatedData struct {
	ChatID int64 `json:"chat_id"`
}

// EventCallData describes a call-signaling event.
type EventCallData struct {
	CallID       string `json:"call_id"`
	ChatID       int64  `json:"chat_id"`
	FromUserID   int64  `json:"from_user_id"`
	FromUsername string `json:"from_username,omitempty"`
	Reason       string `json:"reason,omitempty"`
	TS           int64  `json:"ts,omitempty"`

	// Join credentials, present on call_accepted.
	JoinURL      string `json:"join_url,omitempty"`
	JoinToken    string `json:"join_token,omitempty"`
	JoinRoom     string `json:"join_room,omitempty"`
	JoinIdentity string `json:"join_identity,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
