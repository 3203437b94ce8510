package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DirectKey builds the canonical pair key for a chat, lower user id first.
func DirectKey(userA, userB int64) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("dm:%d:%d", userA, userB)
}

// User represents a registered user.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Online       bool
	LastSeenAt   *time.Time
	CreatedAt    time.Time
}

// Chat is a two-participant conversation. The participant pair is fixed at
// creation; DirectKey ("dm:{minUserId}:{maxUserId}") deduplicates pairs.
type Chat struct {
	ID        int64
	UserAID   int64
	UserBID   int64
	DirectKey string
	CreatedAt time.Time

	// Denormalized last-message snapshot for listing screens.
	LastMessageBody *string
	LastMessageFrom *int64
	LastMessageAt   *time.Time
}

// HasParticipant reports whether userID is one of the chat's two participants.
func (c *Chat) HasParticipant(userID int64) bool {
	return c.UserAID == userID || c.UserBID == userID
}

// OtherParticipant returns the participant that is not userID.
func (c *Chat) OtherParticipant(userID int64) int64 {
	if c.UserAID == userID {
		return c.UserBID
	}
	return c.UserAID
}

// Message is a persisted chat message. ID and CreatedAt are assigned by the
// store at insert time and are the only stored identity of a message.
type Message struct {
	ID        int64
	ChatID    int64
	SenderID  int64
	Body      string
	Read      bool
	CreatedAt time.Time
}

// ChatSnapshot is the denormalized last-message view pushed to listing screens.
type ChatSnapshot struct {
	Body     string
	SenderID int64
	SentAt   time.Time
}

// PartnerStatus defines the state of a language-partner link.
type PartnerStatus string

const (
	PartnerStatusPending  PartnerStatus = "pending"
	PartnerStatusAccepted PartnerStatus = "accepted"
	PartnerStatusDeclined PartnerStatus = "declined"
)

// Partner represents a language-partner link between two users.
type Partner struct {
	ID        int64
	UserID    int64
	PartnerID int64
	Status    PartnerStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CallStatus defines call status.
type CallStatus string

const (
	CallStatusRinging CallStatus = "ringing"
	CallStatusActive  CallStatus = "active"
	CallStatusEnded   CallStatus = "ended"
)

// Call represents a practice call between two chat partners.
type Call struct {
	ID              string // UUID
	ChatID          int64
	InitiatorUserID int64
	CalleeUserID    int64
	Status          CallStatus
	ExternalRoomID  *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	EndedAt         *time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SetUserOnlineStatus records whether the user is online and, when going
	// offline, the last-seen timestamp.
	SetUserOnlineStatus(ctx context.Context, userID int64, online bool, lastSeen time.Time) error

	// SearchUsers searches for users by username prefix.
	SearchUsers(ctx context.Context, query string) ([]*User, error)
}

// ChatStore handles chat persistence.
type ChatStore interface {
	// CreateChat creates the chat for a user pair, deduplicated by directKey.
	// Returns the existing chat when the pair already has one.
	CreateChat(ctx context.Context, directKey string, userAID, userBID int64) (*Chat, error)

	// GetChatByID retrieves a chat by ID. Returns ErrNotFound when absent.
	GetChatByID(ctx context.Context, id int64) (*Chat, error)

	// GetChatByDirectKey retrieves a chat by its direct key.
	GetChatByDirectKey(ctx context.Context, directKey string) (*Chat, error)

	// ListChats lists chats the user participates in, most recent first.
	ListChats(ctx context.Context, userID int64) ([]*Chat, error)

	// UpdateChatLastMessage updates the chat's denormalized snapshot.
	UpdateChatLastMessage(ctx context.Context, chatID int64, snap ChatSnapshot) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// InsertMessage persists a message and returns it with the store-assigned
	// id and creation timestamp.
	InsertMessage(ctx context.Context, chatID, senderID int64, body string) (*Message, error)

	// ListMessages retrieves messages from a chat with pagination.
	// If beforeID is provided, returns messages older than that ID.
	// Limit determines max number of messages to return.
	ListMessages(ctx context.Context, chatID int64, limit int, beforeID *int64) ([]*Message, error)

	// MarkMessagesRead marks every message in the chat not sent by readerID as read.
	MarkMessagesRead(ctx context.Context, chatID, readerID int64) error
}

// PartnerStore handles partner-link persistence.
type PartnerStore interface {
	// CreatePartnerRequest creates a new pending partner request.
	CreatePartnerRequest(ctx context.Context, userID, partnerID int64) (*Partner, error)

	// UpdatePartnerStatus updates the status of a partner link.
	UpdatePartnerStatus(ctx context.Context, userID, partnerID int64, status PartnerStatus) error

	// GetPartnerLink retrieves the link between two users in either direction.
	GetPartnerLink(ctx context.Context, userID, partnerID int64) (*Partner, error)

	// ListPartners lists links for a user, optionally filtered by status.
	ListPartners(ctx context.Context, userID int64, status *PartnerStatus) ([]*Partner, error)

	// ArePartners checks for an accepted link in either direction.
	ArePartners(ctx context.Context, userID, partnerID int64) (bool, error)
}

// CallStore handles call persistence.
type CallStore interface {
	// CreateCall creates a new call.
	CreateCall(ctx context.Context, call *Call) error

	// UpdateCall updates an existing call.
	UpdateCall(ctx context.Context, call *Call) error

	// GetCall retrieves a call by ID.
	GetCall(ctx context.Context, id string) (*Call, error)

	// GetActiveCallForChat returns a ringing or active call for a chat, or
	// ErrNotFound when none exists.
	GetActiveCallForChat(ctx context.Context, chatID int64) (*Call, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ChatStore
	MessageStore
	PartnerStore
	CallStore

	// Close closes the underlying database connection.
	Close() error
}
