package callengine

import (
	"context"

	"github.com/tandemtalk/server/internal/store"
)

// JoinInfo contains credentials needed to join a call's media room.
type JoinInfo struct {
	URL      string `json:"url"`       // media WebSocket URL
	Token    string `json:"token"`     // media access token
	RoomName string `json:"room_name"` // media room name
	Identity string `json:"identity"`  // user's identity in the room
}

// Engine abstracts the media backend for practice calls.
type Engine interface {
	// CreateCall creates a media room for the call.
	// Returns the external room ID stored in Call.ExternalRoomID.
	CreateCall(ctx context.Context, call *store.Call) (externalRoomID string, err error)

	// EndCall terminates the media room.
	EndCall(ctx context.Context, call *store.Call) error

	// GenerateJoinInfo creates join credentials for a user.
	GenerateJoinInfo(ctx context.Context, call *store.Call, userID int64, username string) (*JoinInfo, error)
}
