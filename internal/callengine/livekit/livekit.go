package livekit

import (
	"context"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/tandemtalk/server/internal/callengine"
	"github.com/tandemtalk/server/internal/store"
)

// Engine implements callengine.Engine using LiveKit as the media backend.
type Engine struct {
	apiKey    string
	apiSecret string
	wsURL     string
}

// New creates a new LiveKit engine.
func New(apiKey, apiSecret, wsURL string) *Engine {
	return &Engine{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		wsURL:     wsURL,
	}
}

// CreateCall names the LiveKit room for the call. LiveKit creates rooms
// on-demand when the first participant joins.
func (e *Engine) CreateCall(_ context.Context, call *store.Call) (string, error) {
	return fmt.Sprintf("tandemtalk-call-%s", call.ID), nil
}

// EndCall terminates the LiveKit room. Rooms auto-expire when empty, so no
// API call is needed here.
func (e *Engine) EndCall(_ context.Context, _ *store.Call) error {
	return nil
}

// GenerateJoinInfo creates join credentials for a user to join the call.
func (e *Engine) GenerateJoinInfo(_ context.Context, call *store.Call, userID int64, username string) (*callengine.JoinInfo, error) {
	if call.ExternalRoomID == nil {
		return nil, fmt.Errorf("call has no external room ID")
	}

	identity := fmt.Sprintf("user-%d", userID)

	at := auth.NewAccessToken(e.apiKey, e.apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     *call.ExternalRoomID,
	}
	at.SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(username).
		SetValidFor(time.Hour)

	token, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return &callengine.JoinInfo{
		URL:      e.wsURL,
		Token:    token,
		RoomName: *call.ExternalRoomID,
		Identity: identity,
	}, nil
}

// Ensure Engine implements callengine.Engine
var _ callengine.Engine = (*Engine)(nil)
