package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tandemtalk/server/internal/callengine"
	"github.com/tandemtalk/server/internal/store"
)

// Common errors for call operations.
var (
	ErrCallsDisabled  = errors.New("calls are not enabled")
	ErrCallNotFound   = errors.New("call not found")
	ErrCallEnded      = errors.New("call has ended")
	ErrCallInProgress = errors.New("chat already has an active call")
	ErrNotParticipant = errors.New("not a participant of this chat")
	ErrChatNotFound   = errors.New("chat not found")
	ErrNotCallee      = errors.New("only the callee can answer")
)

// Service provides practice-call signaling between the two participants of a
// chat. Media flows through the engine; this service only manages call state
// and join credentials.
type Service struct {
	store  store.Store
	engine callengine.Engine
}

// New creates a new call service. engine may be nil when calls are disabled.
func New(st store.Store, engine callengine.Engine) *Service {
	return &Service{store: st, engine: engine}
}

// Enabled reports whether a media engine is configured.
func (s *Service) Enabled() bool {
	return s.engine != nil
}

// StartCall initiates a call in the chat; the other participant is the callee.
func (s *Service) StartCall(ctx context.Context, chatID, fromUserID int64) (*store.Call, error) {
	if s.engine == nil {
		return nil, ErrCallsDisabled
	}

	chat, err := s.store.GetChatByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}
	if !chat.HasParticipant(fromUserID) {
		return nil, ErrNotParticipant
	}

	if _, err := s.store.GetActiveCallForChat(ctx, chatID); err == nil {
		return nil, ErrCallInProgress
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check active call: %w", err)
	}

	now := time.Now().UTC()
	call := &store.Call{
		ID:              uuid.New().String(),
		ChatID:          chatID,
		InitiatorUserID: fromUserID,
		CalleeUserID:    chat.OtherParticipant(fromUserID),
		Status:          store.CallStatusRinging,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	externalRoomID, err := s.engine.CreateCall(ctx, call)
	if err != nil {
		return nil, fmt.Errorf("create media room: %w", err)
	}
	call.ExternalRoomID = &externalRoomID

	if err := s.store.CreateCall(ctx, call); err != nil {
		return nil, fmt.Errorf("save call: %w", err)
	}
	return call, nil
}

// AcceptCall moves a ringing call to active. Only the callee may accept.
func (s *Service) AcceptCall(ctx context.Context, callID string, userID int64) (*store.Call, error) {
	call, err := s.getRingingOrActive(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.CalleeUserID != userID {
		return nil, ErrNotCallee
	}
	if call.Status != store.CallStatusRinging {
		return nil, ErrCallEnded
	}

	call.Status = store.CallStatusActive
	call.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateCall(ctx, call); err != nil {
		return nil, fmt.Errorf("update call: %w", err)
	}
	return call, nil
}

// RejectCall declines a ringing call.
func (s *Service) RejectCall(ctx context.Context, callID string, userID int64) (*store.Call, error) {
	call, err := s.getRingingOrActive(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.InitiatorUserID != userID && call.CalleeUserID != userID {
		return nil, ErrNotParticipant
	}
	if call.Status != store.CallStatusRinging {
		return nil, ErrCallEnded
	}

	return s.finish(ctx, call)
}

// EndCall terminates a ringing or active call for both participants.
func (s *Service) EndCall(ctx context.Context, callID string, userID int64) (*store.Call, error) {
	call, err := s.getRingingOrActive(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.InitiatorUserID != userID && call.CalleeUserID != userID {
		return nil, ErrNotParticipant
	}

	// The media room expires on its own if this fails; the record still ends.
	_ = s.engine.EndCall(ctx, call)
	return s.finish(ctx, call)
}

// JoinInfo generates media credentials for a participant of the call.
func (s *Service) JoinInfo(ctx context.Context, callID string, userID int64, username string) (*callengine.JoinInfo, error) {
	call, err := s.getRingingOrActive(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.InitiatorUserID != userID && call.CalleeUserID != userID {
		return nil, ErrNotParticipant
	}
	return s.engine.GenerateJoinInfo(ctx, call, userID, username)
}

func (s *Service) getRingingOrActive(ctx context.Context, callID string) (*store.Call, error) {
	if s.engine == nil {
		return nil, ErrCallsDisabled
	}
	call, err := s.store.GetCall(ctx, callID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("get call: %w", err)
	}
	if call.Status == store.CallStatusEnded {
		return nil, ErrCallEnded
	}
	return call, nil
}

func (s *Service) finish(ctx context.Context, call *store.Call) (*store.Call, error) {
	now := time.Now().UTC()
	call.Status = store.CallStatusEnded
	call.UpdatedAt = now
	call.EndedAt = &now
	if err := s.store.UpdateCall(ctx, call); err != nil {
		return nil, fmt.Errorf("update call: %w", err)
	}
	return call, nil
}
