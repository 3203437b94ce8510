package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tandemtalk/server/internal/core"
	"github.com/tandemtalk/server/internal/service/calls"
	"github.com/tandemtalk/server/internal/store"
)

// CallHandlers holds the practice-call REST endpoints. State changes go
// through the call service; the counterpart is notified over its live
// WebSocket connections via the hub.
type CallHandlers struct {
	hub     *core.Hub
	callSvc *calls.Service
	log     zerolog.Logger
}

// NewCallHandlers creates call handlers.
func NewCallHandlers(hub *core.Hub, callSvc *calls.Service, logger *zerolog.Logger) *CallHandlers {
	return &CallHandlers{
		hub:     hub,
		callSvc: callSvc,
		log:     logger.With().Str("component", "calls").Logger(),
	}
}

type startCallRequest struct {
	ChatID int64 `json:"chat_id" binding:"required"`
}

// CallResponse is a call as seen by REST clients.
type CallResponse struct {
	ID           string `json:"id"`
	ChatID       int64  `json:"chat_id"`
	InitiatorID  int64  `json:"initiator_id"`
	CalleeID     int64  `json:"callee_id"`
	Status       string `json:"status"`
	JoinURL      string `json:"join_url,omitempty"`
	JoinToken    string `json:"join_token,omitempty"`
	JoinRoom     string `json:"join_room,omitempty"`
	JoinIdentity string `json:"join_identity,omitempty"`
}

func callResponse(call *store.Call) CallResponse {
	return CallResponse{
		ID:          call.ID,
		ChatID:      call.ChatID,
		InitiatorID: call.InitiatorUserID,
		CalleeID:    call.CalleeUserID,
		Status:      string(call.Status),
	}
}

// Start handles POST /api/calls.
func (h *CallHandlers) Start(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	call, err := h.callSvc.StartCall(c.Request.Context(), req.ChatID, userID)
	if err != nil {
		h.writeCallError(c, err, "start call failed")
		return
	}

	h.hub.PushToUser(call.CalleeUserID, &core.Event{
		Kind: core.EventCallIncoming,
		Call: &core.CallEvent{
			CallID:       call.ID,
			ChatID:       call.ChatID,
			FromUserID:   userID,
			FromUsername: currentUsername(c),
			CreatedAt:    call.CreatedAt.Unix(),
		},
	})

	h.log.Info().Str("call_id", call.ID).Int64("chat_id", call.ChatID).Msg("call started")
	c.JSON(http.StatusCreated, callResponse(call))
}

// Accept handles POST /api/calls/:id/accept. The callee gets join credentials
// in the response; the initiator gets theirs over the WebSocket.
func (h *CallHandlers) Accept(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	callID := c.Param("id")

	ctx := c.Request.Context()
	call, err := h.callSvc.AcceptCall(ctx, callID, userID)
	if err != nil {
		h.writeCallError(c, err, "accept call failed")
		return
	}

	initiator, err := h.callSvc.JoinInfo(ctx, call.ID, call.InitiatorUserID, "")
	if err != nil {
		h.log.Error().Err(err).Str("call_id", call.ID).Msg("initiator join info failed")
	} else {
		h.hub.PushToUser(call.InitiatorUserID, &core.Event{
			Kind: core.EventCallAccepted,
			Call: &core.CallEvent{
				CallID:     call.ID,
				ChatID:     call.ChatID,
				FromUserID: userID,
				JoinInfo:   initiator,
			},
		})
	}

	callee, err := h.callSvc.JoinInfo(ctx, call.ID, userID, currentUsername(c))
	if err != nil {
		h.log.Error().Err(err).Str("call_id", call.ID).Msg("callee join info failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "join info failed"})
		return
	}

	resp := callResponse(call)
	resp.JoinURL = callee.URL
	resp.JoinToken = callee.Token
	resp.JoinRoom = callee.RoomName
	resp.JoinIdentity = callee.Identity
	c.JSON(http.StatusOK, resp)
}

// Reject handles POST /api/calls/:id/reject.
func (h *CallHandlers) Reject(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	call, err := h.callSvc.RejectCall(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.writeCallError(c, err, "reject call failed")
		return
	}

	h.hub.PushToUser(call.InitiatorUserID, &core.Event{
		Kind: core.EventCallRejected,
		Call: &core.CallEvent{
			CallID:     call.ID,
			ChatID:     call.ChatID,
			FromUserID: userID,
			Reason:     "rejected",
		},
	})
	c.JSON(http.StatusOK, callResponse(call))
}

// End handles POST /api/calls/:id/end.
func (h *CallHandlers) End(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	call, err := h.callSvc.EndCall(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.writeCallError(c, err, "end call failed")
		return
	}

	// Both sides learn the call ended; the caller's own UI reacts to the
	// response, extra copies on its other devices are harmless.
	ended := &core.CallEvent{
		CallID:     call.ID,
		ChatID:     call.ChatID,
		FromUserID: userID,
		Reason:     "ended",
	}
	h.hub.PushToUser(call.InitiatorUserID, &core.Event{Kind: core.EventCallEnded, Call: ended})
	h.hub.PushToUser(call.CalleeUserID, &core.Event{Kind: core.EventCallEnded, Call: ended})
	c.JSON(http.StatusOK, callResponse(call))
}

func (h *CallHandlers) writeCallError(c *gin.Context, err error, logMsg string) {
	switch {
	case errors.Is(err, calls.ErrCallsDisabled):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "calls are not enabled"})
	case errors.Is(err, calls.ErrChatNotFound), errors.Is(err, calls.ErrCallNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, calls.ErrNotParticipant), errors.Is(err, calls.ErrNotCallee):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, calls.ErrCallInProgress), errors.Is(err, calls.ErrCallEnded):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Msg(logMsg)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: logMsg})
	}
}
