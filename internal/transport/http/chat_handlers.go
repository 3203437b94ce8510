package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tandemtalk/server/internal/core"
	"github.com/tandemtalk/server/internal/service/partners"
	"github.com/tandemtalk/server/internal/store"
)

const defaultMessagePageSize = 50

// ChatHandlers holds the chat REST endpoints.
type ChatHandlers struct {
	hub        *core.Hub
	partnerSvc *partners.Service
	store      store.Store
	log        zerolog.Logger
}

// NewChatHandlers creates chat handlers.
func NewChatHandlers(hub *core.Hub, partnerSvc *partners.Service, st store.Store, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		hub:        hub,
		partnerSvc: partnerSvc,
		store:      st,
		log:        logger.With().Str("component", "chats").Logger(),
	}
}

type createChatRequest struct {
	PartnerID int64 `json:"partner_id" binding:"required"`
}

// ChatResponse is a chat as seen by REST clients.
type ChatResponse struct {
	ID            int64  `json:"id"`
	PartnerUserID int64  `json:"partner_user_id"`
	LastMessage   string `json:"last_message,omitempty"`
	LastSenderID  int64  `json:"last_sender_id,omitempty"`
	LastMessageTS int64  `json:"last_message_ts,omitempty"`
	CreatedAt     int64  `json:"created_at"`
}

func chatResponse(chat *store.Chat, viewerID int64) ChatResponse {
	resp := ChatResponse{
		ID:            chat.ID,
		PartnerUserID: chat.OtherParticipant(viewerID),
		CreatedAt:     chat.CreatedAt.Unix(),
	}
	if chat.LastMessageBody != nil {
		resp.LastMessage = *chat.LastMessageBody
	}
	if chat.LastMessageFrom != nil {
		resp.LastSenderID = *chat.LastMessageFrom
	}
	if chat.LastMessageAt != nil {
		resp.LastMessageTS = chat.LastMessageAt.Unix()
	}
	return resp
}

// CreateChat handles POST /api/chats. Opening a chat requires an accepted
// partner link; the pair key deduplicates repeat requests.
func (h *ChatHandlers) CreateChat(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.PartnerID == userID {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot open a chat with yourself"})
		return
	}

	ctx := c.Request.Context()

	linked, err := h.partnerSvc.ArePartners(ctx, userID, req.PartnerID)
	if err != nil {
		h.log.Error().Err(err).Msg("partner check failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "partner check failed"})
		return
	}
	if !linked {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not accepted partners"})
		return
	}

	key := store.DirectKey(userID, req.PartnerID)
	existing, err := h.store.GetChatByDirectKey(ctx, key)
	if err == nil {
		c.JSON(http.StatusOK, chatResponse(existing, userID))
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		h.log.Error().Err(err).Msg("chat lookup failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "chat lookup failed"})
		return
	}

	chat, err := h.store.CreateChat(ctx, key, userID, req.PartnerID)
	if err != nil {
		h.log.Error().Err(err).Msg("create chat failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "create chat failed"})
		return
	}

	// Let the other participant's live connections learn about the new chat.
	h.hub.PushToUser(req.PartnerID, &core.Event{
		Kind:   core.EventChatCreated,
		ChatID: chat.ID,
	})

	h.log.Info().Int64("chat_id", chat.ID).Int64("user_id", userID).Int64("partner_id", req.PartnerID).Msg("chat created")
	c.JSON(http.StatusCreated, chatResponse(chat, userID))
}

// ListChats handles GET /api/chats.
func (h *ChatHandlers) ListChats(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	chats, err := h.store.ListChats(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Msg("list chats failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "list chats failed"})
		return
	}

	resp := make([]ChatResponse, 0, len(chats))
	for _, chat := range chats {
		resp = append(resp, chatResponse(chat, userID))
	}
	c.JSON(http.StatusOK, gin.H{"chats": resp})
}

// ListMessages handles GET /api/chats/:id/messages with limit/before_id paging.
func (h *ChatHandlers) ListMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	chat, ok := h.participantChat(c, userID)
	if !ok {
		return
	}

	limit := defaultMessagePageSize
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = parsed
	}

	var beforeID *int64
	if raw := c.Query("before_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before_id"})
			return
		}
		beforeID = &parsed
	}

	messages, err := h.store.ListMessages(c.Request.Context(), chat.ID, limit, beforeID)
	if err != nil {
		h.log.Error().Err(err).Int64("chat_id", chat.ID).Msg("list messages failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "list messages failed"})
		return
	}

	payloads := make([]any, 0, len(messages))
	for _, msg := range messages {
		payloads = append(payloads, messagePayload(msg))
	}
	c.JSON(http.StatusOK, gin.H{"messages": payloads})
}

// MarkRead handles POST /api/chats/:id/read.
func (h *ChatHandlers) MarkRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	chat, ok := h.participantChat(c, userID)
	if !ok {
		return
	}

	if err := h.store.MarkMessagesRead(c.Request.Context(), chat.ID, userID); err != nil {
		h.log.Error().Err(err).Int64("chat_id", chat.ID).Msg("mark read failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "mark read failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// UserSummary is a user as seen by other users.
type UserSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
	LastSeen int64  `json:"last_seen,omitempty"`
}

// SearchUsers handles GET /api/users/search?q=prefix.
func (h *ChatHandlers) SearchUsers(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "q is required"})
		return
	}

	users, err := h.store.SearchUsers(c.Request.Context(), q)
	if err != nil {
		h.log.Error().Err(err).Msg("search users failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "search users failed"})
		return
	}

	resp := make([]UserSummary, 0, len(users))
	for _, u := range users {
		summary := UserSummary{ID: u.ID, Username: u.Username, Online: u.Online}
		if u.LastSeenAt != nil {
			summary.LastSeen = u.LastSeenAt.Unix()
		}
		resp = append(resp, summary)
	}
	c.JSON(http.StatusOK, gin.H{"users": resp})
}

// OnlineUsers handles GET /api/users/online. The snapshot comes from the hub,
// not the database, so it reflects live connections.
func (h *ChatHandlers) OnlineUsers(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_ids": h.hub.OnlineUsers()})
}

// participantChat resolves :id and verifies the requester participates in the
// chat. Writes the error response itself when the check fails.
func (h *ChatHandlers) participantChat(c *gin.Context, userID int64) (*store.Chat, bool) {
	chatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid chat id"})
		return nil, false
	}

	chat, err := h.store.GetChatByID(c.Request.Context(), chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "chat not found"})
			return nil, false
		}
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("chat lookup failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "chat lookup failed"})
		return nil, false
	}
	if !chat.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a chat participant"})
		return nil, false
	}
	return chat, true
}
