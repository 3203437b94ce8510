package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tandemtalk/server/internal/service/partners"
	"github.com/tandemtalk/server/internal/store"
)

// PartnerHandlers holds the language-partner REST endpoints.
type PartnerHandlers struct {
	partnerSvc *partners.Service
	log        zerolog.Logger
}

// NewPartnerHandlers creates partner handlers.
func NewPartnerHandlers(partnerSvc *partners.Service, logger *zerolog.Logger) *PartnerHandlers {
	return &PartnerHandlers{
		partnerSvc: partnerSvc,
		log:        logger.With().Str("component", "partners").Logger(),
	}
}

type partnerRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// PartnerResponse is a partner link as seen by REST clients.
type PartnerResponse struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	PartnerID int64  `json:"partner_id"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

func partnerResponse(link *store.Partner) PartnerResponse {
	return PartnerResponse{
		ID:        link.ID,
		UserID:    link.UserID,
		PartnerID: link.PartnerID,
		Status:    string(link.Status),
		CreatedAt: link.CreatedAt.Unix(),
	}
}

// SendRequest handles POST /api/partners.
func (h *PartnerHandlers) SendRequest(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req partnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	link, err := h.partnerSvc.SendRequest(c.Request.Context(), userID, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, partners.ErrCannotPartnerSelf):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		case errors.Is(err, partners.ErrUserNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		case errors.Is(err, partners.ErrAlreadyPartners), errors.Is(err, partners.ErrRequestAlreadyExists):
			c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
		default:
			h.log.Error().Err(err).Msg("send partner request failed")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "send partner request failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, partnerResponse(link))
}

// Accept handles POST /api/partners/:id/accept, where :id is the requester's
// user id.
func (h *PartnerHandlers) Accept(c *gin.Context) {
	h.resolve(c, h.partnerSvc.AcceptRequest)
}

// Decline handles POST /api/partners/:id/decline.
func (h *PartnerHandlers) Decline(c *gin.Context) {
	h.resolve(c, h.partnerSvc.DeclineRequest)
}

// List handles GET /api/partners with an optional status filter.
func (h *PartnerHandlers) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var status *store.PartnerStatus
	if raw := c.Query("status"); raw != "" {
		s := store.PartnerStatus(raw)
		switch s {
		case store.PartnerStatusPending, store.PartnerStatusAccepted, store.PartnerStatusDeclined:
			status = &s
		default:
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid status"})
			return
		}
	}

	links, err := h.partnerSvc.ListPartners(c.Request.Context(), userID, status)
	if err != nil {
		h.log.Error().Err(err).Msg("list partners failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "list partners failed"})
		return
	}

	resp := make([]PartnerResponse, 0, len(links))
	for _, link := range links {
		resp = append(resp, partnerResponse(link))
	}
	c.JSON(http.StatusOK, gin.H{"partners": resp})
}

func (h *PartnerHandlers) resolve(c *gin.Context, fn func(ctx context.Context, userID, fromUserID int64) error) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	fromUserID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	if err := fn(c.Request.Context(), userID, fromUserID); err != nil {
		if errors.Is(err, partners.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "partner request not found"})
			return
		}
		h.log.Error().Err(err).Msg("resolve partner request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "resolve partner request failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
