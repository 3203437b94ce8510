package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tandemtalk/server/internal/auth"
	"github.com/tandemtalk/server/internal/config"
	"github.com/tandemtalk/server/internal/core"
	"github.com/tandemtalk/server/internal/service/calls"
	"github.com/tandemtalk/server/internal/service/partners"
	"github.com/tandemtalk/server/internal/store"
)

// NewServer builds the HTTP server: health, the WebSocket gateway, and the
// REST API. Everything under /api except register/login requires a JWT.
func NewServer(
	hub *core.Hub,
	authService *auth.Service,
	partnerSvc *partners.Service,
	callSvc *calls.Service,
	st store.Store,
	cfg *config.Config,
	logger *zerolog.Logger,
) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	wsHandler := NewWSHandler(hub, authService, cfg.Chat, logger)
	router.GET("/ws", gin.WrapH(wsHandler))

	apiHandlers := NewAPIHandlers(authService, logger)
	chatHandlers := NewChatHandlers(hub, partnerSvc, st, logger)
	partnerHandlers := NewPartnerHandlers(partnerSvc, logger)
	callHandlers := NewCallHandlers(hub, callSvc, logger)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	authed := api.Group("")
	authed.Use(AuthMiddleware(authService, logger))
	{
		authed.GET("/users/online", chatHandlers.OnlineUsers)
		authed.GET("/users/search", chatHandlers.SearchUsers)

		authed.POST("/chats", chatHandlers.CreateChat)
		authed.GET("/chats", chatHandlers.ListChats)
		authed.GET("/chats/:id/messages", chatHandlers.ListMessages)
		authed.POST("/chats/:id/read", chatHandlers.MarkRead)

		authed.POST("/partners", partnerHandlers.SendRequest)
		authed.POST("/partners/:id/accept", partnerHandlers.Accept)
		authed.POST("/partners/:id/decline", partnerHandlers.Decline)
		authed.GET("/partners", partnerHandlers.List)

		authed.POST("/calls", callHandlers.Start)
		authed.POST("/calls/:id/accept", callHandlers.Accept)
		authed.POST("/calls/:id/reject", callHandlers.Reject)
		authed.POST("/calls/:id/end", callHandlers.End)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
