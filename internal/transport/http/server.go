package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremsg/internal/auth"
	"github.com/vovakirdan/wiremsg/internal/config"
	"github.com/vovakirdan/wiremsg/internal/core"
	"github.com/vovakirdan/wiremsg/internal/guard"
	"github.com/vovakirdan/wiremsg/internal/metrics"
	"github.com/vovakirdan/wiremsg/internal/service/inbox"
	"github.com/vovakirdan/wiremsg/internal/service/stats"
	"github.com/vovakirdan/wiremsg/internal/signals"
	"github.com/vovakirdan/wiremsg/internal/store"
)

// Deps are the services the HTTP layer talks to. Guards and Metrics may be nil.
type Deps struct {
	Store      store.Store
	Auth       *auth.Service
	Dispatcher *signals.Dispatcher
	Hub        *core.Hub
	Inbox      *inbox.Service
	Stats      *stats.Service
	Guards     *guard.Chain
	Metrics    *metrics.Metrics
}

// NewServer builds an HTTP server with all routes.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(deps, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter wires middleware and handlers into a gin engine.
func NewRouter(deps Deps, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(logger, deps.Metrics))
	router.Use(IdentityMiddleware(deps.Auth, logger))
	if deps.Guards != nil {
		router.Use(GuardMiddleware(deps.Guards, cfg.MaxBodyBytes, logger))
	}

	router.GET("/health", healthHandler)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	elevated := cfg.Roles.ElevatedGroups
	authHandlers := NewAuthHandlers(deps.Auth, logger)
	convHandlers := NewConversationHandlers(deps.Store, logger)
	msgHandlers := NewMessageHandlers(deps.Store, deps.Dispatcher, elevated, logger)
	inboxHandlers := NewInboxHandlers(deps.Inbox, deps.Store, logger)
	accountHandlers := NewAccountHandlers(deps.Dispatcher, deps.Stats, elevated, logger)
	wsHandler := NewWSHandler(deps.Hub, logger)

	api := router.Group("/api")
	{
		api.POST("/register", authHandlers.Register)
		api.POST("/login", authHandlers.Login)

		protected := api.Group("")
		protected.Use(RequireAuth())
		{
			protected.GET("/conversations", convHandlers.ListConversations)
			protected.POST("/conversations", convHandlers.CreateConversation)
			protected.GET("/conversations/:id", convHandlers.GetConversation)

			protected.GET("/messages", msgHandlers.ListMessages)
			protected.POST("/messages", msgHandlers.CreateMessage)
			protected.GET("/messages/:id", msgHandlers.GetMessage)
			protected.GET("/messages/:id/thread", msgHandlers.GetThread)
			protected.GET("/messages/:id/history", msgHandlers.GetHistory)
			protected.PATCH("/messages/:id", msgHandlers.UpdateMessage)
			protected.DELETE("/messages/:id", msgHandlers.DeleteMessage)

			protected.GET("/inbox", inboxHandlers.Received)
			protected.GET("/inbox/unread", inboxHandlers.Unread)
			protected.POST("/inbox/:id/read", inboxHandlers.MarkRead)
			protected.GET("/notifications", inboxHandlers.Notifications)

			protected.DELETE("/account", accountHandlers.DeleteAccount)
			protected.GET("/admin/stats", accountHandlers.Stats)
		}
	}

	router.GET("/ws", RequireAuth(), wsHandler.Handle)

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
