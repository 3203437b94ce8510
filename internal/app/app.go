package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tandemtalk/server/internal/auth"
	"github.com/tandemtalk/server/internal/callengine"
	"github.com/tandemtalk/server/internal/callengine/livekit"
	"github.com/tandemtalk/server/internal/config"
	"github.com/tandemtalk/server/internal/core"
	"github.com/tandemtalk/server/internal/log"
	"github.com/tandemtalk/server/internal/service/calls"
	"github.com/tandemtalk/server/internal/service/partners"
	"github.com/tandemtalk/server/internal/store"
	"github.com/tandemtalk/server/internal/store/sqlite"
	transporthttp "github.com/tandemtalk/server/internal/transport/http"
)

// App wires together storage, services, the realtime core and transport.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Audience: cfg.Auth.JWTAudience,
		TTL:      cfg.Auth.TokenTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	partnerSvc := partners.New(st)

	var engine callengine.Engine
	if cfg.LiveKit.Enabled {
		engine = livekit.New(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.WSURL)
		logger.Info().Str("ws_url", cfg.LiveKit.WSURL).Msg("livekit call engine enabled")
	}
	callSvc := calls.New(st, engine)

	hub := core.NewHub(st, log.Component(logger, "hub"), core.Options{
		PersistTimeout: cfg.Chat.PersistTimeout,
		HistoryLimit:   cfg.Chat.HistoryLimit,
	})

	server := transporthttp.NewServer(hub, authService, partnerSvc, callSvc, st, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
