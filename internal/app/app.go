package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremsg/internal/auth"
	"github.com/vovakirdan/wiremsg/internal/config"
	"github.com/vovakirdan/wiremsg/internal/core"
	"github.com/vovakirdan/wiremsg/internal/guard"
	"github.com/vovakirdan/wiremsg/internal/metrics"
	"github.com/vovakirdan/wiremsg/internal/ratelimit"
	"github.com/vovakirdan/wiremsg/internal/reqlog"
	"github.com/vovakirdan/wiremsg/internal/service/inbox"
	"github.com/vovakirdan/wiremsg/internal/service/stats"
	"github.com/vovakirdan/wiremsg/internal/signals"
	"github.com/vovakirdan/wiremsg/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wiremsg/internal/transport/http"
)

// App wires together storage, guards, the dispatcher and the HTTP transport.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           *sqlite.SQLiteStore
	content         *guard.ContentAndRate
	sweeper         *ratelimit.Sweeper
	sink            *reqlog.Sink
	limiter         ratelimit.Store
	closeLimiter    func() error
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (_ *App, err error) {
	a := &App{shutdownTimeout: cfg.ShutdownTimeout, log: logger}
	defer func() {
		if err != nil {
			a.cleanup()
		}
	}()

	// Initialize database store
	a.store, err = sqlite.New(cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	authService := auth.NewService(a.store, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})

	a.hub = core.NewHub(logger)
	dispatcher := signals.New(a.store, logger)
	inboxService := inbox.New(a.store, cfg.Inbox.CacheSize, cfg.Inbox.CacheTTL)

	policy := ratelimit.Policy{Limit: cfg.RateLimit.Limit, Window: cfg.RateLimit.Window}
	var trackedClients func() int
	if cfg.RateLimit.Enabled {
		switch cfg.RateLimit.Backend {
		case "redis":
			rs, rerr := ratelimit.NewRedisFromURL(context.Background(), cfg.RateLimit.RedisURL, policy, cfg.RateLimit.RedisPrefix)
			if rerr != nil {
				return nil, fmt.Errorf("init rate limit store: %w", rerr)
			}
			a.limiter, a.closeLimiter = rs, rs.Close
		default:
			mem := ratelimit.NewMemory(policy)
			a.limiter, trackedClients = mem, mem.Len
		}
		a.sweeper, err = ratelimit.NewSweeper(a.limiter, cfg.RateLimit.SweepInterval, logger)
		if err != nil {
			return nil, fmt.Errorf("init rate limit sweeper: %w", err)
		}
		logger.Info().Str("backend", cfg.RateLimit.Backend).Int("limit", policy.Limit).Dur("window", policy.Window).Msg("rate limit enabled")
	}

	m := metrics.New(trackedClients, func() int { return a.hub.Connections(0) })
	dispatcher.Subscribe(a.hub)
	dispatcher.Subscribe(inboxService)
	dispatcher.Subscribe(m)

	chain, err := a.buildGuards(cfg, m)
	if err != nil {
		return nil, err
	}
	logger.Info().Strs("stages", chain.Stages()).Msg("guard chain ready")

	a.server = transporthttp.NewServer(transporthttp.Deps{
		Store:      a.store,
		Auth:       authService,
		Dispatcher: dispatcher,
		Hub:        a.hub,
		Inbox:      inboxService,
		Stats:      stats.New(a.store, func() int { return a.hub.Connections(0) }),
		Guards:     chain,
		Metrics:    m,
	}, cfg, logger)

	return a, nil
}

// buildGuards assembles the stages in their fixed order. Disabled stages are
// left nil and skipped by the chain.
func (a *App) buildGuards(cfg *config.Config, observer guard.Observer) (*guard.Chain, error) {
	var (
		logStage    guard.Stage
		windowStage guard.Stage
	)

	if cfg.RequestLog.Enabled {
		sink, err := reqlog.Open(cfg.RequestLog.Path)
		if err != nil {
			return nil, fmt.Errorf("open request log: %w", err)
		}
		a.sink = sink
		logStage = guard.NewRequestLogger(sink, a.log)
	}

	if cfg.TimeWindow.Enabled {
		loc, err := cfg.TimeWindow.LoadLocation()
		if err != nil {
			return nil, fmt.Errorf("time window location: %w", err)
		}
		windowStage = guard.NewTimeWindow(cfg.TimeWindow.StartHour, cfg.TimeWindow.EndHour, loc)
	}

	policy := ratelimit.Policy{Limit: cfg.RateLimit.Limit, Window: cfg.RateLimit.Window}
	a.content = guard.NewContentAndRate(cfg.RateLimit.PathPrefix, cfg.Content.BannedWords, a.limiter, policy, a.log)

	return guard.NewChain(a.log, observer,
		logStage,
		windowStage,
		a.content,
		guard.NewRole(cfg.Roles.ProtectedPrefixes, cfg.Roles.ElevatedGroups),
	), nil
}

// Reload applies the parts of cfg that can change without a restart.
func (a *App) Reload(cfg config.Config) {
	a.content.SetBannedWords(cfg.Content.BannedWords)
	a.log.Info().Int("banned_words", len(cfg.Content.BannedWords)).Msg("banned words reloaded")
}

// Handler exposes the HTTP handler, mostly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)
	if a.sweeper != nil {
		a.sweeper.Start()
	}

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
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
	if a.sweeper != nil {
		if err := a.sweeper.Stop(); err != nil {
			a.log.Warn().Err(err).Msg("failed to stop rate limit sweeper")
		}
	}
	if a.closeLimiter != nil {
		if err := a.closeLimiter(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close rate limit store")
		}
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close request log")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
