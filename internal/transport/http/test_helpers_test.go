package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wiremsg/internal/auth"
	"github.com/vovakirdan/wiremsg/internal/config"
	"github.com/vovakirdan/wiremsg/internal/core"
	"github.com/vovakirdan/wiremsg/internal/guard"
	applog "github.com/vovakirdan/wiremsg/internal/log"
	"github.com/vovakirdan/wiremsg/internal/metrics"
	"github.com/vovakirdan/wiremsg/internal/ratelimit"
	"github.com/vovakirdan/wiremsg/internal/reqlog"
	"github.com/vovakirdan/wiremsg/internal/service/inbox"
	"github.com/vovakirdan/wiremsg/internal/service/stats"
	"github.com/vovakirdan/wiremsg/internal/signals"
	"github.com/vovakirdan/wiremsg/internal/store"
	"github.com/vovakirdan/wiremsg/internal/store/sqlite"
)

type testEnv struct {
	cfg        config.Config
	store      *sqlite.SQLiteStore
	auth       *auth.Service
	dispatcher *signals.Dispatcher
	hub        *core.Hub
	limiter    *ratelimit.Memory
	sink       *reqlog.Sink
	metrics    *metrics.Metrics
	handler    http.Handler
}

// newTestEnv wires the full stack over a temporary database. The time window
// is open all day unless mutate changes it.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.DatabasePath = filepath.Join(dir, "test.db")
	cfg.RequestLog.Path = filepath.Join(dir, "requests.log")
	cfg.TimeWindow.StartHour = 0
	cfg.TimeWindow.EndHour = 24
	cfg.JWTSecret = "test-secret"
	if mutate != nil {
		mutate(&cfg)
	}

	logger := applog.Nop()
	st, err := sqlite.New(cfg.DatabasePath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})

	hub := core.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	dispatcher := signals.New(st, logger)
	inboxService := inbox.New(st, cfg.Inbox.CacheSize, cfg.Inbox.CacheTTL)
	policy := ratelimit.Policy{Limit: cfg.RateLimit.Limit, Window: cfg.RateLimit.Window}
	limiter := ratelimit.NewMemory(policy)
	m := metrics.New(limiter.Len, func() int { return hub.Connections(0) })
	dispatcher.Subscribe(hub)
	dispatcher.Subscribe(inboxService)
	dispatcher.Subscribe(m)

	sink, err := reqlog.Open(cfg.RequestLog.Path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	loc, err := cfg.TimeWindow.LoadLocation()
	require.NoError(t, err)
	chain := guard.NewChain(logger, m,
		guard.NewRequestLogger(sink, logger),
		guard.NewTimeWindow(cfg.TimeWindow.StartHour, cfg.TimeWindow.EndHour, loc),
		guard.NewContentAndRate(cfg.RateLimit.PathPrefix, cfg.Content.BannedWords, limiter, policy, logger),
		guard.NewRole(cfg.Roles.ProtectedPrefixes, cfg.Roles.ElevatedGroups),
	)

	router := NewRouter(Deps{
		Store:      st,
		Auth:       authService,
		Dispatcher: dispatcher,
		Hub:        hub,
		Inbox:      inboxService,
		Stats:      stats.New(st, func() int { return hub.Connections(0) }),
		Guards:     chain,
		Metrics:    m,
	}, &cfg, logger)

	return &testEnv{
		cfg:        cfg,
		store:      st,
		auth:       authService,
		dispatcher: dispatcher,
		hub:        hub,
		limiter:    limiter,
		sink:       sink,
		metrics:    m,
		handler:    router,
	}
}

// register creates a user and returns a token carrying the given groups.
func (e *testEnv) register(t *testing.T, username string, groups ...string) (int64, string) {
	t.Helper()
	ctx := context.Background()
	_, user, err := e.auth.Register(ctx, auth.RegisterInput{Username: username, Password: "password123"})
	require.NoError(t, err)
	for _, g := range groups {
		require.NoError(t, e.store.AddUserToGroup(ctx, user.ID, g))
	}
	token, err := e.auth.Login(ctx, username, "password123")
	require.NoError(t, err)
	return user.ID, token
}

func (e *testEnv) message(t *testing.T, from, to int64, content string) *store.Message {
	t.Helper()
	msg, _, err := e.dispatcher.CreateMessage(context.Background(), signals.NewMessage{
		SenderID: from, ReceiverID: to, Content: content,
	})
	require.NoError(t, err)
	return msg
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return e.doFrom(t, method, path, token, "", body)
}

func (e *testEnv) doFrom(t *testing.T, method, path, token, forwardedFor string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func closedWindow(now time.Time) (start, end int) {
	h := now.Hour()
	if h < 23 {
		return h + 1, 24
	}
	return 0, 23
}
