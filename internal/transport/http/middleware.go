package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremsg/internal/auth"
	"github.com/vovakirdan/wiremsg/internal/guard"
	"github.com/vovakirdan/wiremsg/internal/metrics"
)

const (
	// ContextKeyIdentity is the context key for storing the caller identity.
	ContextKeyIdentity = "identity"
	// ContextKeyRequestID is the context key for storing the request id.
	ContextKeyRequestID = "request_id"

	headerRequestID = "X-Request-ID"
)

// Paths that bypass the guard chain.
var guardExempt = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// RequestIDMiddleware propagates X-Request-ID or assigns a fresh one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests and, when m
// is set, records request metrics.
func LoggerMiddleware(logger *zerolog.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Process request
		c.Next()

		took := time.Since(start)
		status := c.Writer.Status()
		if m != nil {
			m.ObserveHTTP(c.Request.Method, c.FullPath(), status, took)
		}

		ev := logger.Info()
		if status >= http.StatusInternalServerError {
			ev = logger.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("took", took).
			Str("request_id", c.GetString(ContextKeyRequestID)).
			Msg("http request")
	}
}

// IdentityMiddleware resolves the caller from a bearer token or the token
// query parameter. Missing or invalid tokens, and tokens of deleted users,
// leave the caller anonymous.
func IdentityMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := auth.Anonymous
		if token := bearerToken(c); token != "" && authService != nil {
			resolved, err := authService.Authenticate(c.Request.Context(), token)
			switch {
			case err == nil:
				id = resolved
			case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnknownUser):
				logger.Debug().Err(err).Msg("token rejected")
			default:
				logger.Error().Err(err).Msg("failed to resolve caller")
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
				return
			}
		}
		c.Set(ContextKeyIdentity, id)
		c.Next()
	}
}

// RequireAuth rejects anonymous callers with 401.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !identityFrom(c).Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
			return
		}
		c.Next()
	}
}

// GuardMiddleware runs every request through the guard chain. The body is
// read once, handed to the stages and restored for the handlers.
func GuardMiddleware(chain *guard.Chain, maxBody int64, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := guardExempt[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		req := &guard.Request{
			Ctx:      c.Request.Context(),
			ClientIP: guard.ClientIP(c.GetHeader("X-Forwarded-For"), c.Request.RemoteAddr),
			User:     identityFrom(c),
			Method:   c.Request.Method,
			Path:     c.Request.URL.Path,
		}

		if c.Request.Body != nil && c.Request.Body != http.NoBody {
			body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBody))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
					return
				}
				logger.Debug().Err(err).Msg("read request body")
				req.BodyErr = err
			}
			req.Body = body
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		if rej := chain.Evaluate(req); rej != nil {
			if rej.Structured {
				c.AbortWithStatusJSON(rej.Status, DetailResponse{Detail: rej.Message})
			} else {
				c.String(rej.Status, rej.Message)
				c.Abort()
			}
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		// Extract token from "Bearer <token>"
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Query("token")
}

func identityFrom(c *gin.Context) auth.Identity {
	if v, ok := c.Get(ContextKeyIdentity); ok {
		if id, ok := v.(auth.Identity); ok {
			return id
		}
	}
	return auth.Anonymous
}
