// Package guard runs every inbound request through an ordered list of stages
// that may reject it before it reaches a handler.
package guard

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/vovakirdan/wiremsg/internal/auth"
)

// Request is the read-only view of an inbound request the stages work on.
type Request struct {
	Ctx      context.Context
	ClientIP string
	User     auth.Identity
	Method   string
	Path     string
	Body     []byte
	// BodyErr is set when the body could not be read.
	BodyErr error
}

func (r *Request) context() context.Context {
	if r.Ctx == nil {
		return context.Background()
	}
	return r.Ctx
}

// Rejection is a terminal 403-style answer produced by a stage.
type Rejection struct {
	Status  int
	Message string
	// Structured rejections are rendered as {"detail": Message}, the others
	// as plain text.
	Structured bool
}

func forbidden(msg string, structured bool) *Rejection {
	return &Rejection{Status: http.StatusForbidden, Message: msg, Structured: structured}
}

// Stage inspects a request and returns a rejection or nil to pass it on.
type Stage interface {
	Name() string
	Check(req *Request) *Rejection
}

// ClientIP resolves the caller address: the first X-Forwarded-For entry,
// else the host part of the connection address, else 0.0.0.0.
func ClientIP(forwardedFor, remoteAddr string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if remoteAddr == "" {
		return "0.0.0.0"
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
