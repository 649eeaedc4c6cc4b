package guard

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremsg/internal/ratelimit"
)

const msgInappropriate = "Inappropriate language detected."

// ContentAndRate guards message submission: POST requests under prefix are
// checked for banned terms first and then counted against the client's quota.
// Rejected content never consumes quota.
type ContentAndRate struct {
	prefix string
	banned atomic.Pointer[[]string]
	store  ratelimit.Store
	policy ratelimit.Policy
	now    func() time.Time
	log    *zerolog.Logger

	rateMessage string
}

// NewContentAndRate creates the stage. A nil store disables the rate check.
func NewContentAndRate(prefix string, banned []string, store ratelimit.Store, policy ratelimit.Policy, logger *zerolog.Logger) *ContentAndRate {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	g := &ContentAndRate{
		prefix:      prefix,
		store:       store,
		policy:      policy,
		now:         time.Now,
		log:         logger,
		rateMessage: fmt.Sprintf("Rate limit exceeded: %d messages per %s.", policy.Limit, windowPhrase(policy.Window)),
	}
	g.SetBannedWords(banned)
	return g
}

// Name implements Stage.
func (g *ContentAndRate) Name() string { return "content_rate" }

// SetBannedWords replaces the banned term list. Safe to call while requests
// are being checked.
func (g *ContentAndRate) SetBannedWords(words []string) {
	lowered := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			lowered = append(lowered, w)
		}
	}
	g.banned.Store(&lowered)
}

// BannedWords returns the current list, lowercased.
func (g *ContentAndRate) BannedWords() []string {
	return append([]string(nil), *g.banned.Load()...)
}

// Check implements Stage.
func (g *ContentAndRate) Check(req *Request) *Rejection {
	if req.Method != http.MethodPost || !strings.HasPrefix(req.Path, g.prefix) {
		return nil
	}

	if g.containsBanned(req) {
		return forbidden(msgInappropriate, true)
	}

	if g.store == nil {
		return nil
	}
	d, err := g.store.Hit(req.context(), req.ClientIP, g.now())
	if err != nil {
		g.log.Warn().Err(err).Str("client_ip", req.ClientIP).Msg("rate limit store failed, allowing request")
		return nil
	}
	if !d.Allowed {
		return forbidden(g.rateMessage, true)
	}
	return nil
}

// containsBanned reports a case-insensitive match of any banned term. A body
// that cannot be read or is not valid UTF-8 never matches.
func (g *ContentAndRate) containsBanned(req *Request) bool {
	if req.BodyErr != nil || len(req.Body) == 0 || !utf8.Valid(req.Body) {
		return false
	}
	lower := strings.ToLower(string(req.Body))
	for _, w := range *g.banned.Load() {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func windowPhrase(d time.Duration) string {
	switch d {
	case time.Second:
		return "second"
	case time.Minute:
		return "minute"
	case time.Hour:
		return "hour"
	default:
		return d.String()
	}
}
