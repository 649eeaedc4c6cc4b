package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremsg/internal/service/stats"
	"github.com/vovakirdan/wiremsg/internal/signals"
)

// AccountHandlers covers account removal and the admin overview.
type AccountHandlers struct {
	dispatcher *signals.Dispatcher
	stats      *stats.Service
	elevated   []string
	log        *zerolog.Logger
}

// NewAccountHandlers creates a new account handlers instance.
func NewAccountHandlers(d *signals.Dispatcher, st *stats.Service, elevatedGroups []string, logger *zerolog.Logger) *AccountHandlers {
	return &AccountHandlers{dispatcher: d, stats: st, elevated: elevatedGroups, log: logger}
}

// DeleteAccount removes the caller and everything that references them.
// DELETE /api/account
func (h *AccountHandlers) DeleteAccount(c *gin.Context) {
	uid := identityFrom(c).UserID
	cleanup, err := h.dispatcher.DeleteUser(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, signals.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to delete account")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, cleanup)
}

// Stats returns instance counters to elevated users.
// GET /api/admin/stats
func (h *AccountHandlers) Stats(c *gin.Context) {
	if !identityFrom(c).IsElevated(h.elevated) {
		c.JSON(http.StatusForbidden, DetailResponse{Detail: "You do not have permission to perform this action."})
		return
	}
	snap, err := h.stats.Snapshot(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to compute stats")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, snap)
}
