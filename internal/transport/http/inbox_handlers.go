package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremsg/internal/service/inbox"
	"github.com/vovakirdan/wiremsg/internal/store"
)

const notificationsLimit = 100

// InboxHandlers serves received messages and notifications.
type InboxHandlers struct {
	inbox *inbox.Service
	store store.NotificationStore
	log   *zerolog.Logger
}

// NewInboxHandlers creates a new inbox handlers instance.
func NewInboxHandlers(svc *inbox.Service, st store.NotificationStore, logger *zerolog.Logger) *InboxHandlers {
	return &InboxHandlers{inbox: svc, store: st, log: logger}
}

// Received lists messages received by the caller, newest first.
// GET /api/inbox
func (h *InboxHandlers) Received(c *gin.Context) {
	uid := identityFrom(c).UserID
	msgs, cached, err := h.inbox.Received(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list inbox")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if cached {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	c.JSON(http.StatusOK, toMessageResponses(msgs))
}

// Unread lists unread messages received by the caller.
// GET /api/inbox/unread
func (h *InboxHandlers) Unread(c *gin.Context) {
	uid := identityFrom(c).UserID
	msgs, err := h.inbox.Unread(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list unread messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, toMessageResponses(msgs))
}

// MarkRead flags a received message as read.
// POST /api/inbox/:id/read
func (h *InboxHandlers) MarkRead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message id"})
		return
	}
	uid := identityFrom(c).UserID
	if err := h.inbox.MarkRead(c.Request.Context(), id, uid); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
			return
		}
		h.log.Error().Err(err).Int64("message_id", id).Msg("failed to mark message read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Notifications lists the caller's notifications, newest first.
// GET /api/notifications
func (h *InboxHandlers) Notifications(c *gin.Context) {
	uid := identityFrom(c).UserID
	rows, err := h.store.ListNotifications(c.Request.Context(), uid, notificationsLimit)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list notifications")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, toNotificationResponses(rows))
}
