package http

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremsg/internal/auth"
	"github.com/vovakirdan/wiremsg/internal/signals"
	"github.com/vovakirdan/wiremsg/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	msgNotOwner = "Only the sender can modify this message."
)

// MessageHandlers provides HTTP handlers for messages.
type MessageHandlers struct {
	store      store.Store
	dispatcher *signals.Dispatcher
	elevated   []string
	log        *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(st store.Store, d *signals.Dispatcher, elevatedGroups []string, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{store: st, dispatcher: d, elevated: elevatedGroups, log: logger}
}

// CreateMessageRequest represents the create message request body.
type CreateMessageRequest struct {
	ReceiverID     int64  `json:"receiver_id" binding:"required"`
	Content        string `json:"content" binding:"required"`
	ParentID       *int64 `json:"parent_id"`
	ConversationID *int64 `json:"conversation_id"`
}

// UpdateMessageRequest represents the edit message request body.
type UpdateMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// PageResponse is a page of a paginated listing.
type PageResponse struct {
	Count    int64             `json:"count"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
	Results  []MessageResponse `json:"results"`
}

// ListMessages lists messages the caller sent or received.
// GET /api/messages?conversation=&sender=&participant=&created_at_after=&created_at_before=&search=&ordering=&page=&page_size=
func (h *MessageHandlers) ListMessages(c *gin.Context) {
	uid := identityFrom(c).UserID

	filter := store.MessageFilter{ParticipantID: uid, Search: strings.TrimSpace(c.Query("search"))}
	var ok bool
	if filter.ConversationID, ok = optionalID(c, "conversation"); !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid conversation filter"})
		return
	}
	if filter.SenderID, ok = optionalID(c, "sender"); !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid sender filter"})
		return
	}
	if filter.MemberID, ok = optionalID(c, "participant"); !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid participant filter"})
		return
	}
	if filter.CreatedAfter, ok = optionalTime(c, "created_at_after"); !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid created_at_after"})
		return
	}
	if filter.CreatedBefore, ok = optionalTime(c, "created_at_before"); !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid created_at_before"})
		return
	}
	if filter.Descending, ok = descending(c, false); !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid ordering"})
		return
	}

	page, pageSize, ok := pagination(c)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page"})
		return
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	msgs, total, err := h.store.ListMessages(c.Request.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := PageResponse{
		Count:    total,
		Page:     page,
		PageSize: pageSize,
		Results:  toMessageResponses(msgs),
	}
	if int64(page*pageSize) < total {
		resp.Next = pageURL(c, page+1)
	}
	if page > 1 {
		resp.Previous = pageURL(c, page-1)
	}
	c.JSON(http.StatusOK, resp)
}

// CreateMessage sends a message.
// POST /api/messages
func (h *MessageHandlers) CreateMessage(c *gin.Context) {
	uid := identityFrom(c).UserID

	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, _, err := h.dispatcher.CreateMessage(c.Request.Context(), signals.NewMessage{
		SenderID:       uid,
		ReceiverID:     req.ReceiverID,
		Content:        req.Content,
		ParentID:       req.ParentID,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		h.writeDispatchError(c, err, "failed to create message")
		return
	}

	h.log.Info().Int64("message_id", msg.ID).Int64("sender_id", uid).Int64("receiver_id", msg.ReceiverID).Msg("message created")
	c.JSON(http.StatusCreated, toMessageResponse(msg))
}

// GetMessage returns one message.
// GET /api/messages/:id
func (h *MessageHandlers) GetMessage(c *gin.Context) {
	msg, ok := h.visibleMessage(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toMessageResponse(msg))
}

// GetThread returns a message followed by all replies below it, breadth first.
// GET /api/messages/:id/thread
func (h *MessageHandlers) GetThread(c *gin.Context) {
	root, ok := h.visibleMessage(c)
	if !ok {
		return
	}
	thread, err := h.dispatcher.Thread(c.Request.Context(), root.ID)
	if err != nil {
		h.writeDispatchError(c, err, "failed to load thread")
		return
	}
	c.JSON(http.StatusOK, toMessageResponses(thread))
}

// GetHistory returns earlier versions of a message, oldest first.
// GET /api/messages/:id/history
func (h *MessageHandlers) GetHistory(c *gin.Context) {
	msg, ok := h.visibleMessage(c)
	if !ok {
		return
	}
	rows, err := h.store.ListHistory(c.Request.Context(), msg.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("message_id", msg.ID).Msg("failed to list history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, toHistoryResponses(rows))
}

// UpdateMessage edits the content of a message.
// PATCH /api/messages/:id
func (h *MessageHandlers) UpdateMessage(c *gin.Context) {
	msg, ok := h.ownedMessage(c)
	if !ok {
		return
	}

	var req UpdateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid update message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	editor := identityFrom(c).UserID
	updated, hist, err := h.dispatcher.EditMessage(c.Request.Context(), msg.ID, editor, req.Content)
	if err != nil {
		h.writeDispatchError(c, err, "failed to update message")
		return
	}

	h.log.Info().Int64("message_id", updated.ID).Int64("editor_id", editor).Bool("changed", hist != nil).Msg("message updated")
	c.JSON(http.StatusOK, toMessageResponse(updated))
}

// DeleteMessage removes a message and the replies below it.
// DELETE /api/messages/:id
func (h *MessageHandlers) DeleteMessage(c *gin.Context) {
	msg, ok := h.ownedMessage(c)
	if !ok {
		return
	}

	ids, err := h.dispatcher.DeleteMessage(c.Request.Context(), msg.ID)
	if err != nil {
		h.writeDispatchError(c, err, "failed to delete message")
		return
	}

	h.log.Info().Int64("message_id", msg.ID).Int("removed", len(ids)).Msg("message deleted")
	c.Status(http.StatusNoContent)
}

// visibleMessage loads the :id message if the caller sent or received it,
// or is elevated. It writes the error response itself.
func (h *MessageHandlers) visibleMessage(c *gin.Context) (*store.Message, bool) {
	msg, ok := h.loadMessage(c)
	if !ok {
		return nil, false
	}
	id := identityFrom(c)
	if msg.SenderID != id.UserID && msg.ReceiverID != id.UserID && !id.IsElevated(h.elevated) {
		// Do not reveal messages of other users.
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
		return nil, false
	}
	return msg, true
}

// ownedMessage loads the :id message if the caller sent it or is elevated.
func (h *MessageHandlers) ownedMessage(c *gin.Context) (*store.Message, bool) {
	msg, ok := h.visibleMessage(c)
	if !ok {
		return nil, false
	}
	if !canModify(identityFrom(c), msg, h.elevated) {
		c.JSON(http.StatusForbidden, DetailResponse{Detail: msgNotOwner})
		return nil, false
	}
	return msg, true
}

func (h *MessageHandlers) loadMessage(c *gin.Context) (*store.Message, bool) {
	id, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message id"})
		return nil, false
	}
	msg, err := h.store.GetMessage(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
			return nil, false
		}
		h.log.Error().Err(err).Int64("message_id", id).Msg("failed to get message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return nil, false
	}
	return msg, true
}

func (h *MessageHandlers) writeDispatchError(c *gin.Context, err error, what string) {
	switch {
	case errors.Is(err, signals.ErrEmptyContent),
		errors.Is(err, signals.ErrReceiverNotFound),
		errors.Is(err, signals.ErrParentNotFound),
		errors.Is(err, signals.ErrConversationNotFound):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, signals.ErrNotParticipant):
		c.JSON(http.StatusForbidden, DetailResponse{Detail: msgParticipantsOnly})
	case errors.Is(err, signals.ErrUnknownCaller):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
	case errors.Is(err, signals.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
	default:
		h.log.Error().Err(err).Msg(what)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func canModify(id auth.Identity, msg *store.Message, elevated []string) bool {
	return msg.SenderID == id.UserID || id.IsElevated(elevated)
}

// optionalID parses an optional positive integer query parameter.
func optionalID(c *gin.Context, key string) (*int64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, false
	}
	return &v, true
}

// optionalTime parses an optional RFC 3339 query parameter.
func optionalTime(c *gin.Context, key string) (*time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	v, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, false
	}
	return &v, true
}

// descending reads ?ordering=created_at|-created_at.
func descending(c *gin.Context, def bool) (bool, bool) {
	switch c.Query("ordering") {
	case "":
		return def, true
	case "created_at":
		return false, true
	case "-created_at":
		return true, true
	default:
		return false, false
	}
}

// maxPage keeps page*page_size within int.
const maxPage = math.MaxInt / maxPageSize

func pagination(c *gin.Context) (page, size int, ok bool) {
	page, size = 1, defaultPageSize
	if raw := c.Query("page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxPage {
			return 0, 0, false
		}
		page = v
	}
	if raw := c.Query("page_size"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return 0, 0, false
		}
		size = min(v, maxPageSize)
	}
	return page, size, true
}

func pageURL(c *gin.Context, page int) *string {
	u := *c.Request.URL
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	s := u.RequestURI()
	return &s
}
