package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremsg/internal/store"
)

const msgParticipantsOnly = "Only participants can access this resource."

var errUnknownParticipant = errors.New("unknown participant")

// ConversationHandlers provides HTTP handlers for conversations.
type ConversationHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewConversationHandlers creates a new conversation handlers instance.
func NewConversationHandlers(st store.Store, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{store: st, log: logger}
}

// CreateConversationRequest represents the create conversation request body.
type CreateConversationRequest struct {
	Title          string  `json:"title" binding:"required,max=255"`
	ParticipantIDs []int64 `json:"participant_ids"`
}

// ListConversations lists the caller's conversations.
// GET /api/conversations?search=&participant=&ordering=
func (h *ConversationHandlers) ListConversations(c *gin.Context) {
	uid := identityFrom(c).UserID
	filter := store.ConversationFilter{UserID: uid, Search: strings.TrimSpace(c.Query("search"))}

	var ok bool
	if filter.MemberID, ok = optionalID(c, "participant"); !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid participant filter"})
		return
	}
	desc, ok := descending(c, true)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid ordering"})
		return
	}
	filter.Ascending = !desc

	convs, err := h.store.ListConversations(c.Request.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list conversations")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]ConversationResponse, 0, len(convs))
	for _, conv := range convs {
		response = append(response, toConversationResponse(conv))
	}
	c.JSON(http.StatusOK, response)
}

// CreateConversation creates a conversation with the caller as participant.
// POST /api/conversations
func (h *ConversationHandlers) CreateConversation(c *gin.Context) {
	uid := identityFrom(c).UserID

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create conversation request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	participants := append([]int64{uid}, req.ParticipantIDs...)
	ctx := c.Request.Context()

	var conv *store.Conversation
	err := h.store.InTx(ctx, func(q store.Queries) error {
		for _, pid := range participants {
			if _, err := q.GetUserByID(ctx, pid); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return errUnknownParticipant
				}
				return err
			}
		}
		var err error
		conv, err = q.CreateConversation(ctx, strings.TrimSpace(req.Title), participants)
		return err
	})
	if err != nil {
		if errors.Is(err, errUnknownParticipant) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to create conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Int64("conversation_id", conv.ID).Int64("owner_id", uid).Msg("conversation created")
	c.JSON(http.StatusCreated, toConversationResponse(conv))
}

// GetConversation returns a conversation to its participants.
// GET /api/conversations/:id
func (h *ConversationHandlers) GetConversation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid conversation id"})
		return
	}

	conv, allowed, err := h.load(c.Request.Context(), id, identityFrom(c).UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
			return
		}
		h.log.Error().Err(err).Int64("conversation_id", id).Msg("failed to get conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, DetailResponse{Detail: msgParticipantsOnly})
		return
	}
	c.JSON(http.StatusOK, toConversationResponse(conv))
}

func (h *ConversationHandlers) load(ctx context.Context, id, uid int64) (*store.Conversation, bool, error) {
	conv, err := h.store.GetConversation(ctx, id)
	if err != nil {
		return nil, false, err
	}
	for _, p := range conv.Participants {
		if p == uid {
			return conv, true, nil
		}
	}
	return conv, false, nil
}
